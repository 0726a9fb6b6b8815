// Command server runs the governance API: share links, approvals, and the
// audit trail, plus the outbox relay that ships audit events to Kafka.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/twmb/franz-go/pkg/kgo"
	"golang.org/x/sync/errgroup"

	approvalhandler "trellis/internal/approval/handler"
	approvalservice "trellis/internal/approval/service"
	approvalstore "trellis/internal/approval/store/postgres"
	"trellis/internal/audit"
	audithandler "trellis/internal/audit/handler"
	"trellis/internal/audit/outbox"
	auditstore "trellis/internal/audit/store/postgres"
	directorystore "trellis/internal/directory/postgres"
	"trellis/internal/platform/config"
	"trellis/internal/platform/httpserver"
	"trellis/internal/platform/logger"
	"trellis/internal/platform/metrics"
	"trellis/internal/platform/middleware"
	"trellis/internal/platform/postgres"
	platformredis "trellis/internal/platform/redis"
	roadmapstore "trellis/internal/roadmap/postgres"
	"trellis/internal/sharelink"
	sharelinkhandler "trellis/internal/sharelink/handler"
	sharelinkservice "trellis/internal/sharelink/service"
	sharelinkstore "trellis/internal/sharelink/store/postgres"
	"trellis/internal/sharelink/store/rediscache"
	"trellis/pkg/platform/tx"
)

func main() {
	log := logger.New()

	if err := run(log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(log *slog.Logger) error {
	cfg := config.FromEnv()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := postgres.Migrate(ctx, db, cfg.MigrationsDir); err != nil {
		return err
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	var kafkaClient *kgo.Client
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaClient, err = kgo.NewClient(
			kgo.SeedBrokers(cfg.Kafka.Brokers...),
			kgo.DefaultProduceTopic(cfg.Kafka.AuditTopic),
		)
		if err != nil {
			return err
		}
		defer kafkaClient.Close()
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	publisher := audit.NewPublisher(auditstore.New(db),
		audit.WithLogger(log),
		audit.WithMetrics(m),
	)

	var linkStore sharelink.Store = sharelinkstore.New(db)
	if redisClient != nil {
		linkStore = rediscache.New(linkStore, redisClient.Client, cfg.Redis.CacheTTL, log)
	}
	linkService := sharelinkservice.New(linkStore, publisher,
		sharelinkservice.WithLogger(log),
		sharelinkservice.WithMetrics(m),
		sharelinkservice.WithBaseURL(cfg.ShareBaseURL),
	)

	approvalService := approvalservice.New(approvalstore.New(db), publisher,
		approvalservice.WithLogger(log),
		approvalservice.WithMetrics(m),
		approvalservice.WithMemberDirectory(directorystore.New(db)),
		approvalservice.WithMilestoneValidator(roadmapstore.New(db)),
		approvalservice.WithTransactor(tx.NewRunner(db)),
	)

	linkHandler := sharelinkhandler.New(linkService, log)
	approvalHandler := approvalhandler.New(approvalService, log)
	auditHandler := audithandler.New(publisher, log)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RequestTime,
		middleware.ClientMetadata,
		middleware.Recovery(log),
		middleware.Logger(log),
		middleware.Latency(m),
		middleware.Timeout(30*time.Second),
	)

	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Method(http.MethodGet, "/metrics", promhttp.Handler())

	// Anonymous viewer route: no identity required, token is the capability.
	router.Group(linkHandler.RegisterPublic)

	router.Route("/api", func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON, middleware.RequireIdentity(log))
		linkHandler.RegisterManagement(r)
		approvalHandler.Register(r)
		auditHandler.Register(r)
	})

	server := httpserver.New(cfg.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("http server listening", "addr", cfg.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if kafkaClient != nil {
		relay := outbox.New(db, kafkaClient, outbox.Config{
			Topic:    cfg.Kafka.AuditTopic,
			Interval: cfg.Kafka.RelayInterval,
			Batch:    cfg.Kafka.RelayBatch,
			Logger:   log,
			Metrics:  m,
		})
		group.Go(func() error {
			if err := relay.Run(groupCtx); !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("server stopped")
	return nil
}
