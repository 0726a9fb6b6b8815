// Package outbox ships persisted audit events to Kafka. The relay reads
// unpublished outbox rows in batches and produces them, marking rows only
// after the broker acknowledges. Kafka being down delays fan-out; it never
// blocks or fails the operations that produced the events.
package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/twmb/franz-go/pkg/kgo"

	"trellis/internal/platform/metrics"
)

// Relay drains the audit_outbox table into a Kafka topic.
type Relay struct {
	db       *sql.DB
	client   *kgo.Client
	topic    string
	interval time.Duration
	batch    int
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// Config bundles relay construction parameters.
type Config struct {
	Topic    string
	Interval time.Duration
	Batch    int
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// New constructs a Relay. The kgo client is owned by the caller.
func New(db *sql.DB, client *kgo.Client, cfg Config) *Relay {
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.Batch <= 0 {
		cfg.Batch = 100
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Relay{
		db:       db,
		client:   client,
		topic:    cfg.Topic,
		interval: cfg.Interval,
		batch:    cfg.Batch,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

// Run drains the outbox until ctx is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := r.drainOnce(ctx); err != nil {
				if r.metrics != nil {
					r.metrics.AuditRelayFailures.Inc()
				}
				r.logger.ErrorContext(ctx, "outbox drain failed", "error", err)
			}
		}
	}
}

type outboxRow struct {
	id       uuid.UUID
	topicKey string
	payload  []byte
}

// drainOnce publishes up to one batch. SKIP LOCKED lets multiple relay
// instances run without double-publishing within a cycle; the consumer side
// is expected to deduplicate on event ID regardless.
func (r *Relay) drainOnce(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin outbox tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, topic_key, payload
		FROM audit_outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, r.batch)
	if err != nil {
		return fmt.Errorf("select outbox batch: %w", err)
	}

	var pending []outboxRow
	for rows.Next() {
		var row outboxRow
		if err := rows.Scan(&row.id, &row.topicKey, &row.payload); err != nil {
			rows.Close()
			return fmt.Errorf("scan outbox row: %w", err)
		}
		pending = append(pending, row)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("iterate outbox rows: %w", err)
	}
	rows.Close()

	if len(pending) == 0 {
		return nil
	}

	published := make([]uuid.UUID, 0, len(pending))
	for _, row := range pending {
		record := &kgo.Record{
			Topic: r.topic,
			Key:   []byte(row.topicKey),
			Value: row.payload,
		}
		if err := r.client.ProduceSync(ctx, record).FirstErr(); err != nil {
			// Leave the row unpublished; a later cycle retries it.
			if r.metrics != nil {
				r.metrics.AuditRelayFailures.Inc()
			}
			r.logger.WarnContext(ctx, "outbox publish failed",
				"outbox_id", row.id.String(),
				"error", err,
			)
			break
		}
		published = append(published, row.id)
	}

	for _, outboxID := range published {
		if _, err := tx.ExecContext(ctx, `
			UPDATE audit_outbox SET published_at = now() WHERE id = $1
		`, outboxID); err != nil {
			return fmt.Errorf("mark outbox published: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit outbox batch: %w", err)
	}

	if r.metrics != nil {
		r.metrics.AuditRelayPublished.Add(float64(len(published)))
	}
	return nil
}
