package tx_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	txcontext "trellis/pkg/platform/tx"
)

func TestRunInTxCommitsOnSuccess(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE widgets").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	runner := txcontext.NewRunner(db)
	err = runner.RunInTx(context.Background(), func(ctx context.Context) error {
		tx, ok := txcontext.From(ctx)
		require.True(t, ok)
		_, err := tx.ExecContext(ctx, "UPDATE widgets SET n = n + 1")
		return err
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	runner := txcontext.NewRunner(db)
	err = runner.RunInTx(context.Background(), func(ctx context.Context) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTxJoinsAmbientTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	tx, err := db.Begin()
	require.NoError(t, err)
	ctx := txcontext.WithTx(context.Background(), tx)

	calls := 0
	runner := txcontext.NewRunner(db)
	err = runner.RunInTx(ctx, func(inner context.Context) error {
		calls++
		got, ok := txcontext.From(inner)
		require.True(t, ok)
		require.Same(t, tx, got)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, calls)

	// the ambient transaction is still open and owned by the caller
	mock.ExpectRollback()
	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTxIgnoresNil(t *testing.T) {
	ctx := txcontext.WithTx(context.Background(), nil)
	_, ok := txcontext.From(ctx)
	require.False(t, ok)
}
