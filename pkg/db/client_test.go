package db

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/paysettle-backend/pkg/config"
	"github.com/angelmondragon/paysettle-backend/pkg/logger"
)

type ledgerRow struct {
	ID   int
	Note string
}

func openSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&ledgerRow{}))
	return conn
}

func countRows(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(&ledgerRow{}).Count(&n).Error)
	return n
}

func TestWithTxCommitsAndRollsBack(t *testing.T) {
	conn := openSQLite(t)
	client := NewFromConn(conn)
	ctx := context.Background()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&ledgerRow{Note: "kept"}).Error
	}))
	require.EqualValues(t, 1, countRows(t, conn))

	boom := errors.New("boom")
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		require.NoError(t, tx.Create(&ledgerRow{Note: "dropped"}).Error)
		return boom
	})
	require.ErrorIs(t, err, boom)
	require.EqualValues(t, 1, countRows(t, conn))
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	conn := openSQLite(t)
	client := NewFromConn(conn)

	require.Panics(t, func() {
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			require.NoError(t, tx.Create(&ledgerRow{Note: "panicked"}).Error)
			panic("boom")
		})
	})
	require.Zero(t, countRows(t, conn))
}

func TestDialectorFor(t *testing.T) {
	_, err := dialectorFor(config.DBConfig{Driver: "mysql", DSN: "x"})
	require.ErrorContains(t, err, "unsupported database driver")

	d, err := dialectorFor(config.DBConfig{Driver: " SQLite ", DSN: "file::memory:"})
	require.NoError(t, err)
	require.Equal(t, "sqlite", d.Name())

	d, err = dialectorFor(config.DBConfig{DSN: "postgres://localhost/x"})
	require.NoError(t, err)
	require.Equal(t, "postgres", d.Name())
}

func TestNewOpensSQLite(t *testing.T) {
	client, err := New(context.Background(), config.DBConfig{Driver: "sqlite", DSN: "file::memory:", MaxOpenConns: 1}, nil)
	require.NoError(t, err)
	require.NoError(t, client.Ping(context.Background()))
	require.NoError(t, client.Close())

	_, err = New(context.Background(), config.DBConfig{Driver: "sqlite"}, nil)
	require.ErrorContains(t, err, "DSN is required")
}

func TestIsUniqueViolation(t *testing.T) {
	conn := openSQLite(t)
	require.NoError(t, conn.Exec("CREATE UNIQUE INDEX idx_ledger_rows_note ON ledger_rows(note)").Error)
	require.NoError(t, conn.Create(&ledgerRow{Note: "once"}).Error)

	err := conn.Create(&ledgerRow{Note: "once"}).Error
	require.True(t, IsUniqueViolation(err, ""))
	require.True(t, IsUniqueViolation(err, "ledger_rows.note"))
	require.False(t, IsUniqueViolation(err, "uq_other"))
	require.False(t, IsUniqueViolation(errors.New("other"), ""))
	require.False(t, IsUniqueViolation(nil, ""))
}

func TestQueryLoggerReportsSlowAndFailedStatements(t *testing.T) {
	buf := &bytes.Buffer{}
	logg := logger.New(logger.Options{ServiceName: "test", Level: zerolog.DebugLevel, Output: buf})
	ql := newQueryLogger(logg, 50*time.Millisecond)
	ctx := context.Background()
	stmt := func() (string, int64) { return "SELECT 1", 1 }

	ql.Trace(ctx, time.Now(), stmt, nil)
	ql.Trace(ctx, time.Now(), stmt, gorm.ErrRecordNotFound)
	require.Empty(t, buf.String(), "fast and not-found queries stay quiet")

	ql.Trace(ctx, time.Now().Add(-time.Second), stmt, nil)
	require.Contains(t, buf.String(), "db.query_slow")
	require.Contains(t, buf.String(), `"sql":"SELECT 1"`)

	buf.Reset()
	ql.Trace(ctx, time.Now(), stmt, errors.New("syntax error"))
	require.Contains(t, buf.String(), "db.query_failed")
	require.Contains(t, buf.String(), "syntax error")

	require.NotNil(t, newQueryLogger(nil, 0))
}
