package connector

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harvester/pkg/batch/config"
	"harvester/pkg/batch/util/exception"
)

type flakyConnector struct {
	failures int
	calls    int
	db       *sql.DB
}

func (f *flakyConnector) Connect(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("connection refused")
	}
	return f.db, nil
}

var fastPolicy = RetryPolicy{MaxRetries: 5, InitialInterval: time.Millisecond, MaxElapsedTime: time.Second}

func TestConnectWithRetry_SucceedsAfterTransientFailures(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()
	mock.ExpectPing()

	fake := &flakyConnector{failures: 2, db: db}
	RegisterConnector("flaky-ok", fake)

	conn, err := ConnectWithRetry(context.Background(), config.DatabaseConfig{Type: "flaky-ok"}, fastPolicy)
	require.NoError(t, err)
	require.NotNil(t, conn)
	assert.Equal(t, 3, fake.calls)
	assert.NoError(t, conn.PingContext(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectWithRetry_GivesUpAfterMaxRetries(t *testing.T) {
	fake := &flakyConnector{failures: 100}
	RegisterConnector("flaky-ng", fake)

	_, err := ConnectWithRetry(context.Background(), config.DatabaseConfig{Type: "flaky-ng"}, RetryPolicy{MaxRetries: 2, InitialInterval: time.Millisecond, MaxElapsedTime: time.Second})
	require.Error(t, err)
	assert.True(t, exception.IsTemporary(err))
	assert.Equal(t, 3, fake.calls)
}

func TestConnectWithRetry_UnknownTypeIsNotRetried(t *testing.T) {
	_, err := ConnectWithRetry(context.Background(), config.DatabaseConfig{Type: "oracle"}, fastPolicy)
	assert.ErrorIs(t, err, exception.ErrConfiguration)
}

func TestBuiltinConnectorsAreRegistered(t *testing.T) {
	for _, name := range []string{"postgres", "redshift", "mysql", "snowflake", "POSTGRES"} {
		_, ok := lookup(name)
		assert.True(t, ok, name)
	}
}
