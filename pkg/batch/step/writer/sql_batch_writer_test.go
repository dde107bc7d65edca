package writer

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"harvester/pkg/batch/database"
	exception "harvester/pkg/batch/util/exception"
)

var insertSQL = "INSERT INTO names (name) VALUES ($1)"

func nameInserter() BatchInserter[string] {
	return BatchInserterFunc[string](func(ctx context.Context, tx database.Tx, items []string) error {
		for _, item := range items {
			if _, err := tx.ExecContext(ctx, insertSQL, item); err != nil {
				return err
			}
		}
		return nil
	})
}

func newMockWriter(t *testing.T) (*SQLBatchWriter[string], sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLBatchWriter[string]("names", database.NewSQLDBAdapter(db), nameInserter()), mock
}

func TestSQLBatchWriter_CommitsWholeBatch(t *testing.T) {
	ctx := context.Background()
	w, mock := newMockWriter(t)

	mock.ExpectPing()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(insertSQL)).WithArgs("a").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(insertSQL)).WithArgs("b").WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	require.NoError(t, w.OpenWriter(ctx))
	require.NoError(t, w.WriteBatch(ctx, []string{"a", "b"}))
	require.NoError(t, w.CloseWriter(ctx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLBatchWriter_RollsBackOnMidBatchFailure(t *testing.T) {
	ctx := context.Background()
	w, mock := newMockWriter(t)

	mock.ExpectPing()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(insertSQL)).WithArgs("a").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta(insertSQL)).WithArgs("b").WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	require.NoError(t, w.OpenWriter(ctx))
	err := w.WriteBatch(ctx, []string{"a", "b", "c"})
	require.Error(t, err)
	assert.ErrorIs(t, err, exception.ErrWriter)
	assert.Contains(t, err.Error(), "duplicate key")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLBatchWriter_CommitFailureIsWriterError(t *testing.T) {
	ctx := context.Background()
	w, mock := newMockWriter(t)

	mock.ExpectPing()
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(insertSQL)).WithArgs("a").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

	require.NoError(t, w.OpenWriter(ctx))
	err := w.Write(ctx, "a")
	assert.ErrorIs(t, err, exception.ErrWriter)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLBatchWriter_EmptyBatchDoesNotOpenTransaction(t *testing.T) {
	ctx := context.Background()
	w, mock := newMockWriter(t)
	mock.ExpectPing()

	require.NoError(t, w.OpenWriter(ctx))
	require.NoError(t, w.WriteBatch(ctx, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLBatchWriter_WriteBeforeOpenFails(t *testing.T) {
	w, _ := newMockWriter(t)
	assert.Error(t, w.WriteBatch(context.Background(), []string{"a"}))
}

func TestSQLBatchWriter_MissingInserterIsConfigurationError(t *testing.T) {
	w := NewSQLBatchWriter[string]("broken", nil, nil)
	assert.ErrorIs(t, w.OpenWriter(context.Background()), exception.ErrConfiguration)
}
