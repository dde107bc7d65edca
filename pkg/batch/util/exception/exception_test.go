package exception_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"harvester/pkg/batch/util/exception"
)

func TestKindSentinels(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
		kind     exception.Kind
	}{
		{"configuration", exception.NewConfigurationError("task", "missing"), exception.ErrConfiguration, exception.KindConfiguration},
		{"source", exception.NewSourceError("reader", "broken", errors.New("io")), exception.ErrSource, exception.KindSource},
		{"process", exception.NewProcessError("processor", "occ-1", errors.New("bad"), false), exception.ErrProcess, exception.KindProcess},
		{"writer", exception.NewWriterError("writer", "insert", errors.New("db")), exception.ErrWriter, exception.KindWriter},
		{"query", exception.NewQueryError("task", "count", errors.New("db")), exception.ErrQuery, exception.KindQuery},
		{"timeout", exception.NewTimeoutError("task", "stalled"), exception.ErrTimeout, exception.KindTimeout},
		{"cancelled", exception.NewCancelledError("job", "stop", context.Canceled), exception.ErrCancelled, exception.KindCancelled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("step failed: %w", tt.err)
			assert.ErrorIs(t, wrapped, tt.sentinel)
			assert.Equal(t, tt.kind, exception.KindOf(wrapped))
			if tt.sentinel != exception.ErrTimeout {
				assert.NotErrorIs(t, wrapped, exception.ErrTimeout)
			}
		})
	}
}

func TestProcessErrorCarriesItemID(t *testing.T) {
	cause := errors.New("unparsable date")
	err := exception.NewProcessError("processor", "occ-42", cause, true)

	assert.Equal(t, "occ-42", err.ItemID)
	assert.True(t, err.IsSkippable())
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "occ-42")
	assert.True(t, exception.IsSkippable(fmt.Errorf("wrap: %w", err)))
}

func TestNewBatchErrorfExtractsTrailingError(t *testing.T) {
	cause := errors.New("boom")
	err := exception.NewBatchErrorf("job", "ステップ '%s' が失敗しました", "load", cause)

	assert.Equal(t, "ステップ 'load' が失敗しました", err.Message)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, exception.KindInternal, err.Kind)
}

func TestIsTemporary(t *testing.T) {
	assert.True(t, exception.IsTemporary(exception.NewWriterError("w", "insert", nil)))
	assert.False(t, exception.IsTemporary(exception.NewConfigurationError("c", "x")))
	assert.True(t, exception.IsTemporary(errors.New("dial tcp: connection refused")))
	assert.False(t, exception.IsTemporary(nil))
}
