package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code int
	}{
		{"nil", nil, 0},
		{"config", New(KindConfig, "missing repo_path"), 2},
		{"repository", New(KindRepository, "shallow clone"), 3},
		{"store transient", New(KindStoreTransient, "deadlock"), 4},
		{"store permanent", New(KindStorePermanent, "constraint violation"), 5},
		{"cancelled", New(KindCancelled, "interrupted"), 130},
		{"stage failure", New(KindDerivation, "family failed"), 5},
		{"plain error", errors.New("boom"), 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, ExitCode(tt.err))
		})
	}
}

func TestKindOfWrappedChain(t *testing.T) {
	inner := New(KindRepository, "corrupt object database")
	outer := fmt.Errorf("stage 4: %w", inner)
	assert.Equal(t, KindRepository, KindOf(outer))
	assert.True(t, errors.Is(outer, &Error{Kind: KindRepository}))
}

func TestRetryableOnlyTransient(t *testing.T) {
	assert.True(t, Retryable(New(KindStoreTransient, "timeout")))
	assert.False(t, Retryable(New(KindStorePermanent, "constraint")))
	assert.False(t, Retryable(New(KindConfig, "bad pattern")))
	assert.False(t, Retryable(errors.New("plain")))
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return New(KindStoreTransient, "timeout")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnPermanent(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return New(KindStorePermanent, "constraint violation")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, KindStorePermanent, KindOf(err))
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return New(KindStoreTransient, "timeout")
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, 3, 50*time.Millisecond, func() error {
		return New(KindStoreTransient, "timeout")
	})
	require.Error(t, err)
	assert.Equal(t, KindCancelled, KindOf(err))
}

func TestStageAnnotation(t *testing.T) {
	err := New(KindStorePermanent, "write failed").WithStage("chunk_ingest")
	wrapped := fmt.Errorf("pipeline: %w", err)
	assert.Equal(t, "chunk_ingest", StageOf(wrapped))
}
