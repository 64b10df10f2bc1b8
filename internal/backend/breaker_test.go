package backend

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/centsible/infera/internal/task"
)

func flakyBackend(fail *atomic.Bool, calls *atomic.Int64) Backend[string] {
	return NewFunc(KindRemote, "cloud",
		func(ctx context.Context, d *task.Descriptor) (*Result[string], error) {
			calls.Add(1)
			if fail.Load() {
				return nil, NewError(ErrorNetwork, "cloud", nil)
			}
			return &Result[string]{Data: "ok", Confidence: 0.9}, nil
		})
}

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	var fail atomic.Bool
	var calls atomic.Int64
	fail.Store(true)

	b := NewBreaker(flakyBackend(&fail, &calls), 3, time.Minute)
	d := testTask(t)

	for i := 0; i < 3; i++ {
		_, err := b.Invoke(context.Background(), d)
		require.Error(t, err)
	}
	open, failures := b.State()
	assert.True(t, open)
	assert.Equal(t, 3, failures)

	// Open circuit rejects without touching the inner backend.
	_, err := b.Invoke(context.Background(), d)
	require.Error(t, err)
	assert.Equal(t, ErrorUnavailable, KindOf(err))
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, int64(3), calls.Load())
}

func TestBreaker_SuccessResets(t *testing.T) {
	var fail atomic.Bool
	var calls atomic.Int64
	fail.Store(true)

	b := NewBreaker(flakyBackend(&fail, &calls), 3, time.Minute)
	d := testTask(t)

	_, _ = b.Invoke(context.Background(), d)
	_, _ = b.Invoke(context.Background(), d)

	fail.Store(false)
	_, err := b.Invoke(context.Background(), d)
	require.NoError(t, err)

	open, failures := b.State()
	assert.False(t, open)
	assert.Zero(t, failures)
}

func TestBreaker_CooldownCloses(t *testing.T) {
	var fail atomic.Bool
	var calls atomic.Int64
	fail.Store(true)

	b := NewBreaker(flakyBackend(&fail, &calls), 1, 10*time.Millisecond)
	d := testTask(t)

	_, err := b.Invoke(context.Background(), d)
	require.Error(t, err)
	open, _ := b.State()
	require.True(t, open)

	time.Sleep(20 * time.Millisecond)
	fail.Store(false)

	_, err = b.Invoke(context.Background(), d)
	require.NoError(t, err)
}

func TestBreaker_ManualReset(t *testing.T) {
	var fail atomic.Bool
	var calls atomic.Int64
	fail.Store(true)

	b := NewBreaker(flakyBackend(&fail, &calls), 1, time.Minute)
	_, _ = b.Invoke(context.Background(), testTask(t))
	open, _ := b.State()
	require.True(t, open)

	b.Reset()
	open, failures := b.State()
	assert.False(t, open)
	assert.Zero(t, failures)
}
