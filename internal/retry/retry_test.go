package retry_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kiranshivaraju/batchlingo/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errTransient = errors.New("rate limited")
var errFatal = errors.New("bad request")

type recorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recorder) notify(_ error, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
}

func TestDo_SucceedsFirstTry(t *testing.T) {
	calls := 0
	v, err := retry.Do(context.Background(), retry.Policy{MaxRetries: 3, BaseDelay: time.Millisecond},
		func(context.Context) (string, error) {
			calls++
			return "ok", nil
		}, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 1, calls)
}

func TestDo_ExhaustsAfterMaxRetriesPlusOne(t *testing.T) {
	rec := &recorder{}
	calls := 0
	p := retry.Policy{MaxRetries: 3, BaseDelay: 2 * time.Millisecond}

	_, err := retry.Do(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 0, errTransient
	}, rec.notify)

	require.ErrorIs(t, err, errTransient)
	assert.Equal(t, 4, calls)
	require.Len(t, rec.delays, 3)
	for k, d := range rec.delays {
		assert.Equal(t, p.Delay(k+1), d, "retry %d", k+1)
	}
}

func TestDo_DelayIncludesJitterWithinBounds(t *testing.T) {
	rec := &recorder{}
	p := retry.Policy{MaxRetries: 2, BaseDelay: time.Millisecond, MaxJitter: 3 * time.Millisecond}

	_, _ = retry.Do(context.Background(), p, func(context.Context) (int, error) {
		return 0, errTransient
	}, rec.notify)

	require.Len(t, rec.delays, 2)
	for k, d := range rec.delays {
		lo := p.Delay(k + 1)
		assert.GreaterOrEqual(t, d, lo)
		assert.Less(t, d, lo+p.MaxJitter)
	}
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	calls := 0
	p := retry.Policy{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		Retryable:  func(err error) bool { return errors.Is(err, errTransient) },
	}

	_, err := retry.Do(context.Background(), p, func(context.Context) (int, error) {
		calls++
		return 0, errFatal
	}, nil)

	require.ErrorIs(t, err, errFatal)
	assert.Equal(t, 1, calls)
}

func TestDo_RecoversAfterTransientFailures(t *testing.T) {
	calls := 0
	v, err := retry.Do(context.Background(), retry.Policy{MaxRetries: 3, BaseDelay: time.Millisecond},
		func(context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", errTransient
			}
			return "done", nil
		}, nil)
	require.NoError(t, err)
	assert.Equal(t, "done", v)
	assert.Equal(t, 3, calls)
}

func TestDo_ContextCancelStopsRetrying(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := retry.Do(ctx, retry.Policy{MaxRetries: 10, BaseDelay: time.Hour},
		func(context.Context) (int, error) {
			calls++
			cancel()
			return 0, errTransient
		}, nil)

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestPolicy_Delay(t *testing.T) {
	p := retry.Policy{BaseDelay: time.Second}
	assert.Equal(t, time.Duration(0), p.Delay(0))
	assert.Equal(t, time.Second, p.Delay(1))
	assert.Equal(t, 2*time.Second, p.Delay(2))
	assert.Equal(t, 4*time.Second, p.Delay(3))
}

func TestPolicy_IsZero(t *testing.T) {
	assert.True(t, retry.Policy{}.IsZero())
	assert.True(t, retry.Policy{Retryable: func(error) bool { return true }}.IsZero())
	assert.False(t, retry.Policy{BaseDelay: time.Second}.IsZero())
	assert.False(t, retry.DefaultPolicy.IsZero())

	assert.Equal(t, 3, retry.DefaultPolicy.MaxRetries)
	assert.Equal(t, time.Second, retry.DefaultPolicy.BaseDelay)
	assert.Equal(t, time.Second, retry.DefaultPolicy.MaxJitter)
}
