package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Davincible/llm-bridge/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		err      error
		expected bool
	}{
		{errors.New("Too Many Tokens in request"), true},
		{errors.New("rate limit exceeded"), true},
		{errors.New("ThrottlingException: slow down"), true},
		{errors.New("upstream returned 429 Too Many Requests"), true},
		{errors.New("You are exceeding the allowed request rate"), true},
		{errors.New("Rate limited by AI Core"), true},
		{fmt.Errorf("call failed: %w", errors.New("rate limit")), true},
		{errors.New("invalid api key"), false},
		{errors.New("internal server error"), false},
		{nil, false},
	}

	for _, tt := range tests {
		name := "nil"
		if tt.err != nil {
			name = tt.err.Error()
		}
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsRetryable(tt.err))
		})
	}
}

func TestSchedule(t *testing.T) {
	s := &Schedule{}

	expected := []time.Duration{
		100 * time.Millisecond,
		200 * time.Millisecond,
		400 * time.Millisecond,
		600 * time.Millisecond,
		600 * time.Millisecond,
	}
	for i, want := range expected {
		assert.Equal(t, want, s.NextBackOff(), "wait after failure %d", i+1)
	}

	for i := 0; i < 100; i++ {
		wait := s.NextBackOff()
		assert.GreaterOrEqual(t, wait, 300*time.Millisecond)
		assert.LessOrEqual(t, wait, 600*time.Millisecond)
	}

	s.Reset()
	assert.Equal(t, 100*time.Millisecond, s.NextBackOff())
}

func TestPolicy_AttemptCap(t *testing.T) {
	b := New(testLogger()).backOff(context.Background())

	for i := 0; i < MaxRetries; i++ {
		assert.NotEqual(t, backoff.Stop, b.NextBackOff())
	}
	assert.Equal(t, backoff.Stop, b.NextBackOff())
}

func TestDo_SucceedsOnFourthAttempt(t *testing.T) {
	p := New(testLogger()).WithOperation("test_fourth")
	var calls int32

	start := time.Now()
	res, err := Do(context.Background(), p, func(ctx context.Context) (string, error) {
		if atomic.AddInt32(&calls, 1) < 4 {
			return "", errors.New("429 Too Many Requests")
		}
		return "ok", nil
	})
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, "ok", res)
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
	assert.GreaterOrEqual(t, elapsed, 600*time.Millisecond)
	assert.Equal(t, float64(3), testutil.ToFloat64(metrics.RetriesTotal.WithLabelValues("test_fourth")))
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	p := New(testLogger())
	var calls int32

	start := time.Now()
	_, err := Do(context.Background(), p, func(ctx context.Context) (int, error) {
		n := atomic.AddInt32(&calls, 1)
		return 0, fmt.Errorf("throttling on attempt %d", n)
	})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, int32(5), atomic.LoadInt32(&calls))
	assert.Equal(t, "throttling on attempt 5", err.Error())
	assert.GreaterOrEqual(t, elapsed, 1200*time.Millisecond)
}

func TestDo_NonRetryableFailsImmediately(t *testing.T) {
	p := New(testLogger())
	var calls int32
	sentinel := errors.New("bad request")

	_, err := Do(context.Background(), p, func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 0, sentinel
	})

	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDo_ContextCancelled(t *testing.T) {
	p := New(testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	var calls int32

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := Do(ctx, p, func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 0, errors.New("rate limit")
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "cancellation during the first wait stops further attempts")
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
