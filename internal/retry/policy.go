// Package retry retries upstream calls that failed because of rate limiting.
//
// Only errors whose message contains one of a fixed set of rate-limit phrases
// are retried; everything else is returned after the first attempt. A call
// is attempted at most five times. The waits between attempts are 100ms,
// 200ms and then an exponential 100ms*2^(n-1) clamped to [300ms, 600ms].
package retry

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/Davincible/llm-bridge/internal/metrics"
)

const (
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries = 4

	firstWait        = 100 * time.Millisecond
	secondWait       = 200 * time.Millisecond
	expMultiplier    = 100 * time.Millisecond
	expMinWait       = 300 * time.Millisecond
	expMaxWait       = 600 * time.Millisecond
	defaultOperation = "upstream"
)

var retryablePhrases = []string{
	"too many tokens",
	"rate limit",
	"throttling",
	"too many requests",
	"exceeding the allowed request",
	"rate limited by ai core",
}

// IsRetryable reports whether err looks like upstream rate limiting.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	msg := strings.ToLower(err.Error())
	for _, phrase := range retryablePhrases {
		if strings.Contains(msg, phrase) {
			return true
		}
	}

	return false
}

// Schedule is the wait sequence between attempts. It never stops on its own;
// the attempt cap is applied by the Policy.
type Schedule struct {
	failures int
}

func (s *Schedule) Reset() {
	s.failures = 0
}

func (s *Schedule) NextBackOff() time.Duration {
	s.failures++

	switch s.failures {
	case 1:
		return firstWait
	case 2:
		return secondWait
	}
	if s.failures > 8 {
		return expMaxWait
	}

	wait := expMultiplier << (s.failures - 1)
	if wait < expMinWait {
		return expMinWait
	}
	if wait > expMaxWait {
		return expMaxWait
	}

	return wait
}

// Policy wraps upstream calls with the rate-limit retry schedule.
type Policy struct {
	maxRetries uint64
	operation  string
	logger     *slog.Logger
}

func New(logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.Default()
	}

	return &Policy{
		maxRetries: MaxRetries,
		operation:  defaultOperation,
		logger:     logger,
	}
}

// WithOperation returns a copy of the policy whose retries are logged and
// counted under name.
func (p *Policy) WithOperation(name string) *Policy {
	cp := *p
	cp.operation = name

	return &cp
}

func (p *Policy) backOff(ctx context.Context) backoff.BackOff {
	return backoff.WithContext(backoff.WithMaxRetries(&Schedule{}, p.maxRetries), ctx)
}

// Do calls fn until it succeeds, fails with a non-retryable error, the
// attempts run out or ctx is done. When attempts run out the last error is
// returned; when ctx is done its error is returned.
func Do[T any](ctx context.Context, p *Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	attempt := 0

	operation := func() (T, error) {
		attempt++

		res, err := fn(ctx)
		if err != nil && !IsRetryable(err) {
			return res, backoff.Permanent(err)
		}

		return res, err
	}

	notify := func(err error, wait time.Duration) {
		metrics.RetriesTotal.WithLabelValues(p.operation).Inc()
		p.logger.Warn("Retrying rate limited call",
			"operation", p.operation,
			"attempt", attempt,
			"wait", wait,
			"error", err,
		)
	}

	return backoff.RetryNotifyWithData(operation, p.backOff(ctx), notify)
}
