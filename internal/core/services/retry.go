package services

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/custodia-labs/docrag/internal/core/domain"
	"github.com/custodia-labs/docrag/internal/logger"
	"github.com/custodia-labs/docrag/internal/metrics"
)

// RetryPolicy bounds how provider calls are retried.
// Only errors matching domain.ErrTransient are retried.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BaseDelay is the backoff before the first retry; it doubles per retry.
	BaseDelay time.Duration

	// MaxDelay caps a single backoff.
	MaxDelay time.Duration

	// AttemptTimeout bounds each attempt. Zero leaves the caller's deadline alone.
	AttemptTimeout time.Duration

	// Limiter paces attempts when set.
	Limiter *rate.Limiter
}

// DefaultRetryPolicy is used for embedding calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  500 * time.Millisecond,
		MaxDelay:   5 * time.Second,
	}
}

func (p RetryPolicy) backoff(retry int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	d := p.BaseDelay << retry
	overflow := retry >= 63 || d>>retry != p.BaseDelay
	if overflow || (p.MaxDelay > 0 && d > p.MaxDelay) {
		return p.MaxDelay
	}
	return d
}

// do runs fn until it succeeds, fails permanently or the budget is spent.
// It returns the number of attempts made.
func (p RetryPolicy) do(
	ctx context.Context,
	provider domain.AIProvider,
	op string,
	fn func(ctx context.Context) error,
) (int, error) {
	attempts := 0
	for retry := 0; ; retry++ {
		if p.Limiter != nil {
			if err := p.Limiter.Wait(ctx); err != nil {
				return attempts, err
			}
		}

		attempts++
		err := p.attempt(ctx, provider, op, fn)
		if err == nil {
			return attempts, nil
		}
		if !errors.Is(err, domain.ErrTransient) || retry >= p.MaxRetries || ctx.Err() != nil {
			return attempts, err
		}

		delay := p.backoff(retry)
		logger.Debug("%s %s attempt %d failed, retrying in %s: %v", provider, op, attempts, delay, err)
		metrics.ProviderRetries.WithLabelValues(string(provider), op).Inc()

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return attempts, err
		case <-timer.C:
		}
	}
}

func (p RetryPolicy) attempt(
	ctx context.Context,
	provider domain.AIProvider,
	op string,
	fn func(ctx context.Context) error,
) error {
	if p.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx)
	metrics.ProviderLatency.WithLabelValues(string(provider), op).Observe(time.Since(start).Seconds())

	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.ProviderRequests.WithLabelValues(string(provider), op, status).Inc()
	return err
}
