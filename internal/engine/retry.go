package engine

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/agenticaivc/intentgraph/pkg/graph"
)

// RetryPolicy implements spec.md §4.6 step 4: baseDelay × backoffMultiplier
// ^(attempt−1), capped, with retry_on_errors/no_retry_errors matched by
// error-kind equality (the §9 open-question decision recorded in
// DESIGN.md) rather than substring matching on the error message.
type RetryPolicy struct {
	MaxAttempts       int
	BackoffMultiplier int
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	RetryOnErrors     map[graph.ErrorKind]bool
	NoRetryErrors     map[graph.ErrorKind]bool
	OnRetry           func(attempt int, err error)
}

// NewRetryPolicy builds a RetryPolicy from the graph's declared retry
// config.
func NewRetryPolicy(cfg graph.RetryConfig, baseDelay, maxDelay time.Duration) *RetryPolicy {
	rp := &RetryPolicy{
		MaxAttempts:       cfg.MaxAttempts,
		BackoffMultiplier: cfg.BackoffMultiplier,
		BaseDelay:         baseDelay,
		MaxDelay:          maxDelay,
		RetryOnErrors:     kindSet(cfg.RetryOnErrors),
		NoRetryErrors:     kindSet(cfg.NoRetryErrors),
	}
	if rp.MaxAttempts <= 0 {
		rp.MaxAttempts = 1
	}
	if rp.BackoffMultiplier <= 0 {
		rp.BackoffMultiplier = 1
	}
	return rp
}

func kindSet(kinds []string) map[graph.ErrorKind]bool {
	set := make(map[graph.ErrorKind]bool, len(kinds))
	for _, k := range kinds {
		set[graph.ErrorKind(k)] = true
	}
	return set
}

// ShouldRetry classifies err against the configured kind allow/deny lists.
func (rp *RetryPolicy) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	kind := classify(err)

	if len(rp.NoRetryErrors) > 0 && rp.NoRetryErrors[kind] {
		return false
	}
	if len(rp.RetryOnErrors) > 0 {
		return rp.RetryOnErrors[kind]
	}
	return true
}

func classify(err error) graph.ErrorKind {
	var engErr *graph.EngineError
	if errors.As(err, &engErr) {
		return engErr.Kind
	}
	return graph.KindInternal
}

// Delay computes baseDelay × backoffMultiplier^(attempt-1), capped at
// MaxDelay.
func (rp *RetryPolicy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}
	multiplier := math.Pow(float64(rp.BackoffMultiplier), float64(attempt-1))
	delay := time.Duration(float64(rp.BaseDelay) * multiplier)
	if delay > rp.MaxDelay {
		delay = rp.MaxDelay
	}
	return delay
}

// Execute runs fn with retry/backoff, honoring ctx cancellation during
// sleeps. attempt in OnRetry is 1-based, the attempt that just failed.
func (rp *RetryPolicy) Execute(ctx context.Context, fn func(attempt int) error) error {
	var lastErr error

	for attempt := 1; attempt <= rp.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return &graph.EngineError{Kind: graph.KindCancelled, Err: ctx.Err()}
		default:
		}

		err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt >= rp.MaxAttempts || !rp.ShouldRetry(err) {
			break
		}

		if rp.OnRetry != nil {
			rp.OnRetry(attempt, err)
		}

		delay := rp.Delay(attempt)
		if delay > 0 {
			select {
			case <-ctx.Done():
				return &graph.EngineError{Kind: graph.KindCancelled, Err: ctx.Err()}
			case <-time.After(delay):
			}
		}
	}

	return lastErr
}
