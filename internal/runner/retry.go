package runner

import (
	"context"
	"errors"

	"github.com/inantubek/rmnist/internal/anneal"
	"github.com/inantubek/rmnist/pkg/config"
	"github.com/inantubek/rmnist/pkg/utils"
)

// RetryPolicy decides whether a failed iteration is attempted again
type RetryPolicy struct {
	enabled    bool
	maxRetries int
	backoff    utils.BackoffStrategy
}

// NewRetryPolicy creates a retry policy from config. A nil config disables retries.
func NewRetryPolicy(cfg *config.RetryPolicy) *RetryPolicy {
	if cfg == nil {
		return &RetryPolicy{}
	}
	return &RetryPolicy{
		enabled:    cfg.Enabled,
		maxRetries: cfg.MaxRetries,
		backoff:    utils.BackoffFromConfig(cfg.Backoff, cfg.BaseMs, cfg.MaxMs),
	}
}

// Enabled reports whether retries are on
func (p *RetryPolicy) Enabled() bool {
	return p.enabled
}

// MaxRetries returns the retry limit
func (p *RetryPolicy) MaxRetries() int {
	return p.maxRetries
}

// ShouldRetry reports whether attempt (the number of retries so far) may be
// followed by another. Only evaluator failures are retried; cancellation is not.
func (p *RetryPolicy) ShouldRetry(attempt int, err error) bool {
	if !p.enabled || attempt >= p.maxRetries {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	return errors.Is(err, anneal.ErrEvaluation)
}

// Wait sleeps for the backoff of the 0-indexed retry attempt, returning early if ctx ends
func (p *RetryPolicy) Wait(ctx context.Context, attempt int) error {
	if p.backoff == nil {
		return ctx.Err()
	}
	return utils.Sleep(ctx, p.backoff, attempt)
}
