package utils

import (
	"context"
	"math"
	"time"
)

// BackoffStrategy represents a retry backoff strategy
type BackoffStrategy interface {
	// NextDelay returns the delay for the given attempt number (0-indexed)
	NextDelay(attempt int) time.Duration
}

// BackoffKind names how the delay grows between attempts
type BackoffKind string

const (
	BackoffConstant    BackoffKind = "constant"
	BackoffLinear      BackoffKind = "linear"
	BackoffExponential BackoffKind = "exponential"
)

const defaultMaxDelay = 30 * time.Second

// Backoff is a BackoffStrategy described by its kind and bounds.
type Backoff struct {
	Kind       BackoffKind
	Base       time.Duration
	Max        time.Duration
	Multiplier float64 // exponential only

	jitter Rand
}

// ConstantBackoff waits delay before every attempt
func ConstantBackoff(delay time.Duration) Backoff {
	return Backoff{Kind: BackoffConstant, Base: delay, Max: delay}
}

// LinearBackoff waits base*(attempt+1), capped at max
func LinearBackoff(base, max time.Duration) Backoff {
	return Backoff{Kind: BackoffLinear, Base: base, Max: max}
}

// ExponentialBackoff waits base*multiplier^attempt, capped at max.
// A non-positive multiplier means 2.
func ExponentialBackoff(base, max time.Duration, multiplier float64) Backoff {
	if multiplier <= 0 {
		multiplier = 2
	}
	return Backoff{Kind: BackoffExponential, Base: base, Max: max, Multiplier: multiplier}
}

// WithJitter scales every delay by a factor drawn from rng in [0.5, 1.5)
func (b Backoff) WithJitter(rng Rand) Backoff {
	b.jitter = rng
	return b
}

// NextDelay implements BackoffStrategy
func (b Backoff) NextDelay(attempt int) time.Duration {
	var delay float64
	switch b.Kind {
	case BackoffConstant:
		delay = float64(b.Base)
	case BackoffLinear:
		delay = float64(b.Base) * float64(attempt+1)
	default:
		delay = float64(b.Base) * math.Pow(b.Multiplier, float64(attempt))
	}

	if b.Max > 0 && delay > float64(b.Max) {
		delay = float64(b.Max)
	}
	if b.jitter != nil {
		delay *= 0.5 + b.jitter.Float64()
	}
	return time.Duration(delay)
}

// BackoffFromConfig creates a backoff strategy from config parameters.
// Unknown kinds fall back to jittered exponential; a zero max means 30s.
func BackoffFromConfig(kind string, baseMs int, maxMs int) Backoff {
	base := time.Duration(baseMs) * time.Millisecond
	max := time.Duration(maxMs) * time.Millisecond
	if max == 0 {
		max = defaultMaxDelay
	}

	switch BackoffKind(kind) {
	case BackoffConstant:
		return ConstantBackoff(base)
	case BackoffLinear:
		return LinearBackoff(base, max)
	default:
		return ExponentialBackoff(base, max, 2).WithJitter(NewRandSource(0))
	}
}

// Sleep waits for the strategy's delay for attempt, or until ctx is done.
func Sleep(ctx context.Context, strategy BackoffStrategy, attempt int) error {
	delay := strategy.NextDelay(attempt)
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
