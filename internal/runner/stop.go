package runner

import (
	"fmt"
	"time"

	"github.com/inantubek/rmnist/internal/anneal"
	"github.com/inantubek/rmnist/pkg/config"
)

// StopCondition decides after each iteration whether the driver should stop.
// The search itself never terminates; every condition is opt-in.
type StopCondition interface {
	// ShouldStop inspects the latest record and the time since Start
	ShouldStop(rec anneal.Record, elapsed time.Duration) (bool, string)
	// Name returns the name of the condition
	Name() string
}

// MaxIterations stops once the iteration count reaches Limit
type MaxIterations struct {
	Limit int
}

func (m MaxIterations) Name() string {
	return "max_iterations"
}

func (m MaxIterations) ShouldStop(rec anneal.Record, _ time.Duration) (bool, string) {
	if rec.Iteration >= m.Limit {
		return true, fmt.Sprintf("reached %d iterations", m.Limit)
	}
	return false, ""
}

// NoImprovement stops after Patience iterations without a new best.
// The start configuration counts as the best found at iteration 0.
type NoImprovement struct {
	Patience int
	lastBest int
}

// NewNoImprovement creates a patience-based condition
func NewNoImprovement(patience int) *NoImprovement {
	return &NoImprovement{Patience: patience}
}

func (n *NoImprovement) Name() string {
	return "no_improvement"
}

func (n *NoImprovement) ShouldStop(rec anneal.Record, _ time.Duration) (bool, string) {
	if rec.NewBest {
		n.lastBest = rec.Iteration
		return false, ""
	}
	since := rec.Iteration - n.lastBest
	if since >= n.Patience {
		return true, fmt.Sprintf("no improvement for %d iterations (best at iteration %d)", since, n.lastBest)
	}
	return false, ""
}

// TimeBudget stops at the first iteration boundary after Budget has elapsed.
// A running evaluation is never cut short.
type TimeBudget struct {
	Budget time.Duration
}

func (b TimeBudget) Name() string {
	return "time_budget"
}

func (b TimeBudget) ShouldStop(_ anneal.Record, elapsed time.Duration) (bool, string) {
	if elapsed >= b.Budget {
		return true, fmt.Sprintf("time budget of %s exhausted", b.Budget)
	}
	return false, ""
}

// ConditionsFromConfig builds the conditions enabled in cfg
func ConditionsFromConfig(cfg config.Runner) ([]StopCondition, error) {
	var conditions []StopCondition
	if cfg.MaxIterations > 0 {
		conditions = append(conditions, MaxIterations{Limit: cfg.MaxIterations})
	}
	if cfg.Patience > 0 {
		conditions = append(conditions, NewNoImprovement(cfg.Patience))
	}
	budget, err := cfg.GetTimeBudget()
	if err != nil {
		return nil, fmt.Errorf("invalid time budget: %w", err)
	}
	if budget > 0 {
		conditions = append(conditions, TimeBudget{Budget: budget})
	}
	return conditions, nil
}
