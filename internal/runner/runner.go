// Package runner drives an annealer in the background until a stop condition
// fires, the search is stopped, or an evaluation fails past its retries.
package runner

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/inantubek/rmnist/internal/anneal"
	"github.com/inantubek/rmnist/pkg/logger"
	"github.com/inantubek/rmnist/pkg/models"
	"github.com/inantubek/rmnist/pkg/utils"
)

var (
	ErrAlreadyRunning = errors.New("search is already running")
	ErrNotRunning     = errors.New("search is not running")
	ErrRunTerminal    = errors.New("search has finished")
)

// Status describes the driver and the latest annealer state
type Status struct {
	RunID      string           `json:"run_id"`
	Status     models.RunStatus `json:"status"`
	Reason     string           `json:"reason,omitempty"`
	Error      string           `json:"error,omitempty"`
	StartedAt  time.Time        `json:"started_at,omitempty"`
	FinishedAt time.Time        `json:"finished_at,omitempty"`
	Retries    int              `json:"retries"`
	Search     anneal.Snapshot  `json:"search"`
}

// Option configures a Runner
type Option func(*Runner)

// WithRunID overrides the generated run ID
func WithRunID(id string) Option {
	return func(r *Runner) {
		r.id = id
	}
}

// WithStopConditions adds stop conditions
func WithStopConditions(conditions ...StopCondition) Option {
	return func(r *Runner) {
		r.conditions = append(r.conditions, conditions...)
	}
}

// WithRetryPolicy sets the retry policy for failed iterations
func WithRetryPolicy(p *RetryPolicy) Option {
	return func(r *Runner) {
		r.retry = p
	}
}

// WithErrorHook registers a function called for every failed iteration
func WithErrorHook(fn func(context.Context, error)) Option {
	return func(r *Runner) {
		r.onError = append(r.onError, fn)
	}
}

// WithFinishHook registers a function called once the run reaches a terminal status
func WithFinishHook(fn func(Status)) Option {
	return func(r *Runner) {
		r.onFinish = append(r.onFinish, fn)
	}
}

// Runner owns the background loop around one annealer
type Runner struct {
	id         string
	annealer   *anneal.Annealer
	conditions []StopCondition
	retry      *RetryPolicy
	onError    []func(context.Context, error)
	onFinish   []func(Status)

	mu       sync.Mutex
	status   models.RunStatus
	reason   string
	err      error
	started  time.Time
	finished time.Time
	retries  int
	cancel   context.CancelFunc
	done     chan struct{}
}

// New creates a runner in the pending state
func New(a *anneal.Annealer, opts ...Option) *Runner {
	r := &Runner{
		id:       utils.GenerateRunID(),
		annealer: a,
		retry:    NewRetryPolicy(nil),
		status:   models.RunStatusPending,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ID returns the run ID
func (r *Runner) ID() string {
	return r.id
}

// Annealer returns the driven annealer
func (r *Runner) Annealer() *anneal.Annealer {
	return r.annealer
}

// Start begins iterating in a new goroutine
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case r.status == models.RunStatusRunning:
		return ErrAlreadyRunning
	case r.status.Terminal():
		return ErrRunTerminal
	}

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.status = models.RunStatusRunning
	r.started = time.Now()

	logger.Info("search started", "run_id", r.id, "stop_conditions", len(r.conditions))
	go r.loop(ctx)
	return nil
}

// Stop cancels the loop; the run ends as stopped once the current
// evaluation returns.
func (r *Runner) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status != models.RunStatusRunning {
		return ErrNotRunning
	}
	r.reason = "stop requested"
	r.cancel()
	return nil
}

// Done is closed when the run reaches a terminal status
func (r *Runner) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the run finishes or ctx ends
func (r *Runner) Wait(ctx context.Context) (Status, error) {
	select {
	case <-r.done:
		return r.Status(), nil
	case <-ctx.Done():
		return r.Status(), ctx.Err()
	}
}

// Status returns the current status
func (r *Runner) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusLocked()
}

func (r *Runner) statusLocked() Status {
	st := Status{
		RunID:      r.id,
		Status:     r.status,
		Reason:     r.reason,
		StartedAt:  r.started,
		FinishedAt: r.finished,
		Retries:    r.retries,
		Search:     r.annealer.Snapshot(),
	}
	if r.err != nil {
		st.Error = r.err.Error()
	}
	return st
}

func (r *Runner) loop(ctx context.Context) {
	defer close(r.done)

	attempt := 0
	for {
		rec, err := r.annealer.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				r.finish(models.RunStatusStopped, "", nil)
				return
			}
			for _, fn := range r.onError {
				fn(ctx, err)
			}
			if !r.retry.ShouldRetry(attempt, err) {
				r.finish(models.RunStatusFailed, "evaluation failed", err)
				return
			}
			attempt++
			r.mu.Lock()
			r.retries++
			r.mu.Unlock()
			logger.Warn("retrying failed iteration", "run_id", r.id, "attempt", attempt, "max_retries", r.retry.MaxRetries(), "error", err)
			if werr := r.retry.Wait(ctx, attempt-1); werr != nil {
				r.finish(models.RunStatusStopped, "", nil)
				return
			}
			continue
		}
		attempt = 0

		elapsed := time.Since(r.started)
		for _, c := range r.conditions {
			if stop, reason := c.ShouldStop(rec, elapsed); stop {
				r.finish(models.RunStatusCompleted, reason, nil)
				return
			}
		}
	}
}

func (r *Runner) finish(status models.RunStatus, reason string, err error) {
	r.mu.Lock()
	r.status = status
	if reason != "" || r.reason == "" {
		r.reason = reason
	}
	if r.reason == "" && status == models.RunStatusStopped {
		r.reason = "context cancelled"
	}
	r.err = err
	r.finished = time.Now()
	r.cancel()
	st := r.statusLocked()
	r.mu.Unlock()

	logger.Info("search finished",
		"run_id", st.RunID,
		"status", st.Status,
		"reason", st.Reason,
		"iterations", st.Search.Iteration,
		"best_correct", st.Search.BestScore.Correct,
		"best", st.Search.Best.String(),
	)
	if err != nil {
		logger.Error("search failed", "run_id", st.RunID, "error", err)
	}

	for _, fn := range r.onFinish {
		fn(st)
	}
}
