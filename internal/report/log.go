// Package report turns iteration records into log lines and summary statistics.
package report

import (
	"log/slog"

	"github.com/inantubek/rmnist/internal/anneal"
	"github.com/inantubek/rmnist/pkg/logger"
)

// LogObserver writes one structured line per iteration
type LogObserver struct {
	log *slog.Logger
}

// NewLogObserver logs to l, or to the default logger when l is nil
func NewLogObserver(l *slog.Logger) *LogObserver {
	if l == nil {
		l = logger.Default
	}
	return &LogObserver{log: l}
}

// Observe implements anneal.Observer
func (o *LogObserver) Observe(r anneal.Record) {
	attrs := []any{
		"iteration", r.Iteration,
		"move", r.Move,
		"trial", r.Trial.String(),
		"correct", r.TrialScore.Correct,
		"loss", r.TrialScore.Loss,
		"cache_hit", r.CacheHit,
		"accepted", r.Accepted,
		"probability", r.Probability,
		"current_correct", r.CurrentScore.Correct,
		"best_correct", r.BestScore.Correct,
		"duration", r.Duration,
	}
	if r.NewBest {
		o.log.Info("new best configuration", append(attrs, "best", r.Best.String())...)
		return
	}
	o.log.Info("iteration", attrs...)
}
