package server

import (
	"context"
	"testing"
	"time"

	"github.com/inantubek/rmnist/internal/anneal"
	"github.com/inantubek/rmnist/internal/cache"
	"github.com/inantubek/rmnist/internal/evaluator"
	"github.com/inantubek/rmnist/internal/runner"
	"github.com/inantubek/rmnist/internal/space"
	"github.com/inantubek/rmnist/pkg/models"
	"github.com/inantubek/rmnist/pkg/utils"
)

func kernelScore(ctx context.Context, cfg models.Configuration) (models.Score, error) {
	return models.Score{Correct: 9000 + cfg.Kernels1 + cfg.Kernels2, Loss: 0.1}, nil
}

// blockingScore answers the start configuration and blocks on everything else
func blockingScore(ctx context.Context, cfg models.Configuration) (models.Score, error) {
	if cfg == models.DefaultConfiguration() {
		return models.Score{Correct: 9000}, nil
	}
	<-ctx.Done()
	return models.Score{}, ctx.Err()
}

func newTestAnnealer(t *testing.T, ev evaluator.Evaluator, observers ...anneal.Observer) *anneal.Annealer {
	t.Helper()
	moves, err := space.NewMoveSet(space.DefaultSteps())
	if err != nil {
		t.Fatalf("failed to build move set: %v", err)
	}
	sp, err := space.New(models.DefaultConfiguration(), moves)
	if err != nil {
		t.Fatalf("failed to build space: %v", err)
	}
	a, err := anneal.New(sp, cache.New(cache.DefaultQuantum), ev,
		anneal.WithRand(utils.NewRandSource(5)),
		anneal.WithObserver(observers...),
	)
	if err != nil {
		t.Fatalf("failed to build annealer: %v", err)
	}
	return a
}

// completedRunner runs iterations to completion before returning
func completedRunner(t *testing.T, iterations int, observers ...anneal.Observer) *runner.Runner {
	t.Helper()
	r := runner.New(newTestAnnealer(t, evaluator.Func(kernelScore), observers...),
		runner.WithRunID("search-test"),
		runner.WithStopConditions(runner.MaxIterations{Limit: iterations}),
	)
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := r.Wait(ctx); err != nil {
		t.Fatalf("run did not finish: %v", err)
	}
	return r
}

// blockedRunner starts a run whose first trial evaluation never returns until stopped
func blockedRunner(t *testing.T) *runner.Runner {
	t.Helper()
	r := runner.New(newTestAnnealer(t, evaluator.Func(blockingScore)), runner.WithRunID("search-blocked"))
	if err := r.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	t.Cleanup(func() { _ = r.Stop() })
	return r
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
