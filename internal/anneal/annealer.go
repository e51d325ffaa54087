// Package anneal runs a constant-temperature Metropolis search over a
// configuration space, resolving scores through a memoizing cache.
package anneal

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/inantubek/rmnist/internal/cache"
	"github.com/inantubek/rmnist/internal/evaluator"
	"github.com/inantubek/rmnist/internal/space"
	"github.com/inantubek/rmnist/pkg/logger"
	"github.com/inantubek/rmnist/pkg/models"
	"github.com/inantubek/rmnist/pkg/utils"
)

// Option configures an Annealer
type Option func(*Annealer)

// WithEnergyScale sets the constant temperature
func WithEnergyScale(t float64) Option {
	return func(a *Annealer) {
		a.energyScale = t
	}
}

// WithRand sets the random source used for move selection and acceptance
func WithRand(rng utils.Rand) Option {
	return func(a *Annealer) {
		a.rng = rng
	}
}

// WithObserver registers observers
func WithObserver(obs ...Observer) Option {
	return func(a *Annealer) {
		a.observers = append(a.observers, obs...)
	}
}

// Annealer holds the whole search state. Iterations are strictly sequential;
// Snapshot may be called from any goroutine.
type Annealer struct {
	space       *space.Space
	cache       *cache.Cache
	evaluator   evaluator.Evaluator
	rng         utils.Rand
	energyScale float64

	mu           sync.Mutex
	observers    []Observer
	state        State
	iteration    int
	accepted     int
	evaluations  int
	currentScore models.Score
	best         models.Configuration
	bestScore    models.Score

	snapshot atomic.Pointer[Snapshot]
}

// New creates an annealer. The cache may be shared with other annealers.
func New(sp *space.Space, c *cache.Cache, ev evaluator.Evaluator, opts ...Option) (*Annealer, error) {
	if sp == nil {
		return nil, fmt.Errorf("configuration space is required")
	}
	if c == nil {
		return nil, fmt.Errorf("cache is required")
	}
	if ev == nil {
		return nil, fmt.Errorf("evaluator is required")
	}

	a := &Annealer{
		space:       sp,
		cache:       c,
		evaluator:   ev,
		energyScale: DefaultEnergyScale,
		state:       StateUninitialized,
	}
	for _, opt := range opts {
		opt(a)
	}
	if !(a.energyScale > 0) {
		return nil, fmt.Errorf("energy scale must be positive, got %v", a.energyScale)
	}
	if a.rng == nil {
		a.rng = utils.NewRandSource(0)
	}

	a.best = sp.Current()
	a.publish()
	return a, nil
}

// AddObserver registers observers after construction
func (a *Annealer) AddObserver(obs ...Observer) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.observers = append(a.observers, obs...)
}

// EnergyScale returns the temperature
func (a *Annealer) EnergyScale() float64 {
	return a.energyScale
}

// Cache returns the score cache
func (a *Annealer) Cache() *cache.Cache {
	return a.cache
}

// Initialize resolves the score of the start configuration and makes it both
// current and best. It is a no-op once it has succeeded.
func (a *Annealer) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.initialize(ctx)
}

func (a *Annealer) initialize(ctx context.Context) error {
	if a.state != StateUninitialized {
		return nil
	}

	start := a.space.Current()
	score, hit, err := a.resolve(ctx, start)
	if err != nil {
		return err
	}

	a.currentScore = score
	a.best = start
	a.bestScore = score
	a.state = StateInitialized
	a.publish()

	logger.Info("search initialized",
		"config", start.String(),
		"correct", score.Correct,
		"loss", score.Loss,
		"cache_hit", hit,
	)
	return nil
}

// Next runs one iteration and returns its record. On error nothing changes:
// no record is emitted and the cache is left as it was.
func (a *Annealer) Next(ctx context.Context) (Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	if err := a.initialize(ctx); err != nil {
		return Record{}, err
	}

	began := time.Now()
	move, trial := a.space.Propose(a.rng)

	trialScore, hit, err := a.resolve(ctx, trial)
	if err != nil {
		return Record{}, err
	}

	delta := a.currentScore.Energy() - trialScore.Energy()
	probability := AcceptProbability(delta, a.energyScale)
	accepted := true
	if delta > 0 {
		accepted = Accept(delta, a.energyScale, a.rng.Float64())
	}

	if accepted {
		a.space.MoveTo(trial)
		a.currentScore = trialScore
		a.accepted++
	}

	newBest := trialScore.Better(a.bestScore)
	if newBest {
		a.best = trial
		a.bestScore = trialScore
	}

	a.iteration++
	a.state = StateIterating

	rec := Record{
		Iteration:    a.iteration,
		Move:         move.Name,
		Trial:        trial,
		TrialScore:   trialScore,
		CacheHit:     hit,
		Delta:        delta,
		Probability:  probability,
		Accepted:     accepted,
		Current:      a.space.Current(),
		CurrentScore: a.currentScore,
		Best:         a.best,
		BestScore:    a.bestScore,
		NewBest:      newBest,
		Duration:     time.Since(began),
	}
	a.publish()

	for _, obs := range a.observers {
		obs.Observe(rec)
	}
	return rec, nil
}

// Iterations returns a lazy sequence of records. Each pull runs one
// iteration; the sequence ends after the first error or when the consumer
// stops. Ranging over it again continues from the current state.
func (a *Annealer) Iterations(ctx context.Context) iter.Seq2[Record, error] {
	return func(yield func(Record, error) bool) {
		for {
			rec, err := a.Next(ctx)
			if err != nil {
				yield(Record{}, err)
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
	}
}

// Snapshot returns the latest published state without blocking
func (a *Annealer) Snapshot() Snapshot {
	return *a.snapshot.Load()
}

// resolve returns the cached score for cfg or evaluates and caches it
func (a *Annealer) resolve(ctx context.Context, cfg models.Configuration) (models.Score, bool, error) {
	if score, ok := a.cache.Lookup(cfg); ok {
		return score, true, nil
	}

	score, err := a.evaluator.Evaluate(ctx, cfg)
	if err != nil {
		logger.Warn("evaluation failed", "config", cfg.String(), "error", err)
		return models.Score{}, false, &EvaluationError{Config: cfg, Err: err}
	}

	a.cache.Insert(cfg, score)
	a.evaluations++
	return score, false, nil
}

// publish stores a fresh snapshot; callers hold mu or own a
func (a *Annealer) publish() {
	a.snapshot.Store(&Snapshot{
		State:        a.state,
		Iteration:    a.iteration,
		Accepted:     a.accepted,
		Evaluations:  a.evaluations,
		Current:      a.space.Current(),
		CurrentScore: a.currentScore,
		Best:         a.best,
		BestScore:    a.bestScore,
		Cache:        a.cache.Stats(),
		UpdatedAt:    time.Now(),
	})
}
