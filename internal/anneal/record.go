package anneal

import (
	"time"

	"github.com/inantubek/rmnist/internal/cache"
	"github.com/inantubek/rmnist/pkg/models"
)

// State is the lifecycle stage of an Annealer
type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitialized   State = "initialized"
	StateIterating     State = "iterating"
)

// Record describes one completed iteration
type Record struct {
	Iteration    int                  `json:"iteration"`
	Move         string               `json:"move"`
	Trial        models.Configuration `json:"trial"`
	TrialScore   models.Score         `json:"trial_score"`
	CacheHit     bool                 `json:"cache_hit"`
	Delta        float64              `json:"delta"`
	Probability  float64              `json:"probability"`
	Accepted     bool                 `json:"accepted"`
	Current      models.Configuration `json:"current"`
	CurrentScore models.Score         `json:"current_score"`
	Best         models.Configuration `json:"best"`
	BestScore    models.Score         `json:"best_score"`
	NewBest      bool                 `json:"new_best"`
	Duration     time.Duration        `json:"duration_ns"`
}

// Snapshot is a point-in-time copy of the annealer state.
type Snapshot struct {
	State        State                `json:"state"`
	Iteration    int                  `json:"iteration"`
	Accepted     int                  `json:"accepted"`
	Evaluations  int                  `json:"evaluations"`
	Current      models.Configuration `json:"current"`
	CurrentScore models.Score         `json:"current_score"`
	Best         models.Configuration `json:"best"`
	BestScore    models.Score         `json:"best_score"`
	Cache        cache.Stats          `json:"cache"`
	UpdatedAt    time.Time            `json:"updated_at"`
}

// AcceptanceRate returns the share of iterations whose trial was accepted
func (s Snapshot) AcceptanceRate() float64 {
	if s.Iteration == 0 {
		return 0
	}
	return float64(s.Accepted) / float64(s.Iteration)
}

// Observer receives every emitted record
type Observer interface {
	Observe(Record)
}

// ObserverFunc adapts a function to Observer
type ObserverFunc func(Record)

// Observe calls f
func (f ObserverFunc) Observe(r Record) {
	f(r)
}
