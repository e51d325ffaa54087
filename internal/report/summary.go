package report

import (
	"sync"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/inantubek/rmnist/internal/anneal"
	"github.com/inantubek/rmnist/pkg/models"
)

// Summary accumulates statistics over the records it observes.
// Score statistics cover freshly evaluated trials only; cache hits would
// count the same configuration more than once.
type Summary struct {
	mu           sync.RWMutex
	correct      []float64
	iterations   int
	accepted     int
	cacheHits    int
	improvements int
	best         models.Configuration
	bestScore    models.Score
}

// SummaryReport is a point-in-time view of a Summary
type SummaryReport struct {
	Iterations     int                  `json:"iterations"`
	Evaluated      int                  `json:"evaluated"`
	Accepted       int                  `json:"accepted"`
	CacheHits      int                  `json:"cache_hits"`
	Improvements   int                  `json:"improvements"`
	AcceptanceRate float64              `json:"acceptance_rate"`
	CacheHitRate   float64              `json:"cache_hit_rate"`
	MeanCorrect    float64              `json:"mean_correct"`
	StdDevCorrect  float64              `json:"stddev_correct"`
	MinCorrect     float64              `json:"min_correct"`
	MaxCorrect     float64              `json:"max_correct"`
	Best           models.Configuration `json:"best"`
	BestScore      models.Score         `json:"best_score"`
}

// NewSummary creates an empty summary
func NewSummary() *Summary {
	return &Summary{correct: make([]float64, 0, 64)}
}

// Observe implements anneal.Observer
func (s *Summary) Observe(r anneal.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.iterations++
	if r.Accepted {
		s.accepted++
	}
	if r.CacheHit {
		s.cacheHits++
	} else {
		s.correct = append(s.correct, float64(r.TrialScore.Correct))
	}
	if r.NewBest {
		s.improvements++
	}
	s.best = r.Best
	s.bestScore = r.BestScore
}

// Report computes the current statistics
func (s *Summary) Report() SummaryReport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rep := SummaryReport{
		Iterations:   s.iterations,
		Evaluated:    len(s.correct),
		Accepted:     s.accepted,
		CacheHits:    s.cacheHits,
		Improvements: s.improvements,
		Best:         s.best,
		BestScore:    s.bestScore,
	}
	if s.iterations > 0 {
		rep.AcceptanceRate = float64(s.accepted) / float64(s.iterations)
		rep.CacheHitRate = float64(s.cacheHits) / float64(s.iterations)
	}

	switch len(s.correct) {
	case 0:
	case 1:
		rep.MeanCorrect = s.correct[0]
		rep.MinCorrect = s.correct[0]
		rep.MaxCorrect = s.correct[0]
	default:
		rep.MeanCorrect, rep.StdDevCorrect = stat.MeanStdDev(s.correct, nil)
		rep.MinCorrect = floats.Min(s.correct)
		rep.MaxCorrect = floats.Max(s.correct)
	}
	return rep
}
