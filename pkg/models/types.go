package models

import (
	"fmt"
	"math"
)

// RunStatus represents the status of a search run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusStopped   RunStatus = "stopped"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s RunStatus) Terminal() bool {
	return s == RunStatusStopped || s == RunStatusCompleted || s == RunStatusFailed
}

// Configuration is one point of the hyperparameter search space.
// It is a value type: moves return a new Configuration and never edit one in place.
type Configuration struct {
	WeightDecay  float64 `json:"weight_decay" yaml:"weight_decay"`
	LearningRate float64 `json:"lr" yaml:"lr"`
	Kernels1     int     `json:"nk1" yaml:"nk1"`
	Kernels2     int     `json:"nk2" yaml:"nk2"`
	EnsembleSize int     `json:"ensemble_size" yaml:"ensemble_size"`
}

// DefaultConfiguration returns the starting point used when none is configured.
func DefaultConfiguration() Configuration {
	return Configuration{
		WeightDecay:  0.001,
		LearningRate: 0.01,
		Kernels1:     10,
		Kernels2:     20,
		EnsembleSize: 5,
	}
}

// Validate checks that every field lies inside its domain.
func (c Configuration) Validate() error {
	if !(c.WeightDecay > 0) || math.IsInf(c.WeightDecay, 0) {
		return fmt.Errorf("weight_decay must be a finite positive number, got %v", c.WeightDecay)
	}
	if !(c.LearningRate > 0) || math.IsInf(c.LearningRate, 0) {
		return fmt.Errorf("lr must be a finite positive number, got %v", c.LearningRate)
	}
	if c.Kernels1 < 1 {
		return fmt.Errorf("nk1 must be positive, got %d", c.Kernels1)
	}
	if c.Kernels2 < 1 {
		return fmt.Errorf("nk2 must be positive, got %d", c.Kernels2)
	}
	if c.EnsembleSize < 1 {
		return fmt.Errorf("ensemble_size must be positive, got %d", c.EnsembleSize)
	}
	return nil
}

func (c Configuration) String() string {
	return fmt.Sprintf("{weight_decay:%g lr:%g nk1:%d nk2:%d ensemble_size:%d}",
		c.WeightDecay, c.LearningRate, c.Kernels1, c.Kernels2, c.EnsembleSize)
}

// Score is the fitness reported by an evaluator: the number of correct
// validation predictions and the validation loss.
type Score struct {
	Correct int     `json:"correct"`
	Loss    float64 `json:"loss"`
}

// Energy is the scalar the acceptance rule works on. Higher is better.
func (s Score) Energy() float64 {
	return float64(s.Correct)
}

// Compare orders scores: more correct predictions first, then lower loss.
// It returns 1 if s is better than other, -1 if worse and 0 if equal.
func (s Score) Compare(other Score) int {
	switch {
	case s.Correct > other.Correct:
		return 1
	case s.Correct < other.Correct:
		return -1
	case s.Loss < other.Loss:
		return 1
	case s.Loss > other.Loss:
		return -1
	}
	return 0
}

// Better reports whether s is strictly better than other.
func (s Score) Better(other Score) bool {
	return s.Compare(other) > 0
}

// Accuracy returns the share of correct predictions out of total.
func (s Score) Accuracy(total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(s.Correct) / float64(total)
}
