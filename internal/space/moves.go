package space

import (
	"fmt"
	"math"

	"github.com/inantubek/rmnist/pkg/models"
)

// Move is a named, pure transformation of a configuration into a neighbor.
// Apply must be total and must never return an out-of-domain configuration.
type Move struct {
	Name  string
	Apply func(models.Configuration) models.Configuration
}

// Steps controls the size of every move and the domain bounds the moves enforce.
type Steps struct {
	RateFactor    float64 // multiplicative step for weight decay and learning rate
	RateFloor     float64
	RateCeiling   float64
	KernelStep    int
	KernelFloor   int
	EnsembleStep  int // 0 leaves the ensemble size out of the move set
	EnsembleFloor int
}

// DefaultSteps returns the reference move sizes: rates scaled by 10^0.25 and
// kernel counts stepped by 2 with a floor of 2. The rate floor equals the
// default cache quantum so clamped rates keep distinct cache keys.
func DefaultSteps() Steps {
	return Steps{
		RateFactor:    math.Pow(10, 0.25),
		RateFloor:     1e-6,
		RateCeiling:   1e2,
		KernelStep:    2,
		KernelFloor:   2,
		EnsembleStep:  0,
		EnsembleFloor: 1,
	}
}

// Validate checks that the steps describe a usable move set.
func (s Steps) Validate() error {
	if s.RateFactor <= 1 {
		return fmt.Errorf("rate factor must be greater than 1, got %v", s.RateFactor)
	}
	if s.RateFloor <= 0 || s.RateCeiling <= s.RateFloor {
		return fmt.Errorf("rate bounds must satisfy 0 < floor < ceiling, got [%v, %v]", s.RateFloor, s.RateCeiling)
	}
	if s.KernelStep <= 0 || s.KernelFloor < 1 {
		return fmt.Errorf("kernel step and floor must be positive, got step %d floor %d", s.KernelStep, s.KernelFloor)
	}
	if s.EnsembleStep < 0 || s.EnsembleFloor < 1 {
		return fmt.Errorf("ensemble step must be >= 0 and floor >= 1, got step %d floor %d", s.EnsembleStep, s.EnsembleFloor)
	}
	return nil
}

// Apply runs move on config. It exists so call sites read as an operation on the space.
func Apply(move Move, config models.Configuration) models.Configuration {
	return move.Apply(config)
}

// scaleRate multiplies a positive rate and clamps the result into [floor, ceiling].
func scaleRate(value, factor, floor, ceiling float64) float64 {
	return math.Min(ceiling, math.Max(floor, value*factor))
}

// stepCount adds delta to a count, refusing any step that would land below floor.
func stepCount(value, delta, floor int) int {
	next := value + delta
	if next < floor {
		return value
	}
	return next
}

func rateMoves(s Steps) []Move {
	return []Move{
		{Name: "weight_decay_up", Apply: func(c models.Configuration) models.Configuration {
			c.WeightDecay = scaleRate(c.WeightDecay, s.RateFactor, s.RateFloor, s.RateCeiling)
			return c
		}},
		{Name: "weight_decay_down", Apply: func(c models.Configuration) models.Configuration {
			c.WeightDecay = scaleRate(c.WeightDecay, 1/s.RateFactor, s.RateFloor, s.RateCeiling)
			return c
		}},
		{Name: "lr_up", Apply: func(c models.Configuration) models.Configuration {
			c.LearningRate = scaleRate(c.LearningRate, s.RateFactor, s.RateFloor, s.RateCeiling)
			return c
		}},
		{Name: "lr_down", Apply: func(c models.Configuration) models.Configuration {
			c.LearningRate = scaleRate(c.LearningRate, 1/s.RateFactor, s.RateFloor, s.RateCeiling)
			return c
		}},
	}
}

func kernelMoves(s Steps) []Move {
	return []Move{
		{Name: "k1_up", Apply: func(c models.Configuration) models.Configuration {
			c.Kernels1 = stepCount(c.Kernels1, s.KernelStep, s.KernelFloor)
			return c
		}},
		{Name: "k1_down", Apply: func(c models.Configuration) models.Configuration {
			c.Kernels1 = stepCount(c.Kernels1, -s.KernelStep, s.KernelFloor)
			return c
		}},
		{Name: "k2_up", Apply: func(c models.Configuration) models.Configuration {
			c.Kernels2 = stepCount(c.Kernels2, s.KernelStep, s.KernelFloor)
			return c
		}},
		{Name: "k2_down", Apply: func(c models.Configuration) models.Configuration {
			c.Kernels2 = stepCount(c.Kernels2, -s.KernelStep, s.KernelFloor)
			return c
		}},
	}
}

func ensembleMoves(s Steps) []Move {
	if s.EnsembleStep == 0 {
		return nil
	}
	return []Move{
		{Name: "ensemble_up", Apply: func(c models.Configuration) models.Configuration {
			c.EnsembleSize = stepCount(c.EnsembleSize, s.EnsembleStep, s.EnsembleFloor)
			return c
		}},
		{Name: "ensemble_down", Apply: func(c models.Configuration) models.Configuration {
			c.EnsembleSize = stepCount(c.EnsembleSize, -s.EnsembleStep, s.EnsembleFloor)
			return c
		}},
	}
}
