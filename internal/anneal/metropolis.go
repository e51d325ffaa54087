package anneal

import "math"

// DefaultEnergyScale is the constant temperature of the acceptance rule.
const DefaultEnergyScale = 80.0

// AcceptProbability returns the chance that a trial is accepted when moving
// to it changes the energy by delta (current minus trial) at temperature t.
func AcceptProbability(delta, t float64) float64 {
	if delta <= 0 {
		return 1
	}
	return math.Exp(-delta / t)
}

// Accept applies the Metropolis criterion against a uniform sample u in [0, 1).
// Trials that do not lower the energy are always accepted.
func Accept(delta, t, u float64) bool {
	if delta <= 0 {
		return true
	}
	return u < AcceptProbability(delta, t)
}
