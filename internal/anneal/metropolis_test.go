package anneal

import (
	"math"
	"testing"

	"github.com/inantubek/rmnist/pkg/utils"
)

func TestAcceptProbability(t *testing.T) {
	tests := []struct {
		name  string
		delta float64
		temp  float64
		want  float64
	}{
		{"improving", -100, 80, 1},
		{"equal", 0, 80, 1},
		{"worsening", 100, 80, math.Exp(-1.25)},
		{"hotter accepts more", 100, 160, math.Exp(-0.625)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AcceptProbability(tt.delta, tt.temp)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("AcceptProbability(%v, %v) = %v, want %v", tt.delta, tt.temp, got, tt.want)
			}
		})
	}

	if p := AcceptProbability(100, 80); math.Abs(p-0.2865) > 1e-4 {
		t.Errorf("expected probability near 0.2865, got %v", p)
	}
}

func TestAcceptImprovingTrialIsDeterministic(t *testing.T) {
	// current 9000, trial 9100
	delta := 9000.0 - 9100.0
	for _, u := range []float64{0, 0.5, 0.999999} {
		if !Accept(delta, 80, u) {
			t.Errorf("expected improving trial to be accepted for u=%v", u)
		}
	}
}

func TestAcceptWorseningTrialThreshold(t *testing.T) {
	// current 9100, trial 9000
	delta := 9100.0 - 9000.0
	if !Accept(delta, 80, 0.28) {
		t.Error("expected acceptance below the threshold")
	}
	if Accept(delta, 80, 0.29) {
		t.Error("expected rejection above the threshold")
	}
}

func TestAcceptEmpiricalRate(t *testing.T) {
	const n = 200000
	rng := utils.NewRandSource(42)
	want := AcceptProbability(100, 80)

	accepted := 0
	for i := 0; i < n; i++ {
		if Accept(100, 80, rng.Float64()) {
			accepted++
		}
	}

	rate := float64(accepted) / n
	// about five standard errors
	if math.Abs(rate-want) > 0.005 {
		t.Fatalf("empirical acceptance rate %v, want %v", rate, want)
	}
}
