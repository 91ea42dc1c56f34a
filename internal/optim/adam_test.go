package optim

import (
	"math"
	"testing"
)

func TestNewAdamRejectsBadOptions(t *testing.T) {
	cases := []Options{
		{LR: 0, Beta1: 0.5, Beta2: 0.999},
		{LR: 0.1, Beta1: 1, Beta2: 0.999},
		{LR: 0.1, Beta1: 0.5, Beta2: -0.1},
		{LR: 0.1, Beta1: 0.5, Beta2: 0.999, WeightDecay: -1},
	}
	for i, o := range cases {
		if _, err := NewAdam(3, o); err == nil {
			t.Fatalf("case %d: expected error for %+v", i, o)
		}
	}
	if _, err := NewAdam(0, Options{LR: 0.1}); err == nil {
		t.Fatal("expected error for zero parameters")
	}
}

func TestAdamFirstStepIsLR(t *testing.T) {
	a, err := NewAdam(2, Options{LR: 0.01, Beta1: 0.5, Beta2: 0.999})
	if err != nil {
		t.Fatal(err)
	}
	params := []float64{1, -1}
	if err := a.Step(params, []float64{3, -0.2}); err != nil {
		t.Fatal(err)
	}
	// bias-corrected first step moves each parameter by lr·sign(g)
	if math.Abs(params[0]-0.99) > 1e-6 || math.Abs(params[1]+0.99) > 1e-6 {
		t.Fatalf("unexpected params after one step: %v", params)
	}
	if a.Steps() != 1 {
		t.Fatalf("expected 1 step, got %d", a.Steps())
	}
}

func TestAdamWeightDecayPullsToZero(t *testing.T) {
	a, _ := NewAdam(1, Options{LR: 0.01, Beta1: 0.5, Beta2: 0.999, WeightDecay: 0.01})
	params := []float64{2}
	for i := 0; i < 10; i++ {
		if err := a.Step(params, []float64{0}); err != nil {
			t.Fatal(err)
		}
	}
	if params[0] >= 2 {
		t.Fatalf("weight decay did not shrink the parameter: %g", params[0])
	}
}

func TestAdamMinimizesQuadratic(t *testing.T) {
	a, _ := NewAdam(1, Options{LR: 0.05, Beta1: 0.9, Beta2: 0.999})
	x := []float64{3}
	for i := 0; i < 2000; i++ {
		if err := a.Step(x, []float64{2 * (x[0] - 1)}); err != nil {
			t.Fatal(err)
		}
	}
	if math.Abs(x[0]-1) > 5e-2 {
		t.Fatalf("expected convergence to 1, got %g", x[0])
	}
}

func TestAdamSkipsNonFiniteGradients(t *testing.T) {
	a, _ := NewAdam(2, Options{LR: 0.01, Beta1: 0.5, Beta2: 0.999})
	params := []float64{1, 1}
	if err := a.Step(params, []float64{math.NaN(), 1}); err != nil {
		t.Fatal(err)
	}
	if params[0] != 1 {
		t.Fatalf("NaN gradient moved the parameter: %g", params[0])
	}
	if err := a.Step(params, []float64{1}); err == nil {
		t.Fatal("expected length mismatch error")
	}
}
