package schedule

import (
	"math"
	"testing"
)

func TestPhaseOf(t *testing.T) {
	if PhaseOf(1) != PhaseProbing || PhaseOf(2) != PhaseProbing || PhaseOf(3) != PhaseSteady {
		t.Fatal("epochs 1-2 warm up, epoch 3 on is steady")
	}
}

func TestAdvanceCollectsHistory(t *testing.T) {
	cfg := DefaultConfig()
	s := NewState(cfg)

	t1 := Advance(s, 1, EpochMetrics{SuccessRate: 0.2}, cfg)
	if t1.Action != ActionHold || !t1.After.HasCurr || t1.After.CurrMetric != 0.2 || t1.After.HasPrev {
		t.Fatalf("epoch 1: unexpected transition %+v", t1)
	}
	t2 := Advance(t1.After, 2, EpochMetrics{SuccessRate: 0.1}, cfg)
	if t2.Action != ActionHold {
		t.Fatalf("epoch 2 must not raise the scale, got %s", t2.Action)
	}
	if t2.After.PrevMetric != 0.2 || t2.After.CurrMetric != 0.1 {
		t.Fatalf("epoch 2: expected prev 0.2 curr 0.1, got %+v", t2.After)
	}
	if t2.After.Scale != cfg.Shrink {
		t.Fatalf("scale changed during probing: %g", t2.After.Scale)
	}
}

func TestAdvanceIncreasesOnPlateau(t *testing.T) {
	cfg := DefaultConfig()
	s := State{Scale: 0.01, PrevMetric: 0.3, CurrMetric: 0.3, HasPrev: true, HasCurr: true}

	tr := Advance(s, 3, EpochMetrics{SuccessRate: 0.5}, cfg)
	if tr.Action != ActionIncrease {
		t.Fatalf("expected increase on an equal rate, got %s", tr.Action)
	}
	if math.Abs(tr.After.Scale-(s.Scale+cfg.ShrinkInc)) > 1e-15 {
		t.Fatalf("expected exactly one increment, got %g", tr.After.Scale)
	}
	// odd epochs past 1 do not record the rate
	if tr.After.CurrMetric != 0.3 {
		t.Fatalf("epoch 3 must not record its rate, got %g", tr.After.CurrMetric)
	}
}

func TestAdvanceHoldsOnImprovement(t *testing.T) {
	cfg := DefaultConfig()
	s := State{Scale: 0.01, PrevMetric: 0.2, CurrMetric: 0.2, HasPrev: true, HasCurr: true}
	tr := Advance(s, 4, EpochMetrics{SuccessRate: 0.4}, cfg)
	if tr.Action != ActionHold || tr.After.Scale != 0.01 {
		t.Fatalf("expected hold on improvement, got %+v", tr)
	}
}

func TestAdvanceScaleIsMonotone(t *testing.T) {
	cfg := DefaultConfig()
	s := NewState(cfg)
	rates := []float64{0.5, 0.4, 0.4, 0.3, 0.6, 0.6, 0.2, 0.9, 0.1}
	for i, r := range rates {
		tr := Advance(s, i+1, EpochMetrics{SuccessRate: r}, cfg)
		if tr.After.Scale < s.Scale {
			t.Fatalf("epoch %d: scale decreased %g -> %g", i+1, s.Scale, tr.After.Scale)
		}
		if d := tr.After.Scale - s.Scale; d != 0 && math.Abs(d-cfg.ShrinkInc) > 1e-12 {
			t.Fatalf("epoch %d: scale moved by %g", i+1, d)
		}
		s = tr.After
	}
}

func TestAdvanceStops(t *testing.T) {
	cfg := DefaultConfig()
	s := State{Scale: 0.05, CurrMetric: 0.4, HasCurr: true}

	cases := []struct {
		name string
		m    EpochMetrics
	}{
		{"linf", EpochMetrics{SuccessRate: 0.5, LInf: cfg.MaxNorm + 0.01}},
		{"l2 ratio", EpochMetrics{SuccessRate: 0.5, Dist: cfg.MaxNorm + 0.01}},
		{"all fooled", EpochMetrics{SuccessRate: 1}},
	}
	for _, tc := range cases {
		tr := Advance(s, 4, tc.m, cfg)
		if !tr.Stopped() {
			t.Fatalf("%s: expected stop, got %s", tc.name, tr.Action)
		}
		if tr.After != s {
			t.Fatalf("%s: stop must not touch the state", tc.name)
		}
		if tr.Reason == "" {
			t.Fatalf("%s: expected a reason", tc.name)
		}
	}
}

func TestAdvanceNaNNeverStops(t *testing.T) {
	cfg := DefaultConfig()
	s := NewState(cfg)
	nan := math.NaN()
	tr := Advance(s, 1, EpochMetrics{SuccessRate: 0, LInf: nan, Dist: nan}, cfg)
	if tr.Stopped() {
		t.Fatalf("NaN norms stopped the run: %s", tr.Reason)
	}
	tr = Advance(tr.After, 2, EpochMetrics{SuccessRate: nan, LInf: nan, Dist: nan}, cfg)
	if tr.Stopped() {
		t.Fatalf("NaN rate stopped the run: %s", tr.Reason)
	}
}

func TestAdvanceAtMaxNormContinues(t *testing.T) {
	cfg := DefaultConfig()
	tr := Advance(NewState(cfg), 1, EpochMetrics{SuccessRate: 0.5, LInf: cfg.MaxNorm, Dist: cfg.MaxNorm}, cfg)
	if tr.Stopped() {
		t.Fatal("a norm equal to the budget must not stop")
	}
}
