package replay

import (
	"math"
	"testing"

	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/runlog"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/schedule"
)

func ptr(v float64) *float64 { return &v }

func TestBuildFixtureRoundTripsThroughReplay(t *testing.T) {
	cfg := schedule.DefaultConfig()
	start := schedule.State{Scale: 0.03}

	var entries []runlog.EpochEntry
	var recs []EpochRecord
	for i, r := range []float64{0.4, 0.3, 0.5, 0.5} {
		entries = append(entries, runlog.EpochEntry{
			Epoch:   i + 1,
			Phase:   "train",
			Summary: runlog.SummaryRecord{SuccessRate: ptr(r), LInf: ptr(0.01)},
		})
	}
	recs = FromRunLog(entries)

	var transitions []runlog.TransitionEntry
	s := start
	for _, rec := range recs {
		tr := schedule.Advance(s, rec.Epoch, rec.Metrics, cfg)
		transitions = append(transitions, runlog.FromTransition("run-1", tr, rec.Metrics))
		s = tr.After
	}

	f, err := BuildFixture("run-1", entries, transitions, cfg)
	if err != nil {
		t.Fatalf("BuildFixture: %v", err)
	}
	if f.StartScale == nil || *f.StartScale != 0.03 {
		t.Fatalf("expected start scale 0.03, got %v", f.StartScale)
	}
	if f.Epochs[1].Dist != nil {
		t.Fatal("missing dist should stay null")
	}

	results := Replay(f.StartState(), f.ToEpochRecords(), f.Config.ToConfig())
	if len(results) != len(f.ExpectedResults) {
		t.Fatalf("expected %d results, got %d", len(f.ExpectedResults), len(results))
	}
	for i, r := range results {
		exp := f.ExpectedResults[i]
		if string(r.Action) != exp.Action || math.Abs(r.ScaleAfter-exp.Scale) > 1e-12 {
			t.Errorf("epoch %d: replay %s/%f, logged %s/%f", r.Epoch, r.Action, r.ScaleAfter, exp.Action, exp.Scale)
		}
	}
}

func TestBuildFixtureNeedsEpochs(t *testing.T) {
	if _, err := BuildFixture("empty", nil, nil, schedule.DefaultConfig()); err == nil {
		t.Fatal("expected error for a run without epochs")
	}
}

func TestInferShrinkInc(t *testing.T) {
	trs := []runlog.TransitionEntry{
		{Action: "hold", ScaleBefore: 0.01, ScaleAfter: 0.01},
		{Action: "increase", ScaleBefore: 0.01, ScaleAfter: 0.03},
	}
	inc, ok := InferShrinkInc(trs)
	if !ok || math.Abs(inc-0.02) > 1e-12 {
		t.Fatalf("expected 0.02, got %f (%t)", inc, ok)
	}
	if _, ok := InferShrinkInc(trs[:1]); ok {
		t.Fatal("expected no increment without an increase")
	}
}
