package replay

import (
	"fmt"

	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/runlog"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/schedule"
)

// #region export
// BuildFixture turns a logged run into a replay fixture. Training epochs
// become the fixture input and the logged scheduler decisions its expected
// results. The start scale is the scale before the first decision.
func BuildFixture(runID string, epochs []runlog.EpochEntry, transitions []runlog.TransitionEntry, cfg schedule.Config) (Fixture, error) {
	if len(epochs) == 0 {
		return Fixture{}, fmt.Errorf("run %s has no training epochs", runID)
	}

	f := Fixture{
		Description: fmt.Sprintf("Run export: %d epochs, %d decisions from run %s", len(epochs), len(transitions), runID),
		Config: FixtureConfig{
			Shrink:    cfg.Shrink,
			ShrinkInc: cfg.ShrinkInc,
			MaxNorm:   cfg.MaxNorm,
		},
		Epochs:          make([]FixtureEpoch, len(epochs)),
		ExpectedResults: make([]FixtureExpectedResult, len(transitions)),
	}
	if len(transitions) > 0 {
		start := transitions[0].ScaleBefore
		f.StartScale = &start
	}
	for i, e := range epochs {
		f.Epochs[i] = FixtureEpoch{
			Epoch:       e.Epoch,
			SuccessRate: e.Summary.SuccessRate,
			LInf:        e.Summary.LInf,
			Dist:        e.Summary.Dist,
		}
	}
	for i, t := range transitions {
		f.ExpectedResults[i] = FixtureExpectedResult{
			Epoch:  t.Epoch,
			Action: t.Action,
			Scale:  t.ScaleAfter,
		}
	}
	return f, nil
}

// InferShrinkInc returns the scale increment of the first logged increase,
// or false when the run never raised the scale.
func InferShrinkInc(transitions []runlog.TransitionEntry) (float64, bool) {
	for _, t := range transitions {
		if t.Action == string(schedule.ActionIncrease) {
			return t.ScaleAfter - t.ScaleBefore, true
		}
	}
	return 0, false
}

// #endregion export
