package replay

import (
	"math"

	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/runlog"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/schedule"
)

// #region types
// EpochRecord is one recorded training epoch as the scale scheduler saw it.
type EpochRecord struct {
	Epoch   int
	Metrics schedule.EpochMetrics
}

// ReplayResult captures the scheduler's decision for one replayed epoch.
type ReplayResult struct {
	Epoch       int
	Phase       schedule.Phase
	Action      schedule.Action
	Reason      string
	ScaleBefore float64
	ScaleAfter  float64
}

// ReplaySummary provides aggregate stats from a replay run.
type ReplaySummary struct {
	TotalEpochs int
	Holds       int
	Increases   int
	Stops       int
	FinalScale  float64
}

// #endregion types

// #region replay
// Replay feeds recorded epochs through the scale scheduler in order. Like the
// trainer, it ends after the first stop decision.
func Replay(start schedule.State, epochs []EpochRecord, cfg schedule.Config) []ReplayResult {
	current := start
	results := make([]ReplayResult, 0, len(epochs))

	for _, e := range epochs {
		t := schedule.Advance(current, e.Epoch, e.Metrics, cfg)
		results = append(results, ReplayResult{
			Epoch:       e.Epoch,
			Phase:       t.Phase,
			Action:      t.Action,
			Reason:      t.Reason,
			ScaleBefore: t.Before.Scale,
			ScaleAfter:  t.After.Scale,
		})
		current = t.After
		if t.Stopped() {
			break
		}
	}
	return results
}

// Summarize computes aggregate stats from replay results.
func Summarize(results []ReplayResult, start schedule.State) ReplaySummary {
	s := ReplaySummary{TotalEpochs: len(results), FinalScale: start.Scale}
	for _, r := range results {
		switch r.Action {
		case schedule.ActionHold:
			s.Holds++
		case schedule.ActionIncrease:
			s.Increases++
		case schedule.ActionStop:
			s.Stops++
		}
		s.FinalScale = r.ScaleAfter
	}
	return s
}

// #endregion replay

// #region from-runlog
// FromRunLog converts logged training epochs into replay input.
func FromRunLog(entries []runlog.EpochEntry) []EpochRecord {
	out := make([]EpochRecord, len(entries))
	for i, e := range entries {
		out[i] = EpochRecord{Epoch: e.Epoch, Metrics: e.Summary.Metrics()}
	}
	return out
}

func nanIfNil(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

// #endregion from-runlog
