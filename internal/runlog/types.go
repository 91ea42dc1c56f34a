package runlog

import (
	"math"
	"time"

	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/metrics"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/schedule"
)

// #region epoch-entry
// EpochEntry is a single row in the epoch_log table.
type EpochEntry struct {
	RunID     string
	Epoch     int
	Phase     string // "train" | "eval"
	Scale     float64
	Summary   SummaryRecord
	CreatedAt time.Time
}

// SummaryRecord is the JSON form of an epoch summary. NaN values are
// stored as null.
type SummaryRecord struct {
	ClassifierLoss *float64 `json:"classifier_loss"`
	SuccessRate    *float64 `json:"success_rate"`
	SkipRate       *float64 `json:"skip_rate"`
	LInf           *float64 `json:"linf"`
	Dist           *float64 `json:"dist"`
	PertNorm       *float64 `json:"pert_norm"`
	AdvNorm        *float64 `json:"adv_norm"`
	CleanNorm      *float64 `json:"clean_norm"`

	Total   int `json:"total"`
	Success int `json:"success"`
	Skipped int `json:"skipped"`
	Kept    int `json:"kept"`
	Steps   int `json:"steps"`
}

// FromSummary converts a finished epoch summary.
func FromSummary(s metrics.Summary) SummaryRecord {
	return SummaryRecord{
		ClassifierLoss: finite(s.ClassifierLoss),
		SuccessRate:    finite(s.SuccessRate),
		SkipRate:       finite(s.SkipRate),
		LInf:           finite(s.LInf),
		Dist:           finite(s.Dist),
		PertNorm:       finite(s.PertNorm),
		AdvNorm:        finite(s.AdvNorm),
		CleanNorm:      finite(s.CleanNorm),
		Total:          s.Total,
		Success:        s.Success,
		Skipped:        s.Skipped,
		Kept:           s.Kept,
		Steps:          s.Steps,
	}
}

// Metrics returns what the scale scheduler reads from this record.
func (r SummaryRecord) Metrics() schedule.EpochMetrics {
	return schedule.EpochMetrics{
		SuccessRate: orNaN(r.SuccessRate),
		LInf:        orNaN(r.LInf),
		Dist:        orNaN(r.Dist),
	}
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func orNaN(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

// #endregion epoch-entry

// #region transition-entry
// TransitionEntry is a single row in the scale_transitions table.
type TransitionEntry struct {
	RunID       string
	Epoch       int
	Phase       string // "probing" | "steady"
	Action      string // "hold" | "increase" | "stop"
	Reason      string
	ScaleBefore float64
	ScaleAfter  float64
	Metric      *float64 // success rate the scheduler saw
	CreatedAt   time.Time
}

// FromTransition converts a scheduler transition.
func FromTransition(runID string, t schedule.Transition, m schedule.EpochMetrics) TransitionEntry {
	return TransitionEntry{
		RunID:       runID,
		Epoch:       t.Epoch,
		Phase:       string(t.Phase),
		Action:      string(t.Action),
		Reason:      t.Reason,
		ScaleBefore: t.Before.Scale,
		ScaleAfter:  t.After.Scale,
		Metric:      finite(m.SuccessRate),
	}
}

// #endregion transition-entry
