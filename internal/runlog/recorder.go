package runlog

import (
	"database/sql"

	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/metrics"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/schedule"
)

// #region recorder
// Recorder binds the run log to one run.
type Recorder struct {
	DB    *sql.DB
	RunID string
}

// Epoch logs a finished epoch summary.
func (r Recorder) Epoch(s metrics.Summary, scale float64) error {
	return LogEpoch(r.DB, EpochEntry{
		RunID:   r.RunID,
		Epoch:   s.Epoch,
		Phase:   s.Phase,
		Scale:   scale,
		Summary: FromSummary(s),
	})
}

// Transition logs a scheduler decision.
func (r Recorder) Transition(t schedule.Transition, m schedule.EpochMetrics) error {
	return LogTransition(r.DB, FromTransition(r.RunID, t, m))
}

// #endregion recorder
