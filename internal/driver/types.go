package driver

import (
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/attack"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/checkpoint"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/metrics"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/report"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/schedule"
)

// #region batch-result
// BatchKind tags what happened to one batch.
type BatchKind string

const (
	BatchSkipped BatchKind = "skipped" // every sample was ineligible
	BatchNoStep  BatchKind = "no_step" // attacked, nothing to optimize (or evaluation)
	BatchStepped BatchKind = "stepped" // attacked and the generator was updated
)

// BatchResult is the outcome of one batch.
type BatchResult struct {
	Kind    BatchKind
	Filter  attack.FilterResult
	Outcome attack.Outcome
	Loss    attack.Loss // zero unless Kind == BatchStepped
	Fooled  []report.FooledSample
	Norms   []metrics.SampleNorm // one per fooled sample
}

// #endregion batch-result

// #region collaborators
// Reporter receives progress lines and archived samples.
type Reporter interface {
	Batch(phase string, epoch, batch, batches int, s metrics.Snapshot, scale float64) error
	TrainSample(epoch int, f report.FooledSample) error
	EvalSample(batch int, f report.FooledSample) error
	Printf(format string, args ...any) error
}

// RunLog persists epoch summaries and scheduler decisions.
type RunLog interface {
	Epoch(s metrics.Summary, scale float64) error
	Transition(t schedule.Transition, m schedule.EpochMetrics) error
}

// Checkpoints persists generator snapshots.
type Checkpoints interface {
	Save(ck checkpoint.Checkpoint) (checkpoint.Checkpoint, error)
}

// Observer receives telemetry.
type Observer interface {
	ObserveBatch(phase string, skipped, fooled, notFooled int, stepped bool)
	ObserveEpoch(s metrics.Summary, scale float64)
	ObserveTransition(t schedule.Transition)
}

// #endregion collaborators

// #region run-result
// RunResult summarizes a full run.
type RunResult struct {
	LastEpoch   int
	Stopped     bool
	StopReason  string
	Final       schedule.State
	Train       []metrics.Summary
	Transitions []schedule.Transition
	Eval        metrics.Summary
}

// #endregion run-result
