// Package driver runs the epoch loop: per-batch attack and generator update,
// per-epoch scale scheduling, and the final evaluation pass.
package driver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/attack"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/checkpoint"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/config"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/data"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/metrics"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/model"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/report"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/runlog"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/schedule"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/tensor"
	"gonum.org/v1/gonum/mat"
)

// #region trainer
// Optimizer updates params in place from grads.
type Optimizer interface {
	Step(params, grads []float64) error
}

// Trainer owns one training run. Collaborators below the blank line are
// optional.
type Trainer struct {
	Classifier model.Classifier
	Generator  model.Generator
	Optimizer  Optimizer
	Policy     attack.Policy
	Schedule   schedule.Config
	Bounds     attack.Bounds
	Norm       data.Normalization
	RNG        *rand.Rand
	Classes    int // number of classifier outputs, 0 if unknown
	RunID      string

	Reporter           Reporter
	RunLog             RunLog
	Checkpoints        Checkpoints
	Telemetry          Observer
	Every              int    // checkpoint period in epochs, 0 disables
	ParentCheckpoint   string // checkpoint the run resumed from
	EvalArchiveBatches int    // evaluation batches whose fooled samples are archived
}

// Validate checks the wiring and the policy against the classifier.
func (t *Trainer) Validate() error {
	switch {
	case t.Classifier == nil:
		return errors.New("trainer: no classifier")
	case t.Generator == nil:
		return errors.New("trainer: no generator")
	case t.Optimizer == nil:
		return errors.New("trainer: no optimizer")
	case t.RNG == nil:
		return errors.New("trainer: no rng")
	case t.Bounds.Min > t.Bounds.Max:
		return &config.ConfigurationError{Field: "bounds", Reason: fmt.Sprintf("min %g above max %g", t.Bounds.Min, t.Bounds.Max)}
	}
	if _, err := config.ParseNormPolicy(string(t.Policy.Norm)); err != nil {
		return err
	}
	if t.Classes > 0 {
		return checkClasses(t.Policy, t.Classes)
	}
	return nil
}

// checkClasses rejects classifiers without a runner-up class and target
// classes the classifier cannot predict.
func checkClasses(p attack.Policy, classes int) error {
	if classes < 2 {
		return &config.ConfigurationError{Field: "classes", Reason: fmt.Sprintf("classifier has %d classes, need at least 2", classes)}
	}
	if p.Targeted && (p.TargetClass < 0 || p.TargetClass >= classes) {
		return &config.ConfigurationError{
			Field:  "target_class",
			Reason: fmt.Sprintf("%d out of range for %d classes", p.TargetClass, classes),
		}
	}
	return nil
}

// #endregion trainer

// #region batch
// RunBatch attacks one batch at the given scale. With train set, the
// generator takes a gradient step when the composed loss is optimizable.
func (t *Trainer) RunBatch(ctx context.Context, b tensor.Batch, scale float64, train bool) (BatchResult, error) {
	if _, cols := b.Images.Dims(); cols != t.Generator.OutputSize() {
		return BatchResult{}, fmt.Errorf("image width %d does not match generator output %d", cols, t.Generator.OutputSize())
	}

	cleanLogits, err := t.Classifier.Predict(ctx, b.Images)
	if err != nil {
		return BatchResult{}, fmt.Errorf("classify clean: %w", err)
	}
	if _, k := cleanLogits.Dims(); k != t.Classes {
		if err := checkClasses(t.Policy, k); err != nil {
			return BatchResult{}, err
		}
	}
	fr, err := attack.Filter(b.Labels, tensor.ArgMax(cleanLogits), t.Policy)
	if errors.Is(err, attack.ErrEmptyBatch) {
		return BatchResult{Kind: BatchSkipped, Filter: fr}, nil
	}
	if err != nil {
		return BatchResult{}, fmt.Errorf("filter: %w", err)
	}

	kept := b.Select(fr.Kept)
	cleanPred := tensor.SelectInts(tensor.ArgMax(cleanLogits), fr.Kept)
	n := kept.Len()

	noise := model.SampleNoise(t.RNG, n, t.Generator.Latent())
	adv := attack.Construct(kept.Images, t.Generator.Generate(noise), scale, t.Bounds)
	advLogits, err := t.Classifier.Predict(ctx, adv.Samples)
	if err != nil {
		return BatchResult{}, fmt.Errorf("classify adversarial: %w", err)
	}
	advPred := tensor.ArgMax(advLogits)
	outcome := attack.Partition(cleanPred, advPred, t.Policy)

	res := BatchResult{Kind: BatchNoStep, Filter: fr, Outcome: outcome}
	for k, i := range outcome.Fooled {
		clean, a := kept.Images.RawRowView(i), adv.Samples.RawRowView(i)
		res.Norms = append(res.Norms, metrics.SampleNorms(clean, a, t.Norm))
		res.Fooled = append(res.Fooled, report.FooledSample{
			Index:     k,
			Clean:     clean,
			Adv:       a,
			CleanPred: cleanPred[i],
			AdvPred:   advPred[i],
		})
	}
	if !train {
		return res, nil
	}

	loss, ok := attack.Compose(attack.LossInput{
		AdvLogits:   advLogits,
		Adversarial: adv.Samples,
		Clean:       kept.Images,
		CleanPred:   cleanPred,
		Selection:   attack.Select(outcome, n, t.Policy),
	}, t.Policy)
	if !ok {
		return res, nil
	}

	gradImages, err := t.Classifier.InputGradient(ctx, adv.Samples, loss.GradLogits)
	if err != nil {
		return BatchResult{}, fmt.Errorf("classifier gradient: %w", err)
	}
	var gradAdv mat.Dense
	gradAdv.Add(gradImages, loss.GradAdversarial)

	t.Generator.ZeroGrad()
	t.Generator.Backward(noise, attack.PerturbationGradient(&gradAdv, adv, scale))
	if err := t.Optimizer.Step(t.Generator.Params(), t.Generator.Grads()); err != nil {
		return BatchResult{}, fmt.Errorf("optimizer step: %w", err)
	}

	res.Kind = BatchStepped
	res.Loss = loss
	return res, nil
}

// #endregion batch

// #region epochs
// TrainEpoch runs one pass over the training stream at a fixed scale.
func (t *Trainer) TrainEpoch(ctx context.Context, stream data.Stream, epoch int, scale float64) (metrics.Summary, error) {
	return t.epoch(ctx, stream, report.PhaseTrain, epoch, scale)
}

// EvalEpoch runs one pass over the evaluation stream without updating the
// generator.
func (t *Trainer) EvalEpoch(ctx context.Context, stream data.Stream, epoch int, scale float64) (metrics.Summary, error) {
	return t.epoch(ctx, stream, report.PhaseEval, epoch, scale)
}

func (t *Trainer) epoch(ctx context.Context, stream data.Stream, phase string, epoch int, scale float64) (metrics.Summary, error) {
	var m metrics.RunMetrics
	train := phase == report.PhaseTrain
	stream.Reset()

	for idx := 0; ; idx++ {
		if err := ctx.Err(); err != nil {
			return metrics.Summary{}, err
		}
		b, ok := stream.Next()
		if !ok {
			break
		}
		res, err := t.RunBatch(ctx, b, scale, train)
		if err != nil {
			return metrics.Summary{}, fmt.Errorf("%s epoch %d batch %d: %w", phase, epoch, idx, err)
		}

		m.AddFilter(res.Filter.Skipped, res.Filter.Kept.Len())
		if t.Telemetry != nil {
			t.Telemetry.ObserveBatch(phase, res.Filter.Skipped, res.Outcome.Fooled.Len(), res.Outcome.NotFooled.Len(), res.Kind == BatchStepped)
		}
		if res.Kind == BatchSkipped {
			continue
		}

		m.AddOutcome(res.Outcome.Fooled.Len(), res.Filter.Kept.Len())
		for _, s := range res.Norms {
			m.AddSample(s)
		}
		if train {
			if res.Kind == BatchStepped {
				m.AddLoss(res.Loss.Classifier())
				m.AddStep()
			} else {
				m.AddLoss(0)
			}
		}

		if err := t.archive(phase, epoch, idx, res.Fooled); err != nil {
			return metrics.Summary{}, err
		}
		if t.Reporter != nil {
			if err := t.Reporter.Batch(phase, epoch, idx, stream.Len(), m.Snapshot(), scale); err != nil {
				return metrics.Summary{}, err
			}
		}
	}

	sum := m.Summary(epoch, phase)
	if t.Telemetry != nil {
		t.Telemetry.ObserveEpoch(sum, scale)
	}
	if t.RunLog != nil {
		if err := t.RunLog.Epoch(sum, scale); err != nil {
			return metrics.Summary{}, err
		}
	}
	return sum, nil
}

func (t *Trainer) archive(phase string, epoch, batch int, fooled []report.FooledSample) error {
	if t.Reporter == nil {
		return nil
	}
	for _, f := range fooled {
		var err error
		switch {
		case phase == report.PhaseTrain && batch == 0:
			err = t.Reporter.TrainSample(epoch, f)
		case phase == report.PhaseEval && batch < t.EvalArchiveBatches:
			err = t.Reporter.EvalSample(batch, f)
		}
		if err != nil {
			return fmt.Errorf("archive sample: %w", err)
		}
	}
	return nil
}

// #endregion epochs

// #region run
// Run trains for up to epochs epochs starting from start, then runs exactly
// one evaluation pass with the last epoch number and scale. A stop decision
// from the scheduler ends training early.
func (t *Trainer) Run(ctx context.Context, trainStream, evalStream data.Stream, epochs int, start schedule.State) (RunResult, error) {
	if err := t.Validate(); err != nil {
		return RunResult{}, err
	}
	if epochs < 1 {
		return RunResult{}, &config.ConfigurationError{Field: "epochs", Reason: "must be positive"}
	}

	res := RunResult{Final: start}
	state := start
	for epoch := 1; epoch <= epochs; epoch++ {
		if err := t.printf("epoch: %d", epoch); err != nil {
			return res, err
		}
		sum, err := t.TrainEpoch(ctx, trainStream, epoch, state.Scale)
		if err != nil {
			return res, err
		}
		res.Train = append(res.Train, sum)
		res.LastEpoch = epoch

		m := schedule.EpochMetrics{SuccessRate: sum.SuccessRate, LInf: sum.LInf, Dist: sum.Dist}
		tr := schedule.Advance(state, epoch, m, t.Schedule)
		res.Transitions = append(res.Transitions, tr)
		if t.Telemetry != nil {
			t.Telemetry.ObserveTransition(tr)
		}
		if t.RunLog != nil {
			if err := t.RunLog.Transition(tr, m); err != nil {
				return res, err
			}
		}
		state = tr.After

		if t.Every > 0 && epoch%t.Every == 0 {
			if err := t.saveCheckpoint(epoch, state.Scale, sum); err != nil {
				return res, err
			}
		}
		if tr.Stopped() {
			if err := t.printf("stop after epoch %d: %s", epoch, tr.Reason); err != nil {
				return res, err
			}
			res.Stopped = true
			res.StopReason = tr.Reason
			break
		}
	}
	res.Final = state

	eval, err := t.EvalEpoch(ctx, evalStream, res.LastEpoch, state.Scale)
	if err != nil {
		return res, err
	}
	res.Eval = eval
	return res, nil
}

func (t *Trainer) saveCheckpoint(epoch int, scale float64, sum metrics.Summary) error {
	if t.Checkpoints == nil {
		return nil
	}
	summary, err := json.Marshal(runlog.FromSummary(sum))
	if err != nil {
		return fmt.Errorf("marshal checkpoint metrics: %w", err)
	}
	params := make([]float64, len(t.Generator.Params()))
	copy(params, t.Generator.Params())

	ck, err := t.Checkpoints.Save(checkpoint.Checkpoint{
		ParentID:    t.ParentCheckpoint,
		RunID:       t.RunID,
		Epoch:       epoch,
		Latent:      t.Generator.Latent(),
		OutputSize:  t.Generator.OutputSize(),
		Params:      params,
		Scale:       scale,
		MetricsJSON: string(summary),
	})
	if err != nil {
		return fmt.Errorf("save checkpoint epoch %d: %w", epoch, err)
	}
	t.ParentCheckpoint = ck.ID
	return nil
}

func (t *Trainer) printf(format string, args ...any) error {
	if t.Reporter == nil {
		return nil
	}
	if err := t.Reporter.Printf(format, args...); err != nil {
		return fmt.Errorf("report: %w", err)
	}
	return nil
}

// #endregion run
