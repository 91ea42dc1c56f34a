package metrics

import (
	"math"

	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/data"
	"gonum.org/v1/gonum/floats"
)

// #region running-mean
type runningMean struct {
	sum float64
	n   int
}

func (m *runningMean) add(v float64) {
	m.sum += v
	m.n++
}

func (m runningMean) value() float64 {
	if m.n == 0 {
		return math.NaN()
	}
	return m.sum / float64(m.n)
}

// #endregion running-mean

// #region run-metrics
// RunMetrics accumulates one epoch of batch statistics. Use a fresh value per epoch.
type RunMetrics struct {
	total, success   int
	skipped, kept    int
	steps            int
	loss             runningMean
	linf, dist       runningMean
	pert, adv, clean runningMean
}

// AddFilter records the eligibility filter counts of one batch.
func (m *RunMetrics) AddFilter(skipped, kept int) {
	m.skipped += skipped
	m.kept += kept
}

// AddOutcome records how many of the attacked samples were fooled.
func (m *RunMetrics) AddOutcome(fooled, attacked int) {
	m.success += fooled
	m.total += attacked
}

// AddLoss records a batch's classifier loss; batches without a step record 0.
func (m *RunMetrics) AddLoss(v float64) { m.loss.add(v) }

// AddStep counts one optimizer step.
func (m *RunMetrics) AddStep() { m.steps++ }

// AddSample records the distances of one fooled sample.
func (m *RunMetrics) AddSample(s SampleNorm) {
	m.linf.add(s.LInf)
	m.dist.add(s.Ratio)
	m.pert.add(s.PertNorm)
	m.adv.add(s.AdvNorm)
	m.clean.add(s.CleanNorm)
}

// SuccessRate returns fooled/attacked, NaN before any sample was attacked.
func (m *RunMetrics) SuccessRate() float64 {
	return ratio(m.success, m.total)
}

// SkipRate returns skipped/(skipped+kept), NaN before any sample was seen.
func (m *RunMetrics) SkipRate() float64 {
	return ratio(m.skipped, m.skipped+m.kept)
}

// Snapshot returns the running values.
func (m *RunMetrics) Snapshot() Snapshot {
	return Snapshot{
		ClassifierLoss: m.loss.value(),
		SuccessRate:    m.SuccessRate(),
		SkipRate:       m.SkipRate(),
		LInf:           m.linf.value(),
		Dist:           m.dist.value(),
		PertNorm:       m.pert.value(),
		AdvNorm:        m.adv.value(),
		CleanNorm:      m.clean.value(),
		Total:          m.total,
		Success:        m.success,
		Skipped:        m.skipped,
		Kept:           m.kept,
		Steps:          m.steps,
	}
}

// Summary closes the epoch.
func (m *RunMetrics) Summary(epoch int, phase string) Summary {
	return Summary{Epoch: epoch, Phase: phase, Snapshot: m.Snapshot()}
}

func ratio(num, den int) float64 {
	if den == 0 {
		return math.NaN()
	}
	return float64(num) / float64(den)
}

// #endregion run-metrics

// #region sample-norms
// SampleNorms de-normalizes a clean and an adversarial row and measures the
// perturbation between them.
func SampleNorms(clean, adv []float64, norm data.Normalization) SampleNorm {
	c := norm.Denormalize(clean)
	a := norm.Denormalize(adv)
	diff := make([]float64, len(c))
	floats.SubTo(diff, a, c)

	s := SampleNorm{
		LInf:      floats.Norm(diff, math.Inf(1)),
		PertNorm:  floats.Norm(diff, 2),
		CleanNorm: floats.Norm(c, 2),
		AdvNorm:   floats.Norm(a, 2),
	}
	s.Ratio = s.PertNorm / s.CleanNorm
	if s.CleanNorm == 0 {
		s.Ratio = math.NaN()
	}
	return s
}

// #endregion sample-norms
