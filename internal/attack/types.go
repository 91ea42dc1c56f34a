package attack

import (
	"errors"

	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/tensor"
	"gonum.org/v1/gonum/mat"
)

// #region norm-policy
// NormPolicy selects the distance term of the loss.
type NormPolicy string

const (
	NormLInf NormPolicy = "linf" // weight · max|adv − clean|
	NormL2   NormPolicy = "l2"   // weight · ‖adv − clean‖₂
)

// #endregion norm-policy

// #region policy
// Policy holds the per-batch attack switches.
type Policy struct {
	RestrictToCorrect bool // drop samples the classifier already gets wrong
	Targeted          bool // success means predicting TargetClass
	TargetClass       int
	OptimizeOnSuccess bool // keep pushing fooled samples with the success loss
	Norm              NormPolicy
	DistWeight        float64
}

// DefaultPolicy mirrors the defaults of the training script.
func DefaultPolicy() Policy {
	return Policy{
		RestrictToCorrect: true,
		Norm:              NormLInf,
		DistWeight:        4.0,
	}
}

// #endregion policy

// #region errors
// ErrEmptyBatch means every sample of a batch was ineligible. The caller skips
// the batch after recording the skip counts.
var ErrEmptyBatch = errors.New("empty batch")

// #endregion errors

// #region filter-result
// FilterResult names the eligible rows of a batch.
type FilterResult struct {
	Kept    tensor.IndexSet // positions in the incoming batch
	Skipped int             // rows dropped by either policy
}

// #endregion filter-result

// #region adversarial
// Bounds is the value range of a normalized image element.
type Bounds struct {
	Min float64
	Max float64
}

// Adversarial is a clamped adversarial block plus the clamp pass-through mask.
type Adversarial struct {
	Samples *mat.Dense
	// Pass[i*cols+j] is true where the unclamped value was inside Bounds, i.e.
	// where gradients flow back to the perturbation.
	Pass []bool
}

// #endregion adversarial

// #region outcome
// Outcome partitions the filtered batch. Fooled and NotFooled are disjoint and
// together cover every row.
type Outcome struct {
	Fooled    tensor.IndexSet
	NotFooled tensor.IndexSet
}

// Selection names the rows each loss term is computed over.
type Selection struct {
	Margin   tensor.IndexSet // classification margin loss
	Success  tensor.IndexSet // success loss (optimize-on-success only)
	Distance tensor.IndexSet // distance term
}

// Optimizable reports whether the batch yields a loss worth a gradient step.
func (s Selection) Optimizable() bool {
	return !s.Margin.Empty() || !s.Success.Empty()
}

// #endregion outcome

// #region loss
// LossInput is everything Compose reads. All blocks are over the filtered batch.
type LossInput struct {
	AdvLogits   *mat.Dense // classifier logits for the adversarial samples
	Adversarial *mat.Dense
	Clean       *mat.Dense
	CleanPred   []int // clean top-1 class per row
	Selection   Selection
}

// Loss is the composed training loss with its analytic gradients.
type Loss struct {
	Margin     float64
	Success    float64
	Distance   float64
	HasMargin  bool
	HasSuccess bool

	// GradLogits is ∂L/∂AdvLogits; GradAdversarial is ∂L_dist/∂Adversarial.
	GradLogits      *mat.Dense
	GradAdversarial *mat.Dense
}

// Classifier returns the classification part of the loss (margin + success),
// the value reported as C_L.
func (l Loss) Classifier() float64 { return l.Margin + l.Success }

// Total returns the value that is minimized.
func (l Loss) Total() float64 { return l.Margin + l.Success + l.Distance }

// #endregion loss
