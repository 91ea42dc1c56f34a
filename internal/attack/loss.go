package attack

import (
	"fmt"
	"math"

	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/tensor"
	"gonum.org/v1/gonum/mat"
)

// #region compose
// Compose builds the training loss for one batch. The boolean is false when
// the selection leaves nothing to optimize; no gradient step is taken then
// and the returned Loss is zero.
//
// Margin term, over Selection.Margin:
//
//	mean(log P(curr) − log P(ref))
//
// where curr is the adversarial top-1 and ref the target class (targeted) or
// the adversarial runner-up (untargeted).
//
// Success term, over Selection.Success:
//
//	−mean(log max P − log P(clean prediction))
//
// Distance term, over Selection.Distance, per Policy.Norm.
//
// The policy must be validated first: a norm other than NormLInf or NormL2
// panics, and the logits need at least two classes with the target class
// among them.
func Compose(in LossInput, p Policy) (Loss, bool) {
	sel := in.Selection
	if !sel.Optimizable() {
		return Loss{}, false
	}

	r, k := in.AdvLogits.Dims()
	_, d := in.Adversarial.Dims()
	l := Loss{
		GradLogits:      mat.NewDense(r, k, nil),
		GradAdversarial: mat.NewDense(r, d, nil),
	}

	if !sel.Margin.Empty() {
		l.Margin = marginTerm(in.AdvLogits, sel.Margin, p, l.GradLogits)
		l.HasMargin = true
	}
	if p.OptimizeOnSuccess && !sel.Success.Empty() {
		l.Success = successTerm(in.AdvLogits, in.CleanPred, sel.Success, l.GradLogits)
		l.HasSuccess = true
	}
	if !sel.Distance.Empty() {
		l.Distance = distanceTerm(in.Adversarial, in.Clean, sel.Distance, p, l.GradAdversarial)
	}
	return l, true
}

// #endregion compose

// #region terms
func marginTerm(logits *mat.Dense, rows tensor.IndexSet, p Policy, grad *mat.Dense) float64 {
	inv := 1 / float64(len(rows))
	var sum float64
	for _, i := range rows {
		row := logits.RawRowView(i)
		curr, second := tensor.TopTwo(row)
		ref := second
		if p.Targeted {
			ref = p.TargetClass
		}
		ls := tensor.LogSoftmax(row)
		sum += ls[curr] - ls[ref]
		// ∂(log P_a − log P_b)/∂z = e_a − e_b
		g := grad.RawRowView(i)
		g[curr] += inv
		g[ref] -= inv
	}
	return sum * inv
}

func successTerm(logits *mat.Dense, cleanPred []int, rows tensor.IndexSet, grad *mat.Dense) float64 {
	inv := 1 / float64(len(rows))
	var sum float64
	for _, i := range rows {
		row := logits.RawRowView(i)
		top, _ := tensor.TopTwo(row)
		pred := cleanPred[i]
		ls := tensor.LogSoftmax(row)
		sum += ls[top] - ls[pred]
		g := grad.RawRowView(i)
		g[top] -= inv
		g[pred] += inv
	}
	return -sum * inv
}

func distanceTerm(adv, clean *mat.Dense, rows tensor.IndexSet, p Policy, grad *mat.Dense) float64 {
	w := p.DistWeight
	switch p.Norm {
	case NormL2:
		var sumSq float64
		for _, i := range rows {
			a, c := adv.RawRowView(i), clean.RawRowView(i)
			for j := range a {
				diff := a[j] - c[j]
				sumSq += diff * diff
			}
		}
		norm := math.Sqrt(sumSq)
		if norm == 0 {
			return 0
		}
		for _, i := range rows {
			a, c, g := adv.RawRowView(i), clean.RawRowView(i), grad.RawRowView(i)
			for j := range a {
				g[j] += w * (a[j] - c[j]) / norm
			}
		}
		return w * norm
	case NormLInf:
		best, bi, bj := -1.0, -1, -1
		for _, i := range rows {
			a, c := adv.RawRowView(i), clean.RawRowView(i)
			for j := range a {
				if diff := math.Abs(a[j] - c[j]); diff > best {
					best, bi, bj = diff, i, j
				}
			}
		}
		if bi < 0 {
			return 0
		}
		if diff := adv.At(bi, bj) - clean.At(bi, bj); diff != 0 {
			grad.Set(bi, bj, grad.At(bi, bj)+w*math.Copysign(1, diff))
		}
		return w * best
	default:
		panic(fmt.Sprintf("attack: unknown norm policy %q", p.Norm))
	}
}

// #endregion terms
