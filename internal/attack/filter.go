package attack

import (
	"fmt"

	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/tensor"
)

// #region filter
// Filter applies the eligibility policies to a batch: first the
// correct-prediction filter, then the target-class filter on the survivors.
// labels are ground truth, predicted the classifier's top-1 on clean images.
// When nothing survives the result still carries the skip count and the
// error wraps ErrEmptyBatch.
func Filter(labels, predicted []int, p Policy) (FilterResult, error) {
	n := len(labels)
	if len(predicted) != n {
		return FilterResult{}, fmt.Errorf("filter: %d labels but %d predictions", n, len(predicted))
	}

	kept := tensor.Range(n)
	if p.RestrictToCorrect {
		kept = keep(kept, func(i int) bool { return predicted[i] == labels[i] })
	}
	if p.Targeted {
		kept = keep(kept, func(i int) bool { return labels[i] != p.TargetClass })
	}

	res := FilterResult{Kept: kept, Skipped: n - len(kept)}
	if len(kept) == 0 {
		return res, fmt.Errorf("%w: %d of %d samples ineligible", ErrEmptyBatch, res.Skipped, n)
	}
	return res, nil
}

func keep(s tensor.IndexSet, ok func(int) bool) tensor.IndexSet {
	out := make(tensor.IndexSet, 0, len(s))
	for _, i := range s {
		if ok(i) {
			out = append(out, i)
		}
	}
	return out
}

// #endregion filter
