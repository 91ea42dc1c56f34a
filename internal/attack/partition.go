package attack

import "github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/tensor"

// #region partition
// Partition splits the filtered batch into fooled and not-fooled rows.
// Targeted: fooled iff the adversarial top-1 is the target class.
// Untargeted: fooled iff the adversarial top-1 differs from the clean top-1.
func Partition(cleanPred, advPred []int, p Policy) Outcome {
	o := Outcome{
		Fooled:    tensor.IndexSet{},
		NotFooled: tensor.IndexSet{},
	}
	for i, adv := range advPred {
		var fooled bool
		if p.Targeted {
			fooled = adv == p.TargetClass
		} else {
			fooled = adv != cleanPred[i]
		}
		if fooled {
			o.Fooled = append(o.Fooled, i)
		} else {
			o.NotFooled = append(o.NotFooled, i)
		}
	}
	return o
}

// #endregion partition

// #region select
// Select applies the success-handling policy.
// Disabled: fooled rows leave the computation; margin and distance run over
// the not-fooled rows only.
// Enabled: margin runs over the not-fooled rows, the success loss over the
// fooled rows, and the distance over the whole filtered batch.
func Select(o Outcome, n int, p Policy) Selection {
	if !p.OptimizeOnSuccess {
		return Selection{
			Margin:   o.NotFooled,
			Success:  tensor.IndexSet{},
			Distance: o.NotFooled,
		}
	}
	return Selection{
		Margin:   o.NotFooled,
		Success:  o.Fooled,
		Distance: tensor.Range(n),
	}
}

// #endregion select
