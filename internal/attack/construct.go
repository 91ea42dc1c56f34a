package attack

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// #region construct
// Construct builds clamp(perturbation·scale + images, Min, Max). The result has
// the shape of images and every element lies in [Min, Max].
func Construct(images, perturbation *mat.Dense, scale float64, b Bounds) Adversarial {
	r, c := images.Dims()
	out := mat.NewDense(r, c, nil)
	pass := make([]bool, r*c)
	for i := 0; i < r; i++ {
		img := images.RawRowView(i)
		pert := perturbation.RawRowView(i)
		dst := out.RawRowView(i)
		for j := range dst {
			v := pert[j]*scale + img[j]
			switch {
			case math.IsNaN(v):
				dst[j] = math.Min(math.Max(img[j], b.Min), b.Max)
			case v < b.Min:
				dst[j] = b.Min
			case v > b.Max:
				dst[j] = b.Max
			default:
				dst[j] = v
				pass[i*c+j] = true
			}
		}
	}
	return Adversarial{Samples: out, Pass: pass}
}

// PerturbationGradient chains ∂L/∂adv back through the clamp and the scale:
// ∂L/∂perturbation = ∂L/∂adv · scale where the clamp passed the value, else 0.
func PerturbationGradient(gradAdv *mat.Dense, adv Adversarial, scale float64) *mat.Dense {
	r, c := gradAdv.Dims()
	out := mat.NewDense(r, c, nil)
	for i := 0; i < r; i++ {
		src := gradAdv.RawRowView(i)
		dst := out.RawRowView(i)
		for j, g := range src {
			if adv.Pass[i*c+j] {
				dst[j] = g * scale
			}
		}
	}
	return out
}

// #endregion construct
