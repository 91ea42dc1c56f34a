package attack

import (
	"math"
	"math/rand/v2"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func TestConstructStaysInBounds(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	b := Bounds{Min: -1.9, Max: 2.1}
	images := mat.NewDense(8, 12, nil)
	pert := mat.NewDense(8, 12, nil)
	for i := 0; i < 8; i++ {
		for j := 0; j < 12; j++ {
			images.Set(i, j, b.Min+rng.Float64()*(b.Max-b.Min))
			pert.Set(i, j, rng.Float64()*2-1)
		}
	}
	for _, scale := range []float64{0, 0.01, 0.5, 10} {
		adv := Construct(images, pert, scale, b)
		r, c := adv.Samples.Dims()
		if r != 8 || c != 12 {
			t.Fatalf("scale %g: expected 8x12, got %dx%d", scale, r, c)
		}
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				v := adv.Samples.At(i, j)
				if v < b.Min || v > b.Max {
					t.Fatalf("scale %g: element (%d,%d)=%g outside [%g,%g]", scale, i, j, v, b.Min, b.Max)
				}
			}
		}
	}
}

func TestConstructZeroScaleIsIdentity(t *testing.T) {
	images := mat.NewDense(1, 3, []float64{0.1, -0.2, 0.3})
	pert := mat.NewDense(1, 3, []float64{1, -1, 0.5})
	adv := Construct(images, pert, 0, Bounds{Min: -1, Max: 1})
	if !mat.Equal(adv.Samples, images) {
		t.Fatalf("expected identity, got %v", mat.Formatted(adv.Samples))
	}
}

func TestConstructClampMask(t *testing.T) {
	images := mat.NewDense(1, 3, []float64{0.9, 0, -0.9})
	pert := mat.NewDense(1, 3, []float64{1, 1, -1})
	adv := Construct(images, pert, 0.5, Bounds{Min: -1, Max: 1})

	want := []float64{1, 0.5, -1}
	for j, w := range want {
		if got := adv.Samples.At(0, j); math.Abs(got-w) > 1e-12 {
			t.Fatalf("element %d: expected %g, got %g", j, w, got)
		}
	}
	if adv.Pass[0] || !adv.Pass[1] || adv.Pass[2] {
		t.Fatalf("expected pass mask [false true false], got %v", adv.Pass)
	}

	grad := PerturbationGradient(mat.NewDense(1, 3, []float64{2, 2, 2}), adv, 0.5)
	if grad.At(0, 0) != 0 || grad.At(0, 1) != 1 || grad.At(0, 2) != 0 {
		t.Fatalf("expected gradient [0 1 0], got %v", mat.Formatted(grad))
	}
}

func TestConstructNaNPerturbationKeepsBounds(t *testing.T) {
	// evaluation images may lie outside bounds scanned from the training set
	images := mat.NewDense(1, 3, []float64{2.5, -3, 0.2})
	pert := mat.NewDense(1, 3, []float64{math.NaN(), math.NaN(), math.NaN()})
	adv := Construct(images, pert, 0.1, Bounds{Min: -1, Max: 1})

	want := []float64{1, -1, 0.2}
	for j, w := range want {
		if got := adv.Samples.At(0, j); got != w {
			t.Fatalf("element %d: expected %g, got %g", j, w, got)
		}
		if adv.Pass[j] {
			t.Fatalf("element %d: NaN perturbation must not pass gradients", j)
		}
	}
}
