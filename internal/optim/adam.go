// Package optim updates generator parameters from accumulated gradients.
//
// Adam here follows the coupled L2 form: the weight-decay term is added to the
// gradient before the moment estimates, not applied to the parameters directly.
// It is not safe for concurrent use; the trainer calls Step once per batch.
package optim

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// #region options
// Options configures Adam.
type Options struct {
	LR          float64 // step size, > 0
	Beta1       float64 // in [0, 1)
	Beta2       float64 // in [0, 1)
	Eps         float64 // > 0, defaults to 1e-8
	WeightDecay float64 // L2 coefficient, >= 0
}

// #endregion options

// #region adam
// Adam holds first and second moment estimates for one parameter vector.
type Adam struct {
	opts     Options
	t        int
	m, v     []float64
	work     []float64
	powBeta1 float64
	powBeta2 float64
}

// NewAdam validates options and allocates state for n parameters.
func NewAdam(n int, opts Options) (*Adam, error) {
	if opts.Eps == 0 {
		opts.Eps = 1e-8
	}
	switch {
	case n <= 0:
		return nil, errors.New("adam: parameter count must be positive")
	case !(opts.LR > 0):
		return nil, errors.New("adam: lr must be > 0")
	case opts.Beta1 < 0 || opts.Beta1 >= 1:
		return nil, fmt.Errorf("adam: beta1 %g outside [0,1)", opts.Beta1)
	case opts.Beta2 < 0 || opts.Beta2 >= 1:
		return nil, fmt.Errorf("adam: beta2 %g outside [0,1)", opts.Beta2)
	case opts.WeightDecay < 0:
		return nil, errors.New("adam: weight decay must be >= 0")
	}
	return &Adam{
		opts:     opts,
		m:        make([]float64, n),
		v:        make([]float64, n),
		work:     make([]float64, n),
		powBeta1: 1,
		powBeta2: 1,
	}, nil
}

// Steps returns how many updates have been applied.
func (a *Adam) Steps() int { return a.t }

// Step applies one update to params in place.
func (a *Adam) Step(params, grads []float64) error {
	if len(params) != len(a.m) || len(grads) != len(a.m) {
		return fmt.Errorf("adam: got %d params and %d grads, state has %d", len(params), len(grads), len(a.m))
	}
	o := a.opts
	a.t++
	a.powBeta1 *= o.Beta1
	a.powBeta2 *= o.Beta2

	// g = grad + λ·θ
	g := a.work
	copy(g, grads)
	if o.WeightDecay > 0 {
		floats.AddScaled(g, o.WeightDecay, params)
	}

	bc1 := 1 - a.powBeta1
	bc2 := 1 - a.powBeta2
	for i, gi := range g {
		if math.IsNaN(gi) || math.IsInf(gi, 0) {
			continue
		}
		a.m[i] = o.Beta1*a.m[i] + (1-o.Beta1)*gi
		a.v[i] = o.Beta2*a.v[i] + (1-o.Beta2)*gi*gi
		mhat := a.m[i] / bc1
		vhat := math.Max(a.v[i]/bc2, 0)
		params[i] -= o.LR * mhat / (math.Sqrt(vhat) + o.Eps)
	}
	return nil
}

// #endregion adam
