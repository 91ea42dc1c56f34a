package model

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// #region dense-generator
// DenseGenerator produces perturbations as tanh(W·z + b). Parameters live in
// one flat slice (W row-major, then b) so the optimizer can update them in place.
type DenseGenerator struct {
	latent int
	out    int
	params []float64
	grads  []float64
}

// NewDenseGenerator initializes weights from N(0, 0.02) and zero bias.
func NewDenseGenerator(latent, out int, rng *rand.Rand) *DenseGenerator {
	g := &DenseGenerator{
		latent: latent,
		out:    out,
		params: make([]float64, out*latent+out),
		grads:  make([]float64, out*latent+out),
	}
	for i := 0; i < out*latent; i++ {
		g.params[i] = rng.NormFloat64() * 0.02
	}
	return g
}

// LoadParams replaces the parameters with a checkpointed vector.
func (g *DenseGenerator) LoadParams(p []float64) error {
	if len(p) != len(g.params) {
		return fmt.Errorf("generator params: got %d values, want %d", len(p), len(g.params))
	}
	copy(g.params, p)
	return nil
}

// RestoreDenseGenerator rebuilds a generator from checkpointed parameters.
func RestoreDenseGenerator(latent, out int, p []float64) (*DenseGenerator, error) {
	g := &DenseGenerator{
		latent: latent,
		out:    out,
		params: make([]float64, out*latent+out),
		grads:  make([]float64, out*latent+out),
	}
	if err := g.LoadParams(p); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *DenseGenerator) weights() *mat.Dense {
	return mat.NewDense(g.out, g.latent, g.params[:g.out*g.latent])
}

func (g *DenseGenerator) bias() []float64 {
	return g.params[g.out*g.latent:]
}

// Generate maps each noise row to one perturbation row.
func (g *DenseGenerator) Generate(noise *mat.Dense) *mat.Dense {
	b := g.bias()
	var out mat.Dense
	out.Mul(noise, g.weights().T())
	out.Apply(func(_, j int, v float64) float64 {
		return math.Tanh(v + b[j])
	}, &out)
	return &out
}

// Backward recomputes the forward pass and accumulates ∂L/∂W and ∂L/∂b.
func (g *DenseGenerator) Backward(noise, gradOut *mat.Dense) {
	out := g.Generate(noise)
	var pre mat.Dense
	pre.Apply(func(i, j int, y float64) float64 {
		return gradOut.At(i, j) * (1 - y*y)
	}, out)

	var dW mat.Dense
	dW.Mul(pre.T(), noise)
	gw := mat.NewDense(g.out, g.latent, g.grads[:g.out*g.latent])
	gw.Add(gw, &dW)

	gb := g.grads[g.out*g.latent:]
	r, _ := pre.Dims()
	for i := 0; i < r; i++ {
		for j, v := range pre.RawRowView(i) {
			gb[j] += v
		}
	}
}

func (g *DenseGenerator) Params() []float64 { return g.params }
func (g *DenseGenerator) Grads() []float64  { return g.grads }
func (g *DenseGenerator) Latent() int       { return g.latent }
func (g *DenseGenerator) OutputSize() int   { return g.out }

// ZeroGrad clears the accumulated gradients before the next batch.
func (g *DenseGenerator) ZeroGrad() {
	for i := range g.grads {
		g.grads[i] = 0
	}
}

// #endregion dense-generator

// #region noise
// SampleNoise draws an n×latent block from N(0, NoiseStd²).
func SampleNoise(rng *rand.Rand, n, latent int) *mat.Dense {
	data := make([]float64, n*latent)
	for i := range data {
		data[i] = rng.NormFloat64() * NoiseStd
	}
	return mat.NewDense(n, latent, data)
}

// #endregion noise
