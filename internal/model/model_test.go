package model

import (
	"context"
	"math"
	"math/rand/v2"
	"path/filepath"
	"testing"

	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/data"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestGeneratorOutputInUnitRange(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	g := NewDenseGenerator(5, 12, rng)
	out := g.Generate(SampleNoise(rng, 4, 5))
	r, c := out.Dims()
	require.Equal(t, 4, r)
	require.Equal(t, 12, c)
	for _, v := range out.RawMatrix().Data {
		assert.True(t, v > -1 && v < 1, "tanh output %g outside (-1,1)", v)
	}
}

// The loss sum(gradOut ⊙ Generate(z)) has parameter gradient Backward(z, gradOut).
func TestGeneratorBackwardMatchesFiniteDifference(t *testing.T) {
	rng := rand.New(rand.NewPCG(5, 6))
	g := NewDenseGenerator(3, 4, rng)
	for i := range g.params {
		g.params[i] = rng.NormFloat64() * 0.5
	}
	noise := SampleNoise(rng, 2, 3)
	gradOut := mat.NewDense(2, 4, []float64{1, -2, 0.5, 0.3, -1, 0.2, 0.7, -0.4})

	loss := func() float64 {
		var m mat.Dense
		m.MulElem(g.Generate(noise), gradOut)
		return mat.Sum(&m)
	}

	g.ZeroGrad()
	g.Backward(noise, gradOut)
	analytic := append([]float64(nil), g.Grads()...)

	const h = 1e-6
	for i := range g.params {
		orig := g.params[i]
		g.params[i] = orig + h
		up := loss()
		g.params[i] = orig - h
		down := loss()
		g.params[i] = orig
		num := (up - down) / (2 * h)
		require.InDelta(t, num, analytic[i], 1e-5, "param %d", i)
	}
}

func TestGeneratorGradientsAccumulateUntilZeroed(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 1))
	g := NewDenseGenerator(2, 2, rng)
	noise := SampleNoise(rng, 1, 2)
	gradOut := mat.NewDense(1, 2, []float64{1, 1})

	g.Backward(noise, gradOut)
	once := append([]float64(nil), g.Grads()...)
	g.Backward(noise, gradOut)
	for i, v := range g.Grads() {
		assert.InDelta(t, 2*once[i], v, 1e-12)
	}
	g.ZeroGrad()
	for _, v := range g.Grads() {
		assert.Zero(t, v)
	}
}

func TestRestoreDenseGenerator(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 9))
	g := NewDenseGenerator(4, 6, rng)
	r, err := RestoreDenseGenerator(4, 6, g.Params())
	require.NoError(t, err)
	noise := SampleNoise(rng, 3, 4)
	assert.True(t, mat.Equal(g.Generate(noise), r.Generate(noise)))

	_, err = RestoreDenseGenerator(4, 6, g.Params()[:10])
	assert.Error(t, err)
}

func TestLinearClassifierGradient(t *testing.T) {
	w := mat.NewDense(2, 3, []float64{1, 0, -1, 0.5, 2, 0})
	c, err := NewLinearClassifier(w, []float64{0.1, -0.1})
	require.NoError(t, err)

	images := mat.NewDense(1, 3, []float64{1, 2, 3})
	logits, err := c.Predict(context.Background(), images)
	require.NoError(t, err)
	assert.InDelta(t, -2+0.1, logits.At(0, 0), 1e-12)
	assert.InDelta(t, 4.5-0.1, logits.At(0, 1), 1e-12)

	grad, err := c.InputGradient(context.Background(), images, mat.NewDense(1, 2, []float64{1, -1}))
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, -2, -1}, grad.RawRowView(0))

	_, err = c.Predict(context.Background(), mat.NewDense(1, 2, nil))
	assert.Error(t, err)
}

func TestLinearClassifierSaveLoad(t *testing.T) {
	w := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	c, err := NewLinearClassifier(w, []float64{5, 6})
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "clf.json")
	require.NoError(t, c.Save(path))

	back, err := LoadLinearClassifier(path)
	require.NoError(t, err)
	assert.Equal(t, 2, back.Classes())
	assert.True(t, mat.Equal(c.w, back.w))
	assert.Equal(t, c.b, back.b)
}

func TestFitLinearClassifierSeparable(t *testing.T) {
	rng := rand.New(rand.NewPCG(2, 3))
	var rows [][]float64
	var labels []int
	for i := 0; i < 60; i++ {
		y := i % 2
		center := -1.0
		if y == 1 {
			center = 1
		}
		rows = append(rows, []float64{center + rng.NormFloat64()*0.1, rng.NormFloat64() * 0.1})
		labels = append(labels, y)
	}
	s := data.NewSliceStream(rows, labels, 16, rng)

	c, acc, err := FitLinearClassifier(context.Background(), s, 2, 2, FitOptions{Epochs: 20, LR: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 1.0, acc)

	logits, err := c.Predict(context.Background(), mat.NewDense(2, 2, []float64{-1, 0, 1, 0}))
	require.NoError(t, err)
	assert.Greater(t, logits.At(0, 0), logits.At(0, 1))
	assert.Greater(t, logits.At(1, 1), logits.At(1, 0))
}

func TestSampleNoiseStd(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 12))
	z := SampleNoise(rng, 200, 50)
	var sum, sq float64
	for _, v := range z.RawMatrix().Data {
		sum += v
		sq += v * v
	}
	n := float64(200 * 50)
	std := math.Sqrt(sq/n - (sum/n)*(sum/n))
	assert.InDelta(t, NoiseStd, std, 0.02)
}
