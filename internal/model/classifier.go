package model

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gonum.org/v1/gonum/mat"
)

// #region linear-classifier
// LinearClassifier is a softmax-regression classifier: logits = X·Wᵀ + b.
// It stands in for a remote model in tests and smoke runs.
type LinearClassifier struct {
	w *mat.Dense // classes × features
	b []float64
}

// NewLinearClassifier wraps a classes×features weight matrix and a bias per class.
func NewLinearClassifier(w *mat.Dense, b []float64) (*LinearClassifier, error) {
	k, _ := w.Dims()
	if len(b) != k {
		return nil, fmt.Errorf("linear classifier: %d classes but %d biases", k, len(b))
	}
	return &LinearClassifier{w: w, b: b}, nil
}

// linearFile is the on-disk JSON layout of a LinearClassifier.
type linearFile struct {
	Classes  int       `json:"classes"`
	Features int       `json:"features"`
	Weights  []float64 `json:"weights"`
	Bias     []float64 `json:"bias"`
}

// LoadLinearClassifier reads a JSON weight file.
func LoadLinearClassifier(path string) (*LinearClassifier, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read classifier %s: %w", path, err)
	}
	var f linearFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse classifier %s: %w", path, err)
	}
	if f.Classes <= 0 || f.Features <= 0 || len(f.Weights) != f.Classes*f.Features {
		return nil, fmt.Errorf("classifier %s: %d weights for %dx%d", path, len(f.Weights), f.Classes, f.Features)
	}
	return NewLinearClassifier(mat.NewDense(f.Classes, f.Features, f.Weights), f.Bias)
}

// Classes returns the number of output classes.
func (c *LinearClassifier) Classes() int {
	k, _ := c.w.Dims()
	return k
}

// Predict returns one logit row per image.
func (c *LinearClassifier) Predict(_ context.Context, images *mat.Dense) (*mat.Dense, error) {
	_, f := c.w.Dims()
	if _, cols := images.Dims(); cols != f {
		return nil, fmt.Errorf("linear classifier: image has %d features, want %d", cols, f)
	}
	var out mat.Dense
	out.Mul(images, c.w.T())
	out.Apply(func(_, j int, v float64) float64 { return v + c.b[j] }, &out)
	return &out, nil
}

// InputGradient returns gradLogits·W, the gradient with respect to the images.
func (c *LinearClassifier) InputGradient(_ context.Context, images, gradLogits *mat.Dense) (*mat.Dense, error) {
	r, _ := images.Dims()
	gr, _ := gradLogits.Dims()
	if r != gr {
		return nil, fmt.Errorf("linear classifier: %d images but %d gradient rows", r, gr)
	}
	var out mat.Dense
	out.Mul(gradLogits, c.w)
	return &out, nil
}

// #endregion linear-classifier
