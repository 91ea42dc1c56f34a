package model

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/data"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/tensor"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// #region fit
// FitOptions configures softmax-regression training.
type FitOptions struct {
	Epochs int
	LR     float64
	L2     float64
}

// FitLinearClassifier trains a classes×features softmax regression on a
// stream with plain minibatch gradient descent. It returns the classifier
// and its accuracy on the last pass.
func FitLinearClassifier(ctx context.Context, s data.Stream, classes, features int, opts FitOptions) (*LinearClassifier, float64, error) {
	if classes <= 0 || features <= 0 {
		return nil, 0, fmt.Errorf("fit: invalid shape %dx%d", classes, features)
	}
	if opts.Epochs <= 0 || opts.LR <= 0 {
		return nil, 0, fmt.Errorf("fit: epochs and lr must be positive")
	}
	c := &LinearClassifier{w: mat.NewDense(classes, features, nil), b: make([]float64, classes)}

	var acc float64
	for epoch := 0; epoch < opts.Epochs; epoch++ {
		s.Reset()
		correct, seen := 0, 0
		for {
			if err := ctx.Err(); err != nil {
				return nil, 0, err
			}
			b, ok := s.Next()
			if !ok {
				break
			}
			n, correctInBatch, err := c.fitBatch(b, opts)
			if err != nil {
				return nil, 0, err
			}
			seen += n
			correct += correctInBatch
		}
		if seen > 0 {
			acc = float64(correct) / float64(seen)
		}
	}
	return c, acc, nil
}

// fitBatch applies one cross-entropy step and reports batch accuracy
// measured before the step.
func (c *LinearClassifier) fitBatch(b tensor.Batch, opts FitOptions) (int, int, error) {
	logits, err := c.Predict(context.Background(), b.Images)
	if err != nil {
		return 0, 0, err
	}
	n, k := logits.Dims()
	grad := mat.NewDense(n, k, nil)
	correct := 0
	for i := 0; i < n; i++ {
		row := logits.RawRowView(i)
		p := tensor.Softmax(row)
		y := b.Labels[i]
		if y < 0 || y >= k {
			return 0, 0, fmt.Errorf("fit: label %d outside %d classes", y, k)
		}
		if floats.MaxIdx(row) == y {
			correct++
		}
		p[y]--
		for j, v := range p {
			grad.Set(i, j, v/float64(n))
		}
	}

	var dW mat.Dense
	dW.Mul(grad.T(), b.Images)
	if opts.L2 > 0 {
		dW.Apply(func(i, j int, v float64) float64 { return v + opts.L2*c.w.At(i, j) }, &dW)
	}
	dW.Scale(opts.LR, &dW)
	c.w.Sub(c.w, &dW)
	for j := 0; j < k; j++ {
		c.b[j] -= opts.LR * mat.Sum(grad.ColView(j))
	}
	return n, correct, nil
}

// #endregion fit

// #region save
// Save writes the classifier in the JSON layout LoadLinearClassifier reads.
func (c *LinearClassifier) Save(path string) error {
	k, f := c.w.Dims()
	out, err := json.Marshal(linearFile{
		Classes:  k,
		Features: f,
		Weights:  mat.DenseCopyOf(c.w).RawMatrix().Data,
		Bias:     c.b,
	})
	if err != nil {
		return fmt.Errorf("encode classifier: %w", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("write classifier %s: %w", path, err)
	}
	return nil
}

// #endregion save
