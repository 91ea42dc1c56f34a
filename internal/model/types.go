package model

import (
	"context"

	"gonum.org/v1/gonum/mat"
)

// #region classifier
// Classifier is the frozen model under attack. Rows are flattened CHW images,
// columns of the result are class logits.
type Classifier interface {
	Predict(ctx context.Context, images *mat.Dense) (*mat.Dense, error)
	// InputGradient returns gradLogits·∂logits/∂images, one row per image.
	InputGradient(ctx context.Context, images, gradLogits *mat.Dense) (*mat.Dense, error)
}

// #endregion classifier

// #region generator
// Generator maps latent noise to perturbations and owns the trainable parameters.
type Generator interface {
	Generate(noise *mat.Dense) *mat.Dense
	// Backward accumulates parameter gradients for gradOut = ∂L/∂Generate(noise).
	Backward(noise, gradOut *mat.Dense)
	Params() []float64
	Grads() []float64
	ZeroGrad()
	Latent() int
	OutputSize() int
}

// #endregion generator

// NoiseStd is the standard deviation of the latent noise fed to the generator.
const NoiseStd = 0.5
