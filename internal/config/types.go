package config

import (
	"fmt"

	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/attack"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/optim"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/schedule"
)

// #region norm-policy
// ParseNormPolicy maps a flag value to a distance policy. Anything else is fatal.
func ParseNormPolicy(s string) (attack.NormPolicy, error) {
	switch p := attack.NormPolicy(s); p {
	case attack.NormLInf, attack.NormL2:
		return p, nil
	}
	return "", &ConfigurationError{Field: "norm", Reason: fmt.Sprintf("unknown norm policy %q (want l2 or linf)", s)}
}

// #endregion norm-policy

// #region configuration-error
// ConfigurationError reports an invalid run configuration. It terminates the run.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "configuration: " + e.Reason
	}
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Reason)
}

// #endregion configuration-error

// #region config
// Config is the complete run configuration.
type Config struct {
	Attack   attack.Policy
	Schedule schedule.Config
	Optim    optim.Options

	BatchSize int
	Epochs    int
	Every     int // save a checkpoint when epoch % Every == 0
	Latent    int // size of the latent noise vector (nz)
	ImageSize int
	Channels  int
	Seed      int64
	Bounds    string // "data" scans the training stream, "analytic" uses the normalization constants

	TrainDir    string
	TestDir     string
	OutDir      string
	DBPath      string
	Classifier  string // gRPC address, or linear:<path.json>
	MetricsAddr string

	Resume       bool
	CheckpointID string

	EvalArchiveBatches int // evaluation batches whose fooled samples are archived as images
}

// #endregion config
