package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/attack"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/optim"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/schedule"
)

// #region defaults
// Default returns the training script defaults, with a
// CIFAR-sized image so the dense generator stays small.
func Default() Config {
	return Config{
		Attack:   attack.DefaultPolicy(),
		Schedule: schedule.DefaultConfig(),
		Optim: optim.Options{
			LR:          0.0002,
			Beta1:       0.5,
			Beta2:       0.999,
			WeightDecay: 0.01,
		},
		BatchSize:          128,
		Epochs:             20,
		Every:              1,
		Latent:             100,
		ImageSize:          32,
		Channels:           3,
		Seed:               5198,
		Bounds:             "data",
		TrainDir:           "./data/train",
		TestDir:            "./data/test",
		OutDir:             "./logs",
		DBPath:             "uap.db",
		Classifier:         "localhost:50051",
		EvalArchiveBatches: 20,
	}
}

// #endregion defaults

// #region env
// ApplyEnv overrides fields from UAP_* environment variables. Unparseable
// numeric values are reported rather than silently ignored.
func (c *Config) ApplyEnv() error {
	c.TrainDir = envOr("UAP_TRAIN_DIR", c.TrainDir)
	c.TestDir = envOr("UAP_TEST_DIR", c.TestDir)
	c.OutDir = envOr("UAP_OUTF", c.OutDir)
	c.DBPath = envOr("UAP_DB", c.DBPath)
	c.Classifier = envOr("UAP_CLASSIFIER", c.Classifier)
	c.MetricsAddr = envOr("UAP_METRICS_ADDR", c.MetricsAddr)

	if v := os.Getenv("UAP_NORM"); v != "" {
		c.Attack.Norm = attack.NormPolicy(strings.ToLower(v))
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"UAP_BATCH_SIZE", &c.BatchSize},
		{"UAP_EPOCHS", &c.Epochs},
		{"UAP_IMAGE_SIZE", &c.ImageSize},
	}
	for _, e := range ints {
		if v := os.Getenv(e.key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return &ConfigurationError{Field: e.key, Reason: err.Error()}
			}
			*e.dst = n
		}
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"UAP_SHRINK", &c.Schedule.Shrink},
		{"UAP_SHRINK_INC", &c.Schedule.ShrinkInc},
		{"UAP_MAX_NORM", &c.Schedule.MaxNorm},
		{"UAP_LR", &c.Optim.LR},
	}
	for _, e := range floats {
		if v := os.Getenv(e.key); v != "" {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return &ConfigurationError{Field: e.key, Reason: err.Error()}
			}
			*e.dst = f
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion env

// #region validate
// Validate checks the configuration before any data is touched.
func (c Config) Validate() error {
	if _, err := ParseNormPolicy(string(c.Attack.Norm)); err != nil {
		return err
	}
	switch {
	case c.BatchSize <= 0:
		return &ConfigurationError{Field: "batch-size", Reason: "must be positive"}
	case c.Epochs <= 0:
		return &ConfigurationError{Field: "epochs", Reason: "must be positive"}
	case c.Every <= 0:
		return &ConfigurationError{Field: "every", Reason: "must be positive"}
	case c.Latent <= 0:
		return &ConfigurationError{Field: "nz", Reason: "must be positive"}
	case c.ImageSize <= 0 || c.Channels <= 0:
		return &ConfigurationError{Field: "image-size", Reason: "must be positive"}
	case c.Schedule.Shrink < 0 || c.Schedule.ShrinkInc < 0:
		return &ConfigurationError{Field: "shrink", Reason: "scale and increment must be >= 0"}
	case c.Attack.Targeted && c.Attack.TargetClass < 0:
		return &ConfigurationError{Field: "target-class", Reason: "must be >= 0"}
	case c.Optim.LR <= 0:
		return &ConfigurationError{Field: "lr", Reason: "must be positive"}
	}
	if c.Bounds != "data" && c.Bounds != "analytic" {
		return &ConfigurationError{Field: "bounds", Reason: fmt.Sprintf("unknown mode %q (want data or analytic)", c.Bounds)}
	}
	return nil
}

// #endregion validate

// #region summary
// String renders the configuration as the header line written to the run log.
func (c Config) String() string {
	return fmt.Sprintf(
		"Config(batch_size=%d, epochs=%d, lr=%g, beta1=%g, optimize_on_success=%t, targeted=%t, chosen_target_class=%d, "+
			"restrict_to_correct_preds=%t, shrink=%g, shrink_inc=%g, ldist_weight=%g, l2reg=%g, max_norm=%g, norm=%s, every=%d, "+
			"nz=%d, image_size=%d, outf=%s, seed=%d, classifier=%s)",
		c.BatchSize, c.Epochs, c.Optim.LR, c.Optim.Beta1, c.Attack.OptimizeOnSuccess, c.Attack.Targeted, c.Attack.TargetClass,
		c.Attack.RestrictToCorrect, c.Schedule.Shrink, c.Schedule.ShrinkInc, c.Attack.DistWeight, c.Optim.WeightDecay, c.Schedule.MaxNorm,
		c.Attack.Norm, c.Every, c.Latent, c.ImageSize, c.OutDir, c.Seed, c.Classifier,
	)
}

// #endregion summary
