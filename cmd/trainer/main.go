package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"net/http"
	"os"
	"os/signal"
	"strings"

	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/attack"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/checkpoint"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/codec"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/config"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/data"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/driver"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/model"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/optim"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/report"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/runlog"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/schedule"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/telemetry"
	"github.com/google/uuid"
)

// #region main
func main() {
	cfg := config.Default()
	if err := cfg.ApplyEnv(); err != nil {
		log.Fatalf("environment: %v", err)
	}
	norm := registerFlags(&cfg)
	flag.Parse()

	policy, err := config.ParseNormPolicy(*norm)
	if err != nil {
		log.Fatalf("%v", err)
	}
	cfg.Attack.Norm = policy
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		var cfgErr *config.ConfigurationError
		if errors.As(err, &cfgErr) {
			log.Fatalf("%v", cfgErr)
		}
		log.Fatalf("run failed: %v", err)
	}
}

// #endregion main

// #region flags
func registerFlags(cfg *config.Config) *string {
	flag.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "input batch size")
	flag.IntVar(&cfg.Epochs, "epochs", cfg.Epochs, "number of epochs to train for")
	flag.Float64Var(&cfg.Optim.LR, "lr", cfg.Optim.LR, "learning rate")
	flag.Float64Var(&cfg.Optim.Beta1, "beta1", cfg.Optim.Beta1, "beta1 for adam")
	flag.Float64Var(&cfg.Optim.WeightDecay, "l2reg", cfg.Optim.WeightDecay, "weight factor for l2 regularization")
	flag.BoolVar(&cfg.Attack.OptimizeOnSuccess, "optimize-on-success", cfg.Attack.OptimizeOnSuccess, "keep optimizing samples that already fool the classifier")
	flag.BoolVar(&cfg.Attack.Targeted, "targeted", cfg.Attack.Targeted, "targeted attack")
	flag.IntVar(&cfg.Attack.TargetClass, "target-class", cfg.Attack.TargetClass, "class index of a targeted attack")
	flag.BoolVar(&cfg.Attack.RestrictToCorrect, "restrict-to-correct", cfg.Attack.RestrictToCorrect, "only attack samples the classifier gets right")
	flag.Float64Var(&cfg.Attack.DistWeight, "ldist-weight", cfg.Attack.DistWeight, "weight of the distance term")
	flag.Float64Var(&cfg.Schedule.Shrink, "shrink", cfg.Schedule.Shrink, "initial perturbation scale")
	flag.Float64Var(&cfg.Schedule.ShrinkInc, "shrink-inc", cfg.Schedule.ShrinkInc, "scale increment on a success-rate plateau")
	flag.Float64Var(&cfg.Schedule.MaxNorm, "max-norm", cfg.Schedule.MaxNorm, "max allowed perturbation (mean L-inf and mean L2 ratio)")
	flag.IntVar(&cfg.Every, "every", cfg.Every, "save a generator checkpoint every N epochs")
	flag.IntVar(&cfg.Latent, "nz", cfg.Latent, "size of the latent noise vector")
	flag.IntVar(&cfg.ImageSize, "image-size", cfg.ImageSize, "height / width of the input image")
	flag.StringVar(&cfg.OutDir, "outf", cfg.OutDir, "folder for log files and archived images")
	flag.Int64Var(&cfg.Seed, "seed", cfg.Seed, "random seed")
	flag.StringVar(&cfg.TrainDir, "train-dir", cfg.TrainDir, "training image folder")
	flag.StringVar(&cfg.TestDir, "test-dir", cfg.TestDir, "evaluation image folder")
	flag.StringVar(&cfg.Classifier, "classifier", cfg.Classifier, "classifier gRPC address, or linear:<weights.json>")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite database for checkpoints and the run log")
	flag.BoolVar(&cfg.Resume, "resume", cfg.Resume, "continue from the active checkpoint")
	flag.StringVar(&cfg.CheckpointID, "checkpoint", cfg.CheckpointID, "continue from this checkpoint id")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on this address")
	flag.StringVar(&cfg.Bounds, "bounds", cfg.Bounds, "clamp bounds: data (scan training set) or analytic")
	flag.IntVar(&cfg.EvalArchiveBatches, "eval-archive", cfg.EvalArchiveBatches, "evaluation batches whose fooled samples are archived")
	return flag.String("norm", string(cfg.Attack.Norm), "distance norm: l2 or linf")
}

// #endregion flags

// #region run
func run(ctx context.Context, cfg config.Config) error {
	norm := data.CIFAR10
	if cfg.Channels != norm.Channels() {
		return &config.ConfigurationError{Field: "channels", Reason: fmt.Sprintf("normalization has %d channels", norm.Channels())}
	}
	log.Printf("Random Seed: %d", cfg.Seed)
	rng := rand.New(rand.NewPCG(uint64(cfg.Seed), uint64(cfg.Seed)>>1|1))

	train, err := data.LoadFolder(cfg.TrainDir, cfg.ImageSize, norm, cfg.BatchSize, rng)
	if err != nil {
		return err
	}
	test, err := data.LoadFolder(cfg.TestDir, cfg.ImageSize, norm, cfg.BatchSize, nil)
	if err != nil {
		return err
	}
	log.Printf("train: %d samples in %d classes %v, test: %d samples", train.Stream.Samples(), len(train.Classes), train.Classes, test.Stream.Samples())

	bounds, err := findBounds(cfg.Bounds, train.Stream, norm)
	if err != nil {
		return err
	}
	log.Printf("bounds: %g %g", bounds.Min, bounds.Max)

	clf, classes, closeClf, err := openClassifier(cfg.Classifier, len(train.Classes))
	if err != nil {
		return err
	}
	defer closeClf()

	store, err := checkpoint.NewStore(cfg.DBPath)
	if err != nil {
		return err
	}
	defer store.Close()

	out := cfg.Channels * cfg.ImageSize * cfg.ImageSize
	gen := model.NewDenseGenerator(cfg.Latent, out, rng)
	start := schedule.NewState(cfg.Schedule)
	parent, err := resume(store, cfg, gen, &start)
	if err != nil {
		return err
	}

	adam, err := optim.NewAdam(len(gen.Params()), cfg.Optim)
	if err != nil {
		return &config.ConfigurationError{Field: "optimizer", Reason: err.Error()}
	}

	rep, err := report.Open(cfg.OutDir, os.Stdout, cfg.Channels, cfg.ImageSize)
	if err != nil {
		return err
	}
	defer rep.Close()
	if err := rep.Config(cfg); err != nil {
		return err
	}

	runID := uuid.New().String()
	log.Printf("run %s: db %s, outf %s", runID, cfg.DBPath, cfg.OutDir)

	trainer := &driver.Trainer{
		Classifier:         clf,
		Generator:          gen,
		Optimizer:          adam,
		Policy:             cfg.Attack,
		Schedule:           cfg.Schedule,
		Bounds:             bounds,
		Norm:               norm,
		RNG:                rng,
		Classes:            classes,
		RunID:              runID,
		Reporter:           rep,
		RunLog:             runlog.Recorder{DB: store.DB(), RunID: runID},
		Checkpoints:        store,
		Every:              cfg.Every,
		ParentCheckpoint:   parent,
		EvalArchiveBatches: cfg.EvalArchiveBatches,
	}
	if cfg.MetricsAddr != "" {
		tel := telemetry.New()
		serveMetrics(cfg.MetricsAddr, tel)
		trainer.Telemetry = tel
	}

	res, err := trainer.Run(ctx, train.Stream, test.Stream, cfg.Epochs, start)
	if err != nil {
		return err
	}

	return rep.Printf("finished after epoch %d (stopped=%t) scale %.6f: train A_Succ %.5f, eval A_Succ %.5f",
		res.LastEpoch, res.Stopped, res.Final.Scale, lastSuccess(res), res.Eval.SuccessRate)
}

// #endregion run

// #region helpers
func findBounds(mode string, s data.Stream, norm data.Normalization) (attack.Bounds, error) {
	if mode == "analytic" {
		lo, hi := norm.Range()
		return attack.Bounds{Min: lo, Max: hi}, nil
	}
	lo, hi, err := data.FindBoundaries(s)
	if err != nil {
		return attack.Bounds{}, err
	}
	return attack.Bounds{Min: lo, Max: hi}, nil
}

// openClassifier returns the classifier, its class count, and a close func.
func openClassifier(target string, datasetClasses int) (model.Classifier, int, func(), error) {
	if path, ok := strings.CutPrefix(target, "linear:"); ok {
		c, err := model.LoadLinearClassifier(path)
		if err != nil {
			return nil, 0, nil, err
		}
		return c, c.Classes(), func() {}, nil
	}
	c, err := codec.NewRemoteClassifier(target)
	if err != nil {
		return nil, 0, nil, err
	}
	return c, datasetClasses, func() { c.Close() }, nil
}

// resume loads generator parameters and the scale from a checkpoint when
// asked to, returning the checkpoint id to chain new checkpoints from.
func resume(store *checkpoint.Store, cfg config.Config, gen *model.DenseGenerator, start *schedule.State) (string, error) {
	var ck checkpoint.Checkpoint
	var err error
	switch {
	case cfg.CheckpointID != "":
		ck, err = store.Get(cfg.CheckpointID)
	case cfg.Resume:
		ck, err = store.GetCurrent()
		if errors.Is(err, checkpoint.ErrNoCheckpoint) {
			log.Println("No active checkpoint found, starting fresh...")
			return "", nil
		}
	default:
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if ck.Latent != gen.Latent() || ck.OutputSize != gen.OutputSize() {
		return "", &config.ConfigurationError{
			Field:  "checkpoint",
			Reason: fmt.Sprintf("shape %dx%d does not match generator %dx%d", ck.Latent, ck.OutputSize, gen.Latent(), gen.OutputSize()),
		}
	}
	if err := gen.LoadParams(ck.Params); err != nil {
		return "", err
	}
	start.Scale = ck.Scale
	log.Printf("Generator loaded from checkpoint %s (epoch %d, scale %.6f)", ck.ID, ck.Epoch, ck.Scale)
	return ck.ID, nil
}

func serveMetrics(addr string, tel *telemetry.Collectors) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", tel.Handler())
	go func() {
		if err := http.ListenAndServe(addr, mux); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("metrics server: %v", err)
		}
	}()
	log.Printf("metrics on http://%s/metrics", addr)
}

func lastSuccess(res driver.RunResult) float64 {
	if len(res.Train) == 0 {
		return 0
	}
	return res.Train[len(res.Train)-1].SuccessRate
}

// #endregion helpers
