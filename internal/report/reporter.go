// Package report writes the human-readable training record: progress lines
// to stdout and <outf>/log, evaluation classifications, and archived image
// strips of fooled samples.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/metrics"
)

// Phase labels used in progress lines.
const (
	PhaseTrain = "train"
	PhaseEval  = "eval"
)

// #region reporter
// Reporter owns the output directory of a run.
type Reporter struct {
	dir      string
	classDir string
	stdout   io.Writer
	log      *os.File
	classes  *os.File

	Channels  int
	ImageSize int
}

// Open creates <dir> and <dir>/classifications and opens the log files for
// appending.
func Open(dir string, stdout io.Writer, channels, imageSize int) (*Reporter, error) {
	classDir := filepath.Join(dir, "classifications")
	if err := os.MkdirAll(classDir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	logf, err := os.OpenFile(filepath.Join(dir, "log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	classf, err := os.OpenFile(filepath.Join(dir, "classifications.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		logf.Close()
		return nil, fmt.Errorf("open classifications: %w", err)
	}
	return &Reporter{
		dir:       dir,
		classDir:  classDir,
		stdout:    stdout,
		log:       logf,
		classes:   classf,
		Channels:  channels,
		ImageSize: imageSize,
	}, nil
}

// Close closes the log files.
func (r *Reporter) Close() error {
	err1 := r.log.Close()
	err2 := r.classes.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// #endregion reporter

// #region lines
// Config echoes the run configuration to both logs.
func (r *Reporter) Config(cfg fmt.Stringer) error {
	s := cfg.String()
	fmt.Fprintln(r.stdout, s)
	if _, err := fmt.Fprintln(r.log, s); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	if _, err := fmt.Fprintln(r.classes, s); err != nil {
		return fmt.Errorf("write classifications: %w", err)
	}
	return nil
}

// Batch reports the running metrics after one batch.
func (r *Reporter) Batch(phase string, epoch, batch, batches int, s metrics.Snapshot, scale float64) error {
	fmt.Fprintf(r.stdout, "[%d/%d] %s\n", batch+1, batches, ProgressLine(phase, epoch, s, scale))
	if _, err := fmt.Fprintln(r.log, LogLine(phase, epoch, batch, s, scale)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// Printf writes a free-form line to stdout and the log.
func (r *Reporter) Printf(format string, args ...any) error {
	line := fmt.Sprintf(format, args...)
	fmt.Fprintln(r.stdout, line)
	if _, err := fmt.Fprintln(r.log, line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// ProgressLine is the short per-batch line printed to stdout.
func ProgressLine(phase string, epoch int, s metrics.Snapshot, scale float64) string {
	if phase == PhaseTrain {
		return fmt.Sprintf("Tr E%d, C_L %.5f A_Succ %.5f L_inf %.5f L2 %.5f (Pert %.2f, Adv %.2f, Clean %.2f) C %.6f Skipped %.1f%%",
			epoch, s.ClassifierLoss, s.SuccessRate, s.LInf, s.Dist, s.PertNorm, s.AdvNorm, s.CleanNorm, scale, 100*s.SkipRate)
	}
	return fmt.Sprintf("Val E%d, A_Succ %.5f L_inf %.5f L2 %.5f (Pert %.2f, Adv %.2f, Clean %.2f) C %.6f Skipped %.1f%%",
		epoch, s.SuccessRate, s.LInf, s.Dist, s.PertNorm, s.AdvNorm, s.CleanNorm, scale, 100*s.SkipRate)
}

// LogLine is the per-batch line appended to <outf>/log.
func LogLine(phase string, epoch, batch int, s metrics.Snapshot, scale float64) string {
	if phase == PhaseTrain {
		return fmt.Sprintf("Tr Epoch %d batch_idx %d C_L %.5f A_Succ %.5f L_inf %.5f L2 %.5f (Pert %.2f, Adv %.2f, Clean %.2f) C %.6f Skipped %.1f%%",
			epoch, batch, s.ClassifierLoss, s.SuccessRate, s.LInf, s.Dist, s.PertNorm, s.AdvNorm, s.CleanNorm, scale, 100*s.SkipRate)
	}
	return fmt.Sprintf("Val Epoch %d batch_idx %d A_Succ %.5f L_inf %.5f L2 %.5f (Pert %.2f, Adv %.2f, Clean %.2f) C %.6f Skipped %.1f%%",
		epoch, batch, s.SuccessRate, s.LInf, s.Dist, s.PertNorm, s.AdvNorm, s.CleanNorm, scale, 100*s.SkipRate)
}

// #endregion lines

// #region archive
// FooledSample is one archived fooled sample. Rows are normalized CHW images.
type FooledSample struct {
	Index     int // position among the fooled samples of the batch
	Clean     []float64
	Adv       []float64
	CleanPred int
	AdvPred   int
}

// Perturbation returns clean − adv, the displayed perturbation.
func (f FooledSample) Perturbation() []float64 {
	p := make([]float64, len(f.Clean))
	for i := range p {
		p[i] = f.Clean[i] - f.Adv[i]
	}
	return p
}

// TrainSample archives <outf>/<epoch>_<i>.png.
func (r *Reporter) TrainSample(epoch int, f FooledSample) error {
	img := Strip([]Panel{
		{Row: f.Clean, Caption: "clean"},
		{Row: f.Perturbation(), Caption: "pert"},
		{Row: f.Adv, Caption: "adv"},
	}, r.Channels, r.ImageSize)
	return SavePNG(filepath.Join(r.dir, fmt.Sprintf("%d_%d.png", epoch, f.Index)), img)
}

// EvalSample archives the clean, perturbed and combined images of a fooled
// evaluation sample under <outf>/classifications and records both predictions.
func (r *Reporter) EvalSample(batch int, f FooledSample) error {
	base := filepath.Join(r.classDir, fmt.Sprintf("%d_%d", batch, f.Index))
	clean := Strip([]Panel{{Row: f.Clean, Caption: fmt.Sprintf("class %d", f.CleanPred)}}, r.Channels, r.ImageSize)
	if err := SavePNG(base+"_clean.png", clean); err != nil {
		return err
	}
	adv := Strip([]Panel{{Row: f.Adv, Caption: fmt.Sprintf("class %d", f.AdvPred)}}, r.Channels, r.ImageSize)
	if err := SavePNG(base+"_perturbed.png", adv); err != nil {
		return err
	}
	combined := Strip([]Panel{
		{Row: f.Clean, Caption: fmt.Sprintf("clean %d", f.CleanPred)},
		{Row: f.Perturbation(), Caption: "pert"},
		{Row: f.Adv, Caption: fmt.Sprintf("adv %d", f.AdvPred)},
	}, r.Channels, r.ImageSize)
	if err := SavePNG(base+"_combined.png", combined); err != nil {
		return err
	}

	_, err := fmt.Fprintf(r.classes,
		"Original prediction of clean for batch idx %d sample %d: predicted class %d\n"+
			"Perturbed prediction of perturbed image for batch idx %d sample %d: predicted class %d\n",
		batch, f.Index, f.CleanPred, batch, f.Index, f.AdvPred)
	if err != nil {
		return fmt.Errorf("write classifications: %w", err)
	}
	return nil
}

// #endregion archive
