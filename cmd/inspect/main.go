package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/checkpoint"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/model"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/report"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/runlog"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to uap.db")
	last := flag.Int("last", 20, "show N most recent checkpoints")
	ckID := flag.String("checkpoint", "", "show single checkpoint detail")
	runID := flag.String("run", "", "show the epoch log of a run")
	pngPath := flag.String("png", "", "with --checkpoint: render the zero-noise perturbation to this PNG")
	channels := flag.Int("channels", 3, "image channels for --png")
	imageSize := flag.Int("image-size", 32, "image edge for --png")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	activate := flag.String("activate", "", "make this checkpoint the one --resume loads")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/uap.db [--last N] [--checkpoint id [--png out.png]] [--run id] [--activate id] [--json]")
		os.Exit(2)
	}

	store, err := checkpoint.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	switch {
	case *activate != "":
		err = runActivateMode(store, *activate)
	case *ckID != "":
		err = runDetailMode(store, *ckID, *jsonOut)
		if err == nil && *pngPath != "" {
			err = renderPerturbation(store, *ckID, *pngPath, *channels, *imageSize)
		}
	case *runID != "":
		err = runEpochMode(store, *runID, *jsonOut)
	default:
		err = runListMode(store, *last, *jsonOut)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region activate-mode

func runActivateMode(store *checkpoint.Store, id string) error {
	ck, err := store.Get(id)
	if err != nil {
		return err
	}
	if err := store.Activate(ck.ID); err != nil {
		return err
	}
	fmt.Printf("Active checkpoint: %s (run %s, epoch %d, scale %.6f)\n", ck.ID, shortID(ck.RunID), ck.Epoch, ck.Scale)
	return nil
}

// #endregion activate-mode

// #region list-mode

type listRow struct {
	CheckpointID string   `json:"checkpoint_id"`
	RunID        string   `json:"run_id"`
	Epoch        int      `json:"epoch"`
	Scale        float64  `json:"scale"`
	SuccessRate  *float64 `json:"success_rate,omitempty"`
	CreatedAt    string   `json:"created_at"`
}

func runListMode(store *checkpoint.Store, last int, jsonOut bool) error {
	cks, err := store.List(last)
	if err != nil {
		return err
	}
	if len(cks) == 0 {
		fmt.Fprintln(os.Stderr, "no checkpoints found")
		return nil
	}

	// List returns newest first; print chronologically.
	rows := make([]listRow, len(cks))
	for i, ck := range cks {
		rows[len(cks)-1-i] = listRow{
			CheckpointID: ck.ID,
			RunID:        ck.RunID,
			Epoch:        ck.Epoch,
			Scale:        ck.Scale,
			SuccessRate:  parseSummary(ck.MetricsJSON).SuccessRate,
			CreatedAt:    ck.CreatedAt.Format("2006-01-02T15:04:05Z"),
		}
	}
	if jsonOut {
		return printJSON(rows)
	}

	fmt.Printf("%-10s  %-10s  %5s  %9s  %8s  %s\n", "Checkpoint", "Run", "Epoch", "Scale", "A_Succ", "Time")
	fmt.Printf("%-10s+-%-10s+-%5s+-%9s+-%8s+-%s\n",
		"----------", "----------", "-----", "---------", "--------", "--------------------")
	for _, r := range rows {
		fmt.Printf("%-10s  %-10s  %5d  %9.6f  %8s  %s\n",
			shortID(r.CheckpointID), shortID(r.RunID), r.Epoch, r.Scale, optional(r.SuccessRate), r.CreatedAt)
	}
	return nil
}

// #endregion list-mode

// #region detail-mode

type detailOutput struct {
	CheckpointID string               `json:"checkpoint_id"`
	ParentID     string               `json:"parent_id"`
	RunID        string               `json:"run_id"`
	Epoch        int                  `json:"epoch"`
	Scale        float64              `json:"scale"`
	Latent       int                  `json:"latent"`
	OutputSize   int                  `json:"output_size"`
	WeightNorm   float64              `json:"weight_norm"`
	BiasNorm     float64              `json:"bias_norm"`
	CreatedAt    string               `json:"created_at"`
	Summary      runlog.SummaryRecord `json:"summary"`
}

func runDetailMode(store *checkpoint.Store, id string, jsonOut bool) error {
	ck, err := store.Get(id)
	if err != nil {
		return err
	}
	split := ck.Latent * ck.OutputSize
	out := detailOutput{
		CheckpointID: ck.ID,
		ParentID:     ck.ParentID,
		RunID:        ck.RunID,
		Epoch:        ck.Epoch,
		Scale:        ck.Scale,
		Latent:       ck.Latent,
		OutputSize:   ck.OutputSize,
		WeightNorm:   floats.Norm(ck.Params[:split], 2),
		BiasNorm:     floats.Norm(ck.Params[split:], 2),
		CreatedAt:    ck.CreatedAt.Format("2006-01-02T15:04:05Z"),
		Summary:      parseSummary(ck.MetricsJSON),
	}
	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("Checkpoint:  %s\n", out.CheckpointID)
	fmt.Printf("Parent:      %s\n", out.ParentID)
	fmt.Printf("Run:         %s\n", out.RunID)
	fmt.Printf("Epoch:       %d\n", out.Epoch)
	fmt.Printf("Scale:       %.6f\n", out.Scale)
	fmt.Printf("Shape:       %d -> %d\n", out.Latent, out.OutputSize)
	fmt.Printf("Weight Norm: %.4f\n", out.WeightNorm)
	fmt.Printf("Bias Norm:   %.4f\n", out.BiasNorm)
	fmt.Printf("Created:     %s\n", out.CreatedAt)
	fmt.Printf("\nEpoch summary:\n")
	printSummary(out.Summary)
	return nil
}

// renderPerturbation writes the generator output for zero noise, the
// perturbation's mean direction, as a captioned PNG.
func renderPerturbation(store *checkpoint.Store, id, path string, channels, size int) error {
	ck, err := store.Get(id)
	if err != nil {
		return err
	}
	if channels*size*size != ck.OutputSize {
		return fmt.Errorf("checkpoint output %d does not match %dx%dx%d", ck.OutputSize, channels, size, size)
	}
	gen, err := model.RestoreDenseGenerator(ck.Latent, ck.OutputSize, ck.Params)
	if err != nil {
		return err
	}
	pert := gen.Generate(mat.NewDense(1, ck.Latent, nil))
	img := report.Strip([]report.Panel{{
		Row:     pert.RawRowView(0),
		Caption: fmt.Sprintf("E%d C %.3f", ck.Epoch, ck.Scale),
	}}, channels, size)
	if err := report.SavePNG(path, img); err != nil {
		return err
	}
	fmt.Printf("\nwrote %s\n", path)
	return nil
}

// #endregion detail-mode

// #region epoch-mode

func runEpochMode(store *checkpoint.Store, runID string, jsonOut bool) error {
	train, err := runlog.ListEpochs(store.DB(), runID, report.PhaseTrain)
	if err != nil {
		return err
	}
	eval, err := runlog.ListEpochs(store.DB(), runID, report.PhaseEval)
	if err != nil {
		return err
	}
	transitions, err := runlog.ListTransitions(store.DB(), runID)
	if err != nil {
		return err
	}
	if jsonOut {
		return printJSON(map[string]any{"train": train, "eval": eval, "transitions": transitions})
	}

	actions := make(map[int]runlog.TransitionEntry, len(transitions))
	for _, t := range transitions {
		actions[t.Epoch] = t
	}

	fmt.Printf("%-5s  %-5s  %9s  %8s  %8s  %8s  %8s  %-8s  %s\n",
		"Phase", "Epoch", "Scale", "C_L", "A_Succ", "L_inf", "L2", "Action", "Reason")
	for _, e := range append(train, eval...) {
		s := e.Summary
		action, reason := "", ""
		if t, ok := actions[e.Epoch]; ok && e.Phase == report.PhaseTrain {
			action, reason = t.Action, t.Reason
		}
		fmt.Printf("%-5s  %5d  %9.6f  %8s  %8s  %8s  %8s  %-8s  %s\n",
			e.Phase, e.Epoch, e.Scale, optional(s.ClassifierLoss), optional(s.SuccessRate),
			optional(s.LInf), optional(s.Dist), action, reason)
	}
	return nil
}

// #endregion epoch-mode

// #region output

func parseSummary(metricsJSON string) runlog.SummaryRecord {
	var s runlog.SummaryRecord
	if metricsJSON != "" {
		_ = json.Unmarshal([]byte(metricsJSON), &s)
	}
	return s
}

func printSummary(s runlog.SummaryRecord) {
	fmt.Printf("  %-14s %s\n", "C_L", optional(s.ClassifierLoss))
	fmt.Printf("  %-14s %s\n", "A_Succ", optional(s.SuccessRate))
	fmt.Printf("  %-14s %s\n", "Skipped", optional(s.SkipRate))
	fmt.Printf("  %-14s %s\n", "L_inf", optional(s.LInf))
	fmt.Printf("  %-14s %s\n", "L2", optional(s.Dist))
	fmt.Printf("  %-14s %d / %d\n", "fooled/total", s.Success, s.Total)
	fmt.Printf("  %-14s %d\n", "steps", s.Steps)
}

func optional(v *float64) string {
	if v == nil {
		return fmt.Sprint(math.NaN())
	}
	return fmt.Sprintf("%.5f", *v)
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// #endregion output
