package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/checkpoint"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/replay"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/report"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/runlog"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/schedule"
)

// #region main

func main() {
	defaults := schedule.DefaultConfig()
	dbPath := flag.String("db", "", "path to the trainer database")
	runID := flag.String("run", "", "run id to export (default: most recent run)")
	outPath := flag.String("out", "", "output fixture JSON path")
	shrink := flag.Float64("shrink", defaults.Shrink, "initial scale the run was configured with")
	shrinkInc := flag.Float64("shrink-inc", 0, "scale increment (default: inferred from the run, else the trainer default)")
	maxNorm := flag.Float64("max-norm", defaults.MaxNorm, "max norm the run was configured with")
	flag.Parse()

	if *dbPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: fixture-export --db path/to/uap.db --out path/to/fixture.json [--run ID]")
		os.Exit(2)
	}

	cfg := schedule.Config{Shrink: *shrink, ShrinkInc: *shrinkInc, MaxNorm: *maxNorm}
	if err := run(*dbPath, *runID, *outPath, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region extract

func run(dbPath, runID, outPath string, cfg schedule.Config) error {
	store, err := checkpoint.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer store.Close()

	db := store.DB()
	if runID == "" {
		runs, err := runlog.ListRuns(db)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			return fmt.Errorf("no runs in %s", dbPath)
		}
		runID = runs[0]
	}

	epochs, err := runlog.ListEpochs(db, runID, report.PhaseTrain)
	if err != nil {
		return err
	}
	transitions, err := runlog.ListTransitions(db, runID)
	if err != nil {
		return err
	}
	fmt.Printf("Run %s: %d training epochs, %d scheduler decisions\n", runID, len(epochs), len(transitions))

	if cfg.ShrinkInc == 0 {
		cfg.ShrinkInc = schedule.DefaultConfig().ShrinkInc
		if inc, ok := replay.InferShrinkInc(transitions); ok {
			cfg.ShrinkInc = inc
		}
	}

	fixture, err := replay.BuildFixture(runID, epochs, transitions, cfg)
	if err != nil {
		return err
	}
	return writeFixture(fixture, outPath)
}

// #endregion extract

// #region output

func writeFixture(fixture replay.Fixture, outPath string) error {
	data, err := json.MarshalIndent(fixture, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal fixture: %w", err)
	}

	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}

	fmt.Printf("Wrote fixture to %s (%d bytes, %d epochs)\n", outPath, len(data), len(fixture.Epochs))
	return nil
}

// #endregion output
