package main

import (
	"flag"
	"fmt"
	"math"
	"os"

	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/checkpoint"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/config"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/replay"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/report"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/runlog"
	"github.com/danielpatrickdp/universal-perturbation/go-trainer/internal/schedule"
)

// #region main

func main() {
	defaults := config.Default().Schedule
	dbPath := flag.String("db", "", "path to uap.db (DB mode)")
	runID := flag.String("run", "", "run id to replay (DB mode, default: most recent)")
	fixturePath := flag.String("fixture", "", "path to fixture JSON (fixture mode)")
	shrink := flag.Float64("shrink", defaults.Shrink, "initial scale (DB mode)")
	shrinkInc := flag.Float64("shrink-inc", defaults.ShrinkInc, "scale increment on a plateau (DB mode)")
	maxNorm := flag.Float64("max-norm", defaults.MaxNorm, "perturbation budget (DB mode)")
	flag.Parse()

	if (*dbPath == "" && *fixturePath == "") || (*dbPath != "" && *fixturePath != "") {
		fmt.Fprintln(os.Stderr, "usage: replay --db path/to/uap.db [--run id]")
		fmt.Fprintln(os.Stderr, "       replay --fixture path/to/fixture.json")
		os.Exit(2)
	}

	var exitCode int
	if *fixturePath != "" {
		exitCode = runFixtureMode(*fixturePath)
	} else {
		cfg := schedule.Config{Shrink: *shrink, ShrinkInc: *shrinkInc, MaxNorm: *maxNorm}
		exitCode = runDBMode(*dbPath, *runID, cfg)
	}
	os.Exit(exitCode)
}

// #endregion main

// #region db-mode

func runDBMode(dbPath, runID string, cfg schedule.Config) int {
	store, err := checkpoint.NewStore(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		return 2
	}
	defer store.Close()
	db := store.DB()

	if runID == "" {
		runs, err := runlog.ListRuns(db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "list runs: %v\n", err)
			return 2
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "no runs found in epoch_log")
			return 2
		}
		runID = runs[0]
	}

	entries, err := runlog.ListEpochs(db, runID, report.PhaseTrain)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list epochs: %v\n", err)
		return 2
	}
	if len(entries) == 0 {
		fmt.Fprintf(os.Stderr, "no training epochs logged for run %s\n", runID)
		return 2
	}
	transitions, err := runlog.ListTransitions(db, runID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "list transitions: %v\n", err)
		return 2
	}

	// The first logged epoch ran at the scale the run started from.
	start := schedule.NewState(cfg)
	start.Scale = entries[0].Scale

	results := replay.Replay(start, replay.FromRunLog(entries), cfg)

	expected := make([]expectation, len(transitions))
	for i, t := range transitions {
		expected[i] = expectation{Epoch: t.Epoch, Action: t.Action, Scale: t.ScaleAfter}
	}
	fmt.Printf("Run %s\n", runID)
	code := printComparison(results, expected)
	printSummary(replay.Summarize(results, start))
	return code
}

// #endregion db-mode

// #region fixture-mode

func runFixtureMode(path string) int {
	f, err := replay.LoadFixture(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load fixture: %v\n", err)
		return 2
	}

	start := f.StartState()
	results := replay.Replay(start, f.ToEpochRecords(), f.Config.ToConfig())

	expected := make([]expectation, len(f.ExpectedResults))
	for i, e := range f.ExpectedResults {
		expected[i] = expectation{Epoch: e.Epoch, Action: e.Action, Scale: e.Scale}
	}
	code := printComparison(results, expected)
	printSummary(replay.Summarize(results, start))
	return code
}

// #endregion fixture-mode

// #region output

type expectation struct {
	Epoch  int
	Action string
	Scale  float64
}

// printComparison outputs a comparison table and returns the exit code.
func printComparison(results []replay.ReplayResult, expected []expectation) int {
	fmt.Printf("%-7s| %-10s| %-10s| %-10s| %-10s| %s\n", "Epoch", "Expected", "Replayed", "Exp C", "Rep C", "Match")
	fmt.Printf("%-7s+%-11s+%-11s+%-11s+%-11s+%s\n",
		"-------", "-----------", "-----------", "-----------", "-----------", "------")

	total := min(len(results), len(expected))
	matches := 0
	for i := 0; i < total; i++ {
		r, e := results[i], expected[i]
		match := "DIFF"
		if r.Epoch == e.Epoch && string(r.Action) == e.Action && math.Abs(r.ScaleAfter-e.Scale) < 1e-9 {
			match = "OK"
			matches++
		}
		fmt.Printf("%-7d| %-10s| %-10s| %-10.6f| %-10.6f| %s\n", e.Epoch, e.Action, r.Action, e.Scale, r.ScaleAfter, match)
	}

	diverge := total - matches
	if len(results) != len(expected) {
		fmt.Printf("\nlength mismatch: %d replayed, %d expected\n", len(results), len(expected))
		diverge++
	}
	fmt.Printf("\nSummary: %d total, %d match, %d diverge\n", total, matches, diverge)

	if diverge > 0 {
		return 1
	}
	return 0
}

func printSummary(s replay.ReplaySummary) {
	fmt.Printf("Replayed %d epochs: %d hold, %d increase, %d stop, final scale %.6f\n",
		s.TotalEpochs, s.Holds, s.Increases, s.Stops, s.FinalScale)
}

// #endregion output
