package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"lukechampine.com/blake3"

	"github.com/jxucoder/dasa/internal/executor"
	"github.com/jxucoder/dasa/internal/notebook"
	"github.com/jxucoder/dasa/internal/replay"
)

// CellReplay compares one cell's fresh execution against the output
// the document recorded.
type CellReplay struct {
	Cell     int    `json:"cell"`
	Success  bool   `json:"success"`
	Match    string `json:"match"` // "same", "different", "no-baseline", "failed"
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`
}

// ReplayReport is the outcome of a full top-to-bottom replay.
type ReplayReport struct {
	Notebook string       `json:"notebook"`
	Cells    []CellReplay `json:"cells"`
	Score    float64      `json:"score"`
	Compared int          `json:"compared"`
	Matched  int          `json:"matched"`
}

// RunReplay executes every code cell top to bottom in a fresh session
// and scores reproducibility: the fraction of cells with recorded
// output whose fresh output hashes the same.
func RunReplay(cmd *cobra.Command, args []string) error {
	asJSON, err := boolFlag(cmd, "json")
	if err != nil {
		return err
	}
	strict, err := boolFlag(cmd, "strict")
	if err != nil {
		return err
	}
	interp, err := cmd.Flags().GetString("python")
	if err != nil {
		return fmt.Errorf("failed to read --python flag: %w", err)
	}

	proj, err := openProject(args[0])
	if err != nil {
		return err
	}
	timeout, err := runTimeout(cmd, proj)
	if err != nil {
		return err
	}

	sess, err := executor.NewPythonSession(interp)
	if err != nil {
		return fmt.Errorf("start interpreter: %w", err)
	}
	defer sess.Close()

	runner := &replay.Runner{
		Executor: sess,
		Ledger:   proj.Ledger,
		Timeout:  timeout,
	}

	plan := proj.Graph.Indices()
	_ = proj.Log.Append("replay", fmt.Sprintf("%s all %d code cells", args[0], len(plan)))

	report := ReplayReport{Notebook: args[0]}
	progress := newReplayProgressReporter("replay", len(plan), asJSON)
	runner.OnStep = func(step replay.Step) {
		cell, err := proj.Notebook.Cell(step.Cell)
		if err != nil {
			return
		}
		report.Cells = append(report.Cells, compareStep(cell, step))
		progress.Update(step.Cell, len(report.Cells))
	}

	out, err := runner.Run(context.Background(), proj.DocKey, proj.Notebook, plan)
	progress.Done(len(report.Cells))
	if err != nil {
		return err
	}

	for _, cr := range report.Cells {
		switch cr.Match {
		case "same":
			report.Compared++
			report.Matched++
		case "different":
			report.Compared++
		}
	}
	if report.Compared > 0 {
		report.Score = float64(report.Matched) / float64(report.Compared)
	} else {
		report.Score = 1
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printReplayReport(report)
	}

	if !out.Completed() {
		return fmt.Errorf("replay stopped: cell %d failed", out.FailedCell)
	}
	if strict && report.Matched < report.Compared {
		return fmt.Errorf("%d cell(s) produced different output", report.Compared-report.Matched)
	}
	return nil
}

func compareStep(cell notebook.Cell, step replay.Step) CellReplay {
	cr := CellReplay{
		Cell:     step.Cell,
		Success:  step.Result.Success,
		Duration: step.Result.Duration.Round(time.Millisecond).String(),
	}
	if !step.Result.Success {
		cr.Match = "failed"
		cr.Error = step.Result.ErrorDetail
		return cr
	}

	baseline := cell.OutputText()
	if strings.TrimSpace(baseline) == "" {
		cr.Match = "no-baseline"
		return cr
	}
	if outputHash(baseline) == outputHash(step.Result.Stdout+step.Result.Value) {
		cr.Match = "same"
	} else {
		cr.Match = "different"
	}
	return cr
}

// outputHash normalizes trailing whitespace before hashing so a bare
// missing newline does not count as drift.
func outputHash(text string) string {
	sum := blake3.Sum256([]byte(strings.TrimRight(text, "\n ")))
	return fmt.Sprintf("%x", sum[:8])
}

func printReplayReport(report ReplayReport) {
	for _, cr := range report.Cells {
		fmt.Printf("cell %d: %s (%s)\n", cr.Cell, cr.Match, cr.Duration)
		if cr.Error != "" {
			fmt.Printf("  %s\n", strings.Split(cr.Error, "\n")[0])
		}
	}
	if report.Compared == 0 {
		fmt.Println("no recorded outputs to compare against")
		return
	}
	fmt.Printf("reproducibility: %d/%d recorded outputs matched (%.0f%%)\n",
		report.Matched, report.Compared, report.Score*100)
}
