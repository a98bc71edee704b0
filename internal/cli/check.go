package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jxucoder/dasa/internal/notebook"
	"github.com/jxucoder/dasa/internal/reconcile"
)

// CheckReport is the machine-readable form of a check run.
type CheckReport struct {
	Notebook       string              `json:"notebook"`
	CodeCells      int                 `json:"code_cells"`
	Stale          []int               `json:"stale"`
	NeverExecuted  []int               `json:"never_executed"`
	ExecutionOrder []int               `json:"execution_order,omitempty"`
	Cells          []*reconcile.Status `json:"cells"`
	Errors         int                 `json:"errors"`
	Warnings       int                 `json:"warnings"`
}

func RunCheck(cmd *cobra.Command, args []string) error {
	asJSON, err := boolFlag(cmd, "json")
	if err != nil {
		return err
	}
	staleOnly, err := boolFlag(cmd, "stale")
	if err != nil {
		return err
	}
	cellIdx, err := intFlag(cmd, "cell")
	if err != nil {
		return err
	}

	proj, err := openProject(args[0])
	if err != nil {
		return err
	}
	statuses := proj.Reconcile()
	if cellIdx >= 0 {
		st, ok := statuses[cellIdx]
		if !ok {
			return fmt.Errorf("cell %d is not a code cell in %s", cellIdx, args[0])
		}
		statuses = map[int]*reconcile.Status{cellIdx: st}
	}
	report := buildCheckReport(args[0], statuses)
	report.ExecutionOrder = notebook.ExecutionOrder(proj.Notebook.Cells())
	_ = proj.Log.Append("check", fmt.Sprintf("%s: %d stale, %d never executed, %d error(s)",
		args[0], len(report.Stale), len(report.NeverExecuted), report.Errors))

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		printCheckReport(proj, report, staleOnly)
	}

	if report.Errors > 0 {
		return fmt.Errorf("%d error(s) found", report.Errors)
	}
	return nil
}

func buildCheckReport(path string, statuses map[int]*reconcile.Status) CheckReport {
	report := CheckReport{
		Notebook:      path,
		CodeCells:     len(statuses),
		Stale:         reconcile.StaleCells(statuses),
		NeverExecuted: reconcile.NeverExecutedCells(statuses),
	}
	indices := make([]int, 0, len(statuses))
	for idx := range statuses {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	for _, idx := range indices {
		st := statuses[idx]
		report.Cells = append(report.Cells, st)
		for _, issue := range st.Issues {
			switch issue.Severity {
			case reconcile.SeverityError:
				report.Errors++
			case reconcile.SeverityWarning:
				report.Warnings++
			}
		}
	}
	return report
}

func printCheckReport(proj *project, report CheckReport, staleOnly bool) {
	fmt.Printf("%s: %d code cells, %d stale, %d never executed\n",
		report.Notebook, report.CodeCells, len(report.Stale), len(report.NeverExecuted))

	for _, st := range report.Cells {
		if staleOnly && !st.Stale {
			continue
		}
		if len(st.Issues) == 0 {
			continue
		}
		cell, err := proj.Notebook.Cell(st.Index)
		preview := ""
		if err == nil {
			preview = cell.Preview()
		}
		fmt.Printf("\ncell %d: %s\n", st.Index, preview)
		for _, issue := range st.Issues {
			fmt.Printf("  [%s] %s\n", issue.Severity, issue.Message)
			if issue.Suggestion != "" {
				fmt.Printf("          %s\n", issue.Suggestion)
			}
		}
	}

	if report.Errors == 0 && report.Warnings == 0 {
		fmt.Println("no issues found")
	} else {
		fmt.Printf("\n%d error(s), %d warning(s)\n", report.Errors, report.Warnings)
	}
}
