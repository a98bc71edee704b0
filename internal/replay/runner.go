package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jxucoder/dasa/internal/executor"
	"github.com/jxucoder/dasa/internal/ledger"
	"github.com/jxucoder/dasa/internal/notebook"
)

// Step is the outcome of executing one planned cell.
type Step struct {
	Cell     int             `json:"cell"`
	Result   executor.Result `json:"result"`
	Recorded bool            `json:"recorded"`
}

// Outcome summarizes a whole plan execution. FailedCell is -1 when
// every planned cell succeeded.
type Outcome struct {
	Steps      []Step `json:"steps"`
	FailedCell int    `json:"failed_cell"`
}

// Completed reports whether the plan ran to the end.
func (o Outcome) Completed() bool { return o.FailedCell < 0 }

// Runner executes replay plans against a live session, recording each
// successful execution in the ledger.
type Runner struct {
	Executor executor.Executor
	Ledger   *ledger.Ledger
	Log      *slog.Logger

	// Timeout bounds each individual cell, not the whole plan.
	Timeout time.Duration

	// OnStep, when set, is invoked after each cell finishes.
	OnStep func(Step)
}

// Run executes the plan in order. It stops at the first failed cell,
// because downstream cells would read state the failed producer never
// established. Cells are recorded in the ledger only after they
// succeed, so an interrupted run never claims executions that did not
// happen.
func (r *Runner) Run(ctx context.Context, docPath string, nb notebook.Adapter, plan []int) (Outcome, error) {
	out := Outcome{Steps: make([]Step, 0, len(plan)), FailedCell: -1}

	for _, idx := range plan {
		cell, err := nb.Cell(idx)
		if err != nil {
			return out, fmt.Errorf("cell %d: %w", idx, err)
		}
		if !cell.IsCode() {
			return out, fmt.Errorf("cell %d is not a code cell", idx)
		}

		res, err := r.Executor.Execute(ctx, cell.Source, r.Timeout)
		if err != nil {
			// Cancellation or a dead session: nothing ran to completion,
			// so nothing is recorded.
			return out, fmt.Errorf("cell %d: %w", idx, err)
		}

		step := Step{Cell: idx, Result: res}
		if res.Success {
			if err := r.Ledger.Record(docPath, idx, cell.Source); err != nil {
				// The execution itself happened, so keep going. The next
				// reconciliation will see the cell as unexecuted and the
				// fix is to re-run, never to lose other entries.
				if !errors.Is(err, ledger.ErrRecordFailed) {
					return out, err
				}
				r.logger().Warn("ledger record failed", "cell", idx, "error", err)
			} else {
				step.Recorded = true
			}
		}
		out.Steps = append(out.Steps, step)
		if r.OnStep != nil {
			r.OnStep(step)
		}

		if !res.Success {
			out.FailedCell = idx
			break
		}
	}
	return out, nil
}

func (r *Runner) logger() *slog.Logger {
	if r.Log != nil {
		return r.Log
	}
	return slog.Default()
}
