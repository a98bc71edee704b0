package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jxucoder/dasa/internal/executor"
	"github.com/jxucoder/dasa/internal/reconcile"
	"github.com/jxucoder/dasa/internal/replay"
)

func RunRun(cmd *cobra.Command, args []string) error {
	asJSON, err := boolFlag(cmd, "json")
	if err != nil {
		return err
	}
	async, err := boolFlag(cmd, "async")
	if err != nil {
		return err
	}

	proj, err := openProject(args[0])
	if err != nil {
		return err
	}

	targets, err := selectTargets(cmd, proj)
	if err != nil {
		return err
	}
	if len(targets) == 0 {
		fmt.Println("nothing to run")
		return nil
	}

	// A fresh interpreter session has no live state, so every upstream
	// producer re-runs regardless of ledger freshness.
	plan := replay.Plan(proj.Graph, targets, nil)

	if async {
		return startBackgroundRun(cmd, proj, args[0], plan)
	}

	timeout, err := runTimeout(cmd, proj)
	if err != nil {
		return err
	}
	interp, err := cmd.Flags().GetString("python")
	if err != nil {
		return fmt.Errorf("failed to read --python flag: %w", err)
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
	if !asJSON {
		runner.OnStep = printStep
	}

	_ = proj.Log.Append("run", fmt.Sprintf("%s cells %v", args[0], plan))
	out, err := runner.Run(context.Background(), proj.DocKey, proj.Notebook, plan)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	if !out.Completed() {
		_ = proj.Log.Append("run", fmt.Sprintf("%s failed at cell %d", args[0], out.FailedCell))
		if hint := nameErrorHint(out, sess); hint != "" && !asJSON {
			fmt.Fprintln(os.Stderr, hint)
		}
		return fmt.Errorf("cell %d failed", out.FailedCell)
	}
	if !asJSON {
		fmt.Printf("ran %d cell(s)\n", len(out.Steps))
	}

	showNames, err := boolFlag(cmd, "names")
	if err != nil {
		return err
	}
	if showNames {
		return printNamespace(sess)
	}
	return nil
}

// nameErrorHint probes the live namespace after a NameError and offers
// the closest bound name, which the static suggestion cannot see when
// the binding came from runtime-only constructs (exec, star imports).
func nameErrorHint(out replay.Outcome, lister executor.NamespaceLister) string {
	if len(out.Steps) == 0 {
		return ""
	}
	last := out.Steps[len(out.Steps)-1]
	if last.Result.ErrorKind != "NameError" {
		return ""
	}
	missing := missingNameFromDetail(last.Result.ErrorDetail)
	if missing == "" {
		return ""
	}
	names, err := lister.Names(context.Background())
	if err != nil {
		return ""
	}
	bound := make(map[string]bool, len(names))
	for _, n := range names {
		bound[n] = true
	}
	near, ok := reconcile.NearestName(missing, bound)
	if !ok {
		return ""
	}
	return fmt.Sprintf("hint: %q is not defined; did you mean %q?", missing, near)
}

// missingNameFromDetail extracts X from "name 'X' is not defined".
func missingNameFromDetail(detail string) string {
	_, rest, ok := strings.Cut(detail, "name '")
	if !ok {
		return ""
	}
	name, _, ok := strings.Cut(rest, "'")
	if !ok {
		return ""
	}
	return name
}

// printNamespace lists what the session namespace holds after the run,
// which is the ground truth the static analysis approximates.
func printNamespace(lister executor.NamespaceLister) error {
	names, err := lister.Names(context.Background())
	if err != nil {
		return fmt.Errorf("read namespace: %w", err)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Println(name)
	}
	return nil
}

// selectTargets resolves the run scope flags to concrete cell indices.
// Exactly one of --cell, --from/--to, --all, --stale applies; --cell
// wins when several are given.
func selectTargets(cmd *cobra.Command, proj *project) ([]int, error) {
	cells, err := intSliceFlag(cmd, "cell")
	if err != nil {
		return nil, err
	}
	from, err := intFlag(cmd, "from")
	if err != nil {
		return nil, err
	}
	to, err := intFlag(cmd, "to")
	if err != nil {
		return nil, err
	}
	all, err := boolFlag(cmd, "all")
	if err != nil {
		return nil, err
	}
	staleOnly, err := boolFlag(cmd, "stale")
	if err != nil {
		return nil, err
	}

	code := proj.Graph.Indices()
	codeSet := make(map[int]bool, len(code))
	for _, idx := range code {
		codeSet[idx] = true
	}

	switch {
	case len(cells) > 0:
		for _, idx := range cells {
			if !codeSet[idx] {
				return nil, fmt.Errorf("cell %d is not a code cell", idx)
			}
		}
		sorted := append([]int(nil), cells...)
		sort.Ints(sorted)
		return sorted, nil

	case from >= 0 || to >= 0:
		var out []int
		for _, idx := range code {
			if from >= 0 && idx < from {
				continue
			}
			if to >= 0 && idx > to {
				continue
			}
			out = append(out, idx)
		}
		if len(out) == 0 {
			return nil, fmt.Errorf("no code cells in range")
		}
		return out, nil

	case staleOnly:
		statuses := proj.Reconcile()
		var out []int
		for _, idx := range code {
			st := statuses[idx]
			if st != nil && (st.Stale || !st.EverExecuted) {
				out = append(out, idx)
			}
		}
		return out, nil

	case all:
		return code, nil

	default:
		return nil, fmt.Errorf("pick cells with --cell, --from/--to, --all or --stale")
	}
}

func runTimeout(cmd *cobra.Command, proj *project) (time.Duration, error) {
	secs, err := intFlag(cmd, "timeout")
	if err != nil {
		return 0, err
	}
	if secs <= 0 {
		secs = proj.Config.TimeoutSeconds
	}
	return time.Duration(secs) * time.Second, nil
}

func printStep(step replay.Step) {
	status := "ok"
	if !step.Result.Success {
		status = step.Result.ErrorKind
	}
	fmt.Printf("cell %d: %s (%.2fs)\n", step.Cell, status, step.Result.Duration.Seconds())
	if step.Result.Stdout != "" {
		fmt.Print(step.Result.Stdout)
	}
	if step.Result.Value != "" {
		fmt.Println(step.Result.Value)
	}
	if !step.Result.Success && step.Result.ErrorDetail != "" {
		fmt.Fprintln(os.Stderr, step.Result.ErrorDetail)
	}
}

func startBackgroundRun(cmd *cobra.Command, proj *project, path string, plan []int) error {
	timeoutSecs, err := intFlag(cmd, "timeout")
	if err != nil {
		return err
	}
	interp, err := cmd.Flags().GetString("python")
	if err != nil {
		return fmt.Errorf("failed to read --python flag: %w", err)
	}

	job, err := proj.Jobs.Create(path, plan, os.Getpid())
	if err != nil {
		return err
	}

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	worker := exec.Command(self, "exec-job",
		"--job", job.ID,
		"--timeout", strconv.Itoa(timeoutSecs),
		"--python", interp,
		path)
	worker.Stdout = nil
	worker.Stderr = nil
	if err := worker.Start(); err != nil {
		_ = proj.Jobs.Fail(job, fmt.Sprintf("start worker: %v", err))
		return fmt.Errorf("start worker: %w", err)
	}

	job.PID = worker.Process.Pid
	if err := proj.Jobs.Update(job); err != nil {
		return err
	}
	// The worker outlives this process; drop the handle so exiting
	// does not tear it down.
	_ = worker.Process.Release()

	_ = proj.Log.Append("job", fmt.Sprintf("started %s for %s cells %v", job.ID, path, plan))
	fmt.Printf("started job %s (pid %d)\n", job.ID, job.PID)
	return nil
}
