package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jxucoder/dasa/internal/config"
	"github.com/jxucoder/dasa/internal/executor"
	"github.com/jxucoder/dasa/internal/replay"
	"github.com/jxucoder/dasa/internal/session"
)

func jobsManager(cmd *cobra.Command) (*session.JobManager, error) {
	dir, err := cmd.Flags().GetString("dir")
	if err != nil {
		return nil, fmt.Errorf("failed to read --dir flag: %w", err)
	}
	return session.NewJobManager(filepath.Join(dir, config.Dir)), nil
}

func RunJobs(cmd *cobra.Command, args []string) error {
	asJSON, err := boolFlag(cmd, "json")
	if err != nil {
		return err
	}
	mgr, err := jobsManager(cmd)
	if err != nil {
		return err
	}
	jobs, err := mgr.List()
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(jobs)
	}
	if len(jobs) == 0 {
		fmt.Println("no jobs")
		return nil
	}
	for _, job := range jobs {
		fmt.Printf("%s  %-9s  %s  cells %v  started %s\n",
			job.ID[:8], job.Status, job.Notebook, job.Cells,
			job.StartedAt.Format(time.RFC3339))
	}
	return nil
}

func RunJobStatus(cmd *cobra.Command, args []string) error {
	asJSON, err := boolFlag(cmd, "json")
	if err != nil {
		return err
	}
	mgr, err := jobsManager(cmd)
	if err != nil {
		return err
	}
	job, err := mgr.Get(args[0])
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(job)
	}
	fmt.Printf("job %s: %s\n", job.ID, job.Status)
	fmt.Printf("  notebook: %s\n", job.Notebook)
	fmt.Printf("  cells:    %v\n", job.Cells)
	fmt.Printf("  started:  %s\n", job.StartedAt.Format(time.RFC3339))
	if job.CompletedAt != nil {
		fmt.Printf("  finished: %s\n", job.CompletedAt.Format(time.RFC3339))
	}
	if job.Error != "" {
		fmt.Printf("  error:    %s\n", job.Error)
	}
	return nil
}

func RunJobResult(cmd *cobra.Command, args []string) error {
	mgr, err := jobsManager(cmd)
	if err != nil {
		return err
	}
	job, err := mgr.Get(args[0])
	if err != nil {
		return err
	}
	if !job.Finished() {
		return fmt.Errorf("job %s is still running", job.ID)
	}
	if job.Error != "" {
		return fmt.Errorf("job %s %s: %s", job.ID, job.Status, job.Error)
	}
	if len(job.Result) == 0 {
		fmt.Println("no result recorded")
		return nil
	}
	var pretty any
	if err := json.Unmarshal(job.Result, &pretty); err != nil {
		return fmt.Errorf("decode job result: %w", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(pretty)
}

func RunJobCancel(cmd *cobra.Command, args []string) error {
	mgr, err := jobsManager(cmd)
	if err != nil {
		return err
	}
	job, err := mgr.Cancel(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("cancelled job %s\n", job.ID)
	return nil
}

// RunExecJob is the hidden worker entrypoint spawned by run --async.
// It executes the job's planned cells and reports through the job file
// rather than stdout.
func RunExecJob(cmd *cobra.Command, args []string) error {
	jobID, err := cmd.Flags().GetString("job")
	if err != nil {
		return fmt.Errorf("failed to read --job flag: %w", err)
	}
	interp, err := cmd.Flags().GetString("python")
	if err != nil {
		return fmt.Errorf("failed to read --python flag: %w", err)
	}

	proj, err := openProject(args[0])
	if err != nil {
		return err
	}
	job, err := proj.Jobs.Get(jobID)
	if err != nil {
		return err
	}
	timeout, err := runTimeout(cmd, proj)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, os.Interrupt)
	defer stop()

	sess, err := executor.NewPythonSession(interp)
	if err != nil {
		return proj.Jobs.Fail(job, fmt.Sprintf("start interpreter: %v", err))
	}
	defer sess.Close()

	runner := &replay.Runner{
		Executor: sess,
		Ledger:   proj.Ledger,
		Timeout:  timeout,
	}

	out, err := runner.Run(ctx, proj.DocKey, proj.Notebook, job.Cells)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// The cancelling process already recorded the state change.
			return nil
		}
		return proj.Jobs.Fail(job, err.Error())
	}
	if !out.Completed() {
		_ = proj.Log.Append("job", fmt.Sprintf("%s failed at cell %d", job.ID, out.FailedCell))
		job.Result, _ = json.Marshal(out)
		return proj.Jobs.Fail(job, fmt.Sprintf("cell %d failed", out.FailedCell))
	}
	_ = proj.Log.Append("job", fmt.Sprintf("%s completed %d cell(s)", job.ID, len(out.Steps)))
	return proj.Jobs.Complete(job, out)
}
