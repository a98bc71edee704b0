package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func NewRootCommand(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dasa",
		Short: "Keep notebook state honest",
		Long: `Dasa analyzes the dependency structure of a notebook, tracks what
actually executed, and reconciles the two: which cells are stale,
which never ran, and which read variables nothing defines.

Execution records live in a .dasa/ directory next to the notebook.`,
		SilenceUsage: true,
	}

	// Inspect Commands
	checkCmd := &cobra.Command{
		Use:   "check <notebook>",
		Short: "Report stale, never-executed and broken cells",
		Args:  cobra.ExactArgs(1),
		RunE:  RunCheck,
	}
	checkCmd.Flags().Bool("json", false, "Print machine-readable check report")
	checkCmd.Flags().Bool("stale", false, "Only show cells that need re-running")
	checkCmd.Flags().Int("cell", -1, "Limit the report to one cell")

	depsCmd := &cobra.Command{
		Use:   "deps <notebook>",
		Short: "Show the variable dependency graph between cells",
		Args:  cobra.ExactArgs(1),
		RunE:  RunDeps,
	}
	depsCmd.Flags().Bool("json", false, "Print machine-readable dependency output")
	depsCmd.Flags().Int("cell", -1, "Limit output to one cell")

	// Execute Commands
	runCmd := &cobra.Command{
		Use:   "run <notebook>",
		Short: "Execute cells plus the upstream cells they depend on",
		Args:  cobra.ExactArgs(1),
		RunE:  RunRun,
	}
	runCmd.Flags().IntSlice("cell", nil, "Cell indices to run (upstream producers run first)")
	runCmd.Flags().Int("from", -1, "First cell index of a range")
	runCmd.Flags().Int("to", -1, "Last cell index of a range")
	runCmd.Flags().Bool("all", false, "Run every code cell")
	runCmd.Flags().Bool("stale", false, "Run only stale and never-executed cells")
	runCmd.Flags().Int("timeout", 0, "Per-cell timeout in seconds (default from config)")
	runCmd.Flags().Bool("async", false, "Run in a background job and return immediately")
	runCmd.Flags().Bool("json", false, "Print machine-readable run outcome")
	runCmd.Flags().String("python", "python3", "Python interpreter to execute with")
	runCmd.Flags().Bool("names", false, "Print the namespace contents after the run")

	replayCmd := &cobra.Command{
		Use:   "replay <notebook>",
		Short: "Re-run the whole notebook fresh and score reproducibility",
		Args:  cobra.ExactArgs(1),
		RunE:  RunReplay,
	}
	replayCmd.Flags().Bool("json", false, "Print machine-readable replay report")
	replayCmd.Flags().Bool("strict", false, "Fail when any recorded output differs")
	replayCmd.Flags().Int("timeout", 0, "Per-cell timeout in seconds (default from config)")
	replayCmd.Flags().String("python", "python3", "Python interpreter to execute with")

	// Ledger Commands
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect or clear the execution ledger",
	}
	ledgerShowCmd := &cobra.Command{
		Use:   "show <notebook>",
		Short: "List recorded executions for a notebook",
		Args:  cobra.ExactArgs(1),
		RunE:  RunLedgerShow,
	}
	ledgerShowCmd.Flags().Bool("json", false, "Print machine-readable ledger entries")
	ledgerShowCmd.Flags().Bool("all", false, "List every document in the store")
	ledgerResetCmd := &cobra.Command{
		Use:   "reset <notebook>",
		Short: "Forget recorded executions for a notebook",
		Args:  cobra.ExactArgs(1),
		RunE:  RunLedgerReset,
	}
	ledgerResetCmd.Flags().Bool("all", false, "Clear records for every document in the store")
	ledgerCmd.AddCommand(ledgerShowCmd, ledgerResetCmd)

	// Job Commands
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "List background jobs",
		RunE:  RunJobs,
	}
	jobsCmd.Flags().Bool("json", false, "Print machine-readable job list")
	jobsCmd.Flags().String("dir", ".", "Project directory holding the job state")

	statusCmd := &cobra.Command{
		Use:   "status <job-id>",
		Short: "Show one background job",
		Args:  cobra.ExactArgs(1),
		RunE:  RunJobStatus,
	}
	statusCmd.Flags().Bool("json", false, "Print machine-readable job status")
	statusCmd.Flags().String("dir", ".", "Project directory holding the job state")

	resultCmd := &cobra.Command{
		Use:   "result <job-id>",
		Short: "Print a finished job's run outcome",
		Args:  cobra.ExactArgs(1),
		RunE:  RunJobResult,
	}
	resultCmd.Flags().String("dir", ".", "Project directory holding the job state")

	cancelCmd := &cobra.Command{
		Use:   "cancel <job-id>",
		Short: "Stop a running background job",
		Args:  cobra.ExactArgs(1),
		RunE:  RunJobCancel,
	}
	cancelCmd.Flags().String("dir", ".", "Project directory holding the job state")

	execJobCmd := &cobra.Command{
		Use:    "exec-job <notebook>",
		Hidden: true,
		Args:   cobra.ExactArgs(1),
		RunE:   RunExecJob,
	}
	execJobCmd.Flags().String("job", "", "Job id to execute")
	execJobCmd.Flags().Int("timeout", 0, "Per-cell timeout in seconds")
	execJobCmd.Flags().String("python", "python3", "Python interpreter to execute with")

	// Additional Commands
	logCmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent activity from the session log",
		RunE:  RunLog,
	}
	logCmd.Flags().Int("n", 20, "Number of lines to show (0 for all)")
	logCmd.Flags().String("dir", ".", "Project directory holding the session log")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dasa %s\n", version)
		},
	}

	rootCmd.AddCommand(
		checkCmd,
		depsCmd,
		runCmd,
		replayCmd,
		ledgerCmd,
		jobsCmd,
		statusCmd,
		resultCmd,
		cancelCmd,
		execJobCmd,
		logCmd,
		versionCmd,
	)

	return rootCmd
}
