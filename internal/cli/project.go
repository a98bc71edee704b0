package cli

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jxucoder/dasa/internal/analyzer"
	"github.com/jxucoder/dasa/internal/config"
	"github.com/jxucoder/dasa/internal/graph"
	"github.com/jxucoder/dasa/internal/ledger"
	"github.com/jxucoder/dasa/internal/notebook"
	"github.com/jxucoder/dasa/internal/reconcile"
	"github.com/jxucoder/dasa/internal/session"
)

// project bundles everything a command needs for one notebook: the
// opened document, per-cell analyses, the dependency graph, the
// ledger and the session log, all rooted at the notebook's directory.
type project struct {
	Notebook notebook.Adapter
	DocKey   string
	Analyses map[int]analyzer.Analysis
	Graph    *graph.Graph
	Ledger   *ledger.Ledger
	Config   *config.Config
	Log      *session.Log
	Jobs     *session.JobManager
	StateDir string
}

// openProject loads the notebook at path and the project state living
// next to it.
func openProject(path string) (*project, error) {
	nb, err := notebook.Open(path)
	if err != nil {
		return nil, err
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve notebook path: %w", err)
	}
	stateDir := filepath.Join(filepath.Dir(abs), config.Dir)

	cfg, err := config.Load(filepath.Dir(abs))
	if err != nil {
		return nil, err
	}

	a := analyzer.NewWithBuiltins(cfg.AmbientNames)
	analyses, g := reconcile.AnalyzeCells(a, nb.Cells())

	return &project{
		Notebook: nb,
		DocKey:   ledger.DocumentKey(abs),
		Analyses: analyses,
		Graph:    g,
		Ledger:   ledger.Open(filepath.Join(stateDir, "ledger.json")),
		Config:   cfg,
		Log:      session.OpenLog(stateDir),
		Jobs:     session.NewJobManager(stateDir),
		StateDir: stateDir,
	}, nil
}

// Reconcile computes the per-cell status map for the loaded notebook.
func (p *project) Reconcile() map[int]*reconcile.Status {
	return reconcile.Reconcile(p.DocKey, p.Notebook.Cells(), p.Analyses, p.Graph, p.Ledger, p.Config.Allowlist())
}

func boolFlag(cmd *cobra.Command, name string) (bool, error) {
	v, err := cmd.Flags().GetBool(name)
	if err != nil {
		return false, fmt.Errorf("failed to read --%s flag: %w", name, err)
	}
	return v, nil
}

func intFlag(cmd *cobra.Command, name string) (int, error) {
	v, err := cmd.Flags().GetInt(name)
	if err != nil {
		return 0, fmt.Errorf("failed to read --%s flag: %w", name, err)
	}
	return v, nil
}

func intSliceFlag(cmd *cobra.Command, name string) ([]int, error) {
	v, err := cmd.Flags().GetIntSlice(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read --%s flag: %w", name, err)
	}
	return v, nil
}
