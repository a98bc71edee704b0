package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

// CellDeps is one cell's slice of the dependency graph.
type CellDeps struct {
	Cell        int      `json:"cell"`
	Preview     string   `json:"preview"`
	Defines     []string `json:"defines,omitempty"`
	Upstream    []int    `json:"upstream"`
	Downstream  []int    `json:"downstream"`
	Unresolved  []string `json:"unresolved,omitempty"`
	ParseFailed bool     `json:"parse_failed,omitempty"`
}

func RunDeps(cmd *cobra.Command, args []string) error {
	asJSON, err := boolFlag(cmd, "json")
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

	var deps []CellDeps
	for _, idx := range proj.Graph.Indices() {
		if cellIdx >= 0 && idx != cellIdx {
			continue
		}
		deps = append(deps, cellDeps(proj, idx))
	}
	if cellIdx >= 0 && len(deps) == 0 {
		return fmt.Errorf("cell %d is not a code cell in %s", cellIdx, args[0])
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(deps)
	}

	for _, d := range deps {
		fmt.Printf("cell %d: %s\n", d.Cell, d.Preview)
		if len(d.Defines) > 0 {
			fmt.Printf("  defines:    %s\n", strings.Join(d.Defines, ", "))
		}
		fmt.Printf("  upstream:   %s\n", formatIndices(d.Upstream))
		fmt.Printf("  downstream: %s\n", formatIndices(d.Downstream))
		if len(d.Unresolved) > 0 {
			fmt.Printf("  unresolved: %s\n", strings.Join(d.Unresolved, ", "))
		}
		if d.ParseFailed {
			fmt.Printf("  (cell did not parse; dependencies unknown)\n")
		}
	}
	return nil
}

func cellDeps(proj *project, idx int) CellDeps {
	d := CellDeps{
		Cell:        idx,
		Upstream:    proj.Graph.Upstream(idx),
		Downstream:  proj.Graph.Downstream(idx),
		Unresolved:  proj.Graph.Unresolved(idx),
		ParseFailed: proj.Analyses[idx].ParseFailed,
	}
	if cell, err := proj.Notebook.Cell(idx); err == nil {
		d.Preview = cell.Preview()
	}
	for name := range proj.Analyses[idx].Definitions {
		d.Defines = append(d.Defines, name)
	}
	sort.Strings(d.Defines)
	return d
}

func formatIndices(indices []int) string {
	if len(indices) == 0 {
		return "none"
	}
	parts := make([]string, len(indices))
	for i, idx := range indices {
		parts[i] = fmt.Sprintf("%d", idx)
	}
	return strings.Join(parts, ", ")
}
