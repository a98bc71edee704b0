// Package reconcile merges three independently-drifting views of a
// document (the persisted cells with their recorded counters, the
// execution ledger, and the static dependency graph) into one
// authoritative per-cell status.
package reconcile

import (
	"fmt"
	"sort"

	"github.com/jxucoder/dasa/internal/analyzer"
	"github.com/jxucoder/dasa/internal/graph"
	"github.com/jxucoder/dasa/internal/ledger"
	"github.com/jxucoder/dasa/internal/notebook"
)

// Severity of an issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Kind is a machine-checkable issue code.
type Kind string

const (
	KindUndefinedName Kind = "undefined-name"
	KindNeverExecuted Kind = "never-executed"
	KindCodeModified  Kind = "code-modified"
	KindUpstreamStale Kind = "upstream-stale"
	KindOutOfOrder    Kind = "out-of-order"
	KindParseFailed   Kind = "parse-failed"
)

// Issue is one classified problem on one cell.
type Issue struct {
	Kind     Kind     `json:"kind"`
	Severity Severity `json:"severity"`
	Cell     int      `json:"cell"`

	// Name is the variable involved, for undefined-name and
	// upstream-stale issues.
	Name string `json:"name,omitempty"`

	// UpstreamCell is the cited producer for upstream-stale and
	// out-of-order issues, -1 otherwise.
	UpstreamCell int `json:"upstream_cell"`

	Message    string `json:"message"`
	Suggestion string `json:"suggestion,omitempty"`
}

// Status is the reconciled view of one code cell.
type Status struct {
	Index int `json:"index"`

	// EverExecuted is true if EITHER the document recorded a counter OR
	// a ledger entry exists. Both sources alone are incomplete: a
	// notebook run in a foreign tool has only the counter, one run only
	// through this tool has only the ledger entry.
	EverExecuted bool `json:"ever_executed"`

	Stale bool `json:"stale"`

	// Reason is the first-match classification used for display:
	// code-modified, upstream-stale or never-executed. Empty when none
	// apply. All applicable issues are still recorded in Issues.
	Reason Kind `json:"reason,omitempty"`

	Issues     []Issue `json:"issues"`
	Upstream   []int   `json:"upstream"`
	Downstream []int   `json:"downstream"`
}

// Reconcile computes per-cell status for every code cell. It is a pure
// recomputation: calling it twice with the same inputs yields the same
// result, and nothing is incrementally patched.
func Reconcile(
	docPath string,
	cells []notebook.Cell,
	analyses map[int]analyzer.Analysis,
	g *graph.Graph,
	led *ledger.Ledger,
	allow map[string]bool,
) map[int]*Status {
	code := make([]notebook.Cell, 0, len(cells))
	for _, c := range cells {
		if c.IsCode() {
			code = append(code, c)
		}
	}
	sort.Slice(code, func(i, j int) bool { return code[i].Index < code[j].Index })

	statuses := make(map[int]*Status, len(code))
	directStale := make(map[int]bool, len(code))
	stale := make(map[int]bool, len(code))

	definedAnywhere := make(map[string]bool)
	for _, an := range analyses {
		for name := range an.Definitions {
			definedAnywhere[name] = true
		}
	}

	for _, cell := range code {
		idx := cell.Index

		st := &Status{
			Index:      idx,
			Issues:     make([]Issue, 0),
			Upstream:   g.Upstream(idx),
			Downstream: g.Downstream(idx),
		}
		statuses[idx] = st

		st.EverExecuted = cell.ExecutionCount != nil || led.WasEverExecuted(docPath, idx)

		// Direct edit staleness needs a prior record from this system:
		// a cell only ever run in a foreign tool has no hash to compare.
		directStale[idx] = led.WasEverExecuted(docPath, idx) && led.IsStale(docPath, idx, cell.Source)

		// Edges only point backward in index, so a single forward pass
		// propagates staleness transitively.
		stale[idx] = directStale[idx]
		for _, up := range g.DirectUpstream(idx) {
			if stale[up] {
				stale[idx] = true
				break
			}
		}
		st.Stale = stale[idx]

		if analyses[idx].ParseFailed {
			st.Issues = append(st.Issues, Issue{
				Kind:         KindParseFailed,
				Severity:     SeverityInfo,
				Cell:         idx,
				UpstreamCell: -1,
				Message:      "cell source could not be parsed; treated as having no static effect",
			})
		}

		for _, name := range g.Unresolved(idx) {
			if allow[name] {
				continue
			}
			suggestion := fmt.Sprintf("make sure a cell defining %q runs before this cell", name)
			if near, ok := NearestName(name, definedAnywhere); ok {
				suggestion = fmt.Sprintf("did you mean %q?", near)
			}
			st.Issues = append(st.Issues, Issue{
				Kind:         KindUndefinedName,
				Severity:     SeverityError,
				Cell:         idx,
				Name:         name,
				UpstreamCell: -1,
				Message:      fmt.Sprintf("uses undefined name %q", name),
				Suggestion:   suggestion,
			})
		}

		if directStale[idx] {
			st.Issues = append(st.Issues, Issue{
				Kind:         KindCodeModified,
				Severity:     SeverityWarning,
				Cell:         idx,
				UpstreamCell: -1,
				Message:      "code modified since last run",
				Suggestion:   "re-run this cell",
			})
		}

		if up, name, ok := firstStaleUpstream(g, idx, stale); ok {
			st.Issues = append(st.Issues, Issue{
				Kind:         KindUpstreamStale,
				Severity:     SeverityWarning,
				Cell:         idx,
				Name:         name,
				UpstreamCell: up,
				Message:      fmt.Sprintf("depends on stale upstream cell %d (via %q)", up, name),
				Suggestion:   fmt.Sprintf("re-run cell %d first", up),
			})
		}

		if !st.EverExecuted {
			st.Issues = append(st.Issues, Issue{
				Kind:         KindNeverExecuted,
				Severity:     SeverityWarning,
				Cell:         idx,
				UpstreamCell: -1,
				Message:      "cell has never been executed",
				Suggestion:   "run this cell",
			})
		}

		for _, up := range g.DirectUpstream(idx) {
			upCell, ok := cellByIndex(code, up)
			if !ok || upCell.ExecutionCount == nil || cell.ExecutionCount == nil {
				continue
			}
			if *upCell.ExecutionCount > *cell.ExecutionCount {
				st.Issues = append(st.Issues, Issue{
					Kind:         KindOutOfOrder,
					Severity:     SeverityWarning,
					Cell:         idx,
					UpstreamCell: up,
					Message:      fmt.Sprintf("executed out of order relative to cell %d", up),
					Suggestion:   "re-run cells in document order",
				})
			}
		}

		st.Reason = classify(directStale[idx], st.Stale, st.EverExecuted)
	}

	return statuses
}

// classify picks the displayed reason: direct edit first, then
// propagated staleness, then never-executed.
func classify(direct, stale, everExecuted bool) Kind {
	switch {
	case direct:
		return KindCodeModified
	case stale:
		return KindUpstreamStale
	case !everExecuted:
		return KindNeverExecuted
	default:
		return ""
	}
}

// firstStaleUpstream finds the lowest-index stale direct upstream and
// the lexically-first name shared with it.
func firstStaleUpstream(g *graph.Graph, idx int, stale map[int]bool) (int, string, bool) {
	for _, up := range g.DirectUpstream(idx) {
		if !stale[up] {
			continue
		}
		names := g.SharedNames(up, idx)
		if len(names) == 0 {
			return up, "", true
		}
		return up, names[0], true
	}
	return -1, "", false
}

func cellByIndex(cells []notebook.Cell, index int) (notebook.Cell, bool) {
	for _, c := range cells {
		if c.Index == index {
			return c, true
		}
	}
	return notebook.Cell{}, false
}

// HasErrors reports whether any status carries an error-severity issue.
func HasErrors(statuses map[int]*Status) bool {
	for _, st := range statuses {
		for _, issue := range st.Issues {
			if issue.Severity == SeverityError {
				return true
			}
		}
	}
	return false
}

// StaleCells returns the indices of all stale cells, sorted.
func StaleCells(statuses map[int]*Status) []int {
	out := make([]int, 0)
	for idx, st := range statuses {
		if st.Stale {
			out = append(out, idx)
		}
	}
	sort.Ints(out)
	return out
}

// NeverExecutedCells returns the indices of cells that never ran, sorted.
func NeverExecutedCells(statuses map[int]*Status) []int {
	out := make([]int, 0)
	for idx, st := range statuses {
		if !st.EverExecuted {
			out = append(out, idx)
		}
	}
	sort.Ints(out)
	return out
}
