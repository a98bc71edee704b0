package reconcile

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/jxucoder/dasa/internal/analyzer"
	"github.com/jxucoder/dasa/internal/graph"
	"github.com/jxucoder/dasa/internal/ledger"
	"github.com/jxucoder/dasa/internal/notebook"
)

func codeCell(index int, source string, count *int) notebook.Cell {
	return notebook.Cell{Index: index, Type: notebook.CellCode, Source: source, ExecutionCount: count}
}

func intp(v int) *int { return &v }

func buildFixture(t *testing.T, cells []notebook.Cell) (map[int]analyzer.Analysis, *graph.Graph) {
	t.Helper()
	return AnalyzeCells(analyzer.New(), cells)
}

func newLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	return ledger.Open(filepath.Join(t.TempDir(), "state.json"))
}

func TestEverExecutedORSemantics(t *testing.T) {
	cells := []notebook.Cell{
		codeCell(0, "a = 1", intp(3)), // counter only
		codeCell(1, "b = 2", nil),     // ledger only
		codeCell(2, "c = 3", nil),     // neither
	}
	analyses, g := buildFixture(t, cells)

	led := newLedger(t)
	if err := led.Record("nb.ipynb", 1, "b = 2"); err != nil {
		t.Fatalf("record: %v", err)
	}

	statuses := Reconcile("nb.ipynb", cells, analyses, g, led, nil)

	if !statuses[0].EverExecuted {
		t.Fatalf("counter without ledger entry must count as executed")
	}
	if !statuses[1].EverExecuted {
		t.Fatalf("ledger entry without counter must count as executed")
	}
	if statuses[2].EverExecuted {
		t.Fatalf("cell 2 has no execution evidence")
	}
	expectIssue(t, statuses[2], KindNeverExecuted, SeverityWarning)
	if statuses[2].Reason != KindNeverExecuted {
		t.Fatalf("expected never-executed reason, got %q", statuses[2].Reason)
	}
}

func TestDirectAndPropagatedStaleness(t *testing.T) {
	cells := []notebook.Cell{
		codeCell(0, "x = 10", intp(1)),
		codeCell(1, "y = x + 1", intp(2)),
		codeCell(2, "z = y * 2", intp(3)),
		codeCell(3, "w = 5", intp(4)),
	}
	analyses, g := buildFixture(t, cells)

	led := newLedger(t)
	// Cell 0 was recorded with different code: directly stale.
	if err := led.Record("nb.ipynb", 0, "x = 1"); err != nil {
		t.Fatalf("record: %v", err)
	}
	for idx, src := range map[int]string{1: "y = x + 1", 2: "z = y * 2", 3: "w = 5"} {
		if err := led.Record("nb.ipynb", idx, src); err != nil {
			t.Fatalf("record: %v", err)
		}
	}

	statuses := Reconcile("nb.ipynb", cells, analyses, g, led, nil)

	if !statuses[0].Stale || statuses[0].Reason != KindCodeModified {
		t.Fatalf("cell 0 must be directly stale, got %+v", statuses[0])
	}
	expectIssue(t, statuses[0], KindCodeModified, SeverityWarning)

	if !statuses[1].Stale || statuses[1].Reason != KindUpstreamStale {
		t.Fatalf("cell 1 must be propagated stale, got %+v", statuses[1])
	}
	issue := findIssue(t, statuses[1], KindUpstreamStale)
	if issue.UpstreamCell != 0 || issue.Name != "x" {
		t.Fatalf("upstream-stale must cite cell 0 via x, got %+v", issue)
	}

	if !statuses[2].Stale {
		t.Fatalf("staleness must propagate transitively to cell 2")
	}
	issue = findIssue(t, statuses[2], KindUpstreamStale)
	if issue.UpstreamCell != 1 || issue.Name != "y" {
		t.Fatalf("cell 2 cites its direct stale producer, got %+v", issue)
	}

	if statuses[3].Stale {
		t.Fatalf("independent cell 3 must stay fresh")
	}
	if statuses[3].Reason != "" {
		t.Fatalf("fresh executed cell has no reason, got %q", statuses[3].Reason)
	}
}

func TestForeignExecutionIsNotStale(t *testing.T) {
	// Counter present, no ledger entry: executed elsewhere. Without a
	// recorded hash there is nothing to compare, so not stale.
	cells := []notebook.Cell{codeCell(0, "a = 1", intp(1))}
	analyses, g := buildFixture(t, cells)

	statuses := Reconcile("nb.ipynb", cells, analyses, g, newLedger(t), nil)

	if statuses[0].Stale {
		t.Fatalf("foreign-executed cell must not be stale")
	}
	if !statuses[0].EverExecuted {
		t.Fatalf("foreign-executed cell counts as executed")
	}
}

func TestUndefinedNameDetection(t *testing.T) {
	cells := []notebook.Cell{codeCell(0, "print(q)", intp(1))}
	analyses, g := buildFixture(t, cells)

	statuses := Reconcile("nb.ipynb", cells, analyses, g, newLedger(t), nil)

	issue := findIssue(t, statuses[0], KindUndefinedName)
	if issue.Severity != SeverityError || issue.Cell != 0 || issue.Name != "q" {
		t.Fatalf("undefined-name issue must cite cell and name, got %+v", issue)
	}
}

func TestUndefinedNameSuggestsNearMiss(t *testing.T) {
	cells := []notebook.Cell{
		codeCell(0, "total_sales = 100", intp(1)),
		codeCell(1, "print(total_sale)", intp(2)),
	}
	analyses, g := buildFixture(t, cells)

	statuses := Reconcile("nb.ipynb", cells, analyses, g, newLedger(t), nil)

	issue := findIssue(t, statuses[1], KindUndefinedName)
	if issue.Suggestion != `did you mean "total_sales"?` {
		t.Fatalf("expected near-miss suggestion, got %q", issue.Suggestion)
	}
}

func TestUndefinedNameAllowlist(t *testing.T) {
	cells := []notebook.Cell{codeCell(0, "spark.read.csv(path)", intp(1))}
	analyses, g := buildFixture(t, cells)

	allow := map[string]bool{"spark": true}
	statuses := Reconcile("nb.ipynb", cells, analyses, g, newLedger(t), allow)

	for _, issue := range statuses[0].Issues {
		if issue.Kind == KindUndefinedName && issue.Name == "spark" {
			t.Fatalf("allow-listed name must not be flagged")
		}
	}
	// path is still undefined.
	issue := findIssue(t, statuses[0], KindUndefinedName)
	if issue.Name != "path" {
		t.Fatalf("expected path flagged, got %+v", issue)
	}
}

func TestOutOfOrderWarning(t *testing.T) {
	// Cell 0 produces x but ran after its consumer.
	cells := []notebook.Cell{
		codeCell(0, "x = 1", intp(5)),
		codeCell(1, "y = x", intp(2)),
	}
	analyses, g := buildFixture(t, cells)

	led := newLedger(t)
	if err := led.Record("nb.ipynb", 0, "x = 1"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if err := led.Record("nb.ipynb", 1, "y = x"); err != nil {
		t.Fatalf("record: %v", err)
	}

	statuses := Reconcile("nb.ipynb", cells, analyses, g, led, nil)

	issue := findIssue(t, statuses[1], KindOutOfOrder)
	if issue.Severity != SeverityWarning || issue.UpstreamCell != 0 {
		t.Fatalf("out-of-order must warn on the consumer citing the producer, got %+v", issue)
	}
	// Out-of-order alone never sets staleness.
	if statuses[1].Stale {
		t.Fatalf("out-of-order is independent of staleness")
	}
}

func TestParseFailureIsInformational(t *testing.T) {
	cells := []notebook.Cell{codeCell(0, "def broken(:", nil)}
	analyses, g := buildFixture(t, cells)

	statuses := Reconcile("nb.ipynb", cells, analyses, g, newLedger(t), nil)

	issue := findIssue(t, statuses[0], KindParseFailed)
	if issue.Severity != SeverityInfo {
		t.Fatalf("parse failure must be informational, got %+v", issue)
	}
	if HasErrors(statuses) {
		t.Fatalf("an unparseable cell alone must not produce errors")
	}
}

func TestReconcileIsIdempotent(t *testing.T) {
	cells := []notebook.Cell{
		codeCell(0, "x = 1", intp(2)),
		codeCell(1, "y = x + unknown", intp(1)),
		codeCell(2, "z = y", nil),
	}
	analyses, g := buildFixture(t, cells)

	led := newLedger(t)
	if err := led.Record("nb.ipynb", 0, "x = 0"); err != nil {
		t.Fatalf("record: %v", err)
	}

	first := Reconcile("nb.ipynb", cells, analyses, g, led, nil)
	second := Reconcile("nb.ipynb", cells, analyses, g, led, nil)

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("reconcile must be idempotent with no intervening changes")
	}
}

func TestStaleAndNeverExecutedHelpers(t *testing.T) {
	cells := []notebook.Cell{
		codeCell(0, "x = 1", intp(1)),
		codeCell(1, "y = x", nil),
	}
	analyses, g := buildFixture(t, cells)

	led := newLedger(t)
	if err := led.Record("nb.ipynb", 0, "x = 9"); err != nil {
		t.Fatalf("record: %v", err)
	}

	statuses := Reconcile("nb.ipynb", cells, analyses, g, led, nil)

	if got := StaleCells(statuses); !reflect.DeepEqual(got, []int{0, 1}) {
		t.Fatalf("expected stale cells [0 1], got %v", got)
	}
	if got := NeverExecutedCells(statuses); !reflect.DeepEqual(got, []int{1}) {
		t.Fatalf("expected never-executed [1], got %v", got)
	}
}

func expectIssue(t *testing.T, st *Status, kind Kind, severity Severity) {
	t.Helper()
	issue := findIssue(t, st, kind)
	if issue.Severity != severity {
		t.Fatalf("expected %s severity %s, got %s", kind, severity, issue.Severity)
	}
}

func findIssue(t *testing.T, st *Status, kind Kind) Issue {
	t.Helper()
	for _, issue := range st.Issues {
		if issue.Kind == kind {
			return issue
		}
	}
	t.Fatalf("expected issue %s on cell %d, got %+v", kind, st.Index, st.Issues)
	return Issue{}
}
