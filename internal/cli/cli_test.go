package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

type fixtureCell struct {
	source string
	count  *int
}

func counted(n int) *int { return &n }

func mustWriteNotebook(t *testing.T, path string, cells []fixtureCell) {
	t.Helper()
	type rawCell struct {
		CellType       string   `json:"cell_type"`
		Source         []string `json:"source"`
		Outputs        []any    `json:"outputs"`
		ExecutionCount *int     `json:"execution_count"`
		Metadata       struct{} `json:"metadata"`
	}
	doc := map[string]any{
		"nbformat":       4,
		"nbformat_minor": 5,
		"metadata":       map[string]any{},
	}
	raw := make([]rawCell, len(cells))
	for i, c := range cells {
		raw[i] = rawCell{
			CellType:       "code",
			Source:         []string{c.source},
			Outputs:        []any{},
			ExecutionCount: c.count,
		}
	}
	doc["cells"] = raw
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("encode notebook: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write notebook: %v", err)
	}
}

func testCmd(t *testing.T, name ...string) *cobra.Command {
	t.Helper()
	cmd, _, err := NewRootCommand("test").Find(name)
	if err != nil {
		t.Fatalf("find %v: %v", name, err)
	}
	return cmd
}

func mustSetFlag(t *testing.T, cmd *cobra.Command, name, value string) {
	t.Helper()
	if err := cmd.Flags().Set(name, value); err != nil {
		t.Fatalf("set --%s=%s: %v", name, value, err)
	}
}

func TestCheckCleanNotebook(t *testing.T) {
	nb := filepath.Join(t.TempDir(), "clean.ipynb")
	mustWriteNotebook(t, nb, []fixtureCell{
		{source: "x = 1", count: counted(1)},
		{source: "y = x + 1", count: counted(2)},
	})

	if err := RunCheck(testCmd(t, "check"), []string{nb}); err != nil {
		t.Fatalf("clean notebook must pass check: %v", err)
	}
}

func TestCheckUndefinedNameFails(t *testing.T) {
	nb := filepath.Join(t.TempDir(), "broken.ipynb")
	mustWriteNotebook(t, nb, []fixtureCell{
		{source: "print(nonexistent_name)", count: counted(1)},
	})

	err := RunCheck(testCmd(t, "check"), []string{nb})
	if err == nil {
		t.Fatalf("undefined name must make check fail")
	}
	if !strings.Contains(err.Error(), "error") {
		t.Fatalf("failure should count errors, got %v", err)
	}
}

func TestCheckMissingNotebook(t *testing.T) {
	if err := RunCheck(testCmd(t, "check"), []string{filepath.Join(t.TempDir(), "absent.ipynb")}); err == nil {
		t.Fatalf("missing notebook must fail")
	}
}

func TestDepsUnknownCell(t *testing.T) {
	nb := filepath.Join(t.TempDir(), "deps.ipynb")
	mustWriteNotebook(t, nb, []fixtureCell{{source: "x = 1", count: counted(1)}})

	cmd := testCmd(t, "deps")
	mustSetFlag(t, cmd, "cell", "7")
	if err := RunDeps(cmd, []string{nb}); err == nil {
		t.Fatalf("asking for a non-code cell must fail")
	}
}

func TestSelectTargets(t *testing.T) {
	nb := filepath.Join(t.TempDir(), "run.ipynb")
	mustWriteNotebook(t, nb, []fixtureCell{
		{source: "x = 1", count: counted(1)},
		{source: "y = x", count: counted(2)},
		{source: "z = y", count: nil},
	})
	proj, err := openProject(nb)
	if err != nil {
		t.Fatalf("open project: %v", err)
	}

	cases := []struct {
		name  string
		flags map[string]string
		want  []int
	}{
		{"explicit cell", map[string]string{"cell": "1"}, []int{1}},
		{"range", map[string]string{"from": "1", "to": "2"}, []int{1, 2}},
		{"open range", map[string]string{"from": "1"}, []int{1, 2}},
		{"all", map[string]string{"all": "true"}, []int{0, 1, 2}},
		{"stale picks never-executed", map[string]string{"stale": "true"}, []int{2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cmd := testCmd(t, "run")
			for k, v := range tc.flags {
				mustSetFlag(t, cmd, k, v)
			}
			got, err := selectTargets(cmd, proj)
			if err != nil {
				t.Fatalf("selectTargets: %v", err)
			}
			if !reflect.DeepEqual(got, tc.want) {
				t.Fatalf("targets = %v, want %v", got, tc.want)
			}
		})
	}

	t.Run("no selection fails", func(t *testing.T) {
		if _, err := selectTargets(testCmd(t, "run"), proj); err == nil {
			t.Fatalf("missing selection flags must fail")
		}
	})

	t.Run("non-code cell fails", func(t *testing.T) {
		cmd := testCmd(t, "run")
		mustSetFlag(t, cmd, "cell", "9")
		if _, err := selectTargets(cmd, proj); err == nil {
			t.Fatalf("out-of-range cell must fail")
		}
	})
}

func TestLedgerShowAndReset(t *testing.T) {
	dir := t.TempDir()
	nb := filepath.Join(dir, "led.ipynb")
	mustWriteNotebook(t, nb, []fixtureCell{{source: "x = 1", count: counted(1)}})

	if err := RunLedgerShow(testCmd(t, "ledger", "show"), []string{nb}); err != nil {
		t.Fatalf("show on empty ledger: %v", err)
	}

	proj, err := openProject(nb)
	if err != nil {
		t.Fatalf("open project: %v", err)
	}
	if err := proj.Ledger.Record(proj.DocKey, 0, "x = 1"); err != nil {
		t.Fatalf("record: %v", err)
	}
	if len(proj.Ledger.Entries(proj.DocKey)) != 1 {
		t.Fatalf("expected one recorded entry")
	}

	if err := RunLedgerReset(testCmd(t, "ledger", "reset"), []string{nb}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	proj, err = openProject(nb)
	if err != nil {
		t.Fatalf("reopen project: %v", err)
	}
	if len(proj.Ledger.Entries(proj.DocKey)) != 0 {
		t.Fatalf("reset must clear the document's entries")
	}
}

func TestLedgerResetFeedsBackIntoCheck(t *testing.T) {
	dir := t.TempDir()
	nb := filepath.Join(dir, "cycle.ipynb")
	mustWriteNotebook(t, nb, []fixtureCell{{source: "x = 1", count: counted(1)}})

	proj, err := openProject(nb)
	if err != nil {
		t.Fatalf("open project: %v", err)
	}
	// Record stale code, then confirm reconciliation sees it.
	if err := proj.Ledger.Record(proj.DocKey, 0, "x = 999"); err != nil {
		t.Fatalf("record: %v", err)
	}
	statuses := proj.Reconcile()
	if !statuses[0].Stale {
		t.Fatalf("modified code must reconcile as stale")
	}

	if err := RunLedgerReset(testCmd(t, "ledger", "reset"), []string{nb}); err != nil {
		t.Fatalf("reset: %v", err)
	}
	proj, err = openProject(nb)
	if err != nil {
		t.Fatalf("reopen project: %v", err)
	}
	if statuses := proj.Reconcile(); statuses[0].Stale {
		t.Fatalf("reset must clear staleness")
	}
}

func TestLogCommandEmpty(t *testing.T) {
	cmd := testCmd(t, "log")
	mustSetFlag(t, cmd, "dir", t.TempDir())
	if err := RunLog(cmd, nil); err != nil {
		t.Fatalf("log on empty project: %v", err)
	}
}

func TestJobsCommandEmpty(t *testing.T) {
	cmd := testCmd(t, "jobs")
	mustSetFlag(t, cmd, "dir", t.TempDir())
	if err := RunJobs(cmd, nil); err != nil {
		t.Fatalf("jobs on empty project: %v", err)
	}
}

func TestConfigAllowlistSuppressesCheck(t *testing.T) {
	dir := t.TempDir()
	nb := filepath.Join(dir, "ambient.ipynb")
	mustWriteNotebook(t, nb, []fixtureCell{
		{source: "spark.read.csv('data.csv')", count: counted(1)},
	})
	configBody := "ambient_names:\n  - spark\n"
	if err := os.MkdirAll(filepath.Join(dir, ".dasa"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".dasa", "config.yaml"), []byte(configBody), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	if err := RunCheck(testCmd(t, "check"), []string{nb}); err != nil {
		t.Fatalf("allow-listed name must not fail check: %v", err)
	}
}

func TestCheckReportCounts(t *testing.T) {
	nb := filepath.Join(t.TempDir(), "counts.ipynb")
	mustWriteNotebook(t, nb, []fixtureCell{
		{source: "a = 1", count: counted(1)},
		{source: "b = missing", count: nil},
	})
	proj, err := openProject(nb)
	if err != nil {
		t.Fatalf("open project: %v", err)
	}

	report := buildCheckReport(nb, proj.Reconcile())
	if report.CodeCells != 2 {
		t.Fatalf("expected 2 code cells, got %d", report.CodeCells)
	}
	if report.Errors != 1 {
		t.Fatalf("expected 1 error (undefined name), got %d", report.Errors)
	}
	if !reflect.DeepEqual(report.NeverExecuted, []int{1}) {
		t.Fatalf("never executed = %v, want [1]", report.NeverExecuted)
	}
}

func TestMissingNameFromDetail(t *testing.T) {
	if got := missingNameFromDetail("name 'total_sale' is not defined"); got != "total_sale" {
		t.Fatalf("missingNameFromDetail = %q", got)
	}
	if got := missingNameFromDetail("division by zero"); got != "" {
		t.Fatalf("non-NameError detail must yield nothing, got %q", got)
	}
}

func TestCheckCellFlag(t *testing.T) {
	nb := filepath.Join(t.TempDir(), "single.ipynb")
	mustWriteNotebook(t, nb, []fixtureCell{
		{source: "a = 1", count: counted(1)},
		{source: "b = a", count: counted(2)},
	})

	cmd := testCmd(t, "check")
	mustSetFlag(t, cmd, "cell", "1")
	if err := RunCheck(cmd, []string{nb}); err != nil {
		t.Fatalf("check --cell on a clean cell: %v", err)
	}

	cmd = testCmd(t, "check")
	mustSetFlag(t, cmd, "cell", "9")
	if err := RunCheck(cmd, []string{nb}); err == nil {
		t.Fatalf("check --cell out of range must fail")
	}
}

func TestFormatIndices(t *testing.T) {
	if got := formatIndices(nil); got != "none" {
		t.Fatalf("formatIndices(nil) = %q", got)
	}
	if got := formatIndices([]int{1, 3}); got != "1, 3" {
		t.Fatalf("formatIndices = %q", got)
	}
}
