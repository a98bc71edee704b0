package notebook

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const sampleNotebook = `{
  "nbformat": 4,
  "nbformat_minor": 5,
  "metadata": {},
  "cells": [
    {
      "cell_type": "markdown",
      "metadata": {},
      "source": ["# Analysis\n", "Notes here."]
    },
    {
      "cell_type": "code",
      "metadata": {},
      "execution_count": 2,
      "outputs": [{"output_type": "stream", "name": "stdout", "text": "1\n"}],
      "source": ["x = 1\n", "print(x)"]
    },
    {
      "cell_type": "code",
      "metadata": {},
      "execution_count": 1,
      "outputs": [],
      "source": "y = x + 1"
    },
    {
      "cell_type": "code",
      "metadata": {},
      "execution_count": null,
      "outputs": [],
      "source": "z = y * 2"
    }
  ]
}`

func writeSample(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write sample: %v", err)
	}
	return path
}

func TestJupyterAdapterLoads(t *testing.T) {
	path := writeSample(t, "nb.ipynb", sampleNotebook)

	a, err := OpenJupyter(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	cells := a.Cells()
	if len(cells) != 4 {
		t.Fatalf("expected 4 cells, got %d", len(cells))
	}
	if cells[0].Type != CellMarkdown || cells[0].IsCode() {
		t.Fatalf("cell 0 should be markdown")
	}
	if cells[1].Source != "x = 1\nprint(x)" {
		t.Fatalf("line-array source mishandled: %q", cells[1].Source)
	}
	if cells[2].Source != "y = x + 1" {
		t.Fatalf("string source mishandled: %q", cells[2].Source)
	}
	if cells[1].ExecutionCount == nil || *cells[1].ExecutionCount != 2 {
		t.Fatalf("expected execution count 2 on cell 1")
	}
	if cells[3].ExecutionCount != nil {
		t.Fatalf("null execution_count must load as nil")
	}
	if len(cells[1].Outputs) != 1 {
		t.Fatalf("expected one opaque output on cell 1")
	}

	code := a.CodeCells()
	if len(code) != 3 || code[0].Index != 1 {
		t.Fatalf("unexpected code cells %v", code)
	}
}

func TestCellOutOfRange(t *testing.T) {
	path := writeSample(t, "nb.ipynb", sampleNotebook)

	a, err := OpenJupyter(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	_, err = a.Cell(99)
	var oor *OutOfRangeError
	if !errors.As(err, &oor) {
		t.Fatalf("expected OutOfRangeError, got %v", err)
	}
	if oor.Index != 99 || oor.Count != 4 {
		t.Fatalf("error must carry index and count, got %+v", oor)
	}
}

func TestExecutionOrder(t *testing.T) {
	path := writeSample(t, "nb.ipynb", sampleNotebook)

	a, err := OpenJupyter(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	// Cell 2 ran first (counter 1), then cell 1 (counter 2); cell 3 never ran.
	want := []int{2, 1}
	if got := ExecutionOrder(a.Cells()); !reflect.DeepEqual(got, want) {
		t.Fatalf("expected order %v, got %v", want, got)
	}
}

func TestMarimoAdapterExtractsCells(t *testing.T) {
	path := writeSample(t, "nb.py", `import marimo

app = marimo.App()


@app.cell
def _():
    import pandas as pd
    return (pd,)


@app.cell(hide_code=True)
def _(pd):
    df = pd.DataFrame()
    return (df,)


def helper():
    return 1
`)

	a, err := OpenMarimo(path)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}

	cells := a.Cells()
	if len(cells) != 2 {
		t.Fatalf("expected 2 cells, got %d", len(cells))
	}
	if cells[0].Source != "import pandas as pd\nreturn (pd,)" {
		t.Fatalf("unexpected cell 0 source %q", cells[0].Source)
	}
	if cells[1].Source != "df = pd.DataFrame()\nreturn (df,)" {
		t.Fatalf("unexpected cell 1 source %q", cells[1].Source)
	}
	if cells[0].ExecutionCount == nil || *cells[0].ExecutionCount != 1 {
		t.Fatalf("marimo cells carry synthetic counters in document order")
	}
}

func TestOpenDispatchesByExtension(t *testing.T) {
	path := writeSample(t, "nb.ipynb", sampleNotebook)

	if _, err := Open(path); err != nil {
		t.Fatalf("open .ipynb failed: %v", err)
	}

	_, err := Open("notes.txt")
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestOutputText(t *testing.T) {
	cell := Cell{
		Outputs: []json.RawMessage{
			json.RawMessage(`{"output_type":"stream","name":"stdout","text":["hello ","world\n"]}`),
			json.RawMessage(`{"output_type":"execute_result","data":{"text/plain":"42"}}`),
			json.RawMessage(`{"output_type":"display_data","data":{"image/png":"aGk="}}`),
		},
	}
	if got := cell.OutputText(); got != "hello world\n42" {
		t.Fatalf("OutputText = %q", got)
	}

	empty := Cell{}
	if got := empty.OutputText(); got != "" {
		t.Fatalf("no outputs must flatten to empty, got %q", got)
	}
}
