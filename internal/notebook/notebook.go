// Package notebook loads computational documents into a common cell
// model. Adapters are read-only analysis inputs: the core never mutates
// cells, it only reads snapshots.
package notebook

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnsupportedFormat is returned for document extensions no adapter handles.
var ErrUnsupportedFormat = errors.New("unsupported notebook format")

const (
	CellCode     = "code"
	CellMarkdown = "markdown"
	CellRaw      = "raw"
)

// Cell is a unit of code or prose at a fixed position in a document.
type Cell struct {
	Index  int
	Type   string
	Source string

	// Outputs are kept opaque; they are only ever hashed for equality.
	Outputs []json.RawMessage

	// ExecutionCount is the counter the document format itself recorded,
	// nil if the cell has no counter.
	ExecutionCount *int
}

// IsCode reports whether the cell holds executable code.
func (c Cell) IsCode() bool {
	return c.Type == CellCode
}

// Preview returns the first line of source, truncated for display.
func (c Cell) Preview() string {
	firstLine, _, _ := strings.Cut(c.Source, "\n")
	if len(firstLine) > 50 {
		return firstLine[:50] + "..."
	}
	return firstLine
}

// OutputText flattens the cell's recorded outputs to plain text:
// stream text plus any text/plain representation of results, in
// recorded order. Rich outputs without a text form contribute nothing.
func (c Cell) OutputText() string {
	var b strings.Builder
	for _, raw := range c.Outputs {
		var out struct {
			Text json.RawMessage            `json:"text"`
			Data map[string]json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &out); err != nil {
			continue
		}
		if len(out.Text) > 0 {
			b.WriteString(decodeTextField(out.Text))
		}
		if plain, ok := out.Data["text/plain"]; ok {
			b.WriteString(decodeTextField(plain))
		}
	}
	return b.String()
}

func decodeTextField(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var lines []string
	if err := json.Unmarshal(raw, &lines); err == nil {
		return strings.Join(lines, "")
	}
	return ""
}

// Adapter is the read surface over one loaded document.
type Adapter interface {
	// Path returns the document path the adapter was opened with.
	Path() string

	// Cells returns all cells in document order.
	Cells() []Cell

	// CodeCells returns only code cells, in document order.
	CodeCells() []Cell

	// Cell returns the cell at index, or an OutOfRangeError naming the
	// valid range.
	Cell(index int) (Cell, error)

	// Reload re-reads the document from disk, picking up external edits.
	Reload() error
}

// OutOfRangeError reports a cell index outside the document and the
// valid range.
type OutOfRangeError struct {
	Index int
	Count int
}

func (e *OutOfRangeError) Error() string {
	if e.Count == 0 {
		return fmt.Sprintf("cell index %d out of range (document has no cells)", e.Index)
	}
	return fmt.Sprintf("cell index %d out of range (document has %d cells, indices 0-%d)",
		e.Index, e.Count, e.Count-1)
}

// ExecutionOrder returns the indices of code cells that carry a
// recorded counter, sorted by counter ascending.
func ExecutionOrder(cells []Cell) []int {
	type counted struct {
		index, count int
	}
	executed := make([]counted, 0, len(cells))
	for _, c := range cells {
		if c.IsCode() && c.ExecutionCount != nil {
			executed = append(executed, counted{index: c.Index, count: *c.ExecutionCount})
		}
	}
	sort.Slice(executed, func(i, j int) bool { return executed[i].count < executed[j].count })

	out := make([]int, len(executed))
	for i, c := range executed {
		out[i] = c.index
	}
	return out
}

func cellAt(cells []Cell, index int) (Cell, error) {
	if index < 0 || index >= len(cells) {
		return Cell{}, &OutOfRangeError{Index: index, Count: len(cells)}
	}
	return cells[index], nil
}

func codeCells(cells []Cell) []Cell {
	out := make([]Cell, 0, len(cells))
	for _, c := range cells {
		if c.IsCode() {
			out = append(out, c)
		}
	}
	return out
}
