package notebook

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// JupyterAdapter reads .ipynb documents (nbformat 4).
type JupyterAdapter struct {
	path  string
	cells []Cell
}

type rawNotebook struct {
	Cells []rawCell `json:"cells"`
}

type rawCell struct {
	CellType       string            `json:"cell_type"`
	Source         json.RawMessage   `json:"source"`
	Outputs        []json.RawMessage `json:"outputs"`
	ExecutionCount *int              `json:"execution_count"`
}

// OpenJupyter loads a .ipynb document.
func OpenJupyter(path string) (*JupyterAdapter, error) {
	a := &JupyterAdapter{path: path}
	if err := a.Reload(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *JupyterAdapter) Path() string {
	return a.path
}

func (a *JupyterAdapter) Cells() []Cell {
	return a.cells
}

func (a *JupyterAdapter) CodeCells() []Cell {
	return codeCells(a.cells)
}

func (a *JupyterAdapter) Cell(index int) (Cell, error) {
	return cellAt(a.cells, index)
}

func (a *JupyterAdapter) Reload() error {
	data, err := os.ReadFile(a.path)
	if err != nil {
		return fmt.Errorf("read notebook %s: %w", a.path, err)
	}

	var nb rawNotebook
	if err := json.Unmarshal(data, &nb); err != nil {
		return fmt.Errorf("parse notebook %s: %w", a.path, err)
	}

	cells := make([]Cell, 0, len(nb.Cells))
	for i, raw := range nb.Cells {
		cells = append(cells, Cell{
			Index:          i,
			Type:           raw.CellType,
			Source:         decodeSource(raw.Source),
			Outputs:        raw.Outputs,
			ExecutionCount: raw.ExecutionCount,
		})
	}
	a.cells = cells
	return nil
}

// decodeSource handles both nbformat source encodings: a single string
// or a list of line strings.
func decodeSource(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return single
	}

	var lines []string
	if err := json.Unmarshal(raw, &lines); err == nil {
		return strings.Join(lines, "")
	}

	return ""
}
