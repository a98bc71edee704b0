package notebook

import (
	"context"
	"fmt"
	"os"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// MarimoAdapter reads marimo .py notebooks. Each @app.cell function is
// one code cell; the function body (dedented) is the cell source.
// Marimo cells carry no recorded counter of their own, so a synthetic
// counter matching document order is reported: a marimo file is always
// internally consistent.
type MarimoAdapter struct {
	path  string
	cells []Cell
}

// OpenMarimo loads a marimo .py document.
func OpenMarimo(path string) (*MarimoAdapter, error) {
	a := &MarimoAdapter{path: path}
	if err := a.Reload(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *MarimoAdapter) Path() string {
	return a.path
}

func (a *MarimoAdapter) Cells() []Cell {
	return a.cells
}

func (a *MarimoAdapter) CodeCells() []Cell {
	return codeCells(a.cells)
}

func (a *MarimoAdapter) Cell(index int) (Cell, error) {
	return cellAt(a.cells, index)
}

func (a *MarimoAdapter) Reload() error {
	data, err := os.ReadFile(a.path)
	if err != nil {
		return fmt.Errorf("read notebook %s: %w", a.path, err)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(python.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, data)
	if err != nil {
		return fmt.Errorf("parse notebook %s: %w", a.path, err)
	}
	defer tree.Close()

	lines := strings.Split(string(data), "\n")
	cells := make([]Cell, 0)

	root := tree.RootNode()
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		if child.Type() != "decorated_definition" {
			continue
		}
		fn := child.ChildByFieldName("definition")
		if fn == nil || fn.Type() != "function_definition" || !hasCellDecorator(child, data) {
			continue
		}
		body := fn.ChildByFieldName("body")
		if body == nil {
			continue
		}

		index := len(cells)
		count := index + 1
		cells = append(cells, Cell{
			Index:          index,
			Type:           CellCode,
			Source:         dedentLines(lines, int(body.StartPoint().Row), int(body.EndPoint().Row)),
			ExecutionCount: &count,
		})
	}

	a.cells = cells
	return nil
}

// hasCellDecorator reports whether a decorated definition carries
// @app.cell or @app.cell(...).
func hasCellDecorator(node *sitter.Node, content []byte) bool {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		if child.Type() != "decorator" {
			continue
		}
		text := strings.TrimSpace(child.Content(content))
		text = strings.TrimPrefix(text, "@")
		if text == "app.cell" || strings.HasPrefix(text, "app.cell(") {
			return true
		}
	}
	return false
}

// dedentLines returns source lines startRow..endRow shifted left by the
// smallest indentation of a non-empty line.
func dedentLines(lines []string, startRow, endRow int) string {
	if startRow >= len(lines) {
		return ""
	}
	if endRow >= len(lines) {
		endRow = len(lines) - 1
	}
	body := lines[startRow : endRow+1]

	minIndent := -1
	for _, line := range body {
		if strings.TrimSpace(line) == "" {
			continue
		}
		indent := len(line) - len(strings.TrimLeft(line, " \t"))
		if minIndent == -1 || indent < minIndent {
			minIndent = indent
		}
	}
	if minIndent <= 0 {
		return strings.TrimRight(strings.Join(body, "\n"), "\n")
	}

	out := make([]string, len(body))
	for i, line := range body {
		if len(line) >= minIndent {
			out[i] = line[minIndent:]
		} else {
			out[i] = strings.TrimSpace(line)
		}
	}
	return strings.TrimRight(strings.Join(out, "\n"), "\n")
}
