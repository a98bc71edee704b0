package reconcile

import (
	"github.com/jxucoder/dasa/internal/analyzer"
	"github.com/jxucoder/dasa/internal/graph"
	"github.com/jxucoder/dasa/internal/notebook"
)

// AnalyzeCells runs the static analyzer over every code cell and builds
// the dependency graph from the results.
func AnalyzeCells(a *analyzer.Analyzer, cells []notebook.Cell) (map[int]analyzer.Analysis, *graph.Graph) {
	analyses := make(map[int]analyzer.Analysis)
	sources := make([]graph.CellSource, 0, len(cells))

	for _, cell := range cells {
		if !cell.IsCode() {
			continue
		}
		analysis := a.Analyze(cell.Source)
		analyses[cell.Index] = analysis
		sources = append(sources, graph.CellSource{
			Index:       cell.Index,
			Definitions: analysis.Definitions,
			References:  analysis.References,
		})
	}

	return analyses, graph.Build(sources)
}
