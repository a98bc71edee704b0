// Package replay computes and executes the minimal cell sequence
// needed to bring a set of target cells up to date.
package replay

import (
	"sort"

	"github.com/jxucoder/dasa/internal/graph"
)

// Plan returns the cells to execute for the given targets: each target
// plus its transitive upstream closure, minus cells already warm, in
// ascending document order. Ascending order is always a valid schedule
// because dependency edges only point to earlier cells.
func Plan(g *graph.Graph, targets []int, warm map[int]bool) []int {
	need := make(map[int]bool)
	for _, t := range targets {
		need[t] = true
		for _, up := range g.Upstream(t) {
			need[up] = true
		}
	}

	plan := make([]int, 0, len(need))
	for idx := range need {
		if warm[idx] {
			continue
		}
		plan = append(plan, idx)
	}
	sort.Ints(plan)
	return plan
}
