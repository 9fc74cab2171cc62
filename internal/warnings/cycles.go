package warnings

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/jward/codegraph/internal/model"
)

// importCycles reports every strongly connected component of the local
// import graph that contains a cycle.
func importCycles(in Input, ix *moduleIndex) []model.Warning {
	graph := localTargets(in, ix)
	for k, targets := range graph {
		sort.Strings(targets)
		graph[k] = slices.Compact(targets)
	}

	var out []model.Warning
	for _, comp := range components(graph) {
		if len(comp) == 1 && !slices.Contains(graph[comp[0]], comp[0]) {
			continue
		}
		cycle := shortestCycle(graph, comp)
		ids := make([]string, len(comp))
		for i, f := range comp {
			ids[i] = model.FileID(f)
		}
		title := fmt.Sprintf("Circular import between %d files", len(comp))
		if len(comp) == 1 {
			title = "File imports itself"
		}
		out = append(out, model.Warning{
			Category:      CategoryCircularImport,
			Level:         model.LevelWarning,
			Title:         title,
			Description:   "Import cycle: " + strings.Join(cycle, " -> "),
			AffectedNodes: ids,
			FilePath:      comp[0],
			Suggestion:    "Move the shared code into a module both sides import, or invert one of the dependencies.",
		})
	}
	return out
}

// components returns the strongly connected components of graph with each
// component's members sorted, in order of their first member.
func components(graph map[string][]string) [][]string {
	nodes := make([]string, 0, len(graph))
	for n := range graph {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)

	var (
		index   = map[string]int{}
		low     = map[string]int{}
		onStack = map[string]bool{}
		stack   []string
		next    int
		out     [][]string
	)
	var connect func(v string)
	connect = func(v string) {
		index[v], low[v] = next, next
		next++
		stack = append(stack, v)
		onStack[v] = true
		for _, w := range graph[v] {
			if _, seen := index[w]; !seen {
				connect(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], index[w])
			}
		}
		if low[v] != index[v] {
			return
		}
		var comp []string
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[w] = false
			comp = append(comp, w)
			if w == v {
				break
			}
		}
		sort.Strings(comp)
		out = append(out, comp)
	}
	for _, n := range nodes {
		if _, seen := index[n]; !seen {
			connect(n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

// shortestCycle finds a shortest cycle through comp[0] that stays inside
// comp, returned with the start repeated at the end.
func shortestCycle(graph map[string][]string, comp []string) []string {
	start := comp[0]
	inComp := map[string]bool{}
	for _, f := range comp {
		inComp[f] = true
	}
	parent := map[string]string{}
	queue := []string{start}
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, w := range graph[v] {
			if !inComp[w] {
				continue
			}
			if w == start {
				path := []string{start}
				for u := v; u != start; u = parent[u] {
					path = append(path, u)
				}
				// path is start followed by the walk back; reverse the tail.
				for i, j := 1, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				return append(path, start)
			}
			if _, seen := parent[w]; !seen {
				parent[w] = v
				queue = append(queue, w)
			}
		}
	}
	return append(append([]string{}, comp...), start)
}
