package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/rulekernel/internal/ir"
)

// CycleWarning represents a potential trigger cascade loop.
//
// Cycles are warnings, not errors, because the dispatcher bounds cascades by
// depth and a guard condition may end the loop:
//   - A trigger that adds to a variable it also watches, guarded by When
//   - Two triggers moving tokens back and forth between zones
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["trig-a", "trig-b", "trig-a"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// AnalyzeCycles performs static cycle analysis on the tree's triggers.
//
// The algorithm:
//  1. Collect the events each trigger's effects can emit: tokenEntered for
//     every zone tokens move into, varChanged for every variable written
//  2. Add an edge from a trigger to every trigger whose matcher accepts one
//     of those events
//  3. Use Tarjan's algorithm to find strongly connected components
//  4. Report each SCC with size > 1 or self-loops as a potential cycle
//
// Zone selectors bound at run time ("$zone") are assumed to reach any zone,
// so the analysis over-approximates. Triggers without cycles return an empty
// warning list. Warnings follow trigger declaration order.
func AnalyzeCycles(tree *ir.RuleTree) []CycleWarning {
	warnings := []CycleWarning{}
	if tree == nil || len(tree.Triggers) == 0 {
		return warnings
	}

	graph := buildDependencyGraph(tree.Triggers)
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}
	return warnings
}

// dependencyGraph maps trigger_id → trigger ids its effects could fire.
// order keeps declaration order so traversal is deterministic.
type dependencyGraph struct {
	order []string
	edges map[string][]string
}

// emitted is a static over-approximation of one event an effect can emit.
type emitted struct {
	kind ir.EventKind
	zone string // zone selector for tokenEntered
	v    string // variable name for varChanged
}

// buildDependencyGraph constructs the trigger dependency graph.
func buildDependencyGraph(triggers []ir.TriggerDef) dependencyGraph {
	graph := dependencyGraph{edges: make(map[string][]string)}
	for _, t := range triggers {
		graph.order = append(graph.order, t.ID)
		graph.edges[t.ID] = []string{}
	}

	for _, t := range triggers {
		events := emittedEvents(t.Effects)
		for _, other := range triggers {
			for _, e := range events {
				if matcherAccepts(other.On, e) {
					graph.edges[t.ID] = append(graph.edges[t.ID], other.ID)
					break
				}
			}
		}
	}
	return graph
}

func emittedEvents(effs []ir.Effect) []emitted {
	var out []emitted
	walkEffects(effs, "", func(e ir.Effect, _ string) {
		for _, ref := range effectZones(e) {
			if ref.entered {
				out = append(out, emitted{kind: ir.EventTokenEntered, zone: ref.selector})
			}
		}
		if t, ok := effectTarget(e); ok {
			out = append(out, emitted{kind: ir.EventVarChanged, v: t.Var})
		}
	})
	return out
}

// matcherAccepts reports whether m could match an event described by e.
func matcherAccepts(m ir.EventMatcher, e emitted) bool {
	if m.Kind != e.kind || m.Phase != "" || m.Action != "" {
		return false
	}
	if m.Var != "" && m.Var != e.v {
		return false
	}
	if m.Zone == "" || e.zone == "" {
		return m.Zone == "" || e.kind != ir.EventTokenEntered
	}
	if strings.HasPrefix(e.zone, "$") {
		return true
	}
	base, _, owned := strings.Cut(e.zone, ":")
	if owned {
		// The player part is resolved at run time.
		mbase, _, _ := strings.Cut(m.Zone, ":")
		return base == mbase
	}
	return e.zone == m.Zone
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph dependencyGraph) bool {
	for _, neighbor := range graph.edges[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Returns a list of SCCs, where each SCC is a list of trigger IDs.
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph dependencyGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph.edges[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root node: pop the stack and emit an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, orderSCC(scc, graph.order))
		}
	}

	for _, node := range graph.order {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}

	return sccs
}

// orderSCC sorts SCC members by declaration order.
func orderSCC(scc []string, order []string) []string {
	members := make(map[string]bool, len(scc))
	for _, id := range scc {
		members[id] = true
	}
	out := make([]string, 0, len(scc))
	for _, id := range order {
		if members[id] {
			out = append(out, id)
		}
	}
	return out
}

// cycleSCCToWarning converts an SCC to a CycleWarning.
//
// For self-loops, the path is [trigger-id, trigger-id].
// For multi-node cycles, the path shows a cycle traversal.
func cycleSCCToWarning(scc []string, graph dependencyGraph) CycleWarning {
	if len(scc) == 1 {
		id := scc[0]
		return CycleWarning{
			Path:    []string{id, id},
			Message: fmt.Sprintf("Self-triggering trigger detected: %s → %s", id, id),
			Level:   "warning",
		}
	}

	path := reconstructCyclePath(scc, graph)
	return CycleWarning{
		Path:    path,
		Message: fmt.Sprintf("Potential trigger cycle detected: %s", strings.Join(path, " → ")),
		Level:   "warning",
	}
}

// reconstructCyclePath builds a cycle path from an SCC.
//
// Strategy: Start at first node in SCC, follow edges to other SCC members,
// continue until we return to start node.
func reconstructCyclePath(scc []string, graph dependencyGraph) []string {
	if len(scc) == 0 {
		return []string{}
	}

	sccSet := make(map[string]bool)
	for _, node := range scc {
		sccSet[node] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	visited := make(map[string]bool)

	for {
		visited[current] = true

		var next string
		for _, neighbor := range graph.edges[current] {
			if sccSet[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}

		if next == "" {
			break
		}

		path = append(path, next)

		if next == start {
			break
		}

		current = next
	}

	return path
}
