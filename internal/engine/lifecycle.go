package engine

import "github.com/agenticaivc/intentgraph/pkg/graph"

// NodeLifecycle computes per-pass readiness for PENDING nodes and cascades
// SKIPPED on dependency failure (spec.md §4.4).
type NodeLifecycle struct {
	evaluator *graph.EdgeEvaluator
}

// NewNodeLifecycle constructs a NodeLifecycle against the given
// EdgeEvaluator.
func NewNodeLifecycle(evaluator *graph.EdgeEvaluator) *NodeLifecycle {
	return &NodeLifecycle{evaluator: evaluator}
}

// Pass examines every PENDING node once: nodes with no incoming edges, or
// whose every predecessor is COMPLETE with a satisfied edge, become ready;
// nodes with a FAILED or SKIPPED predecessor cascade to SKIPPED; all
// others remain pending (including the "short-circuited branch" case where
// a conditional edge's conditions were never met). Returns the newly-ready
// node ids.
func (l *NodeLifecycle) Pass(g *graph.Graph, es *graph.ExecutionState) []string {
	var ready []string

	for _, n := range g.Nodes {
		if es.Status(n.ID) != graph.StatusPending {
			continue
		}

		incoming := g.IncomingEdges(n.ID)
		incoming = withoutLoopEdges(incoming)

		if len(incoming) == 0 {
			es.TransitionReady(n.ID)
			ready = append(ready, n.ID)
			continue
		}

		if l.anyPredecessorTerminalBad(incoming, es) {
			es.TransitionSkipped(n.ID)
			continue
		}

		if l.allPredecessorsSatisfied(incoming, es) {
			es.TransitionReady(n.ID)
			ready = append(ready, n.ID)
		}
		// else: remains PENDING (dependency not yet complete, or its
		// edge's conditions are not yet/never satisfied).
	}

	return ready
}

func withoutLoopEdges(edges []graph.Edge) []graph.Edge {
	out := edges[:0:0]
	for _, e := range edges {
		if !e.IsLoop() {
			out = append(out, e)
		}
	}
	return out
}

func (l *NodeLifecycle) anyPredecessorTerminalBad(incoming []graph.Edge, es *graph.ExecutionState) bool {
	for _, e := range incoming {
		status := es.Status(e.From)
		if status == graph.StatusFailed || status == graph.StatusSkipped {
			return true
		}
	}
	return false
}

func (l *NodeLifecycle) allPredecessorsSatisfied(incoming []graph.Edge, es *graph.ExecutionState) bool {
	for _, e := range incoming {
		if es.Status(e.From) != graph.StatusComplete {
			return false
		}
		if !l.evaluator.Satisfied(e, es.OutputAsMap(e.From)) {
			return false
		}
	}
	return true
}
