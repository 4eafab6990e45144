package engine

import (
	"fmt"

	"github.com/agenticaivc/intentgraph/internal/guard"
	"github.com/agenticaivc/intentgraph/pkg/graph"
)

// BuildNodeGuards instantiates every guard declaration against registry and
// groups the resulting instances per node, in the declared order
// GuardsFor returns them (spec.md §3 GuardDecl.applyTo, §4.8).
func BuildNodeGuards(g *graph.Graph, registry *guard.Registry) (NodeGuards, error) {
	out := make(NodeGuards)
	for _, node := range g.Nodes {
		decls := g.GuardsFor(node.ID)
		if len(decls) == 0 {
			continue
		}
		instances := make([]guard.Instance, 0, len(decls))
		for _, decl := range decls {
			inst, err := registry.Build(string(decl.Type), decl.Name, decl.Config)
			if err != nil {
				return nil, fmt.Errorf("build guard %q for node %q: %w", decl.Name, node.ID, err)
			}
			instances = append(instances, guard.Instance{Name: decl.Name, Guard: inst})
		}
		out[node.ID] = guard.NewRunner(instances)
	}
	return out, nil
}
