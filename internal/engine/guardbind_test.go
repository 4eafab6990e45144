package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenticaivc/intentgraph/internal/guard"
	"github.com/agenticaivc/intentgraph/pkg/graph"
)

func stubGuardFactory(name string, config map[string]any) (guard.Guard, error) {
	return &passthroughGuard{name: name}, nil
}

type passthroughGuard struct{ name string }

func (g *passthroughGuard) Name() string                                                { return g.name }
func (g *passthroughGuard) Init(ctx context.Context) error                              { return nil }
func (g *passthroughGuard) Validate(ctx context.Context, in guard.Input) (guard.Result, error) {
	return guard.Result{Status: guard.StatusSuccess}, nil
}
func (g *passthroughGuard) Execute(ctx context.Context, in guard.Input) (guard.Result, error) {
	return guard.Result{Status: guard.StatusSuccess}, nil
}
func (g *passthroughGuard) Cleanup(ctx context.Context) error { return nil }

func TestBuildNodeGuards_ShouldAttachGuardsToDeclaredNodes(t *testing.T) {
	registry := guard.NewRegistry()
	require.NoError(t, registry.Register("rbac", stubGuardFactory))

	g := &graph.Graph{
		Nodes: []graph.Node{{ID: "submit"}, {ID: "review"}},
		Guards: []graph.GuardDecl{
			{Name: "only-reviewers", Type: graph.GuardTypeRBAC, ApplyTo: graph.ApplyTo{NodeIDs: []string{"review"}}},
		},
	}

	guards, err := BuildNodeGuards(g, registry)

	require.NoError(t, err)
	assert.Contains(t, guards, "review")
	assert.NotContains(t, guards, "submit")
}

type trackingGuard struct {
	passthroughGuard
	initCalls    *int
	cleanupCalls *int
	initErr      error
}

func (g *trackingGuard) Init(ctx context.Context) error {
	*g.initCalls++
	return g.initErr
}

func (g *trackingGuard) Cleanup(ctx context.Context) error {
	*g.cleanupCalls++
	return nil
}

func TestNodeGuards_Init_ShouldInitEveryNodesRunner(t *testing.T) {
	var initCalls, cleanupCalls int
	guards := NodeGuards{
		"submit": guard.NewRunner([]guard.Instance{
			{Name: "g1", Guard: &trackingGuard{passthroughGuard: passthroughGuard{name: "g1"}, initCalls: &initCalls, cleanupCalls: &cleanupCalls}},
		}),
		"review": guard.NewRunner([]guard.Instance{
			{Name: "g2", Guard: &trackingGuard{passthroughGuard: passthroughGuard{name: "g2"}, initCalls: &initCalls, cleanupCalls: &cleanupCalls}},
		}),
	}

	err := guards.Init(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, initCalls)
}

func TestNodeGuards_Init_ShouldAbort_WhenAnyNodesGuardInitFails(t *testing.T) {
	var initCalls, cleanupCalls int
	guards := NodeGuards{
		"submit": guard.NewRunner([]guard.Instance{
			{Name: "g1", Guard: &trackingGuard{passthroughGuard: passthroughGuard{name: "g1"}, initCalls: &initCalls, cleanupCalls: &cleanupCalls, initErr: assert.AnError}},
		}),
	}

	err := guards.Init(context.Background())
	assert.Error(t, err)
}

func TestNodeGuards_Cleanup_ShouldCleanupEveryNodesRunner(t *testing.T) {
	var initCalls, cleanupCalls int
	guards := NodeGuards{
		"submit": guard.NewRunner([]guard.Instance{
			{Name: "g1", Guard: &trackingGuard{passthroughGuard: passthroughGuard{name: "g1"}, initCalls: &initCalls, cleanupCalls: &cleanupCalls}},
		}),
		"review": guard.NewRunner([]guard.Instance{
			{Name: "g2", Guard: &trackingGuard{passthroughGuard: passthroughGuard{name: "g2"}, initCalls: &initCalls, cleanupCalls: &cleanupCalls}},
		}),
	}

	err := guards.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, cleanupCalls)
}

func TestBuildNodeGuards_ShouldError_WhenGuardTypeUnregistered(t *testing.T) {
	registry := guard.NewRegistry()

	g := &graph.Graph{
		Nodes: []graph.Node{{ID: "submit"}},
		Guards: []graph.GuardDecl{
			{Name: "x", Type: graph.GuardTypeRBAC, ApplyTo: graph.ApplyTo{NodeIDs: []string{"submit"}}},
		},
	}

	_, err := BuildNodeGuards(g, registry)
	assert.Error(t, err)
}
