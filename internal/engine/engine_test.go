package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenticaivc/intentgraph/internal/config"
	"github.com/agenticaivc/intentgraph/internal/guard"
	"github.com/agenticaivc/intentgraph/internal/observer"
	"github.com/agenticaivc/intentgraph/pkg/graph"
)

func approvalGraph() *graph.Graph {
	return &graph.Graph{
		Metadata: graph.Metadata{Name: "approval-flow", Version: "1.0.0"},
		Nodes: []graph.Node{
			{ID: "submit", Handler: "echo"},
			{ID: "review", Handler: "echo"},
		},
		Edges: []graph.Edge{
			{ID: "e1", From: "submit", To: "review", Kind: graph.EdgeKindSequence},
		},
		Config: graph.Config{Concurrency: graph.ConcurrencyConfig{MaxParallel: 2}},
	}
}

func engineDefaults() config.EngineConfig {
	return config.EngineConfig{
		DefaultTimeout:       5 * time.Second,
		DefaultMaxParallel:   5,
		DefaultMaxAttempts:   3,
		DefaultBackoffMult:   2,
		MaxParallelWarnAbove: 50,
		TimeoutWarnAbove:     time.Hour,
	}
}

func TestEngine_Execute_ShouldSucceed_WhenGraphIsValidAndHandlersSucceed(t *testing.T) {
	registry := NewMapHandlerRegistry()
	registry.Register("echo", func(ctx context.Context, node graph.Node, nodeCtx *NodeContext) (any, error) {
		return node.ID, nil
	})

	obsManager := observer.NewManager(nil)
	captured := newMockCapture()
	require.NoError(t, obsManager.Register(captured))

	e := New(engineDefaults(), registry, obsManager, nil)
	result, err := e.Execute(context.Background(), approvalGraph(), nil, nil, ExecutionOptions{})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.ElementsMatch(t, []string{"submit", "review"}, result.CompletedNodes)

	waitForEvents(t, captured, 2)
	types := captured.types()
	assert.Contains(t, types, observer.EventTypeExecutionStarted)
	assert.Contains(t, types, observer.EventTypeExecutionCompleted)
}

func TestEngine_Execute_ShouldRejectCycle_BeforeRunningAnyNode(t *testing.T) {
	g := &graph.Graph{
		Nodes: []graph.Node{{ID: "A", Handler: "echo"}, {ID: "B", Handler: "echo"}},
		Edges: []graph.Edge{
			{ID: "e1", From: "A", To: "B", Kind: graph.EdgeKindSequence},
			{ID: "e2", From: "B", To: "A", Kind: graph.EdgeKindSequence},
		},
	}
	e := New(engineDefaults(), NewMapHandlerRegistry(), nil, nil)

	_, err := e.Execute(context.Background(), g, nil, nil, ExecutionOptions{})
	require.Error(t, err)
}

func TestEngine_Execute_ShouldInitAndCleanupEveryBoundGuard_ExactlyOnce(t *testing.T) {
	var initCalls, cleanupCalls int

	registry := NewMapHandlerRegistry()
	registry.Register("echo", func(ctx context.Context, node graph.Node, nodeCtx *NodeContext) (any, error) {
		return node.ID, nil
	})

	guards := NodeGuards{
		"review": guard.NewRunner([]guard.Instance{
			{Name: "g1", Guard: &trackingGuard{passthroughGuard: passthroughGuard{name: "g1"}, initCalls: &initCalls, cleanupCalls: &cleanupCalls}},
		}),
	}

	e := New(engineDefaults(), registry, nil, nil)
	result, err := e.Execute(context.Background(), approvalGraph(), nil, guards, ExecutionOptions{})

	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, 1, initCalls)
	assert.Equal(t, 1, cleanupCalls)
}

func TestEngine_Execute_ShouldAbortBeforeValidation_WhenGuardInitFails(t *testing.T) {
	var initCalls, cleanupCalls int

	guards := NodeGuards{
		"review": guard.NewRunner([]guard.Instance{
			{Name: "g1", Guard: &trackingGuard{passthroughGuard: passthroughGuard{name: "g1"}, initCalls: &initCalls, cleanupCalls: &cleanupCalls, initErr: assert.AnError}},
		}),
	}

	// A graph with a cycle would fail validation; if guard init runs first
	// and errors, we should see the init error, not a cycle error, and
	// cleanup should still run via the deferred pass.
	g := &graph.Graph{
		Nodes: []graph.Node{{ID: "A", Handler: "echo"}, {ID: "review", Handler: "echo"}},
		Edges: []graph.Edge{
			{ID: "e1", From: "A", To: "review", Kind: graph.EdgeKindSequence},
			{ID: "e2", From: "review", To: "A", Kind: graph.EdgeKindSequence},
		},
	}

	e := New(engineDefaults(), NewMapHandlerRegistry(), nil, nil)
	_, err := e.Execute(context.Background(), g, nil, guards, ExecutionOptions{})

	require.Error(t, err)
	assert.Equal(t, 1, initCalls)
	assert.Equal(t, 1, cleanupCalls, "cleanup must still run even though init failed")
}

type mockCapture struct {
	mu     sync.Mutex
	events []observer.Event
}

func newMockCapture() *mockCapture {
	return &mockCapture{}
}

func (m *mockCapture) Name() string                { return "capture" }
func (m *mockCapture) Filter() observer.EventFilter { return nil }
func (m *mockCapture) OnEvent(ctx context.Context, event observer.Event) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	return nil
}

func (m *mockCapture) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *mockCapture) types() []observer.EventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]observer.EventType, len(m.events))
	for i, e := range m.events {
		out[i] = e.Type
	}
	return out
}

func waitForEvents(t *testing.T, m *mockCapture, n int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if m.count() >= n {
			return
		}
		time.Sleep(time.Millisecond)
	}
}
