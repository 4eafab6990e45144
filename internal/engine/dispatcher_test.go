package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agenticaivc/intentgraph/internal/guard"
	"github.com/agenticaivc/intentgraph/pkg/graph"
)

type fixedGuard struct {
	result Result
}

type Result = guard.Result

func (g *fixedGuard) Name() string                                               { return "fixed" }
func (g *fixedGuard) Init(ctx context.Context) error                             { return nil }
func (g *fixedGuard) Validate(ctx context.Context, in guard.Input) (Result, error) { return Result{Status: guard.StatusSuccess}, nil }
func (g *fixedGuard) Execute(ctx context.Context, in guard.Input) (Result, error) {
	return g.result, nil
}
func (g *fixedGuard) Cleanup(ctx context.Context) error { return nil }

func TestDispatcher_Dispatch_ShouldFailHandlerMissing_WhenHandlerNotRegistered(t *testing.T) {
	d := NewDispatcher(NewMapHandlerRegistry(), nil)
	node := graph.Node{ID: "A", Handler: "missing.handler"}

	_, err := d.Dispatch(context.Background(), node, time.Second, &NodeContext{})
	require.Error(t, err)
	var engErr *graph.EngineError
	require.True(t, errors.As(err, &engErr))
	assert.Equal(t, graph.KindHandlerMissing, engErr.Kind)
}

func TestDispatcher_Dispatch_ShouldReturnOutput_WhenHandlerSucceeds(t *testing.T) {
	registry := NewMapHandlerRegistry()
	registry.Register("echo", func(ctx context.Context, node graph.Node, nodeCtx *NodeContext) (any, error) {
		return map[string]any{"ok": true}, nil
	})
	d := NewDispatcher(registry, nil)
	node := graph.Node{ID: "A", Handler: "echo"}

	result, err := d.Dispatch(context.Background(), node, time.Second, &NodeContext{})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, result.Output)
}

func TestDispatcher_Dispatch_ShouldBlock_WhenGuardBlocks(t *testing.T) {
	registry := NewMapHandlerRegistry()
	registry.Register("echo", func(ctx context.Context, node graph.Node, nodeCtx *NodeContext) (any, error) {
		return nil, nil
	})
	runner := guard.NewRunner([]guard.Instance{{Name: "fixed", Guard: &fixedGuard{result: Result{Status: guard.StatusBlock, Message: "nope"}}}})
	d := NewDispatcher(registry, NodeGuards{"A": runner})
	node := graph.Node{ID: "A", Handler: "echo"}

	_, err := d.Dispatch(context.Background(), node, time.Second, &NodeContext{})
	require.Error(t, err)
	var engErr *graph.EngineError
	require.True(t, errors.As(err, &engErr))
	assert.Equal(t, graph.KindGuardBlocked, engErr.Kind)
	assert.Equal(t, "fixed", engErr.GuardName)
}

func TestDispatcher_Dispatch_ShouldAttachWarning_WhenGuardWarns(t *testing.T) {
	registry := NewMapHandlerRegistry()
	registry.Register("echo", func(ctx context.Context, node graph.Node, nodeCtx *NodeContext) (any, error) {
		return "done", nil
	})
	runner := guard.NewRunner([]guard.Instance{{Name: "fixed", Guard: &fixedGuard{result: Result{Status: guard.StatusWarn, Message: "degraded"}}}})
	d := NewDispatcher(registry, NodeGuards{"A": runner})
	node := graph.Node{ID: "A", Handler: "echo"}

	result, err := d.Dispatch(context.Background(), node, time.Second, &NodeContext{})
	require.NoError(t, err)
	assert.Equal(t, "done", result.Output)
	assert.Equal(t, []string{"degraded"}, result.Warnings)
}

func TestDispatcher_Dispatch_ShouldTimeout_WhenHandlerOutlivesDeadline(t *testing.T) {
	registry := NewMapHandlerRegistry()
	registry.Register("slow", func(ctx context.Context, node graph.Node, nodeCtx *NodeContext) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	d := NewDispatcher(registry, nil)
	node := graph.Node{ID: "A", Handler: "slow"}

	_, err := d.Dispatch(context.Background(), node, 10*time.Millisecond, &NodeContext{})
	require.Error(t, err)
	var engErr *graph.EngineError
	require.True(t, errors.As(err, &engErr))
	assert.Equal(t, graph.KindHandlerTimeout, engErr.Kind)
}
