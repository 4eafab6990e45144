// Package engine implements the graph execution engine: config resolution,
// node lifecycle, the ready-set scheduler, and the handler dispatcher
// (spec.md §4.2, §4.4–§4.6).
package engine

import (
	"context"

	"github.com/agenticaivc/intentgraph/pkg/graph"
)

// NodeContext is what a HandlerFn receives alongside the node: the merged
// view of execution input and completed-predecessor outputs, plus
// correlation metadata for guards.
type NodeContext struct {
	ExecutionID   string
	CorrelationID string
	Input         map[string]any
	Variables     map[string]any
	User          GuardUser
}

// HandlerFn is the registered unit of work for a node (spec.md §6).
type HandlerFn func(ctx context.Context, node graph.Node, nodeCtx *NodeContext) (any, error)

// HandlerRegistry resolves a node's handler identifier to a HandlerFn.
type HandlerRegistry interface {
	Lookup(handlerID string) (HandlerFn, bool)
}

// MapHandlerRegistry is the in-memory HandlerRegistry used by the
// reference driver and tests.
type MapHandlerRegistry struct {
	handlers map[string]HandlerFn
}

// NewMapHandlerRegistry constructs an empty registry.
func NewMapHandlerRegistry() *MapHandlerRegistry {
	return &MapHandlerRegistry{handlers: make(map[string]HandlerFn)}
}

// Register adds a handler under id, overwriting any previous registration.
func (r *MapHandlerRegistry) Register(id string, fn HandlerFn) {
	r.handlers[id] = fn
}

// Lookup implements HandlerRegistry.
func (r *MapHandlerRegistry) Lookup(id string) (HandlerFn, bool) {
	fn, ok := r.handlers[id]
	return fn, ok
}

// GuardUser carries the identity fields a GuardInput needs (spec.md §4.8).
type GuardUser struct {
	ID          string
	Roles       []string
	Permissions []string
}

// ExecutionOptions configures a single Engine.Execute call.
type ExecutionOptions struct {
	// MaxParallelOverride, when > 0, overrides the graph's declared
	// concurrency.maxParallel (the reference CLI's --maxParallel flag).
	MaxParallelOverride int
	// FailNode, when set, makes the Scheduler fail that node
	// deterministically without dispatching it or retrying (the reference CLI's
	// --failNode flag, for testable-scenario 3/4 style runs).
	FailNode      string
	CorrelationID string
	User          GuardUser
	Variables     map[string]any
}
