package engine

import (
	"context"
	"errors"
	"time"

	"github.com/agenticaivc/intentgraph/internal/guard"
	"github.com/agenticaivc/intentgraph/pkg/graph"
)

// NodeGuards maps a node id to the already-built Runner over the guards
// declared against it (spec.md §3 Guard.applyTo), nil entries meaning no
// guards apply.
type NodeGuards map[string]*guard.Runner

// Init runs Init on every guard instance bound to any node, stopping at the
// first error so the execution aborts before any node runs (spec.md §4.8,
// §7).
func (g NodeGuards) Init(ctx context.Context) error {
	for _, runner := range g {
		if runner == nil {
			continue
		}
		if err := runner.Init(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Cleanup runs Cleanup on every bound guard runner exactly once, continuing
// past individual failures, and returns the first error encountered.
func (g NodeGuards) Cleanup(ctx context.Context) error {
	var first error
	for _, runner := range g {
		if runner == nil {
			continue
		}
		if err := runner.Cleanup(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// DispatchResult is what Dispatcher.Dispatch returns on success: the
// handler's output plus any non-fatal warnings guards raised along the way.
type DispatchResult struct {
	Output   any
	Warnings []string
}

// Dispatcher implements spec.md §4.6's single attempt: handler lookup, guard
// evaluation, and timeout enforcement; retry/backoff across attempts is done
// by the Scheduler (see Dispatch). Generalized from a worker-pool
// dispatch loop's "outbox poll → HTTP call" shape to "lookup handler →
// run guards → invoke handler".
type Dispatcher struct {
	handlers HandlerRegistry
	guards   NodeGuards
}

// NewDispatcher constructs a Dispatcher over a handler registry and the
// node-to-guard-runner bindings built at graph-load time.
func NewDispatcher(handlers HandlerRegistry, guards NodeGuards) *Dispatcher {
	return &Dispatcher{handlers: handlers, guards: guards}
}

// Dispatch runs node through a single attempt of the pipeline (guards,
// timeout, handler). timeout is the already-resolved per-node duration:
// node.Timeout if declared, else the graph's resolved config timeout.
// Retry/backoff across attempts is the Scheduler's responsibility (it owns
// the RUNNING → FAILED → READY transition sequence of spec.md §4.7), so
// this single attempt either succeeds or returns a terminal-for-this-try
// error.
func (d *Dispatcher) Dispatch(ctx context.Context, node graph.Node, timeout time.Duration, nodeCtx *NodeContext) (DispatchResult, error) {
	fn, ok := d.handlers.Lookup(node.Handler)
	if !ok {
		return DispatchResult{}, &graph.EngineError{
			Kind:   graph.KindHandlerMissing,
			NodeID: node.ID,
			Reason: "no handler registered for " + node.Handler,
			Err:    graph.ErrHandlerMissing,
		}
	}

	if node.Timeout > 0 {
		timeout = node.Timeout
	}

	out, warnings, err := d.runAttempt(ctx, node, timeout, fn, nodeCtx)
	if err != nil {
		return DispatchResult{}, err
	}
	return DispatchResult{Output: out, Warnings: warnings}, nil
}

// runAttempt runs one guard+handler attempt under a fresh per-attempt
// timeout context.
func (d *Dispatcher) runAttempt(ctx context.Context, node graph.Node, timeout time.Duration, fn HandlerFn, nodeCtx *NodeContext) (any, []string, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	warnings, err := d.runGuards(attemptCtx, node, nodeCtx)
	if err != nil {
		return nil, nil, err
	}

	out, err := fn(attemptCtx, node, nodeCtx)
	if err != nil {
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, nil, &graph.EngineError{Kind: graph.KindHandlerTimeout, NodeID: node.ID, Reason: "handler exceeded timeout", Err: err}
		}
		var engErr *graph.EngineError
		if errors.As(err, &engErr) {
			return nil, nil, err
		}
		return nil, nil, &graph.EngineError{Kind: graph.KindHandlerFailed, NodeID: node.ID, Reason: err.Error(), Err: err}
	}
	return out, warnings, nil
}

// runGuards evaluates the node's guard runner, honoring delay (sleep and
// re-evaluate, bounded by ctx's own deadline) and warn (proceed, collecting
// a message) verdicts, blocking on the first true block.
func (d *Dispatcher) runGuards(ctx context.Context, node graph.Node, nodeCtx *NodeContext) ([]string, error) {
	runner := d.guards[node.ID]
	if runner == nil {
		return nil, nil
	}

	in := guard.Input{
		CorrelationID: nodeCtx.CorrelationID,
		User:          guard.User{ID: nodeCtx.User.ID, Roles: nodeCtx.User.Roles, Permissions: nodeCtx.User.Permissions},
		NodeID:        node.ID,
		Parameters:    nodeCtx.Variables,
	}

	var warnings []string
	for {
		result, guardName, err := runner.Run(ctx, in)
		if err != nil {
			return nil, &graph.EngineError{Kind: graph.KindGuardBlocked, NodeID: node.ID, GuardName: guardName, Reason: err.Error(), Err: err}
		}

		switch result.Status {
		case guard.StatusSuccess:
			return warnings, nil
		case guard.StatusWarn:
			warnings = append(warnings, result.Message)
			return warnings, nil
		case guard.StatusBlock:
			return nil, &graph.EngineError{Kind: graph.KindGuardBlocked, NodeID: node.ID, GuardName: guardName, Reason: result.Message, Err: graph.ErrGuardBlocked}
		case guard.StatusDelay:
			select {
			case <-ctx.Done():
				return nil, &graph.EngineError{Kind: graph.KindGuardDelayed, NodeID: node.ID, GuardName: guardName, Reason: "guard delay exceeded remaining timeout budget", Err: ctx.Err()}
			case <-time.After(time.Duration(result.RetryAfterMs) * time.Millisecond):
			}
		default:
			return warnings, nil
		}
	}
}
