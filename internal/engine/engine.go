package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agenticaivc/intentgraph/internal/config"
	"github.com/agenticaivc/intentgraph/internal/observer"
	"github.com/agenticaivc/intentgraph/internal/platformlog"
	"github.com/agenticaivc/intentgraph/pkg/graph"
)

// Engine is the top-level façade tying together static validation, config
// resolution, the ready-set scheduler, and observer notification — the
// single entry point spec.md §6's CLI and any embedding caller drive
// (spec.md §2's component table, read end to end).
type Engine struct {
	validator *graph.TopoValidator
	resolver  *ConfigResolver
	handlers  HandlerRegistry
	observers *observer.Manager
	logger    *platformlog.Logger

	baseDelay time.Duration
	maxDelay  time.Duration
}

// New constructs an Engine. observers may be nil.
func New(defaults config.EngineConfig, handlers HandlerRegistry, observers *observer.Manager, logger *platformlog.Logger) *Engine {
	return &Engine{
		validator: graph.NewTopoValidator(),
		resolver:  NewConfigResolver(defaults),
		handlers:  handlers,
		observers: observers,
		logger:    logger,
		baseDelay: 500 * time.Millisecond,
		maxDelay:  30 * time.Second,
	}
}

// Execute validates g, resolves its config, and runs it to completion,
// returning the caller-facing ExecutionResult (spec.md §6). guards maps
// node id to the already-built guard Runner for that node (built by the
// caller from the graph's GuardDecl entries and a guard.Registry).
func (e *Engine) Execute(ctx context.Context, g *graph.Graph, input map[string]any, guards NodeGuards, opts ExecutionOptions) (graph.ExecutionResult, error) {
	defer func() {
		if err := guards.Cleanup(ctx); err != nil && e.logger != nil {
			e.logger.Warn("guard cleanup failed: " + err.Error())
		}
	}()

	if err := guards.Init(ctx); err != nil {
		return graph.ExecutionResult{}, fmt.Errorf("guard init: %w", err)
	}

	if _, err := e.validator.Validate(g); err != nil {
		return graph.ExecutionResult{}, err
	}

	resolved, warnings, err := e.resolver.Resolve(g.Config, opts.MaxParallelOverride)
	if err != nil {
		return graph.ExecutionResult{}, err
	}
	for _, w := range warnings {
		if e.logger != nil {
			e.logger.Warn(w.Message)
		}
	}

	executionID := uuid.New().String()
	es := graph.NewExecutionState(executionID, g, input)

	if e.observers != nil {
		e.observers.Notify(ctx, observer.Event{
			Type:        observer.EventTypeExecutionStarted,
			ExecutionID: executionID,
			GraphID:     g.Metadata.Name,
			Timestamp:   time.Now(),
		})
	}

	retryPolicy := NewRetryPolicy(graph.RetryConfig{
		MaxAttempts:       resolved.MaxAttempts,
		BackoffMultiplier: resolved.BackoffMultiplier,
		RetryOnErrors:     resolved.RetryOnErrors,
		NoRetryErrors:     resolved.NoRetryErrors,
	}, e.baseDelay, e.maxDelay)

	lifecycle := NewNodeLifecycle(graph.NewEdgeEvaluator())
	dispatcher := NewDispatcher(e.handlers, guards)
	scheduler := NewScheduler(lifecycle, dispatcher, resolved, retryPolicy, e.observers)

	snap := scheduler.Run(ctx, g, es, opts)
	result := snap.ToResult(time.Since(es.StartedAt))

	if e.observers != nil {
		eventType := observer.EventTypeExecutionCompleted
		if !result.Success {
			eventType = observer.EventTypeExecutionFailed
		}
		e.observers.Notify(ctx, observer.Event{
			Type:        eventType,
			ExecutionID: executionID,
			GraphID:     g.Metadata.Name,
			Timestamp:   time.Now(),
			Error:       result.Error,
			Duration:    result.ExecutionTime,
		})
	}

	return result, nil
}
