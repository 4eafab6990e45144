package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/agenticaivc/intentgraph/internal/observer"
	"github.com/agenticaivc/intentgraph/pkg/graph"
)

// Scheduler implements spec.md §4.5's ready-set control loop: repeatedly
// run NodeLifecycle.Pass to admit newly-ready nodes, dispatch READY nodes
// up to the resolved worker budget, and await a completion signal before
// looping again, exiting once ExecutionState.HasWork is false, once no node
// can make further progress, or after the first terminal failure. Retry
// scheduling (the FAILED → READY path of §4.7) lives here rather than in
// Dispatcher: a node's own worker goroutine owns its retry loop, sleeping
// out the backoff between attempts before dispatching again.
type Scheduler struct {
	lifecycle  *NodeLifecycle
	dispatcher *Dispatcher
	resolved   ResolvedConfig
	retry      *RetryPolicy
	observers  *observer.Manager
}

// NewScheduler constructs a Scheduler over an already-resolved config and
// retry policy. observers may be nil, in which case no events are emitted.
func NewScheduler(lifecycle *NodeLifecycle, dispatcher *Dispatcher, resolved ResolvedConfig, retry *RetryPolicy, observers *observer.Manager) *Scheduler {
	return &Scheduler{lifecycle: lifecycle, dispatcher: dispatcher, resolved: resolved, retry: retry, observers: observers}
}

func (s *Scheduler) notify(ctx context.Context, es *graph.ExecutionState, event observer.Event) {
	if s.observers == nil {
		return
	}
	event.ExecutionID = es.ExecutionID
	event.Timestamp = time.Now()
	s.observers.Notify(ctx, event)
}

// nodeContextFor merges execution input, completed-predecessor outputs,
// and the caller's variables/user into the NodeContext a handler and its
// guards see.
func nodeContextFor(g *graph.Graph, es *graph.ExecutionState, node graph.Node, opts ExecutionOptions) *NodeContext {
	variables := make(map[string]any, len(opts.Variables)+1)
	for k, v := range opts.Variables {
		variables[k] = v
	}
	for _, e := range g.IncomingEdges(node.ID) {
		if e.IsLoop() {
			continue
		}
		if out, ok := es.Output(e.From); ok {
			variables[e.From] = out
		}
	}

	return &NodeContext{
		ExecutionID:   es.ExecutionID,
		CorrelationID: opts.CorrelationID,
		Input:         es.Input,
		Variables:     variables,
		User:          opts.User,
	}
}

// Run drives the control loop to completion and returns the final
// snapshot. It returns once no node is PENDING, READY, or RUNNING, once the
// remaining PENDING nodes can no longer become ready (their conditional
// edges were never satisfied; they stay PENDING), or when ctx is cancelled.
// After the first FAILED node it admits no further nodes and waits only for
// the workers already launched.
func (s *Scheduler) Run(ctx context.Context, g *graph.Graph, es *graph.ExecutionState, opts ExecutionOptions) graph.ExecutionSnapshot {
	var wg sync.WaitGroup
	sem := make(chan struct{}, s.resolved.MaxParallel)
	dispatched := make(map[string]bool)

	for {
		// Read before the pass: with nothing READY or RUNNING, only this
		// pass can change any node's status.
		inFlight, failed := false, false
		for _, st := range es.Snapshot() {
			switch st {
			case graph.StatusReady, graph.StatusRunning:
				inFlight = true
			case graph.StatusFailed:
				failed = true
			}
		}
		if failed {
			break
		}

		ready := s.lifecycle.Pass(g, es)
		sortByPriority(g, ready)

		for _, nodeID := range ready {
			if dispatched[nodeID] {
				continue
			}
			dispatched[nodeID] = true
			s.launch(ctx, g, es, opts, nodeID, &wg, sem)
		}

		if !es.HasWork() || (!inFlight && len(ready) == 0) {
			break
		}

		if _, ok := es.AwaitCompletion(ctx.Done()); !ok {
			break
		}
	}

	wg.Wait()
	return graph.BuildSnapshot(es)
}

// launch dispatches one READY node on its own goroutine, bounded by sem,
// applying retry/backoff across attempts before the node reaches a
// terminal status.
func (s *Scheduler) launch(ctx context.Context, g *graph.Graph, es *graph.ExecutionState, opts ExecutionOptions, nodeID string, wg *sync.WaitGroup, sem chan struct{}) {
	node, ok := g.NodeByID(nodeID)
	if !ok {
		return
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			return
		}
		defer func() { <-sem }()

		s.runToTerminal(ctx, g, es, opts, node)
	}()
}

// runToTerminal dispatches a node, retrying per policy until it succeeds,
// exhausts attempts, or hits a non-retryable error.
func (s *Scheduler) runToTerminal(ctx context.Context, g *graph.Graph, es *graph.ExecutionState, opts ExecutionOptions, node graph.Node) {
	if opts.FailNode != "" && opts.FailNode == node.ID {
		es.TransitionRunning(node.ID)
		es.TransitionFailed(node.ID, &graph.EngineError{Kind: graph.KindHandlerFailed, NodeID: node.ID, Reason: "forced failure"})
		return
	}

	for {
		es.TransitionRunning(node.ID)
		s.notify(ctx, es, observer.Event{Type: observer.EventTypeNodeStarted, NodeID: node.ID, Attempt: es.Attempt(node.ID)})
		nodeCtx := nodeContextFor(g, es, node, opts)

		result, err := s.dispatcher.Dispatch(ctx, node, s.resolved.Timeout, nodeCtx)
		if err == nil {
			es.TransitionComplete(node.ID, result.Output)
			s.notify(ctx, es, observer.Event{Type: observer.EventTypeNodeCompleted, NodeID: node.ID})
			return
		}

		attempt := es.Attempt(node.ID)
		if attempt >= s.resolved.MaxAttempts || !s.retry.ShouldRetry(err) {
			es.TransitionFailed(node.ID, err)
			s.notify(ctx, es, observer.Event{Type: observer.EventTypeNodeFailed, NodeID: node.ID, Error: err, Attempt: attempt})
			return
		}

		if s.retry.OnRetry != nil {
			s.retry.OnRetry(attempt, err)
		}

		delay := s.retry.Delay(attempt)
		es.TransitionFailedForRetry(node.ID)
		s.notify(ctx, es, observer.Event{Type: observer.EventTypeNodeRetrying, NodeID: node.ID, Error: err, Attempt: attempt, DelayMs: delay.Milliseconds()})
		if delay <= 0 {
			continue
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}
	}
}

// sortByPriority orders ready node ids by descending node.Metadata
// "priority" (default 0), stable on ties, so higher-priority nodes are
// launched first within one pass. Launched workers then compete for free
// worker slots, so the order in which they acquire a slot is not guaranteed.
func sortByPriority(g *graph.Graph, ready []string) {
	priority := func(nodeID string) int {
		n, ok := g.NodeByID(nodeID)
		if !ok || n.Metadata == nil {
			return 0
		}
		if p, ok := n.Metadata["priority"].(int); ok {
			return p
		}
		if p, ok := n.Metadata["priority"].(float64); ok {
			return int(p)
		}
		return 0
	}
	sort.SliceStable(ready, func(i, j int) bool {
		return priority(ready[i]) > priority(ready[j])
	})
}
