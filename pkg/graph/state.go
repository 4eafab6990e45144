package graph

import (
	"sync"
	"time"
)

// NodeStatus is a node's position in the state machine of spec.md §4.7.
type NodeStatus string

const (
	StatusPending  NodeStatus = "PENDING"
	StatusReady    NodeStatus = "READY"
	StatusRunning  NodeStatus = "RUNNING"
	StatusComplete NodeStatus = "COMPLETE"
	StatusFailed   NodeStatus = "FAILED"
	StatusSkipped  NodeStatus = "SKIPPED"
)

// IsTerminal reports whether status admits no further transitions.
func (s NodeStatus) IsTerminal() bool {
	return s == StatusComplete || s == StatusSkipped
}

// NodeRuntime is the per-execution, per-node runtime record (spec.md §3).
// ExecutionState is its sole owner; other components hold only the node id.
type NodeRuntime struct {
	NodeID      string
	Status      NodeStatus
	Output      any
	Err         error
	Attempt     int
	ReadyAt     time.Time
	RunningAt   time.Time
	FinishedAt  time.Time
}

// ExecutionState is the in-memory per-execution store: node statuses,
// outputs, errors, and the completion-signal channel the scheduler awaits.
// Exactly one writer (the scheduler plus its workers) serialized by mu,
// matching spec.md §5's ordering guarantees.
type ExecutionState struct {
	mu sync.Mutex

	ExecutionID string
	Graph       *Graph
	Input       map[string]any
	StartedAt   time.Time

	nodes map[string]*NodeRuntime

	// completions is a buffered channel of node ids whose status just
	// became terminal-for-this-pass (COMPLETE or FAILED); the scheduler's
	// control loop selects on it as the "wait for any completion" signal
	// of spec.md §4.5/§5.
	completions chan string
}

// NewExecutionState creates an ExecutionState with every node seeded
// PENDING.
func NewExecutionState(executionID string, g *Graph, input map[string]any) *ExecutionState {
	es := &ExecutionState{
		ExecutionID: executionID,
		Graph:       g,
		Input:       input,
		StartedAt:   time.Now(),
		nodes:       make(map[string]*NodeRuntime, len(g.Nodes)),
		completions: make(chan string, len(g.Nodes)+1),
	}
	for _, n := range g.Nodes {
		es.nodes[n.ID] = &NodeRuntime{NodeID: n.ID, Status: StatusPending}
	}
	return es
}

// Status returns the current status of a node.
func (es *ExecutionState) Status(nodeID string) NodeStatus {
	es.mu.Lock()
	defer es.mu.Unlock()
	return es.nodes[nodeID].Status
}

// Snapshot copies the current status of every node, for lifecycle
// computation without holding the lock across caller logic.
func (es *ExecutionState) Snapshot() map[string]NodeStatus {
	es.mu.Lock()
	defer es.mu.Unlock()
	out := make(map[string]NodeStatus, len(es.nodes))
	for id, rt := range es.nodes {
		out[id] = rt.Status
	}
	return out
}

// Output returns a node's captured output. Valid (I4) iff the node is
// COMPLETE.
func (es *ExecutionState) Output(nodeID string) (any, bool) {
	es.mu.Lock()
	defer es.mu.Unlock()
	rt := es.nodes[nodeID]
	if rt.Status != StatusComplete {
		return nil, false
	}
	return rt.Output, true
}

// OutputAsMap returns a node's output coerced to map[string]any for
// EdgeEvaluator field extraction, or an empty map if not an object.
func (es *ExecutionState) OutputAsMap(nodeID string) map[string]any {
	out, ok := es.Output(nodeID)
	if !ok {
		return map[string]any{}
	}
	m, ok := out.(map[string]any)
	if !ok {
		return map[string]any{}
	}
	return m
}

// Error returns a node's captured error, valid iff FAILED.
func (es *ExecutionState) Error(nodeID string) error {
	es.mu.Lock()
	defer es.mu.Unlock()
	return es.nodes[nodeID].Err
}

// Attempt returns the node's current attempt counter.
func (es *ExecutionState) Attempt(nodeID string) int {
	es.mu.Lock()
	defer es.mu.Unlock()
	return es.nodes[nodeID].Attempt
}

// RunningCount returns the number of nodes currently RUNNING, for I5.
func (es *ExecutionState) RunningCount() int {
	es.mu.Lock()
	defer es.mu.Unlock()
	n := 0
	for _, rt := range es.nodes {
		if rt.Status == StatusRunning {
			n++
		}
	}
	return n
}

// TransitionReady moves a PENDING node to READY.
func (es *ExecutionState) TransitionReady(nodeID string) {
	es.mu.Lock()
	defer es.mu.Unlock()
	rt := es.nodes[nodeID]
	rt.Status = StatusReady
	rt.ReadyAt = time.Now()
}

// TransitionRunning moves a READY node to RUNNING and bumps its attempt
// counter.
func (es *ExecutionState) TransitionRunning(nodeID string) {
	es.mu.Lock()
	defer es.mu.Unlock()
	rt := es.nodes[nodeID]
	rt.Status = StatusRunning
	rt.RunningAt = time.Now()
	rt.Attempt++
}

// TransitionComplete records a successful result and signals completion.
func (es *ExecutionState) TransitionComplete(nodeID string, output any) {
	es.mu.Lock()
	rt := es.nodes[nodeID]
	rt.Status = StatusComplete
	rt.Output = output
	rt.FinishedAt = time.Now()
	es.mu.Unlock()
	es.completions <- nodeID
}

// TransitionFailed records a failure, cascades SKIPPED to every
// strictly-downstream node (I6), and signals completion. Cascade runs
// under the same lock acquisition sequence the caller uses, so observers
// see a consistent snapshot (spec.md §4.5).
func (es *ExecutionState) TransitionFailed(nodeID string, err error) {
	es.mu.Lock()
	rt := es.nodes[nodeID]
	rt.Status = StatusFailed
	rt.Err = err
	rt.FinishedAt = time.Now()
	es.cascadeSkipLocked(nodeID)
	es.mu.Unlock()
	es.completions <- nodeID
}

// TransitionFailedForRetry moves a RUNNING node back to READY for a retry
// attempt (the FAILED → READY transition of spec.md §4.7), without
// recording a terminal failure or cascading.
func (es *ExecutionState) TransitionFailedForRetry(nodeID string) {
	es.mu.Lock()
	defer es.mu.Unlock()
	rt := es.nodes[nodeID]
	rt.Status = StatusReady
	rt.ReadyAt = time.Now()
}

// TransitionSkipped marks a not-yet-started node SKIPPED directly (used by
// NodeLifecycle when a dependency is already FAILED/SKIPPED before this
// node was ever admitted).
func (es *ExecutionState) TransitionSkipped(nodeID string) {
	es.mu.Lock()
	rt := es.nodes[nodeID]
	if rt.Status.IsTerminal() {
		es.mu.Unlock()
		return
	}
	rt.Status = StatusSkipped
	rt.FinishedAt = time.Now()
	es.mu.Unlock()
}

// cascadeSkipLocked walks strictly-downstream nodes reachable from nodeID
// and marks each SKIPPED, recursing through already-skipped nodes so a
// multi-level chain collapses in one pass. Caller must hold mu.
func (es *ExecutionState) cascadeSkipLocked(nodeID string) {
	for _, e := range es.Graph.Edges {
		if e.From != nodeID || e.IsLoop() {
			continue
		}
		down := es.nodes[e.To]
		if down == nil || down.Status.IsTerminal() {
			continue
		}
		down.Status = StatusSkipped
		down.FinishedAt = time.Now()
		es.cascadeSkipLocked(e.To)
	}
}

// AwaitCompletion blocks until at least one node signals completion,
// returning its id, or returns ok=false if ctx is done first.
func (es *ExecutionState) AwaitCompletion(done <-chan struct{}) (string, bool) {
	select {
	case id := <-es.completions:
		return id, true
	case <-done:
		return "", false
	}
}

// HasWork reports whether any node remains PENDING, READY, or RUNNING —
// the scheduler's loop-exit condition (spec.md §4.5 step 1d).
func (es *ExecutionState) HasWork() bool {
	es.mu.Lock()
	defer es.mu.Unlock()
	for _, rt := range es.nodes {
		if rt.Status == StatusPending || rt.Status == StatusReady || rt.Status == StatusRunning {
			return true
		}
	}
	return false
}
