package graph

import "time"

// ExecutionSnapshot is a point-in-time view of an execution: every node's
// runtime, the wall-clock start, and (once terminal) the per-status
// summary and aggregate error (spec.md §3).
type ExecutionSnapshot struct {
	ExecutionID string
	StartedAt   time.Time
	Nodes       map[string]NodeRuntime
	Summary     StatusSummary
	AggregateErr error
}

// StatusSummary counts nodes per terminal status at execution end.
type StatusSummary struct {
	Completed int
	Failed    int
	Skipped   int
	Pending   int
}

// ExecutionResult is returned to the caller of an execution (spec.md §6).
type ExecutionResult struct {
	Success         bool          `json:"success"`
	CompletedNodes  []string      `json:"completedNodes"`
	FailedNodes     []string      `json:"failedNodes"`
	SkippedNodes    []string      `json:"skippedNodes"`
	ExecutionTime   time.Duration `json:"executionTime"`
	Error           error         `json:"-"`
	ErrorMessage    string        `json:"error,omitempty"`
}

// ExecutionRecordStatus is the persisted record's lifecycle status, as
// distinct from NodeStatus — this is the execution as a whole, the shape an
// external durable store round-trips (spec.md §6).
type ExecutionRecordStatus string

const (
	RecordQueued    ExecutionRecordStatus = "queued"
	RecordRunning   ExecutionRecordStatus = "running"
	RecordCompleted ExecutionRecordStatus = "completed"
	RecordFailed    ExecutionRecordStatus = "failed"
)

// ExecutionRecord is the normative persisted-execution schema consumed by
// an external store (spec.md §6). The core does not persist it; the shape
// is exported so a consuming store can round-trip it without redefining
// the schema.
type ExecutionRecord struct {
	ID            string                `json:"id"`
	CreatedAt     time.Time             `json:"createdAt"`
	Status        ExecutionRecordStatus `json:"status"`
	DurationMs    *int64                `json:"durationMs,omitempty"`
	Result        *ExecutionResult      `json:"result,omitempty"`
	Error         string                `json:"error,omitempty"`
	GraphID       string                `json:"graphId,omitempty"`
	CorrelationID string                `json:"correlationId,omitempty"`
	UserID        string                `json:"userId,omitempty"`
	Archived      bool                  `json:"archived,omitempty"`
}

// BuildSnapshot assembles the terminal ExecutionSnapshot from state,
// classifying pending-at-termination nodes per the "remain PENDING"
// decision recorded in DESIGN.md (spec.md §9 open question).
func BuildSnapshot(es *ExecutionState) ExecutionSnapshot {
	snap := ExecutionSnapshot{
		ExecutionID: es.ExecutionID,
		StartedAt:   es.StartedAt,
		Nodes:       make(map[string]NodeRuntime, len(es.Graph.Nodes)),
	}

	es.mu.Lock()
	for id, rt := range es.nodes {
		snap.Nodes[id] = *rt
		switch rt.Status {
		case StatusComplete:
			snap.Summary.Completed++
		case StatusFailed:
			snap.Summary.Failed++
			if snap.AggregateErr == nil {
				snap.AggregateErr = rt.Err
			}
		case StatusSkipped:
			snap.Summary.Skipped++
		default:
			snap.Summary.Pending++
		}
	}
	es.mu.Unlock()

	return snap
}

// ToResult converts a terminal snapshot into the caller-facing
// ExecutionResult shape.
func (snap ExecutionSnapshot) ToResult(executionTime time.Duration) ExecutionResult {
	result := ExecutionResult{
		Success:       snap.Summary.Failed == 0,
		ExecutionTime: executionTime,
		Error:         snap.AggregateErr,
	}
	for id, rt := range snap.Nodes {
		switch rt.Status {
		case StatusComplete:
			result.CompletedNodes = append(result.CompletedNodes, id)
		case StatusFailed:
			result.FailedNodes = append(result.FailedNodes, id)
		case StatusSkipped:
			result.SkippedNodes = append(result.SkippedNodes, id)
		}
	}
	if snap.AggregateErr != nil {
		result.ErrorMessage = snap.AggregateErr.Error()
	}
	return result
}
