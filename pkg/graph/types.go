// Package graph defines the static intent-graph document model: nodes,
// edges, guard declarations, and the per-execution config they resolve to.
package graph

import "time"

// NodeKind is the kind of work a node represents.
type NodeKind string

const (
	NodeKindAction   NodeKind = "action"
	NodeKindDecision NodeKind = "decision"
	NodeKindData     NodeKind = "data"
)

// EdgeKind distinguishes an unconditional dependency edge from one gated by
// conditions evaluated against the predecessor's output.
type EdgeKind string

const (
	EdgeKindSequence    EdgeKind = "sequence"
	EdgeKindConditional EdgeKind = "conditional"
)

// ConditionOperator is the comparison applied to a field extracted from a
// predecessor's output.
type ConditionOperator string

const (
	OpEquals      ConditionOperator = "equals"
	OpNotEquals   ConditionOperator = "not_equals"
	OpGreaterThan ConditionOperator = "greater_than"
	OpLessThan    ConditionOperator = "less_than"
	OpIn          ConditionOperator = "in"
	OpContains    ConditionOperator = "contains"
	OpWithinHours ConditionOperator = "within_hours"
)

// GuardType is the kind of policy check a guard declaration instantiates.
type GuardType string

const (
	GuardTypeRBAC      GuardType = "rbac"
	GuardTypeRateLimit GuardType = "rate_limit"
	GuardTypeAudit     GuardType = "audit"
	GuardTypeCustom    GuardType = "custom"
)

// Node is a named unit of work. Nodes are static and carry no runtime state;
// runtime state lives in ExecutionState keyed by Node.ID.
type Node struct {
	ID          string         `json:"id" yaml:"id"`
	Kind        NodeKind       `json:"kind" yaml:"kind"`
	Name        string         `json:"name,omitempty" yaml:"name,omitempty"`
	Handler     string         `json:"handler" yaml:"handler"`
	Timeout     time.Duration  `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Condition gates a conditional edge. Field is a dot-path into the
// predecessor's output.
type Condition struct {
	Field    string            `json:"field" yaml:"field"`
	Operator ConditionOperator `json:"operator" yaml:"operator"`
	Value    any               `json:"value" yaml:"value"`
}

// LoopConfig marks an edge as a bounded back-edge. Structural only: see
// DESIGN.md for why the scheduler does not re-admit completed nodes on a
// loop signal.
type LoopConfig struct {
	MaxIterations int `json:"maxIterations" yaml:"maxIterations"`
}

// Edge is a directed dependency from From to To, optionally conditional.
type Edge struct {
	ID         string      `json:"id" yaml:"id"`
	From       string      `json:"from" yaml:"from"`
	To         string      `json:"to" yaml:"to"`
	Kind       EdgeKind    `json:"kind" yaml:"kind"`
	Conditions []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Loop       *LoopConfig `json:"loop,omitempty" yaml:"loop,omitempty"`
}

// IsLoop reports whether this edge is a structural back-edge excluded from
// cycle detection.
func (e Edge) IsLoop() bool { return e.Loop != nil }

// GuardDecl declares a guard instance attached to a set of nodes and/or
// edges, with a type-specific config blob.
type GuardDecl struct {
	Name    string         `json:"name" yaml:"name"`
	Type    GuardType      `json:"type" yaml:"type"`
	ApplyTo ApplyTo        `json:"applyTo" yaml:"applyTo"`
	Config  map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
}

// ApplyTo selects the nodes and edges a guard declaration attaches to.
type ApplyTo struct {
	NodeIDs []string `json:"nodeIds,omitempty" yaml:"nodeIds,omitempty"`
	EdgeIDs []string `json:"edgeIds,omitempty" yaml:"edgeIds,omitempty"`
}

// RetryConfig is the per-graph retry/backoff policy.
type RetryConfig struct {
	MaxAttempts       int      `json:"maxAttempts" yaml:"maxAttempts"`
	BackoffMultiplier int      `json:"backoffMultiplier" yaml:"backoffMultiplier"`
	RetryOnErrors     []string `json:"retryOnErrors,omitempty" yaml:"retryOnErrors,omitempty"`
	NoRetryErrors     []string `json:"noRetryErrors,omitempty" yaml:"noRetryErrors,omitempty"`
}

// ConcurrencyConfig bounds how many nodes may run at once.
type ConcurrencyConfig struct {
	MaxParallel int `json:"maxParallel" yaml:"maxParallel"`
}

// Config is the graph's declared execution config, validated by
// ConfigResolver when an execution starts, before any node runs.
type Config struct {
	Timeout     time.Duration     `json:"timeout" yaml:"timeout"`
	Retry       RetryConfig       `json:"retry" yaml:"retry"`
	Concurrency ConcurrencyConfig `json:"concurrency" yaml:"concurrency"`
}

// Metadata is the graph document's descriptive header.
type Metadata struct {
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`
}

// Graph is the immutable intent-graph document.
type Graph struct {
	Metadata Metadata    `json:"metadata" yaml:"metadata"`
	Nodes    []Node      `json:"nodes" yaml:"nodes"`
	Edges    []Edge      `json:"edges" yaml:"edges"`
	Guards   []GuardDecl `json:"guards,omitempty" yaml:"guards,omitempty"`
	Config   Config      `json:"config" yaml:"config"`
}

// NodeByID returns the node with the given id, or false if absent.
func (g *Graph) NodeByID(id string) (Node, bool) {
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// OutgoingEdges returns edges whose From equals nodeID, in declared order.
func (g *Graph) OutgoingEdges(nodeID string) []Edge {
	var out []Edge
	for _, e := range g.Edges {
		if e.From == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// IncomingEdges returns edges whose To equals nodeID, in declared order.
func (g *Graph) IncomingEdges(nodeID string) []Edge {
	var in []Edge
	for _, e := range g.Edges {
		if e.To == nodeID {
			in = append(in, e)
		}
	}
	return in
}

// GuardsFor returns the guard declarations applying to nodeID, in declared
// order (the order GuardRunner must evaluate them in).
func (g *Graph) GuardsFor(nodeID string) []GuardDecl {
	var out []GuardDecl
	for _, gd := range g.Guards {
		for _, id := range gd.ApplyTo.NodeIDs {
			if id == nodeID {
				out = append(out, gd)
				break
			}
		}
	}
	return out
}

// GuardsForEdge returns the guard declarations applying to edgeID.
func (g *Graph) GuardsForEdge(edgeID string) []GuardDecl {
	var out []GuardDecl
	for _, gd := range g.Guards {
		for _, id := range gd.ApplyTo.EdgeIDs {
			if id == edgeID {
				out = append(out, gd)
				break
			}
		}
	}
	return out
}
