package graph

import (
	"errors"
	"strconv"
)

// ErrorKind is the distinguishable error category surfaced to callers
// (spec.md §7). Compared by value, never by substring match on the error
// message.
type ErrorKind string

const (
	KindGraphCycle                ErrorKind = "GRAPH_CYCLE"
	KindEdgeDangling              ErrorKind = "EDGE_DANGLING"
	KindConfigInvalid             ErrorKind = "CONFIG_INVALID"
	KindHandlerMissing            ErrorKind = "HANDLER_MISSING"
	KindHandlerTimeout            ErrorKind = "HANDLER_TIMEOUT"
	KindHandlerFailed             ErrorKind = "HANDLER_FAILED"
	KindGuardBlocked              ErrorKind = "GUARD_BLOCKED"
	KindGuardDelayed              ErrorKind = "GUARD_DELAYED"
	KindRateLimitStoreUnavailable ErrorKind = "RATE_LIMIT_STORE_UNAVAILABLE"
	KindJWTInvalid                ErrorKind = "JWT_INVALID"
	KindInsufficientPermissions   ErrorKind = "INSUFFICIENT_PERMISSIONS"
	KindCancelled                 ErrorKind = "CANCELLED"
	KindInternal                  ErrorKind = "INTERNAL"
)

// Sentinel errors for equality checks where no per-instance context is
// needed.
var (
	ErrNodeNotFound    = errors.New("node not found")
	ErrEdgeDangling    = errors.New("edge references a non-existent node")
	ErrGraphCycle      = errors.New("graph contains a directed cycle")
	ErrConfigInvalid   = errors.New("execution config invalid")
	ErrCancelled       = errors.New("execution cancelled")
	ErrInvariant       = errors.New("state-machine invariant violated")
	ErrHandlerMissing  = errors.New("no handler registered for node")
	ErrGuardBlocked    = errors.New("guard blocked execution")
)

// EngineError is the typed error returned for any node or execution-level
// failure. Callers use errors.As to recover Kind, NodeID, and GuardName.
type EngineError struct {
	Kind      ErrorKind
	NodeID    string
	GuardName string
	Reason    string
	Err       error
}

func (e *EngineError) Error() string {
	msg := string(e.Kind)
	if e.NodeID != "" {
		msg += " node=" + e.NodeID
	}
	if e.GuardName != "" {
		msg += " guard=" + e.GuardName
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *EngineError) Unwrap() error { return e.Err }

// CycleError reports one or more cycles found by TopoValidator. Each cycle
// is a sequence of node ids closing on itself.
type CycleError struct {
	Cycles [][]string
}

func (e *CycleError) Error() string {
	return "graph has " + strconv.Itoa(len(e.Cycles)) + " cycle(s)"
}

// ValidationError describes one static-config or graph defect found before
// an execution starts.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors aggregates multiple ValidationError values raised during
// eager config/graph validation.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Error()
}
