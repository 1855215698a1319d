package graph

import (
	"errors"
	"fmt"
	"time"
)

// ErrRecursionLimit indicates that a run hit its step bound or deadline
// before reaching End. Use errors.Is to detect it; the concrete error is
// a *RecursionError.
var ErrRecursionLimit = errors.New("run exceeded recursion limit")

// ErrGraphInvalid is matched by every *BuildError.
var ErrGraphInvalid = errors.New("invalid graph")

// Build error codes.
const (
	CodeEmptyNodeID    = "EMPTY_NODE_ID"
	CodeReservedNodeID = "RESERVED_NODE_ID"
	CodeNilNode        = "NIL_NODE"
	CodeDuplicateNode  = "DUPLICATE_NODE"
	CodeDuplicateEdge  = "DUPLICATE_EDGE"
	CodeNilRouter      = "NIL_ROUTER"
	CodeNoTargets      = "NO_TARGETS"
	CodeNoEntry        = "NO_ENTRY"
	CodeEntryNotFound  = "ENTRY_NOT_FOUND"
	CodeUnknownSource  = "UNKNOWN_SOURCE"
	CodeUnknownTarget  = "UNKNOWN_TARGET"
	CodeMissingEdge    = "MISSING_EDGE"
)

// BuildError describes one structural problem found while building a graph.
type BuildError struct {
	Code    string
	Message string
	NodeID  string
}

func (e *BuildError) Error() string {
	if e.NodeID != "" {
		return e.Code + ": " + e.Message + " (node " + e.NodeID + ")"
	}
	return e.Code + ": " + e.Message
}

// Is reports a match against ErrGraphInvalid.
func (e *BuildError) Is(target error) bool {
	return target == ErrGraphInvalid
}

// RecursionError reports why a run was stopped for exceeding its limits.
type RecursionError struct {
	// Steps is the step that would have run next.
	Steps int

	// MaxSteps is the configured step bound.
	MaxSteps int

	// Deadline is non-zero when the wall-clock deadline, not the step bound, fired.
	Deadline time.Duration
}

func (e *RecursionError) Error() string {
	if e.Deadline > 0 {
		return fmt.Sprintf("run exceeded deadline of %s at step %d", e.Deadline, e.Steps)
	}
	return fmt.Sprintf("run exceeded max steps: step %d > limit %d", e.Steps, e.MaxSteps)
}

// Is reports a match against ErrRecursionLimit.
func (e *RecursionError) Is(target error) bool {
	return target == ErrRecursionLimit
}

// Engine error codes.
const (
	CodeStoreError   = "STORE_ERROR"
	CodeNoCheckpoint = "CHECKPOINT_NOT_FOUND"
	CodeNilGraph     = "NIL_GRAPH"
	CodeUnknownNode  = "NODE_NOT_FOUND"
)

// EngineError represents a failure of the engine itself rather than of a node,
// such as a persistence error or an invalid resume request.
type EngineError struct {
	Message string
	Code    string
	Cause   error
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// Unwrap returns the underlying cause.
func (e *EngineError) Unwrap() error {
	return e.Cause
}
