package graph

import (
	"context"
	"errors"
	"fmt"
)

// Node is one unit of work in a workflow graph.
//
// A node reads the current State and returns the Update it wants applied.
// Nodes must not mutate the State they receive. Failure is reported through
// NodeResult.Err; the engine stops the run and never retries on its own.
// Wrap a node with WithRetry or WithTimeout to give it its own policy.
type Node interface {
	Run(ctx context.Context, state State) NodeResult
}

// NodeResult is what a node hands back to the engine.
type NodeResult struct {
	// Update is merged into the state when Err is nil.
	Update Update

	// Err aborts the run with a Failed outcome. The update is discarded.
	Err error
}

// NodeFunc adapts a plain function to the Node interface.
//
// Example:
//
//	planner := graph.NodeFunc(func(ctx context.Context, s graph.State) graph.NodeResult {
//	    return graph.NodeResult{Update: graph.Update{
//	        Metadata: map[string]any{"search_plan": "..."},
//	    }}
//	})
type NodeFunc func(ctx context.Context, state State) NodeResult

// Run implements Node.
func (f NodeFunc) Run(ctx context.Context, state State) NodeResult {
	return f(ctx, state)
}

// Fail returns a NodeResult carrying err.
func Fail(err error) NodeResult {
	return NodeResult{Err: err}
}

// Failf returns a NodeResult carrying a formatted error.
func Failf(format string, args ...any) NodeResult {
	return NodeResult{Err: fmt.Errorf(format, args...)}
}

// Node error codes.
const (
	CodeNodeFailed  = "NODE_FAILED"
	CodeNodePanic   = "NODE_PANIC"
	CodeNodeTimeout = "NODE_TIMEOUT"
	CodeRouterPanic = "ROUTER_PANIC"
)

// NodeError is the failure reported for a node that could not complete.
// The engine wraps every node error in a NodeError with NodeID filled in.
type NodeError struct {
	// Message is the human-readable error description.
	Message string

	// Code is a machine-readable error code for programmatic handling.
	Code string

	// NodeID identifies which node produced this error.
	NodeID string

	// Cause is the underlying error that caused this NodeError.
	Cause error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	if e.NodeID != "" {
		return "node " + e.NodeID + ": " + e.Message
	}
	return e.Message
}

// Unwrap returns the underlying cause error for error wrapping support.
func (e *NodeError) Unwrap() error {
	return e.Cause
}

// asNodeError normalizes err into a *NodeError attributed to nodeID.
// An existing NodeError keeps its code and gains the node id if missing.
func asNodeError(nodeID string, err error) *NodeError {
	var ne *NodeError
	if errors.As(err, &ne) {
		out := *ne
		if out.NodeID == "" {
			out.NodeID = nodeID
		}
		if out.Code == "" {
			out.Code = CodeNodeFailed
		}
		return &out
	}
	return &NodeError{
		Message: err.Error(),
		Code:    CodeNodeFailed,
		NodeID:  nodeID,
		Cause:   err,
	}
}

// invokeNode runs node and converts a panic into a NODE_PANIC result so
// one misbehaving node cannot crash other runs sharing the process.
func invokeNode(ctx context.Context, nodeID string, node Node, state State) (res NodeResult) {
	defer func() {
		if r := recover(); r != nil {
			res = NodeResult{Err: &NodeError{
				Message: fmt.Sprintf("panic: %v", r),
				Code:    CodeNodePanic,
				NodeID:  nodeID,
			}}
		}
	}()
	return node.Run(ctx, state)
}
