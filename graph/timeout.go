package graph

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// WithTimeout bounds each invocation of node to d. The node receives a
// context that expires after d; if it returns after that point, or with
// an error caused by the expiry, the result becomes a NODE_TIMEOUT
// NodeError. A non-positive d returns node unchanged.
//
// The run-level deadline set through Limits is separate: it ends the run
// with RecursionExceeded instead of failing it.
func WithTimeout(node Node, d time.Duration) Node {
	if d <= 0 {
		return node
	}
	return &timeoutNode{node: node, timeout: d}
}

type timeoutNode struct {
	node    Node
	timeout time.Duration
}

func (t *timeoutNode) Run(ctx context.Context, state State) NodeResult {
	tctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	res := t.node.Run(tctx, state)

	// Only our own timer counts; an expired parent is the caller's business.
	if ctx.Err() == nil && errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return NodeResult{Err: &NodeError{
			Message: fmt.Sprintf("exceeded timeout of %s", t.timeout),
			Code:    CodeNodeTimeout,
			Cause:   context.DeadlineExceeded,
		}}
	}
	return res
}
