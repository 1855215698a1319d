package graph

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// ErrInvalidRetryPolicy is returned by RetryPolicy.Validate.
var ErrInvalidRetryPolicy = errors.New("invalid retry policy")

// RetryPolicy configures WithRetry.
//
// The engine itself never retries a failed node. A node that talks to a
// flaky collaborator opts in by wrapping itself:
//
//	search := graph.WithRetry(searchNode, graph.RetryPolicy{
//	    MaxAttempts: 3,
//	    BaseDelay:   200 * time.Millisecond,
//	    MaxDelay:    2 * time.Second,
//	    Retryable:   func(err error) bool { return !errors.Is(err, context.Canceled) },
//	})
type RetryPolicy struct {
	// MaxAttempts counts the initial attempt. 1 means no retries.
	MaxAttempts int

	// BaseDelay is the backoff unit: attempt n waits BaseDelay * 2^n plus jitter.
	BaseDelay time.Duration

	// MaxDelay caps the exponential part of the delay. Zero means no cap.
	MaxDelay time.Duration

	// Retryable reports whether an error is worth another attempt.
	// When nil every error is retried.
	Retryable func(error) bool
}

// Validate checks the policy.
func (rp RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return fmt.Errorf("%w: max attempts must be >= 1, got %d", ErrInvalidRetryPolicy, rp.MaxAttempts)
	}
	if rp.BaseDelay < 0 || rp.MaxDelay < 0 {
		return fmt.Errorf("%w: delays cannot be negative", ErrInvalidRetryPolicy)
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return fmt.Errorf("%w: max delay %s is below base delay %s", ErrInvalidRetryPolicy, rp.MaxDelay, rp.BaseDelay)
	}
	return nil
}

func (rp RetryPolicy) retryable(err error) bool {
	if rp.Retryable == nil {
		return true
	}
	return rp.Retryable(err)
}

// computeBackoff returns min(base*2^attempt, maxDelay) plus a jitter in [0, base).
// attempt is zero-based: 0 is the wait before the first retry.
func computeBackoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if maxDelay > 0 && delay >= maxDelay {
			break
		}
	}
	if maxDelay > 0 && delay > maxDelay {
		delay = maxDelay
	}

	var jitter time.Duration
	if rng != nil {
		jitter = time.Duration(rng.Int63n(int64(base)))
	} else {
		jitter = time.Duration(rand.Int63n(int64(base))) // #nosec G404 -- jitter for retry timing, not security
	}
	return delay + jitter
}

// WithRetry returns a node that re-invokes node on failure according to
// policy. Only the final attempt's result is returned; updates from failed
// attempts are discarded. Waiting between attempts stops early when ctx
// is done.
//
// An invalid policy makes every invocation fail with the validation error.
func WithRetry(node Node, policy RetryPolicy) Node {
	return &retryNode{node: node, policy: policy}
}

type retryNode struct {
	node   Node
	policy RetryPolicy
}

func (r *retryNode) Run(ctx context.Context, state State) NodeResult {
	if err := r.policy.Validate(); err != nil {
		return Fail(err)
	}

	var res NodeResult
	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		res = r.node.Run(ctx, state)
		if res.Err == nil {
			return res
		}
		if attempt == r.policy.MaxAttempts-1 || !r.policy.retryable(res.Err) {
			break
		}

		wait := computeBackoff(attempt, r.policy.BaseDelay, r.policy.MaxDelay, nil)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Fail(fmt.Errorf("retry interrupted after %d attempts: %w", attempt+1, ctx.Err()))
		case <-timer.C:
		}
	}
	return res
}
