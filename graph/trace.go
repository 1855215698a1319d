package graph

import (
	"context"
	"sync"
)

// TraceEntry records one completed step of a run.
type TraceEntry struct {
	// Step is the 1-indexed step number.
	Step int

	// NodeID is the node that ran.
	NodeID string

	// Next is where the run went afterwards. End when the run completed.
	Next string

	// State is the state after the step.
	State State
}

// Trace is the ordered step record of one run.
//
// The engine is the only writer. Any number of readers may call Entries or
// Watch while the run is still appending.
type Trace struct {
	mu      sync.RWMutex
	entries []TraceEntry
	notify  chan struct{}
	closed  bool
}

// NewTrace returns an empty trace.
func NewTrace() *Trace {
	return &Trace{notify: make(chan struct{})}
}

// Append adds an entry and wakes any watchers. Appending to a closed
// trace is a no-op.
func (t *Trace) Append(e TraceEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.entries = append(t.entries, e)
	close(t.notify)
	t.notify = make(chan struct{})
}

// Close marks the trace complete. Watchers drain remaining entries and
// then see their channel closed.
func (t *Trace) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	close(t.notify)
}

// Entries returns a snapshot of the entries recorded so far.
func (t *Trace) Entries() []TraceEntry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]TraceEntry(nil), t.entries...)
}

// Len returns the number of recorded entries.
func (t *Trace) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.entries)
}

// Nodes returns the node IDs in execution order.
func (t *Trace) Nodes() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.NodeID
	}
	return out
}

// Watch streams entries starting at index from, including ones appended
// later. The channel closes once the trace is closed and drained, or when
// ctx is done.
func (t *Trace) Watch(ctx context.Context, from int) <-chan TraceEntry {
	out := make(chan TraceEntry)
	go func() {
		defer close(out)
		next := from
		if next < 0 {
			next = 0
		}
		for {
			t.mu.RLock()
			pending := append([]TraceEntry(nil), t.entries[min(next, len(t.entries)):]...)
			wait, closed := t.notify, t.closed
			t.mu.RUnlock()

			for _, e := range pending {
				select {
				case out <- e:
					next++
				case <-ctx.Done():
					return
				}
			}
			if len(pending) > 0 {
				continue
			}
			if closed {
				return
			}
			select {
			case <-wait:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
