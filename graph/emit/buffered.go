package emit

import (
	"sync"
	"time"
)

// BufferedEmitter keeps events in memory, grouped by run, for tests and
// post-run inspection. It is safe for concurrent use.
//
// An optional per-run cap drops the oldest events once reached, so a
// long-lived process does not grow without bound.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event
	limit  int
}

// HistoryFilter selects events from a run's history. Zero fields match
// everything; set fields are combined with AND.
type HistoryFilter struct {
	NodeID  string
	Msg     string
	MinStep int
	MaxStep int
}

func (f HistoryFilter) matches(e Event) bool {
	switch {
	case f.NodeID != "" && e.NodeID != f.NodeID:
		return false
	case f.Msg != "" && e.Msg != f.Msg:
		return false
	case f.MinStep > 0 && e.Step < f.MinStep:
		return false
	case f.MaxStep > 0 && e.Step > f.MaxStep:
		return false
	}
	return true
}

// NewBufferedEmitter returns an unbounded BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return NewBoundedEmitter(0)
}

// NewBoundedEmitter returns a BufferedEmitter keeping at most limit events
// per run. A limit of zero or less means no limit.
func NewBoundedEmitter(limit int) *BufferedEmitter {
	return &BufferedEmitter{
		events: make(map[string][]Event),
		limit:  limit,
	}
}

// Emit implements Emitter.
func (b *BufferedEmitter) Emit(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	evs := append(b.events[event.RunID], event)
	if b.limit > 0 && len(evs) > b.limit {
		evs = append([]Event(nil), evs[len(evs)-b.limit:]...)
	}
	b.events[event.RunID] = evs
}

// History returns a copy of every event recorded for runID, in order.
func (b *BufferedEmitter) History(runID string) []Event {
	return b.Filter(runID, HistoryFilter{})
}

// Filter returns the events of runID that match f, in order.
func (b *BufferedEmitter) Filter(runID string, f HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := []Event{}
	for _, e := range b.events[runID] {
		if f.matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// Runs lists the run IDs that have recorded events.
func (b *BufferedEmitter) Runs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]string, 0, len(b.events))
	for id := range b.events {
		out = append(out, id)
	}
	return out
}

// Clear drops the history of runID, or of every run when runID is empty.
func (b *BufferedEmitter) Clear(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if runID == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, runID)
}
