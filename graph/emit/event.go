// Package emit carries engine progress events to observability backends.
package emit

import "time"

// Event names emitted by the engine.
const (
	MsgRunStart       = "run_start"
	MsgNodeStart      = "node_start"
	MsgNodeEnd        = "node_end"
	MsgNodeError      = "node_error"
	MsgRoute          = "route"
	MsgRouterFallback = "router_fallback"
	MsgRunEnd         = "run_end"
)

// Event represents an observability event emitted during a run.
type Event struct {
	// RunID identifies the run that emitted this event.
	RunID string

	// Step is the 1-indexed step number. Zero for run-level events.
	Step int

	// NodeID identifies the node the event concerns.
	// Empty for run-level events.
	NodeID string

	// Msg is the event name, one of the Msg constants.
	Msg string

	// Time is when the event was produced. Emitters fill it in when zero.
	Time time.Time

	// Meta carries event-specific data. Common keys:
	//   - "duration_ms": node latency
	//   - "error": error text
	//   - "next": routing target
	//   - "matched": keyword or case that produced a routing decision
	//   - "outcome": final run outcome
	Meta map[string]any
}

// Error returns the "error" meta value, if present.
func (e Event) Error() (string, bool) {
	s, ok := e.Meta["error"].(string)
	return s, ok
}
