package graph

// Outcome classifies how a run ended.
type Outcome int

const (
	// Completed means the run reached End.
	Completed Outcome = iota + 1

	// Failed means a node reported an error, or the engine could not
	// persist progress.
	Failed

	// RecursionExceeded means the step bound or the deadline was hit.
	RecursionExceeded

	// Cancelled means the caller's context was done between steps.
	Cancelled
)

// String returns the lower-case outcome name.
func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	case RecursionExceeded:
		return "recursion_exceeded"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Result is what a run returns. Every outcome carries the last good state:
// the state after the most recent step that completed, so partial progress
// is never thrown away.
type Result struct {
	RunID   string
	Outcome Outcome

	// State is the final state for Completed, and the last good state otherwise.
	State State

	// NextNode is the node that would have run next. Empty for Completed.
	NextNode string

	// FailedNode names the failing node when Outcome is Failed.
	FailedNode string

	// Steps is the number of steps completed. For RecursionExceeded it is
	// the step that was refused, one past the limit.
	Steps int

	// Err explains any outcome other than Completed: a *NodeError,
	// a *RecursionError, an *EngineError or the context's error.
	Err error

	// Trace holds the step record of the run.
	Trace *Trace
}

// OK reports whether the run completed.
func (r *Result) OK() bool {
	return r.Outcome == Completed
}
