package graph

import (
	"log/slog"
	"time"

	"github.com/dshills/loopgraph/graph/emit"
	"github.com/dshills/loopgraph/graph/store"
)

// DefaultMaxSteps bounds a run when neither the engine nor the caller sets a limit.
const DefaultMaxSteps = 25

// Option configures an Engine.
//
// Example:
//
//	engine := graph.New(
//	    graph.WithStore(store.NewMemStore[graph.State]()),
//	    graph.WithEmitter(emit.NewLogEmitter(os.Stderr, false)),
//	    graph.WithMaxSteps(40),
//	)
type Option func(*Engine)

// WithStore persists every step and the resumable checkpoint of each run.
// Without a store the engine keeps nothing beyond the returned Result.
func WithStore(st store.Store[State]) Option {
	return func(e *Engine) { e.store = st }
}

// WithEmitter sends step, routing and run events to an observability backend.
func WithEmitter(em emit.Emitter) Option {
	return func(e *Engine) {
		if em != nil {
			e.emitter = em
		}
	}
}

// WithObserver registers an observer called synchronously after every step
// of every run.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// WithMetrics records Prometheus metrics for runs executed by the engine.
func WithMetrics(m *PrometheusMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the structured logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMaxSteps sets the default step bound. Values <= 0 select DefaultMaxSteps.
//
// For a refinement loop, budget roughly nodes-per-pass × passes; the
// research workflow uses 25.
func WithMaxSteps(n int) Option {
	return func(e *Engine) { e.defaults.MaxSteps = n }
}

// WithRunDeadline sets the default wall-clock budget of a run. Zero disables it.
func WithRunDeadline(d time.Duration) Option {
	return func(e *Engine) { e.defaults.Deadline = d }
}

// Limits bounds a single run. Zero fields fall back to the engine defaults.
type Limits struct {
	// MaxSteps is the largest StepCount a run may reach. No node is invoked
	// once StepCount equals MaxSteps.
	MaxSteps int

	// Deadline is the wall-clock budget measured from the start of Run or Resume.
	Deadline time.Duration
}

func (l Limits) orDefault(def Limits) Limits {
	if l.MaxSteps <= 0 {
		l.MaxSteps = def.MaxSteps
	}
	if l.MaxSteps <= 0 {
		l.MaxSteps = DefaultMaxSteps
	}
	if l.Deadline <= 0 {
		l.Deadline = def.Deadline
	}
	return l
}

// RunOption configures one call to Run or Resume.
type RunOption func(*runConfig)

type runConfig struct {
	trace     *Trace
	observers []Observer
}

// WithTrace records the run into t, letting other goroutines Watch it
// while the run is in progress. The engine closes t when the run ends.
func WithTrace(t *Trace) RunOption {
	return func(rc *runConfig) {
		if t != nil {
			rc.trace = t
		}
	}
}

// OnStep registers an observer for this run only.
func OnStep(o Observer) RunOption {
	return func(rc *runConfig) {
		if o != nil {
			rc.observers = append(rc.observers, o)
		}
	}
}

// Observer is notified after each completed step.
type Observer interface {
	OnStep(nodeID string, state State)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(nodeID string, state State)

// OnStep implements Observer.
func (f ObserverFunc) OnStep(nodeID string, state State) { f(nodeID, state) }
