package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dshills/loopgraph/graph/emit"
	"github.com/dshills/loopgraph/graph/store"
)

// Engine executes runs over compiled graphs.
//
// An Engine holds only configuration. Graphs are passed per run and are
// never modified, so one Engine and one Graph can serve many concurrent
// runs; each run owns its own State.
//
// The run loop is iterative: cycles in the graph become loop iterations,
// never recursion, and every run is bounded by Limits.
//
// Example:
//
//	engine := graph.New(graph.WithStore(store.NewMemStore[graph.State]()))
//	res := engine.Run(ctx, g, "run-001", graph.NewState("task", nil), graph.Limits{MaxSteps: 25})
//	switch res.Outcome {
//	case graph.Completed:
//	    fmt.Println(res.State.FinalOutput)
//	case graph.Failed:
//	    log.Printf("node %s failed: %v", res.FailedNode, res.Err)
//	}
type Engine struct {
	store     store.Store[State]
	emitter   emit.Emitter
	observers []Observer
	metrics   *PrometheusMetrics
	logger    *slog.Logger
	defaults  Limits
}

// New returns an Engine configured by opts.
func New(opts ...Option) *Engine {
	e := &Engine{
		emitter: emit.NewNullEmitter(),
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes g from its entry node. The initial state is copied, so the
// caller's value is never modified. An empty runID is replaced by a
// random UUID.
//
// Run always returns a Result; it never panics on node failure.
func (e *Engine) Run(ctx context.Context, g *Graph, runID string, initial State, limits Limits, opts ...RunOption) *Result {
	if runID == "" {
		runID = uuid.NewString()
	}
	if g == nil {
		return &Result{
			RunID:   runID,
			Outcome: Failed,
			State:   initial.Clone(),
			Err:     &EngineError{Message: "graph is nil", Code: CodeNilGraph},
			Trace:   closedTrace(),
		}
	}
	return e.execute(ctx, g, runID, initial.Clone(), g.Entry(), limits, opts)
}

// Resume continues runID from the checkpoint saved by the configured store.
//
// The checkpoint's StepCount carries over, so limits.MaxSteps bounds the
// total number of steps across the original run and the resumed one.
// A run whose checkpoint already points at End is reported as Completed
// without invoking any node.
func (e *Engine) Resume(ctx context.Context, g *Graph, runID string, limits Limits, opts ...RunOption) (*Result, error) {
	if g == nil {
		return nil, &EngineError{Message: "graph is nil", Code: CodeNilGraph}
	}
	if e.store == nil {
		return nil, &EngineError{Message: "resume requires a store", Code: CodeStoreError}
	}

	cp, err := e.store.LoadCheckpoint(ctx, runID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &EngineError{Message: "no checkpoint for run " + runID, Code: CodeNoCheckpoint, Cause: err}
	}
	if err != nil {
		return nil, &EngineError{Message: "failed to load checkpoint: " + err.Error(), Code: CodeStoreError, Cause: err}
	}

	if cp.Next == End {
		rc := newRunConfig(opts)
		rc.trace.Close()
		return &Result{
			RunID:   runID,
			Outcome: Completed,
			State:   cp.State,
			Steps:   cp.State.StepCount,
			Trace:   rc.trace,
		}, nil
	}
	if _, ok := g.Node(cp.Next); !ok {
		return nil, &EngineError{Message: fmt.Sprintf("checkpoint names unknown node %q", cp.Next), Code: CodeUnknownNode}
	}

	e.logger.Info("resuming run", "run_id", runID, "step", cp.Step, "next", cp.Next)
	return e.execute(ctx, g, runID, cp.State, cp.Next, limits, opts), nil
}

func newRunConfig(opts []RunOption) *runConfig {
	rc := &runConfig{}
	for _, opt := range opts {
		opt(rc)
	}
	if rc.trace == nil {
		rc.trace = NewTrace()
	}
	return rc
}

func closedTrace() *Trace {
	t := NewTrace()
	t.Close()
	return t
}

// execute is the step loop shared by Run and Resume.
func (e *Engine) execute(ctx context.Context, g *Graph, runID string, state State, current string, limits Limits, opts []RunOption) *Result {
	rc := newRunConfig(opts)
	lim := limits.orDefault(e.defaults)
	log := e.logger.With("run_id", runID)

	// runCtx carries the run deadline into node calls so a slow external
	// call is interrupted rather than stalling the run.
	runCtx := ctx
	var deadline time.Time
	if lim.Deadline > 0 {
		deadline = time.Now().Add(lim.Deadline)
		var cancel context.CancelFunc
		runCtx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	e.metrics.runStarted()
	e.emit(emit.Event{RunID: runID, Msg: emit.MsgRunStart, Meta: map[string]any{"entry": current, "max_steps": lim.MaxSteps}})
	log.Info("run started", "entry", current, "max_steps", lim.MaxSteps, "deadline", lim.Deadline)

	finish := func(res *Result) *Result {
		res.RunID = runID
		res.Trace = rc.trace
		rc.trace.Close()

		meta := map[string]any{"outcome": res.Outcome.String(), "steps": res.Steps}
		if res.Err != nil {
			meta["error"] = res.Err.Error()
		}
		e.emit(emit.Event{RunID: runID, Msg: emit.MsgRunEnd, Meta: meta})
		e.metrics.runFinished(res.Outcome, res.State.IterationCount)

		attrs := []any{"outcome", res.Outcome.String(), "steps", res.Steps, "iterations", res.State.IterationCount}
		if res.Err != nil {
			log.Error("run ended", append(attrs, "error", res.Err)...)
		} else {
			log.Info("run ended", attrs...)
		}
		return res
	}

	recursion := func(deadlineHit bool) *Result {
		rerr := &RecursionError{Steps: state.StepCount + 1, MaxSteps: lim.MaxSteps}
		if deadlineHit {
			rerr.Deadline = lim.Deadline
		}
		return finish(&Result{
			Outcome:  RecursionExceeded,
			State:    state,
			NextNode: current,
			Steps:    rerr.Steps,
			Err:      rerr,
		})
	}

	for {
		if err := ctx.Err(); err != nil {
			return finish(&Result{
				Outcome:  Cancelled,
				State:    state,
				NextNode: current,
				Steps:    state.StepCount,
				Err:      err,
			})
		}
		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return recursion(true)
		}
		if state.StepCount >= lim.MaxSteps {
			return recursion(false)
		}

		node, ok := g.Node(current)
		if !ok {
			return finish(&Result{
				Outcome:  Failed,
				State:    state,
				NextNode: current,
				Steps:    state.StepCount,
				Err:      &EngineError{Message: "node not found: " + current, Code: CodeUnknownNode},
			})
		}

		step := state.StepCount + 1
		e.emit(emit.Event{RunID: runID, Step: step, NodeID: current, Msg: emit.MsgNodeStart})
		log.Debug("invoking node", "step", step, "node_id", current)

		began := time.Now()
		res := invokeNode(runCtx, current, node, state)
		elapsed := time.Since(began)

		if res.Err != nil {
			if ctx.Err() == nil && runCtx.Err() != nil && errors.Is(res.Err, context.DeadlineExceeded) {
				e.metrics.recordStep(current, elapsed, "timeout")
				return recursion(true)
			}
			if cerr := ctx.Err(); cerr != nil && errors.Is(res.Err, cerr) {
				// The node gave up on a cancelled caller; its partial step is discarded.
				e.metrics.recordStep(current, elapsed, "cancelled")
				return finish(&Result{
					Outcome:  Cancelled,
					State:    state,
					NextNode: current,
					Steps:    state.StepCount,
					Err:      cerr,
				})
			}
			nerr := asNodeError(current, res.Err)
			e.metrics.recordStep(current, elapsed, "error")
			e.emit(emit.Event{RunID: runID, Step: step, NodeID: current, Msg: emit.MsgNodeError, Meta: map[string]any{
				"error":       nerr.Error(),
				"code":        nerr.Code,
				"duration_ms": elapsed.Milliseconds(),
			}})
			return finish(&Result{
				Outcome:    Failed,
				State:      state,
				NextNode:   current,
				FailedNode: current,
				Steps:      state.StepCount,
				Err:        nerr,
			})
		}
		e.metrics.recordStep(current, elapsed, "success")

		next := Merge(state, res.Update)
		next.StepCount = step
		next.CurrentNode = current

		target, err := e.route(g, runID, step, current, next, log)
		if err != nil {
			return finish(&Result{
				Outcome:    Failed,
				State:      state,
				NextNode:   current,
				FailedNode: current,
				Steps:      state.StepCount,
				Err:        err,
			})
		}

		// The step has completed, so its checkpoint is written even if the
		// caller cancelled meanwhile; the cancellation is reported before the
		// next step.
		if err := e.persist(context.WithoutCancel(ctx), runID, step, current, target, next); err != nil {
			return finish(&Result{
				Outcome:  Failed,
				State:    next,
				NextNode: target,
				Steps:    step,
				Err:      err,
			})
		}

		state = next
		rc.trace.Append(TraceEntry{Step: step, NodeID: current, Next: target, State: state.Clone()})
		e.notify(rc, current, state)
		e.emit(emit.Event{RunID: runID, Step: step, NodeID: current, Msg: emit.MsgNodeEnd, Meta: map[string]any{
			"duration_ms": elapsed.Milliseconds(),
			"next":        target,
			"iterations":  state.IterationCount,
		}})

		if target == End {
			return finish(&Result{
				Outcome: Completed,
				State:   state,
				Steps:   state.StepCount,
			})
		}
		current = target
	}
}

// route picks the node after from. Conditional decisions outside the
// edge's declared targets are replaced by the edge default and logged as
// a warning; they never fail the run.
func (e *Engine) route(g *Graph, runID string, step int, from string, s State, log *slog.Logger) (string, error) {
	edge, ok := g.Edge(from)
	if !ok {
		return "", &EngineError{Message: "no outgoing edge from " + from, Code: CodeUnknownNode}
	}
	if !edge.Conditional() {
		e.metrics.recordRoute(from, edge.To, false)
		return edge.To, nil
	}

	d, err := decide(edge.Router, s)
	if err != nil {
		return "", &NodeError{Message: err.Error(), Code: CodeRouterPanic, NodeID: from, Cause: err}
	}

	target := d.Target
	fallback := d.Fallback
	if !edge.Allows(target) {
		log.Warn("router returned undeclared target, using default",
			"node_id", from, "step", step, "decision", target, "default", edge.Default)
		e.emit(emit.Event{RunID: runID, Step: step, NodeID: from, Msg: emit.MsgRouterFallback, Meta: map[string]any{
			"decision": target,
			"next":     edge.Default,
		}})
		target, fallback = edge.Default, true
	} else if fallback {
		log.Warn("no routing rule matched, using router default", "node_id", from, "step", step, "next", target)
		e.emit(emit.Event{RunID: runID, Step: step, NodeID: from, Msg: emit.MsgRouterFallback, Meta: map[string]any{
			"next": target,
		}})
	}

	e.metrics.recordRoute(from, target, fallback)
	meta := map[string]any{"next": target}
	if d.Matched != "" {
		meta["matched"] = d.Matched
	}
	e.emit(emit.Event{RunID: runID, Step: step, NodeID: from, Msg: emit.MsgRoute, Meta: meta})
	log.Debug("routed", "node_id", from, "step", step, "next", target, "matched", d.Matched)
	return target, nil
}

// decide evaluates a router, converting a panic into an error.
func decide(r Router, s State) (d Decision, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("router panic: %v", p)
		}
	}()
	return r.Route(s), nil
}

func (e *Engine) persist(ctx context.Context, runID string, step int, nodeID, next string, s State) error {
	if e.store == nil {
		return nil
	}
	if err := e.store.SaveStep(ctx, runID, step, nodeID, s); err != nil {
		return &EngineError{Message: "failed to save step: " + err.Error(), Code: CodeStoreError, Cause: err}
	}
	cp := store.Checkpoint[State]{
		RunID:     runID,
		Step:      step,
		NodeID:    nodeID,
		Next:      next,
		State:     s,
		Timestamp: time.Now().UTC(),
	}
	if err := e.store.SaveCheckpoint(ctx, cp); err != nil {
		return &EngineError{Message: "failed to save checkpoint: " + err.Error(), Code: CodeStoreError, Cause: err}
	}
	return nil
}

func (e *Engine) notify(rc *runConfig, nodeID string, s State) {
	for _, o := range e.observers {
		o.OnStep(nodeID, s.Clone())
	}
	for _, o := range rc.observers {
		o.OnStep(nodeID, s.Clone())
	}
}

func (e *Engine) emit(ev emit.Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	e.emitter.Emit(ev)
}
