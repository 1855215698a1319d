// Package supervisor implements a supervisor-routed multi-agent workflow.
//
// A supervisor model reads the conversation and names the next worker:
// researcher, analyst or synthesizer, or FINISH. Workers report back to the
// supervisor until the synthesizer produces the final output or the
// iteration budget forces a synthesis.
package supervisor

import (
	"context"
	"errors"
	"fmt"

	"github.com/dshills/loopgraph/graph"
	"github.com/dshills/loopgraph/graph/model"
)

// Node names.
const (
	NodeSupervisor  = "supervisor"
	NodeResearcher  = "researcher"
	NodeAnalyst     = "analyst"
	NodeSynthesizer = "synthesizer"
)

// KeyDecision holds the supervisor's raw reply.
const KeyDecision = "supervisor_decision"

// Defaults.
const (
	DefaultMaxIterations  = 10
	DefaultRecursionLimit = 25
)

// Models assigns a chat model to each agent. Agents left nil use Default.
type Models struct {
	Default     model.ChatModel
	Supervisor  model.ChatModel
	Researcher  model.ChatModel
	Analyst     model.ChatModel
	Synthesizer model.ChatModel
}

// Config tunes the workflow.
type Config struct {
	// MaxIterations is the number of worker turns after which the
	// supervisor is overruled and the synthesizer runs.
	MaxIterations int

	// RecursionLimit bounds the total number of steps of a run.
	RecursionLimit int

	// Retry, when MaxAttempts > 1, wraps every agent with graph.WithRetry.
	Retry graph.RetryPolicy
}

// Workflow builds supervisor graphs.
type Workflow struct {
	models Models
	cfg    Config
}

// New returns a Workflow. Zero Config fields take their defaults.
func New(models Models, cfg Config) (*Workflow, error) {
	for _, slot := range []*model.ChatModel{&models.Supervisor, &models.Researcher, &models.Analyst, &models.Synthesizer} {
		if *slot == nil {
			*slot = models.Default
		}
		if *slot == nil {
			return nil, errors.New("supervisor: every agent needs a chat model (set Models.Default)")
		}
	}
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.RecursionLimit == 0 {
		cfg.RecursionLimit = DefaultRecursionLimit
	}
	if cfg.MaxIterations < 0 || cfg.RecursionLimit < 0 {
		return nil, fmt.Errorf("supervisor: limits must be positive (max iterations %d, recursion limit %d)",
			cfg.MaxIterations, cfg.RecursionLimit)
	}
	if cfg.Retry.MaxAttempts > 1 {
		if cfg.Retry.Retryable == nil {
			cfg.Retry.Retryable = model.IsRetryable
		}
		if err := cfg.Retry.Validate(); err != nil {
			return nil, fmt.Errorf("supervisor: %w", err)
		}
	}
	return &Workflow{models: models, cfg: cfg}, nil
}

// Limits returns the run limits matching the workflow's recursion limit.
func (w *Workflow) Limits() graph.Limits {
	return graph.Limits{MaxSteps: w.cfg.RecursionLimit}
}

// Router returns the supervisor's routing function.
func (w *Workflow) Router() graph.Router {
	return Router{MaxIterations: w.cfg.MaxIterations}
}

// Graph assembles and validates the workflow graph.
func (w *Workflow) Graph() (*graph.Graph, error) {
	b := graph.NewBuilder()
	workerRoute := graph.RouterFunc(func(s graph.State) string {
		if s.HasFinalOutput() {
			return graph.End
		}
		return NodeSupervisor
	})
	back := []string{NodeSupervisor, graph.End}

	err := errors.Join(
		b.AddNode(NodeSupervisor, w.wrap(graph.NodeFunc(w.supervise))),
		b.AddNode(NodeResearcher, w.wrap(w.agent(NodeResearcher, w.models.Researcher, researcherPrompt, false))),
		b.AddNode(NodeAnalyst, w.wrap(w.agent(NodeAnalyst, w.models.Analyst, analystPrompt, false))),
		b.AddNode(NodeSynthesizer, w.wrap(w.agent(NodeSynthesizer, w.models.Synthesizer, synthesizerPrompt, true))),
		b.AddConditionalEdge(NodeSupervisor, w.Router(),
			[]string{NodeResearcher, NodeAnalyst, NodeSynthesizer, graph.End}, NodeResearcher),
		b.AddConditionalEdge(NodeResearcher, workerRoute, back, NodeSupervisor),
		b.AddConditionalEdge(NodeAnalyst, workerRoute, back, NodeSupervisor),
		b.AddEdge(NodeSynthesizer, graph.End),
	)
	if err != nil {
		return nil, err
	}
	b.SetEntry(NodeSupervisor)
	return b.Build()
}

func (w *Workflow) wrap(n graph.Node) graph.Node {
	if w.cfg.Retry.MaxAttempts > 1 {
		return graph.WithRetry(n, w.cfg.Retry)
	}
	return n
}

// NewState returns the initial state for task with the task recorded as
// the first user message.
func NewState(task string) graph.State {
	return graph.Merge(graph.NewState(task, nil), graph.Update{
		Log: []graph.LogEntry{{Source: "user", Role: graph.RoleUser, Content: task}},
	})
}

func (w *Workflow) supervise(ctx context.Context, s graph.State) graph.NodeResult {
	msgs := conversation(supervisorPrompt, s)
	msgs = append(msgs, model.User("Current task: "+s.Task))

	out, err := w.models.Supervisor.Chat(ctx, msgs, nil)
	if err != nil {
		return graph.Fail(fmt.Errorf("supervisor: %w", err))
	}
	return graph.NodeResult{Update: graph.Update{
		Metadata: map[string]any{KeyDecision: out.Text},
		Log:      []graph.LogEntry{{Source: NodeSupervisor, Role: graph.RoleAssistant, Content: out.Text}},
	}}
}

// agent returns a worker node. Every worker turn counts as one iteration;
// the final worker's reply also becomes the final output.
func (w *Workflow) agent(name string, m model.ChatModel, prompt string, final bool) graph.Node {
	return graph.NodeFunc(func(ctx context.Context, s graph.State) graph.NodeResult {
		out, err := m.Chat(ctx, conversation(prompt, s), nil)
		if err != nil {
			return graph.Fail(fmt.Errorf("%s: %w", name, err))
		}
		u := graph.Update{
			Iterations: 1,
			Log:        []graph.LogEntry{{Source: name, Role: graph.RoleAssistant, Content: out.Text}},
		}
		if final {
			u.FinalOutput = graph.Output(out.Text)
		}
		return graph.NodeResult{Update: u}
	})
}

// conversation renders the workflow log as chat messages behind a system
// prompt.
func conversation(system string, s graph.State) []model.Message {
	msgs := make([]model.Message, 0, len(s.Log)+2)
	msgs = append(msgs, model.System(system))
	for _, e := range s.Log {
		switch e.Role {
		case graph.RoleUser:
			msgs = append(msgs, model.User(e.Content))
		case graph.RoleSystem:
			msgs = append(msgs, model.System(e.Content))
		default:
			msgs = append(msgs, model.Assistant(e.Content))
		}
	}
	return msgs
}
