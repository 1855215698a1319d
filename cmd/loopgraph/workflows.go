package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dshills/loopgraph/graph"
	"github.com/dshills/loopgraph/graph/tool"
	"github.com/dshills/loopgraph/workflows/research"
	"github.com/dshills/loopgraph/workflows/supervisor"
)

// Workflow names accepted by resume and graph.
const (
	workflowResearch   = "research"
	workflowSupervisor = "supervisor"
)

// researchOptions are the research command's own flags.
type researchOptions struct {
	papersFile string
}

func (a *app) researchWorkflow(opts researchOptions) (*research.Workflow, error) {
	m, err := a.chatModel()
	if err != nil {
		return nil, err
	}

	var searcher research.Searcher
	switch {
	case opts.papersFile != "":
		papers, err := readPapers(opts.papersFile)
		if err != nil {
			return nil, err
		}
		searcher = research.StaticSearcher(papers)
	case a.cfg.Research.SearchURL != "":
		searcher = research.ToolSearcher{
			Tool: tool.NewHTTPTool(tool.WithName("paper_search")),
			URL:  a.cfg.Research.SearchURL,
		}
	default:
		searcher = research.StaticSearcher(nil)
	}

	cfg := research.Config{
		Threshold:     a.cfg.Gate.Threshold,
		MaxIterations: a.cfg.Gate.MaxIterations,
		NeutralScore:  a.cfg.Gate.NeutralScore,
		MaxPapers:     a.cfg.Research.MaxPapers,
		NodeTimeout:   a.cfg.Research.NodeTimeout.Std(),
	}
	if a.cfg.Research.Retries > 0 {
		cfg.Retry = graph.RetryPolicy{
			MaxAttempts: a.cfg.Research.Retries + 1,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    8 * time.Second,
		}
	}
	return research.New(research.Models{Default: m}, searcher, cfg)
}

func readPapers(path string) ([]research.Paper, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read papers file: %w", err)
	}
	var papers []research.Paper
	if err := json.Unmarshal(data, &papers); err != nil {
		return nil, fmt.Errorf("failed to parse papers file: %w", err)
	}
	return papers, nil
}

func (a *app) supervisorWorkflow() (*supervisor.Workflow, error) {
	m, err := a.chatModel()
	if err != nil {
		return nil, err
	}
	return supervisor.New(supervisor.Models{Default: m}, supervisor.Config{
		MaxIterations:  a.cfg.Supervisor.MaxIterations,
		RecursionLimit: a.cfg.Engine.MaxSteps,
	})
}

// workflowGraph builds the named workflow's graph with the given research
// options.
func (a *app) workflowGraph(name string, opts researchOptions) (*graph.Graph, graph.Limits, error) {
	switch name {
	case workflowResearch:
		wf, err := a.researchWorkflow(opts)
		if err != nil {
			return nil, graph.Limits{}, err
		}
		g, err := wf.Graph()
		return g, graph.Limits{}, err
	case workflowSupervisor:
		wf, err := a.supervisorWorkflow()
		if err != nil {
			return nil, graph.Limits{}, err
		}
		g, err := wf.Graph()
		return g, wf.Limits(), err
	default:
		return nil, graph.Limits{}, fmt.Errorf("unknown workflow %q (want %s or %s)", name, workflowResearch, workflowSupervisor)
	}
}

func newResearchCmd(a *app) *cobra.Command {
	var opts researchOptions
	var runID string
	cmd := &cobra.Command{
		Use:   "research <query>",
		Short: "Plan, search, summarize and synthesize papers with a critic loop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, limits, err := a.workflowGraph(workflowResearch, opts)
			if err != nil {
				return err
			}
			return a.run(cmd.Context(), cmd.OutOrStdout(), g, runID, research.NewState(args[0]), limits)
		},
	}
	cmd.Flags().StringVar(&opts.papersFile, "papers", "", "JSON file of papers to use instead of a search endpoint")
	cmd.Flags().StringVar(&runID, "run-id", "", "run identifier (generated when empty)")
	return cmd
}

func newSuperviseCmd(a *app) *cobra.Command {
	var runID string
	cmd := &cobra.Command{
		Use:   "supervise <task>",
		Short: "Let a supervisor delegate a task to researcher, analyst and synthesizer agents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, limits, err := a.workflowGraph(workflowSupervisor, researchOptions{})
			if err != nil {
				return err
			}
			return a.run(cmd.Context(), cmd.OutOrStdout(), g, runID, supervisor.NewState(args[0]), limits)
		},
	}
	cmd.Flags().StringVar(&runID, "run-id", "", "run identifier (generated when empty)")
	return cmd
}

func newResumeCmd(a *app) *cobra.Command {
	var opts researchOptions
	cmd := &cobra.Command{
		Use:   "resume <research|supervisor> <run-id>",
		Short: "Continue a checkpointed run",
		Long:  `Resume loads the latest checkpoint of a run from a persistent store and continues from the node that would have run next.`,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, limits, err := a.workflowGraph(args[0], opts)
			if err != nil {
				return err
			}
			r, err := a.newRunner(cmd.Context())
			if err != nil {
				return err
			}
			defer func() { _ = r.close() }()

			res, err := r.engine.Resume(cmd.Context(), g, args[1], limits)
			if err != nil {
				return err
			}
			err = report(cmd.OutOrStdout(), res)
			a.reportCost(cmd.OutOrStdout())
			return err
		},
	}
	cmd.Flags().StringVar(&opts.papersFile, "papers", "", "JSON file of papers to use instead of a search endpoint")
	return cmd
}

func newGraphCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "graph <research|supervisor>",
		Short: "Print a workflow graph as a Mermaid flowchart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, _, err := a.workflowGraph(args[0], researchOptions{})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, g.Mermaid())
			for _, w := range g.Warnings() {
				fmt.Fprintf(out, "%%%% warning: %s\n", w)
			}
			return nil
		},
	}
}

// run executes one workflow run and reports it.
func (a *app) run(ctx context.Context, out io.Writer, g *graph.Graph, runID string, initial graph.State, limits graph.Limits) error {
	if runID == "" {
		runID = uuid.NewString()
	}
	r, err := a.newRunner(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = r.close() }()

	fmt.Fprintf(out, "run %s\n", runID)
	res := r.engine.Run(ctx, g, runID, initial, limits)
	err = report(out, res)
	a.reportCost(out)
	return err
}

// report prints the outcome of res and returns its error for anything
// other than a completed run.
func report(out io.Writer, res *graph.Result) error {
	fmt.Fprintf(out, "outcome: %s after %d steps (%d refinements)\n", res.Outcome, res.Steps, res.State.IterationCount)
	fmt.Fprintf(out, "path: %v\n", res.Trace.Nodes())
	if score, ok := res.State.MetaFloat(graph.MetaScore); ok {
		fmt.Fprintf(out, "quality: %.1f/10\n", score)
	}
	if res.State.HasFinalOutput() {
		fmt.Fprintf(out, "\n%s\n", res.State.FinalOutput)
	}
	if res.OK() {
		return nil
	}
	if res.NextNode != "" {
		fmt.Fprintf(out, "next node: %s (resume with: loopgraph resume <workflow> %s)\n", res.NextNode, res.RunID)
	}
	return fmt.Errorf("run %s: %w", res.RunID, res.Err)
}

// reportCost prints token usage for the calls made so far. Nothing is
// printed when no model call reported usage.
func (a *app) reportCost(out io.Writer) {
	if a.costs == nil {
		return
	}
	usage, total := a.costs.Total()
	if usage.InputTokens == 0 && usage.OutputTokens == 0 {
		return
	}
	fmt.Fprintf(out, "tokens: %d in / %d out, estimated cost $%.4f\n", usage.InputTokens, usage.OutputTokens, total)
}
