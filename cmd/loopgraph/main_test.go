package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--provider", "mock", "--log-level", "error"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writePapers(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "papers.json")
	data := `[{"title": "Graph Agents", "authors": ["Ada"], "abstract": "Agents as graphs."}]`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestGraphCommand(t *testing.T) {
	out, err := execute(t, "graph", "research")
	if err != nil {
		t.Fatalf("graph research: %v", err)
	}
	for _, want := range []string{"flowchart TD", "synthesizer --> critic", "critic -.->|default| reflector", "critic -.-> finalize"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	if _, err := execute(t, "graph", "unknown"); err == nil {
		t.Error("expected error for unknown workflow")
	}
}

func TestResearchCommand(t *testing.T) {
	out, err := execute(t, "research", "--papers", writePapers(t), "--run-id", "r-1", "What are graph agents?")
	if err != nil {
		t.Fatalf("research: %v\n%s", err, out)
	}
	for _, want := range []string{"run r-1", "outcome: completed", "quality: 8.0", "[offline]"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSuperviseCommand(t *testing.T) {
	out, err := execute(t, "supervise", "Compare RAG designs")
	if err != nil {
		t.Fatalf("supervise: %v\n%s", err, out)
	}
	if !strings.Contains(out, "path: [supervisor synthesizer]") {
		t.Errorf("output:\n%s", out)
	}
}

func TestResumeFromSQLite(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "runs.db")
	store := []string{"--store", "sqlite", "--dsn", dsn}

	if out, err := execute(t, append(store, "supervise", "--run-id", "s-1", "task")...); err != nil {
		t.Fatalf("supervise: %v\n%s", err, out)
	}

	out, err := execute(t, append(store, "resume", "supervisor", "s-1")...)
	if err != nil {
		t.Fatalf("resume: %v\n%s", err, out)
	}
	if !strings.Contains(out, "outcome: completed") {
		t.Errorf("output:\n%s", out)
	}

	if _, err := execute(t, append(store, "resume", "supervisor", "missing")...); err == nil {
		t.Error("expected error for unknown run")
	}
}

func TestInvalidFlags(t *testing.T) {
	if _, err := execute(t, "--store", "mysql", "graph", "research"); err == nil {
		t.Error("expected error for mysql without dsn")
	}
	if _, err := execute(t, "research"); err == nil {
		t.Error("expected error without a query")
	}
}
