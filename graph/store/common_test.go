package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

// runState is the state type used by the store contract tests.
type runState struct {
	Task  string         `json:"task"`
	Count int            `json:"count"`
	Notes []string       `json:"notes,omitempty"`
	Meta  map[string]any `json:"meta,omitempty"`
}

// runStoreContract exercises behaviour every Store implementation must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store[runState]) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing run", func(t *testing.T) {
		st := newStore(t)
		if _, _, err := st.LoadLatest(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("LoadLatest error = %v, want ErrNotFound", err)
		}
		if _, err := st.LoadCheckpoint(ctx, "nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("LoadCheckpoint error = %v, want ErrNotFound", err)
		}
		steps, err := st.Steps(ctx, "nope")
		if err != nil || len(steps) != 0 {
			t.Errorf("Steps = %v, %v; want empty, nil", steps, err)
		}
	})

	t.Run("latest step wins", func(t *testing.T) {
		st := newStore(t)
		runID := "run-latest"
		for i, node := range []string{"planner", "searcher", "summarizer"} {
			s := runState{Task: "t", Count: i + 1, Notes: []string{node}}
			if err := st.SaveStep(ctx, runID, i+1, node, s); err != nil {
				t.Fatalf("SaveStep(%d) error = %v", i+1, err)
			}
		}

		got, step, err := st.LoadLatest(ctx, runID)
		if err != nil {
			t.Fatalf("LoadLatest error = %v", err)
		}
		if step != 3 || got.Count != 3 || got.Notes[0] != "summarizer" {
			t.Errorf("LoadLatest = %+v at step %d", got, step)
		}

		steps, err := st.Steps(ctx, runID)
		if err != nil {
			t.Fatalf("Steps error = %v", err)
		}
		if len(steps) != 3 {
			t.Fatalf("len(Steps) = %d, want 3", len(steps))
		}
		for i, rec := range steps {
			if rec.Step != i+1 {
				t.Errorf("steps[%d].Step = %d", i, rec.Step)
			}
		}
		if steps[1].NodeID != "searcher" {
			t.Errorf("steps[1].NodeID = %q", steps[1].NodeID)
		}
	})

	t.Run("resaving a step replaces it", func(t *testing.T) {
		st := newStore(t)
		_ = st.SaveStep(ctx, "r", 1, "a", runState{Count: 1})
		if err := st.SaveStep(ctx, "r", 1, "b", runState{Count: 9}); err != nil {
			t.Fatalf("SaveStep error = %v", err)
		}
		steps, _ := st.Steps(ctx, "r")
		if len(steps) != 1 || steps[0].NodeID != "b" || steps[0].State.Count != 9 {
			t.Errorf("Steps = %+v", steps)
		}
	})

	t.Run("checkpoint round trip", func(t *testing.T) {
		st := newStore(t)
		ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		cp := Checkpoint[runState]{
			RunID:     "run-cp",
			Step:      4,
			NodeID:    "critic",
			Next:      "refiner",
			State:     runState{Task: "t", Count: 4, Meta: map[string]any{"score": 5.5}},
			Timestamp: ts,
		}
		if err := st.SaveCheckpoint(ctx, cp); err != nil {
			t.Fatalf("SaveCheckpoint error = %v", err)
		}

		got, err := st.LoadCheckpoint(ctx, "run-cp")
		if err != nil {
			t.Fatalf("LoadCheckpoint error = %v", err)
		}
		if got.Step != 4 || got.NodeID != "critic" || got.Next != "refiner" {
			t.Errorf("checkpoint = %+v", got)
		}
		if got.State.Meta["score"] != 5.5 {
			t.Errorf("state meta = %v", got.State.Meta)
		}
		if !got.Timestamp.Equal(ts) {
			t.Errorf("Timestamp = %v, want %v", got.Timestamp, ts)
		}

		cp.Step, cp.Next = 5, "__end__"
		if err := st.SaveCheckpoint(ctx, cp); err != nil {
			t.Fatalf("SaveCheckpoint overwrite error = %v", err)
		}
		got, _ = st.LoadCheckpoint(ctx, "run-cp")
		if got.Step != 5 || got.Next != "__end__" {
			t.Errorf("checkpoint not replaced: %+v", got)
		}
	})

	t.Run("runs are isolated", func(t *testing.T) {
		st := newStore(t)
		_ = st.SaveStep(ctx, "a", 1, "n", runState{Task: "a"})
		_ = st.SaveStep(ctx, "b", 1, "n", runState{Task: "b"})
		sa, _, _ := st.LoadLatest(ctx, "a")
		sb, _, _ := st.LoadLatest(ctx, "b")
		if sa.Task != "a" || sb.Task != "b" {
			t.Errorf("runs mixed up: %q %q", sa.Task, sb.Task)
		}
	})

	t.Run("concurrent runs", func(t *testing.T) {
		st := newStore(t)
		var wg sync.WaitGroup
		errs := make(chan error, 40)
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				runID := fmt.Sprintf("run-%d", w)
				for step := 1; step <= 10; step++ {
					if err := st.SaveStep(ctx, runID, step, "n", runState{Count: step}); err != nil {
						errs <- err
					}
				}
			}(w)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			t.Errorf("SaveStep error = %v", err)
		}
		for w := 0; w < 4; w++ {
			_, step, err := st.LoadLatest(ctx, fmt.Sprintf("run-%d", w))
			if err != nil || step != 10 {
				t.Errorf("run-%d latest = %d, %v", w, step, err)
			}
		}
	})
}
