package graph

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestTraceAppendAndClose(t *testing.T) {
	tr := NewTrace()
	tr.Append(TraceEntry{Step: 1, NodeID: "a", Next: "b"})
	tr.Append(TraceEntry{Step: 2, NodeID: "b", Next: End})
	tr.Close()
	tr.Append(TraceEntry{Step: 3, NodeID: "late"})
	tr.Close()

	if tr.Len() != 2 {
		t.Errorf("Len() = %d, want 2", tr.Len())
	}
	entries := tr.Entries()
	entries[0].NodeID = "mutated"
	if tr.Entries()[0].NodeID != "a" {
		t.Error("Entries() exposed internal storage")
	}
}

func TestTraceWatch(t *testing.T) {
	t.Run("replays and follows", func(t *testing.T) {
		tr := NewTrace()
		tr.Append(TraceEntry{Step: 1, NodeID: "a"})

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		ch := tr.Watch(ctx, 0)

		go func() {
			tr.Append(TraceEntry{Step: 2, NodeID: "b"})
			tr.Append(TraceEntry{Step: 3, NodeID: "c"})
			tr.Close()
		}()

		var steps []int
		for e := range ch {
			steps = append(steps, e.Step)
		}
		if len(steps) != 3 || steps[0] != 1 || steps[2] != 3 {
			t.Errorf("watched steps = %v", steps)
		}
	})

	t.Run("starts at offset", func(t *testing.T) {
		tr := NewTrace()
		for i := 1; i <= 4; i++ {
			tr.Append(TraceEntry{Step: i})
		}
		tr.Close()

		var steps []int
		for e := range tr.Watch(context.Background(), 2) {
			steps = append(steps, e.Step)
		}
		if len(steps) != 2 || steps[0] != 3 {
			t.Errorf("watched steps = %v, want [3 4]", steps)
		}
	})

	t.Run("stops on context", func(t *testing.T) {
		tr := NewTrace()
		ctx, cancel := context.WithCancel(context.Background())
		ch := tr.Watch(ctx, 0)
		cancel()

		select {
		case _, ok := <-ch:
			if ok {
				t.Error("received an entry from an empty trace")
			}
		case <-time.After(time.Second):
			t.Fatal("watch did not stop after cancel")
		}
	})

	t.Run("many watchers", func(t *testing.T) {
		tr := NewTrace()
		const watchers = 8
		var wg sync.WaitGroup
		counts := make([]int, watchers)
		for i := 0; i < watchers; i++ {
			ch := tr.Watch(context.Background(), 0)
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				for range ch {
					counts[i]++
				}
			}(i)
		}
		for i := 1; i <= 50; i++ {
			tr.Append(TraceEntry{Step: i})
		}
		tr.Close()
		wg.Wait()

		for i, n := range counts {
			if n != 50 {
				t.Errorf("watcher %d saw %d entries, want 50", i, n)
			}
		}
	})
}
