package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemStore keeps run history in process memory. States are stored in
// encoded form, so later changes to a saved value never leak into the store.
//
// MemStore is safe for concurrent use. Data is lost when the process exits.
type MemStore[S any] struct {
	mu          sync.RWMutex
	codec       Codec[S]
	steps       map[string]map[int]memStep
	checkpoints map[string]memCheckpoint
}

type memStep struct {
	nodeID string
	data   []byte
}

type memCheckpoint struct {
	step      int
	nodeID    string
	next      string
	data      []byte
	timestamp time.Time
}

// NewMemStore returns an empty in-memory store.
func NewMemStore[S any](opts ...Option[S]) *MemStore[S] {
	o := buildOptions(opts)
	return &MemStore[S]{
		codec:       o.codec,
		steps:       make(map[string]map[int]memStep),
		checkpoints: make(map[string]memCheckpoint),
	}
}

// SaveStep implements Store.
func (m *MemStore[S]) SaveStep(_ context.Context, runID string, step int, nodeID string, state S) error {
	data, err := m.codec.Marshal(state)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	run, ok := m.steps[runID]
	if !ok {
		run = make(map[int]memStep)
		m.steps[runID] = run
	}
	run[step] = memStep{nodeID: nodeID, data: data}
	return nil
}

// LoadLatest implements Store.
func (m *MemStore[S]) LoadLatest(_ context.Context, runID string) (S, int, error) {
	var zero S

	m.mu.RLock()
	run := m.steps[runID]
	latest, found := -1, false
	for step := range run {
		if step > latest {
			latest, found = step, true
		}
	}
	var data []byte
	if found {
		data = run[latest].data
	}
	m.mu.RUnlock()

	if !found {
		return zero, 0, ErrNotFound
	}
	state, err := m.codec.Unmarshal(data)
	if err != nil {
		return zero, 0, err
	}
	return state, latest, nil
}

// Steps implements Store.
func (m *MemStore[S]) Steps(_ context.Context, runID string) ([]StepRecord[S], error) {
	m.mu.RLock()
	run := m.steps[runID]
	nums := make([]int, 0, len(run))
	for step := range run {
		nums = append(nums, step)
	}
	sort.Ints(nums)
	raw := make([]memStep, len(nums))
	for i, n := range nums {
		raw[i] = run[n]
	}
	m.mu.RUnlock()

	out := make([]StepRecord[S], 0, len(nums))
	for i, n := range nums {
		state, err := m.codec.Unmarshal(raw[i].data)
		if err != nil {
			return nil, err
		}
		out = append(out, StepRecord[S]{Step: n, NodeID: raw[i].nodeID, State: state})
	}
	return out, nil
}

// SaveCheckpoint implements Store.
func (m *MemStore[S]) SaveCheckpoint(_ context.Context, cp Checkpoint[S]) error {
	data, err := m.codec.Marshal(cp.State)
	if err != nil {
		return err
	}
	ts := cp.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkpoints[cp.RunID] = memCheckpoint{
		step:      cp.Step,
		nodeID:    cp.NodeID,
		next:      cp.Next,
		data:      data,
		timestamp: ts,
	}
	return nil
}

// LoadCheckpoint implements Store.
func (m *MemStore[S]) LoadCheckpoint(_ context.Context, runID string) (Checkpoint[S], error) {
	m.mu.RLock()
	c, ok := m.checkpoints[runID]
	m.mu.RUnlock()

	if !ok {
		return Checkpoint[S]{}, ErrNotFound
	}
	state, err := m.codec.Unmarshal(c.data)
	if err != nil {
		return Checkpoint[S]{}, err
	}
	return Checkpoint[S]{
		RunID:     runID,
		Step:      c.step,
		NodeID:    c.nodeID,
		Next:      c.next,
		State:     state,
		Timestamp: c.timestamp,
	}, nil
}

// Runs lists the IDs of every run with saved steps or a checkpoint.
func (m *MemStore[S]) Runs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]bool)
	for id := range m.steps {
		seen[id] = true
	}
	for id := range m.checkpoints {
		seen[id] = true
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
