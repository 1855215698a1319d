// Package store persists run progress so a run can be inspected or resumed
// after a restart.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a run has no saved steps or checkpoint.
var ErrNotFound = errors.New("not found")

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("store is closed")

// Store persists per-step history and the resumable checkpoint of each run.
//
// The engine calls SaveStep and then SaveCheckpoint after every successful
// step, so the checkpoint always names the node that runs next.
//
// Type parameter S is the state type to persist. How it is encoded is
// decided by the store's Codec, not by the engine.
type Store[S any] interface {
	// SaveStep records the state produced by nodeID at the given 1-indexed step.
	// Saving the same (runID, step) twice replaces the earlier record.
	SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error

	// LoadLatest returns the state of the highest saved step of runID.
	// It returns ErrNotFound when the run has no steps.
	LoadLatest(ctx context.Context, runID string) (state S, step int, err error)

	// Steps returns every saved step of runID ordered by step number.
	// A run without steps yields an empty slice and no error.
	Steps(ctx context.Context, runID string) ([]StepRecord[S], error)

	// SaveCheckpoint replaces the checkpoint of cp.RunID.
	SaveCheckpoint(ctx context.Context, cp Checkpoint[S]) error

	// LoadCheckpoint returns the checkpoint of runID or ErrNotFound.
	LoadCheckpoint(ctx context.Context, runID string) (Checkpoint[S], error)
}

// StepRecord is one entry of a run's step history.
type StepRecord[S any] struct {
	// Step is the sequential step number (1-indexed).
	Step int

	// NodeID identifies which node produced this state.
	NodeID string

	// State is the workflow state after this step completed.
	State S
}

// Checkpoint is the resumable position of a run: the state after the last
// completed step and the node that should run next.
type Checkpoint[S any] struct {
	RunID string `json:"run_id"`

	// Step is the number of steps completed so far.
	Step int `json:"step"`

	// NodeID is the node that produced State.
	NodeID string `json:"node_id"`

	// Next is the node to run on resume. It may be the terminal sentinel.
	Next string `json:"next"`

	State S `json:"state"`

	Timestamp time.Time `json:"timestamp"`
}

// Codec turns states into bytes and back. The engine never looks inside
// the encoded form, so callers can swap in their own format.
type Codec[S any] interface {
	Marshal(state S) ([]byte, error)
	Unmarshal(data []byte) (S, error)
}

// JSONCodec encodes states with encoding/json.
type JSONCodec[S any] struct{}

// Marshal implements Codec.
func (JSONCodec[S]) Marshal(state S) ([]byte, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal state: %w", err)
	}
	return data, nil
}

// Unmarshal implements Codec.
func (JSONCodec[S]) Unmarshal(data []byte) (S, error) {
	var state S
	if err := json.Unmarshal(data, &state); err != nil {
		return state, fmt.Errorf("failed to unmarshal state: %w", err)
	}
	return state, nil
}

// Option configures a store.
type Option[S any] func(*options[S])

type options[S any] struct {
	codec  Codec[S]
	prefix string
	ttl    time.Duration
}

// WithCodec replaces the default JSON codec.
func WithCodec[S any](c Codec[S]) Option[S] {
	return func(o *options[S]) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithPrefix sets the key prefix used by the Redis store.
func WithPrefix[S any](prefix string) Option[S] {
	return func(o *options[S]) { o.prefix = prefix }
}

// WithTTL sets the expiration of Redis keys. Zero keeps them forever.
func WithTTL[S any](ttl time.Duration) Option[S] {
	return func(o *options[S]) { o.ttl = ttl }
}

func buildOptions[S any](opts []Option[S]) options[S] {
	o := options[S]{
		codec:  JSONCodec[S]{},
		prefix: "loopgraph:",
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
