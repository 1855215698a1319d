package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	backend "github.com/redis/go-redis/v9"
)

// RedisStore persists runs in Redis so that several processes can share
// and resume them.
//
// Layout, relative to the key prefix:
//
//	steps:<run>       HASH  step -> encoded state
//	nodes:<run>       HASH  step -> node id
//	order:<run>       ZSET  step scored by step number
//	checkpoint:<run>  HASH  step, node_id, next, state, ts
//	runs              ZSET  run id scored by expiry (unix seconds)
//
// Writes go through a pipeline so a step's keys are updated together.
type RedisStore[S any] struct {
	client *backend.Client
	codec  Codec[S]
	prefix string
	ttl    time.Duration
}

// farFuture scores runs without a TTL in the run index.
const farFuture = 4102444800 // 2100-01-01

// NewRedisStore connects to a Redis server.
func NewRedisStore[S any](address, password string, db int, opts ...Option[S]) *RedisStore[S] {
	client := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewRedisStoreFromClient(client, opts...)
}

// NewRedisStoreFromClient wraps an existing client.
func NewRedisStoreFromClient[S any](client *backend.Client, opts ...Option[S]) *RedisStore[S] {
	o := buildOptions(opts)
	return &RedisStore[S]{
		client: client,
		codec:  o.codec,
		prefix: o.prefix,
		ttl:    o.ttl,
	}
}

func (r *RedisStore[S]) key(kind, runID string) string {
	return r.prefix + kind + ":" + runID
}

func (r *RedisStore[S]) runsKey() string {
	return r.prefix + "runs"
}

// touch refreshes expiry on the given keys and records runID in the index.
func (r *RedisStore[S]) touch(ctx context.Context, pipe backend.Pipeliner, runID string, keys ...string) {
	if r.ttl > 0 {
		for _, k := range keys {
			pipe.Expire(ctx, k, r.ttl)
		}
	}
	score := float64(farFuture)
	if r.ttl > 0 {
		score = float64(time.Now().Add(r.ttl).Unix())
	}
	pipe.ZAdd(ctx, r.runsKey(), backend.Z{Score: score, Member: runID})
}

// SaveStep implements Store.
func (r *RedisStore[S]) SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error {
	data, err := r.codec.Marshal(state)
	if err != nil {
		return err
	}
	field := strconv.Itoa(step)
	stepsKey, nodesKey, orderKey := r.key("steps", runID), r.key("nodes", runID), r.key("order", runID)

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, stepsKey, field, data)
	pipe.HSet(ctx, nodesKey, field, nodeID)
	pipe.ZAdd(ctx, orderKey, backend.Z{Score: float64(step), Member: field})
	r.touch(ctx, pipe, runID, stepsKey, nodesKey, orderKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

// LoadLatest implements Store.
func (r *RedisStore[S]) LoadLatest(ctx context.Context, runID string) (S, int, error) {
	var zero S

	top, err := r.client.ZRevRangeWithScores(ctx, r.key("order", runID), 0, 0).Result()
	if err != nil {
		return zero, 0, fmt.Errorf("failed to read step order: %w", err)
	}
	if len(top) == 0 {
		return zero, 0, ErrNotFound
	}
	step := int(top[0].Score)

	data, err := r.client.HGet(ctx, r.key("steps", runID), strconv.Itoa(step)).Bytes()
	if errors.Is(err, backend.Nil) {
		return zero, 0, ErrNotFound
	}
	if err != nil {
		return zero, 0, fmt.Errorf("failed to read step: %w", err)
	}
	state, err := r.codec.Unmarshal(data)
	if err != nil {
		return zero, 0, err
	}
	return state, step, nil
}

// Steps implements Store.
func (r *RedisStore[S]) Steps(ctx context.Context, runID string) ([]StepRecord[S], error) {
	fields, err := r.client.ZRange(ctx, r.key("order", runID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read step order: %w", err)
	}
	out := []StepRecord[S]{}
	if len(fields) == 0 {
		return out, nil
	}

	pipe := r.client.Pipeline()
	states := pipe.HMGet(ctx, r.key("steps", runID), fields...)
	nodes := pipe.HMGet(ctx, r.key("nodes", runID), fields...)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read steps: %w", err)
	}

	for i, f := range fields {
		raw, ok := states.Val()[i].(string)
		if !ok {
			continue
		}
		step, err := strconv.Atoi(f)
		if err != nil {
			return nil, fmt.Errorf("corrupt step index %q: %w", f, err)
		}
		state, err := r.codec.Unmarshal([]byte(raw))
		if err != nil {
			return nil, err
		}
		nodeID, _ := nodes.Val()[i].(string)
		out = append(out, StepRecord[S]{Step: step, NodeID: nodeID, State: state})
	}
	return out, nil
}

// SaveCheckpoint implements Store.
func (r *RedisStore[S]) SaveCheckpoint(ctx context.Context, cp Checkpoint[S]) error {
	data, err := r.codec.Marshal(cp.State)
	if err != nil {
		return err
	}
	ts := cp.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	key := r.key("checkpoint", cp.RunID)

	pipe := r.client.TxPipeline()
	pipe.HSet(ctx, key,
		"step", cp.Step,
		"node_id", cp.NodeID,
		"next", cp.Next,
		"state", data,
		"ts", ts.UTC().UnixNano(),
	)
	r.touch(ctx, pipe, cp.RunID, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline: %w", err)
	}
	return nil
}

// LoadCheckpoint implements Store.
func (r *RedisStore[S]) LoadCheckpoint(ctx context.Context, runID string) (Checkpoint[S], error) {
	vals, err := r.client.HGetAll(ctx, r.key("checkpoint", runID)).Result()
	if err != nil {
		return Checkpoint[S]{}, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	if len(vals) == 0 {
		return Checkpoint[S]{}, ErrNotFound
	}

	cp := Checkpoint[S]{RunID: runID, NodeID: vals["node_id"], Next: vals["next"]}
	if cp.Step, err = strconv.Atoi(vals["step"]); err != nil {
		return Checkpoint[S]{}, fmt.Errorf("corrupt checkpoint step: %w", err)
	}
	ns, err := strconv.ParseInt(vals["ts"], 10, 64)
	if err != nil {
		return Checkpoint[S]{}, fmt.Errorf("corrupt checkpoint timestamp: %w", err)
	}
	cp.Timestamp = time.Unix(0, ns).UTC()
	if cp.State, err = r.codec.Unmarshal([]byte(vals["state"])); err != nil {
		return Checkpoint[S]{}, err
	}
	return cp, nil
}

// Runs lists known run IDs, pruning entries whose keys have expired.
func (r *RedisStore[S]) Runs(ctx context.Context) ([]string, error) {
	now := strconv.FormatInt(time.Now().Unix(), 10)
	if err := r.client.ZRemRangeByScore(ctx, r.runsKey(), "-inf", "("+now).Err(); err != nil {
		return nil, fmt.Errorf("failed to prune expired runs: %w", err)
	}
	runs, err := r.client.ZRange(ctx, r.runsKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// Delete removes every key of runID.
func (r *RedisStore[S]) Delete(ctx context.Context, runID string) error {
	pipe := r.client.TxPipeline()
	pipe.Del(ctx,
		r.key("steps", runID),
		r.key("nodes", runID),
		r.key("order", runID),
		r.key("checkpoint", runID),
	)
	pipe.ZRem(ctx, r.runsKey(), runID)
	_, err := pipe.Exec(ctx)
	return err
}

// Close closes the underlying client.
func (r *RedisStore[S]) Close() error {
	return r.client.Close()
}
