package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"
)

// dialect holds the statements that differ between SQL backends.
type dialect struct {
	name          string
	schema        []string
	upsertStep    string
	upsertCheckpt string
	selectLatest  string
	selectSteps   string
	selectCheckpt string
}

// sqlStore is the database/sql implementation shared by the SQLite and
// MySQL stores. States are stored as codec-encoded blobs.
type sqlStore[S any] struct {
	db      *sql.DB
	codec   Codec[S]
	dialect dialect

	mu     sync.RWMutex
	closed bool
}

func newSQLStore[S any](ctx context.Context, db *sql.DB, d dialect, opts []Option[S]) (*sqlStore[S], error) {
	o := buildOptions(opts)
	s := &sqlStore[S]{db: db, codec: o.codec, dialect: d}
	for _, stmt := range d.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return nil, fmt.Errorf("failed to create %s schema: %w", d.name, err)
		}
	}
	return s, nil
}

func (s *sqlStore[S]) checkOpen() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *sqlStore[S]) SaveStep(ctx context.Context, runID string, step int, nodeID string, state S) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	data, err := s.codec.Marshal(state)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, s.dialect.upsertStep, runID, step, nodeID, data); err != nil {
		return fmt.Errorf("upsert run_steps: %w", err)
	}
	return nil
}

func (s *sqlStore[S]) LoadLatest(ctx context.Context, runID string) (S, int, error) {
	var zero S
	if err := s.checkOpen(); err != nil {
		return zero, 0, err
	}

	var (
		step int
		data []byte
	)
	err := s.db.QueryRowContext(ctx, s.dialect.selectLatest, runID).Scan(&step, &data)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, 0, ErrNotFound
	}
	if err != nil {
		return zero, 0, fmt.Errorf("failed to load latest step: %w", err)
	}
	state, err := s.codec.Unmarshal(data)
	if err != nil {
		return zero, 0, err
	}
	return state, step, nil
}

func (s *sqlStore[S]) Steps(ctx context.Context, runID string) ([]StepRecord[S], error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, s.dialect.selectSteps, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query steps: %w", err)
	}
	defer rows.Close()

	out := []StepRecord[S]{}
	for rows.Next() {
		var (
			rec  StepRecord[S]
			data []byte
		)
		if err := rows.Scan(&rec.Step, &rec.NodeID, &data); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		if rec.State, err = s.codec.Unmarshal(data); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate steps: %w", err)
	}
	return out, nil
}

func (s *sqlStore[S]) SaveCheckpoint(ctx context.Context, cp Checkpoint[S]) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	data, err := s.codec.Marshal(cp.State)
	if err != nil {
		return err
	}
	ts := cp.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err = s.db.ExecContext(ctx, s.dialect.upsertCheckpt,
		cp.RunID, cp.Step, cp.NodeID, cp.Next, data, ts.UTC().UnixNano())
	if err != nil {
		return fmt.Errorf("upsert run_checkpoints: %w", err)
	}
	return nil
}

func (s *sqlStore[S]) LoadCheckpoint(ctx context.Context, runID string) (Checkpoint[S], error) {
	if err := s.checkOpen(); err != nil {
		return Checkpoint[S]{}, err
	}

	cp := Checkpoint[S]{RunID: runID}
	var (
		data []byte
		ts   int64
	)
	err := s.db.QueryRowContext(ctx, s.dialect.selectCheckpt, runID).
		Scan(&cp.Step, &cp.NodeID, &cp.Next, &data, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return Checkpoint[S]{}, ErrNotFound
	}
	if err != nil {
		return Checkpoint[S]{}, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	if cp.State, err = s.codec.Unmarshal(data); err != nil {
		return Checkpoint[S]{}, err
	}
	cp.Timestamp = time.Unix(0, ts).UTC()
	return cp, nil
}

// Ping verifies the database connection is alive.
func (s *sqlStore[S]) Ping(ctx context.Context) error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

// Close releases the database connection. Calling Close twice is safe.
func (s *sqlStore[S]) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
