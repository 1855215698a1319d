package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists runs in a single SQLite file using the pure-Go
// modernc driver. It suits single-process deployments and local
// development; ":memory:" gives a throwaway database.
//
// The database runs in WAL mode with one open connection, since SQLite
// allows a single writer at a time.
//
// Example:
//
//	st, err := store.NewSQLiteStore[graph.State]("./runs.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer st.Close()
type SQLiteStore[S any] struct {
	*sqlStore[S]
	path string
}

var sqliteDialect = dialect{
	name: "sqlite",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS run_steps (
			run_id     TEXT    NOT NULL,
			step       INTEGER NOT NULL,
			node_id    TEXT    NOT NULL,
			state      BLOB    NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (run_id, step)
		)`,
		`CREATE TABLE IF NOT EXISTS run_checkpoints (
			run_id     TEXT    NOT NULL PRIMARY KEY,
			step       INTEGER NOT NULL,
			node_id    TEXT    NOT NULL,
			next_node  TEXT    NOT NULL,
			state      BLOB    NOT NULL,
			updated_ns INTEGER NOT NULL
		)`,
	},
	upsertStep: `INSERT INTO run_steps (run_id, step, node_id, state) VALUES (?, ?, ?, ?)
		ON CONFLICT(run_id, step) DO UPDATE SET node_id = excluded.node_id, state = excluded.state`,
	upsertCheckpt: `INSERT INTO run_checkpoints (run_id, step, node_id, next_node, state, updated_ns) VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET step = excluded.step, node_id = excluded.node_id,
			next_node = excluded.next_node, state = excluded.state, updated_ns = excluded.updated_ns`,
	selectLatest:  `SELECT step, state FROM run_steps WHERE run_id = ? ORDER BY step DESC LIMIT 1`,
	selectSteps:   `SELECT step, node_id, state FROM run_steps WHERE run_id = ? ORDER BY step`,
	selectCheckpt: `SELECT step, node_id, next_node, state, updated_ns FROM run_checkpoints WHERE run_id = ?`,
}

// NewSQLiteStore opens (or creates) the database at path and ensures the
// schema exists.
func NewSQLiteStore[S any](path string, opts ...Option[S]) (*SQLiteStore[S], error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite connection: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	ctx := context.Background()
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	inner, err := newSQLStore(ctx, db, sqliteDialect, opts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteStore[S]{sqlStore: inner, path: path}, nil
}

// Path returns the database file path.
func (s *SQLiteStore[S]) Path() string {
	return s.path
}
