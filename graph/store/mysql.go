package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLStore persists runs in MySQL or MariaDB, for deployments where
// several workers share run history.
//
// The DSN uses the go-sql-driver format:
//
//	user:password@tcp(localhost:3306)/loopgraph?parseTime=true
//
// Keep credentials out of source; the CLI reads the DSN from configuration
// or LOOPGRAPH_STORE_DSN.
type MySQLStore[S any] struct {
	*sqlStore[S]
}

var mysqlDialect = dialect{
	name: "mysql",
	schema: []string{
		`CREATE TABLE IF NOT EXISTS run_steps (
			run_id     VARCHAR(255) NOT NULL,
			step       INT          NOT NULL,
			node_id    VARCHAR(255) NOT NULL,
			state      LONGBLOB     NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (run_id, step)
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
		`CREATE TABLE IF NOT EXISTS run_checkpoints (
			run_id     VARCHAR(255) NOT NULL PRIMARY KEY,
			step       INT          NOT NULL,
			node_id    VARCHAR(255) NOT NULL,
			next_node  VARCHAR(255) NOT NULL,
			state      LONGBLOB     NOT NULL,
			updated_ns BIGINT       NOT NULL
		) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_unicode_ci`,
	},
	upsertStep: `INSERT INTO run_steps (run_id, step, node_id, state) VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE node_id = VALUES(node_id), state = VALUES(state)`,
	upsertCheckpt: `INSERT INTO run_checkpoints (run_id, step, node_id, next_node, state, updated_ns) VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE step = VALUES(step), node_id = VALUES(node_id),
			next_node = VALUES(next_node), state = VALUES(state), updated_ns = VALUES(updated_ns)`,
	selectLatest:  `SELECT step, state FROM run_steps WHERE run_id = ? ORDER BY step DESC LIMIT 1`,
	selectSteps:   `SELECT step, node_id, state FROM run_steps WHERE run_id = ? ORDER BY step`,
	selectCheckpt: `SELECT step, node_id, next_node, state, updated_ns FROM run_checkpoints WHERE run_id = ?`,
}

// NewMySQLStore connects to dsn, verifies the connection and ensures the
// schema exists.
func NewMySQLStore[S any](ctx context.Context, dsn string, opts ...Option[S]) (*MySQLStore[S], error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	inner, err := newSQLStore(ctx, db, mysqlDialect, opts)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &MySQLStore[S]{sqlStore: inner}, nil
}
