package store

import (
	"context"
	"os"
	"testing"
	"time"
)

// TestMySQLStoreContract runs against a real server. Set TEST_MYSQL_DSN,
// for example "user:password@tcp(localhost:3306)/loopgraph_test", to enable it.
func TestMySQLStoreContract(t *testing.T) {
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("Skipping MySQL integration test: set TEST_MYSQL_DSN to run")
	}

	runStoreContract(t, func(t *testing.T) Store[runState] {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		st, err := NewMySQLStore[runState](ctx, dsn)
		if err != nil {
			t.Fatalf("NewMySQLStore error = %v", err)
		}
		for _, table := range []string{"run_steps", "run_checkpoints"} {
			if _, err := st.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				t.Fatalf("failed to reset %s: %v", table, err)
			}
		}
		t.Cleanup(func() { _ = st.Close() })
		return st
	})
}
