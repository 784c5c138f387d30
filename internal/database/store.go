// Package database is the typed facade over the relational on-chain mirror:
// classifications, classification jobs, feedback, reputation, trust graph,
// and OAuth tables.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/agentindex/gateway/internal/config"
)

// maxBindParams caps ids per IN(...) query to respect the store's
// bound-parameter limit.
const maxBindParams = 95

// Store wraps the Postgres connection with all gateway operations.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres and verifies connectivity.
func Open(cfg config.PostgresConfig) (*Store, error) {
	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}

	return &Store{db: db}, nil
}

// NewStore wraps an existing handle; used by tests with sqlmock-style drivers.
func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// Close shuts down the pool.
func (s *Store) Close() error { return s.db.Close() }

// Ping reports connectivity for the health endpoint.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// chunkIDs splits ids into slices of at most maxBindParams.
func chunkIDs(ids []string) [][]string {
	if len(ids) == 0 {
		return nil
	}
	var chunks [][]string
	for len(ids) > maxBindParams {
		chunks = append(chunks, ids[:maxBindParams])
		ids = ids[maxBindParams:]
	}
	return append(chunks, ids)
}

// placeholders renders "$start, $start+1, ..." for n bind params.
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := 0; i < n; i++ {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}

func idsToArgs(ids []string) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
