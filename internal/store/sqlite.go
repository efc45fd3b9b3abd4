package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/dkrenev/supportflow/internal/shared"
	"github.com/dkrenev/supportflow/internal/workflow"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a SQLite-backed workflow.CheckpointStore. State is stored as
// JSON alongside the version column used for optimistic concurrency, so a
// resumed pause survives process restarts.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a SQLite-backed checkpoint store at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode for better concurrency between readers and the single writer.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS checkpoints (
		thread_id TEXT PRIMARY KEY,
		state_json TEXT NOT NULL,
		next_node TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Get retrieves the live checkpoint for a thread, or (nil, nil).
func (s *SQLiteStore) Get(ctx context.Context, threadID string) (*workflow.Checkpoint, error) {
	query := `
		SELECT thread_id, state_json, next_node, version, updated_at
		FROM checkpoints WHERE thread_id = ?`

	row := s.db.QueryRowContext(ctx, query, threadID)

	var cp workflow.Checkpoint
	var stateJSON string
	var updatedAt int64

	err := row.Scan(&cp.ThreadID, &stateJSON, &cp.NextNode, &cp.Version, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan checkpoint row: %w", err)
	}

	if err := json.Unmarshal([]byte(stateJSON), &cp.State); err != nil {
		return nil, fmt.Errorf("decode checkpoint state: %w", err)
	}
	cp.UpdatedAt = time.Unix(updatedAt, 0)
	return &cp, nil
}

// Put stores a checkpoint. The conditional upsert only replaces a stored row
// whose version is exactly one behind, so stale writers lose the race.
// SQLITE_BUSY errors beyond the busy timeout are retried with backoff.
func (s *SQLiteStore) Put(ctx context.Context, cp *workflow.Checkpoint) error {
	if cp == nil || cp.ThreadID == "" {
		return fmt.Errorf("checkpoint must have a thread id")
	}

	stateJSON, err := json.Marshal(cp.State)
	if err != nil {
		return fmt.Errorf("encode checkpoint state: %w", err)
	}

	query := `
		INSERT INTO checkpoints (thread_id, state_json, next_node, version, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			state_json = excluded.state_json,
			next_node = excluded.next_node,
			version = excluded.version,
			updated_at = excluded.updated_at
		WHERE checkpoints.version = excluded.version - 1`

	result, err := s.execWithRetry(ctx, query,
		cp.ThreadID, string(stateJSON), cp.NextNode, cp.Version, cp.UpdatedAt.Unix())
	if err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("thread %s: %w", cp.ThreadID, workflow.ErrVersionConflict)
	}
	return nil
}

// execWithRetry retries SQLITE_BUSY and "database is locked" failures with
// exponential backoff.
func (s *SQLiteStore) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	const maxRetries = 3
	baseDelay := 50 * time.Millisecond

	var result sql.Result
	var err error
	for i := 0; i < maxRetries; i++ {
		result, err = s.db.ExecContext(ctx, query, args...)
		if err == nil {
			return result, nil
		}
		if !shared.IsSQLiteConflictError(err) || i == maxRetries-1 {
			return nil, err
		}
		delay := baseDelay * time.Duration(1<<i)
		slog.Debug("Database locked, retrying", "attempt", i+1, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, err
}

// UpdateState merges a patch into the thread's state inside a transaction and
// bumps the version.
func (s *SQLiteStore) UpdateState(
	ctx context.Context,
	threadID string,
	patch workflow.State,
	schema *workflow.StateSchema,
) (*workflow.Checkpoint, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT state_json, next_node, version FROM checkpoints WHERE thread_id = ?`, threadID)

	var stateJSON string
	var nextNode string
	var version int64
	err = row.Scan(&stateJSON, &nextNode, &version)
	if err == sql.ErrNoRows {
		return nil, workflow.ErrNoCheckpoint
	}
	if err != nil {
		return nil, fmt.Errorf("scan checkpoint row: %w", err)
	}

	var state workflow.State
	if err := json.Unmarshal([]byte(stateJSON), &state); err != nil {
		return nil, fmt.Errorf("decode checkpoint state: %w", err)
	}

	merged := schema.ApplyUpdate(state, patch)
	mergedJSON, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encode checkpoint state: %w", err)
	}

	now := time.Now()
	result, err := tx.ExecContext(ctx,
		`UPDATE checkpoints SET state_json = ?, version = ?, updated_at = ?
		 WHERE thread_id = ? AND version = ?`,
		string(mergedJSON), version+1, now.Unix(), threadID, version)
	if err != nil {
		return nil, fmt.Errorf("update checkpoint: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update checkpoint: %w", err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("thread %s: %w", threadID, workflow.ErrVersionConflict)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return &workflow.Checkpoint{
		ThreadID:  threadID,
		State:     merged,
		NextNode:  nextNode,
		Version:   version + 1,
		UpdatedAt: now,
	}, nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
