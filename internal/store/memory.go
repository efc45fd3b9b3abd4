// Package store provides checkpoint store implementations: a process-local
// in-memory store and a SQLite-backed store for durability across restarts.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dkrenev/supportflow/internal/workflow"
)

// MemoryStore is an in-memory workflow.CheckpointStore. Suitable for a single
// process; checkpoints do not survive a restart.
type MemoryStore struct {
	mu          sync.RWMutex
	checkpoints map[string]*workflow.Checkpoint
}

// NewMemory creates an empty in-memory checkpoint store.
func NewMemory() *MemoryStore {
	return &MemoryStore{checkpoints: make(map[string]*workflow.Checkpoint)}
}

// Get retrieves the live checkpoint for a thread, or (nil, nil).
func (s *MemoryStore) Get(ctx context.Context, threadID string) (*workflow.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cp, ok := s.checkpoints[threadID]
	if !ok {
		return nil, nil
	}
	return cp.Clone(), nil
}

// Put stores a checkpoint, rejecting writes that lost a version race.
func (s *MemoryStore) Put(ctx context.Context, cp *workflow.Checkpoint) error {
	if cp == nil || cp.ThreadID == "" {
		return fmt.Errorf("checkpoint must have a thread id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.checkpoints[cp.ThreadID]; ok && cp.Version != existing.Version+1 {
		return fmt.Errorf("thread %s at version %d, write carries %d: %w",
			cp.ThreadID, existing.Version, cp.Version, workflow.ErrVersionConflict)
	}
	s.checkpoints[cp.ThreadID] = cp.Clone()
	return nil
}

// UpdateState merges a patch into the thread's state and bumps the version.
func (s *MemoryStore) UpdateState(
	ctx context.Context,
	threadID string,
	patch workflow.State,
	schema *workflow.StateSchema,
) (*workflow.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.checkpoints[threadID]
	if !ok {
		return nil, workflow.ErrNoCheckpoint
	}

	updated := existing.Clone()
	updated.State = schema.ApplyUpdate(updated.State, patch)
	updated.Version++
	updated.UpdatedAt = time.Now()
	s.checkpoints[threadID] = updated
	return updated.Clone(), nil
}

// Ping implements workflow.CheckpointStore.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// Close implements workflow.CheckpointStore.
func (s *MemoryStore) Close() error {
	return nil
}
