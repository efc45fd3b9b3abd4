package workflow

import (
	"context"
	"time"
)

// Checkpoint is the durable snapshot of one thread: its conversation state,
// the next step to run (empty or End when the run completed), and a monotonic
// version used for optimistic concurrency.
type Checkpoint struct {
	ThreadID  string    `json:"threadId"`
	State     State     `json:"state"`
	NextNode  string    `json:"nextNode,omitempty"`
	Version   int64     `json:"version"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Clone returns a copy of the checkpoint with its own state map.
func (c *Checkpoint) Clone() *Checkpoint {
	clone := *c
	clone.State = c.State.Clone()
	return &clone
}

// Done reports whether the checkpoint records a completed run.
func (c *Checkpoint) Done() bool {
	return c.NextNode == "" || c.NextNode == End
}

// CheckpointStore persists the live checkpoint per thread id.
//
// Get must return the most recent Put or UpdateState observed on that thread
// id (linearizable per key); no cross-thread ordering is required. An unknown
// thread id is not an error: Get returns (nil, nil) and signals "start fresh".
type CheckpointStore interface {
	// Get retrieves the live checkpoint for a thread, or (nil, nil).
	Get(ctx context.Context, threadID string) (*Checkpoint, error)

	// Put stores a checkpoint. When the thread already has a checkpoint, the
	// write is accepted only if cp.Version is exactly one greater than the
	// stored version; otherwise Put fails with ErrVersionConflict so a stale
	// resume can never overwrite a newer pause.
	Put(ctx context.Context, cp *Checkpoint) error

	// UpdateState loads the thread's checkpoint, merges patch into its state
	// using the schema's field reducers, bumps the version, writes it back and
	// returns the new checkpoint. Fails with ErrNoCheckpoint when the thread
	// has none.
	UpdateState(ctx context.Context, threadID string, patch State, schema *StateSchema) (*Checkpoint, error)

	// Ping verifies the store is reachable.
	Ping(ctx context.Context) error

	// Close releases resources held by the store.
	Close() error
}
