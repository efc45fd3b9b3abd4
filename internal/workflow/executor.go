package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const defaultMaxSteps = 25

// RunResult is the outcome of a Run or Resume call: either a completed final
// state, or a pause at the named interrupt step.
type RunResult struct {
	State         State
	Interrupted   bool
	InterruptNode string
}

// Executor runs a graph against a checkpoint store, one thread id at a time.
// Calls on the same thread id are serialized; distinct thread ids proceed
// fully in parallel.
type Executor struct {
	graph    *Graph
	store    CheckpointStore
	schema   *StateSchema
	maxSteps int

	// locks holds one *sync.Mutex per thread id. Entries are never reclaimed;
	// the map is bounded by the number of distinct thread ids seen.
	locks sync.Map
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithMaxSteps caps the number of steps one Run or Resume may execute.
func WithMaxSteps(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// NewExecutor creates an executor over the given graph, store and schema.
func NewExecutor(graph *Graph, store CheckpointStore, schema *StateSchema, opts ...ExecutorOption) *Executor {
	e := &Executor{
		graph:    graph,
		store:    store,
		schema:   schema,
		maxSteps: defaultMaxSteps,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// lockThread acquires the per-thread mutex and returns its unlock function.
func (e *Executor) lockThread(threadID string) func() {
	v, _ := e.locks.LoadOrStore(threadID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Run executes the graph for the thread. A fresh thread (or one whose last run
// completed) starts at the entry point with the initial patch applied to an
// empty state; a thread holding an in-flight checkpoint continues from its
// recorded next step. Execution halts with an interrupted result before any
// step in the interrupt set.
func (e *Executor) Run(ctx context.Context, threadID string, initial State) (*RunResult, error) {
	unlock := e.lockThread(threadID)
	defer unlock()

	cp, err := e.store.Get(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}

	var state State
	var current string
	var version int64
	if cp == nil || cp.Done() {
		// Completed threads are released: the new message starts a fresh
		// execution, only the version counter carries over.
		state = e.schema.ApplyUpdate(State{}, initial)
		current = e.graph.EntryPoint()
		if cp != nil {
			version = cp.Version
		}
	} else {
		state = cp.State.Clone()
		if initial != nil {
			state = e.schema.ApplyUpdate(state, initial)
		}
		current = cp.NextNode
		version = cp.Version
	}

	return e.loop(ctx, threadID, state, current, version, false)
}

// Resume continues a thread paused at an interrupt step. The caller is
// expected to have supplied the external decision via UpdateState first; the
// pending step is invoked directly, bypassing the interrupt check once.
func (e *Executor) Resume(ctx context.Context, threadID string) (*RunResult, error) {
	unlock := e.lockThread(threadID)
	defer unlock()

	cp, err := e.store.Get(ctx, threadID)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if cp == nil || cp.Done() || !e.graph.InterruptsBefore(cp.NextNode) {
		return nil, ErrInvalidResumeState
	}

	return e.loop(ctx, threadID, cp.State.Clone(), cp.NextNode, cp.Version, true)
}

// UpdateState merges a patch into the thread's checkpointed state, bumping its
// version. Serialized with Run and Resume on the same thread id.
func (e *Executor) UpdateState(ctx context.Context, threadID string, patch State) (*Checkpoint, error) {
	unlock := e.lockThread(threadID)
	defer unlock()

	return e.store.UpdateState(ctx, threadID, patch, e.schema)
}

// IsInterrupted reports whether the thread is paused at an interrupt step.
// Read-only: no state is mutated.
func (e *Executor) IsInterrupted(ctx context.Context, threadID string) (bool, error) {
	cp, err := e.store.Get(ctx, threadID)
	if err != nil {
		return false, err
	}
	return cp != nil && !cp.Done() && e.graph.InterruptsBefore(cp.NextNode), nil
}

// Snapshot returns the thread's live checkpoint without mutating it, or
// (nil, nil) for an unknown thread.
func (e *Executor) Snapshot(ctx context.Context, threadID string) (*Checkpoint, error) {
	cp, err := e.store.Get(ctx, threadID)
	if err != nil {
		return nil, err
	}
	if cp == nil {
		return nil, nil
	}
	return cp.Clone(), nil
}

// loop runs steps until End or an interrupt. A checkpoint is persisted after
// every applied step and at the pause itself; a failing step commits nothing,
// leaving the thread resumable from its last good checkpoint.
func (e *Executor) loop(
	ctx context.Context,
	threadID string,
	state State,
	current string,
	version int64,
	bypassInterrupt bool,
) (*RunResult, error) {
	for step := 0; ; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if step >= e.maxSteps {
			return nil, fmt.Errorf("thread %s exceeded %d steps", threadID, e.maxSteps)
		}

		if !bypassInterrupt && e.graph.InterruptsBefore(current) {
			version++
			if err := e.persist(ctx, threadID, state, current, version); err != nil {
				return nil, err
			}
			slog.Info("Workflow paused for external input", "thread_id", threadID, "step", current)
			return &RunResult{State: state, Interrupted: true, InterruptNode: current}, nil
		}
		bypassInterrupt = false

		node, ok := e.graph.Node(current)
		if !ok {
			return nil, fmt.Errorf("step %q is not a registered node", current)
		}

		cmd, err := node.Function(ctx, state)
		if err != nil {
			return nil, fmt.Errorf("step %s: %w", current, err)
		}
		if cmd == nil || cmd.GoTo == "" {
			return nil, fmt.Errorf("step %s returned no routing target", current)
		}
		if !node.allowsTarget(cmd.GoTo) {
			return nil, fmt.Errorf("step %s routed to disallowed target %q", current, cmd.GoTo)
		}

		if cmd.Update != nil {
			state = e.schema.ApplyUpdate(state, cmd.Update)
		}
		version++
		if err := e.persist(ctx, threadID, state, cmd.GoTo, version); err != nil {
			return nil, err
		}

		if cmd.GoTo == End {
			return &RunResult{State: state}, nil
		}
		current = cmd.GoTo
	}
}

func (e *Executor) persist(ctx context.Context, threadID string, state State, next string, version int64) error {
	cp := &Checkpoint{
		ThreadID:  threadID,
		State:     state.Clone(),
		NextNode:  next,
		Version:   version,
		UpdatedAt: time.Now(),
	}
	if err := e.store.Put(ctx, cp); err != nil {
		return fmt.Errorf("persist checkpoint for thread %s: %w", threadID, err)
	}
	return nil
}
