package workflow

import "errors"

// Errors.
var (
	// ErrNoCheckpoint is returned when an operation requires an existing
	// checkpoint for the thread and none is stored.
	ErrNoCheckpoint = errors.New("no checkpoint for thread")

	// ErrVersionConflict is returned by a checkpoint store when a write loses
	// an optimistic-concurrency race with a newer checkpoint.
	ErrVersionConflict = errors.New("checkpoint version conflict")

	// ErrInvalidResumeState is returned by Resume when the thread is not
	// paused at an interrupt step.
	ErrInvalidResumeState = errors.New("thread is not paused at an interrupt step")
)
