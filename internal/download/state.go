// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package download

import (
	"errors"
	"fmt"

	"github.com/pdiddy/ptengine/pkg/types"
)

var (
	// ErrInvalidTransition is returned for a state change the task
	// lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid task transition")

	// ErrCancelled marks a task failed by explicit cancellation.
	ErrCancelled = errors.New("task cancelled")

	// ErrTaskNotFound is returned for an unknown task id.
	ErrTaskNotFound = errors.New("task not found")
)

// transitions lists the legal edges of the task lifecycle. Completed and
// Failed have no outgoing edges.
var transitions = map[types.TaskState][]types.TaskState{
	types.TaskQueued:     {types.TaskSubmitting, types.TaskFailed},
	types.TaskSubmitting: {types.TaskActive, types.TaskRetrying, types.TaskFailed},
	types.TaskRetrying:   {types.TaskSubmitting, types.TaskFailed},
	types.TaskActive:     {types.TaskCompleted, types.TaskPaused, types.TaskFailed},
	types.TaskPaused:     {types.TaskActive, types.TaskFailed},
}

// CanTransition reports whether from→to is a legal edge.
func CanTransition(from, to types.TaskState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to types.TaskState) error {
	if !CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}
