package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput marks malformed requests. They are rejected before any
	// storage access.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnauthorized is returned when the caller is not a member of the
	// workspace that owns the target entity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrCrossWorkspace rejects a position batch spanning several workspaces.
	ErrCrossWorkspace = errors.New("tasks must belong to one workspace")
	// ErrUnknownTask is returned when a position batch references a task that
	// does not exist.
	ErrUnknownTask = errors.New("unknown task")
	// ErrNotFound indicates a missing task, project or member.
	ErrNotFound = errors.New("not found")
	// ErrInconsistentBoard signals a move that does not fit the board it was
	// applied to. It points at a caller or state bug, not at user input.
	ErrInconsistentBoard = errors.New("inconsistent board state")
	// ErrLastMember protects the only remaining member of a workspace from
	// removal or a role change.
	ErrLastMember = errors.New("cannot change the last member of a workspace")
)

// PartialCommitError reports a position batch that stopped at its first
// failing write. Committed holds the tasks written before the failure.
type PartialCommitError struct {
	Committed []Task
	FailedID  string
	Err       error
}

func (e *PartialCommitError) Error() string {
	return fmt.Sprintf("bulk update stopped at task %s after %d writes: %v", e.FailedID, len(e.Committed), e.Err)
}

func (e *PartialCommitError) Unwrap() error { return e.Err }
