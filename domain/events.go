package domain

import (
	"context"
	"crypto/rand"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	TaskCreated = "task-created"
	TaskUpdated = "task-updated"
	TaskMoved   = "task-moved"
	TaskDeleted = "task-deleted"
)

// TaskEvent records a committed change to a task.
type TaskEvent struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	TaskID      string     `json:"taskId"`
	WorkspaceID string     `json:"workspaceId"`
	UserID      string     `json:"userId"`
	Status      TaskStatus `json:"status,omitempty"`
	Position    int        `json:"position,omitempty"`
	Time        int64      `json:"time"`
}

// NewEventID returns a lexically sortable identifier stamped with at.
func NewEventID(at time.Time) string {
	return ulid.MustNew(ulid.Timestamp(at), rand.Reader).String()
}

// NewTaskEvent builds an event for t.
func NewTaskEvent(typ, userID string, t Task, at time.Time) TaskEvent {
	return TaskEvent{
		ID:          NewEventID(at),
		Type:        typ,
		TaskID:      t.ID,
		WorkspaceID: t.WorkspaceID,
		UserID:      userID,
		Status:      t.Status,
		Position:    t.Position,
		Time:        at.UnixNano(),
	}
}

// EventPublisher forwards committed task events to downstream consumers.
type EventPublisher interface {
	Publish(ctx context.Context, events ...TaskEvent) error
}

// Publishers fans events out to every publisher and joins their errors.
type Publishers []EventPublisher

func (ps Publishers) Publish(ctx context.Context, events ...TaskEvent) error {
	var errs []error
	for _, p := range ps {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, events...); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BoardChange is broadcast to board viewers after tasks of a workspace change.
type BoardChange struct {
	WorkspaceID string      `json:"workspaceId"`
	Events      []TaskEvent `json:"events"`
}

// GroupByWorkspace splits events into one change per workspace, keeping the
// order in which workspaces first appear.
func GroupByWorkspace(events []TaskEvent) []BoardChange {
	var out []BoardChange
	index := map[string]int{}
	for _, ev := range events {
		i, ok := index[ev.WorkspaceID]
		if !ok {
			i = len(out)
			index[ev.WorkspaceID] = i
			out = append(out, BoardChange{WorkspaceID: ev.WorkspaceID})
		}
		out[i].Events = append(out[i].Events, ev)
	}
	return out
}
