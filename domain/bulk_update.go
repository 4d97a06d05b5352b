package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

type taskStore interface {
	TaskStorage
	MemberStorage
}

// BulkUpdater validates and commits position batches produced by Apply.
type BulkUpdater struct {
	st     taskStore
	events EventPublisher
	now    func() time.Time
}

func NewBulkUpdater(st taskStore, events EventPublisher) BulkUpdater {
	return BulkUpdater{st: st, events: events, now: time.Now}
}

// ValidatePositionUpdates checks the shape of a batch without touching storage.
func ValidatePositionUpdates(updates []PositionUpdate) error {
	if len(updates) == 0 {
		return fmt.Errorf("%w: no tasks to update", ErrInvalidInput)
	}
	for i, u := range updates {
		if strings.TrimSpace(u.ID) == "" {
			return fmt.Errorf("%w: tasks[%d]: id is required", ErrInvalidInput, i)
		}
		if !u.Status.Valid() {
			return fmt.Errorf("%w: tasks[%d]: unknown status %q", ErrInvalidInput, i, u.Status)
		}
		if !ValidPosition(u.Position) {
			return fmt.Errorf("%w: tasks[%d]: position %d outside [%d, %d]", ErrInvalidInput, i, u.Position, MinPosition, MaxPosition)
		}
	}
	return nil
}

// Apply commits a batch of position writes for userID.
//
// Every referenced task is resolved first and all of them must live in the
// same workspace, judged by the stored workspace. The caller must be a member
// of it. Writes then run one by one in batch order with no transaction around
// them; the first failing write stops the batch and a *PartialCommitError
// carries the tasks committed before it.
//
// The result holds one task per committed batch entry in batch order. An id
// listed twice is written twice, the later entry wins and both writes appear
// in the result, so len(result) == len(updates) exactly when the whole batch
// was committed.
func (u BulkUpdater) Apply(ctx context.Context, userID string, updates []PositionUpdate) ([]Task, error) {
	if err := ValidatePositionUpdates(updates); err != nil {
		return nil, err
	}

	workspaces := make(map[string]struct{}, 1)
	var workspaceID string
	resolved := make(map[string]struct{}, len(updates))
	for _, upd := range updates {
		if _, ok := resolved[upd.ID]; ok {
			continue
		}
		resolved[upd.ID] = struct{}{}
		t, err := u.st.GetTask(ctx, upd.ID)
		if err != nil {
			return nil, err
		}
		if t == nil {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTask, upd.ID)
		}
		workspaces[t.WorkspaceID] = struct{}{}
		workspaceID = t.WorkspaceID
	}
	if len(workspaces) != 1 {
		return nil, fmt.Errorf("%w: batch spans %d workspaces", ErrCrossWorkspace, len(workspaces))
	}

	if _, err := authorize(ctx, u.st, workspaceID, userID); err != nil {
		return nil, err
	}

	committed := make([]Task, 0, len(updates))
	for _, upd := range updates {
		status, pos := upd.Status, upd.Position
		t, err := u.st.UpdateTask(ctx, TaskUpdate{ID: upd.ID, WorkspaceID: workspaceID, Status: &status, Position: &pos})
		if err != nil {
			log.WithFields(log.Fields{
				"task":      upd.ID,
				"workspace": workspaceID,
				"committed": len(committed),
				"requested": len(updates),
			}).WithError(err).Error("bulk position update stopped")
			u.publish(ctx, userID, committed)
			return committed, &PartialCommitError{Committed: committed, FailedID: upd.ID, Err: err}
		}
		committed = append(committed, t)
	}
	u.publish(ctx, userID, committed)
	return committed, nil
}

func (u BulkUpdater) publish(ctx context.Context, userID string, tasks []Task) {
	if u.events == nil || len(tasks) == 0 {
		return
	}
	at := u.now()
	events := make([]TaskEvent, len(tasks))
	for i, t := range tasks {
		events[i] = NewTaskEvent(TaskMoved, userID, t, at)
	}
	if err := u.events.Publish(ctx, events...); err != nil {
		log.WithError(err).WithField("workspace", tasks[0].WorkspaceID).Error("failed to publish task-moved events")
	}
}
