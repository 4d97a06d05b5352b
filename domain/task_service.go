package domain

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

type boardStore interface {
	taskStore
	ProjectStorage
}

// TaskService implements the membership gated task operations.
type TaskService struct {
	st     boardStore
	bulk   BulkUpdater
	events EventPublisher
	now    func() time.Time
}

func NewTaskService(st boardStore, events EventPublisher) TaskService {
	return TaskService{st: st, bulk: NewBulkUpdater(st, events), events: events, now: time.Now}
}

// MoveResult is the outcome of a server side move.
type MoveResult struct {
	Board   Board            `json:"-"`
	Updates []PositionUpdate `json:"updates"`
	Tasks   []Task           `json:"tasks"`
}

// Create stores a new task at the end of its column.
func (s TaskService) Create(ctx context.Context, userID string, in CreateTaskInput) (Task, error) {
	if err := in.Validate(); err != nil {
		return Task{}, err
	}
	if _, err := authorize(ctx, s.st, in.WorkspaceID, userID); err != nil {
		return Task{}, err
	}
	highest, found, err := s.st.MaxPosition(ctx, in.WorkspaceID, in.Status)
	if err != nil {
		return Task{}, fmt.Errorf("allocate position: %w", err)
	}
	t := Task{
		ID:          uuid.NewString(),
		Name:        in.Name,
		Status:      in.Status,
		Position:    NextPosition(highest, found),
		WorkspaceID: in.WorkspaceID,
		ProjectID:   in.ProjectID,
		AssigneeID:  in.AssigneeID,
		Description: in.Description,
		DueDate:     in.DueDate.UTC(),
		CreatedAt:   s.now().UTC(),
	}
	if err := s.st.CreateTask(ctx, t); err != nil {
		return Task{}, err
	}
	s.publish(ctx, TaskCreated, userID, t)
	return t, nil
}

// List returns the tasks matching f, newest first. Display order is rebuilt
// by the caller with Build.
func (s TaskService) List(ctx context.Context, userID string, f TaskFilter) ([]Task, error) {
	f.WorkspaceID = strings.TrimSpace(f.WorkspaceID)
	if f.WorkspaceID == "" {
		return nil, fmt.Errorf("%w: workspaceId is required", ErrInvalidInput)
	}
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, f.Status)
	}
	if _, err := authorize(ctx, s.st, f.WorkspaceID, userID); err != nil {
		return nil, err
	}
	tasks, err := s.st.ListTasks(ctx, f)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].CreatedAt.After(tasks[j].CreatedAt) })
	return tasks, nil
}

// TaskDetails is a task with its project and assignee resolved.
type TaskDetails struct {
	Task
	Project  *Project `json:"project,omitempty"`
	Assignee *Member  `json:"assignee,omitempty"`
}

// Details returns a single task. A project or assignee that no longer exists
// in the task's workspace is left nil.
func (s TaskService) Details(ctx context.Context, userID, id string) (TaskDetails, error) {
	t, err := s.load(ctx, userID, id)
	if err != nil {
		return TaskDetails{}, err
	}
	d := TaskDetails{Task: *t}
	if t.ProjectID != "" {
		p, err := s.st.GetProject(ctx, t.ProjectID)
		if err != nil {
			return TaskDetails{}, fmt.Errorf("load project: %w", err)
		}
		if p != nil && p.WorkspaceID == t.WorkspaceID {
			d.Project = p
		}
	}
	if t.AssigneeID != "" {
		m, err := s.st.GetMemberByID(ctx, t.AssigneeID)
		if err != nil {
			return TaskDetails{}, fmt.Errorf("load assignee: %w", err)
		}
		if m != nil && m.WorkspaceID == t.WorkspaceID {
			d.Assignee = m
		}
	}
	return d, nil
}

// Update applies a partial edit. A status change does not renumber anything.
func (s TaskService) Update(ctx context.Context, userID, id string, p TaskPatch) (Task, error) {
	if err := p.Validate(); err != nil {
		return Task{}, err
	}
	existing, err := s.load(ctx, userID, id)
	if err != nil {
		return Task{}, err
	}
	upd := TaskUpdate{
		ID:          existing.ID,
		WorkspaceID: existing.WorkspaceID,
		Name:        p.Name,
		Status:      p.Status,
		ProjectID:   p.ProjectID,
		AssigneeID:  p.AssigneeID,
		Description: p.Description,
		DueDate:     p.DueDate,
	}
	t, err := s.st.UpdateTask(ctx, upd)
	if err != nil {
		return Task{}, err
	}
	s.publish(ctx, TaskUpdated, userID, t)
	return t, nil
}

// Delete removes a task.
func (s TaskService) Delete(ctx context.Context, userID, id string) (Task, error) {
	t, err := s.load(ctx, userID, id)
	if err != nil {
		return Task{}, err
	}
	if err := s.st.DeleteTask(ctx, t.WorkspaceID, t.ID); err != nil {
		return Task{}, err
	}
	s.publish(ctx, TaskDeleted, userID, *t)
	return *t, nil
}

// Board lists the tasks matching f and builds their board.
func (s TaskService) Board(ctx context.Context, userID string, f TaskFilter) (Board, error) {
	tasks, err := s.List(ctx, userID, f)
	if err != nil {
		return Board{}, err
	}
	return Build(tasks), nil
}

// Move applies m to the board of f and commits the resulting writes. The
// indices in m must refer to the board the caller built from the same filter.
func (s TaskService) Move(ctx context.Context, userID string, f TaskFilter, m Move) (MoveResult, error) {
	b, err := s.Board(ctx, userID, f)
	if err != nil {
		return MoveResult{}, err
	}
	next, diff, err := Apply(b, m)
	if err != nil {
		return MoveResult{}, err
	}
	if len(diff) == 0 {
		return MoveResult{Board: next}, nil
	}
	committed, err := s.bulk.Apply(ctx, userID, diff)
	return MoveResult{Board: next, Updates: diff, Tasks: committed}, err
}

// BulkUpdate commits a client computed position batch.
func (s TaskService) BulkUpdate(ctx context.Context, userID string, updates []PositionUpdate) ([]Task, error) {
	return s.bulk.Apply(ctx, userID, updates)
}

func (s TaskService) load(ctx context.Context, userID, id string) (*Task, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, fmt.Errorf("%w: task id is required", ErrInvalidInput)
	}
	t, err := s.st.GetTask(ctx, id)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: task %s", ErrNotFound, id)
	}
	if _, err := authorize(ctx, s.st, t.WorkspaceID, userID); err != nil {
		return nil, err
	}
	return t, nil
}

func (s TaskService) publish(ctx context.Context, typ, userID string, t Task) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, NewTaskEvent(typ, userID, t, s.now())); err != nil {
		log.WithFields(log.Fields{"task": t.ID, "workspace": t.WorkspaceID, "type": typ}).WithError(err).Error("failed to publish task event")
	}
}
