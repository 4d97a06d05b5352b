package domain

import (
	"fmt"
	"strings"
	"time"
)

// TaskStatus is the kanban column a task belongs to.
type TaskStatus string

const (
	StatusBacklog    TaskStatus = "BACKLOG"
	StatusTodo       TaskStatus = "TODO"
	StatusInProgress TaskStatus = "IN_PROGRESS"
	StatusInReview   TaskStatus = "IN_REVIEW"
	StatusDone       TaskStatus = "DONE"
)

// Statuses lists every column in board display order.
var Statuses = []TaskStatus{StatusBacklog, StatusTodo, StatusInProgress, StatusInReview, StatusDone}

// Valid reports whether s is one of the known columns.
func (s TaskStatus) Valid() bool {
	switch s {
	case StatusBacklog, StatusTodo, StatusInProgress, StatusInReview, StatusDone:
		return true
	}
	return false
}

// ParseStatus converts raw input into a TaskStatus.
func ParseStatus(raw string) (TaskStatus, error) {
	s := TaskStatus(strings.TrimSpace(raw))
	if !s.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidInput, raw)
	}
	return s, nil
}

// Task is a single card on the board.
type Task struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Status      TaskStatus `json:"status"`
	Position    int        `json:"position"`
	WorkspaceID string     `json:"workspaceId"`
	ProjectID   string     `json:"projectId"`
	AssigneeID  string     `json:"assigneeId"`
	Description string     `json:"description,omitempty"`
	DueDate     time.Time  `json:"dueDate"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// CreateTaskInput carries the caller supplied fields of a new task. Any
// position the client may have sent is not part of it.
type CreateTaskInput struct {
	Name        string     `json:"name"`
	Status      TaskStatus `json:"status"`
	WorkspaceID string     `json:"workspaceId"`
	ProjectID   string     `json:"projectId"`
	AssigneeID  string     `json:"assigneeId"`
	Description string     `json:"description,omitempty"`
	DueDate     time.Time  `json:"dueDate"`
}

// Validate checks the shape of a creation request.
func (in *CreateTaskInput) Validate() error {
	in.Name = strings.TrimSpace(in.Name)
	in.WorkspaceID = strings.TrimSpace(in.WorkspaceID)
	in.ProjectID = strings.TrimSpace(in.ProjectID)
	in.AssigneeID = strings.TrimSpace(in.AssigneeID)
	switch {
	case in.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidInput)
	case !in.Status.Valid():
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, in.Status)
	case in.WorkspaceID == "":
		return fmt.Errorf("%w: workspaceId is required", ErrInvalidInput)
	case in.ProjectID == "":
		return fmt.Errorf("%w: projectId is required", ErrInvalidInput)
	case in.AssigneeID == "":
		return fmt.Errorf("%w: assigneeId is required", ErrInvalidInput)
	case in.DueDate.IsZero():
		return fmt.Errorf("%w: dueDate is required", ErrInvalidInput)
	}
	return nil
}

// TaskPatch is a partial edit of a task. Position is only ever changed through
// the bulk update path.
type TaskPatch struct {
	Name        *string     `json:"name,omitempty"`
	Status      *TaskStatus `json:"status,omitempty"`
	ProjectID   *string     `json:"projectId,omitempty"`
	AssigneeID  *string     `json:"assigneeId,omitempty"`
	Description *string     `json:"description,omitempty"`
	DueDate     *time.Time  `json:"dueDate,omitempty"`
}

// Validate checks the fields that are present.
func (p TaskPatch) Validate() error {
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
	}
	if p.Status != nil && !p.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *p.Status)
	}
	if p.ProjectID != nil && strings.TrimSpace(*p.ProjectID) == "" {
		return fmt.Errorf("%w: projectId must not be empty", ErrInvalidInput)
	}
	if p.AssigneeID != nil && strings.TrimSpace(*p.AssigneeID) == "" {
		return fmt.Errorf("%w: assigneeId must not be empty", ErrInvalidInput)
	}
	if p.Name == nil && p.Status == nil && p.ProjectID == nil && p.AssigneeID == nil && p.Description == nil && p.DueDate == nil {
		return fmt.Errorf("%w: update had no fields", ErrInvalidInput)
	}
	return nil
}

// TaskUpdate is the storage level merge of a task. Nil fields are left as stored.
type TaskUpdate struct {
	ID          string
	WorkspaceID string
	Name        *string
	Status      *TaskStatus
	Position    *int
	ProjectID   *string
	AssigneeID  *string
	Description *string
	DueDate     *time.Time
}

// Apply merges the update into t.
func (u TaskUpdate) Apply(t *Task) {
	if u.Name != nil {
		t.Name = *u.Name
	}
	if u.Status != nil {
		t.Status = *u.Status
	}
	if u.Position != nil {
		t.Position = *u.Position
	}
	if u.ProjectID != nil {
		t.ProjectID = *u.ProjectID
	}
	if u.AssigneeID != nil {
		t.AssigneeID = *u.AssigneeID
	}
	if u.Description != nil {
		t.Description = *u.Description
	}
	if u.DueDate != nil {
		t.DueDate = *u.DueDate
	}
}

// TaskFilter selects tasks of one workspace. Every set field must match
// exactly; Search matches the task name exactly.
type TaskFilter struct {
	WorkspaceID string
	ProjectID   string
	AssigneeID  string
	Status      TaskStatus
	DueDate     *time.Time
	Search      string
}

// WorkspaceOnly reports whether the filter selects the whole workspace.
func (f TaskFilter) WorkspaceOnly() bool {
	return f.ProjectID == "" && f.AssigneeID == "" && f.Status == "" && f.DueDate == nil && f.Search == ""
}

// Match reports whether t satisfies every set field of the filter.
func (f TaskFilter) Match(t Task) bool {
	if t.WorkspaceID != f.WorkspaceID {
		return false
	}
	if f.ProjectID != "" && t.ProjectID != f.ProjectID {
		return false
	}
	if f.AssigneeID != "" && t.AssigneeID != f.AssigneeID {
		return false
	}
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.DueDate != nil && !t.DueDate.Equal(*f.DueDate) {
		return false
	}
	if f.Search != "" && t.Name != f.Search {
		return false
	}
	return true
}

var dueDateLayouts = []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"}

// ParseDueDate accepts RFC 3339 timestamps and plain dates.
func ParseDueDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dueDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: invalid due date %q", ErrInvalidInput, raw)
}
