package domain

import "context"

// TaskStorage is the document store view of tasks. Get style methods return
// nil without error when the entity does not exist.
type TaskStorage interface {
	CreateTask(ctx context.Context, t Task) error
	GetTask(ctx context.Context, id string) (*Task, error)
	ListTasks(ctx context.Context, f TaskFilter) ([]Task, error)
	// MaxPosition returns the highest position stored in the column, found is
	// false when the column is empty.
	MaxPosition(ctx context.Context, workspaceID string, status TaskStatus) (highest int, found bool, err error)
	// UpdateTask merges upd into the stored task and returns the stored result.
	UpdateTask(ctx context.Context, upd TaskUpdate) (Task, error)
	DeleteTask(ctx context.Context, workspaceID, id string) error
}

// MemberStorage resolves workspace membership.
type MemberStorage interface {
	GetMember(ctx context.Context, workspaceID, userID string) (*Member, error)
	ListMembers(ctx context.Context, workspaceID string) ([]Member, error)
	// GetMemberByID looks a membership up by its id across all workspaces.
	GetMemberByID(ctx context.Context, id string) (*Member, error)
	UpsertMember(ctx context.Context, m Member) error
	DeleteMember(ctx context.Context, m Member) error
}

// ProjectStorage persists projects.
type ProjectStorage interface {
	CreateProject(ctx context.Context, p Project) error
	GetProject(ctx context.Context, id string) (*Project, error)
	ListProjects(ctx context.Context, workspaceID string) ([]Project, error)
	// UpdateProject replaces the stored project. A missing project yields
	// ErrNotFound.
	UpdateProject(ctx context.Context, p Project) error
	DeleteProject(ctx context.Context, workspaceID, id string) error
}
