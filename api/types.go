package api

import (
	"context"

	"workboard/domain"
)

// TaskService abstracts the task operations used by handlers.
type TaskService interface {
	Create(ctx context.Context, userID string, in domain.CreateTaskInput) (domain.Task, error)
	List(ctx context.Context, userID string, f domain.TaskFilter) ([]domain.Task, error)
	Details(ctx context.Context, userID, id string) (domain.TaskDetails, error)
	Update(ctx context.Context, userID, id string, p domain.TaskPatch) (domain.Task, error)
	Delete(ctx context.Context, userID, id string) (domain.Task, error)
	Board(ctx context.Context, userID string, f domain.TaskFilter) (domain.Board, error)
	Move(ctx context.Context, userID string, f domain.TaskFilter, m domain.Move) (domain.MoveResult, error)
	BulkUpdate(ctx context.Context, userID string, updates []domain.PositionUpdate) ([]domain.Task, error)
}

type ProjectService interface {
	Create(ctx context.Context, userID string, in domain.CreateProjectInput) (domain.Project, error)
	List(ctx context.Context, userID, workspaceID string) ([]domain.Project, error)
	Get(ctx context.Context, userID, id string) (domain.Project, error)
	Update(ctx context.Context, userID, id string, p domain.ProjectPatch) (domain.Project, error)
	Delete(ctx context.Context, userID, id string) error
}

type MemberService interface {
	List(ctx context.Context, userID, workspaceID string) ([]domain.Member, error)
	Remove(ctx context.Context, userID, memberID string) (domain.Member, error)
	UpdateRole(ctx context.Context, userID, memberID string, role domain.MemberRole) (domain.Member, error)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}

// Deduper prevents processing of duplicate bulk updates.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when processing fails.
	Remove(ctx context.Context, userID, key string) error
}
