package domain

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Project groups tasks of a workspace.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	WorkspaceID string    `json:"workspaceId"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CreateProjectInput carries the fields of a new project.
type CreateProjectInput struct {
	Name        string `json:"name"`
	WorkspaceID string `json:"workspaceId"`
	ImageURL    string `json:"imageUrl,omitempty"`
}

// ProjectPatch carries the editable project fields. Nil fields are left
// untouched; an empty ImageURL clears the image.
type ProjectPatch struct {
	Name     *string `json:"name,omitempty"`
	ImageURL *string `json:"imageUrl,omitempty"`
}

func (p ProjectPatch) Validate() error {
	if p.Name == nil && p.ImageURL == nil {
		return fmt.Errorf("%w: nothing to update", ErrInvalidInput)
	}
	if p.Name != nil && strings.TrimSpace(*p.Name) == "" {
		return fmt.Errorf("%w: name must not be empty", ErrInvalidInput)
	}
	return nil
}

type projectStore interface {
	ProjectStorage
	MemberStorage
}

// ProjectService implements membership gated project operations.
type ProjectService struct {
	st  projectStore
	now func() time.Time
}

func NewProjectService(st projectStore) ProjectService {
	return ProjectService{st: st, now: time.Now}
}

// Create stores a new project in the caller's workspace.
func (s ProjectService) Create(ctx context.Context, userID string, in CreateProjectInput) (Project, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.WorkspaceID = strings.TrimSpace(in.WorkspaceID)
	if in.Name == "" {
		return Project{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if in.WorkspaceID == "" {
		return Project{}, fmt.Errorf("%w: workspaceId is required", ErrInvalidInput)
	}
	if _, err := authorize(ctx, s.st, in.WorkspaceID, userID); err != nil {
		return Project{}, err
	}
	p := Project{
		ID:          uuid.NewString(),
		Name:        in.Name,
		WorkspaceID: in.WorkspaceID,
		ImageURL:    in.ImageURL,
		CreatedAt:   s.now().UTC(),
	}
	if err := s.st.CreateProject(ctx, p); err != nil {
		return Project{}, err
	}
	return p, nil
}

// List returns the projects of a workspace, newest first.
func (s ProjectService) List(ctx context.Context, userID, workspaceID string) ([]Project, error) {
	workspaceID = strings.TrimSpace(workspaceID)
	if workspaceID == "" {
		return nil, fmt.Errorf("%w: workspaceId is required", ErrInvalidInput)
	}
	if _, err := authorize(ctx, s.st, workspaceID, userID); err != nil {
		return nil, err
	}
	projects, err := s.st.ListProjects(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(projects, func(i, j int) bool { return projects[i].CreatedAt.After(projects[j].CreatedAt) })
	return projects, nil
}

// Get returns a single project.
func (s ProjectService) Get(ctx context.Context, userID, id string) (Project, error) {
	p, err := s.load(ctx, userID, id)
	if err != nil {
		return Project{}, err
	}
	return *p, nil
}

// Update renames a project or changes its image.
func (s ProjectService) Update(ctx context.Context, userID, id string, patch ProjectPatch) (Project, error) {
	if err := patch.Validate(); err != nil {
		return Project{}, err
	}
	p, err := s.load(ctx, userID, id)
	if err != nil {
		return Project{}, err
	}
	if patch.Name != nil {
		p.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.ImageURL != nil {
		p.ImageURL = *patch.ImageURL
	}
	if err := s.st.UpdateProject(ctx, *p); err != nil {
		return Project{}, err
	}
	return *p, nil
}

// Delete removes a project. Its tasks are left in place.
func (s ProjectService) Delete(ctx context.Context, userID, id string) error {
	p, err := s.load(ctx, userID, id)
	if err != nil {
		return err
	}
	return s.st.DeleteProject(ctx, p.WorkspaceID, p.ID)
}

func (s ProjectService) load(ctx context.Context, userID, id string) (*Project, error) {
	p, err := s.st.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: project %s", ErrNotFound, id)
	}
	if _, err := authorize(ctx, s.st, p.WorkspaceID, userID); err != nil {
		return nil, err
	}
	return p, nil
}
