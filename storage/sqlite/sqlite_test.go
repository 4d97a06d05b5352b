package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"workboard/domain"
	"workboard/storage/sqlite"
	"workboard/storage/sqlite/migrations"
)

func newRepo(t *testing.T) *sqlite.Repository {
	t.Helper()
	repo, err := sqlite.NewRepository(context.Background(), sqlite.RepositoryConfig{
		DBPath: filepath.Join(t.TempDir(), "test.db"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func taskFixture(id string, status domain.TaskStatus, pos int, created time.Time) domain.Task {
	return domain.Task{
		ID:          id,
		Name:        "task " + id,
		Status:      status,
		Position:    pos,
		WorkspaceID: "ws1",
		ProjectID:   "p1",
		AssigneeID:  "m1",
		DueDate:     time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC),
		CreatedAt:   created,
	}
}

func TestTaskCRUD(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	base := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, repo.CreateTask(ctx, taskFixture("a", domain.StatusTodo, 1000, base)))
	require.NoError(t, repo.CreateTask(ctx, taskFixture("b", domain.StatusTodo, 2000, base.Add(time.Minute))))
	require.NoError(t, repo.CreateTask(ctx, taskFixture("c", domain.StatusDone, 1000, base.Add(2*time.Minute))))

	got, err := repo.GetTask(ctx, "b")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, taskFixture("b", domain.StatusTodo, 2000, base.Add(time.Minute)), *got)

	missing, err := repo.GetTask(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	all, err := repo.ListTasks(ctx, domain.TaskFilter{WorkspaceID: "ws1"})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "c", all[0].ID)

	todo, err := repo.ListTasks(ctx, domain.TaskFilter{WorkspaceID: "ws1", Status: domain.StatusTodo, Search: "task a"})
	require.NoError(t, err)
	require.Len(t, todo, 1)
	assert.Equal(t, "a", todo[0].ID)

	highest, found, err := repo.MaxPosition(ctx, "ws1", domain.StatusTodo)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 2000, highest)

	_, found, err = repo.MaxPosition(ctx, "ws1", domain.StatusInReview)
	require.NoError(t, err)
	assert.False(t, found)

	status, pos := domain.StatusInReview, 5000
	updated, err := repo.UpdateTask(ctx, domain.TaskUpdate{ID: "a", WorkspaceID: "ws1", Status: &status, Position: &pos})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInReview, updated.Status)
	assert.Equal(t, 5000, updated.Position)
	assert.Equal(t, "task a", updated.Name)

	_, err = repo.UpdateTask(ctx, domain.TaskUpdate{ID: "a", WorkspaceID: "ws2", Status: &status})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, repo.DeleteTask(ctx, "ws1", "a"))
	gone, err := repo.GetTask(ctx, "a")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestMembers(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	require.NoError(t, repo.UpsertMember(ctx, domain.Member{ID: "m1", WorkspaceID: "ws1", UserID: "u1", Role: domain.RoleMember}))
	require.NoError(t, repo.UpsertMember(ctx, domain.Member{ID: "m1", WorkspaceID: "ws1", UserID: "u1", Role: domain.RoleAdmin}))
	require.NoError(t, repo.UpsertMember(ctx, domain.Member{ID: "m2", WorkspaceID: "ws1", UserID: "u2", Role: domain.RoleMember}))

	m, err := repo.GetMember(ctx, "ws1", "u1")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, domain.RoleAdmin, m.Role)

	none, err := repo.GetMember(ctx, "ws2", "u1")
	require.NoError(t, err)
	assert.Nil(t, none)

	list, err := repo.ListMembers(ctx, "ws1")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	byID, err := repo.GetMemberByID(ctx, "m2")
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, "u2", byID.UserID)

	require.NoError(t, repo.DeleteMember(ctx, *byID))
	gone, err := repo.GetMemberByID(ctx, "m2")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestProjects(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	created := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	p := domain.Project{ID: "p1", Name: "Alpha", WorkspaceID: "ws1", CreatedAt: created}
	require.NoError(t, repo.CreateProject(ctx, p))

	got, err := repo.GetProject(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, p, *got)

	list, err := repo.ListProjects(ctx, "ws1")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	p.Name, p.ImageURL = "Beta", "https://img/b.png"
	require.NoError(t, repo.UpdateProject(ctx, p))
	got, err = repo.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, p, *got)
	assert.ErrorIs(t, repo.UpdateProject(ctx, domain.Project{ID: "nope", WorkspaceID: "ws1", Name: "x"}), domain.ErrNotFound)

	require.NoError(t, repo.DeleteProject(ctx, "ws1", "p1"))
	got, err = repo.GetProject(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestServicesOnSQLite(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	require.NoError(t, repo.UpsertMember(ctx, domain.Member{ID: "m1", WorkspaceID: "ws1", UserID: "u1", Role: domain.RoleAdmin}))

	svc := domain.NewTaskService(repo, nil)
	var ids []string
	for i := 0; i < 3; i++ {
		task, err := svc.Create(ctx, "u1", domain.CreateTaskInput{
			Name: "card", Status: domain.StatusTodo, WorkspaceID: "ws1", ProjectID: "p1", AssigneeID: "m1",
			DueDate: time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
		assert.Equal(t, (i+1)*1000, task.Position)
		ids = append(ids, task.ID)
	}

	_, err := svc.Move(ctx, "u1", domain.TaskFilter{WorkspaceID: "ws1"},
		domain.Move{SourceStatus: domain.StatusTodo, SourceIndex: 2, DestStatus: domain.StatusDone, DestIndex: 0})
	require.NoError(t, err)

	board, err := svc.Board(ctx, "u1", domain.TaskFilter{WorkspaceID: "ws1"})
	require.NoError(t, err)
	assert.Equal(t, []string{ids[2]}, board.IDs(domain.StatusDone))
	assert.Equal(t, ids[:2], board.IDs(domain.StatusTodo))

	details, err := svc.Details(ctx, "u1", ids[0])
	require.NoError(t, err)
	require.NotNil(t, details.Assignee)
	assert.Equal(t, "u1", details.Assignee.UserID)
	assert.Nil(t, details.Project, "p1 was never created")
}

func TestMigratorVersion(t *testing.T) {
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	m, err := migrations.NewMigrator(db, nil)
	require.NoError(t, err)

	_, _, err = m.Version()
	require.NoError(t, err)

	require.NoError(t, m.Up(context.Background()))
	v, dirty, err := m.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(1), v)
	assert.False(t, dirty)

	require.NoError(t, m.Down(context.Background()))
}
