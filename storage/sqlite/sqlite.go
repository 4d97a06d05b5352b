// Package sqlite is a single file document store for local development and
// tests. It implements the same storage interfaces as the Azure tables store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"

	"workboard/domain"
	"workboard/storage/sqlite/migrations"
)

// RepositoryConfig is the configuration for the SQLite repository.
type RepositoryConfig struct {
	DBPath string
	Logger log.FieldLogger
}

func (c *RepositoryConfig) defaults() error {
	if c.DBPath == "" {
		return fmt.Errorf("db path is required")
	}
	if c.Logger == nil {
		c.Logger = log.StandardLogger()
	}
	c.Logger = c.Logger.WithField("svc", "storage.SQLite")
	return nil
}

type Repository struct {
	db     *sql.DB
	logger log.FieldLogger
}

// NewRepository opens the database at cfg.DBPath and migrates it.
func NewRepository(ctx context.Context, cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}
	db, err := Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	migrator, err := migrations.NewMigrator(db, cfg.Logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("could not create migrator: %w", err)
	}
	if err := migrator.Up(ctx); err != nil {
		db.Close()
		return nil, err
	}
	cfg.Logger.Debugf("SQLite repository initialized at %s", cfg.DBPath)
	return &Repository{db: db, logger: cfg.Logger}, nil
}

// Open opens the database file without running migrations.
func Open(path string) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	return db, nil
}

func (r *Repository) Close() error { return r.db.Close() }

// Ping checks that the database file is reachable.
func (r *Repository) Ping(ctx context.Context) error { return r.db.PingContext(ctx) }

const taskColumns = `id, workspace_id, name, status, position, project_id, assignee_id, description, due_date, created_at`

func (r *Repository) CreateTask(ctx context.Context, t domain.Task) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.WorkspaceID, t.Name, string(t.Status), t.Position, t.ProjectID, t.AssigneeID,
		t.Description, t.DueDate.UnixMilli(), t.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("could not insert task: %w", err)
	}
	r.logger.Debugf("Created task %s", t.ID)
	return nil
}

func (r *Repository) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not query task: %w", err)
	}
	return &t, nil
}

func (r *Repository) ListTasks(ctx context.Context, f domain.TaskFilter) ([]domain.Task, error) {
	where := []string{"workspace_id = ?"}
	args := []any{f.WorkspaceID}
	if f.ProjectID != "" {
		where, args = append(where, "project_id = ?"), append(args, f.ProjectID)
	}
	if f.AssigneeID != "" {
		where, args = append(where, "assignee_id = ?"), append(args, f.AssigneeID)
	}
	if f.Status != "" {
		where, args = append(where, "status = ?"), append(args, string(f.Status))
	}
	if f.DueDate != nil {
		where, args = append(where, "due_date = ?"), append(args, f.DueDate.UnixMilli())
	}
	if f.Search != "" {
		where, args = append(where, "name = ?"), append(args, f.Search)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE `+strings.Join(where, " AND ")+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("could not query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []domain.Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return tasks, nil
}

func (r *Repository) MaxPosition(ctx context.Context, workspaceID string, status domain.TaskStatus) (int, bool, error) {
	var highest sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(position) FROM tasks WHERE workspace_id = ? AND status = ?`,
		workspaceID, string(status)).Scan(&highest)
	if err != nil {
		return 0, false, fmt.Errorf("could not query max position: %w", err)
	}
	if !highest.Valid {
		return 0, false, nil
	}
	return int(highest.Int64), true, nil
}

func (r *Repository) UpdateTask(ctx context.Context, upd domain.TaskUpdate) (domain.Task, error) {
	var set []string
	var args []any
	add := func(col string, v any) {
		set = append(set, col+" = ?")
		args = append(args, v)
	}
	if upd.Name != nil {
		add("name", *upd.Name)
	}
	if upd.Status != nil {
		add("status", string(*upd.Status))
	}
	if upd.Position != nil {
		add("position", *upd.Position)
	}
	if upd.ProjectID != nil {
		add("project_id", *upd.ProjectID)
	}
	if upd.AssigneeID != nil {
		add("assignee_id", *upd.AssigneeID)
	}
	if upd.Description != nil {
		add("description", *upd.Description)
	}
	if upd.DueDate != nil {
		add("due_date", upd.DueDate.UnixMilli())
	}

	if len(set) > 0 {
		args = append(args, upd.ID, upd.WorkspaceID)
		result, err := r.db.ExecContext(ctx,
			`UPDATE tasks SET `+strings.Join(set, ", ")+` WHERE id = ? AND workspace_id = ?`, args...)
		if err != nil {
			return domain.Task{}, fmt.Errorf("could not update task: %w", err)
		}
		n, err := result.RowsAffected()
		if err != nil {
			return domain.Task{}, fmt.Errorf("could not get rows affected: %w", err)
		}
		if n == 0 {
			return domain.Task{}, fmt.Errorf("%w: task %s", domain.ErrNotFound, upd.ID)
		}
	}

	t, err := r.GetTask(ctx, upd.ID)
	if err != nil {
		return domain.Task{}, err
	}
	if t == nil {
		return domain.Task{}, fmt.Errorf("%w: task %s", domain.ErrNotFound, upd.ID)
	}
	return *t, nil
}

func (r *Repository) DeleteTask(ctx context.Context, workspaceID, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND workspace_id = ?`, id, workspaceID); err != nil {
		return fmt.Errorf("could not delete task: %w", err)
	}
	return nil
}

func (r *Repository) GetMember(ctx context.Context, workspaceID, userID string) (*domain.Member, error) {
	var m domain.Member
	err := r.db.QueryRowContext(ctx,
		`SELECT id, workspace_id, user_id, role FROM members WHERE workspace_id = ? AND user_id = ?`,
		workspaceID, userID).Scan(&m.ID, &m.WorkspaceID, &m.UserID, &m.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not query member: %w", err)
	}
	return &m, nil
}

func (r *Repository) ListMembers(ctx context.Context, workspaceID string) ([]domain.Member, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, workspace_id, user_id, role FROM members WHERE workspace_id = ? ORDER BY id`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("could not query members: %w", err)
	}
	defer rows.Close()

	members := []domain.Member{}
	for rows.Next() {
		var m domain.Member
		if err := rows.Scan(&m.ID, &m.WorkspaceID, &m.UserID, &m.Role); err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

// UpsertMember adds or replaces the membership of a user in a workspace.
func (r *Repository) UpsertMember(ctx context.Context, m domain.Member) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO members (id, workspace_id, user_id, role) VALUES (?, ?, ?, ?)
		ON CONFLICT (workspace_id, user_id) DO UPDATE SET role = excluded.role`,
		m.ID, m.WorkspaceID, m.UserID, string(m.Role))
	if err != nil {
		return fmt.Errorf("could not upsert member: %w", err)
	}
	return nil
}

func (r *Repository) GetMemberByID(ctx context.Context, id string) (*domain.Member, error) {
	var m domain.Member
	err := r.db.QueryRowContext(ctx,
		`SELECT id, workspace_id, user_id, role FROM members WHERE id = ?`, id).Scan(&m.ID, &m.WorkspaceID, &m.UserID, &m.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not query member: %w", err)
	}
	return &m, nil
}

func (r *Repository) DeleteMember(ctx context.Context, m domain.Member) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM members WHERE id = ? AND workspace_id = ?`, m.ID, m.WorkspaceID); err != nil {
		return fmt.Errorf("could not delete member: %w", err)
	}
	return nil
}

func (r *Repository) CreateProject(ctx context.Context, p domain.Project) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO projects (id, workspace_id, name, image_url, created_at) VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.WorkspaceID, p.Name, p.ImageURL, p.CreatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("could not insert project: %w", err)
	}
	return nil
}

func (r *Repository) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, workspace_id, name, image_url, created_at FROM projects WHERE id = ?`, id)
	p, err := scanProject(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not query project: %w", err)
	}
	return &p, nil
}

func (r *Repository) ListProjects(ctx context.Context, workspaceID string) ([]domain.Project, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, workspace_id, name, image_url, created_at FROM projects WHERE workspace_id = ? ORDER BY created_at DESC`, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("could not query projects: %w", err)
	}
	defer rows.Close()

	projects := []domain.Project{}
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan row: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

func (r *Repository) UpdateProject(ctx context.Context, p domain.Project) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE projects SET name = ?, image_url = ? WHERE id = ? AND workspace_id = ?`, p.Name, p.ImageURL, p.ID, p.WorkspaceID)
	if err != nil {
		return fmt.Errorf("could not update project: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("could not update project: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: project %s", domain.ErrNotFound, p.ID)
	}
	return nil
}

func (r *Repository) DeleteProject(ctx context.Context, workspaceID, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ? AND workspace_id = ?`, id, workspaceID); err != nil {
		return fmt.Errorf("could not delete project: %w", err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(s scanner) (domain.Task, error) {
	var t domain.Task
	var dueDate, createdAt int64
	err := s.Scan(&t.ID, &t.WorkspaceID, &t.Name, &t.Status, &t.Position, &t.ProjectID, &t.AssigneeID,
		&t.Description, &dueDate, &createdAt)
	if err != nil {
		return domain.Task{}, err
	}
	t.DueDate = timeFromMillis(dueDate)
	t.CreatedAt = timeFromMillis(createdAt)
	return t, nil
}

func scanProject(s scanner) (domain.Project, error) {
	var p domain.Project
	var createdAt int64
	if err := s.Scan(&p.ID, &p.WorkspaceID, &p.Name, &p.ImageURL, &createdAt); err != nil {
		return domain.Project{}, err
	}
	p.CreatedAt = timeFromMillis(createdAt)
	return p, nil
}

func timeFromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }
