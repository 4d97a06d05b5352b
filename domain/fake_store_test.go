package domain

import (
	"context"
	"errors"
	"sync"
)

type fakeStore struct {
	mu       sync.Mutex
	tasks    map[string]Task
	members  []Member
	projects map[string]Project

	failUpdateID string
	gets         int
	updates      []TaskUpdate
	deleted      []string
}

func newFakeStore(tasks ...Task) *fakeStore {
	f := &fakeStore{tasks: map[string]Task{}, projects: map[string]Project{}}
	for _, t := range tasks {
		f.tasks[t.ID] = t
	}
	return f
}

func (f *fakeStore) addMember(ws, user string) *fakeStore {
	f.members = append(f.members, Member{ID: ws + "-" + user, WorkspaceID: ws, UserID: user, Role: RoleMember})
	return f
}

func (f *fakeStore) addAdmin(ws, user string) *fakeStore {
	f.members = append(f.members, Member{ID: ws + "-" + user, WorkspaceID: ws, UserID: user, Role: RoleAdmin})
	return f
}

func (f *fakeStore) CreateTask(ctx context.Context, t Task) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.tasks[t.ID]; ok {
		return errors.New("task exists")
	}
	f.tasks[t.ID] = t
	return nil
}

func (f *fakeStore) GetTask(ctx context.Context, id string) (*Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	t, ok := f.tasks[id]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (f *fakeStore) ListTasks(ctx context.Context, flt TaskFilter) ([]Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Task
	for _, t := range f.tasks {
		if flt.Match(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeStore) MaxPosition(ctx context.Context, ws string, status TaskStatus) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	highest, found := 0, false
	for _, t := range f.tasks {
		if t.WorkspaceID != ws || t.Status != status {
			continue
		}
		if !found || t.Position > highest {
			highest, found = t.Position, true
		}
	}
	return highest, found, nil
}

func (f *fakeStore) UpdateTask(ctx context.Context, upd TaskUpdate) (Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if upd.ID == f.failUpdateID {
		return Task{}, errors.New("storage unavailable")
	}
	t, ok := f.tasks[upd.ID]
	if !ok {
		return Task{}, errors.New("missing task")
	}
	upd.Apply(&t)
	f.tasks[t.ID] = t
	f.updates = append(f.updates, upd)
	return t, nil
}

func (f *fakeStore) DeleteTask(ctx context.Context, ws, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.tasks, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeStore) GetMember(ctx context.Context, ws, user string) (*Member, error) {
	for _, m := range f.members {
		if m.WorkspaceID == ws && m.UserID == user {
			m := m
			return &m, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListMembers(ctx context.Context, ws string) ([]Member, error) {
	var out []Member
	for _, m := range f.members {
		if m.WorkspaceID == ws {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeStore) GetMemberByID(ctx context.Context, id string) (*Member, error) {
	for _, m := range f.members {
		if m.ID == id {
			m := m
			return &m, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) UpsertMember(ctx context.Context, m Member) error {
	for i := range f.members {
		if f.members[i].ID == m.ID {
			f.members[i] = m
			return nil
		}
	}
	f.members = append(f.members, m)
	return nil
}

func (f *fakeStore) DeleteMember(ctx context.Context, m Member) error {
	for i := range f.members {
		if f.members[i].ID == m.ID {
			f.members = append(f.members[:i], f.members[i+1:]...)
			return nil
		}
	}
	return nil
}

func (f *fakeStore) CreateProject(ctx context.Context, p Project) error {
	f.projects[p.ID] = p
	return nil
}

func (f *fakeStore) GetProject(ctx context.Context, id string) (*Project, error) {
	p, ok := f.projects[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (f *fakeStore) ListProjects(ctx context.Context, ws string) ([]Project, error) {
	var out []Project
	for _, p := range f.projects {
		if p.WorkspaceID == ws {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeStore) UpdateProject(ctx context.Context, p Project) error {
	if _, ok := f.projects[p.ID]; !ok {
		return ErrNotFound
	}
	f.projects[p.ID] = p
	return nil
}

func (f *fakeStore) DeleteProject(ctx context.Context, ws, id string) error {
	delete(f.projects, id)
	return nil
}

type recordingPublisher struct {
	events []TaskEvent
	err    error
}

func (p *recordingPublisher) Publish(ctx context.Context, events ...TaskEvent) error {
	p.events = append(p.events, events...)
	return p.err
}

func task(id string, status TaskStatus, pos int) Task {
	return Task{ID: id, Name: id, Status: status, Position: pos, WorkspaceID: "ws1", ProjectID: "p1", AssigneeID: "m1"}
}
