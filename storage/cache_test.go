package storage

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"workboard/domain"
)

type stubBackend struct {
	tasks     []domain.Task
	member    *domain.Member
	listCalls int
	memCalls  int
	updateErr error
}

func (s *stubBackend) CreateTask(ctx context.Context, t domain.Task) error {
	s.tasks = append(s.tasks, t)
	return nil
}

func (s *stubBackend) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	return nil, errors.New("unexpected GetTask call")
}

func (s *stubBackend) ListTasks(ctx context.Context, f domain.TaskFilter) ([]domain.Task, error) {
	s.listCalls++
	out := []domain.Task{}
	for _, t := range s.tasks {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *stubBackend) MaxPosition(ctx context.Context, ws string, status domain.TaskStatus) (int, bool, error) {
	return 0, false, nil
}

func (s *stubBackend) UpdateTask(ctx context.Context, upd domain.TaskUpdate) (domain.Task, error) {
	return domain.Task{ID: upd.ID, WorkspaceID: upd.WorkspaceID}, s.updateErr
}

func (s *stubBackend) DeleteTask(ctx context.Context, ws, id string) error { return nil }

func (s *stubBackend) GetMember(ctx context.Context, ws, user string) (*domain.Member, error) {
	s.memCalls++
	return s.member, nil
}

func (s *stubBackend) ListMembers(ctx context.Context, ws string) ([]domain.Member, error) {
	return nil, nil
}

func (s *stubBackend) GetMemberByID(ctx context.Context, id string) (*domain.Member, error) {
	return s.member, nil
}

func (s *stubBackend) UpsertMember(ctx context.Context, m domain.Member) error {
	s.member = &m
	return nil
}

func (s *stubBackend) DeleteMember(ctx context.Context, m domain.Member) error {
	s.member = nil
	return nil
}

func (s *stubBackend) CreateProject(ctx context.Context, p domain.Project) error { return nil }

func (s *stubBackend) UpdateProject(ctx context.Context, p domain.Project) error { return nil }

func (s *stubBackend) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	return nil, nil
}

func (s *stubBackend) ListProjects(ctx context.Context, ws string) ([]domain.Project, error) {
	return nil, nil
}

func (s *stubBackend) DeleteProject(ctx context.Context, ws, id string) error { return nil }

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestCacheListTasksMissThenHit(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	backend := &stubBackend{tasks: []domain.Task{{ID: "t1", Name: "Write code", Status: domain.StatusTodo, Position: 1000, WorkspaceID: "ws1"}}}
	cache := NewCache(backend, client, time.Minute)

	tasks, err := cache.ListTasks(ctx, domain.TaskFilter{WorkspaceID: "ws1"})
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if ttl := mr.TTL(tasksCacheKey("ws1")); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("unexpected TTL: %v", ttl)
	}
	cached, err := cache.ListTasks(ctx, domain.TaskFilter{WorkspaceID: "ws1"})
	if err != nil {
		t.Fatalf("list cached tasks: %v", err)
	}
	if !reflect.DeepEqual(cached, tasks) {
		t.Fatalf("unexpected cached tasks: %#v", cached)
	}
	if backend.listCalls != 1 {
		t.Fatalf("expected cached list to avoid backend, calls=%d", backend.listCalls)
	}
}

func TestCacheSkipsFilteredLists(t *testing.T) {
	mr, client := newTestRedis(t)
	backend := &stubBackend{}
	cache := NewCache(backend, client, time.Minute)
	for i := 0; i < 2; i++ {
		if _, err := cache.ListTasks(context.Background(), domain.TaskFilter{WorkspaceID: "ws1", Status: domain.StatusDone}); err != nil {
			t.Fatalf("list tasks: %v", err)
		}
	}
	if backend.listCalls != 2 {
		t.Fatalf("filtered lists must not be cached, calls=%d", backend.listCalls)
	}
	if mr.Exists(tasksCacheKey("ws1")) {
		t.Fatalf("unexpected cache entry")
	}
}

func TestCacheEvictsOnWrites(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	backend := &stubBackend{}
	cache := NewCache(backend, client, time.Minute)

	populate := func() {
		if _, err := cache.ListTasks(ctx, domain.TaskFilter{WorkspaceID: "ws1"}); err != nil {
			t.Fatalf("list tasks: %v", err)
		}
		if !mr.Exists(tasksCacheKey("ws1")) {
			t.Fatalf("expected cached list")
		}
	}

	populate()
	if err := cache.CreateTask(ctx, domain.Task{ID: "t2", WorkspaceID: "ws1"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if mr.Exists(tasksCacheKey("ws1")) {
		t.Fatalf("create should evict the workspace list")
	}

	populate()
	backend.updateErr = errors.New("boom")
	if _, err := cache.UpdateTask(ctx, domain.TaskUpdate{ID: "t2", WorkspaceID: "ws1"}); err == nil {
		t.Fatalf("expected update error")
	}
	if mr.Exists(tasksCacheKey("ws1")) {
		t.Fatalf("failed update should still evict")
	}

	populate()
	if err := cache.DeleteTask(ctx, "ws1", "t2"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists(tasksCacheKey("ws1")) {
		t.Fatalf("delete should evict the workspace list")
	}
}

func TestCacheMembership(t *testing.T) {
	_, client := newTestRedis(t)
	ctx := context.Background()
	backend := &stubBackend{}
	cache := NewCache(backend, client, time.Minute)

	m, err := cache.GetMember(ctx, "ws1", "u1")
	if err != nil || m != nil {
		t.Fatalf("expected no member, got %v %v", m, err)
	}
	backend.member = &domain.Member{ID: "m1", WorkspaceID: "ws1", UserID: "u1", Role: domain.RoleAdmin}
	if m, _ := cache.GetMember(ctx, "ws1", "u1"); m == nil {
		t.Fatalf("missing membership must not be cached")
	}
	m, err = cache.GetMember(ctx, "ws1", "u1")
	if err != nil || m == nil || *m != *backend.member {
		t.Fatalf("unexpected cached member %v %v", m, err)
	}
	if backend.memCalls != 2 {
		t.Fatalf("expected 2 backend calls, got %d", backend.memCalls)
	}
}

func TestCacheEvictsMembershipOnChange(t *testing.T) {
	mr, client := newTestRedis(t)
	ctx := context.Background()
	member := domain.Member{ID: "m1", WorkspaceID: "ws1", UserID: "u1", Role: domain.RoleMember}
	backend := &stubBackend{member: &member}
	cache := NewCache(backend, client, time.Minute)
	key := memberCacheKey("ws1", "u1")

	if _, err := cache.GetMember(ctx, "ws1", "u1"); err != nil || !mr.Exists(key) {
		t.Fatalf("expected cached membership, err=%v", err)
	}
	promoted := member
	promoted.Role = domain.RoleAdmin
	if err := cache.UpsertMember(ctx, promoted); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if mr.Exists(key) {
		t.Fatalf("role change should evict the membership")
	}
	if m, _ := cache.GetMember(ctx, "ws1", "u1"); m == nil || m.Role != domain.RoleAdmin {
		t.Fatalf("stale role served: %+v", m)
	}

	if err := cache.DeleteMember(ctx, promoted); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if mr.Exists(key) {
		t.Fatalf("removal should evict the membership")
	}
	if m, _ := cache.GetMember(ctx, "ws1", "u1"); m != nil {
		t.Fatalf("removed member still authorized: %+v", m)
	}
}

func TestCacheWithoutRedis(t *testing.T) {
	backend := &stubBackend{}
	cache := NewCache(backend, nil, time.Minute)
	for i := 0; i < 2; i++ {
		if _, err := cache.ListTasks(context.Background(), domain.TaskFilter{WorkspaceID: "ws1"}); err != nil {
			t.Fatalf("list tasks: %v", err)
		}
	}
	if backend.listCalls != 2 {
		t.Fatalf("expected passthrough, calls=%d", backend.listCalls)
	}
}
