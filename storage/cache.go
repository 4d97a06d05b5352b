package storage

import (
	"context"
	"errors"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"workboard/domain"
)

// Backend is the full document store consumed by the services.
type Backend interface {
	domain.TaskStorage
	domain.MemberStorage
	domain.ProjectStorage
}

// Cache wraps a Backend with Redis-backed caching of membership lookups and
// unfiltered workspace task lists. Task writes evict the workspace list.
type Cache struct {
	Backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base Backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{Backend: base, redis: client, ttl: ttl}
}

func (c *Cache) GetMember(ctx context.Context, workspaceID, userID string) (*domain.Member, error) {
	key := memberCacheKey(workspaceID, userID)
	var cached domain.Member
	if c.load(ctx, key, &cached) {
		return &cached, nil
	}
	m, err := c.Backend.GetMember(ctx, workspaceID, userID)
	if err != nil || m == nil {
		return m, err
	}
	c.store(ctx, key, m)
	return m, nil
}

// UpsertMember evicts the cached membership so role changes apply at once.
func (c *Cache) UpsertMember(ctx context.Context, m domain.Member) error {
	err := c.Backend.UpsertMember(ctx, m)
	c.evict(ctx, memberCacheKey(m.WorkspaceID, m.UserID))
	return err
}

func (c *Cache) DeleteMember(ctx context.Context, m domain.Member) error {
	err := c.Backend.DeleteMember(ctx, m)
	c.evict(ctx, memberCacheKey(m.WorkspaceID, m.UserID))
	return err
}

func (c *Cache) ListTasks(ctx context.Context, f domain.TaskFilter) ([]domain.Task, error) {
	if !f.WorkspaceOnly() {
		return c.Backend.ListTasks(ctx, f)
	}
	key := tasksCacheKey(f.WorkspaceID)
	var cached []domain.Task
	if c.load(ctx, key, &cached) {
		return cached, nil
	}
	tasks, err := c.Backend.ListTasks(ctx, f)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, tasks)
	return tasks, nil
}

func (c *Cache) CreateTask(ctx context.Context, t domain.Task) error {
	if err := c.Backend.CreateTask(ctx, t); err != nil {
		return err
	}
	c.evict(ctx, tasksCacheKey(t.WorkspaceID))
	return nil
}

func (c *Cache) UpdateTask(ctx context.Context, upd domain.TaskUpdate) (domain.Task, error) {
	t, err := c.Backend.UpdateTask(ctx, upd)
	// a failed merge may still have reached the store
	c.evict(ctx, tasksCacheKey(upd.WorkspaceID))
	return t, err
}

func (c *Cache) DeleteTask(ctx context.Context, workspaceID, id string) error {
	if err := c.Backend.DeleteTask(ctx, workspaceID, id); err != nil {
		return err
	}
	c.evict(ctx, tasksCacheKey(workspaceID))
	return nil
}

func (c *Cache) load(ctx context.Context, key string, dst any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.WithError(err).WithField("key", key).Warn("cache read failed")
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return false
	}
	if err := sonic.ConfigStd.Unmarshal(data, dst); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return false
	}
	return true
}

func (c *Cache) store(ctx context.Context, key string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, keys ...string) {
	if c.redis == nil {
		return
	}
	if err := c.redis.Del(ctx, keys...).Err(); err != nil {
		log.WithError(err).WithField("keys", keys).Warn("cache eviction failed")
	}
}

func tasksCacheKey(workspaceID string) string {
	return "tasks:" + workspaceID
}

func memberCacheKey(workspaceID, userID string) string {
	return "member:" + workspaceID + ":" + userID
}
