package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"wisher-api/domain"
)

type backend interface {
	InsertEvent(ctx context.Context, ev domain.Event) error
	UpdateEvent(ctx context.Context, ev domain.Event) error
	DeleteEvent(ctx context.Context, ev domain.Event) error
	GetEvent(ctx context.Context, id string) (domain.Event, bool, error)
	ListEvents(ctx context.Context, ownerID, cursor string, pageSize int) ([]domain.Event, string, error)
	EnqueueReminder(ctx context.Context, r Reminder) error
}

// Cache wraps a Store with Redis-backed caching of each owner's first feed
// page. Later pages are short-lived scroll state and always hit the table;
// writes evict the owner's cached page so the next load is fresh.
type Cache struct {
	*Store
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}

	c := &Cache{
		base:  base,
		redis: client,
		ttl:   ttl,
	}
	if s, ok := base.(*Store); ok {
		c.Store = s
	}
	return c
}

type cachedPage struct {
	Events     []domain.Event `json:"events"`
	LastRowKey string         `json:"lastRowKey"`
}

func (c *Cache) ListEvents(ctx context.Context, ownerID, cursor string, pageSize int) ([]domain.Event, string, error) {
	if cursor != "" {
		return c.base.ListEvents(ctx, ownerID, cursor, pageSize)
	}

	key := firstPageKey(ownerID, pageSize)
	if page, ok := c.loadPage(ctx, key); ok {
		return page.Events, page.LastRowKey, nil
	}

	events, lastRowKey, err := c.base.ListEvents(ctx, ownerID, cursor, pageSize)
	if err != nil {
		return nil, "", err
	}
	c.storePage(ctx, key, cachedPage{Events: events, LastRowKey: lastRowKey})
	return events, lastRowKey, nil
}

func (c *Cache) InsertEvent(ctx context.Context, ev domain.Event) error {
	if err := c.base.InsertEvent(ctx, ev); err != nil {
		return err
	}
	c.evict(ctx, ev.OwnerID)
	return nil
}

func (c *Cache) UpdateEvent(ctx context.Context, ev domain.Event) error {
	if err := c.base.UpdateEvent(ctx, ev); err != nil {
		return err
	}
	c.evict(ctx, ev.OwnerID)
	return nil
}

func (c *Cache) DeleteEvent(ctx context.Context, ev domain.Event) error {
	if err := c.base.DeleteEvent(ctx, ev); err != nil {
		return err
	}
	c.evict(ctx, ev.OwnerID)
	return nil
}

func (c *Cache) GetEvent(ctx context.Context, id string) (domain.Event, bool, error) {
	return c.base.GetEvent(ctx, id)
}

func (c *Cache) EnqueueReminder(ctx context.Context, r Reminder) error {
	return c.base.EnqueueReminder(ctx, r)
}

func (c *Cache) loadPage(ctx context.Context, key string) (cachedPage, bool) {
	if c.redis == nil {
		return cachedPage{}, false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		return cachedPage{}, false
	}
	var page cachedPage
	if err := json.Unmarshal(data, &page); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		return cachedPage{}, false
	}
	return page, true
}

func (c *Cache) storePage(ctx context.Context, key string, page cachedPage) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(page)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.ttl).Err()
}

func (c *Cache) evict(ctx context.Context, ownerID string) {
	if c.redis == nil {
		return
	}
	iter := c.redis.Scan(ctx, 0, firstPageKeyPattern(ownerID), 0).Iterator()
	for iter.Next(ctx) {
		_ = c.redis.Del(ctx, iter.Val()).Err()
	}
}

func firstPageKey(ownerID string, pageSize int) string {
	return fmt.Sprintf("events:first:%s:%d", ownerID, pageSize)
}

func firstPageKeyPattern(ownerID string) string {
	return "events:first:" + ownerID + ":*"
}
