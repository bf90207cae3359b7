package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Deduper remembers which reminders were already enqueued so overlapping scan
// windows do not produce duplicate notifications.
type Deduper interface {
	MarkSent(ctx context.Context, eventID, date string) (bool, error)
	Unmark(ctx context.Context, eventID, date string) error
}

// RedisDeduper records sent reminders in Redis so every instance of the
// scanner shares the same view.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client. The TTL
// should comfortably exceed the scan lead window.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(eventID, date string) string {
	return fmt.Sprintf("reminder:sent:%s:%s", eventID, date)
}

// MarkSent records that a reminder for the event's current date was enqueued.
// It returns true when this is the first time the reminder was seen.
func (r *RedisDeduper) MarkSent(ctx context.Context, eventID, date string) (bool, error) {
	return r.client.SetNX(ctx, r.key(eventID, date), 1, r.ttl).Result()
}

// Unmark forgets a recorded reminder. Called when the enqueue after a
// successful mark fails so the next scan retries it.
func (r *RedisDeduper) Unmark(ctx context.Context, eventID, date string) error {
	return r.client.Del(ctx, r.key(eventID, date)).Err()
}
