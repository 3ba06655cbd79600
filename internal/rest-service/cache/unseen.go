// Package cache keeps the unseen shared-item counters in Redis.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const unseenTTL = 10 * time.Minute

// Unseen is a read-through cache for per-user unseen grant counts. A nil
// *Unseen or a Redis outage behaves as a permanent miss.
type Unseen struct {
	client *redis.Client
	l      *log.Entry
}

func NewUnseen(client *redis.Client, l *log.Entry) *Unseen {
	return &Unseen{client: client, l: l}
}

// Connect builds a client for addr and pings it.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("can't connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

func unseenKey(user uuid.UUID) string {
	return fmt.Sprintf("shares:%s:unseen", user)
}

func (c *Unseen) Get(ctx context.Context, user uuid.UUID) (int64, bool) {
	if c == nil || c.client == nil {
		return 0, false
	}
	n, err := c.client.Get(ctx, unseenKey(user)).Int64()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.l.WithError(err).Warn("can't read unseen count from cache")
		}
		return 0, false
	}
	return n, true
}

func (c *Unseen) Set(ctx context.Context, user uuid.UUID, n int64) {
	if c == nil || c.client == nil {
		return
	}
	if err := c.client.Set(ctx, unseenKey(user), n, unseenTTL).Err(); err != nil {
		c.l.WithError(err).Warn("can't cache unseen count")
	}
}

func (c *Unseen) Invalidate(ctx context.Context, users ...uuid.UUID) {
	if c == nil || c.client == nil || len(users) == 0 {
		return
	}
	keys := make([]string, len(users))
	for i, u := range users {
		keys[i] = unseenKey(u)
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.l.WithError(err).Warn("can't invalidate unseen count")
	}
}
