package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

//Counter increments a named counter that expires after the given window
type Counter interface {
	Incr(ctx context.Context, key string, window time.Duration) (int64, error)
}

//Limiter allows a fixed number of requests per identity within each fixed window
type Limiter struct {
	counter Counter
	times   int64
	window  time.Duration
	now     func() time.Time
}

//NewLimiter allows at most times requests per identity in every window
func NewLimiter(counter Counter, times int, window time.Duration) *Limiter {
	return &Limiter{counter: counter, times: int64(times), window: window, now: time.Now}
}

//Allow counts a request made by identity and reports whether it is within the limit
func (l *Limiter) Allow(ctx context.Context, identity string) (bool, error) {
	start := l.now().Truncate(l.window).Unix()
	key := fmt.Sprintf("ratelimit:%s:%d", identity, start)

	count, err := l.counter.Incr(ctx, key, l.window)
	if err != nil {
		return false, err
	}

	return count <= l.times, nil
}

type redisCounter struct {
	client *redis.Client
}

//NewRedisCounter keeps counters in redis so that the limit is shared between replicas
func NewRedisCounter(client *redis.Client) Counter {
	return &redisCounter{client: client}
}

func (c *redisCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}

	return incr.Val(), nil
}

type memoryEntry struct {
	count   int64
	expires time.Time
}

type memoryCounter struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
	now     func() time.Time
}

//NewMemoryCounter keeps counters in process memory
func NewMemoryCounter() Counter {
	return &memoryCounter{entries: map[string]*memoryEntry{}, now: time.Now}
}

func (c *memoryCounter) Incr(ctx context.Context, key string, window time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()

	for k, e := range c.entries {
		if !now.Before(e.expires) {
			delete(c.entries, k)
		}
	}

	e, ok := c.entries[key]
	if !ok {
		e = &memoryEntry{}
		c.entries[key] = e
	}

	e.count++
	e.expires = now.Add(window)

	return e.count, nil
}
