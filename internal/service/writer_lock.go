package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const writerLockPollInterval = 25 * time.Millisecond

// WriterLock serialises ledger writers across processes sharing one store.
type WriterLock interface {
	Acquire(ctx context.Context) (release func(), err error)
}

var releaseWriterLock = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

type redisWriterLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	wait   time.Duration
}

// NewRedisWriterLock builds a lock held as a redis key with a per-holder token.
// Acquire waits up to wait before giving up with ErrConcurrentModification.
func NewRedisWriterLock(client *redis.Client, key string, ttl, wait time.Duration) WriterLock {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	if wait < 0 {
		wait = 0
	}
	return &redisWriterLock{client: client, key: key, ttl: ttl, wait: wait}
}

func (l *redisWriterLock) Acquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)

	for {
		ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire writer lock: %w", err)
		}
		if ok {
			return func() {
				// The caller's context may already be done once the write finished.
				releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				_ = releaseWriterLock.Run(releaseCtx, l.client, []string{l.key}, token).Err()
			}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, fmt.Errorf("%w: writer lock %s is held by another process", ErrConcurrentModification, l.key)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(writerLockPollInterval):
		}
	}
}
