// Package runlock keeps two reconciliation runs from overlapping.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"labtool-ledger/internal/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned when another run owns the lock.
var ErrHeld = errors.New("reconciliation already running")

// Release gives the lock back. It is safe to call more than once.
type Release func()

type Locker interface {
	Acquire(ctx context.Context, name string) (Release, error)
}

type localLocker struct {
	mu   sync.Mutex
	held map[string]bool
}

// NewLocal returns a Locker that only guards runs within this process.
func NewLocal() Locker {
	return &localLocker{held: make(map[string]bool)}
}

func (l *localLocker) Acquire(ctx context.Context, name string) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[name] {
		return nil, ErrHeld
	}
	l.held[name] = true

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, name)
			l.mu.Unlock()
		})
	}, nil
}

// redisClient is the subset of *redis.Client the lock needs.
type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) *redis.Cmd
}

// Deletes the key only while it still carries our token.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`

type redisLocker struct {
	client redisClient
	ttl    time.Duration
}

// NewRedis returns a Locker shared by every process using the same Redis.
// The TTL bounds how long a crashed run can keep others out.
func NewRedis(client redisClient, ttl time.Duration) Locker {
	return &redisLocker{client: client, ttl: ttl}
}

func key(name string) string {
	return "labtool:runlock:" + name
}

func (l *redisLocker) Acquire(ctx context.Context, name string) (Release, error) {
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key(name), token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrHeld
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := l.client.Eval(ctx, releaseScript, []string{key(name)}, token).Err(); err != nil {
				logger.Warn("Failed to release run lock, it will expire", "name", name, "ttl", l.ttl, "error", err)
			}
		})
	}, nil
}

// Connect opens a Redis client and checks it answers.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}
	return client, nil
}
