package memory

import (
	"context"
	"sync"
)

// keyLocks hands out one exclusive lock per key. Waiting honours ctx.
type keyLocks struct {
	mu   sync.Mutex
	sems map[string]chan struct{}
}

func newKeyLocks() *keyLocks {
	return &keyLocks{sems: make(map[string]chan struct{})}
}

func (k *keyLocks) sem(key string) chan struct{} {
	k.mu.Lock()
	defer k.mu.Unlock()
	ch, ok := k.sems[key]
	if !ok {
		ch = make(chan struct{}, 1)
		k.sems[key] = ch
	}
	return ch
}

func (k *keyLocks) acquire(ctx context.Context, key string) error {
	select {
	case k.sem(key) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (k *keyLocks) release(key string) {
	<-k.sem(key)
}
