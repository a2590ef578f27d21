package memory

import (
	"context"
	"sync"
	"time"

	"fintrust/internal/repositories"
)

// Locker is an in-process replacement for the redis settlement lock.
type Locker struct {
	mu   sync.Mutex
	held map[string]time.Time
}

func NewLocker() *Locker {
	return &Locker{held: make(map[string]time.Time)}
}

func (l *Locker) Acquire(_ context.Context, key string, ttl time.Duration) (func(context.Context) error, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if exp, ok := l.held[key]; ok && now.Before(exp) {
		return nil, repositories.ErrLockHeld
	}
	expiry := now.Add(ttl)
	l.held[key] = expiry

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.held[key].Equal(expiry) {
			delete(l.held, key)
		}
		return nil
	}, nil
}
