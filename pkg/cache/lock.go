package cache

import (
	"context"
	"sync"
	"time"
)

// Locker is a best-effort mutual exclusion primitive keyed by string.
// RedisClient provides it across processes; MemoryLocker within one process.
type Locker interface {
	AcquireLock(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key, value string) error
}

type memoryLock struct {
	owner   string
	expires time.Time
}

type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]memoryLock
	now   func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{
		locks: make(map[string]memoryLock),
		now:   time.Now,
	}
}

func (m *MemoryLocker) AcquireLock(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if l, ok := m.locks[key]; ok && now.Before(l.expires) {
		return false, nil
	}
	m.locks[key] = memoryLock{owner: value, expires: now.Add(ttl)}
	return true, nil
}

func (m *MemoryLocker) ReleaseLock(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.locks[key]; ok && l.owner == value {
		delete(m.locks, key)
	}
	return nil
}
