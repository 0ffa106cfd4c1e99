package locks

import (
	"context"
	"sync"
	"time"
)

// MemoryLocker coordinates goroutines within one process.
type MemoryLocker struct {
	mu       sync.Mutex
	held     map[string]memoryLock
	interval time.Duration
	now      func() time.Time
}

type memoryLock struct {
	owner     string
	expiresAt time.Time
}

func NewMemoryLocker(retryInterval time.Duration) *MemoryLocker {
	return &MemoryLocker{
		held:     make(map[string]memoryLock),
		interval: retryInterval,
		now:      time.Now,
	}
}

func (m *MemoryLocker) Acquire(ctx context.Context, key string, ttl, wait time.Duration) (*Lock, error) {
	return spin(ctx, m.try, key, ttl, wait, m.interval)
}

func (m *MemoryLocker) try(_ context.Context, key, owner string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if l, ok := m.held[key]; ok && now.Before(l.expiresAt) {
		return false, nil
	}

	m.held[key] = memoryLock{owner: owner, expiresAt: now.Add(ttl)}
	return true, nil
}

func (m *MemoryLocker) Release(_ context.Context, l *Lock) error {
	if l == nil {
		return ErrLockNotHeld
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.held[l.Key]
	if !ok || current.owner != l.Owner || !m.now().Before(current.expiresAt) {
		return ErrLockNotHeld
	}

	delete(m.held, l.Key)
	return nil
}
