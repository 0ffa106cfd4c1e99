package locks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultTTL           = 30 * time.Second
	DefaultWait          = 5 * time.Second
	DefaultRetryInterval = 100 * time.Millisecond
)

var (
	ErrLockTimeout = errors.New("timed out waiting for lock")
	ErrLockNotHeld = errors.New("lock not held")
)

// Lock is a held lock. Owner distinguishes this holder from whoever takes
// the key after the TTL lapses.
type Lock struct {
	Key        string
	Owner      string
	AcquiredAt time.Time
	TTL        time.Duration
}

// Locker is a mutual-exclusion lock keyed by name with automatic expiry.
type Locker interface {
	// Acquire blocks up to wait for the key, retrying at the locker's
	// interval. It returns ErrLockTimeout when the wait elapses.
	Acquire(ctx context.Context, key string, ttl, wait time.Duration) (*Lock, error)
	// Release drops the lock if it is still held by l. Releasing a lock
	// that expired or was taken by someone else returns ErrLockNotHeld.
	Release(ctx context.Context, l *Lock) error
}

// RefreshKey is the lock key for one (user, provider) pair.
func RefreshKey(userID uint, provider string) string {
	return fmt.Sprintf("token_refresh:%d:%s", userID, provider)
}

type tryFunc func(ctx context.Context, key, owner string, ttl time.Duration) (bool, error)

// spin calls try until it succeeds, fails, the wait elapses or ctx ends.
func spin(ctx context.Context, try tryFunc, key string, ttl, wait, interval time.Duration) (*Lock, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if interval <= 0 {
		interval = DefaultRetryInterval
	}

	owner := uuid.NewString()
	deadline := time.Now().Add(wait)

	for {
		ok, err := try(ctx, key, owner, ttl)
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return &Lock{Key: key, Owner: owner, AcquiredAt: time.Now(), TTL: ttl}, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, ErrLockTimeout
		}

		timer := time.NewTimer(min(interval, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}
