package shared

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// UnlockFunc releases a critical section acquired through KeyedLocker.
type UnlockFunc func()

// KeyedLocker serializes work per key. Different keys never contend.
//
// Lock blocks until the section for key is acquired or ctx is done.
// Implementations must not hold locks across unrelated keys.
type KeyedLocker interface {
	Lock(ctx context.Context, key string) (UnlockFunc, error)
}

// LockKey builds a namespaced critical-section key, e.g. LockKey("stock", item, warehouse).
func LockKey(namespace string, parts ...string) string {
	key := namespace
	for _, p := range parts {
		key += "|" + p
	}
	return key
}

// AcquireLock locks key on locker, giving up after timeout.
// Running out of time while the caller's ctx is still live yields ErrLockTimeout.
func AcquireLock(ctx context.Context, locker KeyedLocker, key string, timeout time.Duration) (UnlockFunc, error) {
	lockCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	unlock, err := locker.Lock(lockCtx, key)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s", ErrLockTimeout, key)
		}
		return nil, err
	}
	return unlock, nil
}
