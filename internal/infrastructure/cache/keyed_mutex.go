package cache

import (
	"context"
	"sync"

	"github.com/erp/stockledger/internal/domain/shared"
)

// KeyedMutex is an in-process KeyedLocker. Each key gets its own slot that
// lives only while someone holds or waits for it, so unrelated keys never
// share a lock and the map does not grow with the key space.
//
// It only serializes callers within one process; multi-instance deployments
// use RedisLocker.
type KeyedMutex struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	sem  chan struct{}
	refs int
}

// NewKeyedMutex creates an empty KeyedMutex
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{slots: make(map[string]*slot)}
}

// Lock blocks until key is free or ctx is done
func (m *KeyedMutex) Lock(ctx context.Context, key string) (shared.UnlockFunc, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := m.acquire(key)

	select {
	case s.sem <- struct{}{}:
	case <-ctx.Done():
		m.release(key, s)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.sem
			m.release(key, s)
		})
	}, nil
}

// Len returns the number of keys currently held or awaited
func (m *KeyedMutex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.slots)
}

func (m *KeyedMutex) acquire(key string) *slot {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.slots[key]
	if !ok {
		s = &slot{sem: make(chan struct{}, 1)}
		m.slots[key] = s
	}
	s.refs++
	return s
}

func (m *KeyedMutex) release(key string, s *slot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.refs--
	if s.refs == 0 {
		delete(m.slots, key)
	}
}

var _ shared.KeyedLocker = (*KeyedMutex)(nil)
