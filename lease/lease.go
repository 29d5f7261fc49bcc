// Package lease guards the one-stream-per-client slot across processes.
package lease

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrHeld = errors.New("lease is held by another owner")

type Lease interface {
	Key() string
	Release(ctx context.Context) error
}

// Locker hands out exclusive, expiring leases on string keys. Acquire returns
// ErrHeld when another owner holds an unexpired lease on key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, error)
}

type memoryEntry struct {
	token   string
	expires time.Time
}

// MemoryLocker is the in-process Locker used when no Redis is configured.
type MemoryLocker struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{entries: map[string]memoryEntry{}, now: time.Now}
}

func (l *MemoryLocker) Acquire(_ context.Context, key string, ttl time.Duration) (Lease, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if e, ok := l.entries[key]; ok && now.Before(e.expires) {
		return nil, ErrHeld
	}
	token := uuid.NewString()
	l.entries[key] = memoryEntry{token: token, expires: now.Add(ttl)}
	return &memoryLease{locker: l, key: key, token: token}, nil
}

type memoryLease struct {
	locker *MemoryLocker
	key    string
	token  string
}

func (m *memoryLease) Key() string { return m.key }

func (m *memoryLease) Release(context.Context) error {
	m.locker.mu.Lock()
	defer m.locker.mu.Unlock()
	if e, ok := m.locker.entries[m.key]; ok && e.token == m.token {
		delete(m.locker.entries, m.key)
	}
	return nil
}
