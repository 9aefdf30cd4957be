package lock

import (
	"context"
	"sync"
	"time"
)

// LocalLocker is an in-process Locker for single-instance deployments and tests
type LocalLocker struct {
	mu    sync.Mutex
	held  map[string]localEntry
	token uint64
	now   func() time.Time
}

type localEntry struct {
	token     uint64
	expiresAt time.Time
}

// NewLocalLocker creates an in-process locker
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{
		held: make(map[string]localEntry),
		now:  time.Now,
	}
}

// Obtain takes the lock without waiting. An expired holder is replaced.
func (l *LocalLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if entry, ok := l.held[key]; ok && now.Before(entry.expiresAt) {
		return nil, ErrNotObtained
	}

	l.token++
	l.held[key] = localEntry{token: l.token, expiresAt: now.Add(ttl)}
	return &localLock{locker: l, key: key, token: l.token}, nil
}

type localLock struct {
	locker *LocalLocker
	key    string
	token  uint64
}

func (l *localLock) Refresh(ctx context.Context, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()

	now := l.locker.now()
	entry, ok := l.locker.held[l.key]
	if !ok || entry.token != l.token || !now.Before(entry.expiresAt) {
		return ErrNotObtained
	}
	entry.expiresAt = now.Add(ttl)
	l.locker.held[l.key] = entry
	return nil
}

func (l *localLock) Release(ctx context.Context) error {
	l.locker.mu.Lock()
	defer l.locker.mu.Unlock()

	// Only the current holder may release
	if entry, ok := l.locker.held[l.key]; ok && entry.token == l.token {
		delete(l.locker.held, l.key)
	}
	return nil
}
