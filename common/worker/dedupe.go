package worker

import (
	"context"
	"sync"
	"time"
)

// ClaimStore is the subset of the Redis client used for event claims
type ClaimStore interface {
	SetNX(ctx context.Context, key, value string, expiry time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
}

// Deduper makes event handling at-most-once per event ID within a TTL.
// Without a store it falls back to an in-process set.
type Deduper struct {
	store  ClaimStore
	prefix string
	ttl    time.Duration

	mu   sync.Mutex
	seen map[string]time.Time
	now  func() time.Time
}

// NewDeduper creates a deduper. store may be nil.
func NewDeduper(store ClaimStore, prefix string, ttl time.Duration) *Deduper {
	return &Deduper{
		store:  store,
		prefix: prefix,
		ttl:    ttl,
		seen:   make(map[string]time.Time),
		now:    time.Now,
	}
}

func (d *Deduper) key(eventID string) string {
	return d.prefix + eventID
}

// Claim reports whether the caller is the first to see eventID
func (d *Deduper) Claim(ctx context.Context, eventID string) (bool, error) {
	if d.store != nil {
		return d.store.SetNX(ctx, d.key(eventID), "1", d.ttl)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	if expires, ok := d.seen[eventID]; ok && now.Before(expires) {
		return false, nil
	}
	d.seen[eventID] = now.Add(d.ttl)
	return true, nil
}

// Release forgets a claim so the event can be retried
func (d *Deduper) Release(ctx context.Context, eventID string) error {
	if d.store != nil {
		return d.store.Delete(ctx, d.key(eventID))
	}

	d.mu.Lock()
	delete(d.seen, eventID)
	d.mu.Unlock()
	return nil
}
