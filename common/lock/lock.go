package lock

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotObtained is returned when the key is already held by someone else
var ErrNotObtained = errors.New("lock not obtained")

// ErrLost is the cancellation cause of a KeepAlive context whose lease could not be refreshed
var ErrLost = errors.New("lock lost")

// Lock is a held lock
type Lock interface {
	// Refresh extends the lease by ttl. ErrNotObtained means the lease already lapsed.
	Refresh(ctx context.Context, ttl time.Duration) error
	Release(ctx context.Context) error
}

// Locker obtains short-lived exclusive locks keyed by string
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

// SubscriberKey is the lock key serializing audits of one subscriber
func SubscriberKey(subscriberID string) string {
	return "audit:subscriber:" + subscriberID
}

// KeepAlive refreshes lk every ttl/3 until stop is called. The returned context
// is cancelled with ErrLost as soon as a refresh fails, so work done under it
// never outlives the lease.
func KeepAlive(ctx context.Context, lk Lock, ttl time.Duration) (context.Context, func()) {
	held, cancel := context.WithCancelCause(ctx)

	interval := ttl / 3
	if interval <= 0 {
		interval = time.Millisecond
	}

	done := make(chan struct{})
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-held.Done():
				return
			case <-ticker.C:
				if err := lk.Refresh(held, ttl); err != nil {
					cancel(fmt.Errorf("%w: %w", ErrLost, err))
					return
				}
			}
		}
	}()

	return held, func() {
		close(done)
		<-stopped
		cancel(nil)
	}
}
