package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultDeletionWait bounds how long a new message yields to an in-flight deletion
const DefaultDeletionWait = 500 * time.Millisecond

const deletionPollInterval = 10 * time.Millisecond

// recallTTL is how long a deletion that found no mapping is remembered
const recallTTL = 5 * time.Minute

type recallKey struct {
	chatID, messageID string
}

// Coordinator is the single mutual-exclusion domain shared by the relay
// pipeline and the deletion synchronizer. Deletions are serialized among
// themselves and announce themselves before queueing for the domain, so new
// messages back off briefly while one is in flight.
type Coordinator struct {
	domain    *semaphore.Weighted
	deletions *semaphore.Weighted
	deleting  atomic.Int32
	wait      time.Duration

	// Source messages deleted before any copy was mapped
	mu       sync.Mutex
	recalled map[recallKey]time.Time
	now      func() time.Time
}

// NewCoordinator creates a coordinator; wait <= 0 uses DefaultDeletionWait
func NewCoordinator(wait time.Duration) *Coordinator {
	if wait <= 0 {
		wait = DefaultDeletionWait
	}
	return &Coordinator{
		domain:    semaphore.NewWeighted(1),
		deletions: semaphore.NewWeighted(1),
		wait:      wait,
		recalled:  make(map[recallKey]time.Time),
		now:       time.Now,
	}
}

// MarkRecalled records a source message that was deleted while no mapping
// existed for it. Call it with the domain held.
func (c *Coordinator) MarkRecalled(chatID, messageID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for k, at := range c.recalled {
		if now.Sub(at) > recallTTL {
			delete(c.recalled, k)
		}
	}
	c.recalled[recallKey{chatID, messageID}] = now
}

// TakeRecalled reports whether the message was deleted before it could be
// relayed, and forgets it.
func (c *Coordinator) TakeRecalled(chatID, messageID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := recallKey{chatID, messageID}
	at, ok := c.recalled[key]
	if !ok {
		return false
	}
	delete(c.recalled, key)
	return c.now().Sub(at) <= recallTTL
}

// DeletionInFlight reports whether a deletion holds or awaits the domain
func (c *Coordinator) DeletionInFlight() bool {
	return c.deleting.Load() > 0
}

// AcquireForDeletion takes the deletion slot and then the domain.
// The returned func releases both.
func (c *Coordinator) AcquireForDeletion(ctx context.Context) (func(), error) {
	c.deleting.Add(1)
	if err := c.deletions.Acquire(ctx, 1); err != nil {
		c.deleting.Add(-1)
		return nil, err
	}
	if err := c.domain.Acquire(ctx, 1); err != nil {
		c.deletions.Release(1)
		c.deleting.Add(-1)
		return nil, err
	}

	var once atomic.Bool
	return func() {
		if !once.CompareAndSwap(false, true) {
			return
		}
		c.domain.Release(1)
		c.deletions.Release(1)
		c.deleting.Add(-1)
	}, nil
}

// AcquireForMessage waits up to the bounded deletion wait while a deletion
// is in flight, then takes the domain. The returned func releases it.
func (c *Coordinator) AcquireForMessage(ctx context.Context) (func(), error) {
	if c.DeletionInFlight() {
		if err := c.yieldToDeletions(ctx); err != nil {
			return nil, err
		}
	}
	if err := c.domain.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	var once atomic.Bool
	return func() {
		if once.CompareAndSwap(false, true) {
			c.domain.Release(1)
		}
	}, nil
}

func (c *Coordinator) yieldToDeletions(ctx context.Context) error {
	deadline := time.NewTimer(c.wait)
	defer deadline.Stop()
	ticker := time.NewTicker(deletionPollInterval)
	defer ticker.Stop()

	for c.DeletionInFlight() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return nil
		case <-ticker.C:
		}
	}
	return nil
}
