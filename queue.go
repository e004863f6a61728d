package driftsync

import (
	"sync"
	"time"
)

// SyncItem is one queued unit of sync work.
type SyncItem struct {
	ID           string     `json:"id"`
	Type         EntityType `json:"type"`
	Payload      Entity     `json:"payload"`
	Priority     Priority   `json:"priority"`
	LastModified time.Time  `json:"last_modified"`
	RetryCount   int        `json:"retry_count"`
	EnqueuedAt   time.Time  `json:"enqueued_at"`

	// nextAttempt delays failed items; zero means eligible immediately.
	nextAttempt time.Time
}

// syncQueue is an in-memory queue ordered by priority (high before medium
// before low) with (id, type) deduplication. Within equal priority,
// insertion order holds. Safe for concurrent use.
type syncQueue struct {
	mu    sync.Mutex
	items []*SyncItem
}

func newSyncQueue() *syncQueue {
	return &syncQueue{}
}

// Enqueue inserts the item in priority order, replacing any queued item
// with the same (id, type).
func (q *syncQueue) Enqueue(item *SyncItem) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.removeLocked(item.ID, item.Type)

	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now()
	}

	idx := len(q.items)
	for i, existing := range q.items {
		if existing.Priority < item.Priority {
			idx = i
			break
		}
	}
	q.items = append(q.items, nil)
	copy(q.items[idx+1:], q.items[idx:])
	q.items[idx] = item
}

// Requeue reinserts a failed item at the front of the queue, ahead of
// everything else. The item keeps its retry state.
func (q *syncQueue) Requeue(item *SyncItem) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.removeLocked(item.ID, item.Type)
	q.items = append([]*SyncItem{item}, q.items...)
}

// Dequeue removes and returns up to n items whose retry delay has elapsed
// at now. Items still backing off stay queued in place.
func (q *syncQueue) Dequeue(n int, now time.Time) []*SyncItem {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n <= 0 || len(q.items) == 0 {
		return nil
	}

	var batch []*SyncItem
	rest := q.items[:0]
	for _, item := range q.items {
		if len(batch) < n && !item.nextAttempt.After(now) {
			batch = append(batch, item)
			continue
		}
		rest = append(rest, item)
	}
	q.items = rest
	return batch
}

// Remove deletes the queued item with the given (id, type).
func (q *syncQueue) Remove(id string, entityType EntityType) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeLocked(id, entityType)
}

func (q *syncQueue) removeLocked(id string, entityType EntityType) bool {
	for i, item := range q.items {
		if item.ID == id && item.Type == entityType {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// Len returns the number of queued items.
func (q *syncQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Items returns a snapshot of the queued items in drain order.
func (q *syncQueue) Items() []*SyncItem {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*SyncItem, len(q.items))
	copy(out, q.items)
	return out
}

// conflictQueue holds diverged entities awaiting manual resolution.
// Re-detecting the same divergence replaces the queued entry but keeps
// its conflict id, so references held by callers stay valid.
type conflictQueue struct {
	mu    sync.Mutex
	items []*PendingConflict
}

func newConflictQueue() *conflictQueue {
	return &conflictQueue{}
}

// Add queues the conflict, replacing any entry for the same entity.
func (q *conflictQueue) Add(c *PendingConflict) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, existing := range q.items {
		if existing.EntityID == c.EntityID && existing.Type == c.Type {
			c.ID = existing.ID
			q.items[i] = c
			return
		}
	}
	q.items = append(q.items, c)
}

// Take removes and returns the conflict with the given id.
func (q *conflictQueue) Take(id string) (*PendingConflict, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for i, c := range q.items {
		if c.ID == id {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return c, true
		}
	}
	return nil, false
}

// Len returns the number of pending conflicts.
func (q *conflictQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Items returns a snapshot of the pending conflicts.
func (q *conflictQueue) Items() []*PendingConflict {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*PendingConflict, len(q.items))
	copy(out, q.items)
	return out
}
