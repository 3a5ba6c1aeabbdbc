package stream

import (
	"container/list"
	"encoding/json"
	"sync"
	"time"
)

// Event is one SSE event.
type Event struct {
	ID        int64
	Type      string
	Data      json.RawMessage
	Timestamp time.Time
}

// ReplayQueue keeps the most recent events so that clients reconnecting with
// Last-Event-ID receive what they missed.
type ReplayQueue struct {
	mu      sync.RWMutex
	events  *list.List
	maxSize int
}

// NewReplayQueue creates a queue holding at most maxSize events.
func NewReplayQueue(maxSize int) *ReplayQueue {
	if maxSize <= 0 {
		maxSize = 100
	}
	return &ReplayQueue{
		events:  list.New(),
		maxSize: maxSize,
	}
}

// Enqueue appends an event, evicting the oldest ones beyond capacity.
func (q *ReplayQueue) Enqueue(ev Event) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.events.PushBack(ev)
	for q.events.Len() > q.maxSize {
		q.events.Remove(q.events.Front())
	}
}

// Since returns the queued events with an ID greater than afterID, oldest
// first.
func (q *ReplayQueue) Since(afterID int64) []Event {
	q.mu.RLock()
	defer q.mu.RUnlock()

	var missed []Event
	for e := q.events.Front(); e != nil; e = e.Next() {
		ev := e.Value.(Event)
		if ev.ID > afterID {
			missed = append(missed, ev)
		}
	}
	return missed
}

// Len returns the number of queued events.
func (q *ReplayQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.events.Len()
}
