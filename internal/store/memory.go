package store

import (
	"sync"
)

// DefaultCapacity is the number of events kept when none is configured.
const DefaultCapacity = 500

const subscriberBuffer = 100

// MemoryStore is an in-memory implementation of [Store].
//
// Events are kept in a ring of fixed capacity; once full, each new event
// evicts the oldest. Subscribers receive events via buffered channels (buffer
// size 100). Sends are non-blocking; if a subscriber's buffer is full, the
// event is dropped for that subscriber to keep the poll loop moving.
type MemoryStore struct {
	mu     sync.RWMutex
	ring   []Event
	next   int // index the next event is written to
	filled bool
	seq    uint64

	subscribers map[chan Event]struct{}
	subMu       sync.RWMutex
}

// NewMemoryStore creates a [MemoryStore] holding at most capacity events.
// A capacity of zero or less selects [DefaultCapacity].
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemoryStore{
		ring:        make([]Event, capacity),
		subscribers: make(map[chan Event]struct{}),
	}
}

// Add records ev, evicting the oldest event when the store is full, and
// notifies all subscribers.
func (m *MemoryStore) Add(ev Event) Event {
	m.mu.Lock()
	m.seq++
	ev.Seq = m.seq
	m.ring[m.next] = ev
	m.next++
	if m.next == len(m.ring) {
		m.next = 0
		m.filled = true
	}
	m.mu.Unlock()

	m.notifySubscribers(ev)
	return ev
}

// Recent returns up to limit of the newest events in insertion order.
func (m *MemoryStore) Recent(limit int) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := m.next
	if m.filled {
		n = len(m.ring)
	}
	if limit <= 0 || limit > n {
		limit = n
	}

	events := make([]Event, limit)
	// walk backwards from the newest
	idx := m.next
	for i := limit - 1; i >= 0; i-- {
		idx--
		if idx < 0 {
			idx = len(m.ring) - 1
		}
		events[i] = m.ring[idx]
	}
	return events
}

// Len returns the number of retained events.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.filled {
		return len(m.ring)
	}
	return m.next
}

// Subscribe creates a new subscription and returns a channel for receiving
// events.
//
// Caller must call [MemoryStore.Unsubscribe] when done to prevent resource leaks.
func (m *MemoryStore) Subscribe() <-chan Event {
	ch := make(chan Event, subscriberBuffer)

	m.subMu.Lock()
	m.subscribers[ch] = struct{}{}
	m.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel.
//
// Safe to call multiple times or with an unknown channel.
func (m *MemoryStore) Unsubscribe(ch <-chan Event) {
	m.subMu.Lock()
	defer m.subMu.Unlock()

	// find and delete the channel (need to convert to the right type)
	for subCh := range m.subscribers {
		if subCh == ch {
			delete(m.subscribers, subCh)
			close(subCh)
			break
		}
	}
}

// notifySubscribers sends ev to all active subscribers without blocking.
func (m *MemoryStore) notifySubscribers(ev Event) {
	m.subMu.RLock()
	defer m.subMu.RUnlock()

	for ch := range m.subscribers {
		select {
		case ch <- ev:
		default:
			// subscriber is slow, drop the event
		}
	}
}
