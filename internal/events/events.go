// Package events fans generation progress out to live subscribers.
package events

import (
	"sync"
	"time"
)

// Event kinds.
const (
	KindComponentSaved      = "component_saved"
	KindGenerationStarted   = "generation_started"
	KindGenerationCompleted = "generation_completed"
	KindComponentUpdated    = "component_updated"
	// KindSnapshot opens every stream with the session's persisted state.
	KindSnapshot = "snapshot"
)

const bufferSize = 64

// Event is one progress notification for a session.
type Event struct {
	Kind      string    `json:"kind"`
	SessionID string    `json:"sessionId"`
	Component string    `json:"component,omitempty"`
	Source    string    `json:"source,omitempty"`
	Saved     int       `json:"saved,omitempty"`
	Expected  int       `json:"expected,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Set on snapshots only.
	Status     string   `json:"status,omitempty"`
	Components []string `json:"components,omitempty"`
	// Done marks a snapshot of a session that will produce no more
	// generation events. The server closes the stream right after it.
	Done bool `json:"done,omitempty"`
}

// Publisher is the write side of the bus.
type Publisher interface {
	Publish(Event)
}

// Bus delivers events to subscribers of the event's session. Delivery never
// blocks the publisher; a subscriber whose buffer is full misses the event
// and is expected to reconcile by reading the artifact store.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]chan Event
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]map[int]chan Event)}
}

// Subscribe registers for events of sessionID. The returned cancel func
// removes the subscription and closes the channel; it is safe to call more
// than once.
func (b *Bus) Subscribe(sessionID string) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	ch := make(chan Event, bufferSize)
	if b.subs[sessionID] == nil {
		b.subs[sessionID] = make(map[int]chan Event)
	}
	b.subs[sessionID][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs[sessionID], id)
			if len(b.subs[sessionID]) == 0 {
				delete(b.subs, sessionID)
			}
			close(ch)
		})
	}
	return ch, cancel
}

// Publish delivers ev to every current subscriber of its session.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	// Holding the read lock keeps cancel from closing a channel mid-send.
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[ev.SessionID] {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribers returns the number of live subscriptions for sessionID.
func (b *Bus) Subscribers(sessionID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[sessionID])
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(Event) {}
