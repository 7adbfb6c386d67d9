// Package notify translates engine outcomes into typed display events
// for the rendering layer. It owns identity and expiry but never
// renders anything; consumers display and dismiss by notification ID.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// DisplayDuration is how long a notification stays active unless the
// user dismisses it earlier.
const DisplayDuration = 3 * time.Second

// Kind classifies which surface an outcome concerns.
type Kind string

const (
	KindCart     Kind = "cart"
	KindWishlist Kind = "wishlist"
	KindGeneral  Kind = "general"
)

// Outcome is the success/error polarity of an event.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
)

// Notification is one display-ready event.
type Notification struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Outcome   Outcome   `json:"outcome"`
	Subject   string    `json:"subject,omitempty"` // item name or short context
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Emitter holds the ordered notification queue. Safe for concurrent
// use; one instance per engine.
type Emitter struct {
	mu    sync.Mutex
	queue []Notification
	subs  map[int]chan Notification
	nextS int

	now func() time.Time // test hook
}

// NewEmitter creates an empty emitter.
func NewEmitter() *Emitter {
	return &Emitter{
		subs: make(map[int]chan Notification),
		now:  time.Now,
	}
}

// Emit appends a display event with a generated identifier and expiry
// and fans it out to subscribers. Returns the created notification.
func (e *Emitter) Emit(kind Kind, outcome Outcome, subject, message string) Notification {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		Outcome:   outcome,
		Subject:   subject,
		Message:   message,
		ExpiresAt: e.now().Add(DisplayDuration),
	}
	e.queue = append(e.queue, n)

	for _, ch := range e.subs {
		select {
		case ch <- n:
		default: // slow consumer; it can catch up via Active
		}
	}
	return n
}

// Dismiss removes a notification by ID (user-initiated early
// dismissal). Unknown IDs are a no-op.
func (e *Emitter) Dismiss(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for i, n := range e.queue {
		if n.ID == id {
			e.queue = append(e.queue[:i], e.queue[i+1:]...)
			return true
		}
	}
	return false
}

// Active prunes expired notifications and returns the remaining queue
// in emission order.
func (e *Emitter) Active() []Notification {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	kept := e.queue[:0]
	for _, n := range e.queue {
		if n.ExpiresAt.After(now) {
			kept = append(kept, n)
		}
	}
	e.queue = kept

	out := make([]Notification, len(e.queue))
	copy(out, e.queue)
	return out
}

// Subscribe registers a consumer channel. The returned cancel func
// must be called on unmount; emissions never block on a consumer.
func (e *Emitter) Subscribe() (<-chan Notification, func()) {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextS
	e.nextS++
	ch := make(chan Notification, 16)
	e.subs[id] = ch

	cancel := func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if _, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}
