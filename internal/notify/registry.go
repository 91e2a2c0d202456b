package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-commerce-assembly/pkg/assembly"
)

// DefaultBuffer is the per-subscriber channel capacity. A subscriber
// that falls this far behind starts losing notifications and must
// resync through the query interface.
const DefaultBuffer = 16

// Subscriber is one live notification channel for an owner. The
// broadcast side writes; the connection's sender loop reads Products.
type Subscriber struct {
	id      string
	ownerID string
	ch      chan *assembly.AssembledProduct
}

// ID returns the subscriber's unique identifier
func (s *Subscriber) ID() string { return s.id }

// OwnerID returns the owner this subscriber listens for
func (s *Subscriber) OwnerID() string { return s.ownerID }

// Products is the stream of assembled products for this subscriber
func (s *Subscriber) Products() <-chan *assembly.AssembledProduct { return s.ch }

// Registry maps owner IDs to their live subscribers. State is
// process-local: a client connected elsewhere must poll instead.
type Registry struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscriber]struct{}
	buffer int
}

// NewRegistry creates an empty subscription registry
func NewRegistry() *Registry {
	return &Registry{
		subs:   make(map[string]map[*Subscriber]struct{}),
		buffer: DefaultBuffer,
	}
}

// Subscribe registers a new subscriber for ownerID
func (r *Registry) Subscribe(ownerID string) *Subscriber {
	sub := &Subscriber{
		id:      uuid.New().String(),
		ownerID: ownerID,
		ch:      make(chan *assembly.AssembledProduct, r.buffer),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.subs[ownerID]
	if !ok {
		set = make(map[*Subscriber]struct{})
		r.subs[ownerID] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Unsubscribe removes the subscriber and closes its channel. Safe to
// call more than once.
func (r *Registry) Unsubscribe(sub *Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.subs[sub.ownerID]
	if !ok {
		return
	}
	if _, present := set[sub]; !present {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(r.subs, sub.ownerID)
	}
	close(sub.ch)
}

// Subscribers returns a snapshot of the current subscribers for ownerID
func (r *Registry) Subscribers(ownerID string) []*Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.subs[ownerID]
	if len(set) == 0 {
		return nil
	}
	out := make([]*Subscriber, 0, len(set))
	for sub := range set {
		out = append(out, sub)
	}
	return out
}

// send delivers to one subscriber with a bounded wait. Holding the
// read lock keeps Unsubscribe (and its channel close) out until the
// send resolves.
func (r *Registry) send(sub *Subscriber, product *assembly.AssembledProduct, timeout time.Duration) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.subs[sub.ownerID]
	if !ok {
		return false
	}
	if _, present := set[sub]; !present {
		return false
	}

	select {
	case sub.ch <- product:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Count reports the number of live subscribers for ownerID
func (r *Registry) Count(ownerID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[ownerID])
}
