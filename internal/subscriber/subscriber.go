// Package subscriber implements the TCP subscriber lifecycle of spec
// §4.5/§4.6: accept connections, register a bounded per-subscriber queue,
// write matching envelopes to the socket until it fails or the process
// shuts down.
package subscriber

import (
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/route-beacon/bgpmon-filter/internal/metrics"
)

// Envelope is the payload fanned out to subscribers. Defined here (rather
// than imported from internal/relay) to avoid a relay<->subscriber import
// cycle — relay is the package that wires both together.
type Envelope struct {
	Seq uint64
	Raw []byte
}

// Subscriber is one connected client: its bounded queue, and an alive
// flag the handler clears on exit so the worker's fanout pass can skip a
// subscriber that's already tearing down.
type Subscriber struct {
	ID    uint64
	Queue chan Envelope
	alive atomic.Bool
}

func newSubscriber(id uint64, queueLen int) *Subscriber {
	s := &Subscriber{ID: id, Queue: make(chan Envelope, queueLen)}
	s.alive.Store(true)
	return s
}

func (s *Subscriber) Alive() bool  { return s.alive.Load() }
func (s *Subscriber) markDead()    { s.alive.Store(false) }

// Registry is the mutex-guarded set of currently connected subscribers.
// The filter/dispatch worker takes the lock for the duration of one
// fanout pass; the acceptor and handlers take it briefly to
// register/deregister. This is the only lock subscriber state needs,
// matching spec §5's "registry → subscriber-queue" ordering (handlers
// never acquire the registry while holding their own queue).
type Registry struct {
	mu       sync.Mutex
	nextID   uint64
	byID     map[uint64]*Subscriber
	queueLen int
}

func NewRegistry(queueLen int) *Registry {
	return &Registry{byID: make(map[uint64]*Subscriber), queueLen: queueLen}
}

// Add registers a new subscriber and returns it.
func (r *Registry) Add() *Subscriber {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	s := newSubscriber(r.nextID, r.queueLen)
	r.byID[s.ID] = s
	metrics.SubscribersConnected.Set(float64(len(r.byID)))
	return s
}

// Remove deregisters a subscriber by id.
func (r *Registry) Remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
	metrics.SubscribersConnected.Set(float64(len(r.byID)))
}

// Fanout attempts a non-blocking enqueue of env on every alive
// subscriber's queue; a full queue is a drop for that subscriber, never a
// block for the caller (spec §4.4's slow-consumer policy).
func (r *Registry) Fanout(env Envelope) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.byID {
		if !s.Alive() {
			continue
		}
		select {
		case s.Queue <- env:
		default:
			metrics.SubscriberDropsTotal.WithLabelValues(subscriberLabel(s.ID)).Inc()
		}
	}
}

// Count returns the number of currently registered subscribers, for
// debug output / tests.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

func subscriberLabel(id uint64) string {
	return "sub-" + strconv.FormatUint(id, 10)
}
