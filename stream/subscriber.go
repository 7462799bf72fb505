package stream

import (
	"sync"
	"sync/atomic"
)

// Subscriber receives events from the topics it is on. Delivery never
// blocks the publisher: an event that does not fit the buffer is dropped
// and counted.
type Subscriber struct {
	id string
	ch chan *Event

	mu     sync.Mutex
	closed bool

	dropped atomic.Int64
}

// NewSubscriber creates a subscriber with the given buffer size.
func NewSubscriber(id string, bufferSize int) *Subscriber {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &Subscriber{id: id, ch: make(chan *Event, bufferSize)}
}

// ID returns the subscriber identifier.
func (s *Subscriber) ID() string { return s.id }

// C returns the event channel. It is closed when the subscriber is removed
// or the broker shuts down.
func (s *Subscriber) C() <-chan *Event { return s.ch }

// Dropped returns how many events were discarded on a full buffer.
func (s *Subscriber) Dropped() int64 { return s.dropped.Load() }

// send attempts a non-blocking delivery. The mutex orders it against Close
// so a send never hits a closed channel.
func (s *Subscriber) send(evt *Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- evt:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Close closes the event channel. Safe to call more than once.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}
