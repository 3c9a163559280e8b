package connection

import (
	"reflect"
	"sync"
)

// Listener receives every inbound envelope. An error or panic is logged and does not
// stop delivery to other listeners.
type Listener interface {
	HandleMessage(env Envelope) error
}

type funcListener struct {
	fn func(Envelope) error
}

func (l *funcListener) HandleMessage(env Envelope) error {
	return l.fn(env)
}

// NewListener wraps fn. Each call returns a distinct Listener.
func NewListener(fn func(Envelope) error) Listener {
	return &funcListener{fn: fn}
}

// listenerSet is a set keyed by listener identity. Delivery iterates a snapshot, so
// listeners may add or remove listeners while being called.
type listenerSet struct {
	mu    sync.RWMutex
	items []Listener
}

// isComparable reports whether l can be used as a set key.
func isComparable(l Listener) bool {
	return l != nil && reflect.TypeOf(l).Comparable()
}

func (s *listenerSet) add(l Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range s.items {
		if item == l {
			return false
		}
	}
	s.items = append(s.items, l)
	return true
}

func (s *listenerSet) remove(l Listener) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, item := range s.items {
		if item == l {
			s.items = append(s.items[:i:i], s.items[i+1:]...)
			return true
		}
	}
	return false
}

func (s *listenerSet) snapshot() []Listener {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Listener, len(s.items))
	copy(out, s.items)
	return out
}

func (s *listenerSet) len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
