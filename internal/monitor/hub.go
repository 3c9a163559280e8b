package monitor

import "sync"

const subscriberBuffer = 16

// hub fans events out to subscriber channels without stalling the publisher. When a
// subscriber's buffer is full its oldest event is discarded, so the most recent event
// is always delivered.
type hub[E any] struct {
	mu   sync.Mutex
	subs map[chan E]struct{}
}

func (h *hub[E]) subscribe() (<-chan E, func()) {
	ch := make(chan E, subscriberBuffer)

	h.mu.Lock()
	if h.subs == nil {
		h.subs = make(map[chan E]struct{})
	}
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// publish holds mu for the whole fan-out, so events reach each subscriber in
// publication order.
func (h *hub[E]) publish(e E) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for ch := range h.subs {
		for {
			select {
			case ch <- e:
			default:
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}
