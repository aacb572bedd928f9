package eventbus

import (
	"sync"

	"codeberg.org/voss/memguard/internal/logger"
	"codeberg.org/voss/memguard/internal/pressure"
)

type subscriber struct {
	id int
	fn func(pressure.Event)
}

// Bus is a minimal synchronous publish/subscribe fan-out decoupling the
// classifier from any number of downstream observers.
type Bus struct {
	mu   sync.Mutex
	subs []subscriber
	next int
}

func New() *Bus {
	return &Bus{}
}

// Subscribe registers fn and returns its unsubscribe closure. Calling the
// closure more than once is safe and has no effect after the first call.
func (b *Bus) Subscribe(fn func(pressure.Event)) func() {
	b.mu.Lock()
	b.next++
	id := b.next
	b.subs = append(b.subs, subscriber{id: id, fn: fn})
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// Publish delivers ev to all current subscribers in subscription order.
// A panicking subscriber is logged and never affects the others or the
// publisher.
func (b *Bus) Publish(ev pressure.Event) {
	b.mu.Lock()
	snapshot := make([]subscriber, len(b.subs))
	copy(snapshot, b.subs)
	b.mu.Unlock()

	for _, s := range snapshot {
		b.deliver(s, ev)
	}
}

func (b *Bus) deliver(s subscriber, ev pressure.Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().
				Int("subscriber", s.id).
				Interface("panic", r).
				Msg("Subscriber panicked; continuing with remaining subscribers")
		}
	}()

	s.fn(ev)
}
