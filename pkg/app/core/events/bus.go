package events

import "sync"

// Bus fans committed events out to in-process subscribers.
// Handlers run synchronously on the publishing goroutine and must not block.
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]func(*Event)
}

func NewBus() *Bus {
	return &Bus{subs: make(map[int]func(*Event))}
}

// Subscribe registers fn and returns a function that removes it.
func (b *Bus) Subscribe(fn func(*Event)) (cancel func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
	}
}

// Publish delivers evs, in order, to every subscriber.
func (b *Bus) Publish(evs ...*Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ev := range evs {
		for _, fn := range b.subs {
			fn(ev)
		}
	}
}
