package usecase

import (
	"sync"

	"github.com/eliteGoblin/focusd/focusgate/internal/domain"
)

// Broadcaster fans events out to subscribers. Delivery is synchronous and
// in subscription order; subscribers must not block.
type Broadcaster struct {
	mu   sync.RWMutex
	next int
	subs map[int]domain.Notifier
	ids  []int
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]domain.Notifier)}
}

// Subscribe registers n and returns a function that removes it.
func (b *Broadcaster) Subscribe(n domain.Notifier) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	b.subs[id] = n
	b.ids = append(b.ids, id)

	var once sync.Once
	return func() {
		once.Do(func() { b.unsubscribe(id) })
	}
}

func (b *Broadcaster) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subs, id)
	for i, v := range b.ids {
		if v == id {
			b.ids = append(b.ids[:i], b.ids[i+1:]...)
			break
		}
	}
}

// Notify delivers event to every current subscriber.
func (b *Broadcaster) Notify(event domain.Event) {
	b.mu.RLock()
	targets := make([]domain.Notifier, 0, len(b.ids))
	for _, id := range b.ids {
		targets = append(targets, b.subs[id])
	}
	b.mu.RUnlock()

	for _, n := range targets {
		n.Notify(event)
	}
}

var _ domain.Notifier = (*Broadcaster)(nil)
