package chat

import (
	"slices"
	"sync"
)

type Handler func(Event)

type subscription struct {
	fn Handler
}

// Broadcaster fans events out to subscribers synchronously, in registration
// order. There is no buffering or replay.
type Broadcaster struct {
	mu   sync.Mutex
	subs []*subscription
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// Subscribe registers fn and returns a func that removes it. Calling the
// returned func more than once is a no-op.
func (b *Broadcaster) Subscribe(fn Handler) (unsubscribe func()) {
	s := &subscription{fn: fn}
	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if i := slices.Index(b.subs, s); i >= 0 {
				b.subs = slices.Delete(b.subs, i, i+1)
			}
		})
	}
}

// Publish delivers e to a snapshot of the current subscribers, so handlers may
// subscribe or unsubscribe while it runs.
func (b *Broadcaster) Publish(e Event) {
	b.mu.Lock()
	snapshot := slices.Clone(b.subs)
	b.mu.Unlock()

	for _, s := range snapshot {
		s.fn(e)
	}
}

func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
