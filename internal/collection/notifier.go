package collection

import (
	"sync"
	"time"
)

// Notifier is told when the persisted collection changes.
type Notifier interface {
	NotifyCollectionChanged(modificationDate time.Time)
}

// NotifierFunc adapts a function to [Notifier].
type NotifierFunc func(modificationDate time.Time)

func (f NotifierFunc) NotifyCollectionChanged(modificationDate time.Time) { f(modificationDate) }

// Broadcaster fans change notifications out to subscribers. Sends never block:
// a subscriber whose buffer is full misses the notification.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[int]chan time.Time
	next int
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan time.Time)}
}

// Subscribe registers a channel with the given buffer. The returned func unsubscribes and
// closes the channel.
func (b *Broadcaster) Subscribe(buffer int) (<-chan time.Time, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan time.Time, buffer)
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
		})
	}
}

func (b *Broadcaster) NotifyCollectionChanged(modificationDate time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- modificationDate:
		default:
		}
	}
}
