package inproc

import (
	"errors"
	"sync"

	"focus_sched/internal/domain"
)

var ErrSubscriberQueueFull = errors.New("subscriber queue is full")

// Bus fans progress events out to every registered subscriber. Publish never
// blocks; a subscriber that falls behind loses events.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]chan domain.Progress
	buffer int
}

func New(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{
		subs:   make(map[string]chan domain.Progress),
		buffer: buffer,
	}
}

func (b *Bus) Register(name string) <-chan domain.Progress {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[name]; ok {
		return ch
	}
	ch := make(chan domain.Progress, b.buffer)
	b.subs[name] = ch
	return ch
}

func (b *Bus) Unregister(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subs[name]
	if !ok {
		return
	}
	delete(b.subs, name)
	close(ch)
}

// Publish delivers p to every subscriber with room in its queue and reports
// ErrSubscriberQueueFull if any subscriber was skipped.
func (b *Bus) Publish(p domain.Progress) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var err error
	for _, ch := range b.subs {
		select {
		case ch <- p:
		default:
			err = ErrSubscriberQueueFull
		}
	}
	return err
}
