// Package stream fans simulation events out to live subscribers, keyed by
// run id. It backs the SSE endpoints: the engine publishes, each connected
// client holds one subscription.
package stream

import (
	"errors"
	"sync"

	"github.com/kailiangshang/team-work/internal/sim"
)

var ErrSubscriberFull = errors.New("subscriber queue is full")

type subscriber struct {
	runID string
	ch    chan sim.Event
}

type Broker struct {
	mu     sync.RWMutex
	subs   map[int64]*subscriber
	nextID int64
	buffer int
}

func New(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broker{
		subs:   make(map[int64]*subscriber),
		buffer: buffer,
	}
}

// Subscribe registers interest in one run's events. The returned cancel
// func drops the subscription and closes the channel; it is safe to call
// more than once.
func (b *Broker) Subscribe(runID string) (<-chan sim.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	sub := &subscriber{runID: runID, ch: make(chan sim.Event, b.buffer)}
	b.subs[id] = sub

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if s, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(s.ch)
			}
		})
	}
	return sub.ch, cancel
}

// Publish delivers one event to every subscriber of its run. Slow
// subscribers are dropped rather than allowed to stall the run; the caller
// learns about the drop through the error.
func (b *Broker) Publish(ev sim.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var dropped bool
	for id, sub := range b.subs {
		if sub.runID != ev.RunID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			delete(b.subs, id)
			close(sub.ch)
			dropped = true
		}
	}
	if dropped {
		return ErrSubscriberFull
	}
	return nil
}

// Close terminates every subscription, ending a run's stream. Only
// subscribers of the given run are affected.
func (b *Broker) Close(runID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		if sub.runID == runID {
			delete(b.subs, id)
			close(sub.ch)
		}
	}
}
