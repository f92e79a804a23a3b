// Package events carries task completion notices from the task runners to
// long-lived consumers such as the dev server.
package events

import (
	"sync"
	"time"

	"github.com/conneroisu/assetforge/internal/paths"
)

// Reload tells a browser how to apply a change.
type Reload string

const (
	ReloadFull Reload = "full"
	ReloadCSS  Reload = "css"
)

// ReloadFor returns the reload kind for outputs of category. Stylesheets are
// swapped in place; everything else reloads the page.
func ReloadFor(category paths.Category) Reload {
	if category == paths.Styles {
		return ReloadCSS
	}
	return ReloadFull
}

// Event reports one finished task run.
type Event struct {
	RunID    string
	Category paths.Category
	// Paths are the outputs that changed, relative to the build root.
	Paths    []string
	Reload   Reload
	Err      error
	Duration time.Duration
}

// Failed reports whether the run failed.
func (e Event) Failed() bool { return e.Err != nil }

// Broker fans events out to subscribers. Publish never blocks: a subscriber
// whose buffer is full misses the event.
type Broker struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	next   int
	closed bool
}

// NewBroker creates a broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[int]chan Event)}
}

// Subscribe registers a subscriber with the given buffer size. cancel
// unregisters it and closes the channel; it is safe to call more than once.
func (b *Broker) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch, func() {}
	}
	id := b.next
	b.next++
	b.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if c, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(c)
			}
		})
	}
}

// Publish delivers e to every subscriber with room for it. It returns the
// number of subscribers reached.
func (b *Broker) Publish(e Event) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, ch := range b.subs {
		select {
		case ch <- e:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribers returns the number of active subscribers.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close closes every subscriber channel. Later subscriptions receive a
// closed channel and later publishes reach nobody.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		close(ch)
		delete(b.subs, id)
	}
}
