// Package feed carries "conversation changed" signals from message writers to
// subscribers. A signal carries no data: subscribers re-read from the store.
package feed

import (
	"context"
	"sync"
)

// Feed publishes and delivers change signals keyed by conversation id.
type Feed interface {
	Publish(ctx context.Context, conversationID string) error
	Subscribe(conversationID string) (<-chan struct{}, func())
}

type subscription struct {
	ch chan struct{}
}

// Broker is an in-process Feed. Signals for a subscriber that has not yet
// consumed the previous one are coalesced, so Publish never blocks.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[*subscription]struct{}
}

func NewBroker() *Broker {
	return &Broker{subs: make(map[string]map[*subscription]struct{})}
}

// Subscribe registers interest in conversationID. The returned cancel func is
// idempotent; after it returns the channel is closed and no longer signalled.
func (b *Broker) Subscribe(conversationID string) (<-chan struct{}, func()) {
	sub := &subscription{ch: make(chan struct{}, 1)}

	b.mu.Lock()
	room, ok := b.subs[conversationID]
	if !ok {
		room = make(map[*subscription]struct{})
		b.subs[conversationID] = room
	}
	room[sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if room, ok := b.subs[conversationID]; ok {
				delete(room, sub)
				if len(room) == 0 {
					delete(b.subs, conversationID)
				}
			}
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish signals every subscriber of conversationID.
func (b *Broker) Publish(_ context.Context, conversationID string) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs[conversationID] {
		notify(sub)
	}
	return nil
}

// PublishAll signals every subscriber of every conversation. It is used after
// a listener reconnects, when signals may have been lost.
func (b *Broker) PublishAll() {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, room := range b.subs {
		for sub := range room {
			notify(sub)
		}
	}
}

func notify(sub *subscription) {
	select {
	case sub.ch <- struct{}{}:
	default:
	}
}

// Subscribers returns the number of live subscriptions for conversationID.
func (b *Broker) Subscribers(conversationID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[conversationID])
}
