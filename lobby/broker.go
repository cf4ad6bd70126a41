/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package lobby

import (
	"sync"
)

// Broker fans document snapshots out to subscribers, keyed by session.
//
// Each subscriber keeps only the newest undelivered snapshot, so a slow
// subscriber never blocks Publish and never sees an older snapshot after
// a newer one.
type Broker struct {
	mu   sync.Mutex
	subs map[string]map[*subscriber]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[*subscriber]struct{}),
	}
}

type subscriber struct {
	fn func(Document)

	mu      sync.Mutex
	latest  Document
	pending bool

	wake chan struct{}
	done chan struct{}
}

// Subscribe registers fn for key and queues current as its first delivery.
// Callers must hold whatever lock orders current against concurrent publishes.
func (b *Broker) Subscribe(key string, current Document, fn func(Document)) func() {
	s := &subscriber{
		fn:   fn,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}

	b.mu.Lock()
	if b.subs[key] == nil {
		b.subs[key] = make(map[*subscriber]struct{})
	}
	b.subs[key][s] = struct{}{}
	b.mu.Unlock()

	s.offer(current)
	go s.run()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[key], s)
			if len(b.subs[key]) == 0 {
				delete(b.subs, key)
			}
			b.mu.Unlock()

			close(s.done)
		})
	}
}

// Publish queues doc for every subscriber of doc.Key.
func (b *Broker) Publish(doc Document) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for s := range b.subs[doc.Key] {
		s.offer(doc)
	}
}

// Keys returns every key with at least one live subscription.
func (b *Broker) Keys() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	keys := make([]string, 0, len(b.subs))
	for key := range b.subs {
		keys = append(keys, key)
	}

	return keys
}

// Subscribers returns the number of live subscriptions for key.
func (b *Broker) Subscribers(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.subs[key])
}

func (s *subscriber) offer(doc Document) {
	s.mu.Lock()
	s.latest = doc.clone()
	s.pending = true
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		s.mu.Lock()
		if !s.pending {
			s.mu.Unlock()
			continue
		}
		doc := s.latest
		s.pending = false
		s.mu.Unlock()

		select {
		case <-s.done:
			return
		default:
		}

		s.fn(doc)
	}
}
