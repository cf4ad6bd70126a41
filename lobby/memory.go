/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package lobby

import (
	"context"
	"errors"
	"sync"
	"time"
)

type memoryDocument struct {
	fields     map[string][]string
	createdAt  time.Time
	lastActive time.Time
}

// MemoryStore holds session documents in process memory, so each
// key is its own isolated session until the process exits or the
// document is purged.
type MemoryStore struct {
	mu     sync.Mutex
	docs   map[string]*memoryDocument
	broker *Broker
	closed bool

	now func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:   make(map[string]*memoryDocument),
		broker: NewBroker(),
		now:    time.Now,
	}
}

// Create allocates a key that does not collide with an existing document.
func (s *MemoryStore) Create(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", ErrClosed
	}

	for {
		key := NewKey()
		if _, exists := s.docs[key]; exists {
			continue
		}

		now := s.now()
		s.docs[key] = &memoryDocument{
			fields:     make(map[string][]string),
			createdAt:  now,
			lastActive: now,
		}

		return key, nil
	}
}

func (s *MemoryStore) Get(ctx context.Context, key string) (Document, bool, error) {
	if err := ctx.Err(); err != nil {
		return Document{}, false, err
	}
	if key == "" {
		return Document{}, false, errors.New("session key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Document{}, false, ErrClosed
	}

	doc, ok := s.docs[key]
	if !ok {
		return Document{Key: key}, false, nil
	}
	doc.lastActive = s.now()

	return s.snapshotLocked(key, doc), true, nil
}

func (s *MemoryStore) Update(ctx context.Context, key string, muts ...Mutation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return errors.New("session key is required")
	}
	if err := ValidateMutations(muts); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}

	now := s.now()
	doc, ok := s.docs[key]
	if !ok {
		doc = &memoryDocument{createdAt: now}
		s.docs[key] = doc
	}
	doc.fields = ApplyMutations(doc.fields, muts...)
	doc.lastActive = now

	s.broker.Publish(s.snapshotLocked(key, doc))

	return nil
}

func (s *MemoryStore) Subscribe(ctx context.Context, key string, fn func(Document)) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if key == "" {
		return nil, errors.New("session key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	current := Document{Key: key}
	if doc, ok := s.docs[key]; ok {
		doc.lastActive = s.now()
		current = s.snapshotLocked(key, doc)
	}

	return s.broker.Subscribe(key, current, fn), nil
}

// Purge removes documents idle since before cutoff. A document with live
// subscribers is in use and counts as active now.
func (s *MemoryStore) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	now := s.now()
	purged := 0
	for key, doc := range s.docs {
		if s.broker.Subscribers(key) > 0 {
			doc.lastActive = now
			continue
		}
		if doc.lastActive.Before(cutoff) {
			delete(s.docs, key)
			purged++
		}
	}

	return purged, nil
}

// Close rejects further requests. Existing subscriptions stay registered
// but receive nothing new.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true

	return nil
}

func (s *MemoryStore) snapshotLocked(key string, doc *memoryDocument) Document {
	return Document{Key: key, Fields: doc.fields}.clone()
}
