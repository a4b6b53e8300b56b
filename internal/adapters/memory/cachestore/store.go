package cachestore

import (
	"context"
	"sync"

	"github.com/transitclock/refresher/internal/domain"
)

// Store is an in-memory implementation of cachestore.Store.
// Records are copied on the way in and out. It is safe for concurrent use.
type Store struct {
	mu sync.RWMutex
	m  map[domain.SubscriberID][]byte
}

func NewStore() *Store {
	return &Store{
		m: make(map[domain.SubscriberID][]byte),
	}
}

func (s *Store) Load(ctx context.Context, id domain.SubscriberID) ([]byte, bool, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.m[id]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), b...), true, nil
}

func (s *Store) Save(ctx context.Context, id domain.SubscriberID, data []byte) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[id] = append([]byte(nil), data...)
	return nil
}

func (s *Store) Delete(ctx context.Context, id domain.SubscriberID) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, id)
	return nil
}
