package credstore

import (
	"context"
	"sort"
	"sync"

	"github.com/transitclock/refresher/internal/domain"
)

// Store is an in-memory implementation of credstore.Store.
// It is safe for concurrent use.
type Store struct {
	mu sync.RWMutex
	m  map[domain.SubscriberID]domain.Credentials
}

func NewStore() *Store {
	return &Store{
		m: make(map[domain.SubscriberID]domain.Credentials),
	}
}

func (s *Store) Load(ctx context.Context, id domain.SubscriberID) (domain.Credentials, bool, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.m[id]
	return c, ok, nil
}

func (s *Store) Save(ctx context.Context, id domain.SubscriberID, creds domain.Credentials) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[id] = creds
	return nil
}

func (s *Store) Delete(ctx context.Context, id domain.SubscriberID) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, id)
	return nil
}

func (s *Store) List(ctx context.Context) ([]domain.SubscriberID, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.SubscriberID, 0, len(s.m))
	for id := range s.m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
