package viewstore

import (
	"context"
	"sync"
	"time"

	"github.com/transitclock/refresher/internal/domain"
	clockport "github.com/transitclock/refresher/internal/ports/out/clock"
)

// View is the last rendered state of a subscriber.
type View struct {
	Rows       []domain.Row
	RenderedAt time.Time
}

// Store is a renderer.Renderer that keeps the latest rows per subscriber so
// that the HTTP adapter can serve them. It is safe for concurrent use.
type Store struct {
	clk clockport.Clock

	mu sync.RWMutex
	m  map[domain.SubscriberID]View
}

func NewStore(clk clockport.Clock) *Store {
	return &Store{
		clk: clk,
		m:   make(map[domain.SubscriberID]View),
	}
}

func (s *Store) Render(ctx context.Context, id domain.SubscriberID, rows []domain.Row) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[id] = View{Rows: append([]domain.Row(nil), rows...), RenderedAt: s.clk.Now()}
	return nil
}

func (s *Store) Clear(ctx context.Context, id domain.SubscriberID) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, id)
	return nil
}

// Get returns the last view rendered for id.
func (s *Store) Get(id domain.SubscriberID) (View, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[id]
	return v, ok
}
