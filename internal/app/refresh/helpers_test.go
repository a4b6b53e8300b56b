package refresh

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	memclock "github.com/transitclock/refresher/internal/adapters/memory/clock"
	memcachestore "github.com/transitclock/refresher/internal/adapters/memory/cachestore"
	memcredstore "github.com/transitclock/refresher/internal/adapters/memory/credstore"
	"github.com/transitclock/refresher/internal/domain"
	"github.com/transitclock/refresher/internal/ports/out/cachestore"
	"github.com/transitclock/refresher/internal/ports/out/transport"
	"github.com/transitclock/refresher/internal/ports/out/wakeup"
)

const testBase = "https://transit.example"

// fakeUpstream answers GETs from a route table and records every call.
type fakeUpstream struct {
	mu     sync.Mutex
	routes map[string]func() (transport.Response, error)
	calls  []string
	auth   []string
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{routes: make(map[string]func() (transport.Response, error))}
}

func (f *fakeUpstream) json(path string, status int, body string) {
	f.routes[testBase+path] = func() (transport.Response, error) {
		return transport.Response{StatusCode: status, Body: []byte(body)}, nil
	}
}

func (f *fakeUpstream) fail(path string) {
	f.routes[testBase+path] = func() (transport.Response, error) {
		return transport.Response{}, errors.New("connection reset")
	}
}

func (f *fakeUpstream) Get(ctx context.Context, url string, header http.Header) (transport.Response, error) {
	_ = ctx
	f.mu.Lock()
	f.calls = append(f.calls, url)
	f.auth = append(f.auth, header.Get("Authorization"))
	route, ok := f.routes[url]
	f.mu.Unlock()
	if !ok {
		return transport.Response{StatusCode: http.StatusNotFound}, nil
	}
	return route()
}

func (f *fakeUpstream) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// recordingScheduler keeps the pending wake-up per subscriber.
type recordingScheduler struct {
	mu       sync.Mutex
	pending  map[domain.SubscriberID]time.Time
	requests int
}

func newRecordingScheduler() *recordingScheduler {
	return &recordingScheduler{pending: make(map[domain.SubscriberID]time.Time)}
}

func (s *recordingScheduler) ScheduleAt(ctx context.Context, id domain.SubscriberID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[id] = at
	s.requests++
	return nil
}

func (s *recordingScheduler) Cancel(ctx context.Context, id domain.SubscriberID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, id)
	return nil
}

func (s *recordingScheduler) get(id domain.SubscriberID) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.pending[id]
	return at, ok
}

// recordingRenderer keeps the last rows per subscriber.
type recordingRenderer struct {
	mu       sync.Mutex
	rows     map[domain.SubscriberID][]domain.Row
	rendered chan domain.SubscriberID
}

func newRecordingRenderer() *recordingRenderer {
	return &recordingRenderer{
		rows:     make(map[domain.SubscriberID][]domain.Row),
		rendered: make(chan domain.SubscriberID, 16),
	}
}

func (r *recordingRenderer) Render(ctx context.Context, id domain.SubscriberID, rows []domain.Row) error {
	r.mu.Lock()
	r.rows[id] = rows
	r.mu.Unlock()
	r.rendered <- id
	return nil
}

func (r *recordingRenderer) Clear(ctx context.Context, id domain.SubscriberID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, id)
	return nil
}

func noRetry() backoff.BackOff { return &backoff.StopBackOff{} }

type harness struct {
	up    *fakeUpstream
	creds *memcredstore.Store
	cache *memcachestore.Store
	wake  *recordingScheduler
	clk   *memclock.ManualClock
	svc   *Service
}

func newHarness(t *testing.T, now time.Time) *harness {
	t.Helper()
	h := &harness{
		up:    newFakeUpstream(),
		creds: memcredstore.NewStore(),
		cache: memcachestore.NewStore(),
		wake:  newRecordingScheduler(),
		clk:   memclock.NewManualClock(now),
	}
	f := NewFetcher(h.up, zerolog.Nop(), nil)
	f.NewBackOff = noRetry
	h.svc = NewService(h.creds, h.cache, h.wake, f, h.clk, zerolog.Nop())
	return h
}

func mustParse(t *testing.T, s string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t.Fatalf("parse %q: %v", s, err)
	}
	return ts
}

// rebuild replaces the harness service with one using the given cache and
// scheduler; nil keeps the harness defaults.
func (h *harness) rebuild(cache cachestore.Store, wake wakeup.Scheduler) {
	if cache == nil {
		cache = h.cache
	}
	if wake == nil {
		wake = h.wake
	}
	f := NewFetcher(h.up, zerolog.Nop(), nil)
	f.NewBackOff = noRetry
	h.svc = NewService(h.creds, cache, wake, f, h.clk, zerolog.Nop())
}
