// Package timer is an in-process wake-up scheduler built on time.AfterFunc.
package timer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/transitclock/refresher/internal/domain"
	clockport "github.com/transitclock/refresher/internal/ports/out/clock"
)

type pending struct {
	timer *time.Timer
	seq   uint64
	at    time.Time
}

// Scheduler keeps at most one pending wake-up per subscriber and delivers
// fired wake-ups on C. It is safe for concurrent use.
type Scheduler struct {
	clk clockport.Clock
	log zerolog.Logger

	mu      sync.Mutex
	seq     uint64
	pending map[domain.SubscriberID]*pending

	fired     chan domain.SubscriberID
	done      chan struct{}
	closeOnce sync.Once
}

func NewScheduler(clk clockport.Clock, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		clk:     clk,
		log:     log.With().Str("component", "wakeup").Logger(),
		pending: make(map[domain.SubscriberID]*pending),
		fired:   make(chan domain.SubscriberID, 64),
		done:    make(chan struct{}),
	}
}

// C delivers the subscriber of every wake-up that fires.
func (s *Scheduler) C() <-chan domain.SubscriberID { return s.fired }

// ScheduleAt replaces any pending wake-up for id. Instants in the past fire
// immediately.
func (s *Scheduler) ScheduleAt(ctx context.Context, id domain.SubscriberID, at time.Time) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.pending[id]; ok {
		p.timer.Stop()
	}
	s.seq++
	seq := s.seq
	delay := at.Sub(s.clk.Now())
	if delay < 0 {
		delay = 0
	}
	s.pending[id] = &pending{
		seq:   seq,
		at:    at,
		timer: time.AfterFunc(delay, func() { s.fire(id, seq) }),
	}
	return nil
}

// Cancel drops the pending wake-up for id, if any.
func (s *Scheduler) Cancel(ctx context.Context, id domain.SubscriberID) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.pending[id]; ok {
		p.timer.Stop()
		delete(s.pending, id)
	}
	return nil
}

// Pending returns the instant of the pending wake-up for id.
func (s *Scheduler) Pending(id domain.SubscriberID) (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[id]
	if !ok {
		return time.Time{}, false
	}
	return p.at, true
}

func (s *Scheduler) fire(id domain.SubscriberID, seq uint64) {
	s.mu.Lock()
	p, ok := s.pending[id]
	if !ok || p.seq != seq {
		// Superseded or cancelled after the timer had already started firing.
		s.mu.Unlock()
		return
	}
	delete(s.pending, id)
	s.mu.Unlock()

	select {
	case s.fired <- id:
	case <-s.done:
	}
}

// Close stops every pending timer and releases blocked deliveries.
func (s *Scheduler) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		for id, p := range s.pending {
			p.timer.Stop()
			delete(s.pending, id)
		}
		s.mu.Unlock()
		close(s.done)
	})
}
