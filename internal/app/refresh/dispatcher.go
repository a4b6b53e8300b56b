package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/transitclock/refresher/internal/domain"
	"github.com/transitclock/refresher/internal/ports/out/renderer"
)

const (
	DefaultWorkers       = 4
	DefaultSweepInterval = 15 * time.Minute
	defaultQueueSize     = 256
)

// Dispatcher runs cycles as a two-phase pipeline. Workers perform the I/O
// phase off the triggering goroutine; their results are handed to the
// renderer from the single goroutine running Run.
type Dispatcher struct {
	svc    *Service
	render renderer.Renderer
	log    zerolog.Logger

	// Workers bounds how many cycles run in parallel.
	Workers int
	// SweepInterval triggers every configured subscriber periodically.
	// Zero disables the sweep.
	SweepInterval time.Duration

	jobs    chan domain.SubscriberID
	results chan CycleResult
}

func NewDispatcher(svc *Service, render renderer.Renderer, log zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		svc:           svc,
		render:        render,
		log:           log.With().Str("component", "dispatcher").Logger(),
		Workers:       DefaultWorkers,
		SweepInterval: DefaultSweepInterval,
		jobs:          make(chan domain.SubscriberID, defaultQueueSize),
		results:       make(chan CycleResult, defaultQueueSize),
	}
}

// Trigger queues a cycle for id without blocking. It returns false when the
// queue is full; the trigger is dropped and a later one re-evaluates.
func (d *Dispatcher) Trigger(id domain.SubscriberID) bool {
	select {
	case d.jobs <- id:
		return true
	default:
		d.log.Warn().Stringer("subscriber", id).Msg("trigger queue full, dropping")
		return false
	}
}

// Run starts the workers and performs hand-offs until ctx is done.
// Wake-ups arriving on wakeups are turned into triggers.
func (d *Dispatcher) Run(ctx context.Context, wakeups <-chan domain.SubscriberID) error {
	workers := d.Workers
	if workers <= 0 {
		workers = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.work(ctx)
		}()
	}
	defer wg.Wait()

	var sweep <-chan time.Time
	if d.SweepInterval > 0 {
		t := time.NewTicker(d.SweepInterval)
		defer t.Stop()
		sweep = t.C
	}
	d.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case id := <-wakeups:
			d.Trigger(id)
		case <-sweep:
			d.sweep(ctx)
		case res := <-d.results:
			d.handOff(ctx, res)
		}
	}
}

func (d *Dispatcher) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-d.jobs:
			res := d.svc.RunCycle(ctx, id)
			select {
			case d.results <- res:
			case <-ctx.Done():
				return
			}
		}
	}
}

// handOff renders res unless its subscriber was removed after the cycle began.
func (d *Dispatcher) handOff(ctx context.Context, res CycleResult) {
	if res.Removed {
		return
	}
	var err error
	if !d.svc.guarded(res.Subscriber, res.generation, func() { err = d.render.Render(ctx, res.Subscriber, res.Rows) }) {
		d.log.Debug().Stringer("subscriber", res.Subscriber).Str("cycle_id", res.CycleID).Msg("subscriber removed, dropping result")
		return
	}
	if err != nil {
		d.log.Error().Err(err).Stringer("subscriber", res.Subscriber).Str("cycle_id", res.CycleID).Msg("render")
	}
}

func (d *Dispatcher) sweep(ctx context.Context) {
	ids, err := d.svc.Subscribers(ctx)
	if err != nil {
		d.log.Error().Err(err).Msg("list subscribers")
		return
	}
	for _, id := range ids {
		d.Trigger(id)
	}
	d.log.Debug().Int("subscribers", len(ids)).Msg("sweep")
}

// Teardown removes a subscriber and clears what the renderer shows for it.
func (d *Dispatcher) Teardown(ctx context.Context, id domain.SubscriberID) error {
	return d.svc.teardown(ctx, id, d.render.Clear)
}

// RunOnce runs a cycle synchronously and renders it from the caller's goroutine.
func (d *Dispatcher) RunOnce(ctx context.Context, id domain.SubscriberID) (CycleResult, error) {
	res := d.svc.RunCycle(ctx, id)
	if res.Removed {
		return res, nil
	}
	var err error
	if !d.svc.guarded(id, res.generation, func() { err = d.render.Render(ctx, id, res.Rows) }) {
		res.Removed = true
		res.Rows = nil
		res.Decision.NextWakeup = nil
	}
	return res, err
}
