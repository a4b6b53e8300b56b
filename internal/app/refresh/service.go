package refresh

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/transitclock/refresher/internal/domain"
	"github.com/transitclock/refresher/internal/platform/metrics"
	"github.com/transitclock/refresher/internal/ports/out/cachestore"
	clockport "github.com/transitclock/refresher/internal/ports/out/clock"
	"github.com/transitclock/refresher/internal/ports/out/credstore"
	"github.com/transitclock/refresher/internal/ports/out/wakeup"
)

// DefaultMissingConfigRetry is the re-check delay for an unconfigured subscriber.
const DefaultMissingConfigRetry = 15 * time.Second

// DefaultPastDueRetry keeps the earliest departure as the wake-up even when
// it has already passed.
const DefaultPastDueRetry time.Duration = 0

// Wake-up reasons recorded in metrics.
const (
	wakeupUnconfigured = "unconfigured"
	wakeupDeparture    = "departure"
)

// Service runs refresh cycles for subscribers.
//
// Cycles for different subscribers share no mutable state. Cycles for the
// same subscriber may overlap; the cache write is a wholesale overwrite so
// the last writer wins.
type Service struct {
	creds   credstore.Store
	cache   cachestore.Store
	wake    wakeup.Scheduler
	fetcher *Fetcher
	clk     clockport.Clock
	log     zerolog.Logger

	Metrics            *metrics.Metrics
	Decider            Decider
	Engine             ScheduleEngine
	MissingConfigRetry time.Duration

	newCycleID func() string

	mu          sync.Mutex
	subscribers map[domain.SubscriberID]*subscriberState
}

// subscriberState serialises removal against the side effects of cycles.
// gen is bumped by every teardown.
type subscriberState struct {
	mu  sync.Mutex
	gen uint64
}

func NewService(creds credstore.Store, cache cachestore.Store, wake wakeup.Scheduler, fetcher *Fetcher, clk clockport.Clock, log zerolog.Logger) *Service {
	return &Service{
		creds:              creds,
		cache:              cache,
		wake:               wake,
		fetcher:            fetcher,
		clk:                clk,
		log:                log.With().Str("component", "refresh").Logger(),
		Decider:            Decider{Mode: StalenessFirst},
		Engine:             ScheduleEngine{PastDueRetry: DefaultPastDueRetry},
		MissingConfigRetry: DefaultMissingConfigRetry,
		newCycleID:         uuid.NewString,
		subscribers:        make(map[domain.SubscriberID]*subscriberState),
	}
}

func (s *Service) state(id domain.SubscriberID) *subscriberState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.subscribers[id]
	if !ok {
		st = &subscriberState{}
		s.subscribers[id] = st
	}
	return st
}

func (s *Service) generation(id domain.SubscriberID) uint64 {
	st := s.state(id)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.gen
}

// guarded runs fn only if id has not been torn down since gen was read.
// Teardown of id waits for fn to return.
func (s *Service) guarded(id domain.SubscriberID, gen uint64, fn func()) bool {
	st := s.state(id)
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.gen != gen {
		return false
	}
	fn()
	return true
}

// RunCycle runs one refresh cycle for id: decide staleness, fetch and
// persist when stale, then recompute the schedule from the stored record.
// Every failure is contained and logged; the result always carries the rows
// of whatever the cache holds afterwards.
func (s *Service) RunCycle(ctx context.Context, id domain.SubscriberID) CycleResult {
	gen := s.generation(id)
	res := CycleResult{Subscriber: id, CycleID: s.newCycleID(), Outcome: metrics.OutcomeFresh, generation: gen}
	log := s.log.With().Stringer("subscriber", id).Str("cycle_id", res.CycleID).Logger()
	now := s.clk.Now()

	cached, _, err := s.cache.Load(ctx, id)
	if err != nil {
		log.Error().Err(err).Msg("load cache")
		cached = nil
	}
	stale, why := s.Decider.Check(cached, now)
	if why != nil && !errors.Is(why, errEmptyCache) {
		s.Metrics.CacheDecodeFailed()
		log.Warn().Err(why).Msg("cached estimates unreadable, refreshing")
	}
	res.Decision.NeedsImmediateRefresh = stale

	if stale {
		set, err := s.fetch(ctx, log, id, gen, now)
		switch {
		case errors.Is(err, ErrMissingConfiguration):
			res.Outcome = metrics.OutcomeUnconfigured
		case errors.Is(err, ErrUpstreamUnavailable):
			res.Outcome = metrics.OutcomeUpstreamError
			log.Warn().Err(err).Msg("keeping previous estimates")
		case err != nil:
			res.Outcome = metrics.OutcomeStoreError
			log.Error().Err(err).Msg("fetch")
		default:
			var perr error
			if !s.guarded(id, gen, func() { perr = s.persist(ctx, id, set) }) {
				return s.removed(log, res)
			}
			if perr != nil {
				res.Outcome = metrics.OutcomeStoreError
				log.Error().Err(perr).Msg("save cache")
			} else {
				res.Outcome = metrics.OutcomeRefreshed
				log.Info().Int("estimates", len(set)).Msg("estimates refreshed")
			}
		}
	}

	if s.generation(id) != gen {
		return s.removed(log, res)
	}
	sched, ok := s.schedule(ctx, log, id, now)
	if ok {
		res.Rows = sched.Rows
		res.Decision.NextWakeup = sched.NextWakeup
		if sched.NextWakeup != nil {
			at := *sched.NextWakeup
			if !s.guarded(id, gen, func() { s.requestWakeup(ctx, log, id, at, wakeupDeparture) }) {
				return s.removed(log, res)
			}
		}
	}

	s.Metrics.Cycle(res.Outcome)
	return res
}

func (s *Service) removed(log zerolog.Logger, res CycleResult) CycleResult {
	log.Info().Msg("subscriber removed during cycle, discarding result")
	res.Removed = true
	res.Rows = nil
	res.Decision.NextWakeup = nil
	return res
}

func (s *Service) fetch(ctx context.Context, log zerolog.Logger, id domain.SubscriberID, gen uint64, now time.Time) (domain.EstimateSet, error) {
	creds, ok, err := s.creds.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		log.Info().Dur("retry_in", s.MissingConfigRetry).Msg("no configuration, checking again later")
		s.guarded(id, gen, func() {
			s.requestWakeup(ctx, log, id, now.Add(s.MissingConfigRetry), wakeupUnconfigured)
		})
		return nil, ErrMissingConfiguration
	}
	return s.fetcher.Fetch(ctx, creds)
}

func (s *Service) persist(ctx context.Context, id domain.SubscriberID, set domain.EstimateSet) error {
	data, err := EncodeEstimateSet(set)
	if err != nil {
		return err
	}
	return s.cache.Save(ctx, id, data)
}

// schedule reloads the record so that a write from this or a racing cycle is
// picked up. ok=false means no schedule update this cycle.
func (s *Service) schedule(ctx context.Context, log zerolog.Logger, id domain.SubscriberID, now time.Time) (Schedule, bool) {
	data, found, err := s.cache.Load(ctx, id)
	if err != nil {
		log.Error().Err(err).Msg("reload cache")
		return Schedule{}, false
	}
	if !found {
		return Schedule{}, true
	}
	set, err := DecodeEstimateSet(data)
	if err != nil {
		s.Metrics.CacheDecodeFailed()
		log.Warn().Err(err).Msg("cannot schedule from cache")
		return Schedule{}, false
	}
	sched, err := s.Engine.Compute(set, now)
	if err != nil {
		s.Metrics.CacheDecodeFailed()
		log.Warn().Err(err).Msg("cannot schedule from cache")
		return Schedule{}, false
	}
	return sched, true
}

func (s *Service) requestWakeup(ctx context.Context, log zerolog.Logger, id domain.SubscriberID, at time.Time, reason string) {
	if err := s.wake.ScheduleAt(ctx, id, at); err != nil {
		log.Error().Err(err).Time("at", at).Msg("schedule wake-up")
		return
	}
	s.Metrics.WakeupScheduled(reason)
	log.Debug().Time("at", at).Str("reason", reason).Msg("wake-up scheduled")
}

// Configure stores the upstream configuration of a subscriber.
func (s *Service) Configure(ctx context.Context, id domain.SubscriberID, in ConfigInput) error {
	base := domain.NormalizeBaseURL(in.URL)
	if err := validateBaseURL(base); err != nil {
		return &Error{
			Status:  422,
			Code:    "VALIDATION_ERROR",
			Message: "invalid url",
			Details: map[string]any{"url": err.Error()},
		}
	}
	return s.creds.Save(ctx, id, domain.Credentials{
		BaseURL:  base,
		Username: in.Username,
		Password: in.Password,
	})
}

func validateBaseURL(raw string) error {
	if raw == "" {
		return errors.New("must be non-empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return errors.New("must be an absolute http(s) URL")
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("must be an absolute http(s) URL")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return errors.New("must not carry a query or fragment")
	}
	return nil
}

// Config returns the stored configuration of a subscriber.
func (s *Service) Config(ctx context.Context, id domain.SubscriberID) (domain.Credentials, error) {
	creds, ok, err := s.creds.Load(ctx, id)
	if err != nil {
		return domain.Credentials{}, err
	}
	if !ok {
		return domain.Credentials{}, &Error{
			Status:  404,
			Code:    "NOT_CONFIGURED",
			Message: "No configuration exists for this subscriber.",
		}
	}
	return creds, nil
}

// Subscribers lists every configured subscriber.
func (s *Service) Subscribers(ctx context.Context) ([]domain.SubscriberID, error) {
	return s.creds.List(ctx)
}

// Teardown releases every piece of state held for id. Cycles still in
// flight for id discard their results.
func (s *Service) Teardown(ctx context.Context, id domain.SubscriberID) error {
	return s.teardown(ctx, id, nil)
}

// teardown runs also, if set, under the same exclusion as the store deletes.
func (s *Service) teardown(ctx context.Context, id domain.SubscriberID, also func(context.Context, domain.SubscriberID) error) error {
	st := s.state(id)
	st.mu.Lock()
	defer st.mu.Unlock()
	st.gen++

	var errs []error
	if err := s.wake.Cancel(ctx, id); err != nil {
		errs = append(errs, err)
	}
	if err := s.cache.Delete(ctx, id); err != nil {
		errs = append(errs, err)
	}
	if err := s.creds.Delete(ctx, id); err != nil {
		errs = append(errs, err)
	}
	if also != nil {
		if err := also(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.log.Info().Stringer("subscriber", id).Msg("subscriber removed")
	return nil
}
