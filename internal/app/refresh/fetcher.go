package refresh

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/transitclock/refresher/internal/domain"
	"github.com/transitclock/refresher/internal/platform/metrics"
	"github.com/transitclock/refresher/internal/ports/out/transport"
)

// Upstream endpoint names used in logs and metrics.
const (
	EndpointForceRefresh = "force_refresh"
	EndpointLegs         = "legs"
	EndpointNext         = "next"
)

// Fetcher runs the upstream fetch sequence for one set of credentials.
// It has no side effects beyond the network calls.
type Fetcher struct {
	http    transport.Getter
	log     zerolog.Logger
	metrics *metrics.Metrics

	// NewBackOff returns the retry policy for the legs listing.
	// Each Fetch gets a fresh policy.
	NewBackOff func() backoff.BackOff
}

func NewFetcher(g transport.Getter, log zerolog.Logger, m *metrics.Metrics) *Fetcher {
	return &Fetcher{
		http:    g,
		log:     log.With().Str("component", "fetcher").Logger(),
		metrics: m,
		NewBackOff: func() backoff.BackOff {
			return DefaultBackOff(2)
		},
	}
}

// DefaultBackOff retries up to retries times with jittered exponential delays.
func DefaultBackOff(retries uint64) backoff.BackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     500 * time.Millisecond,
		RandomizationFactor: 0.2,
		Multiplier:          2,
		MaxInterval:         5 * time.Second,
		MaxElapsedTime:      30 * time.Second,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return backoff.WithMaxRetries(b, retries)
}

type legsResponse struct {
	Legs []json.RawMessage `json:"legs"`
}

type nextResponse struct {
	Estimates []json.RawMessage `json:"estimates"`
}

// Fetch asks upstream to refresh, lists the tracked legs and collects the
// next estimates of every leg. A failed legs listing returns
// ErrUpstreamUnavailable; a failed leg is skipped.
func (f *Fetcher) Fetch(ctx context.Context, creds domain.Credentials) (domain.EstimateSet, error) {
	base := domain.NormalizeBaseURL(creds.BaseURL)
	// Built per call: credentials may change between cycles.
	header := http.Header{}
	header.Set("Authorization", creds.BasicAuthorization())
	header.Set("Accept", "application/json")

	f.forceRefresh(ctx, base, header)

	legs, err := f.listLegs(ctx, base, header)
	if err != nil {
		return nil, err
	}

	set := domain.EstimateSet{}
	for _, leg := range legs {
		ests, err := f.nextEstimates(ctx, base, header, leg.ID)
		if err != nil {
			f.metrics.LegFailed()
			f.log.Warn().Err(err).Int("leg", int(leg.ID)).Msg("skipping leg")
			continue
		}
		for _, est := range ests {
			l := leg
			est.Leg = &l
			set = append(set, est)
		}
	}
	f.log.Debug().Int("legs", len(legs)).Int("estimates", len(set)).Msg("fetched estimates")
	return set, nil
}

// forceRefresh is fire-and-forget; its outcome never affects the sequence.
func (f *Fetcher) forceRefresh(ctx context.Context, base string, header http.Header) {
	resp, err := f.http.Get(ctx, base+"/api/trips/force_refresh", header)
	switch {
	case err != nil:
		f.metrics.Upstream(EndpointForceRefresh, "error")
		f.log.Debug().Err(err).Msg("force refresh failed")
	case !resp.OK():
		f.metrics.Upstream(EndpointForceRefresh, "status")
		f.log.Debug().Int("status", resp.StatusCode).Msg("force refresh rejected")
	default:
		f.metrics.Upstream(EndpointForceRefresh, "ok")
	}
}

func (f *Fetcher) listLegs(ctx context.Context, base string, header http.Header) ([]domain.Leg, error) {
	op := func() (transport.Response, error) {
		resp, err := f.http.Get(ctx, base+"/api/trips/", header)
		if err != nil {
			f.metrics.Upstream(EndpointLegs, "error")
			return transport.Response{}, err
		}
		if !resp.OK() {
			f.metrics.Upstream(EndpointLegs, "status")
			err := fmt.Errorf("status %d", resp.StatusCode)
			if resp.StatusCode < 500 {
				return transport.Response{}, backoff.Permanent(err)
			}
			return transport.Response{}, err
		}
		f.metrics.Upstream(EndpointLegs, "ok")
		return resp, nil
	}
	notify := func(err error, d time.Duration) {
		f.log.Info().Err(err).Dur("retry_in", d).Msg("legs listing failed, retrying")
	}
	resp, err := backoff.RetryNotifyWithData(op, backoff.WithContext(f.NewBackOff(), ctx), notify)
	if err != nil {
		return nil, fmt.Errorf("%w: list legs: %v", ErrUpstreamUnavailable, err)
	}

	var body legsResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("%w: decode legs: %v", ErrUpstreamUnavailable, err)
	}
	legs := make([]domain.Leg, 0, len(body.Legs))
	for i, raw := range body.Legs {
		var leg domain.Leg
		if err := json.Unmarshal(raw, &leg); err != nil {
			f.log.Warn().Err(err).Int("index", i).Msg("ignoring unusable leg")
			continue
		}
		legs = append(legs, leg)
	}
	return legs, nil
}

func (f *Fetcher) nextEstimates(ctx context.Context, base string, header http.Header, id domain.LegID) ([]domain.Estimate, error) {
	resp, err := f.http.Get(ctx, base+"/api/trips/"+strconv.Itoa(int(id))+"/next", header)
	if err != nil {
		f.metrics.Upstream(EndpointNext, "error")
		return nil, err
	}
	if !resp.OK() {
		f.metrics.Upstream(EndpointNext, "status")
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	f.metrics.Upstream(EndpointNext, "ok")

	var body nextResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return nil, fmt.Errorf("decode estimates: %w", err)
	}
	// A malformed element costs only itself, not the whole leg.
	ests := make([]domain.Estimate, 0, len(body.Estimates))
	for i, raw := range body.Estimates {
		var est domain.Estimate
		if err := json.Unmarshal(raw, &est); err != nil {
			f.log.Warn().Err(err).Int("leg", int(id)).Int("index", i).Msg("ignoring unusable estimate")
			continue
		}
		ests = append(ests, est)
	}
	return ests, nil
}
