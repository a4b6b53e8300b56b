package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"

	memcachestore "github.com/transitclock/refresher/internal/adapters/memory/cachestore"
	memcredstore "github.com/transitclock/refresher/internal/adapters/memory/credstore"
	postgres "github.com/transitclock/refresher/internal/adapters/postgres"
	pgcachestore "github.com/transitclock/refresher/internal/adapters/postgres/cachestore"
	pgcredstore "github.com/transitclock/refresher/internal/adapters/postgres/credstore"
	rediscachestore "github.com/transitclock/refresher/internal/adapters/redis/cachestore"
	"github.com/transitclock/refresher/internal/adapters/sqlite"
	"github.com/transitclock/refresher/internal/adapters/upstream"
	"github.com/transitclock/refresher/internal/app/refresh"
	"github.com/transitclock/refresher/internal/platform/config"
	"github.com/transitclock/refresher/internal/platform/metrics"
	cachestoreport "github.com/transitclock/refresher/internal/ports/out/cachestore"
	clockport "github.com/transitclock/refresher/internal/ports/out/clock"
	credstoreport "github.com/transitclock/refresher/internal/ports/out/credstore"
	"github.com/transitclock/refresher/internal/ports/out/wakeup"
)

type stores struct {
	creds   credstoreport.Store
	cache   cachestoreport.Store
	closers []func() error
}

func (s *stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// openStores builds the credential and cache stores for the configured
// backends. Postgres and SQLite handles are shared when both stores use them.
func openStores(ctx context.Context, sc config.StorageConfig) (*stores, error) {
	st := &stores{}
	var (
		pool *pgxpool.Pool
		db   *sqlite.DB
	)
	openPool := func() (*pgxpool.Pool, error) {
		if pool != nil {
			return pool, nil
		}
		p, err := postgres.NewPool(ctx, sc.DatabaseURL, postgres.PoolOptions{})
		if err != nil {
			return nil, err
		}
		if err := postgres.Migrate(ctx, p); err != nil {
			p.Close()
			return nil, err
		}
		pool = p
		st.closers = append(st.closers, func() error { p.Close(); return nil })
		return p, nil
	}
	openSQLite := func() (*sqlite.DB, error) {
		if db != nil {
			return db, nil
		}
		d, err := sqlite.Open(ctx, sc.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		db = d
		st.closers = append(st.closers, d.Close)
		return d, nil
	}

	switch sc.Backend {
	case config.BackendPostgres:
		p, err := openPool()
		if err != nil {
			return nil, errors.Join(err, st.Close())
		}
		st.creds = pgcredstore.NewStore(p)
	case config.BackendSQLite:
		d, err := openSQLite()
		if err != nil {
			return nil, errors.Join(err, st.Close())
		}
		st.creds = sqlite.NewCredentialStore(d)
	default:
		st.creds = memcredstore.NewStore()
	}

	switch sc.EffectiveCacheBackend() {
	case config.BackendPostgres:
		p, err := openPool()
		if err != nil {
			return nil, errors.Join(err, st.Close())
		}
		st.cache = pgcachestore.NewStore(p)
	case config.BackendSQLite:
		d, err := openSQLite()
		if err != nil {
			return nil, errors.Join(err, st.Close())
		}
		st.cache = sqlite.NewCacheStore(d)
	case config.BackendRedis:
		rs, err := rediscachestore.New(ctx, rediscachestore.Config{
			Addr:     sc.Redis.Addr,
			Password: sc.Redis.Password,
			DB:       sc.Redis.DB,
		}, logger)
		if err != nil {
			return nil, errors.Join(fmt.Errorf("redis cache: %w", err), st.Close())
		}
		st.cache = rs
		st.closers = append(st.closers, rs.Close)
	default:
		st.cache = memcachestore.NewStore()
	}

	logger.Info().
		Str("credentials", sc.Backend).
		Str("cache", sc.EffectiveCacheBackend()).
		Msg("storage ready")
	return st, nil
}

// newService wires the refresh service from configuration.
func newService(st *stores, wake wakeup.Scheduler, clk clockport.Clock, m *metrics.Metrics) *refresh.Service {
	rc := cfg.Refresh
	fetcher := refresh.NewFetcher(upstream.NewClient(rc.UpstreamTimeout, "transitclock/1"), logger, m)
	retries := uint64(rc.UpstreamRetries)
	fetcher.NewBackOff = func() backoff.BackOff { return refresh.DefaultBackOff(retries) }

	svc := refresh.NewService(st.creds, st.cache, wake, fetcher, clk, logger)
	svc.Metrics = m
	svc.Decider = refresh.Decider{Mode: refresh.StalenessMode(rc.StalenessMode)}
	svc.Engine = refresh.ScheduleEngine{PastDueRetry: rc.PastDueRetry}
	svc.MissingConfigRetry = rc.MissingConfigRetry
	return svc
}
