// Package cachestore keeps estimate caches in Redis so that several
// refresher instances can share them.
package cachestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/transitclock/refresher/internal/domain"
)

// KeyPrefix namespaces cache records; the subscriber id is appended.
const KeyPrefix = "transitclock:estimates:"

// Config contains the Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Store is a Redis implementation of cachestore.Store. Records never expire:
// like every other backend they live until the subscriber is removed.
type Store struct {
	client *redis.Client
	logger zerolog.Logger
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", cfg.Addr, err)
	}

	logger.Info().Str("addr", cfg.Addr).Msg("redis cache store ready")
	return &Store{
		client: client,
		logger: logger.With().Str("component", "redis_cache").Logger(),
	}, nil
}

func key(id domain.SubscriberID) string {
	return KeyPrefix + id.String()
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Load(ctx context.Context, id domain.SubscriberID) ([]byte, bool, error) {
	data, err := s.client.Get(ctx, key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		s.logger.Debug().Err(err).Stringer("subscriber", id).Msg("get failed")
		return nil, false, err
	}
	return data, true, nil
}

func (s *Store) Save(ctx context.Context, id domain.SubscriberID, data []byte) error {
	if err := s.client.Set(ctx, key(id), data, 0).Err(); err != nil {
		s.logger.Debug().Err(err).Stringer("subscriber", id).Msg("set failed")
		return err
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id domain.SubscriberID) error {
	return s.client.Del(ctx, key(id)).Err()
}
