package cachestore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/transitclock/refresher/internal/domain"
)

// Store is a Postgres implementation of cachestore.Store.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Load(ctx context.Context, id domain.SubscriberID) ([]byte, bool, error) {
	if s.pool == nil {
		return nil, false, errors.New("nil postgres pool")
	}
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM estimate_cache WHERE subscriber_id = $1`, int64(id)).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return payload, true, nil
}

func (s *Store) Save(ctx context.Context, id domain.SubscriberID, data []byte) error {
	if s.pool == nil {
		return errors.New("nil postgres pool")
	}
	if data == nil {
		data = []byte{}
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO estimate_cache (subscriber_id, payload, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (subscriber_id)
		DO UPDATE SET
			payload = EXCLUDED.payload,
			updated_at = EXCLUDED.updated_at
	`, int64(id), data)
	return err
}

func (s *Store) Delete(ctx context.Context, id domain.SubscriberID) error {
	if s.pool == nil {
		return errors.New("nil postgres pool")
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM estimate_cache WHERE subscriber_id = $1`, int64(id))
	return err
}
