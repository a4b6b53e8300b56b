package credstore

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/transitclock/refresher/internal/domain"
)

// Store is a Postgres implementation of credstore.Store.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Load(ctx context.Context, id domain.SubscriberID) (domain.Credentials, bool, error) {
	if s.pool == nil {
		return domain.Credentials{}, false, errors.New("nil postgres pool")
	}
	var c domain.Credentials
	err := s.pool.QueryRow(ctx, `
		SELECT base_url, username, password
		FROM subscriber_credentials
		WHERE subscriber_id = $1
	`, int64(id)).Scan(&c.BaseURL, &c.Username, &c.Password)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Credentials{}, false, nil
		}
		return domain.Credentials{}, false, err
	}
	return c, true, nil
}

func (s *Store) Save(ctx context.Context, id domain.SubscriberID, creds domain.Credentials) error {
	if s.pool == nil {
		return errors.New("nil postgres pool")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriber_credentials (subscriber_id, base_url, username, password, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (subscriber_id)
		DO UPDATE SET
			base_url = EXCLUDED.base_url,
			username = EXCLUDED.username,
			password = EXCLUDED.password,
			updated_at = EXCLUDED.updated_at
	`, int64(id), creds.BaseURL, creds.Username, creds.Password)
	return err
}

func (s *Store) Delete(ctx context.Context, id domain.SubscriberID) error {
	if s.pool == nil {
		return errors.New("nil postgres pool")
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM subscriber_credentials WHERE subscriber_id = $1`, int64(id))
	return err
}

func (s *Store) List(ctx context.Context) ([]domain.SubscriberID, error) {
	if s.pool == nil {
		return nil, errors.New("nil postgres pool")
	}
	rows, err := s.pool.Query(ctx, `SELECT subscriber_id FROM subscriber_credentials ORDER BY subscriber_id`)
	if err != nil {
		return nil, err
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, err
	}
	out := make([]domain.SubscriberID, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.SubscriberID(id))
	}
	return out, nil
}
