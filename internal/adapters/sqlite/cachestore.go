package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/transitclock/refresher/internal/domain"
)

// CacheStore is a SQLite implementation of cachestore.Store.
type CacheStore struct {
	db *DB
}

func NewCacheStore(db *DB) *CacheStore {
	return &CacheStore{db: db}
}

func (s *CacheStore) Load(ctx context.Context, id domain.SubscriberID) ([]byte, bool, error) {
	var payload []byte
	err := s.db.conn.QueryRowContext(ctx, `SELECT payload FROM estimate_cache WHERE subscriber_id = ?`, int64(id)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

func (s *CacheStore) Save(ctx context.Context, id domain.SubscriberID, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	return s.db.exec(ctx, `
		INSERT INTO estimate_cache (subscriber_id, payload, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (subscriber_id) DO UPDATE SET
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, int64(id), data, time.Now().Unix())
}

func (s *CacheStore) Delete(ctx context.Context, id domain.SubscriberID) error {
	return s.db.exec(ctx, `DELETE FROM estimate_cache WHERE subscriber_id = ?`, int64(id))
}
