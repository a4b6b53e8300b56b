package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/transitclock/refresher/internal/domain"
)

// CredentialStore is a SQLite implementation of credstore.Store.
type CredentialStore struct {
	db *DB
}

func NewCredentialStore(db *DB) *CredentialStore {
	return &CredentialStore{db: db}
}

func (s *CredentialStore) Load(ctx context.Context, id domain.SubscriberID) (domain.Credentials, bool, error) {
	var c domain.Credentials
	err := s.db.conn.QueryRowContext(ctx, `
		SELECT base_url, username, password
		FROM subscriber_credentials
		WHERE subscriber_id = ?
	`, int64(id)).Scan(&c.BaseURL, &c.Username, &c.Password)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Credentials{}, false, nil
	}
	if err != nil {
		return domain.Credentials{}, false, err
	}
	return c, true, nil
}

func (s *CredentialStore) Save(ctx context.Context, id domain.SubscriberID, creds domain.Credentials) error {
	return s.db.exec(ctx, `
		INSERT INTO subscriber_credentials (subscriber_id, base_url, username, password, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (subscriber_id) DO UPDATE SET
			base_url = excluded.base_url,
			username = excluded.username,
			password = excluded.password,
			updated_at = excluded.updated_at
	`, int64(id), creds.BaseURL, creds.Username, creds.Password, time.Now().Unix())
}

func (s *CredentialStore) Delete(ctx context.Context, id domain.SubscriberID) error {
	return s.db.exec(ctx, `DELETE FROM subscriber_credentials WHERE subscriber_id = ?`, int64(id))
}

func (s *CredentialStore) List(ctx context.Context) ([]domain.SubscriberID, error) {
	rows, err := s.db.conn.QueryContext(ctx, `SELECT subscriber_id FROM subscriber_credentials ORDER BY subscriber_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SubscriberID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, domain.SubscriberID(id))
	}
	return out, rows.Err()
}
