package postgres

import (
	"context"
	stdsql "database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/csml-run/csml-engine/pkg/cerr"
	"github.com/csml-run/csml-engine/pkg/store"
)

// StateStore implements store.States against the `states` table, unique
// on (client_key, type, key).
type StateStore struct {
	db *stdsql.DB
}

func NewStateStore(c *Client) *StateStore { return &StateStore{db: c.db} }

func (s *StateStore) SetItems(ctx context.Context, client store.Client, typ string, items map[string]string, expiresAt *time.Time) error {
	if len(items) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cerr.Wrap(cerr.KindStorage, err, "begin set state items tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO states (id, client_key, type, key, value, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, now(), now(), $6)
		ON CONFLICT (client_key, type, key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = now(), expires_at = EXCLUDED.expires_at`)
	if err != nil {
		return cerr.Wrap(cerr.KindStorage, err, "prepare set state items")
	}
	defer stmt.Close()

	ck := client.Key()
	for key, value := range items {
		if _, err := stmt.ExecContext(ctx, uuid.New().String(), ck, typ, key, value, expiresAt); err != nil {
			return cerr.Wrap(cerr.KindStorage, err, "set state item %q", key)
		}
	}

	if err := tx.Commit(); err != nil {
		return cerr.Wrap(cerr.KindStorage, err, "commit set state items tx")
	}
	return nil
}

func (s *StateStore) Get(ctx context.Context, client store.Client, typ, key string) (*store.StateKey, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, client_key, type, key, value, created_at, updated_at, expires_at
		FROM states WHERE client_key = $1 AND type = $2 AND key = $3`,
		client.Key(), typ, key,
	)
	var st store.StateKey
	var clientKey string
	err := row.Scan(&st.ID, &clientKey, &st.Type, &st.Key, &st.Value, &st.CreatedAt, &st.UpdatedAt, &st.ExpiresAt)
	if err == stdsql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, cerr.Wrap(cerr.KindStorage, err, "get state key")
	}
	st.Client = client
	return &st, nil
}

func (s *StateStore) Delete(ctx context.Context, client store.Client, typ, key string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM states WHERE client_key = $1 AND type = $2 AND key = $3`,
		client.Key(), typ, key,
	)
	if err != nil {
		return cerr.Wrap(cerr.KindStorage, err, "delete state key")
	}
	return nil
}
