package postgres

import (
	"context"
	stdsql "database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/csml-run/csml-engine/pkg/cerr"
	"github.com/csml-run/csml-engine/pkg/store"
)

// MemoryStore implements store.Memories against the `memories` table,
// latest-write-wins per (client_key, key) via ON CONFLICT.
type MemoryStore struct {
	db *stdsql.DB
}

func NewMemoryStore(c *Client) *MemoryStore { return &MemoryStore{db: c.db} }

func (s *MemoryStore) Upsert(ctx context.Context, client store.Client, key, value string, expiresAt *time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO memories (id, client_key, key, value, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, now(), now(), $5)
		ON CONFLICT (client_key, key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = now(), expires_at = EXCLUDED.expires_at`,
		uuid.New().String(), client.Key(), key, value, expiresAt,
	)
	if err != nil {
		return cerr.Wrap(cerr.KindStorage, err, "upsert memory")
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, client store.Client, key string) (*store.Memory, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, client_key, key, value, created_at, updated_at, expires_at
		FROM memories WHERE client_key = $1 AND key = $2`,
		client.Key(), key,
	)
	m, err := scanMemory(row, client)
	if err == stdsql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, cerr.Wrap(cerr.KindStorage, err, "get memory")
	}
	return m, nil
}

func (s *MemoryStore) GetAll(ctx context.Context, client store.Client) ([]store.Memory, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, client_key, key, value, created_at, updated_at, expires_at
		FROM memories WHERE client_key = $1 ORDER BY key`,
		client.Key(),
	)
	if err != nil {
		return nil, cerr.Wrap(cerr.KindStorage, err, "get all memories")
	}
	defer rows.Close()

	var out []store.Memory
	for rows.Next() {
		var m store.Memory
		var clientKey string
		if err := rows.Scan(&m.ID, &clientKey, &m.Key, &m.Value, &m.CreatedAt, &m.UpdatedAt, &m.ExpiresAt); err != nil {
			return nil, cerr.Wrap(cerr.KindStorage, err, "scan memory")
		}
		m.Client = client
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, cerr.Wrap(cerr.KindStorage, err, "iterate memories")
	}
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, client store.Client, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE client_key = $1 AND key = $2`, client.Key(), key)
	if err != nil {
		return cerr.Wrap(cerr.KindStorage, err, "delete memory")
	}
	return nil
}

func (s *MemoryStore) DeleteAll(ctx context.Context, client store.Client) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE client_key = $1`, client.Key())
	if err != nil {
		return cerr.Wrap(cerr.KindStorage, err, "delete all memories")
	}
	return nil
}

func scanMemory(row *stdsql.Row, client store.Client) (*store.Memory, error) {
	var m store.Memory
	var clientKey string
	if err := row.Scan(&m.ID, &clientKey, &m.Key, &m.Value, &m.CreatedAt, &m.UpdatedAt, &m.ExpiresAt); err != nil {
		return nil, err
	}
	m.Client = client
	return &m, nil
}
