package postgres

import (
	"context"
	stdsql "database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/csml-run/csml-engine/pkg/cerr"
	"github.com/csml-run/csml-engine/pkg/store"
)

// BotVersionStore implements store.BotVersions against the `bot_versions`
// table: immutable compiled-bot snapshots, one row per version.
type BotVersionStore struct {
	db *stdsql.DB
}

func NewBotVersionStore(c *Client) *BotVersionStore { return &BotVersionStore{db: c.db} }

func (s *BotVersionStore) Create(ctx context.Context, botID string, blob []byte, engineVersion string) (string, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bot_versions (id, bot_id, bot_blob, engine_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)`,
		id, botID, blob, engineVersion, now,
	)
	if err != nil {
		return "", cerr.Wrap(cerr.KindStorage, err, "create bot version")
	}
	return id, nil
}

func (s *BotVersionStore) GetLast(ctx context.Context, botID string) (*store.BotVersionRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, bot_id, bot_blob, engine_version, created_at, updated_at
		FROM bot_versions WHERE bot_id = $1 ORDER BY created_at DESC LIMIT 1`,
		botID,
	)
	v, err := scanBotVersion(row)
	if err == stdsql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, cerr.Wrap(cerr.KindStorage, err, "get last bot version")
	}
	return v, nil
}

func (s *BotVersionStore) GetByVersionID(ctx context.Context, versionID, botID string) (*store.BotVersionRow, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, bot_id, bot_blob, engine_version, created_at, updated_at
		FROM bot_versions WHERE id = $1 AND bot_id = $2`,
		versionID, botID,
	)
	v, err := scanBotVersion(row)
	if err == stdsql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, cerr.Wrap(cerr.KindStorage, err, "get bot version by id")
	}
	return v, nil
}

func scanBotVersion(row *stdsql.Row) (*store.BotVersionRow, error) {
	var v store.BotVersionRow
	if err := row.Scan(&v.ID, &v.BotID, &v.Blob, &v.EngineVersion, &v.CreatedAt, &v.UpdatedAt); err != nil {
		return nil, err
	}
	return &v, nil
}
