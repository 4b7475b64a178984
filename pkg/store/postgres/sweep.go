package postgres

import (
	"context"
	stdsql "database/sql"

	"github.com/csml-run/csml-engine/pkg/cerr"
)

// Sweeper implements store.ExpiredDataSweeper, deleting every table's
// expires_at < now rows in one call (spec.md §4.5 delete_expired_data).
type Sweeper struct {
	db *stdsql.DB
}

func NewSweeper(c *Client) *Sweeper { return &Sweeper{db: c.db} }

var expirableTables = []string{"messages", "conversations", "memories", "states"}

func (s *Sweeper) DeleteExpiredData(ctx context.Context) error {
	for _, table := range expirableTables {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE expires_at IS NOT NULL AND expires_at < now()`); err != nil {
			return cerr.Wrap(cerr.KindStorage, err, "sweep expired rows from %s", table)
		}
	}
	return nil
}
