package postgres

import (
	"context"
	stdsql "database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/csml-run/csml-engine/pkg/cerr"
	"github.com/csml-run/csml-engine/pkg/store"
)

// ConversationStore implements store.Conversations against the
// `conversations` table (spec.md §6).
type ConversationStore struct {
	db *stdsql.DB
}

func NewConversationStore(c *Client) *ConversationStore { return &ConversationStore{db: c.db} }

func (s *ConversationStore) Create(ctx context.Context, client store.Client, flowID, stepID string, expiresAt *time.Time) (string, error) {
	id := uuid.New().String()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations
			(id, bot_id, channel_id, user_id, flow_id, step_id, status, last_interaction_at, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		id, client.BotID, client.ChannelID, client.UserID, flowID, stepID,
		string(store.ConversationOpen), now, now, now, expiresAt,
	)
	if err != nil {
		return "", cerr.Wrap(cerr.KindStorage, err, "create conversation")
	}
	return id, nil
}

func (s *ConversationStore) GetLatestOpen(ctx context.Context, client store.Client) (*store.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, bot_id, channel_id, user_id, flow_id, step_id, status,
		       last_interaction_at, created_at, updated_at, expires_at
		FROM conversations
		WHERE bot_id = $1 AND channel_id = $2 AND user_id = $3 AND status = $4
		ORDER BY last_interaction_at DESC
		LIMIT 1`,
		client.BotID, client.ChannelID, client.UserID, string(store.ConversationOpen),
	)
	c, err := scanConversation(row)
	if err == stdsql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, cerr.Wrap(cerr.KindStorage, err, "get latest open conversation")
	}
	return c, nil
}

func (s *ConversationStore) Update(ctx context.Context, id string, flowID, stepID *string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET flow_id = COALESCE($2, flow_id),
		    step_id = COALESCE($3, step_id),
		    last_interaction_at = now(),
		    updated_at = now()
		WHERE id = $1`,
		id, flowID, stepID,
	)
	if err != nil {
		return cerr.Wrap(cerr.KindStorage, err, "update conversation")
	}
	return requireRowAffected(res, "conversation", id)
}

func (s *ConversationStore) Close(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET status = $2, updated_at = now() WHERE id = $1`,
		id, string(store.ConversationClosed),
	)
	if err != nil {
		return cerr.Wrap(cerr.KindStorage, err, "close conversation")
	}
	return requireRowAffected(res, "conversation", id)
}

func (s *ConversationStore) CloseAll(ctx context.Context, client store.Client) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations
		SET status = $4, updated_at = now()
		WHERE bot_id = $1 AND channel_id = $2 AND user_id = $3 AND status = $5`,
		client.BotID, client.ChannelID, client.UserID,
		string(store.ConversationClosed), string(store.ConversationOpen),
	)
	if err != nil {
		return cerr.Wrap(cerr.KindStorage, err, "close all conversations")
	}
	return nil
}

func scanConversation(row *stdsql.Row) (*store.Conversation, error) {
	var c store.Conversation
	var status string
	if err := row.Scan(
		&c.ID, &c.Client.BotID, &c.Client.ChannelID, &c.Client.UserID,
		&c.FlowID, &c.StepID, &status,
		&c.LastInteractionAt, &c.CreatedAt, &c.UpdatedAt, &c.ExpiresAt,
	); err != nil {
		return nil, err
	}
	c.Status = store.ConversationStatus(status)
	return &c, nil
}

func requireRowAffected(res stdsql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return cerr.Wrap(cerr.KindStorage, err, "rows affected for %s %q", entity, id)
	}
	if n == 0 {
		return cerr.New(cerr.KindManager, "%s %q not found", entity, id)
	}
	return nil
}
