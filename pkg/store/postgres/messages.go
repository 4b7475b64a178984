package postgres

import (
	"context"
	stdsql "database/sql"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/csml-run/csml-engine/pkg/cerr"
	"github.com/csml-run/csml-engine/pkg/store"
)

// MessageStore implements store.Messages against the `messages` table.
type MessageStore struct {
	db *stdsql.DB
}

func NewMessageStore(c *Client) *MessageStore { return &MessageStore{db: c.db} }

// AddBulk inserts msgs with contiguous message_order starting after the
// conversation's current max, matching spec.md §4.4's bulk-append rule.
func (s *MessageStore) AddBulk(ctx context.Context, conversationID string, msgs []store.Message, interactionOrder int, direction store.Direction, expiresAt *time.Time) error {
	if len(msgs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return cerr.Wrap(cerr.KindStorage, err, "begin add messages tx")
	}
	defer tx.Rollback() //nolint:errcheck

	var maxOrder stdsql.NullInt64
	if err := tx.QueryRowContext(ctx, `
		SELECT MAX(message_order) FROM messages WHERE conversation_id = $1`,
		conversationID,
	).Scan(&maxOrder); err != nil {
		return cerr.Wrap(cerr.KindStorage, err, "read max message_order")
	}
	base := 0
	if maxOrder.Valid {
		base = int(maxOrder.Int64) + 1
	}

	now := time.Now().UTC()
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO messages
			(id, conversation_id, flow_id, step_id, direction, content_type, payload,
			 message_order, interaction_order, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`)
	if err != nil {
		return cerr.Wrap(cerr.KindStorage, err, "prepare add messages")
	}
	defer stmt.Close()

	for i := range msgs {
		msgs[i].ID = uuid.New().String()
		msgs[i].ConversationID = conversationID
		msgs[i].Direction = direction
		msgs[i].InteractionOrder = interactionOrder
		msgs[i].MessageOrder = base + i
		msgs[i].CreatedAt = now
		msgs[i].UpdatedAt = now
		msgs[i].ExpiresAt = expiresAt

		m := msgs[i]
		if _, err := stmt.ExecContext(ctx,
			m.ID, m.ConversationID, m.FlowID, m.StepID, string(m.Direction),
			m.ContentType, m.Payload, m.MessageOrder, m.InteractionOrder,
			m.CreatedAt, m.UpdatedAt, m.ExpiresAt,
		); err != nil {
			return cerr.Wrap(cerr.KindStorage, err, "insert message")
		}
	}

	if err := tx.Commit(); err != nil {
		return cerr.Wrap(cerr.KindStorage, err, "commit add messages tx")
	}
	return nil
}

// NextInteractionOrder returns one past conversationID's highest persisted
// interaction_order, or 0 if it has no messages yet.
func (s *MessageStore) NextInteractionOrder(ctx context.Context, conversationID string) (int, error) {
	var max stdsql.NullInt64
	if err := s.db.QueryRowContext(ctx, `
		SELECT MAX(interaction_order) FROM messages WHERE conversation_id = $1`,
		conversationID,
	).Scan(&max); err != nil {
		return 0, cerr.Wrap(cerr.KindStorage, err, "read max interaction_order")
	}
	if !max.Valid {
		return 0, nil
	}
	return int(max.Int64) + 1, nil
}

func (s *MessageStore) GetClientMessages(ctx context.Context, filter store.MessageFilter) (store.Paginated[store.Message], error) {
	limit := filter.Limit
	if limit <= 0 || limit > 25 {
		limit = 25
	}

	query := `
		SELECT m.id, m.conversation_id, m.flow_id, m.step_id, m.direction, m.content_type,
		       m.payload, m.message_order, m.interaction_order, m.created_at, m.updated_at, m.expires_at
		FROM messages m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE c.bot_id = $1 AND c.channel_id = $2 AND c.user_id = $3`
	args := []any{filter.Client.BotID, filter.Client.ChannelID, filter.Client.UserID}

	if filter.ConversationID != "" {
		args = append(args, filter.ConversationID)
		query += " AND m.conversation_id = $" + strconv.Itoa(len(args))
	}
	if filter.FromDate != nil {
		args = append(args, *filter.FromDate)
		query += " AND m.created_at >= $" + strconv.Itoa(len(args))
	}
	if filter.ToDate != nil {
		args = append(args, *filter.ToDate)
		query += " AND m.created_at <= $" + strconv.Itoa(len(args))
	}
	if filter.PaginationKey != "" {
		args = append(args, filter.PaginationKey)
		query += ` AND m.id > (SELECT id FROM messages WHERE id = $` + strconv.Itoa(len(args)) + `)`
	}
	query += " ORDER BY m.interaction_order, m.message_order LIMIT " + strconv.Itoa(limit+1)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return store.Paginated[store.Message]{}, cerr.Wrap(cerr.KindStorage, err, "get client messages")
	}
	defer rows.Close()

	var all []store.Message
	for rows.Next() {
		var m store.Message
		var direction string
		if err := rows.Scan(
			&m.ID, &m.ConversationID, &m.FlowID, &m.StepID, &direction, &m.ContentType,
			&m.Payload, &m.MessageOrder, &m.InteractionOrder, &m.CreatedAt, &m.UpdatedAt, &m.ExpiresAt,
		); err != nil {
			return store.Paginated[store.Message]{}, cerr.Wrap(cerr.KindStorage, err, "scan message")
		}
		m.Direction = store.Direction(direction)
		all = append(all, m)
	}
	if err := rows.Err(); err != nil {
		return store.Paginated[store.Message]{}, cerr.Wrap(cerr.KindStorage, err, "iterate messages")
	}

	hasMore := len(all) > limit
	if hasMore {
		all = all[:limit]
	}
	next := ""
	if hasMore && len(all) > 0 {
		next = all[len(all)-1].ID
	}
	return store.Paginated[store.Message]{Items: all, NextKey: next, HasMore: hasMore}, nil
}

