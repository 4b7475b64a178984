package store

import (
	"context"
	"time"
)

// Conversations manages the per-client execution cursor.
type Conversations interface {
	Create(ctx context.Context, client Client, flowID, stepID string, expiresAt *time.Time) (string, error)
	GetLatestOpen(ctx context.Context, client Client) (*Conversation, error)
	Update(ctx context.Context, id string, flowID, stepID *string) error
	Close(ctx context.Context, id string) error
	CloseAll(ctx context.Context, client Client) error
}

// Messages manages the append-only interaction log.
type Messages interface {
	AddBulk(ctx context.Context, conversationID string, msgs []Message, interactionOrder int, direction Direction, expiresAt *time.Time) error
	GetClientMessages(ctx context.Context, filter MessageFilter) (Paginated[Message], error)

	// NextInteractionOrder returns one past the conversation's highest
	// persisted interaction_order (0 if it has none yet), the same
	// MAX-then-increment rule AddBulk already applies to message_order
	// (spec.md §4.4 "interaction_order ... starts at 0, increments after
	// each goto").
	NextInteractionOrder(ctx context.Context, conversationID string) (int, error)
}

// Memories manages client-scoped remembered values.
type Memories interface {
	Upsert(ctx context.Context, client Client, key, value string, expiresAt *time.Time) error
	Get(ctx context.Context, client Client, key string) (*Memory, error)
	GetAll(ctx context.Context, client Client) ([]Memory, error)
	Delete(ctx context.Context, client Client, key string) error
	DeleteAll(ctx context.Context, client Client) error
}

// States manages namespaced per-client transient slots (holds, delay
// markers, bot.previous).
type States interface {
	SetItems(ctx context.Context, client Client, typ string, items map[string]string, expiresAt *time.Time) error
	Get(ctx context.Context, client Client, typ, key string) (*StateKey, error)
	Delete(ctx context.Context, client Client, typ, key string) error
}

// BotVersions manages immutable compiled-bot snapshots.
type BotVersions interface {
	Create(ctx context.Context, botID string, blob []byte, engineVersion string) (string, error)
	GetLast(ctx context.Context, botID string) (*BotVersionRow, error)
	GetByVersionID(ctx context.Context, versionID, botID string) (*BotVersionRow, error)
}

// ExpiredDataSweeper is implemented by a storage backend capable of purging
// every table's expires_at < now rows in one call (spec.md §4.5
// delete_expired_data, consumed by pkg/retention).
type ExpiredDataSweeper interface {
	DeleteExpiredData(ctx context.Context) error
}

// Store bundles every façade interface a driver needs, the way the teacher
// wires its services together at startup even though each consumer only
// type-asserts to the single interface it uses.
type Store struct {
	Conversations Conversations
	Messages      Messages
	Memories      Memories
	States        States
	BotVersions   BotVersions
	Sweeper       ExpiredDataSweeper
}
