// Package store defines the persistence façade the driver calls: one
// interface per entity (Conversations, Messages, Memories, States,
// BotVersions), grounded on the teacher's one-service-per-entity pattern
// (pkg/services/*_service.go) rather than a single fat repository.
package store

import "time"

// Client identifies a user in a bot's channel; the natural key used by
// every other entity below (spec.md §3 "three-tuple uniquely identifies").
type Client struct {
	BotID     string
	ChannelID string
	UserID    string
}

// Key renders a stable string key for map-based implementations and for
// memory/state unique constraints.
func (c Client) Key() string {
	return c.BotID + "::" + c.ChannelID + "::" + c.UserID
}

type ConversationStatus string

const (
	ConversationOpen   ConversationStatus = "OPEN"
	ConversationClosed ConversationStatus = "CLOSED"
)

// Conversation is the per-client execution cursor: at most one OPEN
// conversation may exist per client (spec.md §3).
type Conversation struct {
	ID                string
	Client            Client
	FlowID            string
	StepID            string
	Status            ConversationStatus
	LastInteractionAt time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
	ExpiresAt         *time.Time
}

type Direction string

const (
	DirectionSend    Direction = "SEND"
	DirectionReceive Direction = "RECEIVE"
)

// Message is one outbound or inbound payload, ordered within a conversation
// by (InteractionOrder, MessageOrder) (spec.md §3).
type Message struct {
	ID              string
	ConversationID  string
	FlowID          string
	StepID          string
	Direction       Direction
	ContentType     string
	Payload         string // JSON-encoded Value, possibly encrypted at rest
	MessageOrder    int
	InteractionOrder int
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ExpiresAt       *time.Time
}

// Memory is a client-scoped key/value, upserted by `remember`, deleted by
// `forget` (spec.md §3, latest-write-wins per key).
type Memory struct {
	ID        string
	Client    Client
	Key       string
	Value     string // JSON-encoded Value
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt *time.Time
}

// StateKey is a namespaced, typed per-client slot: holds, delay markers,
// `bot.previous` (spec.md §3 "namespaced by type").
type StateKey struct {
	ID        string
	Client    Client
	Type      string
	Key       string
	Value     string // JSON-encoded
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt *time.Time
}

// BotVersionRow is a stored, immutable compiled bot (spec.md §3 Bot entity
// plus the engine_version column recovered from original_source/).
type BotVersionRow struct {
	ID            string
	BotID         string
	Blob          []byte // serialized *ast.Bot (JSON)
	EngineVersion string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// MessageFilter selects a page of a client's messages (spec.md §4.5
// get_client_messages).
type MessageFilter struct {
	Client         Client
	Limit          int
	PaginationKey  string
	FromDate       *time.Time
	ToDate         *time.Time
	ConversationID string
}

// Paginated wraps a page of results with a continuation key.
type Paginated[T any] struct {
	Items      []T
	NextKey    string
	HasMore    bool
}
