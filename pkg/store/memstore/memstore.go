// Package memstore is an in-memory implementation of pkg/store's façade
// interfaces, adapted from the teacher's one-manager-per-entity pattern
// (pkg/session.Manager: map + sync.RWMutex, google/uuid identities). It
// backs fast driver/scenario tests; pkg/store/postgres is the durable
// implementation.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/csml-run/csml-engine/pkg/cerr"
	"github.com/csml-run/csml-engine/pkg/store"
)

// Store bundles one in-memory manager per entity, each its own type so
// method names never collide across the façade's interfaces (Conversations
// and BotVersions both need "Create", Memories and States both need
// "Get"/"Delete" — one receiver per entity keeps that legal and mirrors
// the teacher's per-entity services).
type Store struct {
	Conversations *ConversationStore
	Messages      *MessageStore
	Memories      *MemoryStore
	States        *StateStore
	BotVersions   *BotVersionStore
}

// New wires a fresh, empty Store and a store.Store façade view over it.
func New() *Store {
	messages := newMessageStore()
	s := &Store{
		Conversations: newConversationStore(messages),
		Messages:      messages,
		Memories:      newMemoryStore(),
		States:        newStateStore(),
		BotVersions:   newBotVersionStore(),
	}
	return s
}

// Facade adapts Store to store.Store, the interface-typed bundle the
// driver is wired against.
func (s *Store) Facade() store.Store {
	return store.Store{
		Conversations: s.Conversations,
		Messages:      s.Messages,
		Memories:      s.Memories,
		States:        s.States,
		BotVersions:   s.BotVersions,
		Sweeper:       s,
	}
}

// DeleteExpiredData purges every table's expires_at < now rows (spec.md
// §4.5), used by pkg/retention's background ticker.
func (s *Store) DeleteExpiredData(ctx context.Context) error {
	s.Messages.deleteExpired()
	s.Conversations.deleteExpired()
	s.Memories.deleteExpired()
	s.States.deleteExpired()
	return nil
}

// --- Conversations -------------------------------------------------------

// ConversationStore manages the per-client execution cursor: at most one
// OPEN conversation per client (spec.md §3).
type ConversationStore struct {
	mu       sync.RWMutex
	byID     map[string]*store.Conversation
	messages *MessageStore
}

// newConversationStore takes the Store's MessageStore so Create can track
// conversation ownership for it: postgres resolves a message's client by
// joining through the conversations table, but memstore has no join, so
// MessageStore.GetClientMessages needs its own clientOf index kept current
// from here instead.
func newConversationStore(messages *MessageStore) *ConversationStore {
	return &ConversationStore{byID: map[string]*store.Conversation{}, messages: messages}
}

func (s *ConversationStore) Create(ctx context.Context, client store.Client, flowID, stepID string, expiresAt *time.Time) (string, error) {
	s.mu.Lock()
	now := time.Now()
	id := uuid.New().String()
	s.byID[id] = &store.Conversation{
		ID:                id,
		Client:            client,
		FlowID:            flowID,
		StepID:            stepID,
		Status:            store.ConversationOpen,
		LastInteractionAt: now,
		CreatedAt:         now,
		UpdatedAt:         now,
		ExpiresAt:         expiresAt,
	}
	s.mu.Unlock()
	s.messages.Track(id, client)
	return id, nil
}

func (s *ConversationStore) GetLatestOpen(ctx context.Context, client store.Client) (*store.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *store.Conversation
	for _, c := range s.byID {
		if c.Status != store.ConversationOpen || c.Client != client {
			continue
		}
		if latest == nil || c.LastInteractionAt.After(latest.LastInteractionAt) {
			latest = c
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (s *ConversationStore) Update(ctx context.Context, id string, flowID, stepID *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return cerr.New(cerr.KindManager, "conversation %q not found", id)
	}
	if flowID != nil {
		c.FlowID = *flowID
	}
	if stepID != nil {
		c.StepID = *stepID
	}
	c.LastInteractionAt = time.Now()
	c.UpdatedAt = c.LastInteractionAt
	return nil
}

func (s *ConversationStore) Close(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return cerr.New(cerr.KindManager, "conversation %q not found", id)
	}
	c.Status = store.ConversationClosed
	c.UpdatedAt = time.Now()
	return nil
}

func (s *ConversationStore) CloseAll(ctx context.Context, client store.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.byID {
		if c.Client == client && c.Status == store.ConversationOpen {
			c.Status = store.ConversationClosed
			c.UpdatedAt = time.Now()
		}
	}
	return nil
}

func (s *ConversationStore) deleteExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, c := range s.byID {
		if c.ExpiresAt != nil && !c.ExpiresAt.After(now) {
			delete(s.byID, id)
		}
	}
}

// --- Messages -------------------------------------------------------------

// MessageStore manages the append-only interaction log, keyed by
// conversation.
type MessageStore struct {
	mu     sync.RWMutex
	byConv map[string][]store.Message
	// clientOf resolves a conversation ID to the client that owns it, since
	// GetClientMessages filters by client rather than conversation.
	clientOf map[string]store.Client
}

func newMessageStore() *MessageStore {
	return &MessageStore{
		byConv:   map[string][]store.Message{},
		clientOf: map[string]store.Client{},
	}
}

// Track records which client a conversation belongs to; ConversationStore.
// Create calls this for every new conversation so GetClientMessages can
// filter.
func (s *MessageStore) Track(conversationID string, client store.Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clientOf[conversationID] = client
}

func (s *MessageStore) AddBulk(ctx context.Context, conversationID string, msgs []store.Message, interactionOrder int, direction store.Direction, expiresAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	base := len(s.byConv[conversationID])
	for i := range msgs {
		msgs[i].ID = uuid.New().String()
		msgs[i].ConversationID = conversationID
		msgs[i].Direction = direction
		msgs[i].InteractionOrder = interactionOrder
		msgs[i].MessageOrder = base + i
		msgs[i].CreatedAt = now
		msgs[i].UpdatedAt = now
		msgs[i].ExpiresAt = expiresAt
	}
	s.byConv[conversationID] = append(s.byConv[conversationID], msgs...)
	return nil
}

// NextInteractionOrder returns one past conversationID's highest persisted
// interaction_order, or 0 if it has no messages yet.
func (s *MessageStore) NextInteractionOrder(ctx context.Context, conversationID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	max := -1
	for _, m := range s.byConv[conversationID] {
		if m.InteractionOrder > max {
			max = m.InteractionOrder
		}
	}
	return max + 1, nil
}

func (s *MessageStore) GetClientMessages(ctx context.Context, filter store.MessageFilter) (store.Paginated[store.Message], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []store.Message
	for convID, msgs := range s.byConv {
		if filter.ConversationID != "" && convID != filter.ConversationID {
			continue
		}
		if client, known := s.clientOf[convID]; known && client != filter.Client {
			continue
		}
		for _, m := range msgs {
			if filter.FromDate != nil && m.CreatedAt.Before(*filter.FromDate) {
				continue
			}
			if filter.ToDate != nil && m.CreatedAt.After(*filter.ToDate) {
				continue
			}
			all = append(all, m)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].InteractionOrder != all[j].InteractionOrder {
			return all[i].InteractionOrder < all[j].InteractionOrder
		}
		return all[i].MessageOrder < all[j].MessageOrder
	})

	limit := filter.Limit
	if limit <= 0 || limit > 25 {
		limit = 25
	}
	start := 0
	if filter.PaginationKey != "" {
		for i, m := range all {
			if m.ID == filter.PaginationKey {
				start = i + 1
				break
			}
		}
	}
	end := start + limit
	hasMore := end < len(all)
	if !hasMore {
		end = len(all)
	}
	page := all[start:end]
	next := ""
	if hasMore && len(page) > 0 {
		next = page[len(page)-1].ID
	}
	return store.Paginated[store.Message]{Items: page, NextKey: next, HasMore: hasMore}, nil
}

func (s *MessageStore) deleteExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for convID, msgs := range s.byConv {
		kept := msgs[:0]
		for _, m := range msgs {
			if m.ExpiresAt == nil || m.ExpiresAt.After(now) {
				kept = append(kept, m)
			}
		}
		s.byConv[convID] = kept
	}
}

// --- Memories ---------------------------------------------------------------

// MemoryStore manages client-scoped remembered values, upserted by
// `remember` and deleted by `forget`.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]map[string]*store.Memory // clientKey -> key -> memory
}

func newMemoryStore() *MemoryStore {
	return &MemoryStore{data: map[string]map[string]*store.Memory{}}
}

func (s *MemoryStore) Upsert(ctx context.Context, client store.Client, key, value string, expiresAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ck := client.Key()
	bucket, ok := s.data[ck]
	if !ok {
		bucket = map[string]*store.Memory{}
		s.data[ck] = bucket
	}
	now := time.Now()
	if m, exists := bucket[key]; exists {
		m.Value = value
		m.UpdatedAt = now
		m.ExpiresAt = expiresAt
		return nil
	}
	bucket[key] = &store.Memory{
		ID: uuid.New().String(), Client: client, Key: key, Value: value,
		CreatedAt: now, UpdatedAt: now, ExpiresAt: expiresAt,
	}
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, client store.Client, key string) (*store.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.data[client.Key()][key]
	if !ok {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) GetAll(ctx context.Context, client store.Client) ([]store.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bucket := s.data[client.Key()]
	out := make([]store.Memory, 0, len(bucket))
	for _, m := range bucket {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, client store.Client, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data[client.Key()], key)
	return nil
}

func (s *MemoryStore) DeleteAll(ctx context.Context, client store.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, client.Key())
	return nil
}

func (s *MemoryStore) deleteExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for ck, bucket := range s.data {
		for k, m := range bucket {
			if m.ExpiresAt != nil && !m.ExpiresAt.After(now) {
				delete(bucket, k)
			}
		}
		if len(bucket) == 0 {
			delete(s.data, ck)
		}
	}
}

// --- States -------------------------------------------------------------

// StateStore manages namespaced per-client transient slots: holds, delay
// markers, `bot.previous`.
type StateStore struct {
	mu   sync.RWMutex
	data map[string]map[string]*store.StateKey // clientKey -> type::key -> state
}

func newStateStore() *StateStore {
	return &StateStore{data: map[string]map[string]*store.StateKey{}}
}

func stateKey(typ, key string) string { return typ + "::" + key }

func (s *StateStore) SetItems(ctx context.Context, client store.Client, typ string, items map[string]string, expiresAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ck := client.Key()
	bucket, ok := s.data[ck]
	if !ok {
		bucket = map[string]*store.StateKey{}
		s.data[ck] = bucket
	}
	now := time.Now()
	for k, v := range items {
		sk := stateKey(typ, k)
		if existing, exists := bucket[sk]; exists {
			existing.Value = v
			existing.UpdatedAt = now
			existing.ExpiresAt = expiresAt
			continue
		}
		bucket[sk] = &store.StateKey{
			ID: uuid.New().String(), Client: client, Type: typ, Key: k, Value: v,
			CreatedAt: now, UpdatedAt: now, ExpiresAt: expiresAt,
		}
	}
	return nil
}

func (s *StateStore) Get(ctx context.Context, client store.Client, typ, key string) (*store.StateKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sk, ok := s.data[client.Key()][stateKey(typ, key)]
	if !ok {
		return nil, nil
	}
	cp := *sk
	return &cp, nil
}

func (s *StateStore) Delete(ctx context.Context, client store.Client, typ, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data[client.Key()], stateKey(typ, key))
	return nil
}

func (s *StateStore) deleteExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for ck, bucket := range s.data {
		for k, st := range bucket {
			if st.ExpiresAt != nil && !st.ExpiresAt.After(now) {
				delete(bucket, k)
			}
		}
		if len(bucket) == 0 {
			delete(s.data, ck)
		}
	}
}

// --- BotVersions -------------------------------------------------------------

// BotVersionStore manages immutable compiled-bot snapshots, append-only
// per bot ID.
type BotVersionStore struct {
	mu   sync.RWMutex
	byID map[string][]*store.BotVersionRow // botID -> versions, append order
}

func newBotVersionStore() *BotVersionStore {
	return &BotVersionStore{byID: map[string][]*store.BotVersionRow{}}
}

func (s *BotVersionStore) Create(ctx context.Context, botID string, blob []byte, engineVersion string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	id := uuid.New().String()
	s.byID[botID] = append(s.byID[botID], &store.BotVersionRow{
		ID: id, BotID: botID, Blob: blob, EngineVersion: engineVersion,
		CreatedAt: now, UpdatedAt: now,
	})
	return id, nil
}

func (s *BotVersionStore) GetLast(ctx context.Context, botID string) (*store.BotVersionRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	versions := s.byID[botID]
	if len(versions) == 0 {
		return nil, nil
	}
	cp := *versions[len(versions)-1]
	return &cp, nil
}

func (s *BotVersionStore) GetByVersionID(ctx context.Context, versionID, botID string) (*store.BotVersionRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, v := range s.byID[botID] {
		if v.ID == versionID {
			cp := *v
			return &cp, nil
		}
	}
	return nil, nil
}
