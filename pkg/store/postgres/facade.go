package postgres

import "github.com/csml-run/csml-engine/pkg/store"

// Facade assembles every per-entity store into a store.Store, the way
// memstore.Store.Facade does for the in-memory backend.
func Facade(c *Client) store.Store {
	return store.Store{
		Conversations: NewConversationStore(c),
		Messages:      NewMessageStore(c),
		Memories:      NewMemoryStore(c),
		States:        NewStateStore(c),
		BotVersions:   NewBotVersionStore(c),
		Sweeper:       NewSweeper(c),
	}
}
