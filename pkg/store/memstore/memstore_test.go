package memstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/csml-run/csml-engine/pkg/store"
	"github.com/csml-run/csml-engine/pkg/store/memstore"
)

func testClient() store.Client {
	return store.Client{BotID: "bot1", ChannelID: "web", UserID: "user1"}
}

func pastTime() time.Time {
	return time.Now().Add(-time.Hour)
}

func TestConversationCreateAndGetLatestOpen(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	client := testClient()

	id, err := s.Conversations.Create(ctx, client, "main", "start", nil)
	require.NoError(t, err)

	open, err := s.Conversations.GetLatestOpen(ctx, client)
	require.NoError(t, err)
	require.NotNil(t, open)
	require.Equal(t, id, open.ID)
	require.Equal(t, store.ConversationOpen, open.Status)
}

func TestConversationCloseRemovesFromLatestOpen(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	client := testClient()

	id, err := s.Conversations.Create(ctx, client, "main", "start", nil)
	require.NoError(t, err)
	require.NoError(t, s.Conversations.Close(ctx, id))

	open, err := s.Conversations.GetLatestOpen(ctx, client)
	require.NoError(t, err)
	require.Nil(t, open)
}

func TestConversationUpdateNotFound(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	step := "x"
	err := s.Conversations.Update(ctx, "missing-id", nil, &step)
	require.Error(t, err)
}

func TestMemoryUpsertIsLatestWriteWins(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	client := testClient()

	require.NoError(t, s.Memories.Upsert(ctx, client, "lang", "en", nil))
	require.NoError(t, s.Memories.Upsert(ctx, client, "lang", "fr", nil))

	m, err := s.Memories.Get(ctx, client, "lang")
	require.NoError(t, err)
	require.Equal(t, "fr", m.Value)

	all, err := s.Memories.GetAll(ctx, client)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestMemoryDeleteAll(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	client := testClient()

	require.NoError(t, s.Memories.Upsert(ctx, client, "a", "1", nil))
	require.NoError(t, s.Memories.Upsert(ctx, client, "b", "2", nil))
	require.NoError(t, s.Memories.DeleteAll(ctx, client))

	all, err := s.Memories.GetAll(ctx, client)
	require.NoError(t, err)
	require.Empty(t, all)
}

func TestStateSetItemsAndGet(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	client := testClient()

	require.NoError(t, s.States.SetItems(ctx, client, "hold", map[string]string{"0": `{"hash":"abc"}`}, nil))

	st, err := s.States.Get(ctx, client, "hold", "0")
	require.NoError(t, err)
	require.NotNil(t, st)
	require.Equal(t, `{"hash":"abc"}`, st.Value)

	require.NoError(t, s.States.Delete(ctx, client, "hold", "0"))
	st, err = s.States.Get(ctx, client, "hold", "0")
	require.NoError(t, err)
	require.Nil(t, st)
}

func TestStatesAreNamespacedByType(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	client := testClient()

	require.NoError(t, s.States.SetItems(ctx, client, "hold", map[string]string{"k": "hold-value"}, nil))
	require.NoError(t, s.States.SetItems(ctx, client, "delay", map[string]string{"k": "delay-value"}, nil))

	hold, err := s.States.Get(ctx, client, "hold", "k")
	require.NoError(t, err)
	require.Equal(t, "hold-value", hold.Value)

	delay, err := s.States.Get(ctx, client, "delay", "k")
	require.NoError(t, err)
	require.Equal(t, "delay-value", delay.Value)
}

func TestMessagesAddBulkAssignsContiguousOrder(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	client := testClient()

	convID, err := s.Conversations.Create(ctx, client, "main", "start", nil)
	require.NoError(t, err)

	err = s.Messages.AddBulk(ctx, convID, []store.Message{
		{FlowID: "main", StepID: "start", ContentType: "text", Payload: `"hi"`},
		{FlowID: "main", StepID: "start", ContentType: "text", Payload: `"there"`},
	}, 0, store.DirectionSend, nil)
	require.NoError(t, err)

	page, err := s.Messages.GetClientMessages(ctx, store.MessageFilter{Client: client})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.Equal(t, 0, page.Items[0].MessageOrder)
	require.Equal(t, 1, page.Items[1].MessageOrder)
	require.False(t, page.HasMore)
}

func TestMessagesPagination(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	client := testClient()

	convID, err := s.Conversations.Create(ctx, client, "main", "start", nil)
	require.NoError(t, err)

	msgs := make([]store.Message, 0, 30)
	for i := 0; i < 30; i++ {
		msgs = append(msgs, store.Message{FlowID: "main", StepID: "start", ContentType: "text", Payload: `"m"`})
	}
	require.NoError(t, s.Messages.AddBulk(ctx, convID, msgs, 0, store.DirectionSend, nil))

	page, err := s.Messages.GetClientMessages(ctx, store.MessageFilter{Client: client})
	require.NoError(t, err)
	require.Len(t, page.Items, 25)
	require.True(t, page.HasMore)

	next, err := s.Messages.GetClientMessages(ctx, store.MessageFilter{Client: client, PaginationKey: page.NextKey})
	require.NoError(t, err)
	require.Len(t, next.Items, 5)
	require.False(t, next.HasMore)
}

func TestGetClientMessagesIsScopedToOwningClient(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	clientA := testClient()
	clientB := store.Client{BotID: "bot1", ChannelID: "web", UserID: "user2"}

	convA, err := s.Conversations.Create(ctx, clientA, "main", "start", nil)
	require.NoError(t, err)
	require.NoError(t, s.Messages.AddBulk(ctx, convA, []store.Message{
		{FlowID: "main", StepID: "start", ContentType: "text", Payload: `"for a"`},
	}, 0, store.DirectionSend, nil))

	convB, err := s.Conversations.Create(ctx, clientB, "main", "start", nil)
	require.NoError(t, err)
	require.NoError(t, s.Messages.AddBulk(ctx, convB, []store.Message{
		{FlowID: "main", StepID: "start", ContentType: "text", Payload: `"for b"`},
	}, 0, store.DirectionSend, nil))

	page, err := s.Messages.GetClientMessages(ctx, store.MessageFilter{Client: clientA})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, `"for a"`, page.Items[0].Payload)
}

func TestBotVersionsCreateAndGetLast(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	_, err := s.BotVersions.Create(ctx, "bot1", []byte("v1"), "1.0.0")
	require.NoError(t, err)
	id2, err := s.BotVersions.Create(ctx, "bot1", []byte("v2"), "1.0.0")
	require.NoError(t, err)

	last, err := s.BotVersions.GetLast(ctx, "bot1")
	require.NoError(t, err)
	require.Equal(t, id2, last.ID)
	require.Equal(t, []byte("v2"), last.Blob)
}

func TestBotVersionsGetByVersionID(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()

	id1, err := s.BotVersions.Create(ctx, "bot1", []byte("v1"), "1.0.0")
	require.NoError(t, err)

	v, err := s.BotVersions.GetByVersionID(ctx, id1, "bot1")
	require.NoError(t, err)
	require.NotNil(t, v)
	require.Equal(t, []byte("v1"), v.Blob)

	missing, err := s.BotVersions.GetByVersionID(ctx, "does-not-exist", "bot1")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestDeleteExpiredDataPurgesOnlyExpiredRows(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	client := testClient()

	past := pastTime()
	require.NoError(t, s.Memories.Upsert(ctx, client, "stale", "x", &past))
	require.NoError(t, s.Memories.Upsert(ctx, client, "fresh", "y", nil))

	require.NoError(t, s.DeleteExpiredData(ctx))

	all, err := s.Memories.GetAll(ctx, client)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, "fresh", all[0].Key)
}
