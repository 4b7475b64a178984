package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csml-run/csml-engine/pkg/store"
)

func TestGetClientMessagesHandlerRejectsMissingClientIdentity(t *testing.T) {
	s := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/bots/bot1/messages", nil)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)
	c.SetParamNames("bot_id")
	c.SetParamValues("bot1")

	require.NoError(t, s.getClientMessagesHandler(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetClientMessagesHandlerReturnsPersistedMessages(t *testing.T) {
	s := newTestServer(t)
	client := store.Client{BotID: "bot1", ChannelID: "web", UserID: "user1"}
	ctx := context.Background()

	convID, err := s.store.Conversations.Create(ctx, client, "main", "start", nil)
	require.NoError(t, err)
	require.NoError(t, s.store.Messages.AddBulk(ctx, convID, []store.Message{
		{FlowID: "main", StepID: "start", ContentType: "text", Payload: `{"text":"hi"}`},
	}, 0, store.DirectionReceive, nil))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/bots/bot1/messages?channel_id=web&user_id=user1", nil)
	rec := httptest.NewRecorder()
	c := s.echo.NewContext(req, rec)
	c.SetParamNames("bot_id")
	c.SetParamValues("bot1")

	require.NoError(t, s.getClientMessagesHandler(c))
	require.Equal(t, http.StatusOK, rec.Code)

	var page store.Paginated[store.Message]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	require.Len(t, page.Items, 1)
	assert.Equal(t, `{"text":"hi"}`, page.Items[0].Payload)
}
