package api

import (
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"

	"github.com/csml-run/csml-engine/pkg/cerr"
	"github.com/csml-run/csml-engine/pkg/store"
)

const defaultMessagesLimit = 50

// getClientMessagesHandler handles GET /api/v1/bots/:bot_id/messages,
// mirroring the original's get_client_messages example
// (csml_engine/examples/get_messages.rs): pagination by
// (limit, pagination_key), optionally narrowed to one conversation or a
// created_at date range.
func (s *Server) getClientMessagesHandler(c *echo.Context) error {
	filter := store.MessageFilter{
		Client: store.Client{
			BotID:     c.Param("bot_id"),
			ChannelID: c.QueryParam("channel_id"),
			UserID:    c.QueryParam("user_id"),
		},
		PaginationKey:  c.QueryParam("pagination_key"),
		ConversationID: c.QueryParam("conversation_id"),
		Limit:          defaultMessagesLimit,
	}
	if filter.Client.ChannelID == "" || filter.Client.UserID == "" {
		return mapServiceError(cerr.New(cerr.KindFormat, "channel_id and user_id query params are required"))
	}

	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return mapServiceError(cerr.New(cerr.KindFormat, "limit must be a positive integer"))
		}
		filter.Limit = n
	}
	if raw := c.QueryParam("from_date"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return mapServiceError(cerr.Wrap(cerr.KindDateTime, err, "parse from_date"))
		}
		filter.FromDate = &t
	}
	if raw := c.QueryParam("to_date"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return mapServiceError(cerr.Wrap(cerr.KindDateTime, err, "parse to_date"))
		}
		filter.ToDate = &t
	}

	page, err := s.store.Messages.GetClientMessages(c.Request().Context(), filter)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, page)
}
