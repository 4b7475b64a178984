package api

import (
	"context"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/csml-run/csml-engine/pkg/ast"
	"github.com/csml-run/csml-engine/pkg/bot"
	"github.com/csml-run/csml-engine/pkg/cerr"
	"github.com/csml-run/csml-engine/pkg/driver"
)

// interactRequest is the wire envelope around a CsmlRequest: the bot
// selector sits alongside the event, mirroring the original's RunRequest
// (bot | bot_id[+version_id] | event), recovered from
// original_source/csml_engine/src/data/models.rs since spec.md §6 only
// documents the selector's three shapes, not the envelope field names.
type interactRequest struct {
	Bot       *bot.Manifest  `json:"bot,omitempty"`
	BotID     string         `json:"bot_id,omitempty"`
	VersionID string         `json:"version_id,omitempty"`
	Event     driver.Request `json:"event"`
}

// interactHandler handles POST /api/v1/interact (spec.md §6 "Ingest").
func (s *Server) interactHandler(c *echo.Context) error {
	var req interactRequest
	if err := c.Bind(&req); err != nil {
		return mapServiceError(cerr.Wrap(cerr.KindFormat, err, "decode request body"))
	}

	ctx := c.Request().Context()
	built, err := s.resolveBot(ctx, req)
	if err != nil {
		return mapServiceError(err)
	}

	resp, switchBot, err := s.driver.Run(ctx, built, req.Event)
	for switchBot != nil && err == nil {
		nextBuilt, _, loadErr := s.versions.GetLast(ctx, switchBot.BotID)
		if loadErr != nil {
			return mapServiceError(loadErr)
		}
		triggerReq := req.Event
		triggerReq.Client.BotID = switchBot.BotID
		triggerReq.Payload = driver.Payload{
			ContentType: "flow_trigger",
			Content: map[string]any{
				"flow_id": switchBot.Flow,
				"step_id": switchBot.Step,
			},
		}
		resp, switchBot, err = s.driver.Run(ctx, nextBuilt, triggerReq)
	}
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, resp)
}

// resolveBot loads the *ast.Bot named by req's selector: an inline bot is
// built in memory without being persisted, a bot_id alone resolves to its
// latest version, and bot_id+version_id pins an exact version (spec.md §6
// "The bot selector accepts one of: CsmlBot{...} (inline), {bot_id,
// version_id} (pinned), or {bot_id} (latest)").
func (s *Server) resolveBot(ctx context.Context, req interactRequest) (*ast.Bot, error) {
	switch {
	case req.Bot != nil:
		built, errs := bot.Build(req.Bot)
		if len(errs) > 0 {
			return nil, cerr.Wrap(cerr.KindParse, errs[0], "build inline bot")
		}
		return built, nil
	case req.BotID != "" && req.VersionID != "":
		return s.versions.GetByVersionID(ctx, req.VersionID, req.BotID)
	case req.BotID != "":
		built, _, err := s.versions.GetLast(ctx, req.BotID)
		return built, err
	default:
		return nil, cerr.New(cerr.KindFormat, "request must specify bot, bot_id, or bot_id+version_id")
	}
}
