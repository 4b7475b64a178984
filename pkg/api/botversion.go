package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/csml-run/csml-engine/pkg/bot"
	"github.com/csml-run/csml-engine/pkg/cerr"
)

// createBotVersionResponse is the POST /api/v1/bots/:bot_id/versions body.
type createBotVersionResponse struct {
	VersionID string `json:"version_id"`
}

// createBotVersionHandler handles POST /api/v1/bots/:bot_id/versions: the
// manifest in the request body is built, validated, and persisted as a new
// immutable bot_versions row (spec.md §3 Bot entity "Created by
// create_bot_version; immutable thereafter").
func (s *Server) createBotVersionHandler(c *echo.Context) error {
	botID := c.Param("bot_id")
	if botID == "" {
		return mapServiceError(cerr.New(cerr.KindFormat, "bot_id is required"))
	}

	var m bot.Manifest
	if err := c.Bind(&m); err != nil {
		return mapServiceError(cerr.Wrap(cerr.KindFormat, err, "decode bot manifest"))
	}

	versionID, _, errs := s.versions.Create(c.Request().Context(), botID, &m)
	if len(errs) > 0 {
		return mapServiceError(cerr.Wrap(cerr.KindParse, errs[0], "build bot version"))
	}

	return c.JSON(http.StatusCreated, createBotVersionResponse{VersionID: versionID})
}
