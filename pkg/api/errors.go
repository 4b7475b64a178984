package api

import (
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/csml-run/csml-engine/pkg/cerr"
)

// mapServiceError maps an engine error to an HTTP error response, keyed off
// its cerr.Kind (spec.md §7 "The API response on hard failure contains an
// error payload with the error kind and a human message").
func mapServiceError(err error) *echo.HTTPError {
	kind, ok := cerr.KindOf(err)
	if !ok {
		slog.Error("unexpected error", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}

	status := http.StatusInternalServerError
	switch kind {
	case cerr.KindFormat, cerr.KindParse, cerr.KindUTF8, cerr.KindBase64, cerr.KindUUID, cerr.KindDateTime:
		status = http.StatusBadRequest
	case cerr.KindManager:
		status = http.StatusNotFound
	case cerr.KindInterpret:
		status = http.StatusUnprocessableEntity
	case cerr.KindEncryption, cerr.KindStorage, cerr.KindSerde, cerr.KindIO:
		status = http.StatusInternalServerError
		slog.Error("engine error", "kind", kind, "error", err)
	}

	return echo.NewHTTPError(status, map[string]string{
		"kind":  string(kind),
		"error": err.Error(),
	})
}
