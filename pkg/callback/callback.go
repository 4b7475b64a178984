// Package callback posts a bot's outbound messages to the caller's
// callback_url (spec.md §4.5), grounded on the teacher's outbound HTTP
// client conventions (pkg/runbook.GitHubClient: a timeout-bounded
// *http.Client plus a structured slog logger).
package callback

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// Poster POSTs message payloads to a per-request callback URL. Failures are
// logged and ignored (spec.md §4.5: "never fail the interaction because of
// callback failure").
type Poster struct {
	httpClient *http.Client
	logger     *slog.Logger
}

// New creates a Poster with a bounded request timeout.
func New(logger *slog.Logger) *Poster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poster{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// Post sends body as the JSON POST payload to url. Errors are logged at
// warn level and swallowed; callers must not treat a callback failure as an
// interaction failure.
func (p *Poster) Post(ctx context.Context, url string, body any) {
	if url == "" {
		return
	}
	payload, err := json.Marshal(body)
	if err != nil {
		p.logger.Warn("callback: marshal payload", "url", url, "error", err)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		p.logger.Warn("callback: build request", "url", url, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.logger.Warn("callback: post failed", "url", url, "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		p.logger.Warn("callback: non-2xx response", "url", url, "status", resp.StatusCode)
	}
}
