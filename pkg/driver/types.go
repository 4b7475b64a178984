// Package driver is the execution driver (spec.md §4.4): per interaction it
// selects the starting flow/step, runs the evaluator to completion or
// suspension, applies the events it emits against the persistence façade,
// and returns the interaction's transcript.
package driver

import "github.com/csml-run/csml-engine/pkg/eval"

// Client identifies the caller, mirroring store.Client but kept as its own
// wire type since the request/response JSON shape (spec.md §6) is distinct
// from the storage layer's.
type Client struct {
	BotID     string `json:"bot_id"`
	ChannelID string `json:"channel_id"`
	UserID    string `json:"user_id"`
}

// Payload is the event body (spec.md §6 "payload{content_type, content,
// secure?}").
type Payload struct {
	ContentType string         `json:"content_type"`
	Content     map[string]any `json:"content"`
	Secure      bool           `json:"secure,omitempty"`
}

// Request is a CsmlRequest (spec.md §6 "Ingest").
type Request struct {
	RequestID   string         `json:"request_id"`
	Client      Client         `json:"client"`
	CallbackURL string         `json:"callback_url,omitempty"`
	Payload     Payload        `json:"payload"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	StepLimit   *int           `json:"step_limit,omitempty"`
	TTLDuration *int           `json:"ttl_duration,omitempty"` // days
	LowDataMode bool           `json:"low_data_mode,omitempty"`
}

// ResponseMessage is one entry of Response.Messages.
type ResponseMessage struct {
	Payload          string `json:"payload"`
	InteractionOrder int    `json:"interaction_order"`
	ConversationID   string `json:"conversation_id"`
	Direction        string `json:"direction"`
}

// Response is a CsmlResponse (spec.md §6 "Response").
type Response struct {
	Messages        []ResponseMessage `json:"messages"`
	ConversationEnd bool              `json:"conversation_end"`
	RequestID       string            `json:"request_id"`
	ReceivedAt      string            `json:"received_at"`
	Client          Client            `json:"client"`

	// Trace is attached only when the engine runs with DEBUG=true (spec.md
	// §6 env vars; SPEC_FULL.md §4.4 debug-trace supplement); nothing
	// appends entries to it, so it is always empty.
	Trace []eval.Log `json:"trace,omitempty"`
}

// SwitchBot is returned alongside a Response when the interaction ended in a
// `goto bot` the target bot allows: the caller (API/CLI layer) must load the
// target bot version and re-enter Run once with a synthesized flow_trigger
// event at (Flow, Step) (spec.md §4.4 "return a SwitchBot directive to the
// outer layer").
type SwitchBot struct {
	BotID string
	Flow  string
	Step  string
}

// emptyResponse is returned by the no-interruption-delay guard: spec.md §4.4
// says to "drop the request (return empty)".
func emptyResponse(req Request, now string) Response {
	return Response{
		Messages:        []ResponseMessage{},
		ConversationEnd: false,
		RequestID:       req.RequestID,
		ReceivedAt:      now,
		Client:          req.Client,
	}
}
