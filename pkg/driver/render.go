package driver

import (
	"encoding/json"

	"github.com/csml-run/csml-engine/pkg/value"
)

// wireMessage is the {content_type, content} envelope every outbound
// message is rendered into, both for the HTTP response and for what gets
// persisted as a message payload (spec.md §6 "payload{content_type,
// content}").
type wireMessage struct {
	ContentType string          `json:"content_type"`
	Content     json.RawMessage `json:"content"`
}

// renderMessage turns an evaluator-produced Value into its wire envelope.
// Strings render under a single field named after their content_type
// ("text"/"error", or "url" for the image/video/audio/file/url family);
// Objects (components, and any other structured say) pass their fields
// through directly as content; everything else falls back to its
// to_string() form under "text".
func renderMessage(v value.Value) (wireMessage, error) {
	ct := v.ContentType
	if ct == "" {
		ct = "text"
	}

	switch v.Kind {
	case value.String:
		key := contentKeyFor(ct)
		content, err := json.Marshal(map[string]string{key: v.AsString()})
		if err != nil {
			return wireMessage{}, err
		}
		return wireMessage{ContentType: ct, Content: content}, nil

	case value.Object:
		content, err := v.MarshalJSON()
		if err != nil {
			return wireMessage{}, err
		}
		return wireMessage{ContentType: ct, Content: content}, nil

	default:
		content, err := json.Marshal(map[string]string{"text": v.String()})
		if err != nil {
			return wireMessage{}, err
		}
		return wireMessage{ContentType: "text", Content: content}, nil
	}
}

func contentKeyFor(contentType string) string {
	switch contentType {
	case "error":
		return "error"
	case "image", "video", "audio", "file", "url":
		return "url"
	default:
		return "text"
	}
}

func marshalWireMessage(v value.Value) (string, error) {
	m, err := renderMessage(v)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
