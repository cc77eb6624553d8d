package types

import (
	"encoding/json"
	"fmt"
)

// WSInboundType tags a client-to-server WebSocket frame.
type WSInboundType string

const (
	WSInboundMessage WSInboundType = "message"
	WSInboundContext WSInboundType = "context"
	WSInboundPing    WSInboundType = "ping"
)

// WSEnvelope is the single accepted shape for inbound WebSocket frames. The
// payload is decoded according to Type; unknown types are rejected at the
// boundary so the core only ever sees validated requests.
type WSEnvelope struct {
	Type WSInboundType   `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// WSMessageData is the payload of a "message" frame.
type WSMessageData struct {
	Content        string    `json:"content"`
	QueryType      QueryType `json:"query_type,omitempty"`
	CurrentChapter int       `json:"current_chapter,omitempty"`
	SelectedText   string    `json:"selected_text,omitempty"`
	Persona        Persona   `json:"persona,omitempty"`
}

// WSContextData is the payload of a "context" frame carrying the learner's
// current page state.
type WSContextData struct {
	CurrentChapter int    `json:"current_chapter,omitempty"`
	CurrentPage    string `json:"current_page,omitempty"`
	PageContent    string `json:"page_content,omitempty"`
}

// DecodeMessage decodes a "message" envelope payload.
func (e *WSEnvelope) DecodeMessage() (*WSMessageData, error) {
	if e.Type != WSInboundMessage {
		return nil, fmt.Errorf("envelope type is %q, not %q", e.Type, WSInboundMessage)
	}
	var data WSMessageData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("invalid message payload: %w", err)
	}
	return &data, nil
}

// DecodeContext decodes a "context" envelope payload.
func (e *WSEnvelope) DecodeContext() (*WSContextData, error) {
	if e.Type != WSInboundContext {
		return nil, fmt.Errorf("envelope type is %q, not %q", e.Type, WSInboundContext)
	}
	var data WSContextData
	if err := json.Unmarshal(e.Data, &data); err != nil {
		return nil, fmt.Errorf("invalid context payload: %w", err)
	}
	return &data, nil
}
