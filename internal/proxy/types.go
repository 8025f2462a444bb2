package proxy

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Message is a single chat message in OpenAI wire format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the outbound chat completion payload. Messages are passed
// through verbatim from the caller. Stream is always sent as false: the relay
// simulates streaming locally.
type ChatRequest struct {
	Model       string          `json:"model"`
	Messages    json.RawMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens"`
	Stream      bool            `json:"stream"`
}

// Attempt records one failed delivery to a candidate endpoint. Only the
// fields relevant to the failure kind are set.
type Attempt struct {
	URL    string `json:"url"`
	Status int    `json:"status,omitempty"`
	Body   string `json:"body,omitempty"`
	Error  string `json:"error,omitempty"`
	Detail string `json:"detail,omitempty"`
}

// Outcome is the result of a single pass over the endpoint list. When OK is
// true Data holds the parsed upstream body and SourceURL the endpoint that
// produced it; otherwise Attempts lists every failure in endpoint order.
// Canceled is set when the caller's context ended the pass; Attempts then
// holds only the failures seen before cancellation.
type Outcome struct {
	OK        bool
	Canceled  bool
	Data      json.RawMessage
	SourceURL string
	Attempts  []Attempt
}

// CompletionText returns choices[0].message.content, or "" when the body is
// missing, shaped differently, or the content is not a string. Later choices
// are never inspected.
func (o Outcome) CompletionText() string {
	if !o.OK || len(o.Data) == 0 {
		return ""
	}
	content := gjson.GetBytes(o.Data, "choices.0.message.content")
	if content.Type != gjson.String {
		return ""
	}
	return content.String()
}
