package core

import "time"

const (
	// ResetCommand is the reserved content that flushes a session instead of
	// invoking the completion engine. Matching is exact and case-sensitive.
	ResetCommand = "/lobotomy"

	// ResetAcknowledgement is the literal reply sent after a reset.
	ResetAcknowledgement = "YIPEEEE"
)

// Request is a single inbound message addressed to a session.
type Request struct {
	Sender  string `json:"sender"`
	Content string `json:"content"`
	// IsSilentRead marks a request that is recorded into conversation memory
	// without producing a reply (passive channel observation).
	IsSilentRead bool `json:"is_silent_read"`
	// Metadata is JSON-normalized by the bus: numbers arrive as json.Number,
	// nested objects as map[string]any.
	Metadata   map[string]any `json:"metadata,omitempty"`
	ReceivedAt time.Time      `json:"received_at"`
}

// NewRequest builds a chat request stamped with the current time.
func NewRequest(sender, content string) Request {
	return Request{Sender: sender, Content: content, ReceivedAt: time.Now()}
}

// IsReset reports whether the request carries the reset control token.
func (r Request) IsReset() bool { return r.Content == ResetCommand }

// Inbound pairs a request with the session it is addressed to.
type Inbound struct {
	Session SessionID `json:"session"`
	Request Request   `json:"request"`
}
