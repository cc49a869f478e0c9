package core

import (
	"context"
	"time"
)

// Memory is a single entry in a session's recall buffer.
type Memory struct {
	Sender  string    `json:"sender"`
	Content string    `json:"content"`
	IsAgent bool      `json:"is_agent"`
	At      time.Time `json:"at"`
}

// SessionContext is the conversation state a session exposes to the
// completion engine: the optional rolling summary plus a chronological recall
// window whose last entry is the request being answered.
type SessionContext struct {
	Session SessionID
	Summary string
	Recall  []Memory
}

// CompletionEngine produces a natural-language reply for a request given the
// session's context. Implementations may be slow and fallible; callers bound
// them with ctx.
type CompletionEngine interface {
	Chat(ctx context.Context, sc SessionContext, req Request) (string, error)
}

// Summarizer is an optional CompletionEngine capability used to condense a
// full recall buffer into a rolling summary.
type Summarizer interface {
	Summarize(ctx context.Context, sc SessionContext) (string, error)
}

// CompletionEngineFunc adapts a function to CompletionEngine.
type CompletionEngineFunc func(ctx context.Context, sc SessionContext, req Request) (string, error)

// Chat implements CompletionEngine.
func (f CompletionEngineFunc) Chat(ctx context.Context, sc SessionContext, req Request) (string, error) {
	return f(ctx, sc, req)
}
