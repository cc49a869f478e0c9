package testutil

import (
	"time"

	"github.com/hupe1980/vizier/core"
)

// RequestBuilder helps construct requests with fluent chaining for tests.
// Example:
//
//	req := NewRequestBuilder("ada").Content("hi").Silent().Build()
type RequestBuilder struct {
	req core.Request
}

// NewRequestBuilder creates a builder for a request from sender.
func NewRequestBuilder(sender string) *RequestBuilder {
	return &RequestBuilder{req: core.Request{Sender: sender}}
}

// Content sets the request text (chainable).
func (b *RequestBuilder) Content(s string) *RequestBuilder {
	b.req.Content = s
	return b
}

// Reset makes the request carry the reset command (chainable).
func (b *RequestBuilder) Reset() *RequestBuilder {
	b.req.Content = core.ResetCommand
	return b
}

// Silent marks the request as a silent read (chainable).
func (b *RequestBuilder) Silent() *RequestBuilder {
	b.req.IsSilentRead = true
	return b
}

// Meta sets a metadata key (chainable).
func (b *RequestBuilder) Meta(key string, val any) *RequestBuilder {
	if b.req.Metadata == nil {
		b.req.Metadata = map[string]any{}
	}

	b.req.Metadata[key] = val

	return b
}

// At sets the receive time (chainable).
func (b *RequestBuilder) At(t time.Time) *RequestBuilder {
	b.req.ReceivedAt = t
	return b
}

// Build returns the request.
func (b *RequestBuilder) Build() core.Request {
	return b.req
}
