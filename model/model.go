package model

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Role identifies the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single turn handed to a provider.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request captures the normalized model input produced by the engine.
type Request struct {
	Instructions string    `json:"instructions"` // System prompt
	Messages     []Message `json:"messages"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the final completion emitted by a model.
type Response struct {
	ID           string      `json:"id"`
	Text         string      `json:"text"`
	FinishReason string      `json:"finish_reason"` // "stop", "length", etc.
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name     string `json:"name"`
	Provider string `json:"provider"` // "openai", "anthropic", "ollama", etc.
}

// Model is the minimal interface required by the engine to drive generation.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// ErrNoMessages is returned when a request carries no messages.
var ErrNoMessages = errors.New("model: no messages provided")

// Collect drains a Generate call and returns the last response.
func Collect(ctx context.Context, m Model, req Request) (Response, error) {
	respCh, errCh := m.Generate(ctx, req)

	var (
		last Response
		got  bool
	)

	for respCh != nil || errCh != nil {
		select {
		case r, ok := <-respCh:
			if !ok {
				respCh = nil
				continue
			}

			last, got = r, true
		case err, ok := <-errCh:
			if !ok {
				errCh = nil
				continue
			}

			if err != nil {
				return Response{}, err
			}
		case <-ctx.Done():
			return Response{}, ctx.Err()
		}
	}

	if !got {
		return Response{}, fmt.Errorf("model %s: no response", m.Info().Name)
	}

	return last, nil
}

// MockModel is a lightweight in-memory Model useful for tests & examples.
type MockModel struct {
	info Info

	mu        sync.Mutex
	responses map[string]string
	requests  []Request
	err       error
}

var _ Model = (*MockModel)(nil)

// NewMockModel constructs a MockModel.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info:      Info{Name: name, Provider: provider},
		responses: make(map[string]string),
	}
}

// AddResponse registers a deterministic canned completion for the content of
// the last message.
func (m *MockModel) AddResponse(prompt, response string) {
	m.mu.Lock()
	m.responses[prompt] = response
	m.mu.Unlock()
}

// FailWith makes subsequent Generate calls fail with err (nil clears).
func (m *MockModel) FailWith(err error) {
	m.mu.Lock()
	m.err = err
	m.mu.Unlock()
}

// Requests returns the requests seen so far.
func (m *MockModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Request, len(m.requests))
	copy(out, m.requests)

	return out
}

// Generate implements Model.
func (m *MockModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 1)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.requests = append(m.requests, req)
	failure := m.err
	var full string
	if len(req.Messages) > 0 {
		full = m.responses[req.Messages[len(req.Messages)-1].Content]
	}
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)

		if failure != nil {
			errCh <- failure
			return
		}

		if len(req.Messages) == 0 {
			errCh <- ErrNoMessages
			return
		}

		if full == "" {
			full = fmt.Sprintf("Mock response to: %s", req.Messages[len(req.Messages)-1].Content)
		}

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- Response{Text: full, FinishReason: "stop"}:
		}
	}()

	return respCh, errCh
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
