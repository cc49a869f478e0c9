package web

import (
	"encoding/json"
	"net/http"

	"github.com/hupe1980/vizier/core"
)

// ChatRequest is a client frame on the chat socket.
type ChatRequest struct {
	User    string `json:"user"`
	Content string `json:"content"`
}

// ChatResponse is a server frame on the chat socket.
type ChatResponse struct {
	Content  string `json:"content"`
	Thinking bool   `json:"thinking"`
	Error    string `json:"error,omitempty"`
}

func chatResponse(resp core.Response) ChatResponse {
	switch resp.Kind {
	case core.ResponseThinking:
		return ChatResponse{Thinking: true}
	case core.ResponseError:
		return ChatResponse{Error: resp.Content}
	default:
		return ChatResponse{Content: resp.Content}
	}
}

// SessionResponse is the payload of session creation.
type SessionResponse struct {
	SessionID string `json:"session_id"`
}

// APIResponse is the REST envelope.
type APIResponse[T any] struct {
	Status  int     `json:"status"`
	Message *string `json:"message"`
	Data    *T      `json:"data"`
}

func writeData[T any](w http.ResponseWriter, status int, data T) {
	writeJSON(w, status, APIResponse[T]{Status: status, Data: &data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse[struct{}]{Status: status, Message: &msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
