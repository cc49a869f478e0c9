package engine

import (
	"context"
	"sync"

	"github.com/hupe1980/vizier/core"
	"github.com/hupe1980/vizier/logging"
	"github.com/hupe1980/vizier/model"
)

// CallbackType defines the lifecycle points around a model call where
// callbacks run.
//
// Callbacks run synchronously. A BeforeModel callback returning an error
// aborts the call without contacting the provider.
type CallbackType string

const (
	// CallbackBeforeModel runs before each provider attempt.
	CallbackBeforeModel CallbackType = "before_model"

	// CallbackAfterModel runs after a successful provider attempt. It may
	// rewrite CallbackContext.Response.
	CallbackAfterModel CallbackType = "after_model"

	// CallbackOnError runs after a failed provider attempt.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext carries the state of one provider attempt.
type CallbackContext struct {
	Session      core.SessionID
	CallbackType CallbackType

	// Purpose is "chat" or "summarize".
	Purpose string
	Attempt int

	Request  *model.Request
	Response *model.Response
	Err      error

	// Metadata provides extensible storage for custom callback data.
	Metadata map[string]any
}

// Callback defines the interface for model lifecycle hooks.
type Callback interface {
	Type() CallbackType
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
// Example:
//
//	cb := NewFunctionCallback(CallbackBeforeModel, func(ctx context.Context, cc *CallbackContext) error {
//	    cc.Request.Instructions += "\nAnswer in English."
//	    return nil
//	})
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute calls the wrapped function with the provided context.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager holds callbacks by type and runs them in registration
// order, stopping at the first error. It is safe for concurrent use.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty callback manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a callback for its type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks runs every callback registered for callbackType. A nil
// manager runs nothing.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	if cm == nil {
		return nil
	}

	cm.mu.RLock()
	callbacks := append([]Callback(nil), cm.callbacks[callbackType]...)
	cm.mu.RUnlock()

	callbackCtx.CallbackType = callbackType

	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return err
		}
	}

	return nil
}

// LoggingCallback writes one structured log line per lifecycle event.
type LoggingCallback struct {
	callbackType CallbackType
	logger       logging.Logger
}

// NewLoggingCallback creates a logging callback for callbackType.
func NewLoggingCallback(callbackType CallbackType, logger logging.Logger) *LoggingCallback {
	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logging.OrNoOp(logger),
	}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute logs the event. It never fails.
func (c *LoggingCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	args := []any{
		"callback", string(callbackCtx.CallbackType),
		"session", callbackCtx.Session.String(),
		"purpose", callbackCtx.Purpose,
		"attempt", callbackCtx.Attempt,
	}

	if callbackCtx.Response != nil {
		args = append(args, "finish_reason", callbackCtx.Response.FinishReason)
		if u := callbackCtx.Response.Usage; u != nil {
			args = append(args, "total_tokens", u.TotalTokens)
		}
	}

	if callbackCtx.Err != nil {
		c.logger.Warn("Model callback", append(args, "error", callbackCtx.Err)...)
		return nil
	}

	c.logger.Debug("Model callback", args...)

	return nil
}
