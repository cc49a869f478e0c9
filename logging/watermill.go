package logging

import (
	"github.com/ThreeDotsLabs/watermill"
)

// WatermillAdapter bridges a Logger into watermill.LoggerAdapter so the
// in-process pub/sub reports through the same sink as the rest of vizier.
// Watermill trace output is folded into debug.
type WatermillAdapter struct {
	logger Logger
	fields watermill.LogFields
}

var _ watermill.LoggerAdapter = (*WatermillAdapter)(nil)

// NewWatermillAdapter wraps l; a nil l discards everything.
func NewWatermillAdapter(l Logger) *WatermillAdapter {
	return &WatermillAdapter{logger: OrNoOp(l), fields: watermill.LogFields{}}
}

// Error implements watermill.LoggerAdapter.
func (w *WatermillAdapter) Error(msg string, err error, fields watermill.LogFields) {
	w.logger.Error(msg, append(w.args(fields), "error", err)...)
}

// Info implements watermill.LoggerAdapter.
func (w *WatermillAdapter) Info(msg string, fields watermill.LogFields) {
	w.logger.Info(msg, w.args(fields)...)
}

// Debug implements watermill.LoggerAdapter.
func (w *WatermillAdapter) Debug(msg string, fields watermill.LogFields) {
	w.logger.Debug(msg, w.args(fields)...)
}

// Trace implements watermill.LoggerAdapter.
func (w *WatermillAdapter) Trace(msg string, fields watermill.LogFields) {
	w.logger.Debug(msg, w.args(fields)...)
}

// With implements watermill.LoggerAdapter.
func (w *WatermillAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	merged := make(watermill.LogFields, len(w.fields)+len(fields))
	for k, v := range w.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &WatermillAdapter{logger: w.logger, fields: merged}
}

func (w *WatermillAdapter) args(fields watermill.LogFields) []any {
	args := make([]any, 0, 2*(len(w.fields)+len(fields)))
	for k, v := range w.fields {
		if _, overridden := fields[k]; overridden {
			continue
		}
		args = append(args, k, v)
	}
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}
