// Package logging provides a minimal logging interface and adapters for vizier.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the bus, registry, dispatcher and reaper use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter and VizierLogger wrapping Go's structured logging
//   - ZerologAdapter for applications already standardized on zerolog
//   - WatermillAdapter bridging a Logger into watermill.LoggerAdapter
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	app, err := vizier.New(factory, func(o *vizier.Options) { o.Logger = logger })
//
// Arguments after the message are alternating key/value pairs.
package logging
