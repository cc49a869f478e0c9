package core

import "context"

// Transport is the surface of the message bus a channel adapter consumes:
// push requests in, subscribe to the responses of its own channel kind.
type Transport interface {
	EnqueueRequest(session SessionID, req Request) error
	Subscribe(ctx context.Context, kind ChannelKind) (<-chan Outbound, error)
}

// ChannelAdapter is a protocol-specific front-end (chat platform gateway,
// WebSocket server, ...). Run blocks until ctx is cancelled or the adapter
// fails.
type ChannelAdapter interface {
	Kind() ChannelKind
	Run(ctx context.Context, t Transport) error
}
