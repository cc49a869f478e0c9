// Package transport implements the in-process message bus that carries
// requests from channel adapters to the dispatcher and responses back out.
//
// The bus is built on Watermill's gochannel pub/sub. Requests travel on a
// single topic and are drained FIFO across all sessions; responses are routed
// into one topic per channel kind, so a subscriber for one kind never observes
// another kind's traffic. Every topic is subscribed at construction and fed
// into a bounded queue. Publishers reserve a slot first, so enqueueing into a
// full queue fails with core.ErrQueueFull instead of blocking.
//
// All failures surface as *core.TransportError. Callers are expected to log
// and drop; a failed enqueue never affects other sessions.
package transport
