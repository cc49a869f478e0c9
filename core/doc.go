// Package core provides the foundational domain types and collaborator
// contracts used by vizier. It defines:
//
//   - Session identities (SessionID) tagged by the originating channel kind
//   - Requests flowing from channel adapters to the dispatcher
//   - Responses (thinking, message, error) flowing back out
//   - The CompletionEngine capability consumed by the session registry
//   - The Transport and ChannelAdapter contracts consumed by front-ends
//   - The error taxonomy shared across the transport, registry and dispatch layers
//
// The package intentionally keeps implementation concerns (queues, locking,
// provider SDKs) out of scope, exposing small types and interfaces so each
// layer can be tested in isolation.
package core
