// Package model defines the provider-agnostic abstraction the completion
// engine drives, plus a MockModel for tests.
//
// Providers (OpenAI-compatible endpoints, Anthropic) implement Model in sub
// packages so the engine stays decoupled from vendor SDKs. Collect drains a
// Generate call into its final Response.
package model
