// Package testutil contains helpers shared across package tests: a scripted
// completion engine that records calls and per-session concurrency, a
// response recorder standing in for the bus, a controllable clock and a
// fluent request builder. They are not intended for production usage.
package testutil
