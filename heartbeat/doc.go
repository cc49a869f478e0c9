// Package heartbeat emits periodic Thinking responses for a session while a
// chat call is in flight.
//
// A Supervisor is single use. Start moves it from Idle to Emitting and sends
// the first Thinking at once; Stop moves it to Cancelled and returns only once
// the emitter goroutine has exited, so nothing is published after Stop.
package heartbeat
