// Package dispatch drains inbound requests from the bus and applies them to
// the session registry.
//
// Each session gets a FIFO lane served by its own worker goroutine, started
// when the first request for an idle session arrives and exiting once the
// lane is empty. Requests for one session are applied in submission order;
// distinct sessions proceed concurrently. The reset command is answered with
// a fixed acknowledgement without calling the engine, silent reads are only
// recorded, and chats run under a heartbeat that is stopped before the reply
// is published.
package dispatch
