package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/vizier/core"
)

// Agent is the per-session state owned by the Registry.
type Agent struct {
	id        core.SessionID
	engine    core.CompletionEngine
	ttl       time.Duration
	createdAt time.Time

	// lastInteract is read lock-free by staleness checks.
	lastInteract atomic.Int64

	mu      sync.Mutex
	memory  *Memory
	removed bool
}

func newAgent(id core.SessionID, engine core.CompletionEngine, depth int, ttl time.Duration, now time.Time) *Agent {
	a := &Agent{
		id:        id,
		engine:    engine,
		ttl:       ttl,
		createdAt: now,
		memory:    NewMemory(depth),
	}
	a.touch(now)

	return a
}

// ID returns the session this agent serves.
func (a *Agent) ID() core.SessionID { return a.id }

// TTL returns the idle duration after which the agent is stale.
func (a *Agent) TTL() time.Duration { return a.ttl }

// CreatedAt returns when the agent was created.
func (a *Agent) CreatedAt() time.Time { return a.createdAt }

// LastInteractAt returns the time of the last request handled.
func (a *Agent) LastInteractAt() time.Time {
	return time.Unix(0, a.lastInteract.Load())
}

// MemoryLen returns the number of recall entries. It waits for any in-flight
// request on the session.
func (a *Agent) MemoryLen() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.memory.Len()
}

// Summary returns the rolling summary. It waits for any in-flight request on
// the session.
func (a *Agent) Summary() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.memory.Summary()
}

func (a *Agent) touch(now time.Time) {
	a.lastInteract.Store(now.UnixNano())
}

func (a *Agent) isStale(now time.Time) bool {
	return now.Sub(a.LastInteractAt()) > a.ttl
}

// contextLocked snapshots the conversation for the engine. Caller holds mu.
func (a *Agent) contextLocked() core.SessionContext {
	return core.SessionContext{
		Session: a.id,
		Summary: a.memory.Summary(),
		Recall:  a.memory.Recall(),
	}
}
