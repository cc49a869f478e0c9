package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/vizier/core"
	"github.com/hupe1980/vizier/logging"
)

// AgentSender is the sender recorded for replies produced by the engine.
const AgentSender = "assistant"

// TimeoutPolicy decides what happens to a session whose completion call hits
// the CompletionTimeout deadline.
type TimeoutPolicy int

const (
	// TimeoutRelease fails the request and releases the session lock so the
	// next queued request proceeds. Memory keeps the unanswered request.
	TimeoutRelease TimeoutPolicy = iota
	// TimeoutEvict fails the request and evicts the whole session while it is
	// still locked. The next request starts from empty memory.
	TimeoutEvict
)

// String returns the policy name.
func (p TimeoutPolicy) String() string {
	switch p {
	case TimeoutRelease:
		return "release"
	case TimeoutEvict:
		return "evict"
	default:
		return fmt.Sprintf("TimeoutPolicy(%d)", int(p))
	}
}

// EngineFactory selects the completion engine for a newly created session.
// It runs under the registry lock and should not block.
type EngineFactory func(id core.SessionID) (core.CompletionEngine, error)

// Options configures a Registry.
type Options struct {
	// TTL is the idle duration after which a session is stale. Default 30m.
	TTL time.Duration

	// RecallDepth bounds each session's recall window. Default 20.
	RecallDepth int

	// EngineFactory is required.
	EngineFactory EngineFactory

	// CompletionTimeout bounds each engine call. Default 2m; zero disables.
	CompletionTimeout time.Duration

	// TimeoutPolicy applies when CompletionTimeout fires. Default TimeoutRelease.
	TimeoutPolicy TimeoutPolicy

	// Clock returns the current time. Default time.Now.
	Clock func() time.Time

	// Logger defaults to NoOp.
	Logger logging.Logger
}

// Defaults applied by New.
const (
	DefaultTTL               = 30 * time.Minute
	DefaultRecallDepth       = 20
	DefaultCompletionTimeout = 2 * time.Minute
)

// Registry maps session ids to agents. It is safe for concurrent use.
type Registry struct {
	factory EngineFactory
	ttl     time.Duration
	depth   int
	timeout time.Duration
	policy  TimeoutPolicy
	now     func() time.Time
	logger  logging.Logger

	mu     sync.RWMutex
	agents map[core.SessionID]*Agent
}

// New creates an empty Registry.
func New(optFns ...func(o *Options)) (*Registry, error) {
	opts := Options{
		TTL:               DefaultTTL,
		RecallDepth:       DefaultRecallDepth,
		CompletionTimeout: DefaultCompletionTimeout,
		TimeoutPolicy:     TimeoutRelease,
		Clock:             time.Now,
		Logger:            logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.EngineFactory == nil {
		return nil, errors.New("session: engine factory is required")
	}

	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}

	if opts.CompletionTimeout < 0 {
		opts.CompletionTimeout = 0
	}

	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Registry{
		factory: opts.EngineFactory,
		ttl:     opts.TTL,
		depth:   opts.RecallDepth,
		timeout: opts.CompletionTimeout,
		policy:  opts.TimeoutPolicy,
		now:     opts.Clock,
		logger:  logging.OrNoOp(opts.Logger),
		agents:  make(map[core.SessionID]*Agent),
	}, nil
}

// GetOrCreate returns the agent for id, creating it if absent. Concurrent
// first requests for the same id observe the same agent.
func (r *Registry) GetOrCreate(id core.SessionID) (*Agent, error) {
	if a, ok := r.Lookup(id); ok {
		return a, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.agents[id]; ok {
		return a, nil
	}

	engine, err := r.factory(id)
	if err != nil {
		return nil, &core.RegistryError{Op: "create", Session: id, Err: err}
	}

	if engine == nil {
		return nil, &core.RegistryError{Op: "create", Session: id, Err: errors.New("engine factory returned nil")}
	}

	a := newAgent(id, engine, r.depth, r.ttl, r.now())
	r.agents[id] = a

	r.logger.Debug("Session created", "session", id.String())

	return a, nil
}

// Lookup returns the agent for id without creating it.
func (r *Registry) Lookup(id core.SessionID) (*Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.agents[id]

	return a, ok
}

// acquire returns a live, locked agent for id. An agent removed between
// lookup and lock is skipped in favour of a fresh one.
func (r *Registry) acquire(id core.SessionID) (*Agent, error) {
	for {
		a, err := r.GetOrCreate(id)
		if err != nil {
			return nil, err
		}

		a.mu.Lock()

		if !a.removed {
			return a, nil
		}

		a.mu.Unlock()
	}
}

// HandleChat records req, asks the session's engine for a reply, records the
// reply and returns it. Requests for the same session are serialized.
func (r *Registry) HandleChat(ctx context.Context, id core.SessionID, req core.Request) (string, error) {
	a, err := r.acquire(id)
	if err != nil {
		return "", err
	}
	defer a.mu.Unlock()

	now := r.now()
	a.memory.Push(r.userEntry(req, now))
	a.touch(now)

	callCtx, cancel := r.completionContext(ctx)
	defer cancel()

	reply, err := a.engine.Chat(callCtx, a.contextLocked(), req)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) && r.policy == TimeoutEvict {
			r.evictLocked(a)
			r.logger.Warn("Session evicted after completion timeout", "session", id.String(), "timeout", r.timeout)
		} else {
			a.touch(r.now())
		}

		return "", &core.CompletionError{Session: id, Err: err}
	}

	reply = core.StripThinkTags(reply)
	a.memory.Push(core.Memory{Sender: AgentSender, Content: reply, IsAgent: true, At: r.now()})

	if a.memory.NeedsSummary() {
		r.summarizeLocked(ctx, a)
	}

	a.touch(r.now())

	return reply, nil
}

// HandleSilentRead records req without calling the engine.
func (r *Registry) HandleSilentRead(id core.SessionID, req core.Request) error {
	a, err := r.acquire(id)
	if err != nil {
		return err
	}
	defer a.mu.Unlock()

	now := r.now()
	a.memory.Push(r.userEntry(req, now))
	a.touch(now)

	return nil
}

// HandleReset flushes the session's memory and summary. Resetting an unknown
// session is a no-op.
func (r *Registry) HandleReset(id core.SessionID) error {
	a, ok := r.Lookup(id)
	if !ok {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.removed {
		return nil
	}

	a.memory.Flush()
	a.touch(r.now())

	r.logger.Debug("Session reset", "session", id.String())

	return nil
}

// IsStale reports whether id has been idle longer than its TTL. Unknown
// sessions are not stale. It never blocks on an in-flight request.
func (r *Registry) IsStale(id core.SessionID, now time.Time) bool {
	a, ok := r.Lookup(id)
	if !ok {
		return false
	}

	return a.isStale(now)
}

// Remove deletes id after waiting for any in-flight request. It reports
// whether an agent was removed.
func (r *Registry) Remove(id core.SessionID) bool {
	a, ok := r.Lookup(id)
	if !ok {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.removed {
		return false
	}

	r.evictLocked(a)

	return true
}

// RemoveIfStale deletes id only if it is still stale once its lock is held,
// so a request that finished while the caller waited keeps the session alive.
func (r *Registry) RemoveIfStale(id core.SessionID, now time.Time) bool {
	a, ok := r.Lookup(id)
	if !ok {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.removed || !a.isStale(now) {
		return false
	}

	r.evictLocked(a)

	return true
}

// Sessions returns a sorted snapshot of the registered session ids.
func (r *Registry) Sessions() []core.SessionID {
	r.mu.RLock()
	ids := make([]core.SessionID, 0, len(r.agents))

	for id := range r.agents {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	return ids
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.agents)
}

// evictLocked tombstones a and drops it from the map. Caller holds a.mu.
func (r *Registry) evictLocked(a *Agent) {
	a.removed = true

	r.mu.Lock()
	if cur, ok := r.agents[a.id]; ok && cur == a {
		delete(r.agents, a.id)
	}
	r.mu.Unlock()
}

// summarizeLocked condenses a full window when the engine supports it.
// Failures keep the window as is. Caller holds a.mu.
func (r *Registry) summarizeLocked(ctx context.Context, a *Agent) {
	s, ok := a.engine.(core.Summarizer)
	if !ok {
		return
	}

	callCtx, cancel := r.completionContext(ctx)
	defer cancel()

	summary, err := s.Summarize(callCtx, a.contextLocked())
	if err != nil {
		r.logger.Warn("Session summary failed", "session", a.id.String(), "error", err)
		return
	}

	a.memory.ApplySummary(core.StripThinkTags(summary))

	r.logger.Debug("Session summarized", "session", a.id.String())
}

func (r *Registry) completionContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout > 0 {
		return context.WithTimeout(ctx, r.timeout)
	}

	return context.WithCancel(ctx)
}

func (r *Registry) userEntry(req core.Request, now time.Time) core.Memory {
	at := req.ReceivedAt
	if at.IsZero() {
		at = now
	}

	return core.Memory{Sender: req.Sender, Content: req.Content, At: at}
}
