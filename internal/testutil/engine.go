package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hupe1980/vizier/core"
)

// Call records one Chat invocation.
type Call struct {
	Context core.SessionContext
	Request core.Request
}

// ScriptedEngine is a core.CompletionEngine for tests. By default it replies
// "echo: <content>". It tracks the peak number of concurrent calls per
// session and overall.
type ScriptedEngine struct {
	// Reply overrides the default echo.
	Reply func(sc core.SessionContext, req core.Request) (string, error)

	// Delay is waited before replying. The wait honours ctx.
	Delay time.Duration

	mu        sync.Mutex
	calls     []Call
	gate      chan struct{}
	active    map[core.SessionID]int
	peak      map[core.SessionID]int
	total     int
	peakTotal int
	started   chan core.SessionID
}

var _ core.CompletionEngine = (*ScriptedEngine)(nil)

// NewScriptedEngine returns an echoing engine.
func NewScriptedEngine() *ScriptedEngine {
	return &ScriptedEngine{
		active:  map[core.SessionID]int{},
		peak:    map[core.SessionID]int{},
		started: make(chan core.SessionID, 64),
	}
}

// Hold makes subsequent calls block until Release is called or their ctx ends.
func (e *ScriptedEngine) Hold() {
	e.mu.Lock()
	e.gate = make(chan struct{})
	e.mu.Unlock()
}

// Release unblocks calls parked by Hold.
func (e *ScriptedEngine) Release() {
	e.mu.Lock()
	if e.gate != nil {
		close(e.gate)
		e.gate = nil
	}
	e.mu.Unlock()
}

// Started delivers the session of every call as it begins.
func (e *ScriptedEngine) Started() <-chan core.SessionID { return e.started }

// Chat implements core.CompletionEngine.
func (e *ScriptedEngine) Chat(ctx context.Context, sc core.SessionContext, req core.Request) (string, error) {
	e.mu.Lock()
	e.calls = append(e.calls, Call{Context: sc, Request: req})
	e.active[sc.Session]++
	if e.active[sc.Session] > e.peak[sc.Session] {
		e.peak[sc.Session] = e.active[sc.Session]
	}
	e.total++
	if e.total > e.peakTotal {
		e.peakTotal = e.total
	}
	gate := e.gate
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.active[sc.Session]--
		e.total--
		e.mu.Unlock()
	}()

	select {
	case e.started <- sc.Session:
	default:
	}

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if e.Delay > 0 {
		t := time.NewTimer(e.Delay)
		defer t.Stop()

		select {
		case <-t.C:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	if e.Reply != nil {
		return e.Reply(sc, req)
	}

	return fmt.Sprintf("echo: %s", req.Content), nil
}

// Calls returns a copy of the recorded calls.
func (e *ScriptedEngine) Calls() []Call {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Call, len(e.calls))
	copy(out, e.calls)

	return out
}

// CallCount returns the number of Chat invocations.
func (e *ScriptedEngine) CallCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.calls)
}

// PeakConcurrency returns the most concurrent calls observed for session.
func (e *ScriptedEngine) PeakConcurrency(session core.SessionID) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.peak[session]
}

// PeakTotalConcurrency returns the most concurrent calls observed overall.
func (e *ScriptedEngine) PeakTotalConcurrency() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.peakTotal
}

// Factory returns a session engine factory that hands out e for every session.
func (e *ScriptedEngine) Factory() func(core.SessionID) (core.CompletionEngine, error) {
	return func(core.SessionID) (core.CompletionEngine, error) { return e, nil }
}

// SummarizingEngine adds core.Summarizer to a ScriptedEngine.
type SummarizingEngine struct {
	*ScriptedEngine

	// Summary is returned by Summarize. Err, when set, is returned instead.
	Summary string
	Err     error

	mu        sync.Mutex
	summaries []core.SessionContext
}

var _ core.Summarizer = (*SummarizingEngine)(nil)

// NewSummarizingEngine returns an echoing engine that summarizes to summary.
func NewSummarizingEngine(summary string) *SummarizingEngine {
	return &SummarizingEngine{ScriptedEngine: NewScriptedEngine(), Summary: summary}
}

// Summarize implements core.Summarizer.
func (e *SummarizingEngine) Summarize(_ context.Context, sc core.SessionContext) (string, error) {
	e.mu.Lock()
	e.summaries = append(e.summaries, sc)
	e.mu.Unlock()

	if e.Err != nil {
		return "", e.Err
	}

	return e.Summary, nil
}

// SummaryCalls returns the contexts passed to Summarize.
func (e *SummarizingEngine) SummaryCalls() []core.SessionContext {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]core.SessionContext, len(e.summaries))
	copy(out, e.summaries)

	return out
}

// Factory returns a session engine factory that hands out e for every session.
func (e *SummarizingEngine) Factory() func(core.SessionID) (core.CompletionEngine, error) {
	return func(core.SessionID) (core.CompletionEngine, error) { return e, nil }
}
