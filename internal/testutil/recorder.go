package testutil

import (
	"sync"
	"time"

	"github.com/hupe1980/vizier/core"
)

// Recorder collects responses in place of a bus. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	out    []core.Outbound
	err    error
	notify chan struct{}
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{notify: make(chan struct{}, 1)}
}

// FailWith makes subsequent EnqueueResponse calls return err (nil clears).
func (r *Recorder) FailWith(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// EnqueueResponse records resp.
func (r *Recorder) EnqueueResponse(session core.SessionID, resp core.Response) error {
	r.mu.Lock()
	if r.err != nil {
		err := r.err
		r.mu.Unlock()

		return err
	}
	r.out = append(r.out, core.Outbound{Session: session, Response: resp})
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}

	return nil
}

// All returns a copy of everything recorded.
func (r *Recorder) All() []core.Outbound {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]core.Outbound, len(r.out))
	copy(out, r.out)

	return out
}

// For returns the responses recorded for session.
func (r *Recorder) For(session core.SessionID) []core.Response {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []core.Response

	for _, o := range r.out {
		if o.Session == session {
			out = append(out, o.Response)
		}
	}

	return out
}

// Count returns how many responses of kind were recorded.
func (r *Recorder) Count(kind core.ResponseKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0

	for _, o := range r.out {
		if o.Response.Kind == kind {
			n++
		}
	}

	return n
}

// WaitFor blocks until at least n responses of kind were recorded or timeout
// elapses, and reports whether the count was reached.
func (r *Recorder) WaitFor(kind core.ResponseKind, n int, timeout time.Duration) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		if r.Count(kind) >= n {
			return true
		}

		select {
		case <-r.notify:
		case <-deadline.C:
			return r.Count(kind) >= n
		}
	}
}
