package heartbeat

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hupe1980/vizier/core"
	"github.com/hupe1980/vizier/logging"
)

// DefaultInterval is the emission period used when Options.Interval is not
// positive.
const DefaultInterval = 5 * time.Second

// State is the lifecycle position of a Supervisor.
type State int32

const (
	Idle State = iota
	Emitting
	Cancelled
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Emitting:
		return "emitting"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Publisher accepts responses for delivery.
type Publisher interface {
	EnqueueResponse(session core.SessionID, resp core.Response) error
}

// Options configures a Supervisor.
type Options struct {
	Interval time.Duration
	Logger   logging.Logger
}

// Supervisor publishes Thinking for one session until stopped.
type Supervisor struct {
	session   core.SessionID
	publisher Publisher
	interval  time.Duration
	logger    logging.Logger

	state   atomic.Int32
	emitted atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns an Idle supervisor for session.
func New(session core.SessionID, publisher Publisher, optFns ...func(o *Options)) *Supervisor {
	opts := Options{
		Interval: DefaultInterval,
		Logger:   logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}

	return &Supervisor{
		session:   session,
		publisher: publisher,
		interval:  opts.Interval,
		logger:    logging.OrNoOp(opts.Logger),
	}
}

// Start begins emitting. It is a no-op unless the supervisor is Idle. The
// emitter also stops when ctx is done.
func (s *Supervisor) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.CompareAndSwap(int32(Idle), int32(Emitting)) {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.run(ctx, s.done)
}

// Stop cancels emission and waits for the emitter to exit. It is idempotent
// and safe to call on a supervisor that was never started.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	prev := State(s.state.Swap(int32(Cancelled)))
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	if prev != Emitting {
		return
	}

	cancel()
	<-done
}

// State returns the current state.
func (s *Supervisor) State() State { return State(s.state.Load()) }

// Emitted returns how many Thinking responses were published.
func (s *Supervisor) Emitted() int { return int(s.emitted.Load()) }

func (s *Supervisor) run(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.emit(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.emit(ctx)
		}
	}
}

func (s *Supervisor) emit(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	if err := s.publisher.EnqueueResponse(s.session, core.Thinking()); err != nil {
		s.logger.Warn("Heartbeat publish failed", "session", s.session.String(), "error", err)
		return
	}

	s.emitted.Add(1)
}
