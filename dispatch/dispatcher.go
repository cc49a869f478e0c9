package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/hupe1980/vizier/core"
	"github.com/hupe1980/vizier/heartbeat"
	"github.com/hupe1980/vizier/logging"
	"github.com/hupe1980/vizier/session"
)

// Bus is the transport surface the dispatcher consumes.
type Bus interface {
	DequeueRequest(ctx context.Context) (core.Inbound, error)
	EnqueueResponse(id core.SessionID, resp core.Response) error
}

// Sessions is the registry surface the dispatcher consumes.
type Sessions interface {
	GetOrCreate(id core.SessionID) (*session.Agent, error)
	HandleChat(ctx context.Context, id core.SessionID, req core.Request) (string, error)
	HandleSilentRead(id core.SessionID, req core.Request) error
	HandleReset(id core.SessionID) error
}

var _ Sessions = (*session.Registry)(nil)

// Options configures a Dispatcher.
type Options struct {
	// HeartbeatInterval is the Thinking period during a chat. Default 5s.
	HeartbeatInterval time.Duration

	// ReportErrors publishes a core.ResponseError when a chat fails instead
	// of leaving the requester without a reply.
	ReportErrors bool

	// MaxConcurrentChats caps engine calls in flight across all sessions.
	// Waiting chats keep their heartbeat running. Zero means unlimited.
	MaxConcurrentChats int64

	// Logger defaults to NoOp.
	Logger logging.Logger
}

// Dispatcher routes inbound requests to per-session lanes.
type Dispatcher struct {
	bus          Bus
	sessions     Sessions
	interval     time.Duration
	reportErrors bool
	limit        *semaphore.Weighted
	logger       logging.Logger

	mu    sync.Mutex
	lanes map[core.SessionID]*lane

	wg sync.WaitGroup
}

type lane struct {
	queue []core.Inbound
}

func (l *lane) enqueueLocked(in core.Inbound) int {
	l.queue = append(l.queue, in)
	return len(l.queue)
}

func (l *lane) dequeueLocked() (core.Inbound, bool) {
	if len(l.queue) == 0 {
		return core.Inbound{}, false
	}

	in := l.queue[0]
	l.queue[0] = core.Inbound{}
	l.queue = l.queue[1:]

	return in, true
}

// New returns a Dispatcher reading from bus and applying to sessions.
func New(bus Bus, sessions Sessions, optFns ...func(o *Options)) *Dispatcher {
	opts := Options{
		HeartbeatInterval: heartbeat.DefaultInterval,
		Logger:            logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	var limit *semaphore.Weighted
	if opts.MaxConcurrentChats > 0 {
		limit = semaphore.NewWeighted(opts.MaxConcurrentChats)
	}

	return &Dispatcher{
		bus:          bus,
		sessions:     sessions,
		interval:     opts.HeartbeatInterval,
		reportErrors: opts.ReportErrors,
		limit:        limit,
		logger:       logging.OrNoOp(opts.Logger),
		lanes:        make(map[core.SessionID]*lane),
	}
}

// Run dequeues until ctx is cancelled or the bus is closed, then waits for
// in-flight lanes to finish. Per-request failures never end the loop.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.logger.Info("Dispatcher started")
	defer d.logger.Info("Dispatcher stopped")
	defer d.wg.Wait()

	for {
		in, err := d.bus.DequeueRequest(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, core.ErrClosed) {
				return nil
			}

			d.logger.Warn("Dequeue failed", "error", err)

			continue
		}

		d.submit(ctx, in)
	}
}

// Busy returns the number of sessions with a running lane worker.
func (d *Dispatcher) Busy() int {
	d.mu.Lock()
	defer d.mu.Unlock()

	return len(d.lanes)
}

func (d *Dispatcher) submit(ctx context.Context, in core.Inbound) {
	d.mu.Lock()

	l, running := d.lanes[in.Session]
	if !running {
		l = &lane{}
		d.lanes[in.Session] = l
	}

	depth := l.enqueueLocked(in)

	d.mu.Unlock()

	if running {
		d.logger.Debug("Request queued behind in-flight work", "session", in.Session.String(), "depth", depth)
		return
	}

	d.wg.Add(1)

	go d.drain(ctx, in.Session, l)
}

func (d *Dispatcher) drain(ctx context.Context, id core.SessionID, l *lane) {
	defer d.wg.Done()

	for {
		d.mu.Lock()

		in, ok := l.dequeueLocked()
		if !ok {
			delete(d.lanes, id)
			d.mu.Unlock()

			return
		}

		d.mu.Unlock()

		if ctx.Err() != nil {
			d.logger.Debug("Dropping request after shutdown", "session", id.String())
			continue
		}

		d.process(ctx, in)
	}
}

func (d *Dispatcher) process(ctx context.Context, in core.Inbound) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Request panicked", "session", in.Session.String(), "panic", fmt.Sprint(r))
		}
	}()

	switch {
	case in.Request.IsReset():
		d.handleReset(in.Session)
	case in.Request.IsSilentRead:
		d.handleSilentRead(in)
	default:
		d.handleChat(ctx, in)
	}
}

func (d *Dispatcher) handleReset(id core.SessionID) {
	if err := d.sessions.HandleReset(id); err != nil {
		d.logger.Warn("Reset failed", "session", id.String(), "error", err)
		return
	}

	d.wg.Add(1)

	go func() {
		defer d.wg.Done()

		d.publish(id, core.Message(core.ResetAcknowledgement))
	}()
}

func (d *Dispatcher) handleSilentRead(in core.Inbound) {
	if _, err := d.sessions.GetOrCreate(in.Session); err != nil {
		d.logger.Warn("Session unavailable", "session", in.Session.String(), "error", err)
		return
	}

	if err := d.sessions.HandleSilentRead(in.Session, in.Request); err != nil {
		d.logger.Warn("Silent read failed", "session", in.Session.String(), "error", err)
	}
}

func (d *Dispatcher) handleChat(ctx context.Context, in core.Inbound) {
	id := in.Session

	if _, err := d.sessions.GetOrCreate(id); err != nil {
		d.logger.Warn("Session unavailable", "session", id.String(), "error", err)
		d.fail(id, err)

		return
	}

	start := time.Now()

	reply, err := d.chat(ctx, in)

	logging.LogCompletion(d.logger, id.String(), time.Since(start), err)

	if err != nil {
		d.fail(id, err)
		return
	}

	d.publish(id, core.Message(reply))
}

// chat runs HandleChat under a heartbeat. The heartbeat is stopped before
// chat returns, including on panic.
func (d *Dispatcher) chat(ctx context.Context, in core.Inbound) (string, error) {
	hb := heartbeat.New(in.Session, d.bus, func(o *heartbeat.Options) {
		o.Interval = d.interval
		o.Logger = d.logger
	})

	hb.Start(ctx)
	defer hb.Stop()

	if d.limit != nil {
		if err := d.limit.Acquire(ctx, 1); err != nil {
			return "", err
		}
		defer d.limit.Release(1)
	}

	return d.sessions.HandleChat(ctx, in.Session, in.Request)
}

func (d *Dispatcher) fail(id core.SessionID, err error) {
	if !d.reportErrors {
		return
	}

	d.publish(id, core.Failure(err))
}

func (d *Dispatcher) publish(id core.SessionID, resp core.Response) {
	if err := d.bus.EnqueueResponse(id, resp); err != nil {
		d.logger.Warn("Response dropped", "session", id.String(), "kind", string(resp.Kind), "error", err)
	}
}
