// Package vizier wires the transport bus, session registry, dispatcher and
// reaper into one runnable service. Most applications interact with this
// package by:
//  1. Building a session.EngineFactory (see engine.Factory)
//  2. Creating a Vizier via New, optionally registering channel adapters
//  3. Calling Run until the context is cancelled, then Close
//
// Channel adapters push requests through the Transport and subscribe to the
// responses of their own channel kind. Everything else (per-session
// serialization, heartbeats, memory and idle eviction) happens inside.
package vizier

import (
	"context"
	"fmt"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vizier/core"
	"github.com/hupe1980/vizier/dispatch"
	"github.com/hupe1980/vizier/heartbeat"
	"github.com/hupe1980/vizier/logging"
	"github.com/hupe1980/vizier/reaper"
	"github.com/hupe1980/vizier/session"
	"github.com/hupe1980/vizier/transport"
)

// Options configures a Vizier instance.
type Options struct {
	// Kinds lists the channel kinds that receive responses. Defaults to all.
	Kinds []core.ChannelKind

	// QueueSize bounds the request queue and each response queue. Pushing
	// into a full queue fails with core.ErrQueueFull.
	QueueSize int

	// TTL is the idle duration after which the reaper evicts a session.
	TTL time.Duration

	// RecallDepth bounds each session's recall window. When a window fills,
	// the engine is asked for a summary if it implements core.Summarizer.
	RecallDepth int

	// CompletionTimeout bounds each engine call; zero disables the bound.
	CompletionTimeout time.Duration

	// TimeoutPolicy decides what happens to a session whose call timed out.
	TimeoutPolicy session.TimeoutPolicy

	// HeartbeatInterval is the Thinking period while a chat is in flight.
	HeartbeatInterval time.Duration

	// ReportErrors publishes an error response for failed chats.
	ReportErrors bool

	// MaxConcurrentChats caps engine calls across all sessions. Zero means
	// unlimited.
	MaxConcurrentChats int64

	// ReaperInterval is the period between stale-session scans.
	ReaperInterval time.Duration

	// Adapters are run alongside the dispatcher. Each adapter's kind must be
	// listed in Kinds.
	Adapters []core.ChannelAdapter

	// Logger defaults to NoOp.
	Logger logging.Logger
}

// Vizier is the façade aggregating the bus, registry, dispatcher and reaper.
type Vizier struct {
	bus        *transport.Bus
	registry   *session.Registry
	dispatcher *dispatch.Dispatcher
	reaper     *reaper.Reaper
	adapters   []core.ChannelAdapter
	logger     logging.Logger
}

// New creates a Vizier whose sessions obtain their engine from factory.
func New(factory session.EngineFactory, optFns ...func(o *Options)) (*Vizier, error) {
	opts := Options{
		Kinds:             core.ChannelKinds(),
		QueueSize:         transport.DefaultQueueSize,
		TTL:               session.DefaultTTL,
		RecallDepth:       session.DefaultRecallDepth,
		CompletionTimeout: session.DefaultCompletionTimeout,
		TimeoutPolicy:     session.TimeoutRelease,
		HeartbeatInterval: heartbeat.DefaultInterval,
		ReaperInterval:    reaper.DefaultInterval,
		Logger:            logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	logger := logging.OrNoOp(opts.Logger)

	for _, a := range opts.Adapters {
		if !slices.Contains(opts.Kinds, a.Kind()) {
			return nil, fmt.Errorf("vizier: adapter %q: %w", a.Kind(), core.ErrUnknownChannel)
		}
	}

	registry, err := session.New(func(o *session.Options) {
		o.EngineFactory = factory
		o.TTL = opts.TTL
		o.RecallDepth = opts.RecallDepth
		o.CompletionTimeout = opts.CompletionTimeout
		o.TimeoutPolicy = opts.TimeoutPolicy
		o.Logger = logger
	})
	if err != nil {
		return nil, err
	}

	bus, err := transport.New(func(o *transport.Options) {
		o.Kinds = opts.Kinds
		o.QueueSize = opts.QueueSize
		o.Logger = logger
	})
	if err != nil {
		return nil, err
	}

	d := dispatch.New(bus, registry, func(o *dispatch.Options) {
		o.HeartbeatInterval = opts.HeartbeatInterval
		o.ReportErrors = opts.ReportErrors
		o.MaxConcurrentChats = opts.MaxConcurrentChats
		o.Logger = logger
	})

	r := reaper.New(registry, func(o *reaper.Options) {
		o.Interval = opts.ReaperInterval
		o.Logger = logger
	})

	return &Vizier{
		bus:        bus,
		registry:   registry,
		dispatcher: d,
		reaper:     r,
		adapters:   slices.Clone(opts.Adapters),
		logger:     logger,
	}, nil
}

// Transport returns the bus adapters use to push requests and read responses.
func (v *Vizier) Transport() *transport.Bus { return v.bus }

// Registry returns the live session registry.
func (v *Vizier) Registry() *session.Registry { return v.registry }

// Push enqueues req for id.
func (v *Vizier) Push(id core.SessionID, req core.Request) error {
	return v.bus.EnqueueRequest(id, req)
}

// Subscribe streams responses of kind until ctx is done or v is closed.
func (v *Vizier) Subscribe(ctx context.Context, kind core.ChannelKind) (<-chan core.Outbound, error) {
	return v.bus.Subscribe(ctx, kind)
}

// Run starts the dispatcher, the reaper and every adapter, and blocks until
// ctx is cancelled or one of them fails. In-flight chats are finished before
// Run returns.
func (v *Vizier) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return v.dispatcher.Run(ctx) })
	g.Go(func() error { return v.reaper.Run(ctx) })

	for _, a := range v.adapters {
		g.Go(func() error {
			if err := a.Run(ctx, v.bus); err != nil {
				return fmt.Errorf("vizier: adapter %q: %w", a.Kind(), err)
			}

			return nil
		})
	}

	v.logger.Info("Vizier running", "adapters", len(v.adapters))

	err := g.Wait()

	v.logger.Info("Vizier stopped", "sessions", v.registry.Len())

	return err
}

// Close shuts down the bus. Cancel the Run context first so adapters and the
// reaper stop too.
func (v *Vizier) Close() error {
	return v.bus.Close()
}
