package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/hupe1980/vizier/core"
	"github.com/hupe1980/vizier/logging"
)

// DefaultQueueSize is the per-topic queue capacity used when Options.QueueSize
// is not positive.
const DefaultQueueSize = 256

// Options configures a Bus.
type Options struct {
	// Kinds lists the channel kinds that get a response queue. Responses for
	// any other kind are rejected with core.ErrUnknownChannel.
	Kinds []core.ChannelKind

	// QueueSize bounds each topic's queue, counting values already published
	// but not yet dequeued. Enqueueing into a full queue fails with
	// core.ErrQueueFull instead of blocking.
	QueueSize int

	// Logger receives bus and Watermill diagnostics. Defaults to NoOp.
	Logger logging.Logger
}

// Bus is the in-process transport between channel adapters and the
// dispatcher. It is safe for concurrent use.
type Bus struct {
	pubsub *gochannel.GoChannel
	logger logging.Logger

	requests  *queue[core.Inbound]
	responses map[core.ChannelKind]*queue[core.Outbound]

	cancel    context.CancelFunc
	closing   chan struct{}
	closeOnce sync.Once
	closeErr  error
	wg        sync.WaitGroup
}

var _ core.Transport = (*Bus)(nil)

// New creates a Bus and subscribes to the request topic and one response
// topic per configured channel kind.
func New(optFns ...func(o *Options)) (*Bus, error) {
	opts := Options{
		Kinds:     core.ChannelKinds(),
		QueueSize: DefaultQueueSize,
		Logger:    logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}

	logger := logging.OrNoOp(opts.Logger)

	// Blocking until ack serializes publishes per topic, which keeps a
	// session's Thinking signals ahead of its terminal Message.
	pubsub := gochannel.NewGoChannel(gochannel.Config{
		BlockPublishUntilSubscriberAck: true,
	}, logging.NewWatermillAdapter(logger))

	ctx, cancel := context.WithCancel(context.Background())

	b := &Bus{
		pubsub:    pubsub,
		logger:    logger,
		requests:  newQueue[core.Inbound](opts.QueueSize),
		responses: make(map[core.ChannelKind]*queue[core.Outbound], len(opts.Kinds)),
		cancel:    cancel,
		closing:   make(chan struct{}),
	}

	reqMsgs, err := pubsub.Subscribe(ctx, requestTopic)
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("subscribe %s: %w", requestTopic, err)
	}

	b.wg.Add(1)

	go pump(b, requestTopic, reqMsgs, b.requests)

	for _, kind := range opts.Kinds {
		if !kind.Valid() {
			_ = b.Close()
			return nil, fmt.Errorf("subscribe responses: %w: %q", core.ErrUnknownChannel, kind)
		}

		if _, dup := b.responses[kind]; dup {
			continue
		}

		topic := responseTopic(kind)

		msgs, err := pubsub.Subscribe(ctx, topic)
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("subscribe %s: %w", topic, err)
		}

		q := newQueue[core.Outbound](opts.QueueSize)
		b.responses[kind] = q

		b.wg.Add(1)

		go pump(b, topic, msgs, q)
	}

	return b, nil
}

// pump moves decoded messages from a Watermill subscription into a queue.
// Every message carries a slot reserved by its publisher, so the hand-off
// does not wait on consumers. The ack is sent once the value is queued.
func pump[T any](b *Bus, topic string, msgs <-chan *message.Message, q *queue[T]) {
	defer b.wg.Done()

	for msg := range msgs {
		v, err := decode[T](msg)
		if err != nil {
			b.logger.Warn("bus: dropping undecodable message", "topic", topic, "error", err)
			q.release()
			msg.Ack()

			continue
		}

		select {
		case q.ch <- v:
			msg.Ack()
		case <-b.closing:
			return
		}
	}
}

// Kinds returns the channel kinds this bus routes responses for.
func (b *Bus) Kinds() []core.ChannelKind {
	kinds := make([]core.ChannelKind, 0, len(b.responses))
	for _, k := range core.ChannelKinds() {
		if _, ok := b.responses[k]; ok {
			kinds = append(kinds, k)
		}
	}

	return kinds
}

// EnqueueRequest publishes a request for session. A zero ReceivedAt is
// stamped with the current time. It never blocks on consumers: a full
// request queue yields core.ErrQueueFull.
func (b *Bus) EnqueueRequest(session core.SessionID, req core.Request) error {
	const op = "enqueue request"

	if err := session.Validate(); err != nil {
		return &core.TransportError{Op: op, Session: session, Err: err}
	}

	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = time.Now()
	}

	return publish(b, op, requestTopic, session, b.requests, core.Inbound{Session: session, Request: req})
}

// EnqueueResponse routes resp into the queue of session's channel kind. Like
// EnqueueRequest it fails with core.ErrQueueFull rather than waiting for a
// consumer of that kind.
func (b *Bus) EnqueueResponse(session core.SessionID, resp core.Response) error {
	const op = "enqueue response"

	kind := session.ChannelKind()

	q, ok := b.responses[kind]
	if !ok {
		return &core.TransportError{Op: op, Session: session, Err: fmt.Errorf("%w: %q", core.ErrUnknownChannel, kind)}
	}

	if err := session.Validate(); err != nil {
		return &core.TransportError{Op: op, Session: session, Err: err}
	}

	return publish(b, op, responseTopic(kind), session, q, core.Outbound{Session: session, Response: resp})
}

func publish[T any](b *Bus, op, topic string, session core.SessionID, q *queue[T], v T) error {
	if b.isClosed() {
		return &core.TransportError{Op: op, Session: session, Err: core.ErrClosed}
	}

	msg, err := encode(session, v)
	if err != nil {
		return &core.TransportError{Op: op, Session: session, Err: err}
	}

	if !q.reserve() {
		return &core.TransportError{Op: op, Session: session, Err: core.ErrQueueFull}
	}

	if err := b.pubsub.Publish(topic, msg); err != nil {
		q.release()
		return &core.TransportError{Op: op, Session: session, Err: err}
	}

	return nil
}

// DequeueRequest blocks until a request is available, ctx is done, or the
// bus is closed.
func (b *Bus) DequeueRequest(ctx context.Context) (core.Inbound, error) {
	const op = "dequeue request"

	select {
	case in := <-b.requests.ch:
		b.requests.release()
		return in, nil
	case <-ctx.Done():
		return core.Inbound{}, &core.TransportError{Op: op, Err: ctx.Err()}
	case <-b.closing:
		return core.Inbound{}, &core.TransportError{Op: op, Err: core.ErrClosed}
	}
}

// DequeueResponse blocks until a response for kind is available, ctx is
// done, or the bus is closed.
func (b *Bus) DequeueResponse(ctx context.Context, kind core.ChannelKind) (core.Outbound, error) {
	const op = "dequeue response"

	q, ok := b.responses[kind]
	if !ok {
		return core.Outbound{}, &core.TransportError{Op: op, Err: fmt.Errorf("%w: %q", core.ErrUnknownChannel, kind)}
	}

	select {
	case out := <-q.ch:
		q.release()
		return out, nil
	case <-ctx.Done():
		return core.Outbound{}, &core.TransportError{Op: op, Err: ctx.Err()}
	case <-b.closing:
		return core.Outbound{}, &core.TransportError{Op: op, Err: core.ErrClosed}
	}
}

// Subscribe streams responses for kind until ctx is done or the bus closes.
// Multiple subscribers of the same kind share the queue: each response is
// delivered to exactly one of them.
func (b *Bus) Subscribe(ctx context.Context, kind core.ChannelKind) (<-chan core.Outbound, error) {
	if _, ok := b.responses[kind]; !ok {
		return nil, &core.TransportError{Op: "subscribe", Err: fmt.Errorf("%w: %q", core.ErrUnknownChannel, kind)}
	}

	if b.isClosed() {
		return nil, &core.TransportError{Op: "subscribe", Err: core.ErrClosed}
	}

	out := make(chan core.Outbound)

	go func() {
		defer close(out)

		for {
			resp, err := b.DequeueResponse(ctx, kind)
			if err != nil {
				return
			}

			select {
			case out <- resp:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Close shuts the bus down. Blocked dequeues return core.ErrClosed. Close is
// idempotent.
func (b *Bus) Close() error {
	b.closeOnce.Do(func() {
		close(b.closing)
		b.cancel()
		b.closeErr = b.pubsub.Close()
		b.wg.Wait()
	})

	return b.closeErr
}

func (b *Bus) isClosed() bool {
	select {
	case <-b.closing:
		return true
	default:
		return false
	}
}
