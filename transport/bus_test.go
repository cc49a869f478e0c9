package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vizier/core"
)

func newTestBus(t *testing.T, optFns ...func(o *Options)) *Bus {
	t.Helper()

	b, err := New(optFns...)
	require.NoError(t, err)

	t.Cleanup(func() { _ = b.Close() })

	return b
}

func testContext(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	return ctx
}

func TestBus_RequestRoundTrip(t *testing.T) {
	b := newTestBus(t)
	ctx := testContext(t)

	sid := core.HTTPSession("abc")
	require.NoError(t, b.EnqueueRequest(sid, core.Request{Sender: "ada", Content: "hi"}))

	in, err := b.DequeueRequest(ctx)
	require.NoError(t, err)
	assert.Equal(t, sid, in.Session)
	assert.Equal(t, "ada", in.Request.Sender)
	assert.Equal(t, "hi", in.Request.Content)
	assert.False(t, in.Request.ReceivedAt.IsZero())
}

func TestBus_RequestsPreserveOrder(t *testing.T) {
	b := newTestBus(t)
	ctx := testContext(t)

	sid := core.DiscordSession(42)

	const n = 50

	go func() {
		for i := 0; i < n; i++ {
			_ = b.EnqueueRequest(sid, core.NewRequest("u", fmt.Sprintf("m%d", i)))
		}
	}()

	for i := 0; i < n; i++ {
		in, err := b.DequeueRequest(ctx)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("m%d", i), in.Request.Content)
	}
}

func TestBus_ResponsesRoutedByKind(t *testing.T) {
	b := newTestBus(t)
	ctx := testContext(t)

	httpSID := core.HTTPSession("h1")
	discordSID := core.DiscordSession(7)

	require.NoError(t, b.EnqueueResponse(httpSID, core.Message("to http")))
	require.NoError(t, b.EnqueueResponse(discordSID, core.Message("to discord")))

	out, err := b.DequeueResponse(ctx, core.ChannelDiscord)
	require.NoError(t, err)
	assert.Equal(t, discordSID, out.Session)
	assert.Equal(t, "to discord", out.Response.Content)

	out, err = b.DequeueResponse(ctx, core.ChannelHTTP)
	require.NoError(t, err)
	assert.Equal(t, httpSID, out.Session)
	assert.Equal(t, "to http", out.Response.Content)

	// Nothing leaked into the other queue.
	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	_, err = b.DequeueResponse(short, core.ChannelDiscord)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBus_ResponsesPreserveOrderPerSession(t *testing.T) {
	b := newTestBus(t)
	ctx := testContext(t)

	sid := core.HTTPSession("order")

	require.NoError(t, b.EnqueueResponse(sid, core.Thinking()))
	require.NoError(t, b.EnqueueResponse(sid, core.Thinking()))
	require.NoError(t, b.EnqueueResponse(sid, core.Message("done")))

	kinds := make([]core.ResponseKind, 0, 3)

	for i := 0; i < 3; i++ {
		out, err := b.DequeueResponse(ctx, core.ChannelHTTP)
		require.NoError(t, err)

		kinds = append(kinds, out.Response.Kind)
	}

	assert.Equal(t, []core.ResponseKind{core.ResponseThinking, core.ResponseThinking, core.ResponseMessage}, kinds)
}

func TestBus_UnknownChannel(t *testing.T) {
	b := newTestBus(t, func(o *Options) {
		o.Kinds = []core.ChannelKind{core.ChannelHTTP}
	})

	assert.Equal(t, []core.ChannelKind{core.ChannelHTTP}, b.Kinds())

	err := b.EnqueueResponse(core.DiscordSession(1), core.Message("x"))

	var te *core.TransportError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, core.ErrUnknownChannel)
	assert.Equal(t, core.DiscordSession(1), te.Session)

	_, err = b.Subscribe(context.Background(), core.ChannelDiscord)
	assert.ErrorIs(t, err, core.ErrUnknownChannel)

	_, err = b.DequeueResponse(context.Background(), core.ChannelDiscord)
	assert.ErrorIs(t, err, core.ErrUnknownChannel)
}

func TestBus_InvalidKindRejected(t *testing.T) {
	_, err := New(func(o *Options) {
		o.Kinds = []core.ChannelKind{"smoke-signal"}
	})
	assert.ErrorIs(t, err, core.ErrUnknownChannel)
}

func TestBus_Subscribe(t *testing.T) {
	b := newTestBus(t)
	ctx := testContext(t)

	ch, err := b.Subscribe(ctx, core.ChannelHTTP)
	require.NoError(t, err)

	sid := core.HTTPSession("sub")
	require.NoError(t, b.EnqueueResponse(sid, core.Message("one")))
	require.NoError(t, b.EnqueueResponse(sid, core.Message("two")))

	select {
	case out := <-ch:
		assert.Equal(t, "one", out.Response.Content)
	case <-ctx.Done():
		t.Fatal("timed out waiting for first response")
	}

	select {
	case out := <-ch:
		assert.Equal(t, "two", out.Response.Content)
	case <-ctx.Done():
		t.Fatal("timed out waiting for second response")
	}
}

func TestBus_SubscribeClosesOnCancel(t *testing.T) {
	b := newTestBus(t)

	ctx, cancel := context.WithCancel(context.Background())

	ch, err := b.Subscribe(ctx, core.ChannelHTTP)
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not closed after cancel")
	}
}

func TestBus_Close(t *testing.T) {
	b, err := New()
	require.NoError(t, err)

	var wg sync.WaitGroup

	wg.Add(1)

	var dequeueErr error

	go func() {
		defer wg.Done()

		_, dequeueErr = b.DequeueRequest(context.Background())
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, b.Close())
	wg.Wait()

	assert.ErrorIs(t, dequeueErr, core.ErrClosed)

	err = b.EnqueueRequest(core.HTTPSession("x"), core.NewRequest("u", "late"))

	var te *core.TransportError
	require.ErrorAs(t, err, &te)
	assert.ErrorIs(t, err, core.ErrClosed)

	assert.ErrorIs(t, b.EnqueueResponse(core.HTTPSession("x"), core.Thinking()), core.ErrClosed)

	_, err = b.Subscribe(context.Background(), core.ChannelHTTP)
	assert.ErrorIs(t, err, core.ErrClosed)

	// Idempotent.
	assert.NoError(t, b.Close())
}

func TestBus_FullQueueRejectsWithoutBlocking(t *testing.T) {
	b := newTestBus(t, func(o *Options) {
		o.QueueSize = 1
	})
	ctx := testContext(t)

	sid := core.DiscordSession(1)

	require.NoError(t, b.EnqueueResponse(sid, core.Message("m0")))

	done := make(chan error, 1)

	go func() { done <- b.EnqueueResponse(sid, core.Thinking()) }()

	select {
	case err := <-done:
		var te *core.TransportError
		require.ErrorAs(t, err, &te)
		assert.ErrorIs(t, err, core.ErrQueueFull)
		assert.Equal(t, sid, te.Session)
	case <-time.After(time.Second):
		t.Fatal("enqueue into a full queue blocked")
	}

	// Other kinds keep flowing.
	require.NoError(t, b.EnqueueResponse(core.HTTPSession("h"), core.Message("http")))

	out, err := b.DequeueResponse(ctx, core.ChannelHTTP)
	require.NoError(t, err)
	assert.Equal(t, "http", out.Response.Content)

	// Dequeueing frees the slot.
	out, err = b.DequeueResponse(ctx, core.ChannelDiscord)
	require.NoError(t, err)
	assert.Equal(t, "m0", out.Response.Content)

	require.NoError(t, b.EnqueueResponse(sid, core.Message("m1")))

	out, err = b.DequeueResponse(ctx, core.ChannelDiscord)
	require.NoError(t, err)
	assert.Equal(t, "m1", out.Response.Content)
}

func TestBus_FullRequestQueue(t *testing.T) {
	b := newTestBus(t, func(o *Options) {
		o.QueueSize = 2
	})
	ctx := testContext(t)

	sid := core.HTTPSession("r")

	require.NoError(t, b.EnqueueRequest(sid, core.NewRequest("u", "a")))
	require.NoError(t, b.EnqueueRequest(sid, core.NewRequest("u", "b")))
	assert.ErrorIs(t, b.EnqueueRequest(sid, core.NewRequest("u", "c")), core.ErrQueueFull)

	in, err := b.DequeueRequest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a", in.Request.Content)

	require.NoError(t, b.EnqueueRequest(sid, core.NewRequest("u", "c")))
}

func TestBus_RejectsUnroutableSessions(t *testing.T) {
	b := newTestBus(t)

	for _, sid := range []core.SessionID{
		{Kind: core.ChannelDiscord, Key: "general"},
		{Kind: "slack", Key: "x"},
		{},
	} {
		t.Run(sid.String(), func(t *testing.T) {
			var te *core.TransportError

			err := b.EnqueueRequest(sid, core.NewRequest("u", "hi"))
			require.ErrorAs(t, err, &te)
			assert.Equal(t, sid, te.Session)

			assert.Error(t, b.EnqueueResponse(sid, core.Message("x")))
		})
	}

	// Nothing reached the request queue.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := b.DequeueRequest(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBus_MetadataNumbersKeepPrecision(t *testing.T) {
	b := newTestBus(t)
	ctx := testContext(t)

	req := core.NewRequest("u", "hi")
	req.Metadata = map[string]any{"message_id": int64(1234567890123456789), "tag": "x"}

	require.NoError(t, b.EnqueueRequest(core.DiscordSession(5), req))

	in, err := b.DequeueRequest(ctx)
	require.NoError(t, err)
	assert.Equal(t, json.Number("1234567890123456789"), in.Request.Metadata["message_id"])
	assert.Equal(t, "x", in.Request.Metadata["tag"])
}
