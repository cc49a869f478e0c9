package heartbeat

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/hupe1980/vizier/core"
	"github.com/hupe1980/vizier/internal/testutil"
)

func TestSupervisor_EmitsImmediatelyAndPeriodically(t *testing.T) {
	rec := testutil.NewRecorder()
	sid := core.HTTPSession("hb")

	s := New(sid, rec, func(o *Options) { o.Interval = 10 * time.Millisecond })
	assert.Equal(t, Idle, s.State())

	s.Start(context.Background())
	assert.Equal(t, Emitting, s.State())

	assert.True(t, rec.WaitFor(core.ResponseThinking, 3, 2*time.Second))

	s.Stop()
	assert.Equal(t, Cancelled, s.State())

	for _, resp := range rec.For(sid) {
		assert.True(t, resp.IsThinking())
	}

	assert.Equal(t, s.Emitted(), rec.Count(core.ResponseThinking))
}

func TestSupervisor_NothingAfterStop(t *testing.T) {
	rec := testutil.NewRecorder()

	s := New(core.HTTPSession("hb"), rec, func(o *Options) { o.Interval = 5 * time.Millisecond })
	s.Start(context.Background())

	assert.True(t, rec.WaitFor(core.ResponseThinking, 1, time.Second))

	s.Stop()

	n := rec.Count(core.ResponseThinking)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, rec.Count(core.ResponseThinking))
}

func TestSupervisor_StopIsIdempotent(t *testing.T) {
	s := New(core.HTTPSession("hb"), testutil.NewRecorder())
	s.Start(context.Background())

	s.Stop()
	s.Stop()

	assert.Equal(t, Cancelled, s.State())
}

func TestSupervisor_StopBeforeStart(t *testing.T) {
	rec := testutil.NewRecorder()
	s := New(core.HTTPSession("hb"), rec)

	s.Stop()
	s.Start(context.Background())

	assert.Equal(t, Cancelled, s.State())
	assert.Equal(t, 0, rec.Count(core.ResponseThinking))
}

func TestSupervisor_ContextCancelStopsEmission(t *testing.T) {
	rec := testutil.NewRecorder()
	ctx, cancel := context.WithCancel(context.Background())

	s := New(core.HTTPSession("hb"), rec, func(o *Options) { o.Interval = 5 * time.Millisecond })
	s.Start(ctx)

	assert.True(t, rec.WaitFor(core.ResponseThinking, 1, time.Second))
	cancel()

	time.Sleep(20 * time.Millisecond)

	n := rec.Count(core.ResponseThinking)

	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, n, rec.Count(core.ResponseThinking))

	s.Stop()
}

func TestSupervisor_PublishFailureIsNotFatal(t *testing.T) {
	rec := testutil.NewRecorder()
	rec.FailWith(errors.New("bus closed"))

	s := New(core.HTTPSession("hb"), rec, func(o *Options) { o.Interval = 5 * time.Millisecond })
	s.Start(context.Background())

	time.Sleep(20 * time.Millisecond)
	rec.FailWith(nil)

	assert.True(t, rec.WaitFor(core.ResponseThinking, 1, time.Second))
	s.Stop()
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "emitting", Emitting.String())
	assert.Equal(t, "cancelled", Cancelled.String())
	assert.Equal(t, "unknown", State(9).String())
}
