package reaper

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/hupe1980/vizier/core"
	"github.com/hupe1980/vizier/logging"
	"github.com/hupe1980/vizier/session"
)

// DefaultInterval is the scan period used when Options.Interval is not positive.
const DefaultInterval = time.Minute

// ErrAlreadyRunning is returned by Run when another Run is active.
var ErrAlreadyRunning = errors.New("reaper: already running")

// Sessions is the registry surface the reaper consumes.
type Sessions interface {
	Sessions() []core.SessionID
	IsStale(id core.SessionID, now time.Time) bool
	RemoveIfStale(id core.SessionID, now time.Time) bool
}

var _ Sessions = (*session.Registry)(nil)

// Options configures a Reaper.
type Options struct {
	Interval time.Duration

	// Clock supplies the scan time. Default time.Now.
	Clock func() time.Time

	// OnEvict is called after each eviction.
	OnEvict func(id core.SessionID)

	Logger logging.Logger
}

// Reaper periodically evicts stale sessions.
type Reaper struct {
	sessions Sessions
	interval time.Duration
	now      func() time.Time
	onEvict  func(core.SessionID)
	logger   logging.Logger

	running atomic.Bool
}

// New returns a Reaper over sessions.
func New(sessions Sessions, optFns ...func(o *Options)) *Reaper {
	opts := Options{
		Interval: DefaultInterval,
		Clock:    time.Now,
		Logger:   logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}

	if opts.Clock == nil {
		opts.Clock = time.Now
	}

	return &Reaper{
		sessions: sessions,
		interval: opts.Interval,
		now:      opts.Clock,
		onEvict:  opts.OnEvict,
		logger:   logging.OrNoOp(opts.Logger),
	}
}

// Interval returns the scan period.
func (r *Reaper) Interval() time.Duration { return r.interval }

// Run scans every interval until ctx is done.
func (r *Reaper) Run(ctx context.Context) error {
	if !r.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer r.running.Store(false)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := r.ScanOnce(r.now()); n > 0 {
				r.logger.Info("Reaper scan finished", "evicted", n)
			}
		}
	}
}

// ScanOnce evicts every session stale at now and returns how many were removed.
func (r *Reaper) ScanOnce(now time.Time) int {
	evicted := 0

	for _, id := range r.sessions.Sessions() {
		if !r.sessions.IsStale(id, now) {
			continue
		}

		if !r.sessions.RemoveIfStale(id, now) {
			r.logger.Debug("Eviction deferred", "session", id.String())
			continue
		}

		evicted++

		r.logger.Info("Session evicted", "session", id.String())

		if r.onEvict != nil {
			r.onEvict(id)
		}
	}

	return evicted
}
