package web

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vizier/core"
	"github.com/hupe1980/vizier/logging"
)

// Options configures a Channel.
type Options struct {
	// Addr is the listen address used by Run. Default ":8080".
	Addr string

	// ReadLimit caps the size of a client frame. Default 64 KiB.
	ReadLimit int64

	// ShutdownTimeout bounds graceful shutdown in Run. Default 5s.
	ShutdownTimeout time.Duration

	// WriteTimeout bounds each frame written to a socket. A socket that
	// misses it is dropped. Default 10s.
	WriteTimeout time.Duration

	Upgrader websocket.Upgrader
	Logger   logging.Logger
}

// Channel is the HTTP channel adapter.
type Channel struct {
	addr            string
	readLimit       int64
	shutdownTimeout time.Duration
	writeTimeout    time.Duration
	upgrader        websocket.Upgrader
	logger          logging.Logger

	mu    sync.Mutex
	pools map[string]*connectionPool
}

var _ core.ChannelAdapter = (*Channel)(nil)

// New returns a Channel with no sessions.
func New(optFns ...func(o *Options)) *Channel {
	opts := Options{
		Addr:            ":8080",
		ReadLimit:       64 << 10,
		ShutdownTimeout: 5 * time.Second,
		WriteTimeout:    10 * time.Second,
		Upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}

	return &Channel{
		addr:            opts.Addr,
		readLimit:       opts.ReadLimit,
		shutdownTimeout: opts.ShutdownTimeout,
		writeTimeout:    opts.WriteTimeout,
		upgrader:        opts.Upgrader,
		logger:          logging.OrNoOp(opts.Logger),
		pools:           map[string]*connectionPool{},
	}
}

// Kind implements core.ChannelAdapter.
func (c *Channel) Kind() core.ChannelKind { return core.ChannelHTTP }

// Run serves HTTP on Addr and forwards responses until ctx is done.
func (c *Channel) Run(ctx context.Context, t core.Transport) error {
	ln, err := net.Listen("tcp", c.addr)
	if err != nil {
		return err
	}

	return c.Serve(ctx, t, ln)
}

// Serve is Run on an existing listener.
func (c *Channel) Serve(ctx context.Context, t core.Transport, ln net.Listener) error {
	srv := &http.Server{
		Handler:           c.Handler(t),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return c.Forward(ctx, t) })

	g.Go(func() error {
		c.logger.Info("http listening", "addr", ln.Addr().String())

		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), c.shutdownTimeout)
		defer cancel()

		c.closeAll()

		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Forward delivers HTTP-kind responses to the sockets of their session until
// ctx is done or the subscription ends. Responses for sessions without a
// socket are dropped.
func (c *Channel) Forward(ctx context.Context, t core.Transport) error {
	ch, err := t.Subscribe(ctx, core.ChannelHTTP)
	if err != nil {
		return err
	}

	for out := range ch {
		pool, ok := c.pool(out.Session.Key)
		if !ok || pool.Count() == 0 {
			c.logger.Debug("No socket for response", "session", out.Session.String(), "kind", string(out.Response.Kind))
			continue
		}

		pool.Broadcast(chatResponse(out.Response))
	}

	return nil
}

// Handler returns the REST and WebSocket routes bound to t.
func (c *Channel) Handler(t core.Transport) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/ping", func(w http.ResponseWriter, _ *http.Request) {
		writeData(w, http.StatusOK, "pong")
	})
	mux.HandleFunc("GET /api/v1/session", c.listSessions)
	mux.HandleFunc("POST /api/v1/session", c.createSession)
	mux.HandleFunc("POST /api/v1/session/{id}", c.createCustomSession)
	mux.HandleFunc("DELETE /api/v1/session/{id}", c.deleteSession)
	mux.HandleFunc("GET /api/v1/session/{id}/chat", c.chat(t))

	return withCORS(mux)
}

// Sessions returns the ids of sessions that have a response stream.
func (c *Channel) Sessions() []string {
	c.mu.Lock()
	ids := make([]string, 0, len(c.pools))

	for id := range c.pools {
		ids = append(ids, id)
	}
	c.mu.Unlock()

	sort.Strings(ids)

	return ids
}

func (c *Channel) listSessions(w http.ResponseWriter, _ *http.Request) {
	writeData(w, http.StatusOK, c.Sessions())
}

func (c *Channel) createSession(w http.ResponseWriter, _ *http.Request) {
	id := uuid.NewString()
	c.ensurePool(id)

	writeData(w, http.StatusOK, SessionResponse{SessionID: id})
}

func (c *Channel) createCustomSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	c.ensurePool(id)

	writeData(w, http.StatusOK, SessionResponse{SessionID: id})
}

func (c *Channel) deleteSession(w http.ResponseWriter, r *http.Request) {
	id, ok := sessionID(w, r)
	if !ok {
		return
	}

	c.mu.Lock()
	pool, exists := c.pools[id]
	delete(c.pools, id)
	c.mu.Unlock()

	if exists {
		pool.CloseAll()
	}

	writeData(w, http.StatusOK, struct{}{})
}

func (c *Channel) chat(t core.Transport) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := sessionID(w, r)
		if !ok {
			return
		}

		conn, err := c.upgrader.Upgrade(w, r, nil)
		if err != nil {
			c.logger.Debug("ws upgrade failed", "session", id, "error", err)
			return
		}

		pool := c.ensurePool(id)
		pool.Add(conn)

		defer pool.Remove(conn)

		conn.SetReadLimit(c.readLimit)

		c.logger.Debug("ws connected", "session", id)

		sid := core.HTTPSession(id)

		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				c.logger.Debug("ws closed", "session", id, "error", err)
				return
			}

			var frame ChatRequest
			if err := json.Unmarshal(data, &frame); err != nil {
				c.logger.Debug("ws frame ignored", "session", id, "error", err)
				continue
			}

			now := time.Now()
			req := core.Request{
				Sender:  frame.User,
				Content: frame.Content,
				Metadata: map[string]any{
					"sent_at":              now.UTC().Format(time.RFC3339Nano),
					"websocket_session_id": id,
				},
				ReceivedAt: now,
			}

			if err := t.EnqueueRequest(sid, req); err != nil {
				c.logger.Warn("Request dropped", "session", id, "error", err)
			}
		}
	}
}

func (c *Channel) pool(id string) (*connectionPool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pools[id]

	return p, ok
}

func (c *Channel) ensurePool(id string) *connectionPool {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.pools[id]
	if !ok {
		p = newConnectionPool(id, c.writeTimeout, c.logger)
		c.pools[id] = p
	}

	return p
}

func (c *Channel) closeAll() {
	c.mu.Lock()
	pools := make([]*connectionPool, 0, len(c.pools))

	for _, p := range c.pools {
		pools = append(pools, p)
	}
	c.mu.Unlock()

	for _, p := range pools {
		p.CloseAll()
	}
}

func sessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "missing session id")
		return "", false
	}

	return id, true
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Authorization, Accept, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
