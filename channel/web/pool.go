package web

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hupe1980/vizier/logging"
)

// connectionPool holds the sockets attached to one session. Writes happen
// under mu so each connection has a single writer.
type connectionPool struct {
	sessionID    string
	writeTimeout time.Duration
	logger       logging.Logger

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

func newConnectionPool(sessionID string, writeTimeout time.Duration, logger logging.Logger) *connectionPool {
	return &connectionPool{
		sessionID:    sessionID,
		writeTimeout: writeTimeout,
		logger:       logger,
		conns:        map[*websocket.Conn]struct{}{},
	}
}

func (cp *connectionPool) Add(conn *websocket.Conn) {
	cp.mu.Lock()
	cp.conns[conn] = struct{}{}
	cp.mu.Unlock()
}

func (cp *connectionPool) Remove(conn *websocket.Conn) {
	cp.mu.Lock()
	delete(cp.conns, conn)
	cp.mu.Unlock()

	_ = conn.Close()
}

// Broadcast writes v to every socket, dropping sockets that fail or do not
// accept the frame within the write timeout.
func (cp *connectionPool) Broadcast(v any) {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	for conn := range cp.conns {
		_ = conn.SetWriteDeadline(time.Now().Add(cp.writeTimeout))

		if err := conn.WriteJSON(v); err != nil {
			cp.logger.Warn("ws broadcast failed, dropping connection", "session", cp.sessionID, "error", err)
			delete(cp.conns, conn)
			_ = conn.Close()
		}
	}
}

func (cp *connectionPool) Count() int {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	return len(cp.conns)
}

func (cp *connectionPool) CloseAll() {
	cp.mu.Lock()
	defer cp.mu.Unlock()

	for conn := range cp.conns {
		_ = conn.Close()
		delete(cp.conns, conn)
	}
}
