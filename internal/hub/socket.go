package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

func deadlineNow(seconds int) time.Time {
	return time.Now().Add(time.Duration(seconds) * time.Second)
}

// socketHandle wraps a *websocket.Conn behind a shared mutex so that
// cloning it (a cheap struct copy — both fields are pointers) and writing
// from multiple goroutines serializes through gorilla's single-writer
// requirement, matching spec.md §4.D: "the hub never writes the socket
// from multiple places simultaneously except for the broadcast path which
// takes the session's socket handle by clone."
type socketHandle struct {
	conn *websocket.Conn
	mu   *sync.Mutex
}

func newSocketHandle(conn *websocket.Conn) socketHandle {
	return socketHandle{conn: conn, mu: &sync.Mutex{}}
}

// Clone returns a handle sharing the same connection and write mutex.
func (h socketHandle) Clone() socketHandle { return h }

func (h socketHandle) WriteJSON(v interface{}) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn.WriteJSON(v)
}

func (h socketHandle) WriteMessage(messageType int, data []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn.WriteMessage(messageType, data)
}

func (h socketHandle) WriteControl(messageType int, data []byte, deadlineSec int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.conn.WriteControl(messageType, data, deadlineNow(deadlineSec))
}

func (h socketHandle) Close() error {
	return h.conn.Close()
}
