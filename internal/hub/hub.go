// Package hub implements the 4.D WebSocket fan-out hub: per-connection
// state machines, filtered broadcast, and graceful/non-graceful teardown
// (spec.md §4.D).
package hub

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/reconnectedcc/kromer/internal/shardmap"
	"github.com/reconnectedcc/kromer/pkg/logger"
)

const (
	// HeartbeatInterval and PongTimeout implement the heartbeat loop of
	// spec.md §4.D.
	HeartbeatInterval = 5 * time.Second
	PongTimeout       = 10 * time.Second

	// MaxFrameLen is the inbound frame size limit (spec.md §6).
	MaxFrameLen = 512
)

// Dispatcher handles one parsed inbound frame and returns the reply to
// send back (or nil to send nothing). Implemented by internal/wsapi; kept
// as an interface here to avoid hub depending on wsapi.
type Dispatcher interface {
	Dispatch(session *Session, raw []byte) (reply interface{}, ok bool)
}

// Hub is the 4.D WebSocket hub.
type Hub struct {
	log        *logger.Logger
	dispatcher Dispatcher
	motd       string

	sessions *shardmap.Map[uuid.UUID, *Session]
}

func New(log *logger.Logger, dispatcher Dispatcher, motd string) *Hub {
	return &Hub{
		log:        log,
		dispatcher: dispatcher,
		motd:       motd,
		sessions: shardmap.New[uuid.UUID, *Session](func(id uuid.UUID) []byte {
			b := id
			return b[:]
		}),
	}
}

func (h *Hub) Count() int {
	n := 0
	h.sessions.Range(func(uuid.UUID, *Session) { n++ })
	return n
}

// Identity is the optional login state a WS hand-off token can carry
// through to the new session (spec.md §4.D transition 1: the hand-off
// token may already be tied to an address via /ws/start's body).
type Identity struct {
	Address    string
	PrivateKey *string
	ComputerID *string
}

// Accept registers conn as a new session, sends the hello frame, and runs
// the heartbeat + read loops until either exits (spec.md §4.D transitions
// 1–3). Accept blocks until the connection is fully torn down.
func (h *Hub) Accept(conn *websocket.Conn, identity Identity) *Session {
	id := uuid.New()
	sess := newSession(id, newSocketHandle(conn))
	if identity.PrivateKey != nil {
		sess.Login(identity.Address, *identity.PrivateKey)
	}
	if identity.ComputerID != nil {
		sess.SetComputerID(identity.ComputerID)
	}
	h.sessions.Set(id, sess)

	if err := sess.socket.WriteJSON(helloFrame(h.motd)); err != nil {
		h.log.Debug("failed to send hello frame", "session", id, "error", err)
		h.Cleanup(id)
		return sess
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		h.heartbeatLoop(sess)
	}()
	go func() {
		defer wg.Done()
		h.readLoop(sess)
	}()
	wg.Wait()

	return sess
}

func helloFrame(motd string) map[string]interface{} {
	return map[string]interface{}{
		"type":       "hello",
		"server_time": time.Now().UTC().Format(time.RFC3339),
		"motd":       motd,
	}
}

// heartbeatLoop implements spec.md §4.D's heartbeat loop. It exits (and
// triggers cleanup) without attempting a graceful close if the peer has
// been silent past PongTimeout, since a close can block on a dead peer.
func (h *Hub) heartbeatLoop(sess *Session) {
	ticker := time.NewTicker(HeartbeatInterval)
	defer ticker.Stop()

	for range ticker.C {
		if sess.closed.Load() {
			return
		}
		if sess.sinceLastPong() > PongTimeout {
			h.log.Debug("session timed out, no pong", "session", sess.id)
			h.Cleanup(sess.id)
			return
		}
		if err := sess.socket.WriteControl(websocket.PingMessage, nil, 2); err != nil {
			h.log.Debug("ping failed, cleaning up", "session", sess.id, "error", err)
			h.Cleanup(sess.id)
			return
		}
		if err := sess.socket.WriteJSON(map[string]interface{}{
			"type":        "keepalive",
			"server_time": time.Now().UTC().Format(time.RFC3339),
		}); err != nil {
			// Ping succeeded; the connection is alive. Log only.
			h.log.Debug("keepalive send failed", "session", sess.id, "error", err)
		}
	}
}

// readLoop implements spec.md §4.D's read loop.
func (h *Hub) readLoop(sess *Session) {
	conn := sess.socket.conn
	conn.SetPongHandler(func(string) error {
		sess.touchPong()
		return nil
	})

	for {
		if sess.closed.Load() {
			return
		}
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			h.Cleanup(sess.id)
			return
		}

		switch messageType {
		case websocket.PingMessage:
			_ = sess.socket.WriteControl(websocket.PongMessage, data, 2)
		case websocket.PongMessage:
			sess.touchPong()
		case websocket.CloseMessage:
			_ = sess.socket.WriteControl(websocket.CloseMessage, data, 2)
			h.Cleanup(sess.id)
			return
		case websocket.TextMessage:
			if utf8.RuneCount(data) > MaxFrameLen {
				_ = sess.socket.WriteJSON(map[string]interface{}{
					"type":    "error",
					"error":   "message_too_long",
					"message": fmt.Sprintf("frames must be at most %d characters", MaxFrameLen),
				})
				continue
			}
			h.handleText(sess, data)
		case websocket.BinaryMessage:
			// ignored per spec.md §4.D
		}
	}
}

func (h *Hub) handleText(sess *Session, data []byte) {
	reply, ok := h.dispatcher.Dispatch(sess, data)
	if !ok {
		return
	}
	if err := sess.socket.WriteJSON(reply); err != nil {
		h.Cleanup(sess.id)
	}
}

// Cleanup removes sess from the hub, idempotent via compare-and-swap on the
// session's closed flag (spec.md §3 invariant 6, §9).
func (h *Hub) Cleanup(id uuid.UUID) {
	sess, ok := h.sessions.Get(id)
	if !ok {
		return
	}
	if !sess.markClosed() {
		return
	}
	h.sessions.Delete(id)
	_ = sess.socket.Close()
}

// BroadcastEvent sends event to every session whose subscriptions and
// address pass the filter table of spec.md §4.D. Sends to different
// sessions run concurrently; within one session's send, the hub does not
// interleave writes for the same event (spec.md §5).
func (h *Hub) BroadcastEvent(event Event) {
	wire := event.toWire()

	var wg sync.WaitGroup
	h.sessions.Range(func(id uuid.UUID, sess *Session) {
		address := sess.Address()
		subs := sess.Subscriptions()
		if !shouldSend(event, subs, address) {
			return
		}
		handle := sess.socket.Clone()
		wg.Add(1)
		go func(id uuid.UUID, handle socketHandle) {
			defer wg.Done()
			if err := handle.WriteJSON(wire); err != nil {
				h.Cleanup(id)
			}
		}(id, handle)
	})
	wg.Wait()
}

// Broadcast sends an unfiltered text payload to every connected session
// (spec.md §4.D "Unfiltered broadcast").
func (h *Hub) Broadcast(text string) {
	payload, err := json.Marshal(map[string]string{"type": "message", "message": text})
	if err != nil {
		h.log.Error("failed to marshal broadcast payload", "error", err)
		return
	}

	var wg sync.WaitGroup
	h.sessions.Range(func(id uuid.UUID, sess *Session) {
		handle := sess.socket.Clone()
		wg.Add(1)
		go func(id uuid.UUID, handle socketHandle) {
			defer wg.Done()
			if err := handle.WriteMessage(websocket.TextMessage, payload); err != nil {
				h.Cleanup(id)
			}
		}(id, handle)
	})
	wg.Wait()
}

var _ EventSink = (*Hub)(nil)
