package hub

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Session is the 4.D WsSession: per-connection state held by the hub
// (spec.md §3). address, privateKey and lastPongAt are accessed from the
// heartbeat loop, the read loop, and the broadcast path concurrently, so
// they're behind a single mutex rather than split across atomics — the
// hub never holds this lock across a suspension point (spec.md §5).
type Session struct {
	id     uuid.UUID
	socket socketHandle

	mu         sync.Mutex
	address    string
	privateKey []byte
	computerID *string
	subs       map[SubscriptionKind]struct{}
	lastPongAt time.Time

	closed atomic.Bool
}

// NewTestSession builds a guest Session with no backing connection, for
// internal/wsapi's tests to dispatch frames against without a real
// WebSocket upgrade.
func NewTestSession() *Session {
	return newSession(uuid.New(), socketHandle{})
}

func newSession(id uuid.UUID, socket socketHandle) *Session {
	return &Session{
		id:         id,
		socket:     socket,
		address:    guestAddress,
		subs:       DefaultSubscriptions(),
		lastPongAt: time.Now(),
	}
}

func (s *Session) ID() uuid.UUID { return s.id }

func (s *Session) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// Login rewrites the session's address and stores the private key, used by
// the `login` message (spec.md §4.E).
func (s *Session) Login(address, privateKey string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearPrivateKeyLocked()
	s.address = address
	s.privateKey = []byte(privateKey)
}

// Logout resets the session to guest and clears the private key with
// overwrite semantics, not merely dropping the reference (spec.md §5).
func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.address = guestAddress
	s.clearPrivateKeyLocked()
}

// clearPrivateKeyLocked zeroes the held key bytes before releasing the
// backing array, rather than just dropping the reference. Caller must hold
// mu.
func (s *Session) clearPrivateKeyLocked() {
	for i := range s.privateKey {
		s.privateKey[i] = 0
	}
	s.privateKey = nil
}

func (s *Session) IsGuest() bool {
	return s.Address() == guestAddress
}

func (s *Session) SetComputerID(id *string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.computerID = id
}

func (s *Session) Subscribe(kind SubscriptionKind) map[SubscriptionKind]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[kind] = struct{}{}
	return s.snapshotSubs()
}

func (s *Session) Unsubscribe(kind SubscriptionKind) map[SubscriptionKind]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, kind)
	return s.snapshotSubs()
}

func (s *Session) Subscriptions() map[SubscriptionKind]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotSubs()
}

// snapshotSubs must be called with mu held.
func (s *Session) snapshotSubs() map[SubscriptionKind]struct{} {
	out := make(map[SubscriptionKind]struct{}, len(s.subs))
	for k := range s.subs {
		out[k] = struct{}{}
	}
	return out
}

func (s *Session) touchPong() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPongAt = time.Now()
}

func (s *Session) sinceLastPong() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastPongAt)
}

// markClosed is the compare-and-swap on the "closed" flag: exactly-once
// cleanup regardless of which task (heartbeat or read loop) observes the
// failure first (spec.md §9).
func (s *Session) markClosed() (firstTime bool) {
	return s.closed.CompareAndSwap(false, true)
}
