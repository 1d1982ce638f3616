// Package session implements the 4.B bearer session registry: a
// concurrent-safe map from session UUID to (address, expiry) with a 1-hour
// TTL and lazy eviction on every touch (spec.md §3 invariant 4, §4.B).
package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/reconnectedcc/kromer/internal/models"
	"github.com/reconnectedcc/kromer/internal/shardmap"
)

// TTL is the bearer session lifetime (spec.md §3).
const TTL = 1 * time.Hour

type entry struct {
	address   string
	expiresAt time.Time
}

// WalletLookup is the narrow capability Registry needs from the store to
// implement RegisterFromKey: check existence and authorization without
// depending on the full store.Store interface.
type WalletLookup interface {
	// IsAuthorized reports whether address may start a session (e.g. the
	// wallet exists and is not locked).
	IsAuthorized(address string) (bool, error)
}

// AddressDeriver derives a wallet address from a private key. Real key
// derivation is out of scope (spec.md §1); this is a narrow seam so the
// registry doesn't need to know how.
type AddressDeriver interface {
	DeriveAddress(privateKey string) (string, error)
}

// Registry is the 4.B bearer session registry.
type Registry struct {
	entries *shardmap.Map[uuid.UUID, entry]
	wallets WalletLookup
	deriver AddressDeriver
}

func New(wallets WalletLookup, deriver AddressDeriver) *Registry {
	return &Registry{
		entries: shardmap.New[uuid.UUID, entry](func(id uuid.UUID) []byte {
			b := id
			return b[:]
		}),
		wallets: wallets,
		deriver: deriver,
	}
}

// Register creates a new session for address with a fresh TTL.
func (r *Registry) Register(address string) (uuid.UUID, time.Time) {
	id := uuid.New()
	expiresAt := time.Now().Add(TTL)
	r.entries.Set(id, entry{address: address, expiresAt: expiresAt})
	return id, expiresAt
}

// RegisterFromKey derives the address from privateKey, checks that the
// wallet exists and is authorized, then registers a session for it.
func (r *Registry) RegisterFromKey(privateKey string) (uuid.UUID, time.Time, string, error) {
	address, err := r.deriver.DeriveAddress(privateKey)
	if err != nil {
		return uuid.Nil, time.Time{}, "", models.ErrInvalidSession
	}
	ok, err := r.wallets.IsAuthorized(address)
	if err != nil || !ok {
		return uuid.Nil, time.Time{}, "", models.ErrInvalidSession
	}
	id, expiresAt := r.Register(address)
	return id, expiresAt, address, nil
}

// Revoke removes a session and returns the address it belonged to.
func (r *Registry) Revoke(id uuid.UUID) (string, error) {
	e, ok := r.entries.Take(id)
	if !ok {
		return "", models.ErrInvalidSession
	}
	return e.address, nil
}

// IsAuthedAddr reports, if the session is live, whether its address equals
// addr. A missing or expired session is evicted and reported as absent.
func (r *Registry) IsAuthedAddr(id uuid.UUID, addr string) (matched bool, present bool) {
	e, ok := r.get(id)
	if !ok {
		return false, false
	}
	return e.address == addr, true
}

// GetAddress returns the session's address if live.
func (r *Registry) GetAddress(id uuid.UUID) (string, bool) {
	e, ok := r.get(id)
	if !ok {
		return "", false
	}
	return e.address, true
}

// get applies lazy eviction: an expired entry is removed and reported
// absent, regardless of which accessor observed it first (idempotent).
func (r *Registry) get(id uuid.UUID) (entry, bool) {
	e, ok := r.entries.Get(id)
	if !ok {
		return entry{}, false
	}
	if time.Now().After(e.expiresAt) {
		r.entries.Delete(id)
		return entry{}, false
	}
	return e, true
}

// Vacuum best-effort sweeps expired entries. Not required for correctness
// (get() evicts lazily) but bounds memory for sessions nobody ever touches
// again.
func (r *Registry) Vacuum() {
	now := time.Now()
	r.entries.DeleteIf(func(_ uuid.UUID, e entry) bool {
		return now.After(e.expiresAt)
	}, nil)
}
