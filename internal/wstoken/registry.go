// Package wstoken implements the 4.C WebSocket hand-off token registry:
// one-shot UUIDs with a 30s TTL, consumed destructively exactly once
// (spec.md §3 invariant 5, §4.C).
package wstoken

import (
	"time"

	"github.com/google/uuid"

	"github.com/reconnectedcc/kromer/internal/models"
	"github.com/reconnectedcc/kromer/internal/shardmap"
)

// TTL is the WS hand-off token lifetime (spec.md §3).
const TTL = 30 * time.Second

// Data is the payload a token carries from /ws/start to the WS upgrade
// handler.
type Data struct {
	Address    string
	PrivateKey *string
	ComputerID *string
}

type entry struct {
	data    Data
	timer   *time.Timer
}

// Registry is the 4.C WS token registry.
type Registry struct {
	entries *shardmap.Map[uuid.UUID, entry]
}

func New() *Registry {
	return &Registry{
		entries: shardmap.New[uuid.UUID, entry](func(id uuid.UUID) []byte {
			b := id
			return b[:]
		}),
	}
}

// Obtain inserts data under a fresh UUID and schedules its removal at
// now+TTL. Collisions are astronomically unlikely (UUIDv4) but are
// retried defensively, per spec.md §4.C.
func (r *Registry) Obtain(data Data) uuid.UUID {
	for {
		id := uuid.New()
		inserted := false
		r.entries.Update(id, func(cur entry, ok bool) entry {
			if ok {
				// collision: leave existing entry untouched, signal retry
				// by returning it unchanged.
				return cur
			}
			inserted = true
			timer := time.AfterFunc(TTL, func() { r.entries.Delete(id) })
			return entry{data: data, timer: timer}
		})
		if inserted {
			return id
		}
	}
}

// Use atomically takes the token, failing TokenNotFound if it is missing,
// expired (already swept), or already used.
func (r *Registry) Use(id uuid.UUID) (Data, error) {
	e, ok := r.entries.Take(id)
	if !ok {
		return Data{}, models.ErrTokenNotFound
	}
	e.timer.Stop()
	return e.data, nil
}
