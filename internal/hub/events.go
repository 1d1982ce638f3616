package hub

import "github.com/reconnectedcc/kromer/internal/models"

// Event is the discriminated union the hub broadcasts (spec.md §9 "Dynamic
// dispatch over event kinds"): exactly one of the three fields is set.
// Serialization and the broadcast filter both switch on which field is
// present rather than on a separate tag, since the Go type system already
// makes "exactly one of three" checkable at the call site.
type Event struct {
	Block       *models.Block
	Transaction *models.Transaction
	Name        *models.Name
}

// wireEvent is the JSON shape sent to clients: {"type":"event","event":"...","<kind>":{...}}.
type wireEvent struct {
	Type  string           `json:"type"`
	Event string           `json:"event"`
	Block *models.Block       `json:"block,omitempty"`
	Tx    *models.Transaction `json:"transaction,omitempty"`
	Name  *models.Name        `json:"name,omitempty"`
}

func (e Event) toWire() wireEvent {
	w := wireEvent{Type: "event"}
	switch {
	case e.Block != nil:
		w.Event = "block"
		w.Block = e.Block
	case e.Transaction != nil:
		w.Event = "transaction"
		w.Tx = e.Transaction
	case e.Name != nil:
		w.Event = "name"
		w.Name = e.Name
	}
	return w
}

// EventSink is the capability the ledger (4.A) holds to publish events
// without depending on the rest of the hub.
type EventSink interface {
	BroadcastEvent(event Event)
}
