// Package ledger implements the 4.A money-mutating transaction primitive
// shared by manual transfers (HTTP and WS) and subscription renewals. The
// name handlers in internal/httpapi update the names table directly and do
// not go through the ledger, so name-ownership and a-record changes write no
// transactions row (spec.md §4.A, §9 Open Question — ContinueSub shares the same
// transfer machinery as Transfer rather than replicating a parallel
// balance-update path, and commits its reschedule in the same store
// transaction as the transfer itself).
package ledger

import (
	"time"

	"github.com/reconnectedcc/kromer/internal/hub"
	"github.com/reconnectedcc/kromer/internal/models"
	"github.com/reconnectedcc/kromer/internal/store"
	"github.com/reconnectedcc/kromer/pkg/logger"
)

// Ledger wraps store.Store's transactional Transfer methods and publishes
// the resulting Transaction event to the hub, matching the data flow in
// spec.md §2: "A emits a Transaction event that D broadcasts."
type Ledger struct {
	store store.Store
	hub   hub.EventSink
	log   *logger.Logger
}

func New(s store.Store, h hub.EventSink, log *logger.Logger) *Ledger {
	return &Ledger{store: s, hub: h, log: log}
}

// TransferOptions carries the optional Transaction columns (spec.md §3).
type TransferOptions struct {
	Metadata     *string
	Name         *string
	SentName     *string
	SentMetaname *string
}

// Transfer performs the atomic debit/credit/insert described in spec.md
// §4.A and broadcasts the resulting Transaction. On any failure the whole
// operation is a no-op and no event is emitted.
func (l *Ledger) Transfer(from, to string, amount float64, kind models.TransactionType, opts TransferOptions) (*models.Transaction, error) {
	tx, err := l.store.Transfer(from, to, amount, kind, store.TransferMeta{
		Metadata:     opts.Metadata,
		Name:         opts.Name,
		SentName:     opts.SentName,
		SentMetaname: opts.SentMetaname,
	})
	if err != nil {
		return nil, err
	}

	l.hub.BroadcastEvent(hub.Event{Transaction: tx})
	return tx, nil
}

// TransferNoBalanceUpdate inserts only the transactions row, used where
// balance bookkeeping is handled separately (e.g. name-transfer events that
// move no Kromer).
func (l *Ledger) TransferNoBalanceUpdate(from *string, to string, amount float64, kind models.TransactionType, opts TransferOptions) (*models.Transaction, error) {
	tx, err := l.store.TransferNoBalanceUpdate(from, to, amount, kind, store.TransferMeta{
		Metadata:     opts.Metadata,
		Name:         opts.Name,
		SentName:     opts.SentName,
		SentMetaname: opts.SentMetaname,
	})
	if err != nil {
		return nil, err
	}

	l.hub.BroadcastEvent(hub.Event{Transaction: tx})
	return tx, nil
}

// ContinueSub performs a subscription renewal (spec.md §4.F): the debit,
// credit, transaction insert, and lapsed_at reschedule all commit together
// in one store transaction, so a crash between the transfer and the
// reschedule can never double-debit the payer on the next scheduler pass.
// On any failure the whole operation is a no-op and no event is emitted.
func (l *Ledger) ContinueSub(subscriptionID int64, from, to string, amount float64, kind models.TransactionType, opts TransferOptions, nextLapse time.Time) (*models.Transaction, error) {
	tx, err := l.store.ContinueSub(subscriptionID, from, to, amount, kind, store.TransferMeta{
		Metadata:     opts.Metadata,
		Name:         opts.Name,
		SentName:     opts.SentName,
		SentMetaname: opts.SentMetaname,
	}, nextLapse)
	if err != nil {
		return nil, err
	}

	l.hub.BroadcastEvent(hub.Event{Transaction: tx})
	return tx, nil
}
