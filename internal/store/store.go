// Package store defines the behavioral contract the core requires of the
// persistent store (spec.md §1 treats the store implementation itself as an
// external collaborator; only this contract is specified).
package store

import (
	"errors"
	"time"

	"github.com/reconnectedcc/kromer/internal/models"
)

// TransferMeta carries the optional columns a Transaction row may set
// beyond from/to/amount/type/date (spec.md §3 Transaction shape).
type TransferMeta struct {
	Metadata     *string
	Name         *string
	SentName     *string
	SentMetaname *string
}

// ContractPatch applies three-valued PATCH semantics (spec.md §9): a field
// left at its zero value (Set == false) is untouched, Set == true with a
// nil pointer clears the column, Set == true with a non-nil pointer writes
// it.
type ContractPatch struct {
	Description Optional[*string]
	Price       Optional[float64]
	CronExpr    Optional[string]
	MaxSubs     Optional[*int64]
	AllowList   Optional[models.AllowList]
	Status      Optional[models.ContractStatus]
}

// Optional is the three-state wrapper spec.md §9 calls for: unset / set.
// "Set-to-null" is expressed by T being a pointer or nilable type and Value
// being nil while Set is true.
type Optional[T any] struct {
	Set   bool
	Value T
}

func SetTo[T any](v T) Optional[T] { return Optional[T]{Set: true, Value: v} }

// Store is the persistence contract. Every method that can race with
// itself across wallets (Transfer) or across scheduler wakeups
// (FetchSoonestLapsed / ContinueSub / CancelSubscription) is implemented
// with the transactional and row-locking guarantees spec.md §4 and §5
// require; callers never need to take their own locks.
type Store interface {
	Close() error

	GetWallet(address string) (*models.Wallet, error)
	CreateWallet(address string, initialBalance float64) (*models.Wallet, error)

	// Transfer is the 4.A ledger primitive's storage half: in one
	// transaction, lock sender+recipient wallets FOR UPDATE, debit/credit,
	// insert the transactions row, commit.
	Transfer(from, to string, amount float64, kind models.TransactionType, meta TransferMeta) (*models.Transaction, error)
	// TransferNoBalanceUpdate inserts only the transactions row (the 4.A
	// fast variant used where balance bookkeeping happens separately).
	TransferNoBalanceUpdate(from *string, to string, amount float64, kind models.TransactionType, meta TransferMeta) (*models.Transaction, error)

	GetName(name string) (*models.Name, error)
	CreateName(name, owner string) (*models.Name, error)
	UpdateNameOwner(name, newOwner string) error
	UpdateNameARecord(name string, aRecord *string) error

	CreateContract(c *models.Contract) error
	GetContract(id int64) (*models.Contract, error)
	UpdateContract(id int64, patch ContractPatch) (*models.Contract, error)

	CreateSubscription(contractID int64, payer string, lapsedAt time.Time) (*models.Subscription, error)
	GetSubscription(id int64) (*models.Subscription, error)
	// CancelSubscription performs CancelSub (spec.md §4.F): sets
	// lapsed_at = NULL, status = canceled, and returns rows affected so the
	// caller can assert exactly one (Desync otherwise).
	CancelSubscription(subscriptionID int64) (int64, error)
	// FetchSoonestLapsed reads the soonest subscription with
	// lapsed_at < before, joined with its contract and payer wallet.
	// Returns nil, nil if there is none.
	FetchSoonestLapsed(before time.Time) (*models.SubscriptionWithContract, error)
	// FetchNextLapseTime returns the lapsed_at of the soonest pending
	// subscription within the next horizon, or nil if none.
	FetchNextLapseTime(horizon time.Duration) (*time.Time, error)
	// ContinueSub performs a subscription renewal (spec.md §4.F): debit the
	// payer, credit the contract owner, insert the transactions row, and
	// advance the subscription's lapsed_at, all committed together in one
	// transaction. A crash between the transfer and the reschedule must
	// never leave the payer debited with the subscription still lapsed,
	// since that would double-debit it on the next scheduler pass.
	ContinueSub(subscriptionID int64, from, to string, amount float64, kind models.TransactionType, meta TransferMeta, nextLapse time.Time) (*models.Transaction, error)
}

// WalletAuthorizer adapts any Store into internal/session's WalletLookup:
// a wallet is authorized to start a session iff it exists and is not
// locked (spec.md §3's Wallet.Locked, SPEC_FULL.md §3 supplement).
type WalletAuthorizer struct {
	Store Store
}

func (a WalletAuthorizer) IsAuthorized(address string) (bool, error) {
	wallet, err := a.Store.GetWallet(address)
	if err != nil {
		if errors.Is(err, models.ErrWalletNotFound) {
			return false, nil
		}
		return false, err
	}
	return !wallet.Locked, nil
}
