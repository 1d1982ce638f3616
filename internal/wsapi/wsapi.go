// Package wsapi implements the 4.E inbound WebSocket state machine: one
// Dispatch call per frame, switching on its "type" discriminator
// (spec.md §4.E).
package wsapi

import (
	"encoding/json"
	"errors"

	"github.com/reconnectedcc/kromer/internal/hub"
	"github.com/reconnectedcc/kromer/internal/ledger"
	"github.com/reconnectedcc/kromer/internal/models"
	"github.com/reconnectedcc/kromer/pkg/logger"
)

// AddressDeriver mirrors internal/session.AddressDeriver; wsapi needs its
// own narrow copy to avoid importing internal/session.
type AddressDeriver interface {
	DeriveAddress(privateKey string) (string, error)
}

// WalletGetter is the narrow store capability `address`/`me` needs.
type WalletGetter interface {
	GetWallet(address string) (*models.Wallet, error)
}

type API struct {
	log     *logger.Logger
	ledger  *ledger.Ledger
	deriver AddressDeriver
	wallets WalletGetter
}

func New(log *logger.Logger, l *ledger.Ledger, deriver AddressDeriver, wallets WalletGetter) *API {
	return &API{log: log, ledger: l, deriver: deriver, wallets: wallets}
}

// SetLedger wires the ledger after construction, breaking the
// hub/ledger/dispatcher initialization cycle at boot (the hub needs a
// Dispatcher before the ledger exists, but the ledger needs the hub as its
// EventSink). Must be called once before the hub starts accepting
// connections.
func (a *API) SetLedger(l *ledger.Ledger) {
	a.ledger = l
}

type frame struct {
	ID         *int64   `json:"id,omitempty"`
	Type       string   `json:"type"`
	PrivateKey string   `json:"privatekey,omitempty"`
	Subscribe  string   `json:"subscription_type,omitempty"`
	Address    string   `json:"address,omitempty"`
	To         string   `json:"to,omitempty"`
	Amount     float64  `json:"amount,omitempty"`
	Metadata   string   `json:"metadata,omitempty"`
}

func reply(id *int64, fields map[string]interface{}) map[string]interface{} {
	out := map[string]interface{}{"ok": true}
	for k, v := range fields {
		out[k] = v
	}
	if id != nil {
		out["id"] = *id
	}
	return out
}

func errReply(id *int64, code, message string) map[string]interface{} {
	out := map[string]interface{}{
		"ok":      false,
		"error":   code,
		"message": message,
	}
	if id != nil {
		out["id"] = *id
	}
	return out
}

// Dispatch implements hub.Dispatcher. It always returns ok=true: a frame
// that is not valid JSON gets an invalid_frame error reply, and an
// unrecognized type gets an unknown_type error reply.
func (a *API) Dispatch(session *hub.Session, raw []byte) (interface{}, bool) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return errReply(nil, "invalid_frame", "could not parse frame as JSON"), true
	}

	switch f.Type {
	case "login":
		return a.handleLogin(session, f), true
	case "logout":
		session.Logout()
		return reply(f.ID, map[string]interface{}{"is_guest": true}), true
	case "subscribe":
		kind := hub.SubscriptionKind(f.Subscribe)
		subs := session.Subscribe(kind)
		return reply(f.ID, map[string]interface{}{"subscription_level": subsList(subs)}), true
	case "unsubscribe":
		kind := hub.SubscriptionKind(f.Subscribe)
		subs := session.Unsubscribe(kind)
		return reply(f.ID, map[string]interface{}{"subscription_level": subsList(subs)}), true
	case "get_subscription_level":
		return reply(f.ID, map[string]interface{}{"subscription_level": subsList(session.Subscriptions())}), true
	case "get_valid_subscription_levels":
		return reply(f.ID, map[string]interface{}{"valid_subscription_levels": hub.ValidSubscriptionLevels}), true
	case "me", "address":
		return a.handleAddress(session, f), true
	case "submit_block":
		return errReply(f.ID, "mining_disabled", "mining is disabled on this server"), true
	case "make_transaction":
		return a.handleMakeTransaction(session, f), true
	default:
		return errReply(f.ID, "unknown_type", "unrecognized frame type"), true
	}
}

func subsList(subs map[hub.SubscriptionKind]struct{}) []hub.SubscriptionKind {
	out := make([]hub.SubscriptionKind, 0, len(subs))
	for k := range subs {
		out = append(out, k)
	}
	return out
}

// handleLogin never leaks why a login failed, per spec.md §4.E: any
// failure (bad key, derivation error, no wallet for the derived address,
// locked wallet) degrades to the same is_guest:true reply as "no session
// at all" — mirroring internal/session.Registry.RegisterFromKey, the WS
// hand-off is not a way to bypass wallet authorization.
func (a *API) handleLogin(session *hub.Session, f frame) map[string]interface{} {
	address, err := a.deriver.DeriveAddress(f.PrivateKey)
	if err != nil {
		return reply(f.ID, map[string]interface{}{"is_guest": true})
	}
	wallet, err := a.wallets.GetWallet(address)
	if err != nil || wallet.Locked {
		return reply(f.ID, map[string]interface{}{"is_guest": true})
	}
	session.Login(address, f.PrivateKey)
	return reply(f.ID, map[string]interface{}{"is_guest": false, "address": address})
}

func (a *API) handleAddress(session *hub.Session, f frame) map[string]interface{} {
	address := f.Address
	if address == "" {
		address = session.Address()
	}
	wallet, err := a.wallets.GetWallet(address)
	if err != nil {
		if errors.Is(err, models.ErrWalletNotFound) {
			return errReply(f.ID, "wallet_not_found", "no such wallet")
		}
		return errReply(f.ID, "internal_error", "failed to look up wallet")
	}
	return reply(f.ID, map[string]interface{}{"address": wallet.Address, "balance": wallet.Balance})
}

func (a *API) handleMakeTransaction(session *hub.Session, f frame) map[string]interface{} {
	if session.IsGuest() {
		return errReply(f.ID, "not_authenticated", "login required to make a transaction")
	}
	var metadata *string
	if f.Metadata != "" {
		metadata = &f.Metadata
	}
	tx, err := a.ledger.Transfer(session.Address(), f.To, f.Amount, models.TransactionTransfer, ledger.TransferOptions{
		Metadata: metadata,
	})
	if err != nil {
		return errReply(f.ID, transferErrorCode(err), "transaction failed")
	}
	return reply(f.ID, map[string]interface{}{"transaction": tx})
}

func transferErrorCode(err error) string {
	switch {
	case errors.Is(err, models.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, models.ErrSenderNotFound):
		return "sender_not_found"
	case errors.Is(err, models.ErrRecipientNotFound):
		return "recipient_not_found"
	case errors.Is(err, models.ErrWalletLocked):
		return "wallet_locked"
	default:
		return "internal_error"
	}
}
