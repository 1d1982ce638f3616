package wsapi

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconnectedcc/kromer/internal/hub"
	"github.com/reconnectedcc/kromer/internal/ledger"
	"github.com/reconnectedcc/kromer/internal/models"
	"github.com/reconnectedcc/kromer/internal/store"
	"github.com/reconnectedcc/kromer/pkg/logger"
)

type fakeDeriver struct {
	address string
	err     error
}

func (f fakeDeriver) DeriveAddress(privateKey string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.address, nil
}

type fakeWallets struct {
	wallets map[string]*models.Wallet
}

func (f fakeWallets) GetWallet(address string) (*models.Wallet, error) {
	w, ok := f.wallets[address]
	if !ok {
		return nil, models.ErrWalletNotFound
	}
	return w, nil
}

type fakeLedgerStore struct {
	store.Store
	transferErr error
}

func (f *fakeLedgerStore) Transfer(from, to string, amount float64, kind models.TransactionType, meta store.TransferMeta) (*models.Transaction, error) {
	if f.transferErr != nil {
		return nil, f.transferErr
	}
	return &models.Transaction{From: &from, To: to, Amount: amount, Type: kind}, nil
}

type fakeSink struct{}

func (fakeSink) BroadcastEvent(event hub.Event) {}

func newTestAPI(t *testing.T, deriver AddressDeriver, wallets WalletGetter, l *ledger.Ledger) *API {
	t.Helper()
	log, err := logger.NewLogger(true)
	require.NoError(t, err)
	return New(log, l, deriver, wallets)
}

func newTestLedger(t *testing.T, transferErr error) *ledger.Ledger {
	t.Helper()
	log, err := logger.NewLogger(true)
	require.NoError(t, err)
	return ledger.New(&fakeLedgerStore{transferErr: transferErr}, fakeSink{}, log)
}

func TestHandleLoginSuccess(t *testing.T) {
	wallets := fakeWallets{wallets: map[string]*models.Wallet{
		"kalice000": {Address: "kalice000"},
	}}
	api := newTestAPI(t, fakeDeriver{address: "kalice000"}, wallets, nil)
	sess := hub.NewTestSession()

	reply := api.handleLogin(sess, frame{PrivateKey: "some-key"})
	assert.Equal(t, false, reply["is_guest"])
	assert.Equal(t, "kalice000", reply["address"])
	assert.False(t, sess.IsGuest())
}

func TestHandleLoginFailureDegradesToGuest(t *testing.T) {
	api := newTestAPI(t, fakeDeriver{err: assert.AnError}, fakeWallets{}, nil)
	sess := hub.NewTestSession()

	reply := api.handleLogin(sess, frame{PrivateKey: "bad-key"})
	assert.Equal(t, true, reply["is_guest"])
	_, hasAddress := reply["address"]
	assert.False(t, hasAddress)
	assert.True(t, sess.IsGuest())
}

func TestHandleLoginDegradesToGuestForUnknownWallet(t *testing.T) {
	api := newTestAPI(t, fakeDeriver{address: "kalice000"}, fakeWallets{wallets: map[string]*models.Wallet{}}, nil)
	sess := hub.NewTestSession()

	reply := api.handleLogin(sess, frame{PrivateKey: "some-key"})
	assert.Equal(t, true, reply["is_guest"])
	_, hasAddress := reply["address"]
	assert.False(t, hasAddress)
	assert.True(t, sess.IsGuest())
}

func TestHandleLoginDegradesToGuestForLockedWallet(t *testing.T) {
	wallets := fakeWallets{wallets: map[string]*models.Wallet{
		"kalice000": {Address: "kalice000", Locked: true},
	}}
	api := newTestAPI(t, fakeDeriver{address: "kalice000"}, wallets, nil)
	sess := hub.NewTestSession()

	reply := api.handleLogin(sess, frame{PrivateKey: "some-key"})
	assert.Equal(t, true, reply["is_guest"])
	assert.True(t, sess.IsGuest())
}

func TestHandleAddressDefaultsToSession(t *testing.T) {
	wallets := fakeWallets{wallets: map[string]*models.Wallet{
		"kalice000": {Address: "kalice000", Balance: 42},
	}}
	api := newTestAPI(t, fakeDeriver{}, wallets, nil)
	sess := hub.NewTestSession()
	sess.Login("kalice000", "key")

	reply := api.handleAddress(sess, frame{})
	assert.Equal(t, "kalice000", reply["address"])
	assert.Equal(t, 42.0, reply["balance"])
}

func TestHandleAddressNotFound(t *testing.T) {
	api := newTestAPI(t, fakeDeriver{}, fakeWallets{wallets: map[string]*models.Wallet{}}, nil)
	sess := hub.NewTestSession()

	reply := api.handleAddress(sess, frame{Address: "kmissing00"})
	assert.Equal(t, false, reply["ok"])
	assert.Equal(t, "wallet_not_found", reply["error"])
}

func TestHandleMakeTransactionRejectsGuest(t *testing.T) {
	api := newTestAPI(t, fakeDeriver{}, fakeWallets{}, newTestLedger(t, nil))
	sess := hub.NewTestSession()

	reply := api.handleMakeTransaction(sess, frame{To: "kbob000000", Amount: 10})
	assert.Equal(t, false, reply["ok"])
	assert.Equal(t, "not_authenticated", reply["error"])
}

func TestHandleMakeTransactionSuccess(t *testing.T) {
	api := newTestAPI(t, fakeDeriver{}, fakeWallets{}, newTestLedger(t, nil))
	sess := hub.NewTestSession()
	sess.Login("kalice000", "key")

	reply := api.handleMakeTransaction(sess, frame{To: "kbob000000", Amount: 10})
	assert.Equal(t, true, reply["ok"])
	assert.NotNil(t, reply["transaction"])
}

func TestHandleMakeTransactionInsufficientFunds(t *testing.T) {
	api := newTestAPI(t, fakeDeriver{}, fakeWallets{}, newTestLedger(t, models.ErrInsufficientFunds))
	sess := hub.NewTestSession()
	sess.Login("kalice000", "key")

	reply := api.handleMakeTransaction(sess, frame{To: "kbob000000", Amount: 10})
	assert.Equal(t, false, reply["ok"])
	assert.Equal(t, "insufficient_funds", reply["error"])
}

func TestDispatchUnknownType(t *testing.T) {
	api := newTestAPI(t, fakeDeriver{}, fakeWallets{}, nil)
	sess := hub.NewTestSession()

	reply, ok := api.Dispatch(sess, []byte(`{"type":"not_a_real_type"}`))
	assert.True(t, ok)
	m := reply.(map[string]interface{})
	assert.Equal(t, "unknown_type", m["error"])
}

func TestDispatchSubmitBlockDisabled(t *testing.T) {
	api := newTestAPI(t, fakeDeriver{}, fakeWallets{}, nil)
	sess := hub.NewTestSession()

	reply, ok := api.Dispatch(sess, []byte(`{"type":"submit_block"}`))
	assert.True(t, ok)
	m := reply.(map[string]interface{})
	assert.Equal(t, "mining_disabled", m["error"])
}

func TestDispatchMalformedJSON(t *testing.T) {
	api := newTestAPI(t, fakeDeriver{}, fakeWallets{}, nil)
	sess := hub.NewTestSession()

	reply, ok := api.Dispatch(sess, []byte(`not json`))
	assert.True(t, ok)
	m := reply.(map[string]interface{})
	assert.Equal(t, "invalid_frame", m["error"])
}
