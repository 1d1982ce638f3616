package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconnectedcc/kromer/internal/hub"
	"github.com/reconnectedcc/kromer/internal/models"
	"github.com/reconnectedcc/kromer/internal/store"
	"github.com/reconnectedcc/kromer/pkg/logger"
)

type fakeStore struct {
	store.Store
	transferErr error
	lastFrom    string
	lastTo      string
	lastAmount  float64
	lastKind    models.TransactionType
}

func (f *fakeStore) Transfer(from, to string, amount float64, kind models.TransactionType, meta store.TransferMeta) (*models.Transaction, error) {
	if f.transferErr != nil {
		return nil, f.transferErr
	}
	f.lastFrom, f.lastTo, f.lastAmount, f.lastKind = from, to, amount, kind
	return &models.Transaction{From: &from, To: to, Amount: amount, Type: kind, Metadata: meta.Metadata}, nil
}

func (f *fakeStore) TransferNoBalanceUpdate(from *string, to string, amount float64, kind models.TransactionType, meta store.TransferMeta) (*models.Transaction, error) {
	if f.transferErr != nil {
		return nil, f.transferErr
	}
	return &models.Transaction{From: from, To: to, Amount: amount, Type: kind}, nil
}

type fakeSink struct{ events []hub.Event }

func (f *fakeSink) BroadcastEvent(event hub.Event) { f.events = append(f.events, event) }

func newTestLedger(t *testing.T, s store.Store, sink hub.EventSink) *Ledger {
	t.Helper()
	log, err := logger.NewLogger(true)
	require.NoError(t, err)
	return New(s, sink, log)
}

func TestTransferBroadcastsOnSuccess(t *testing.T) {
	fs := &fakeStore{}
	sink := &fakeSink{}
	l := newTestLedger(t, fs, sink)

	tx, err := l.Transfer("kalice000", "kbob000000", 25, models.TransactionTransfer, TransferOptions{})
	require.NoError(t, err)
	require.NotNil(t, tx)

	assert.Equal(t, "kalice000", fs.lastFrom)
	assert.Equal(t, "kbob000000", fs.lastTo)
	assert.Equal(t, 25.0, fs.lastAmount)

	require.Len(t, sink.events, 1)
	require.NotNil(t, sink.events[0].Transaction)
	assert.Equal(t, "kbob000000", sink.events[0].Transaction.To)
}

func TestTransferDoesNotBroadcastOnFailure(t *testing.T) {
	fs := &fakeStore{transferErr: models.ErrInsufficientFunds}
	sink := &fakeSink{}
	l := newTestLedger(t, fs, sink)

	tx, err := l.Transfer("kalice000", "kbob000000", 25, models.TransactionTransfer, TransferOptions{})
	assert.ErrorIs(t, err, models.ErrInsufficientFunds)
	assert.Nil(t, tx)
	assert.Empty(t, sink.events)
}

func TestTransferCarriesMetadata(t *testing.T) {
	fs := &fakeStore{}
	sink := &fakeSink{}
	l := newTestLedger(t, fs, sink)

	meta := "sub_id=7"
	tx, err := l.Transfer("kalice000", "kbob000000", 5, models.TransactionTransfer, TransferOptions{Metadata: &meta})
	require.NoError(t, err)
	require.NotNil(t, tx.Metadata)
	assert.Equal(t, meta, *tx.Metadata)
}

func TestTransferNoBalanceUpdateBroadcasts(t *testing.T) {
	fs := &fakeStore{}
	sink := &fakeSink{}
	l := newTestLedger(t, fs, sink)

	tx, err := l.TransferNoBalanceUpdate(nil, "kbob000000", 0, models.TransactionNameTransfer, TransferOptions{})
	require.NoError(t, err)
	require.NotNil(t, tx)
	require.Len(t, sink.events, 1)
	assert.Equal(t, models.TransactionNameTransfer, sink.events[0].Transaction.Type)
}
