package session

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reconnectedcc/kromer/internal/models"
)

type fakeWallets struct {
	authorized map[string]bool
	err        error
}

func (f fakeWallets) IsAuthorized(address string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.authorized[address], nil
}

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

func TestRegisterAndGetAddress(t *testing.T) {
	r := New(fakeWallets{}, fakeDeriver{})

	id, expiresAt := r.Register("kabc123")
	assert.NotEqual(t, uuid.Nil, id)
	assert.True(t, expiresAt.After(expiresAt.Add(-TTL)))

	addr, ok := r.GetAddress(id)
	require.True(t, ok)
	assert.Equal(t, "kabc123", addr)
}

func TestGetAddressUnknownSession(t *testing.T) {
	r := New(fakeWallets{}, fakeDeriver{})

	_, ok := r.GetAddress(uuid.New())
	assert.False(t, ok)
}

func TestRevokeRemovesSession(t *testing.T) {
	r := New(fakeWallets{}, fakeDeriver{})
	id, _ := r.Register("kabc123")

	addr, err := r.Revoke(id)
	require.NoError(t, err)
	assert.Equal(t, "kabc123", addr)

	_, err = r.Revoke(id)
	assert.ErrorIs(t, err, models.ErrInvalidSession)
}

func TestRegisterFromKeySuccess(t *testing.T) {
	r := New(
		fakeWallets{authorized: map[string]bool{"kabc123": true}},
		fakeDeriver{address: "kabc123"},
	)

	id, _, addr, err := r.RegisterFromKey("some-private-key")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, id)
	assert.Equal(t, "kabc123", addr)
}

func TestRegisterFromKeyUnauthorizedWallet(t *testing.T) {
	r := New(
		fakeWallets{authorized: map[string]bool{}},
		fakeDeriver{address: "klocked99"},
	)

	_, _, _, err := r.RegisterFromKey("some-private-key")
	assert.Error(t, err)
}

func TestRegisterFromKeyDerivationFailure(t *testing.T) {
	r := New(fakeWallets{}, fakeDeriver{err: errors.New("bad key")})

	_, _, _, err := r.RegisterFromKey("garbage")
	assert.Error(t, err)
}

func TestIsAuthedAddr(t *testing.T) {
	r := New(fakeWallets{}, fakeDeriver{})
	id, _ := r.Register("kabc123")

	matched, present := r.IsAuthedAddr(id, "kabc123")
	assert.True(t, present)
	assert.True(t, matched)

	matched, present = r.IsAuthedAddr(id, "kother00")
	assert.True(t, present)
	assert.False(t, matched)

	_, present = r.IsAuthedAddr(uuid.New(), "kabc123")
	assert.False(t, present)
}
