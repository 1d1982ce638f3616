package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllowListContains(t *testing.T) {
	list := AllowList{"kalice000", "kbob000000"}
	assert.True(t, list.Contains("kalice000"))
	assert.False(t, list.Contains("kcarol0000"))
	assert.False(t, AllowList(nil).Contains("kalice000"))
}

func TestAllowListValueNilIsSQLNull(t *testing.T) {
	var list AllowList
	v, err := list.Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}

func TestAllowListValueRoundTrip(t *testing.T) {
	list := AllowList{"kalice000", "kbob000000"}
	v, err := list.Value()
	require.NoError(t, err)

	var scanned AllowList
	require.NoError(t, scanned.Scan(v))
	assert.Equal(t, list, scanned)
}

func TestAllowListScanNilClears(t *testing.T) {
	list := AllowList{"kalice000"}
	require.NoError(t, list.Scan(nil))
	assert.Nil(t, list)
}

func TestAllowListScanRejectsUnsupportedType(t *testing.T) {
	var list AllowList
	err := list.Scan(42)
	assert.Error(t, err)
}

func TestInvalidParameterErrorMessage(t *testing.T) {
	err := NewInvalidParameter("price", "must be greater than 0")
	assert.Equal(t, "invalid_parameter(price): must be greater than 0", err.Error())
}
