package wallet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResolver_ExplicitIDWins(t *testing.T) {
	r, err := NewResolver("0xHOUSE", "deadbeef")
	require.NoError(t, err)

	id, ok := r.HouseWalletID()
	assert.True(t, ok)
	assert.Equal(t, "0xHOUSE", id)
}

func TestNewResolver_DerivesAddressFromKey(t *testing.T) {
	const key = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

	r, err := NewResolver("", key)
	require.NoError(t, err)
	id, ok := r.HouseWalletID()
	require.True(t, ok)
	assert.Equal(t, "0x2c7536E3605D9C16a7a3D7b1898e529396a65c23", id)

	// A 0x prefix on the key is tolerated.
	r2, err := NewResolver("", "0x"+key)
	require.NoError(t, err)
	id2, _ := r2.HouseWalletID()
	assert.Equal(t, id, id2)
}

func TestNewResolver_EmptyIsValid(t *testing.T) {
	r, err := NewResolver("", "")
	require.NoError(t, err)

	_, ok := r.HouseWalletID()
	assert.False(t, ok)
}

func TestNewResolver_BadKey(t *testing.T) {
	_, err := NewResolver("", "not-hex")
	require.Error(t, err)
}
