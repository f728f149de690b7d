package domain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInferPhase(t *testing.T) {
	assert.Equal(t, PhaseActive, InferPhase(true, 0))
	assert.Equal(t, PhaseActive, InferPhase(true, 3))
	assert.Equal(t, PhaseEndedPendingDecryption, InferPhase(false, 0))
	assert.Equal(t, PhaseEndedDecrypted, InferPhase(false, 2))

	assert.False(t, PhaseActive.Ended())
	assert.True(t, PhaseEndedPendingDecryption.Ended())
	assert.True(t, PhaseEndedDecrypted.Ended())
}

func TestNormalizeAddress(t *testing.T) {
	lower, err := NormalizeAddress("0xabcdef0123456789abcdef0123456789abcdef01")
	require.NoError(t, err)
	upper, err := NormalizeAddress("0xABCDEF0123456789ABCDEF0123456789ABCDEF01")
	require.NoError(t, err)
	assert.Equal(t, lower, upper)
	assert.Equal(t, "0xabcdef0123456789abcdef0123456789abcdef01", AddressString(upper))

	_, err = NormalizeAddress("0x1234")
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = NormalizeAddress("")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestIsNative(t *testing.T) {
	assert.True(t, IsNative(common.Address{}))
	assert.False(t, IsNative(common.HexToAddress("0x01")))
}

func TestFindEncryptedBid_MatchesNormalizedBidder(t *testing.T) {
	caller := common.HexToAddress("0xAbCdEf0123456789aBcDeF0123456789AbCdEf01")
	bids := []EncryptedBid{
		{Bidder: common.HexToAddress("0x1111111111111111111111111111111111111111")},
		{Bidder: common.HexToAddress("0xabcdef0123456789abcdef0123456789abcdef01"), EncryptedPrice: Handle{7}},
	}

	got, ok := FindEncryptedBid(bids, caller)
	require.True(t, ok)
	assert.Equal(t, Handle{7}, got.EncryptedPrice)

	_, ok = FindEncryptedBid(bids, common.HexToAddress("0x2222222222222222222222222222222222222222"))
	assert.False(t, ok)
}
