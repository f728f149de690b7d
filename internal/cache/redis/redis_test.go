package redis

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/fheauction/internal/domain"
)

func TestKeyNamespace(t *testing.T) {
	assert.Equal(t, "lock:auction:0xab", joinKey("", "lock", "auction:0xab"))
	assert.Equal(t, "fhe:summary:0xab", joinKey(normalizePrefix(" fhe: "), "summary", "0xab"))

	c := &Client{prefix: "dev"}
	assert.Equal(t, "dev:notices", c.Key(domain.ChannelNotices))
}

func TestSummaryCodecKeepsOwnershipOut(t *testing.T) {
	start := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	in := domain.Summary{
		Address:        common.HexToAddress("0x00000000000000000000000000000000000000A1"),
		Owner:          common.HexToAddress("0x00000000000000000000000000000000000000E1"),
		Asset:          common.HexToAddress("0x00000000000000000000000000000000000000C1"),
		Quantity:       new(big.Int).Exp(big.NewInt(10), big.NewInt(20), nil),
		StartTime:      start,
		EndTime:        start.Add(time.Hour),
		MaxParticipant: big.NewInt(7),
		Participants:   3,
		Status:         domain.SummaryStatusActive,
		IsOwner:        true,
	}
	data, err := encodeSummary(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"quantity":"100000000000000000000"`)

	out, err := decodeSummary(data)
	require.NoError(t, err)
	assert.False(t, out.IsOwner)
	assert.True(t, domain.IsNative(out.PaymentToken))
	out.IsOwner = true
	assert.Equal(t, in, out)

	_, err = decodeSummary([]byte(`{"quantity":"x","max_participant":"1"}`))
	assert.Error(t, err)
}

func TestStreamHelpers(t *testing.T) {
	assert.Equal(t, "-", exclusiveStart("0"))
	assert.Equal(t, "(1700000000000-3", exclusiveStart("1700000000000-3"))

	msgs := decodeStream([]redis.XMessage{
		{ID: "1-0", Values: map[string]any{"payload": "a"}},
		{ID: "2-0", Values: map[string]any{"other": "b"}},
		{ID: "3-0", Values: map[string]any{"payload": []byte("c")}},
	})
	require.Len(t, msgs, 2)
	assert.Equal(t, "1-0", msgs[0].ID)
	assert.Equal(t, []byte("c"), msgs[1].Payload)

	assert.True(t, isPattern("auction:*"))
	assert.False(t, isPattern(domain.ChannelNotices))
}
