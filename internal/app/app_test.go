package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/fheauction/internal/config"
	"github.com/alanyoungcy/fheauction/internal/domain"
	"github.com/alanyoungcy/fheauction/internal/notify"
	"github.com/alanyoungcy/fheauction/internal/server/ws"
)

type stubLister struct {
	results []domain.SummaryResult
	err     error
	caller  common.Address
}

func (s *stubLister) ListAuctions(_ context.Context, caller common.Address) ([]domain.SummaryResult, error) {
	s.caller = caller
	return s.results, s.err
}

func TestWriteListing(t *testing.T) {
	a := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	b := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	caller := common.HexToAddress("0x00000000000000000000000000000000000000c1")
	l := &stubLister{results: []domain.SummaryResult{
		{Address: a, Summary: &domain.Summary{Address: a, Quantity: big.NewInt(1e18), Participants: 2, Status: domain.SummaryStatusEnded}},
		{Address: b, Err: errors.New("chain read failed: owner")},
	}}

	var buf bytes.Buffer
	require.NoError(t, writeListing(context.Background(), &buf, l, caller))
	assert.Equal(t, caller, l.caller)

	var out []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Len(t, out, 2)
	assert.Equal(t, "ended", out[0]["status"])
	assert.Equal(t, float64(2), out[0]["participants"])
	assert.Equal(t, "chain read failed: owner", out[1]["error"])

	l.err = errors.New("factory unreachable")
	assert.ErrorContains(t, writeListing(context.Background(), io.Discard, l, caller), "factory unreachable")
}

func TestGatewayAuth(t *testing.T) {
	assert.Nil(t, gatewayAuth(config.FHEConfig{}))
	auth := gatewayAuth(config.FHEConfig{APIKey: "k", APISecret: "s", APIPassphrase: "p"})
	require.NotNil(t, auth)
	assert.True(t, auth.Enabled())
}

func TestNotifySenders(t *testing.T) {
	assert.Empty(t, notifySenders(config.NotifyConfig{TelegramToken: "t"}), "chat id required")
	senders := notifySenders(config.NotifyConfig{
		TelegramToken:     "t",
		TelegramChatID:    "1",
		DiscordWebhookURL: "https://discord.example/hook",
	})
	require.Len(t, senders, 2)
	assert.Equal(t, "telegram", senders[0].Name())
	assert.Equal(t, "discord", senders[1].Name())
}

func TestSinksWithoutBackends(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := New(&config.Config{}, logger)
	hub := ws.NewHub(nil, logger, ws.Config{})

	s := a.sinks(&Dependencies{}, hub)
	assert.Nil(t, s.Notifier, "a nil notifier must not become a non-nil interface")
	assert.Nil(t, s.Txs)
	assert.Nil(t, s.ArchiveIndex)
	require.IsType(t, hubBus{}, s.Bus)

	_, err := s.Bus.StreamRead(context.Background(), domain.StreamNotices, "", 10)
	assert.ErrorIs(t, err, errNoBus)

	s = a.sinks(&Dependencies{Notifier: notify.NewNotifier(nil, notify.Filter{}, logger)}, hub)
	assert.NotNil(t, s.Notifier)
}
