package ws

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/fheauction/internal/domain"
)

const auctionAddr = "0x00000000000000000000000000000000000000aa"

func TestRouteChannel(t *testing.T) {
	snapshot := `{"type":"snapshot","payload":{"auction":{"address":"` + auctionAddr + `"}}}`
	notice := `{"type":"notice","payload":{"auction":"` + auctionAddr + `","message":"ok"}}`

	assert.Equal(t, "auction:"+auctionAddr, routeChannel("auction:*", []byte(snapshot)))
	assert.Equal(t, "auction:"+auctionAddr, routeChannel("auction:*", []byte(notice)))
	assert.Equal(t, "auction:*", routeChannel("auction:*", []byte(`{"type":"x","payload":{}}`)))
	assert.Equal(t, domain.ChannelNotices, routeChannel(domain.ChannelNotices, []byte(notice)))
}

func TestClientSubscriptions(t *testing.T) {
	c := &client{subs: map[string]bool{domain.ChannelNotices: true}}
	c.handleSubscription(subscribeMsg{Action: "subscribe", Channels: []string{"AUCTION:0xAbC", "auction:*"}})

	assert.True(t, c.isSubscribed("auction:0xabc"))
	assert.True(t, c.isSubscribed("auction:0xdef"), "wildcard")
	assert.False(t, c.isSubscribed(domain.ChannelStatus))

	c.handleSubscription(subscribeMsg{Action: "unsubscribe", Channels: []string{"auction:*"}})
	assert.False(t, c.isSubscribed("auction:0xdef"))
}

func TestHubDeliversToSubscribedClients(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil, slog.New(slog.NewTextHandler(io.Discard, nil)), Config{FHEReady: func() bool { return true }})
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	var status struct {
		Type    string          `json:"type"`
		Payload map[string]bool `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&status))
	assert.Equal(t, domain.EventFHEStatus, status.Type)
	assert.True(t, status.Payload["ready"])

	// Not subscribed: dropped. Subscribed: delivered.
	require.NoError(t, hub.Publish(ctx, domain.AuctionChannel(auctionAddr), []byte(`{"type":"snapshot"}`)))
	require.NoError(t, hub.Publish(ctx, domain.ChannelNotices, []byte(`{"type":"notice"}`)))

	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env domain.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, domain.EventNotice, env.Type)
}
