package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/fheauction/internal/domain"
)

type recorder struct {
	mu     sync.Mutex
	paths  []string
	bodies []map[string]string
	status int
}

func (r *recorder) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(req.Body).Decode(&body)
		r.mu.Lock()
		r.paths = append(r.paths, req.URL.Path)
		r.bodies = append(r.bodies, body)
		status := r.status
		r.mu.Unlock()
		if status == 0 {
			status = http.StatusNoContent
		}
		w.WriteHeader(status)
	})
}

func (r *recorder) seen() ([]string, []map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.paths...), append([]map[string]string(nil), r.bodies...)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var failedBid = domain.Notice{
	Level:     domain.NoticeError,
	Operation: "place_bid",
	Auction:   "0xabc",
	Message:   "failed to place bid: encryption failed",
}

func TestFormat(t *testing.T) {
	title, body := Format(failedBid)
	assert.Equal(t, "place bid failed", title)
	assert.Equal(t, "failed to place bid: encryption failed\nauction: 0xabc", body)

	title, body = Format(domain.Notice{Level: domain.NoticeInfo, Operation: "lock_funds", Message: "locked 5", TxHash: "0x01"})
	assert.Equal(t, "lock funds", title)
	assert.Equal(t, "locked 5\ntx: 0x01", body)
}

func TestNotifier_FilterAndDelivery(t *testing.T) {
	rec := &recorder{}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	n := NewNotifier([]Sender{
		NewTelegramSender("tok", "42").WithBaseURL(srv.URL),
		NewDiscordSender(srv.URL + "/hook"),
	}, Filter{Operations: []string{"place_bid", " settle_auction "}, ErrorsOnly: true}, quietLogger())

	ctx := context.Background()
	require.NoError(t, n.NotifyNotice(ctx, domain.Notice{Level: domain.NoticeInfo, Operation: "place_bid"}))
	require.NoError(t, n.NotifyNotice(ctx, domain.Notice{Level: domain.NoticeError, Operation: "lock_funds"}))
	paths, _ := rec.seen()
	assert.Empty(t, paths)

	require.NoError(t, n.NotifyNotice(ctx, failedBid))
	paths, bodies := rec.seen()
	require.Equal(t, []string{"/bottok/sendMessage", "/hook"}, paths)
	assert.Equal(t, "42", bodies[0]["chat_id"])
	assert.Contains(t, bodies[0]["text"], "*place bid failed*")
	assert.Contains(t, bodies[1]["content"], "**place bid failed**")
}

func TestNotifier_SenderFailureIsReported(t *testing.T) {
	rec := &recorder{status: http.StatusBadGateway}
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	n := NewNotifier([]Sender{NewDiscordSender(srv.URL)}, Filter{}, quietLogger())
	err := n.NotifyNotice(context.Background(), failedBid)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord: unexpected status 502")
}
