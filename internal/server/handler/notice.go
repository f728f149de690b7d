package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/fheauction/internal/domain"
)

// NoticeHandler replays the notice history kept on the signal bus stream.
type NoticeHandler struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewNoticeHandler creates a NoticeHandler. bus may be nil, in which case
// the history is unavailable.
func NewNoticeHandler(bus domain.SignalBus, logger *slog.Logger) *NoticeHandler {
	return &NoticeHandler{bus: bus, logger: logHandler(logger, "notice")}
}

type noticeEntry struct {
	ID     string        `json:"id"`
	Notice domain.Notice `json:"notice"`
}

// ListNotices returns notices recorded after the given stream id, oldest
// first. Pass the last returned id as after to page forward.
// GET /api/notices?after=<id>&limit=100
func (h *NoticeHandler) ListNotices(w http.ResponseWriter, r *http.Request) {
	if h.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "notice history not configured")
		return
	}
	q := r.URL.Query()
	limit := 100
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	msgs, err := h.bus.StreamRead(r.Context(), domain.StreamNotices, q.Get("after"), limit)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to read notices", err)
		return
	}

	out := make([]noticeEntry, 0, len(msgs))
	for _, m := range msgs {
		var n domain.Notice
		if err := json.Unmarshal(m.Payload, &n); err != nil {
			h.logger.WarnContext(r.Context(), "handler: skipping malformed notice",
				slog.String("id", m.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, noticeEntry{ID: m.ID, Notice: n})
	}
	writeJSON(w, http.StatusOK, map[string]any{"notices": out})
}
