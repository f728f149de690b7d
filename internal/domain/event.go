package domain

import (
	"strings"
	"time"
)

// Event types pushed to the presentation layer.
const (
	EventSnapshot  = "snapshot"
	EventNotice    = "notice"
	EventFHEStatus = "fhe_status"
)

// Channel names on the signal bus.
const (
	ChannelAuctionPrefix = "auction:"
	ChannelNotices       = "notices"
	ChannelStatus        = "status"

	// StreamNotices keeps a bounded history of notices for late joiners.
	StreamNotices = "stream:notices"
)

// AuctionChannel returns the bus channel carrying updates for one auction.
func AuctionChannel(auction string) string {
	return ChannelAuctionPrefix + strings.ToLower(auction)
}

// NoticeLevel distinguishes success notices from failures.
type NoticeLevel string

const (
	NoticeInfo  NoticeLevel = "info"
	NoticeError NoticeLevel = "error"
)

// Notice is a user-visible message reporting the outcome of one operation.
// Every orchestrator operation emits at most one notice.
type Notice struct {
	Level     NoticeLevel `json:"level"`
	Operation string      `json:"operation"`
	Auction   string      `json:"auction,omitempty"`
	Message   string      `json:"message"`
	TxHash    string      `json:"tx_hash,omitempty"`
	At        time.Time   `json:"at"`
}

// Envelope is the JSON frame published on the bus and relayed over
// WebSocket.
type Envelope struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}
