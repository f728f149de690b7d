package service

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/fheauction/internal/domain"
)

// reporter is shared by the orchestrators to emit the single notice each
// operation produces and to record its side effects.
type reporter struct {
	sinks  Sinks
	logger *slog.Logger
}

// notice publishes the outcome of op. Sink failures are logged, never
// returned: the operation's own result is what the caller sees.
func (r reporter) notice(ctx context.Context, op string, auction common.Address, msg string, opErr error, tx *domain.TxReceipt) {
	n := domain.Notice{
		Level:     domain.NoticeInfo,
		Operation: op,
		Message:   msg,
		At:        time.Now().UTC(),
	}
	if auction != (common.Address{}) {
		n.Auction = domain.AddressString(auction)
	}
	if opErr != nil {
		n.Level = domain.NoticeError
		n.Message = msg + ": " + opErr.Error()
	}
	if tx != nil {
		n.TxHash = tx.Hash.Hex()
	}

	if opErr != nil {
		r.logger.WarnContext(ctx, "service: operation failed",
			slog.String("op", op),
			slog.String("auction", n.Auction),
			slog.String("error", opErr.Error()),
		)
	} else {
		r.logger.InfoContext(ctx, "service: operation succeeded",
			slog.String("op", op),
			slog.String("auction", n.Auction),
			slog.String("tx", n.TxHash),
		)
	}

	r.publish(ctx, domain.ChannelNotices, domain.EventNotice, n)
	r.appendHistory(ctx, n)
	if n.Auction != "" {
		r.publish(ctx, domain.AuctionChannel(n.Auction), domain.EventNotice, n)
	}
	if r.sinks.Notifier != nil {
		if err := r.sinks.Notifier.NotifyNotice(ctx, n); err != nil {
			r.logger.WarnContext(ctx, "service: notifier failed", slog.String("error", err.Error()))
		}
	}
	if r.sinks.Audit != nil {
		detail := map[string]any{"level": string(n.Level), "message": n.Message}
		if n.Auction != "" {
			detail["auction"] = n.Auction
		}
		if n.TxHash != "" {
			detail["tx_hash"] = n.TxHash
		}
		if err := r.sinks.Audit.Log(ctx, op, detail); err != nil {
			r.logger.WarnContext(ctx, "service: audit log failed", slog.String("error", err.Error()))
		}
	}
}

func (r reporter) publish(ctx context.Context, channel, eventType string, payload any) {
	if r.sinks.Bus == nil {
		return
	}
	data, err := json.Marshal(domain.Envelope{Type: eventType, Payload: payload})
	if err != nil {
		r.logger.WarnContext(ctx, "service: marshal event", slog.String("error", err.Error()))
		return
	}
	if err := r.sinks.Bus.Publish(ctx, channel, data); err != nil {
		r.logger.WarnContext(ctx, "service: publish event",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}

func (r reporter) appendHistory(ctx context.Context, n domain.Notice) {
	if r.sinks.Bus == nil {
		return
	}
	data, err := json.Marshal(n)
	if err != nil {
		return
	}
	if err := r.sinks.Bus.StreamAppend(ctx, domain.StreamNotices, data); err != nil {
		r.logger.DebugContext(ctx, "service: append notice history", slog.String("error", err.Error()))
	}
}

func (r reporter) recordTx(ctx context.Context, kind domain.TxKind, contract, from common.Address, rcpt domain.TxReceipt) {
	if r.sinks.Txs == nil {
		return
	}
	err := r.sinks.Txs.Record(ctx, domain.TxRecord{
		Hash:        rcpt.Hash,
		Kind:        kind,
		Contract:    contract,
		From:        from,
		BlockNumber: rcpt.BlockNumber,
		GasUsed:     rcpt.GasUsed,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		r.logger.WarnContext(ctx, "service: record tx",
			slog.String("hash", rcpt.Hash.Hex()),
			slog.String("error", err.Error()),
		)
	}
}

func (r reporter) invalidate(ctx context.Context, auction common.Address) {
	if r.sinks.Summaries != nil {
		r.sinks.Summaries.Invalidate(ctx, auction)
	}
}

// ArchivePrefix is the object prefix shared by every per-auction object.
const ArchivePrefix = "auctions/"

const archiveName = "/settlement.json"

// ArchivePath is where the settlement archive of an auction is stored.
func ArchivePath(auction common.Address) string {
	return ArchivePrefix + domain.AddressString(auction) + archiveName
}

// ArchivedAuction is the inverse of ArchivePath. It reports false for any
// other object under ArchivePrefix, such as ledger exports.
func ArchivedAuction(path string) (common.Address, bool) {
	rest, ok := strings.CutPrefix(path, ArchivePrefix)
	if !ok {
		return common.Address{}, false
	}
	addr, ok := strings.CutSuffix(rest, archiveName)
	if !ok || !common.IsHexAddress(addr) {
		return common.Address{}, false
	}
	return common.HexToAddress(addr), true
}

// archive stores view unless an archive of auction already exists, which
// happens when another session or process got there first. It reports
// whether the archive is in place.
func (r reporter) archive(ctx context.Context, auction common.Address, view SnapshotView) bool {
	if r.sinks.Archive == nil {
		return false
	}
	if r.sinks.ArchiveIndex != nil {
		exists, err := r.sinks.ArchiveIndex.Exists(ctx, ArchivePath(auction))
		if err != nil {
			r.logger.WarnContext(ctx, "service: check archive",
				slog.String("auction", domain.AddressString(auction)),
				slog.String("error", err.Error()),
			)
		} else if exists {
			return true
		}
	}
	data, err := json.MarshalIndent(view, "", "  ")
	if err != nil {
		r.logger.WarnContext(ctx, "service: marshal archive", slog.String("error", err.Error()))
		return false
	}
	if err := r.sinks.Archive.Put(ctx, ArchivePath(auction), bytes.NewReader(data), "application/json"); err != nil {
		r.logger.WarnContext(ctx, "service: archive settlement",
			slog.String("auction", domain.AddressString(auction)),
			slog.String("error", err.Error()),
		)
		return false
	}
	r.logger.InfoContext(ctx, "service: settlement archived", slog.String("path", ArchivePath(auction)))
	return true
}
