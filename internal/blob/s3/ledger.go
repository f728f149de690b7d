package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/fheauction/internal/domain"
)

// LedgerArchiver exports the transaction ledger of one auction as JSONL
// next to its settlement archive.
type LedgerArchiver struct {
	writer *Writer
	txs    domain.TxStore
	audit  domain.AuditStore
}

// NewLedgerArchiver creates a LedgerArchiver. audit may be nil.
func NewLedgerArchiver(w *Writer, txs domain.TxStore, audit domain.AuditStore) *LedgerArchiver {
	return &LedgerArchiver{writer: w, txs: txs, audit: audit}
}

// LedgerPath is where the ledger export of auction is stored.
func LedgerPath(auction common.Address) string {
	return "auctions/" + domain.AddressString(auction) + "/transactions.jsonl"
}

// ledgerLine is one exported row.
type ledgerLine struct {
	Hash        string    `json:"hash"`
	Kind        string    `json:"kind"`
	Contract    string    `json:"contract"`
	From        string    `json:"from"`
	BlockNumber uint64    `json:"block_number"`
	GasUsed     uint64    `json:"gas_used"`
	CreatedAt   time.Time `json:"created_at"`
}

// Archive writes every recorded transaction of auction and returns the path
// and row count. An auction with no transactions writes nothing.
func (a *LedgerArchiver) Archive(ctx context.Context, auction common.Address) (string, int, error) {
	recs, err := a.txs.ListByContract(ctx, auction, domain.ListOpts{})
	if err != nil {
		return "", 0, fmt.Errorf("s3blob: ledger query: %w", err)
	}
	if len(recs) == 0 {
		return "", 0, nil
	}
	buf, err := marshalLedger(recs)
	if err != nil {
		return "", 0, fmt.Errorf("s3blob: ledger encode: %w", err)
	}

	path := LedgerPath(auction)
	if int64(len(buf)) > minPartSize {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), "application/x-ndjson", minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return "", 0, err
	}

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.ledger", map[string]any{
			"auction": domain.AddressString(auction),
			"path":    path,
			"count":   len(recs),
		}); err != nil {
			return path, len(recs), fmt.Errorf("s3blob: ledger audit: %w", err)
		}
	}
	return path, len(recs), nil
}

func marshalLedger(recs []domain.TxRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, r := range recs {
		line := ledgerLine{
			Hash:        r.Hash.Hex(),
			Kind:        string(r.Kind),
			Contract:    domain.AddressString(r.Contract),
			From:        domain.AddressString(r.From),
			BlockNumber: r.BlockNumber,
			GasUsed:     r.GasUsed,
			CreatedAt:   r.CreatedAt,
		}
		if err := enc.Encode(line); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
