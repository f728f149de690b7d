package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/fheauction/internal/domain"
	"github.com/alanyoungcy/fheauction/internal/service"
)

// AuctionService is what the auction handler needs from the listing layer.
type AuctionService interface {
	ListAuctions(ctx context.Context, caller common.Address) ([]domain.SummaryResult, error)
	CreateAuction(ctx context.Context, p domain.CreateAuctionParams) (domain.TxReceipt, error)
}

// LedgerExporter writes the transaction ledger of one auction to object
// storage and returns where it went and how many rows it holds.
type LedgerExporter interface {
	Archive(ctx context.Context, auction common.Address) (string, int, error)
}

// AuctionHandler serves the auction listing, creation and archive endpoints.
// The archive, ledger and transaction dependencies are optional; their
// endpoints answer 503 when the backend is not configured.
type AuctionHandler struct {
	auctions AuctionService
	wallet   common.Address
	archive  domain.BlobReader
	ledger   LedgerExporter
	txs      domain.TxStore
	logger   *slog.Logger
}

// AuctionDeps are the optional storage backends of the auction handler.
type AuctionDeps struct {
	Archive domain.BlobReader
	Ledger  LedgerExporter
	Txs     domain.TxStore
}

// NewAuctionHandler creates an AuctionHandler. wallet is the default caller
// for listings.
func NewAuctionHandler(auctions AuctionService, wallet common.Address, deps AuctionDeps, logger *slog.Logger) *AuctionHandler {
	return &AuctionHandler{
		auctions: auctions,
		wallet:   wallet,
		archive:  deps.Archive,
		ledger:   deps.Ledger,
		txs:      deps.Txs,
		logger:   logHandler(logger, "auction"),
	}
}

type listAuctionsResponse struct {
	Auctions []service.SummaryView `json:"auctions"`
}

// ListAuctions returns every factory auction with its summary or the error
// that prevented fetching it.
// GET /api/auctions?caller=0x...
func (h *AuctionHandler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	caller := h.wallet
	if v := r.URL.Query().Get("caller"); v != "" {
		a, err := parseAddress("caller", v)
		if err != nil {
			writeServiceError(w, r, h.logger, "invalid caller", err)
			return
		}
		caller = a
	}

	results, err := h.auctions.ListAuctions(r.Context(), caller)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to list auctions", err)
		return
	}
	writeJSON(w, http.StatusOK, listAuctionsResponse{Auctions: service.NewSummaryViews(results)})
}

// createAuctionRequest carries human decimal amounts. An empty payment token
// selects the native currency.
type createAuctionRequest struct {
	Asset           string `json:"asset"`
	PaymentToken    string `json:"payment_token"`
	Quantity        string `json:"quantity"`
	DurationSeconds int64  `json:"duration_seconds"`
	MaxParticipants int64  `json:"max_participants"`
}

func (req createAuctionRequest) params() (domain.CreateAuctionParams, error) {
	var p domain.CreateAuctionParams
	var err error
	if p.Asset, err = parseAddress("asset", req.Asset); err != nil {
		return p, err
	}
	if strings.TrimSpace(req.PaymentToken) != "" {
		if p.PaymentToken, err = parseAddress("payment_token", req.PaymentToken); err != nil {
			return p, err
		}
	}
	if p.Quantity, err = parseAmount("quantity", req.Quantity); err != nil {
		return p, err
	}
	p.Duration = time.Duration(req.DurationSeconds) * time.Second
	p.MaxParticipant = big.NewInt(req.MaxParticipants)
	return p, service.ValidateCreateParams(p)
}

type txResponse struct {
	TxHash      string `json:"tx_hash"`
	BlockNumber uint64 `json:"block_number"`
	GasUsed     uint64 `json:"gas_used"`
}

func newTxResponse(r domain.TxReceipt) txResponse {
	return txResponse{TxHash: r.Hash.Hex(), BlockNumber: r.BlockNumber, GasUsed: r.GasUsed}
}

// CreateAuction deploys a new auction through the factory.
// POST /api/auctions
func (h *AuctionHandler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	var req createAuctionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "invalid request", err)
		return
	}
	p, err := req.params()
	if err != nil {
		writeServiceError(w, r, h.logger, "invalid auction parameters", err)
		return
	}

	rcpt, err := h.auctions.CreateAuction(r.Context(), p)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to create auction", err)
		return
	}
	writeJSON(w, http.StatusCreated, newTxResponse(rcpt))
}

// GetArchive streams the settlement archive of a decrypted auction.
// GET /api/auctions/{id}/archive
func (h *AuctionHandler) GetArchive(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "archive storage not configured")
		return
	}
	auction, err := parseAddress("auction", pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "invalid auction", err)
		return
	}

	rc, err := h.archive.Get(r.Context(), service.ArchivePath(auction))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to read archive", err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WarnContext(r.Context(), "handler: archive stream interrupted",
			slog.String("auction", domain.AddressString(auction)),
			slog.String("error", err.Error()),
		)
	}
}

type archiveEntry struct {
	Auction      string    `json:"auction"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// ListArchives returns the auctions whose settlement archive is stored,
// most recently written first.
// GET /api/archives
func (h *AuctionHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	if h.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "archive storage not configured")
		return
	}
	infos, err := h.archive.List(r.Context(), service.ArchivePrefix)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to list archives", fmt.Errorf("list archives: %w", err))
		return
	}

	out := make([]archiveEntry, 0, len(infos))
	for _, info := range infos {
		auction, ok := service.ArchivedAuction(info.Path)
		if !ok {
			continue
		}
		out = append(out, archiveEntry{
			Auction:      domain.AddressString(auction),
			Size:         info.Size,
			LastModified: info.LastModified,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastModified.After(out[j].LastModified)
	})
	writeJSON(w, http.StatusOK, map[string]any{"archives": out})
}

type ledgerResponse struct {
	Path         string `json:"path"`
	Transactions int    `json:"transactions"`
}

// ExportLedger writes the auction's transaction ledger to object storage.
// POST /api/auctions/{id}/ledger
func (h *AuctionHandler) ExportLedger(w http.ResponseWriter, r *http.Request) {
	if h.ledger == nil {
		writeError(w, http.StatusServiceUnavailable, "ledger export not configured")
		return
	}
	auction, err := parseAddress("auction", pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "invalid auction", err)
		return
	}
	path, n, err := h.ledger.Archive(r.Context(), auction)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to export ledger", err)
		return
	}
	writeJSON(w, http.StatusOK, ledgerResponse{Path: path, Transactions: n})
}

type txRecordView struct {
	Hash        string    `json:"hash"`
	Kind        string    `json:"kind"`
	From        string    `json:"from"`
	BlockNumber uint64    `json:"block_number"`
	GasUsed     uint64    `json:"gas_used"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListTransactions returns the transactions this wallet sent to an auction,
// newest first.
// GET /api/auctions/{id}/transactions?limit=50&offset=0
func (h *AuctionHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	if h.txs == nil {
		writeError(w, http.StatusServiceUnavailable, "transaction ledger not configured")
		return
	}
	auction, err := parseAddress("auction", pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "invalid auction", err)
		return
	}
	recs, err := h.txs.ListByContract(r.Context(), auction, parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to list transactions", fmt.Errorf("list transactions: %w", err))
		return
	}

	out := make([]txRecordView, len(recs))
	for i, rec := range recs {
		out[i] = txRecordView{
			Hash:        rec.Hash.Hex(),
			Kind:        string(rec.Kind),
			From:        domain.AddressString(rec.From),
			BlockNumber: rec.BlockNumber,
			GasUsed:     rec.GasUsed,
			CreatedAt:   rec.CreatedAt,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": out})
}
