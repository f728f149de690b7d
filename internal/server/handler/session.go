package handler

import (
	"context"
	"log/slog"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alanyoungcy/fheauction/internal/domain"
	"github.com/alanyoungcy/fheauction/internal/service"
)

// AuctionSession is the per-session orchestrator surface the handler drives.
// *service.Orchestrator implements it.
type AuctionSession interface {
	Auction() common.Address
	Caller() common.Address
	Keypair() domain.Keypair
	Snapshot() *domain.Snapshot
	LoadSnapshot(ctx context.Context) (*domain.Snapshot, error)
	ListBids(ctx context.Context) ([]domain.EncryptedBid, error)
	ListDecryptedBids(ctx context.Context) ([]domain.DecryptedBid, error)
	LockFunds(ctx context.Context, amount *big.Int, paymentToken common.Address) (*domain.Snapshot, error)
	PlaceBid(ctx context.Context, quantity, price *big.Int) (*domain.Snapshot, error)
	SettleAuction(ctx context.Context) (*domain.Snapshot, error)
	RequestBidDecryption(ctx context.Context, bid domain.Bid, kp domain.Keypair) (*domain.Snapshot, error)
}

// SessionStore opens and resolves viewing sessions.
type SessionStore interface {
	Open(auction, caller common.Address) (string, AuctionSession, error)
	Switch(id string, auction common.Address) (AuctionSession, error)
	Get(id string) (AuctionSession, error)
	Close(id string)
}

// ServiceSessions adapts *service.Sessions to SessionStore.
func ServiceSessions(s *service.Sessions) SessionStore {
	return serviceSessions{s}
}

type serviceSessions struct {
	s *service.Sessions
}

func (a serviceSessions) Open(auction, caller common.Address) (string, AuctionSession, error) {
	sess, err := a.s.Open(auction, caller)
	if err != nil {
		return "", nil, err
	}
	return sess.ID, sess.Orchestrator, nil
}

func (a serviceSessions) Switch(id string, auction common.Address) (AuctionSession, error) {
	sess, err := a.s.Switch(id, auction)
	if err != nil {
		return nil, err
	}
	return sess.Orchestrator, nil
}

func (a serviceSessions) Get(id string) (AuctionSession, error) {
	sess, err := a.s.Get(id)
	if err != nil {
		return nil, err
	}
	return sess.Orchestrator, nil
}

func (a serviceSessions) Close(id string) { a.s.Close(id) }

// SessionHandler serves the per-session snapshot and mutation endpoints.
type SessionHandler struct {
	sessions SessionStore
	wallet   common.Address
	logger   *slog.Logger
}

// NewSessionHandler creates a SessionHandler. wallet is the caller of a
// session opened without one.
func NewSessionHandler(sessions SessionStore, wallet common.Address, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		wallet:   wallet,
		logger:   logHandler(logger, "session"),
	}
}

type sessionResponse struct {
	SessionID string                `json:"session_id"`
	Auction   string                `json:"auction"`
	Caller    string                `json:"caller"`
	PublicKey string                `json:"public_key"`
	Snapshot  *service.SnapshotView `json:"snapshot,omitempty"`
	Error     string                `json:"error,omitempty"`
}

func newSessionResponse(id string, s AuctionSession, snap *domain.Snapshot) sessionResponse {
	resp := sessionResponse{
		SessionID: id,
		Auction:   domain.AddressString(s.Auction()),
		Caller:    domain.AddressString(s.Caller()),
		PublicKey: "0x" + common.Bytes2Hex(s.Keypair().PublicKey),
	}
	if snap != nil {
		v := service.NewSnapshotView(snap)
		resp.Snapshot = &v
	}
	return resp
}

type openSessionRequest struct {
	Auction string `json:"auction"`
	Caller  string `json:"caller,omitempty"`
}

// Open starts a session and loads its first snapshot. The session survives
// a failed load; the response then carries the error and no snapshot.
// POST /api/sessions
func (h *SessionHandler) Open(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "invalid request", err)
		return
	}
	auction, err := parseAddress("auction", req.Auction)
	if err != nil {
		writeServiceError(w, r, h.logger, "invalid auction", err)
		return
	}
	caller := h.wallet
	if strings.TrimSpace(req.Caller) != "" {
		if caller, err = parseAddress("caller", req.Caller); err != nil {
			writeServiceError(w, r, h.logger, "invalid caller", err)
			return
		}
	}

	id, sess, err := h.sessions.Open(auction, caller)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to open session", err)
		return
	}
	writeJSON(w, http.StatusCreated, h.loadInto(r, id, sess))
}

type switchSessionRequest struct {
	Auction string `json:"auction"`
}

// Switch points a session at another auction with a fresh keypair.
// PUT /api/sessions/{id}
func (h *SessionHandler) Switch(w http.ResponseWriter, r *http.Request) {
	var req switchSessionRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "invalid request", err)
		return
	}
	auction, err := parseAddress("auction", req.Auction)
	if err != nil {
		writeServiceError(w, r, h.logger, "invalid auction", err)
		return
	}
	id := pathParam(r, "id")
	sess, err := h.sessions.Switch(id, auction)
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to switch session", err)
		return
	}
	writeJSON(w, http.StatusOK, h.loadInto(r, id, sess))
}

func (h *SessionHandler) loadInto(r *http.Request, id string, sess AuctionSession) sessionResponse {
	snap := sess.Snapshot()
	var loadErr error
	if snap == nil {
		snap, loadErr = sess.LoadSnapshot(r.Context())
	}
	resp := newSessionResponse(id, sess, snap)
	if loadErr != nil {
		resp.Error = loadErr.Error()
	}
	return resp
}

// Close ends a session and drops its keypair.
// DELETE /api/sessions/{id}
func (h *SessionHandler) Close(w http.ResponseWriter, r *http.Request) {
	h.sessions.Close(pathParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// session resolves the {id} path parameter, answering 404 itself.
func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (AuctionSession, bool) {
	sess, err := h.sessions.Get(pathParam(r, "id"))
	if err != nil {
		writeServiceError(w, r, h.logger, "unknown session", err)
		return nil, false
	}
	return sess, true
}

func (h *SessionHandler) writeSnapshot(w http.ResponseWriter, r *http.Request, snap *domain.Snapshot, msg string, err error) {
	if err != nil {
		writeServiceError(w, r, h.logger, msg, err)
		return
	}
	writeJSON(w, http.StatusOK, service.NewSnapshotView(snap))
}

// GetSnapshot returns the current snapshot, loading it on first use.
// GET /api/sessions/{id}/snapshot
func (h *SessionHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	if snap := sess.Snapshot(); snap != nil {
		writeJSON(w, http.StatusOK, service.NewSnapshotView(snap))
		return
	}
	snap, err := sess.LoadSnapshot(r.Context())
	h.writeSnapshot(w, r, snap, "failed to load snapshot", err)
}

// Reload rebuilds the snapshot from chain state.
// POST /api/sessions/{id}/reload
func (h *SessionHandler) Reload(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	snap, err := sess.LoadSnapshot(r.Context())
	h.writeSnapshot(w, r, snap, "failed to load snapshot", err)
}

type lockFundsRequest struct {
	Amount string `json:"amount"`
}

// LockFunds locks collateral in the auction's payment token.
// POST /api/sessions/{id}/lock
func (h *SessionHandler) LockFunds(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req lockFundsRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "invalid request", err)
		return
	}
	amount, err := parseAmount("amount", req.Amount)
	if err != nil {
		writeServiceError(w, r, h.logger, "invalid amount", err)
		return
	}
	cur := sess.Snapshot()
	if cur == nil {
		writeServiceError(w, r, h.logger, "no snapshot", domain.ErrNoSnapshot)
		return
	}

	snap, err := sess.LockFunds(r.Context(), amount, cur.Auction.PaymentToken)
	h.writeSnapshot(w, r, snap, "failed to lock funds", err)
}

type placeBidRequest struct {
	Quantity string `json:"quantity"`
	Price    string `json:"price"`
}

// PlaceBid encrypts and submits a bid.
// POST /api/sessions/{id}/bids
func (h *SessionHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	var req placeBidRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeServiceError(w, r, h.logger, "invalid request", err)
		return
	}
	quantity, err := parseAmount("quantity", req.Quantity)
	if err != nil {
		writeServiceError(w, r, h.logger, "invalid quantity", err)
		return
	}
	price, err := parseAmount("price", req.Price)
	if err != nil {
		writeServiceError(w, r, h.logger, "invalid price", err)
		return
	}

	snap, err := sess.PlaceBid(r.Context(), quantity, price)
	h.writeSnapshot(w, r, snap, "failed to place bid", err)
}

// DecryptMyBid re-encrypts the caller's own bid under the session keypair.
// POST /api/sessions/{id}/decrypt
func (h *SessionHandler) DecryptMyBid(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	cur := sess.Snapshot()
	if cur == nil {
		writeServiceError(w, r, h.logger, "no snapshot", domain.ErrNoSnapshot)
		return
	}
	if cur.MyBid == nil {
		writeServiceError(w, r, h.logger, "no bid", domain.ErrNoBid)
		return
	}

	snap, err := sess.RequestBidDecryption(r.Context(), *cur.MyBid, sess.Keypair())
	h.writeSnapshot(w, r, snap, "failed to decrypt bid", err)
}

// Settle triggers settlement of an ended auction.
// POST /api/sessions/{id}/settle
func (h *SessionHandler) Settle(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	snap, err := sess.SettleAuction(r.Context())
	h.writeSnapshot(w, r, snap, "failed to settle auction", err)
}

type bidsResponse struct {
	Bids      []service.BidView `json:"bids"`
	FetchedAt time.Time         `json:"fetched_at"`
}

// ListBids returns the encrypted bids straight from the chain.
// GET /api/sessions/{id}/bids
func (h *SessionHandler) ListBids(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	bids, err := sess.ListBids(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to list bids", err)
		return
	}
	writeJSON(w, http.StatusOK, bidsResponse{
		Bids:      service.NewEncryptedBidViews(bids),
		FetchedAt: time.Now().UTC(),
	})
}

// ListDecryptedBids returns the globally decrypted bids.
// GET /api/sessions/{id}/decrypted-bids
func (h *SessionHandler) ListDecryptedBids(w http.ResponseWriter, r *http.Request) {
	sess, ok := h.session(w, r)
	if !ok {
		return
	}
	bids, err := sess.ListDecryptedBids(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "failed to list decrypted bids", err)
		return
	}
	writeJSON(w, http.StatusOK, bidsResponse{
		Bids:      service.NewDecryptedBidViews(bids),
		FetchedAt: time.Now().UTC(),
	})
}
