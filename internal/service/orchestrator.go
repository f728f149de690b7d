package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/fheauction/internal/domain"
)

// OrchestratorConfig tunes one Orchestrator.
type OrchestratorConfig struct {
	// LockTTL bounds how long the distributed mutation lock is held.
	LockTTL time.Duration
}

// Orchestrator produces and refreshes the Snapshot of one auction for one
// caller and mediates every state change the caller initiates. Snapshots are
// copy-on-write: a failed operation leaves the published snapshot untouched.
//
// Mutating operations are serialized per orchestrator and, when a lock
// manager is configured, per auction across processes.
type Orchestrator struct {
	auction common.Address
	caller  common.Address
	keypair domain.Keypair

	chain  Chain
	fhe    Encryptor
	signer AuthorizationSigner
	cfg    OrchestratorConfig
	report reporter
	logger *slog.Logger

	mu       sync.Mutex
	snap     atomic.Pointer[domain.Snapshot]
	archived atomic.Bool
}

// NewOrchestrator creates an Orchestrator for auction as seen by caller.
// keypair is the session's re-encryption keypair.
func NewOrchestrator(
	auction, caller common.Address,
	keypair domain.Keypair,
	chain Chain,
	fhe Encryptor,
	signer AuthorizationSigner,
	sinks Sinks,
	cfg OrchestratorConfig,
	logger *slog.Logger,
) *Orchestrator {
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(
		slog.String("component", "orchestrator"),
		slog.String("auction", domain.AddressString(auction)),
	)
	return &Orchestrator{
		auction: auction,
		caller:  caller,
		keypair: keypair,
		chain:   chain,
		fhe:     fhe,
		signer:  signer,
		cfg:     cfg,
		report:  reporter{sinks: sinks, logger: logger},
		logger:  logger,
	}
}

func (o *Orchestrator) Auction() common.Address { return o.auction }

func (o *Orchestrator) Caller() common.Address { return o.caller }

// Keypair returns the session's re-encryption keypair.
func (o *Orchestrator) Keypair() domain.Keypair { return o.keypair }

// Snapshot returns the current snapshot, or nil before the first load.
// Callers must not modify it.
func (o *Orchestrator) Snapshot() *domain.Snapshot {
	return o.snap.Load()
}

// lockMutation serializes state-changing operations.
func (o *Orchestrator) lockMutation(ctx context.Context) (func(), error) {
	o.mu.Lock()
	if o.report.sinks.Locks == nil {
		return o.mu.Unlock, nil
	}
	unlock, err := o.report.sinks.Locks.Acquire(ctx, "auction:"+domain.AddressString(o.auction), o.cfg.LockTTL)
	if err != nil {
		o.mu.Unlock()
		return nil, fmt.Errorf("orchestrator: acquire auction lock: %w", err)
	}
	return func() {
		unlock()
		o.mu.Unlock()
	}, nil
}

// requireWallet rejects mutations for a caller the wallet cannot act for.
func (o *Orchestrator) requireWallet() error {
	if w := o.chain.Wallet(); w != o.caller {
		return fmt.Errorf("%w: caller %s is not the configured wallet %s",
			domain.ErrInvalidInput, domain.AddressString(o.caller), domain.AddressString(w))
	}
	return nil
}

// publishSnapshot swaps in s, pushes it to subscribers, and archives it the
// first time the auction is seen fully decrypted.
func (o *Orchestrator) publishSnapshot(ctx context.Context, s *domain.Snapshot) {
	o.snap.Store(s)
	view := NewSnapshotView(s)
	o.report.publish(ctx, domain.AuctionChannel(domain.AddressString(o.auction)), domain.EventSnapshot, view)
	if s.Phase == domain.PhaseEndedDecrypted && !o.archived.Load() {
		if o.report.archive(ctx, o.auction, view) {
			o.archived.Store(true)
		}
	}
}

// LoadSnapshot rebuilds the snapshot from chain state. Either a complete
// snapshot is published and returned, or an error is returned and the
// previous snapshot stays in place.
func (o *Orchestrator) LoadSnapshot(ctx context.Context) (*domain.Snapshot, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	s, err := o.load(ctx)
	if err != nil {
		err = fmt.Errorf("orchestrator: load snapshot: %w", err)
		o.report.notice(ctx, "load_snapshot", o.auction, "failed to load auction", err, nil)
		return nil, err
	}
	o.publishSnapshot(ctx, s)
	return s, nil
}

// load runs two fetch groups and merges them. Stage one reads the auction's
// own state; stage two needs the owner, tokens and active flag from stage
// one to read bids, locked funds and balances.
func (o *Orchestrator) load(ctx context.Context) (*domain.Snapshot, error) {
	a := domain.Auction{Address: o.auction}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { a.Owner, err = o.chain.Owner(gctx, o.auction); return })
	g.Go(func() (err error) { a.Asset, err = o.chain.Asset(gctx, o.auction); return })
	g.Go(func() (err error) { a.PaymentToken, err = o.chain.PaymentToken(gctx, o.auction); return })
	g.Go(func() (err error) { a.Active, err = o.chain.IsActive(gctx, o.auction); return })
	g.Go(func() (err error) { a.SettlementPrice, err = o.chain.SettlementPrice(gctx, o.auction); return })
	g.Go(func() (err error) { a.Quantity, err = o.chain.Quantity(gctx, o.auction); return })
	g.Go(func() (err error) { a.StartTime, err = o.chain.StartTime(gctx, o.auction); return })
	g.Go(func() (err error) { a.EndTime, err = o.chain.EndTime(gctx, o.auction); return })
	if err := g.Wait(); err != nil {
		return nil, ensureKind(domain.ErrChainRead, err)
	}
	if a.SettlementPrice == nil {
		a.SettlementPrice = new(big.Int)
	}
	if a.Active && a.SettlementPrice.Sign() != 0 {
		return nil, fmt.Errorf("%w: auction reports active with settlement price %s",
			domain.ErrChainRead, a.SettlementPrice)
	}

	s := &domain.Snapshot{
		Auction: a,
		Caller:  o.caller,
		IsOwner: a.Owner == o.caller,
	}

	// The bid accessors are fetched side by side; whether each one's
	// failure is fatal depends on the phase and is decided in the merge.
	var (
		enc    []domain.EncryptedBid
		dec    []domain.DecryptedBid
		encErr error
		decErr error
	)
	g, gctx = errgroup.WithContext(ctx)
	g.Go(func() error { enc, encErr = o.chain.GetAllBids(gctx, o.auction); return nil })
	g.Go(func() error { dec, decErr = o.chain.GetAllDecryptedBids(gctx, o.auction); return nil })
	if !s.IsOwner {
		g.Go(func() (err error) { s.LockedAmount, err = o.chain.LockedFunds(gctx, o.auction, o.caller); return })
	}
	g.Go(func() (err error) { s.AssetBalance, err = o.chain.BalanceOf(gctx, a.Asset, o.caller); return })
	g.Go(func() (err error) { s.PaymentBalance, err = o.chain.BalanceOf(gctx, a.PaymentToken, o.caller); return })
	if err := g.Wait(); err != nil {
		return nil, ensureKind(domain.ErrChainRead, err)
	}

	if a.Active {
		if encErr != nil {
			return nil, ensureKind(domain.ErrChainRead, encErr)
		}
		if decErr != nil {
			// Best effort while active: the plaintext accessor has nothing
			// to return yet.
			o.logger.DebugContext(ctx, "orchestrator: decrypted bids unavailable while active",
				slog.String("error", decErr.Error()))
			dec = nil
		}
	} else {
		if decErr != nil {
			return nil, ensureKind(domain.ErrChainRead, decErr)
		}
		if len(dec) == 0 && encErr != nil {
			return nil, ensureKind(domain.ErrChainRead, encErr)
		}
	}

	s.Phase = domain.InferPhase(a.Active, len(dec))
	s.EncryptedBids = enc
	s.DecryptedBids = dec
	if s.Phase == domain.PhaseEndedDecrypted {
		s.Bids = make([]domain.Bid, len(dec))
		for i, d := range dec {
			s.Bids[i] = domain.FromDecrypted(d)
		}
	} else {
		s.Bids = make([]domain.Bid, len(enc))
		for i, e := range enc {
			s.Bids[i] = domain.FromEncrypted(e)
		}
	}
	o.locateMyBid(s)
	s.LoadedAt = time.Now().UTC()
	return s, nil
}

// locateMyBid sets the caller's own bid from the canonical bid list. A
// plaintext obtained earlier through re-encryption is kept as long as the
// ciphertext handles have not changed.
func (o *Orchestrator) locateMyBid(s *domain.Snapshot) {
	s.MyBid = nil
	for i := range s.Bids {
		if s.Bids[i].Bidder == o.caller {
			b := s.Bids[i]
			s.MyBid = &b
			break
		}
	}
	s.MyDecryptedBid = nil
	if d, ok := domain.FindDecryptedBid(s.DecryptedBids, o.caller); ok {
		s.MyDecryptedBid = &d
	}

	prev := o.snap.Load()
	if prev == nil || prev.MyBid == nil || !prev.MyBid.Decrypted() || s.MyBid == nil || s.MyBid.Decrypted() {
		return
	}
	if prev.MyBid.EncryptedQuantity == s.MyBid.EncryptedQuantity && prev.MyBid.EncryptedPrice == s.MyBid.EncryptedPrice {
		s.MyBid.Quantity = new(big.Int).Set(prev.MyBid.Quantity)
		s.MyBid.Price = new(big.Int).Set(prev.MyBid.Price)
		for i := range s.Bids {
			if s.Bids[i].Bidder == o.caller {
				s.Bids[i].Quantity = s.MyBid.Quantity
				s.Bids[i].Price = s.MyBid.Price
			}
		}
	}
}

// ListBids reads the encrypted bid set directly from the contract without
// touching the snapshot.
func (o *Orchestrator) ListBids(ctx context.Context) ([]domain.EncryptedBid, error) {
	bids, err := o.chain.GetAllBids(ctx, o.auction)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: list bids: %w", ensureKind(domain.ErrChainRead, err))
	}
	return bids, nil
}

// ListDecryptedBids reads the plaintext bid set directly from the contract.
// An empty result is legitimate, including for an ended auction whose
// decryption has not landed yet.
func (o *Orchestrator) ListDecryptedBids(ctx context.Context) ([]domain.DecryptedBid, error) {
	bids, err := o.chain.GetAllDecryptedBids(ctx, o.auction)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: list decrypted bids: %w", ensureKind(domain.ErrChainRead, err))
	}
	return bids, nil
}
