package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/fheauction/internal/domain"
)

// ListingConfig tunes the ListingService.
type ListingConfig struct {
	// Concurrency caps how many auction summaries are fetched at once.
	Concurrency int
}

// ListingService creates auctions through the factory and enumerates them
// with a per-auction summary.
type ListingService struct {
	chain  Chain
	cache  domain.SummaryCache
	cfg    ListingConfig
	report reporter
	logger *slog.Logger
}

// NewListingService creates a ListingService. cache may be nil.
func NewListingService(chain Chain, cache domain.SummaryCache, sinks Sinks, cfg ListingConfig, logger *slog.Logger) *ListingService {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 8
	}
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "listing"))
	return &ListingService{
		chain:  chain,
		cache:  cache,
		cfg:    cfg,
		report: reporter{sinks: sinks, logger: logger},
		logger: logger,
	}
}

// ValidateCreateParams checks creation inputs before anything touches the
// chain.
func ValidateCreateParams(p domain.CreateAuctionParams) error {
	switch {
	case p.Asset == (common.Address{}):
		return fmt.Errorf("%w: asset address is required", domain.ErrInvalidInput)
	case !positive(p.Quantity):
		return fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidInput)
	case p.Duration < time.Second:
		return fmt.Errorf("%w: duration must be at least one second", domain.ErrInvalidInput)
	case p.MaxParticipant == nil || p.MaxParticipant.Cmp(big.NewInt(2)) < 0:
		return fmt.Errorf("%w: max participants must be at least 2", domain.ErrInvalidInput)
	}
	return nil
}

// CreateAuction deploys a new auction. The wallet's asset balance is
// checked before any transaction: a shortfall is ErrInsufficientBalance and
// nothing is sent. The factory is then approved for the quantity if needed
// and the creation call is sent.
func (s *ListingService) CreateAuction(ctx context.Context, p domain.CreateAuctionParams) (domain.TxReceipt, error) {
	const op = "create_auction"
	if err := ValidateCreateParams(p); err != nil {
		return domain.TxReceipt{}, err
	}
	wallet := s.chain.Wallet()
	factory := s.chain.Factory()

	fail := func(err error) (domain.TxReceipt, error) {
		err = fmt.Errorf("listing: create auction: %w", err)
		s.report.notice(ctx, op, common.Address{}, "failed to create auction", err, nil)
		return domain.TxReceipt{}, err
	}

	balance, err := s.chain.BalanceOf(ctx, p.Asset, wallet)
	if err != nil {
		return fail(ensureKind(domain.ErrChainRead, err))
	}
	if balance.Cmp(p.Quantity) < 0 {
		return fail(fmt.Errorf("%w: asset balance %s is below quantity %s",
			domain.ErrInsufficientBalance, domain.FormatUnits(balance), domain.FormatUnits(p.Quantity)))
	}

	approval, approved, err := approveIfNeeded(ctx, s.chain, p.Asset, wallet, factory, p.Quantity)
	if err != nil {
		return fail(err)
	}
	if approved {
		s.report.recordTx(ctx, domain.TxKindApprove, p.Asset, wallet, approval)
	}

	rcpt, err := s.chain.CreateAuction(ctx, p)
	if err != nil {
		return fail(ensureKind(domain.ErrTransactionReverted, err))
	}
	s.report.recordTx(ctx, domain.TxKindCreateAuction, factory, wallet, rcpt)
	s.report.notice(ctx, op, common.Address{}, "auction created", nil, &rcpt)
	return rcpt, nil
}

// ListAuctions returns one result per factory auction, in factory order.
// Summaries are fetched concurrently and independently: an auction whose
// fetch fails carries its error in the result and does not affect the
// others. Only a failure to read the factory list fails the call.
func (s *ListingService) ListAuctions(ctx context.Context, caller common.Address) ([]domain.SummaryResult, error) {
	addrs, err := s.chain.GetAllAuctions(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing: list auctions: %w", ensureKind(domain.ErrChainRead, err))
	}

	results := make([]domain.SummaryResult, len(addrs))
	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i, addr := range addrs {
		g.Go(func() error {
			sum, err := s.summary(ctx, addr, caller)
			results[i] = domain.SummaryResult{Address: addr, Summary: sum, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	if failed > 0 {
		s.logger.WarnContext(ctx, "listing: some summaries failed",
			slog.Int("total", len(results)),
			slog.Int("failed", failed),
		)
	}
	return results, nil
}

// Summary fetches the listing view of a single auction.
func (s *ListingService) Summary(ctx context.Context, auction, caller common.Address) (*domain.Summary, error) {
	return s.summary(ctx, auction, caller)
}

func (s *ListingService) summary(ctx context.Context, auction, caller common.Address) (*domain.Summary, error) {
	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, auction); err == nil {
			cached.IsOwner = cached.Owner == caller
			return &cached, nil
		}
	}

	sum := domain.Summary{Address: auction}
	var active bool
	var bids []domain.EncryptedBid

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) { sum.Owner, err = s.chain.Owner(gctx, auction); return })
	g.Go(func() (err error) { sum.Asset, err = s.chain.Asset(gctx, auction); return })
	g.Go(func() (err error) { sum.PaymentToken, err = s.chain.PaymentToken(gctx, auction); return })
	g.Go(func() (err error) { sum.Quantity, err = s.chain.Quantity(gctx, auction); return })
	g.Go(func() (err error) { sum.StartTime, err = s.chain.StartTime(gctx, auction); return })
	g.Go(func() (err error) { sum.EndTime, err = s.chain.EndTime(gctx, auction); return })
	g.Go(func() (err error) { sum.MaxParticipant, err = s.chain.MaxParticipant(gctx, auction); return })
	g.Go(func() (err error) { active, err = s.chain.IsActive(gctx, auction); return })
	g.Go(func() (err error) { bids, err = s.chain.GetAllBids(gctx, auction); return })
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("listing: summary %s: %w", domain.AddressString(auction), ensureKind(domain.ErrChainRead, err))
	}

	sum.Participants = len(bids)
	sum.Status = domain.SummaryStatusEnded
	if active {
		sum.Status = domain.SummaryStatusActive
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, sum); err != nil {
			s.logger.DebugContext(ctx, "listing: cache summary", slog.String("error", err.Error()))
		}
	}
	sum.IsOwner = sum.Owner == caller
	return &sum, nil
}

// Invalidate drops the cached summary of auction, e.g. after a bid or
// settlement changed it.
func (s *ListingService) Invalidate(ctx context.Context, auction common.Address) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, auction); err != nil {
		s.logger.DebugContext(ctx, "listing: invalidate summary", slog.String("error", err.Error()))
	}
}
