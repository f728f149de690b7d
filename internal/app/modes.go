package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/fheauction/internal/domain"
	"github.com/alanyoungcy/fheauction/internal/server"
	"github.com/alanyoungcy/fheauction/internal/server/handler"
	"github.com/alanyoungcy/fheauction/internal/server/ws"
	"github.com/alanyoungcy/fheauction/internal/service"
)

const shutdownTimeout = 10 * time.Second

// ServerMode serves the HTTP and WebSocket API until ctx is cancelled. The
// encryption client initializes in the background; the API is up before it
// is ready and reports readiness on /api/health and the status channel.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "app: starting server mode")
	if deps.Signer == nil {
		return errors.New("app: server mode needs a wallet")
	}

	g, ctx := errgroup.WithContext(ctx)

	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{FHEReady: deps.FHE.IsReady})
	sinks := a.sinks(deps, hub)

	listing := service.NewListingService(deps.Chain, deps.SummaryCache, sinks, service.ListingConfig{
		Concurrency: a.cfg.Listing.Concurrency,
	}, a.logger)
	sinks.Summaries = listing

	orchCfg := service.OrchestratorConfig{LockTTL: a.cfg.Session.LockTTL.Duration}
	sessions, err := service.NewSessions(a.cfg.Session.MaxSessions, deps.FHE,
		func(auction, caller common.Address, kp domain.Keypair) *service.Orchestrator {
			return service.NewOrchestrator(auction, caller, kp, deps.Chain, deps.FHE, deps.Signer, sinks, orchCfg, a.logger)
		})
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}

	auctionDeps := handler.AuctionDeps{Archive: deps.BlobReader, Txs: deps.TxStore}
	if deps.Ledger != nil {
		auctionDeps.Ledger = deps.Ledger
	}
	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimiter: deps.RateLimiter,
		RateLimit:   a.cfg.Redis.RateLimit,
		RateWindow:  a.cfg.Redis.RateWindow.Duration,
	}, server.Handlers{
		Health:   handler.NewHealthHandler(deps.FHE, sessions, a.logger),
		Auctions: handler.NewAuctionHandler(listing, deps.Signer.Address(), auctionDeps, a.logger),
		Sessions: handler.NewSessionHandler(handler.ServiceSessions(sessions), deps.Signer.Address(), a.logger),
		Notices:  handler.NewNoticeHandler(deps.SignalBus, a.logger),
	}, hub, a.logger)

	g.Go(func() error {
		return hub.Run(ctx)
	})
	g.Go(func() error {
		a.initFHE(ctx, deps, sinks.Bus)
		return nil
	})
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// initFHE fetches the network key once and announces readiness. A failure
// is logged; the first operation that needs the key tries again.
func (a *App) initFHE(ctx context.Context, deps *Dependencies, bus domain.SignalBus) {
	start := time.Now()
	if err := deps.FHE.EnsureInitialized(ctx); err != nil {
		if ctx.Err() == nil {
			a.logger.WarnContext(ctx, "app: fhe initialization failed",
				slog.String("error", err.Error()),
			)
		}
		return
	}
	a.logger.InfoContext(ctx, "app: fhe ready", slog.Duration("took", time.Since(start)))

	data, err := json.Marshal(domain.Envelope{
		Type:    domain.EventFHEStatus,
		Payload: map[string]bool{"ready": true},
	})
	if err != nil {
		return
	}
	if err := bus.Publish(ctx, domain.ChannelStatus, data); err != nil {
		a.logger.WarnContext(ctx, "app: publish fhe status", slog.String("error", err.Error()))
	}
}

// sinks collects the side channels of the orchestrators. Without Redis,
// events go straight to the local WebSocket hub.
func (a *App) sinks(deps *Dependencies, hub *ws.Hub) service.Sinks {
	s := service.Sinks{
		Bus:     deps.SignalBus,
		Audit:   deps.AuditStore,
		Txs:     deps.TxStore,
		Locks:   deps.LockManager,
		Archive: deps.BlobWriter,
	}
	if s.Bus == nil {
		s.Bus = hubBus{hub: hub}
	}
	if deps.BlobReader != nil {
		s.ArchiveIndex = deps.BlobReader
	}
	if deps.Notifier != nil {
		s.Notifier = deps.Notifier
	}
	return s
}

// ListMode prints every factory auction as JSON and exits.
func (a *App) ListMode(ctx context.Context, deps *Dependencies, w io.Writer) error {
	var sinks service.Sinks
	if deps.Notifier != nil {
		sinks.Notifier = deps.Notifier
	}
	listing := service.NewListingService(deps.Chain, deps.SummaryCache, sinks, service.ListingConfig{
		Concurrency: a.cfg.Listing.Concurrency,
	}, a.logger)
	return writeListing(ctx, w, listing, deps.Chain.Wallet())
}

type auctionLister interface {
	ListAuctions(ctx context.Context, caller common.Address) ([]domain.SummaryResult, error)
}

func writeListing(ctx context.Context, w io.Writer, l auctionLister, caller common.Address) error {
	results, err := l.ListAuctions(ctx, caller)
	if err != nil {
		return fmt.Errorf("app: list auctions: %w", err)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(service.NewSummaryViews(results)); err != nil {
		return fmt.Errorf("app: write listing: %w", err)
	}
	return nil
}

var errNoBus = errors.New("app: no signal bus configured (redis disabled)")

// hubBus is the signal bus used when Redis is disabled: publishes reach the
// local WebSocket clients and there is no stream history.
type hubBus struct {
	hub *ws.Hub
}

func (b hubBus) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.hub.Publish(ctx, channel, payload)
}

func (b hubBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, errNoBus
}

func (b hubBus) StreamAppend(context.Context, string, []byte) error {
	return errNoBus
}

func (b hubBus) StreamRead(context.Context, string, string, int) ([]domain.StreamMessage, error) {
	return nil, errNoBus
}
