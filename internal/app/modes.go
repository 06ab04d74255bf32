package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/dutchescrow/internal/server"
	"github.com/alanyoungcy/dutchescrow/internal/server/handler"
	"github.com/alanyoungcy/dutchescrow/internal/server/ws"
	"github.com/alanyoungcy/dutchescrow/internal/service"
)

// ServeMode runs the auction node: the HTTP API with its WebSocket feed and,
// when enabled, the periodic settlement archiver. Local and server mode only
// differ in the backends Wire selects.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting node",
		slog.String("mode", a.cfg.Mode),
		slog.String("program_id", deps.Controller.ProgramID().String()),
		slog.String("node", deps.Signer.Identity().String()),
	)

	g, ctx := errgroup.WithContext(ctx)

	auctions := a.newAuctionService(deps)

	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		archiveSvc := service.NewArchiveService(
			deps.Archiver,
			a.cfg.Archive.Retention.Duration,
			a.cfg.Archive.Interval.Duration,
			a.logger,
		)
		g.Go(func() error {
			return archiveSvc.Run(ctx)
		})
	}

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, auctions)
	} else {
		a.logger.WarnContext(ctx, "server.enabled is false, node will idle until stopped")
		g.Go(func() error {
			<-ctx.Done()
			return ctx.Err()
		})
	}

	return g.Wait()
}

// ArchiveMode performs a single archive pass and exits.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	if deps.Archiver == nil {
		return fmt.Errorf("archive mode: s3 is not enabled")
	}
	svc := service.NewArchiveService(
		deps.Archiver,
		a.cfg.Archive.Retention.Duration,
		a.cfg.Archive.Interval.Duration,
		a.logger,
	)
	n, err := svc.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("archive mode: %w", err)
	}
	a.logger.InfoContext(ctx, "archive pass complete", slog.Int64("settlements", n))
	return nil
}

func (a *App) newAuctionService(deps *Dependencies) *service.AuctionService {
	svc := service.NewAuctionService(
		deps.Controller,
		deps.Ledger,
		deps.Settlements,
		deps.AuditStore,
		deps.Signer,
		deps.Clock,
		service.AuctionConfig{
			MaxSkew:   a.cfg.Program.MaxSkew.Duration,
			ReplayTTL: a.cfg.Program.ReplayTTL.Duration,
			LockTTL:   a.cfg.Program.LockTTL.Duration,
			LockWait:  a.cfg.Program.LockWait.Duration,
		},
		a.logger,
	).
		WithLocks(deps.LockManager).
		WithReplayGuard(deps.ReplayGuard).
		WithBus(deps.SignalBus).
		WithNotifier(deps.Notifier)
	if deps.AuctionCache != nil {
		svc = svc.WithCache(deps.AuctionCache)
	}
	return svc
}

// startHTTPServer registers the API server and its WebSocket hub on g. The
// server is shut down when ctx is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, auctions *service.AuctionService) {
	hub := ws.NewHub(deps.SignalBus, ws.Config{
		Channel:   service.EventChannel,
		Stream:    service.EventStream,
		Mode:      a.cfg.Mode,
		Node:      deps.Signer.Identity(),
		StartedAt: time.Now().UTC(),
	}, a.logger)
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(
			a.cfg.Mode,
			deps.Controller.ProgramID(),
			deps.Signer.Identity(),
			deps.HealthChecks,
			deps.Clock,
			a.logger,
		),
		Auctions:    handler.NewAuctionHandler(auctions, a.logger),
		Settlements: handler.NewSettlementHandler(auctions, a.logger),
		Audit:       handler.NewAuditHandler(deps.AuditStore, a.logger),
	}
	if a.cfg.Ledger.Devnet {
		accounts := service.NewAccountService(
			deps.Controller,
			deps.Ledger,
			deps.AuditStore,
			a.cfg.Ledger.AirdropCapLamports,
			a.logger,
		)
		handlers.Devnet = handler.NewDevnetHandler(accounts, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:            a.cfg.Server.Port,
		CORSOrigins:     a.cfg.Server.CORSOrigins,
		APIKey:          a.cfg.Server.APIKey,
		RateLimit:       a.cfg.Server.RateLimit,
		RateLimitWindow: a.cfg.Server.RateLimitWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)),
		)
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
