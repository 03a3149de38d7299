package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/predictmarket/internal/domain"
	"github.com/alanyoungcy/predictmarket/internal/server"
	"github.com/alanyoungcy/predictmarket/internal/server/handler"
	"github.com/alanyoungcy/predictmarket/internal/server/ws"
)

// version is reported by the health endpoint. Overridden at build time with
// -ldflags "-X .../internal/app.version=...".
var version = "dev"

// shutdownTimeout bounds how long in-flight requests may run after the
// context is cancelled.
const shutdownTimeout = 10 * time.Second

// archiveBatchSize is the page size used when scanning markets to archive.
const archiveBatchSize = 100

// ServeMode runs the HTTP API and the WebSocket hub until the context is
// cancelled.
func (a *App) ServeMode(ctx context.Context, deps *Dependencies) error {
	if !a.cfg.Server.Enabled {
		return fmt.Errorf("app: serve mode requires server.enabled")
	}

	hub := ws.NewHub(deps.SignalBus, a.logger)

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(version, map[string]handler.HealthCheck{
			"postgres": deps.PostgresHealth,
			"redis":    deps.RedisHealth,
			"s3":       deps.S3Health,
		}),
		Markets:  handler.NewMarketHandler(deps.Markets),
		Disputes: handler.NewDisputeHandler(deps.Disputes),
		Breaker:  handler.NewBreakerHandler(deps.BreakerS),
		Accounts: handler.NewAccountHandler(deps.Accounts),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      deps.APIKey,
	}, handlers, hub, a.logger)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := hub.Run(gctx); err != nil && gctx.Err() == nil {
			return fmt.Errorf("app: ws hub: %w", err)
		}
		return nil
	})

	g.Go(srv.Start)

	g.Go(func() error {
		<-gctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	return g.Wait()
}

// ArchiveMode is a one-shot batch job: it scans resolved and cancelled
// markets, writes each to blob storage, and records the archive paths in the
// audit log. Markets stay in their current status; flipping to Closed remains
// an explicit admin operation.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	var total int
	for _, status := range []domain.MarketStatus{domain.MarketStatusResolved, domain.MarketStatusCancelled} {
		n, err := a.archiveByStatus(ctx, deps, status)
		if err != nil {
			return err
		}
		total += n
	}
	a.logger.InfoContext(ctx, "archive run complete", slog.Int("archived", total))
	return nil
}

func (a *App) archiveByStatus(ctx context.Context, deps *Dependencies, status domain.MarketStatus) (int, error) {
	var archived int
	for offset := 0; ; offset += archiveBatchSize {
		markets, err := deps.MarketStore.List(ctx, status, domain.ListOpts{
			Limit:  archiveBatchSize,
			Offset: offset,
		})
		if err != nil {
			return archived, fmt.Errorf("app: archive list %s: %w", status, err)
		}
		if len(markets) == 0 {
			return archived, nil
		}

		paths, err := deps.Archiver.ArchiveBatch(ctx, markets)
		archived += len(paths)
		if logErr := deps.AuditStore.Log(ctx, "markets_archived", map[string]any{
			"status": string(status),
			"count":  len(paths),
			"paths":  paths,
		}); logErr != nil {
			a.logger.WarnContext(ctx, "audit log failed", slog.String("error", logErr.Error()))
		}
		if err != nil {
			return archived, fmt.Errorf("app: archive batch %s: %w", status, err)
		}
	}
}
