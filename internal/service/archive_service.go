package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/dutchescrow/internal/domain"
)

// ArchiveService moves settlement history older than the retention window
// to cold storage.
type ArchiveService struct {
	archiver  domain.Archiver
	retention time.Duration
	interval  time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewArchiveService creates an ArchiveService. Rows older than retention are
// archived every interval.
func NewArchiveService(archiver domain.Archiver, retention, interval time.Duration, logger *slog.Logger) *ArchiveService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ArchiveService{
		archiver:  archiver,
		retention: retention,
		interval:  interval,
		now:       time.Now,
		logger:    logger.With(slog.String("component", "archive_service")),
	}
}

// Run archives on every tick until ctx is cancelled. Call in a goroutine.
func (a *ArchiveService) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := a.RunOnce(ctx); err != nil {
				a.logger.ErrorContext(ctx, "archive pass failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RunOnce performs a single archive pass and returns the number of
// settlements moved.
func (a *ArchiveService) RunOnce(ctx context.Context) (int64, error) {
	before := a.now().UTC().Add(-a.retention)
	n, err := a.archiver.ArchiveSettlements(ctx, before)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		a.logger.InfoContext(ctx, "settlements archived",
			slog.Int64("count", n),
			slog.Time("before", before),
		)
	}
	return n, nil
}
