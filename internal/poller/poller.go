package poller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/thewrongjames/steamwhistle/config"
	"github.com/thewrongjames/steamwhistle/internal/docstore"
	"github.com/thewrongjames/steamwhistle/internal/model"
	"github.com/thewrongjames/steamwhistle/internal/store"
)

// PriceSource fetches current prices for a batch of apps in one call.
type PriceSource interface {
	PriceData(ctx context.Context, appIDs []int64) (map[int64]model.PriceInfo, error)
}

// Service refreshes catalog prices on a fixed interval. Notifications follow
// from the catalog writes; the poller itself sends nothing.
type Service struct {
	cfg    *config.PollerConfig
	store  store.PollerStore
	source PriceSource
	logger *zap.Logger
	now    func() time.Time
}

// NewService creates the poller. A nil now uses time.Now.
func NewService(cfg *config.PollerConfig, s store.PollerStore, source PriceSource, logger *zap.Logger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{cfg: cfg, store: s, source: source, logger: logger, now: now}
}

// Run polls every interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		s.logger.Info("price poller is disabled, not starting")
		return
	}
	s.logger.Info("starting price poller", zap.Duration("interval", s.cfg.Interval))

	if s.cfg.RunOnStart {
		s.pollAndLog(ctx)
	}

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("price poller shutting down")
			return
		case <-timer.C:
			s.pollAndLog(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

func (s *Service) pollAndLog(ctx context.Context) {
	if err := s.PollOnce(ctx); err != nil {
		s.logger.Error("price poll failed", zap.Error(err))
	}
}

// PollOnce refreshes the price of every catalog item with one batch lookup.
// An upstream outage fails the whole poll and nothing is written.
func (s *Service) PollOnce(ctx context.Context) error {
	start := s.now()

	appIDs, err := s.store.ListCatalogAppIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to list catalog: %w", err)
	}
	if len(appIDs) == 0 {
		s.logger.Info("price poll skipped, catalog is empty")
		return nil
	}

	prices, err := s.source.PriceData(ctx, appIDs)
	if err != nil {
		return fmt.Errorf("failed to fetch prices for %d apps: %w", len(appIDs), err)
	}

	now := s.now().UTC()
	updated, failed, missing := 0, 0, 0
	for _, appID := range appIDs {
		info, ok := prices[appID]
		if !ok {
			s.logger.Error("price source returned no data for catalog item, leaving it unchanged", zap.Int64("app_id", appID))
			missing++
			continue
		}
		err := s.store.MergeCatalogPrice(ctx, appID, model.PriceUpdate{
			IsFree:    info.IsFree,
			PriceData: info.PriceData,
			Updated:   now,
		})
		if errors.Is(err, docstore.ErrNotFound) {
			s.logger.Info("catalog item removed during poll, skipping", zap.Int64("app_id", appID))
			missing++
			continue
		}
		if err != nil {
			s.logger.Error("failed to update catalog price", zap.Int64("app_id", appID), zap.Error(err))
			failed++
			continue
		}
		updated++
	}

	s.logger.Info("price poll finished",
		zap.Int("apps", len(appIDs)),
		zap.Int("updated", updated),
		zap.Int("missing", missing),
		zap.Int("failed", failed),
		zap.Duration("duration", s.now().Sub(start)))

	if failed > 0 {
		return fmt.Errorf("failed to write %d of %d catalog prices", failed, len(appIDs))
	}
	return nil
}
