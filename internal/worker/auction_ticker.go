// internal/worker/auction_ticker.go
package worker

import (
	"context"
	"sync"
	"time"

	"auction-service/internal/domain"
	"auction-service/internal/usecase"

	"go.uber.org/zap"
)

type StatusRefresher interface {
	RefreshStatuses(ctx context.Context) (domain.StatusRefresh, error)
}

type PendingSettler interface {
	SettlePending(ctx context.Context, limit int) (usecase.PendingSettlementReport, error)
}

// AuctionTicker applies due status transitions and settles auctions the
// clock has closed, so they do not wait for the next read.
type AuctionTicker struct {
	auctions StatusRefresher
	settler  PendingSettler
	interval time.Duration
	batch    int
	logger   *zap.Logger

	stopChan chan struct{}
	stopOnce sync.Once
}

func NewAuctionTicker(auctions StatusRefresher, settler PendingSettler, interval time.Duration, logger *zap.Logger) *AuctionTicker {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &AuctionTicker{
		auctions: auctions,
		settler:  settler,
		interval: interval,
		batch:    100,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

func (t *AuctionTicker) Start(ctx context.Context) {
	t.logger.Info("starting auction ticker", zap.Duration("interval", t.interval))

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.RunOnce(ctx)

		case <-t.stopChan:
			t.logger.Info("stopping auction ticker")
			return

		case <-ctx.Done():
			return
		}
	}
}

// RunOnce refreshes statuses, then runs phase one for ended auctions still
// pending settlement.
func (t *AuctionTicker) RunOnce(ctx context.Context) {
	if _, err := t.auctions.RefreshStatuses(ctx); err != nil {
		t.logger.Error("auction status refresh failed", zap.Error(err))
		return
	}
	if t.settler == nil {
		return
	}
	report, err := t.settler.SettlePending(ctx, t.batch)
	if err != nil {
		t.logger.Warn("pending settlement sweep failed", zap.Error(err))
		return
	}
	if report != (usecase.PendingSettlementReport{}) {
		t.logger.Info("pending settlements processed",
			zap.Int("escrowed", report.Escrowed),
			zap.Int("no_winner", report.NoWinner),
			zap.Int("failed", report.Failed),
			zap.Int("skipped", report.Skipped))
	}
}

func (t *AuctionTicker) Stop() {
	t.stopOnce.Do(func() { close(t.stopChan) })
}
