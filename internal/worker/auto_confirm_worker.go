// internal/worker/auto_confirm_worker.go
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"auction-service/internal/domain"
	"auction-service/internal/usecase"

	"go.uber.org/zap"
)

var ErrSweepInProgress = errors.New("auto-confirmation sweep already running")

// AutoConfirmer is what the sweep needs from the settlement engine.
type AutoConfirmer interface {
	DueForAutoConfirm(ctx context.Context, limit int) ([]*domain.Order, error)
	AutoConfirm(ctx context.Context, orderID string) (*usecase.EscrowResult, error)
}

type AutoConfirmConfig struct {
	Interval   time.Duration
	StartDelay time.Duration
	BatchSize  int
}

type AutoConfirmStatus struct {
	Active    bool                `json:"active"`
	Running   bool                `json:"running"`
	Interval  string              `json:"interval"`
	NextRunAt *time.Time          `json:"next_run_at,omitempty"`
	LastRun   *domain.SweepReport `json:"last_run,omitempty"`
}

// AutoConfirmWorker releases escrow for held orders whose auto-confirm date
// has passed. At most one sweep runs at a time; a tick that finds a sweep
// still running is skipped.
type AutoConfirmWorker struct {
	settlement AutoConfirmer
	cfg        AutoConfirmConfig
	logger     *zap.Logger

	active  atomic.Bool
	running atomic.Bool

	mu      sync.Mutex
	lastRun *domain.SweepReport
	nextRun time.Time

	sweeps   sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

func NewAutoConfirmWorker(settlement AutoConfirmer, cfg AutoConfirmConfig, logger *zap.Logger) *AutoConfirmWorker {
	if cfg.Interval <= 0 {
		cfg.Interval = 6 * time.Hour
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &AutoConfirmWorker{
		settlement: settlement,
		cfg:        cfg,
		logger:     logger,
		stopChan:   make(chan struct{}),
	}
}

// Start blocks until Stop is called or ctx is cancelled.
func (w *AutoConfirmWorker) Start(ctx context.Context) {
	w.active.Store(true)
	defer w.active.Store(false)

	w.logger.Info("starting auto-confirm worker",
		zap.Duration("interval", w.cfg.Interval),
		zap.Duration("start_delay", w.cfg.StartDelay))

	w.scheduleNext(w.cfg.StartDelay)
	delay := time.NewTimer(w.cfg.StartDelay)
	defer delay.Stop()
	select {
	case <-delay.C:
	case <-w.stopChan:
		return
	case <-ctx.Done():
		return
	}
	w.tick(ctx)

	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()
	w.scheduleNext(w.cfg.Interval)

	for {
		select {
		case <-ticker.C:
			w.scheduleNext(w.cfg.Interval)
			w.tick(ctx)

		case <-w.stopChan:
			w.logger.Info("stopping auto-confirm worker")
			return

		case <-ctx.Done():
			w.logger.Info("context cancelled, stopping auto-confirm worker")
			return
		}
	}
}

// tick runs a sweep without holding up the ticker.
func (w *AutoConfirmWorker) tick(ctx context.Context) {
	w.sweeps.Add(1)
	go func() {
		defer w.sweeps.Done()
		if _, err := w.RunOnce(ctx); err != nil {
			if errors.Is(err, ErrSweepInProgress) {
				w.logger.Warn("previous auto-confirm sweep still running, skipping tick")
				return
			}
			w.logger.Error("auto-confirm sweep failed", zap.Error(err))
		}
	}()
}

// RunOnce performs a single sweep. Per-order failures are recorded in the
// report and do not abort the sweep.
func (w *AutoConfirmWorker) RunOnce(ctx context.Context) (*domain.SweepReport, error) {
	if !w.running.CompareAndSwap(false, true) {
		sweepsTotal.WithLabelValues("skipped").Inc()
		return nil, ErrSweepInProgress
	}
	defer w.running.Store(false)

	report := &domain.SweepReport{StartedAt: time.Now()}
	orders, err := w.settlement.DueForAutoConfirm(ctx, w.cfg.BatchSize)
	if err != nil {
		sweepsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("failed to list orders due for auto-confirmation: %w", err)
	}

	for _, o := range orders {
		if ctx.Err() != nil {
			break
		}
		report.Processed++

		_, err := w.settlement.AutoConfirm(ctx, o.ID)
		switch {
		case err == nil:
			report.Succeeded++
			autoConfirmedOrders.WithLabelValues("released").Inc()
		case errors.Is(err, domain.ErrAlreadyReleased), errors.Is(err, domain.ErrAlreadyRefunded):
			report.Skipped++
			autoConfirmedOrders.WithLabelValues("skipped").Inc()
		default:
			report.Failed++
			report.Failures = append(report.Failures, domain.SweepFailure{OrderID: o.ID, Error: err.Error()})
			autoConfirmedOrders.WithLabelValues("failed").Inc()
			w.logger.Error("auto-confirm failed",
				zap.String("order_id", o.ID),
				zap.Error(err))
		}
	}
	report.FinishedAt = time.Now()

	w.mu.Lock()
	w.lastRun = report
	w.mu.Unlock()

	result := "ok"
	if report.Failed > 0 {
		result = "partial"
	}
	sweepsTotal.WithLabelValues(result).Inc()

	w.logger.Info("auto-confirm sweep finished",
		zap.Int("processed", report.Processed),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)))
	return report, nil
}

func (w *AutoConfirmWorker) scheduleNext(in time.Duration) {
	w.mu.Lock()
	w.nextRun = time.Now().Add(in)
	w.mu.Unlock()
}

func (w *AutoConfirmWorker) Status() AutoConfirmStatus {
	w.mu.Lock()
	defer w.mu.Unlock()

	st := AutoConfirmStatus{
		Active:   w.active.Load(),
		Running:  w.running.Load(),
		Interval: w.cfg.Interval.String(),
	}
	if st.Active && !w.nextRun.IsZero() {
		next := w.nextRun
		st.NextRunAt = &next
	}
	if w.lastRun != nil {
		last := *w.lastRun
		st.LastRun = &last
	}
	return st
}

// Stop ends the ticker loop and waits for an in-flight sweep to finish.
func (w *AutoConfirmWorker) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
	w.sweeps.Wait()
}
