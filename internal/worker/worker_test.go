package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"auction-service/internal/domain"
	"auction-service/internal/lock"
	"auction-service/internal/pub"
	"auction-service/internal/repository"
	"auction-service/internal/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeConfirmer struct {
	orders  []*domain.Order
	results map[string]error
	block   chan struct{}
	entered chan struct{}

	mu        sync.Mutex
	confirmed []string
}

func (f *fakeConfirmer) DueForAutoConfirm(ctx context.Context, _ int) ([]*domain.Order, error) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.block != nil {
		<-f.block
	}
	return f.orders, nil
}

func (f *fakeConfirmer) AutoConfirm(_ context.Context, orderID string) (*usecase.EscrowResult, error) {
	f.mu.Lock()
	f.confirmed = append(f.confirmed, orderID)
	f.mu.Unlock()
	if err := f.results[orderID]; err != nil {
		return nil, err
	}
	return &usecase.EscrowResult{Order: &domain.Order{ID: orderID}}, nil
}

func TestRunOnceReleasesDueOrdersOnce(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var clock atomic.Value
	clock.Store(now)
	clockFn := usecase.WithClock(func() time.Time { return clock.Load().(time.Time) })

	store := repository.NewMemoryStore()
	logger := zap.NewNop()
	ledger := usecase.NewLedgerUsecase(store, nil, logger, clockFn)
	_, err := ledger.EnsureEscrowAccount(ctx, "escrow", "")
	require.NoError(t, err)
	for _, in := range []usecase.OpenAccountInput{
		{ID: "farmer", Role: domain.RoleFarmer},
		{ID: "buyer", Role: domain.RoleBuyer, OpeningBalance: domain.MustAmount("500")},
	} {
		_, err := ledger.OpenAccount(ctx, in)
		require.NoError(t, err)
	}

	settlement := usecase.NewSettlementUsecase(store, lock.NewLocalLocker(time.Minute), ledger, pub.Nop{},
		domain.EscrowAccount{ID: "escrow"}, usecase.SettlementConfig{AutoConfirmAfter: 7 * 24 * time.Hour}, logger, clockFn)

	require.NoError(t, store.CreateAuction(ctx, &domain.Auction{
		ID: "auc_1", FarmerID: "farmer", ProductName: "Onions",
		StartingPrice: 100, CurrentPrice: domain.MustAmount("300"), MinBidIncrement: 1000,
		StartTime: now.Add(-2 * time.Hour), EndTime: now.Add(-time.Hour),
		Status: domain.AuctionEnded, Winner: "buyer", WinningBidAmount: domain.MustAmount("300"),
		SettlementStatus: domain.SettlementPending, Participants: []string{"buyer"},
	}))
	res, err := settlement.SettleAuctionEnd(ctx, "auc_1")
	require.NoError(t, err)

	w := NewAutoConfirmWorker(settlement, AutoConfirmConfig{Interval: time.Hour}, logger)

	report, err := w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Processed)

	clock.Store(now.Add(8 * 24 * time.Hour))
	report, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Processed)
	assert.Equal(t, 1, report.Succeeded)

	farmer, err := store.GetAccount(ctx, "farmer")
	require.NoError(t, err)
	assert.Equal(t, domain.MustAmount("300"), farmer.Balance)

	o, err := store.GetOrder(ctx, res.Order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EscrowReleased, o.EscrowStatus)
	assert.Equal(t, domain.RoleSystem, o.ConfirmedByRole)

	report, err = w.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Processed)

	farmer, err = store.GetAccount(ctx, "farmer")
	require.NoError(t, err)
	assert.Equal(t, domain.MustAmount("300"), farmer.Balance)
}

func TestRunOnceRecordsFailuresAndContinues(t *testing.T) {
	f := &fakeConfirmer{
		orders: []*domain.Order{{ID: "o1"}, {ID: "o2"}, {ID: "o3"}},
		results: map[string]error{
			"o2": errors.New("db unavailable"),
			"o3": &domain.TerminalStateError{OrderID: "o3", Status: domain.EscrowReleased},
		},
	}
	w := NewAutoConfirmWorker(f, AutoConfirmConfig{}, zap.NewNop())

	report, err := w.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, report.Processed)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "o2", report.Failures[0].OrderID)
	assert.Equal(t, []string{"o1", "o2", "o3"}, f.confirmed)

	st := w.Status()
	require.NotNil(t, st.LastRun)
	assert.Equal(t, 3, st.LastRun.Processed)
	assert.False(t, st.Running)
}

func TestRunOnceSkipsWhileSweepInProgress(t *testing.T) {
	f := &fakeConfirmer{
		orders:  []*domain.Order{{ID: "o1"}},
		block:   make(chan struct{}),
		entered: make(chan struct{}, 1),
	}
	w := NewAutoConfirmWorker(f, AutoConfirmConfig{}, zap.NewNop())

	done := make(chan *domain.SweepReport)
	go func() {
		report, _ := w.RunOnce(context.Background())
		done <- report
	}()
	<-f.entered
	assert.True(t, w.Status().Running)

	_, err := w.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrSweepInProgress)

	close(f.block)
	report := <-done
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Succeeded)
	assert.False(t, w.Status().Running)
}

func TestStartSweepsAfterDelayAndStops(t *testing.T) {
	f := &fakeConfirmer{orders: []*domain.Order{{ID: "o1"}}}
	w := NewAutoConfirmWorker(f, AutoConfirmConfig{Interval: time.Hour, StartDelay: time.Millisecond}, zap.NewNop())

	stopped := make(chan struct{})
	go func() {
		w.Start(context.Background())
		close(stopped)
	}()

	assert.Eventually(t, func() bool {
		st := w.Status()
		return st.LastRun != nil && st.LastRun.Succeeded == 1
	}, time.Second, 5*time.Millisecond)
	assert.True(t, w.Status().Active)
	assert.NotNil(t, w.Status().NextRunAt)

	w.Stop()
	<-stopped
	assert.False(t, w.Status().Active)
}

type fakeRefresher struct {
	calls int
	err   error
}

func (f *fakeRefresher) RefreshStatuses(context.Context) (domain.StatusRefresh, error) {
	f.calls++
	return domain.StatusRefresh{Ended: 1}, f.err
}

type fakeSettler struct{ calls int }

func (f *fakeSettler) SettlePending(context.Context, int) (usecase.PendingSettlementReport, error) {
	f.calls++
	return usecase.PendingSettlementReport{Escrowed: 1}, nil
}

func TestAuctionTickerRefreshesThenSettles(t *testing.T) {
	refresher := &fakeRefresher{}
	settler := &fakeSettler{}
	tk := NewAuctionTicker(refresher, settler, time.Minute, zap.NewNop())

	tk.RunOnce(context.Background())
	assert.Equal(t, 1, refresher.calls)
	assert.Equal(t, 1, settler.calls)

	refresher.err = errors.New("store down")
	tk.RunOnce(context.Background())
	assert.Equal(t, 2, refresher.calls)
	assert.Equal(t, 1, settler.calls)
}
