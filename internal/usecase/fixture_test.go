package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"auction-service/internal/domain"
	"auction-service/internal/lock"
	"auction-service/internal/repository"
	"auction-service/pkg/utils/id"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type event struct {
	To      string
	Kind    string
	Payload any
}

// recorder captures every notification and broadcast synchronously.
type recorder struct {
	mu         sync.Mutex
	notices    []event
	broadcasts []event
}

func (r *recorder) Notify(_ context.Context, recipientID, kind string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, event{To: recipientID, Kind: kind, Payload: payload})
	return nil
}

func (r *recorder) Broadcast(_ context.Context, topic, kind string, payload any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.broadcasts = append(r.broadcasts, event{To: topic, Kind: kind, Payload: payload})
	return nil
}

func (r *recorder) noticesFor(recipientID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kinds []string
	for _, e := range r.notices {
		if e.To == recipientID {
			kinds = append(kinds, e.Kind)
		}
	}
	return kinds
}

func (r *recorder) broadcastsOn(topic string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var kinds []string
	for _, e := range r.broadcasts {
		if e.To == topic {
			kinds = append(kinds, e.Kind)
		}
	}
	return kinds
}

// lastBroadcast returns the payload of the most recent broadcast of kind on
// topic, or nil.
func (r *recorder) lastBroadcast(topic, kind string) any {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.broadcasts) - 1; i >= 0; i-- {
		if e := r.broadcasts[i]; e.To == topic && e.Kind == kind {
			return e.Payload
		}
	}
	return nil
}

type fixture struct {
	store    *repository.MemoryStore
	clock    *testClock
	events   *recorder
	locker   *lock.LocalLocker
	ledger   *LedgerUsecase
	settle   *SettlementUsecase
	auctions *AuctionUsecase
	escrow   domain.EscrowAccount
	admin    domain.Actor
}

const (
	escrowID = "escrow"
	farmerID = "farmer"
	adminID  = "admin"
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	f := &fixture{
		store:  repository.NewMemoryStore(),
		clock:  &testClock{t: t0},
		events: &recorder{},
		locker: lock.NewLocalLocker(30 * time.Second),
	}
	clock := WithClock(f.clock.now)
	f.ledger = NewLedgerUsecase(f.store, nil, logger, clock)

	_, err := f.ledger.EnsureEscrowAccount(ctx, escrowID, "admin@farm2home.com")
	require.NoError(t, err)
	f.escrow, err = f.ledger.ResolveEscrowAccount(ctx, escrowID, "")
	require.NoError(t, err)

	f.settle = NewSettlementUsecase(f.store, f.locker, f.ledger, f.events, f.escrow,
		SettlementConfig{AutoConfirmAfter: 7 * 24 * time.Hour, LockPoll: 2 * time.Millisecond}, logger, clock)
	f.auctions = NewAuctionUsecase(f.store, f.settle, f.events,
		AuctionConfig{DefaultMinBidIncrement: domain.MustAmount("10")}, logger, clock)

	f.openAccount(t, farmerID, domain.RoleFarmer, 0)
	f.openAccount(t, adminID, domain.RoleAdmin, 0)
	f.admin = domain.Actor{ID: adminID, Role: domain.RoleAdmin}
	return f
}

func (f *fixture) openAccount(t *testing.T, accountID string, role domain.Role, balance domain.Amount) domain.Actor {
	t.Helper()
	_, err := f.ledger.OpenAccount(context.Background(), OpenAccountInput{
		ID: accountID, DisplayName: accountID, Role: role, OpeningBalance: balance,
	})
	require.NoError(t, err)
	return domain.Actor{ID: accountID, Role: role}
}

func (f *fixture) balance(t *testing.T, accountID string) domain.Amount {
	t.Helper()
	acc, err := f.store.GetAccount(context.Background(), accountID)
	require.NoError(t, err)
	return acc.Balance
}

// liveAuction lists an auction that starts now and ends in an hour.
func (f *fixture) liveAuction(t *testing.T, startingPrice string) *domain.Auction {
	t.Helper()
	a, err := f.auctions.CreateAuction(context.Background(),
		domain.Actor{ID: farmerID, Role: domain.RoleFarmer},
		domain.CreateAuctionInput{
			ProductName:   "Tomatoes",
			Quantity:      decimal.NewFromInt(50),
			Unit:          "kg",
			StartingPrice: domain.MustAmount(startingPrice),
			EndTime:       f.clock.now().Add(time.Hour),
		})
	require.NoError(t, err)
	require.Equal(t, domain.AuctionLive, a.Status)
	return a
}

// wonAuction returns an auction closed by the clock with buyer as the
// winner at amount. Phase one has not run.
func (f *fixture) wonAuction(t *testing.T, buyer domain.Actor, amount string) *domain.Auction {
	t.Helper()
	ctx := context.Background()
	a := f.liveAuction(t, "1")

	// The bid check needs funds; top up temporarily when the test wants the
	// buyer short at settlement time.
	need := domain.MustAmount(amount)
	short := need - f.balance(t, buyer.ID)
	if short > 0 {
		_, err := f.ledger.Deposit(ctx, buyer.ID, short, "bid cover")
		require.NoError(t, err)
	}
	_, err := f.auctions.PlaceBid(ctx, a.ID, buyer, need)
	require.NoError(t, err)
	if short > 0 {
		f.drain(t, buyer.ID, short)
	}

	f.clock.advance(time.Hour)
	_, err = f.auctions.RefreshStatuses(ctx)
	require.NoError(t, err)
	ended, err := f.store.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, domain.AuctionEnded, ended.Status)
	require.Equal(t, buyer.ID, ended.Winner)
	return ended
}

// drain moves amount out of the account to a sink account so balances
// still sum to the deposits.
func (f *fixture) drain(t *testing.T, accountID string, amount domain.Amount) {
	t.Helper()
	ctx := context.Background()
	if _, err := f.store.GetAccount(ctx, "sink"); err != nil {
		f.openAccount(t, "sink", domain.RoleBuyer, 0)
	}
	require.NoError(t, f.store.RunInTx(ctx, func(tx repository.Tx) error {
		_, err := tx.PostTransfer(ctx, &domain.Transfer{
			ID: id.Generate(id.PrefixTransfer), FromAccount: accountID, ToAccount: "sink", Amount: amount,
			DebitSource: domain.SourceAuctionSettlement, CreditSource: domain.SourceEscrowReceived, At: f.clock.now(),
		})
		return err
	}))
}

// heldOrder runs phase one for a fresh auction and returns the order.
func (f *fixture) heldOrder(t *testing.T, buyer domain.Actor, amount string) *domain.Order {
	t.Helper()
	a := f.wonAuction(t, buyer, amount)
	res, err := f.settle.SettleAuctionEnd(context.Background(), a.ID)
	require.NoError(t, err)
	require.Equal(t, OutcomeEscrowed, res.Outcome)
	return res.Order
}
