package repository

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"auction-service/internal/domain"
	"auction-service/pkg/utils/id"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newPostgresStore connects to TEST_DATABASE_URL and applies the schema.
// Tests mint fresh IDs so reruns against the same database do not collide.
func newPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, pool.Ping(ctx))

	s := NewPostgresStore(pool)
	require.NoError(t, s.Migrate(ctx))
	return s
}

func pgAccount(t *testing.T, s *PostgresStore, role domain.Role, balance domain.Amount) string {
	t.Helper()
	accountID := id.Generate(id.PrefixAccount)
	require.NoError(t, s.CreateAccount(context.Background(), &domain.Account{
		ID: accountID, DisplayName: accountID, Role: role, Balance: balance, CreatedAt: time.Now().UTC(),
	}))
	return accountID
}

func pgLiveAuction(t *testing.T, s *PostgresStore, farmerID string, end time.Time) *domain.Auction {
	t.Helper()
	now := time.Now().UTC()
	a := &domain.Auction{
		ID:               id.Generate(id.PrefixAuction),
		FarmerID:         farmerID,
		ProductName:      "Tomatoes",
		Quantity:         decimal.NewFromInt(50),
		Unit:             "kg",
		StartingPrice:    10000,
		CurrentPrice:     10000,
		MinBidIncrement:  1000,
		StartTime:        now.Add(-time.Hour),
		EndTime:          end,
		Status:           domain.AuctionLive,
		SettlementStatus: domain.SettlementPending,
		CreatedAt:        now,
	}
	require.NoError(t, s.CreateAuction(context.Background(), a))
	return a
}

func TestPostgresAdmitBidConcurrentSamePrice(t *testing.T) {
	ctx := context.Background()
	s := newPostgresStore(t)
	farmer := pgAccount(t, s, domain.RoleFarmer, 0)
	a := pgLiveAuction(t, s, farmer, time.Now().Add(time.Hour))

	const bidders = 8
	ids := make([]string, bidders)
	for i := range ids {
		ids[i] = pgAccount(t, s, domain.RoleBuyer, 1_000_000)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted []string
		changed  int
	)
	start := make(chan struct{})
	for i, bidderID := range ids {
		wg.Add(1)
		go func(i int, bidderID string) {
			defer wg.Done()
			<-start
			_, err := s.AdmitBid(ctx, &domain.Bid{
				ID:        id.Generate(id.PrefixBid),
				AuctionID: a.ID,
				BidderID:  bidderID,
				Amount:    a.CurrentPrice + a.MinBidIncrement + domain.Amount(i),
				CreatedAt: time.Now().UTC(),
			}, a.CurrentPrice)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				admitted = append(admitted, bidderID)
			case errors.Is(err, domain.ErrPriceChanged):
				changed++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i, bidderID)
	}
	close(start)
	wg.Wait()

	require.Len(t, admitted, 1)
	assert.Equal(t, bidders-1, changed)

	got, err := s.GetAuction(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, admitted[0], got.CurrentBidder)
	assert.Equal(t, 1, got.TotalBids)
	assert.Equal(t, []string{admitted[0]}, got.Participants)

	bids, err := s.ListBids(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, bids, 1)
	assert.Equal(t, got.CurrentPrice, bids[0].Amount)
}

func TestPostgresPostTransferRejectsOverdraft(t *testing.T) {
	ctx := context.Background()
	s := newPostgresStore(t)
	from := pgAccount(t, s, domain.RoleBuyer, 500)
	to := pgAccount(t, s, domain.RoleSystem, 0)

	err := s.RunInTx(ctx, func(tx Tx) error {
		_, err := tx.PostTransfer(ctx, &domain.Transfer{
			ID: id.Generate(id.PrefixTransfer), FromAccount: from, ToAccount: to, Amount: 501,
			DebitSource: domain.SourceAuctionSettlement, CreditSource: domain.SourceEscrowReceived, At: time.Now().UTC(),
		})
		return err
	})
	var funds *domain.InsufficientFundsError
	require.ErrorAs(t, err, &funds)
	assert.Equal(t, domain.Amount(500), funds.Available)

	a, err := s.GetAccount(ctx, from)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(500), a.Balance)
	entries, err := s.ListEntries(ctx, from, 0)
	require.NoError(t, err)
	assert.Empty(t, entries)

	require.NoError(t, s.RunInTx(ctx, func(tx Tx) error {
		_, err := tx.PostTransfer(ctx, &domain.Transfer{
			ID: id.Generate(id.PrefixTransfer), FromAccount: from, ToAccount: to, Amount: 500,
			DebitSource: domain.SourceAuctionSettlement, CreditSource: domain.SourceEscrowReceived, At: time.Now().UTC(),
		})
		return err
	}))
	locked := map[string]*domain.Account{}
	require.NoError(t, s.RunInTx(ctx, func(tx Tx) error {
		var err error
		locked, err = tx.LockAccounts(ctx, to, from)
		return err
	}))
	assert.Equal(t, domain.Amount(0), locked[from].Balance)
	assert.Equal(t, domain.Amount(500), locked[to].Balance)

	err = s.RunInTx(ctx, func(tx Tx) error {
		_, err := tx.LockAccounts(ctx, from, "acc_missing")
		return err
	})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPostgresCreateOrderUniquePerAuction(t *testing.T) {
	ctx := context.Background()
	s := newPostgresStore(t)
	farmer := pgAccount(t, s, domain.RoleFarmer, 0)
	buyer := pgAccount(t, s, domain.RoleBuyer, 0)
	a := pgLiveAuction(t, s, farmer, time.Now().Add(time.Hour))
	a.Winner = buyer
	a.WinningBidAmount = 12000

	now := time.Now().UTC()
	first := domain.NewEscrowOrder(id.Generate(id.PrefixOrder), a, time.Hour, now)
	require.NoError(t, s.RunInTx(ctx, func(tx Tx) error { return tx.CreateOrder(ctx, first) }))

	second := domain.NewEscrowOrder(id.Generate(id.PrefixOrder), a, time.Hour, now)
	err := s.RunInTx(ctx, func(tx Tx) error { return tx.CreateOrder(ctx, second) })
	require.ErrorIs(t, err, ErrDuplicate)

	_, err = s.GetOrder(ctx, second.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	got, err := s.ListOrders(ctx, domain.OrderFilter{BuyerID: buyer})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, first.ID, got[0].ID)
	assert.True(t, a.Quantity.Equal(got[0].Quantity))
	require.Len(t, got[0].History, 1)
}

func TestPostgresAdvanceStatuses(t *testing.T) {
	ctx := context.Background()
	s := newPostgresStore(t)
	farmer := pgAccount(t, s, domain.RoleFarmer, 0)
	buyer := pgAccount(t, s, domain.RoleBuyer, 1_000_000)

	now := time.Now().UTC()
	expiring := pgLiveAuction(t, s, farmer, now.Add(time.Minute))
	open := pgLiveAuction(t, s, farmer, now.Add(time.Hour))
	_, err := s.AdmitBid(ctx, &domain.Bid{
		ID: id.Generate(id.PrefixBid), AuctionID: expiring.ID, BidderID: buyer, Amount: 11000, CreatedAt: now,
	}, expiring.CurrentPrice)
	require.NoError(t, err)

	r, err := s.AdvanceStatuses(ctx, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, r.Ended, 1)

	ended, err := s.GetAuction(ctx, expiring.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionEnded, ended.Status)
	assert.Equal(t, buyer, ended.Winner)
	assert.Equal(t, domain.Amount(11000), ended.WinningBidAmount)

	still, err := s.GetAuction(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionLive, still.Status)
}

func TestPostgresFundRequestApproval(t *testing.T) {
	ctx := context.Background()
	s := newPostgresStore(t)
	buyer := pgAccount(t, s, domain.RoleBuyer, 0)

	now := time.Now().UTC()
	req := &domain.FundRequest{
		ID: id.Generate(id.PrefixFundRequest), AccountID: buyer, Amount: 2500,
		Status: domain.FundRequestPending, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, s.CreateFundRequest(ctx, req))
	assert.ErrorIs(t, s.CreateFundRequest(ctx, &domain.FundRequest{
		ID: id.Generate(id.PrefixFundRequest), AccountID: "acc_missing", Amount: 1,
		Status: domain.FundRequestPending, CreatedAt: now,
	}), domain.ErrNotFound)

	entryID := id.Generate(id.PrefixEntry)
	require.NoError(t, s.RunInTx(ctx, func(tx Tx) error {
		r, err := tx.GetFundRequestForUpdate(ctx, req.ID)
		if err != nil {
			return err
		}
		if err := r.Review(domain.FundRequestApproved, "admin", now); err != nil {
			return err
		}
		if _, err := tx.CreditAccount(ctx, &domain.LedgerEntry{
			ID: entryID, TransferID: id.Generate(id.PrefixTransfer), AccountID: buyer,
			Direction: domain.DirectionCredit, Amount: r.Amount, Source: domain.SourceAdminApproval, CreatedAt: now,
		}); err != nil {
			return err
		}
		r.EntryID = entryID
		return tx.SaveFundRequest(ctx, r)
	}))

	got, err := s.GetFundRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.FundRequestApproved, got.Status)
	assert.Equal(t, entryID, got.EntryID)
	acc, err := s.GetAccount(ctx, buyer)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(2500), acc.Balance)

	list, err := s.ListFundRequests(ctx, domain.FundRequestFilter{AccountID: buyer, Status: domain.FundRequestApproved})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, req.ID, list[0].ID)
}
