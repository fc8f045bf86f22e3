package repository

import (
	"context"
	"errors"
	"time"

	"auction-service/internal/domain"
)

// ErrDuplicate is returned when a unique key (e.g. one order per auction)
// already exists.
var ErrDuplicate = errors.New("duplicate record")

// Store is the persistence contract for accounts, the ledger, auctions,
// bids and orders. Balance-affecting work goes through RunInTx.
type Store interface {
	// RunInTx runs fn as one atomic unit. Any error from fn rolls back every
	// write made through tx. fn must not call other Store methods.
	RunInTx(ctx context.Context, fn func(tx Tx) error) error

	// Accounts & ledger
	CreateAccount(ctx context.Context, a *domain.Account) error
	GetAccount(ctx context.Context, id string) (*domain.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error)
	ListEntries(ctx context.Context, accountID string, limit int) ([]*domain.LedgerEntry, error)
	Deposit(ctx context.Context, entry *domain.LedgerEntry) (*domain.Account, error)

	// Fund requests
	CreateFundRequest(ctx context.Context, r *domain.FundRequest) error
	GetFundRequest(ctx context.Context, id string) (*domain.FundRequest, error)
	// ListFundRequests returns matching requests, newest first.
	ListFundRequests(ctx context.Context, f domain.FundRequestFilter) ([]*domain.FundRequest, error)

	// Auctions & bids
	CreateAuction(ctx context.Context, a *domain.Auction) error
	GetAuction(ctx context.Context, id string) (*domain.Auction, error)
	ListAuctions(ctx context.Context, f domain.AuctionFilter) ([]*domain.Auction, error)
	ListBids(ctx context.Context, auctionID string) ([]*domain.Bid, error)
	// AdmitBid writes the bid only if the auction is live, not past its end
	// time and its current price still equals expectedPrice. Otherwise it
	// returns domain.ErrPriceChanged and writes nothing.
	AdmitBid(ctx context.Context, bid *domain.Bid, expectedPrice domain.Amount) (*domain.Auction, error)
	// AdvanceStatuses promotes scheduled auctions whose start time passed
	// and closes live auctions whose end time passed.
	AdvanceStatuses(ctx context.Context, now time.Time) (domain.StatusRefresh, error)
	ListAuctionsAwaitingSettlement(ctx context.Context, limit int) ([]*domain.Auction, error)

	// Orders
	GetOrder(ctx context.Context, id string) (*domain.Order, error)
	// ListOrders returns matching orders, newest first.
	ListOrders(ctx context.Context, f domain.OrderFilter) ([]*domain.Order, error)
	ListOrdersDueForAutoConfirm(ctx context.Context, now time.Time, limit int) ([]*domain.Order, error)
}

// Tx is the set of operations available inside RunInTx. Reads through Tx
// lock the rows they return until the transaction ends.
type Tx interface {
	// LockAccounts locks the given accounts in ascending ID order.
	LockAccounts(ctx context.Context, ids ...string) (map[string]*domain.Account, error)
	// PostTransfer debits FromAccount and credits ToAccount, writing both
	// ledger entries. It fails with *domain.InsufficientFundsError, writing
	// nothing, if the debit would take FromAccount below zero.
	PostTransfer(ctx context.Context, t *domain.Transfer) ([]*domain.LedgerEntry, error)
	// CreditAccount applies a single-sided credit entry for funds entering
	// the system.
	CreditAccount(ctx context.Context, entry *domain.LedgerEntry) (*domain.Account, error)

	GetFundRequestForUpdate(ctx context.Context, id string) (*domain.FundRequest, error)
	SaveFundRequest(ctx context.Context, r *domain.FundRequest) error

	GetAuctionForUpdate(ctx context.Context, id string) (*domain.Auction, error)
	SaveAuction(ctx context.Context, a *domain.Auction) error

	// CreateOrder returns ErrDuplicate if the auction already has an order.
	CreateOrder(ctx context.Context, o *domain.Order) error
	GetOrderForUpdate(ctx context.Context, id string) (*domain.Order, error)
	SaveOrder(ctx context.Context, o *domain.Order) error
}

func transferEntries(t *domain.Transfer, debitID, creditID string) (debit, credit *domain.LedgerEntry) {
	debit = &domain.LedgerEntry{
		ID:         debitID,
		TransferID: t.ID,
		AccountID:  t.FromAccount,
		Direction:  domain.DirectionDebit,
		Amount:     t.Amount,
		Source:     t.DebitSource,
		Metadata:   t.Metadata,
		CreatedAt:  t.At,
	}
	credit = &domain.LedgerEntry{
		ID:         creditID,
		TransferID: t.ID,
		AccountID:  t.ToAccount,
		Direction:  domain.DirectionCredit,
		Amount:     t.Amount,
		Source:     t.CreditSource,
		Metadata:   t.Metadata,
		CreatedAt:  t.At,
	}
	return debit, credit
}

func validateCredit(e *domain.LedgerEntry) error {
	switch {
	case e.ID == "" || e.AccountID == "":
		return errors.New("credit entry id and account are required")
	case e.Direction != domain.DirectionCredit:
		return errors.New("credit entry must have credit direction")
	case !e.Amount.IsPositive():
		return errors.New("credit amount must be positive")
	}
	return nil
}

func validateTransfer(t *domain.Transfer) error {
	switch {
	case t.ID == "":
		return errors.New("transfer id is required")
	case t.FromAccount == "" || t.ToAccount == "":
		return errors.New("transfer accounts are required")
	case t.FromAccount == t.ToAccount:
		return errors.New("transfer accounts must differ")
	case !t.Amount.IsPositive():
		return errors.New("transfer amount must be positive")
	}
	return nil
}
