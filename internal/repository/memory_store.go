package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"auction-service/internal/domain"
	"auction-service/pkg/utils/id"
)

// MemoryStore keeps everything in process memory behind one mutex. A
// transaction holds the mutex for its whole duration and stages writes until
// fn returns nil, so it is serializable. Used for single-instance dev runs and
// tests.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]*domain.Account
	entries  []*domain.LedgerEntry
	auctions map[string]*domain.Auction
	bids     []*domain.Bid
	orders   map[string]*domain.Order
	funding  map[string]*domain.FundRequest
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]*domain.Account),
		auctions: make(map[string]*domain.Auction),
		orders:   make(map[string]*domain.Order),
		funding:  make(map[string]*domain.FundRequest),
	}
}

func (s *MemoryStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{
		s:        s,
		accounts: make(map[string]*domain.Account),
		auctions: make(map[string]*domain.Auction),
		orders:   make(map[string]*domain.Order),
		funding:  make(map[string]*domain.FundRequest),
	}
	if err := fn(tx); err != nil {
		return err
	}
	tx.commit()
	return nil
}

// ============================================================
// Accounts & ledger
// ============================================================

func (s *MemoryStore) CreateAccount(ctx context.Context, a *domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[a.ID]; ok {
		return fmt.Errorf("account %s: %w", a.ID, ErrDuplicate)
	}
	if a.Email != "" {
		for _, existing := range s.accounts {
			if existing.Email == a.Email {
				return fmt.Errorf("account email %s: %w", a.Email, ErrDuplicate)
			}
		}
	}
	c := *a
	s.accounts[a.ID] = &c
	return nil
}

func (s *MemoryStore) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[accountID]
	if !ok {
		return nil, domain.NotFound("account", accountID)
	}
	c := *a
	return &c, nil
}

func (s *MemoryStore) GetAccountByEmail(ctx context.Context, email string) (*domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range s.accounts {
		if a.Email == email {
			c := *a
			return &c, nil
		}
	}
	return nil, domain.NotFound("account", email)
}

func (s *MemoryStore) ListEntries(ctx context.Context, accountID string, limit int) ([]*domain.LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.LedgerEntry
	for i := len(s.entries) - 1; i >= 0; i-- {
		e := s.entries[i]
		if e.AccountID != accountID {
			continue
		}
		c := *e
		out = append(out, &c)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) Deposit(ctx context.Context, entry *domain.LedgerEntry) (*domain.Account, error) {
	var out *domain.Account
	err := s.RunInTx(ctx, func(tx Tx) error {
		a, err := tx.CreditAccount(ctx, entry)
		out = a
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ============================================================
// Fund requests
// ============================================================

func (s *MemoryStore) CreateFundRequest(ctx context.Context, r *domain.FundRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[r.AccountID]; !ok {
		return domain.NotFound("account", r.AccountID)
	}
	if _, ok := s.funding[r.ID]; ok {
		return fmt.Errorf("fund request %s: %w", r.ID, ErrDuplicate)
	}
	c := *r
	s.funding[r.ID] = &c
	return nil
}

func (s *MemoryStore) GetFundRequest(ctx context.Context, requestID string) (*domain.FundRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.funding[requestID]
	if !ok {
		return nil, domain.NotFound("fund request", requestID)
	}
	c := *r
	return &c, nil
}

func (s *MemoryStore) ListFundRequests(ctx context.Context, f domain.FundRequestFilter) ([]*domain.FundRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.FundRequest
	for _, r := range s.funding {
		if f.AccountID != "" && r.AccountID != f.AccountID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		c := *r
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// ============================================================
// Auctions & bids
// ============================================================

func (s *MemoryStore) CreateAuction(ctx context.Context, a *domain.Auction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.auctions[a.ID]; ok {
		return fmt.Errorf("auction %s: %w", a.ID, ErrDuplicate)
	}
	s.auctions[a.ID] = a.Clone()
	return nil
}

func (s *MemoryStore) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.auctions[auctionID]
	if !ok {
		return nil, domain.NotFound("auction", auctionID)
	}
	return a.Clone(), nil
}

func (s *MemoryStore) ListAuctions(ctx context.Context, f domain.AuctionFilter) ([]*domain.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Auction
	for _, a := range s.auctions {
		if f.Status != nil && a.Status != *f.Status {
			continue
		}
		if f.FarmerID != nil && a.FarmerID != *f.FarmerID {
			continue
		}
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EndTime.Before(out[j].EndTime) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) ListBids(ctx context.Context, auctionID string) ([]*domain.Bid, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Bid
	for i := len(s.bids) - 1; i >= 0; i-- {
		if b := s.bids[i]; b.AuctionID == auctionID {
			c := *b
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *MemoryStore) AdmitBid(ctx context.Context, bid *domain.Bid, expectedPrice domain.Amount) (*domain.Auction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.auctions[bid.AuctionID]
	if !ok {
		return nil, domain.NotFound("auction", bid.AuctionID)
	}
	if a.Status != domain.AuctionLive || !bid.CreatedAt.Before(a.EndTime) || a.CurrentPrice != expectedPrice {
		return nil, domain.ErrPriceChanged
	}

	a.CurrentPrice = bid.Amount
	a.CurrentBidder = bid.BidderID
	a.CurrentBidderName = bid.BidderName
	a.TotalBids++
	if !a.HasParticipant(bid.BidderID) {
		a.Participants = append(a.Participants, bid.BidderID)
	}
	a.UpdatedAt = bid.CreatedAt

	c := *bid
	s.bids = append(s.bids, &c)
	return a.Clone(), nil
}

func (s *MemoryStore) AdvanceStatuses(ctx context.Context, now time.Time) (domain.StatusRefresh, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var r domain.StatusRefresh
	for _, a := range s.auctions {
		if a.Status == domain.AuctionScheduled && !a.StartTime.After(now) {
			a.Status = domain.AuctionLive
			a.UpdatedAt = now
			r.Started++
		}
		if a.Status == domain.AuctionLive && !a.EndTime.After(now) {
			a.Close(now)
			r.Ended++
		}
	}
	return r, nil
}

func (s *MemoryStore) ListAuctionsAwaitingSettlement(ctx context.Context, limit int) ([]*domain.Auction, error) {
	status := domain.AuctionEnded
	all, err := s.ListAuctions(ctx, domain.AuctionFilter{Status: &status})
	if err != nil {
		return nil, err
	}
	var out []*domain.Auction
	for _, a := range all {
		if a.SettlementStatus != domain.SettlementPending {
			continue
		}
		out = append(out, a)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// ============================================================
// Orders
// ============================================================

func (s *MemoryStore) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	o, ok := s.orders[orderID]
	if !ok {
		return nil, domain.NotFound("order", orderID)
	}
	return o.Clone(), nil
}

func (s *MemoryStore) ListOrders(ctx context.Context, f domain.OrderFilter) ([]*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Order
	for _, o := range s.orders {
		if f.BuyerID != "" && o.BuyerID != f.BuyerID {
			continue
		}
		if f.FarmerID != "" && o.FarmerID != f.FarmerID {
			continue
		}
		if f.EscrowStatus != "" && o.EscrowStatus != f.EscrowStatus {
			continue
		}
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) ListOrdersDueForAutoConfirm(ctx context.Context, now time.Time, limit int) ([]*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*domain.Order
	for _, o := range s.orders {
		if o.EscrowStatus != domain.EscrowHeld || o.AutoConfirmAt.After(now) || o.OrderStatus.Terminal() {
			continue
		}
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AutoConfirmAt.Before(out[j].AutoConfirmAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ============================================================
// Transactions
// ============================================================

type memoryTx struct {
	s        *MemoryStore
	accounts map[string]*domain.Account
	auctions map[string]*domain.Auction
	orders   map[string]*domain.Order
	funding  map[string]*domain.FundRequest
	entries  []*domain.LedgerEntry
}

func (tx *memoryTx) account(accountID string) (*domain.Account, error) {
	if a, ok := tx.accounts[accountID]; ok {
		return a, nil
	}
	a, ok := tx.s.accounts[accountID]
	if !ok {
		return nil, domain.NotFound("account", accountID)
	}
	c := *a
	tx.accounts[accountID] = &c
	return &c, nil
}

func (tx *memoryTx) LockAccounts(ctx context.Context, ids ...string) (map[string]*domain.Account, error) {
	out := make(map[string]*domain.Account, len(ids))
	for _, accountID := range ids {
		a, err := tx.account(accountID)
		if err != nil {
			return nil, err
		}
		c := *a
		out[accountID] = &c
	}
	return out, nil
}

func (tx *memoryTx) PostTransfer(ctx context.Context, t *domain.Transfer) ([]*domain.LedgerEntry, error) {
	if err := validateTransfer(t); err != nil {
		return nil, err
	}
	from, err := tx.account(t.FromAccount)
	if err != nil {
		return nil, err
	}
	to, err := tx.account(t.ToAccount)
	if err != nil {
		return nil, err
	}
	if from.Balance < t.Amount {
		return nil, &domain.InsufficientFundsError{AccountID: from.ID, Required: t.Amount, Available: from.Balance}
	}

	from.Balance -= t.Amount
	from.Version++
	from.UpdatedAt = t.At
	to.Balance += t.Amount
	to.Version++
	to.UpdatedAt = t.At

	debit, credit := transferEntries(t, id.Generate(id.PrefixEntry), id.Generate(id.PrefixEntry))
	tx.entries = append(tx.entries, debit, credit)
	return []*domain.LedgerEntry{debit, credit}, nil
}

func (tx *memoryTx) CreditAccount(ctx context.Context, entry *domain.LedgerEntry) (*domain.Account, error) {
	if err := validateCredit(entry); err != nil {
		return nil, err
	}
	a, err := tx.account(entry.AccountID)
	if err != nil {
		return nil, err
	}
	a.Balance += entry.Amount
	a.Version++
	a.UpdatedAt = entry.CreatedAt
	c := *entry
	tx.entries = append(tx.entries, &c)

	out := *a
	return &out, nil
}

func (tx *memoryTx) GetFundRequestForUpdate(ctx context.Context, requestID string) (*domain.FundRequest, error) {
	r, ok := tx.funding[requestID]
	if !ok {
		r, ok = tx.s.funding[requestID]
	}
	if !ok {
		return nil, domain.NotFound("fund request", requestID)
	}
	c := *r
	return &c, nil
}

func (tx *memoryTx) SaveFundRequest(ctx context.Context, r *domain.FundRequest) error {
	if _, ok := tx.s.funding[r.ID]; !ok {
		return domain.NotFound("fund request", r.ID)
	}
	c := *r
	tx.funding[r.ID] = &c
	return nil
}

func (tx *memoryTx) GetAuctionForUpdate(ctx context.Context, auctionID string) (*domain.Auction, error) {
	if a, ok := tx.auctions[auctionID]; ok {
		return a.Clone(), nil
	}
	a, ok := tx.s.auctions[auctionID]
	if !ok {
		return nil, domain.NotFound("auction", auctionID)
	}
	return a.Clone(), nil
}

func (tx *memoryTx) SaveAuction(ctx context.Context, a *domain.Auction) error {
	if _, ok := tx.s.auctions[a.ID]; !ok {
		return domain.NotFound("auction", a.ID)
	}
	tx.auctions[a.ID] = a.Clone()
	return nil
}

func (tx *memoryTx) CreateOrder(ctx context.Context, o *domain.Order) error {
	for _, existing := range tx.s.orders {
		if existing.AuctionID == o.AuctionID {
			return fmt.Errorf("order for auction %s: %w", o.AuctionID, ErrDuplicate)
		}
	}
	for _, staged := range tx.orders {
		if staged.AuctionID == o.AuctionID && staged.ID != o.ID {
			return fmt.Errorf("order for auction %s: %w", o.AuctionID, ErrDuplicate)
		}
	}
	tx.orders[o.ID] = o.Clone()
	return nil
}

func (tx *memoryTx) GetOrderForUpdate(ctx context.Context, orderID string) (*domain.Order, error) {
	if o, ok := tx.orders[orderID]; ok {
		return o.Clone(), nil
	}
	o, ok := tx.s.orders[orderID]
	if !ok {
		return nil, domain.NotFound("order", orderID)
	}
	return o.Clone(), nil
}

func (tx *memoryTx) SaveOrder(ctx context.Context, o *domain.Order) error {
	_, existing := tx.s.orders[o.ID]
	_, staged := tx.orders[o.ID]
	if !existing && !staged {
		return domain.NotFound("order", o.ID)
	}
	tx.orders[o.ID] = o.Clone()
	return nil
}

func (tx *memoryTx) commit() {
	for k, a := range tx.accounts {
		tx.s.accounts[k] = a
	}
	for k, a := range tx.auctions {
		tx.s.auctions[k] = a
	}
	for k, o := range tx.orders {
		tx.s.orders[k] = o
	}
	for k, r := range tx.funding {
		tx.s.funding[k] = r
	}
	tx.s.entries = append(tx.s.entries, tx.entries...)
}
