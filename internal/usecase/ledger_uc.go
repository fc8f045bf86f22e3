package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"auction-service/internal/domain"
	"auction-service/internal/repository"
	"auction-service/pkg/utils/id"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const accountCacheTTL = 30 * time.Second

type LedgerUsecase struct {
	store  repository.Store
	cache  redis.UniversalClient
	logger *zap.Logger
	now    func() time.Time
}

// NewLedgerUsecase builds the account/ledger service. cache may be nil.
func NewLedgerUsecase(store repository.Store, cache redis.UniversalClient, logger *zap.Logger, opts ...Option) *LedgerUsecase {
	o := buildOptions(opts)
	return &LedgerUsecase{
		store:  store,
		cache:  cache,
		logger: logger,
		now:    o.now,
	}
}

type OpenAccountInput struct {
	ID             string        `json:"id"`
	DisplayName    string        `json:"display_name"`
	Email          string        `json:"email"`
	Role           domain.Role   `json:"role"`
	OpeningBalance domain.Amount `json:"opening_balance"`
}

// OpenAccount creates a wallet. A positive opening balance is booked as a
// top-up entry so the balance still equals the sum of the account's entries.
func (uc *LedgerUsecase) OpenAccount(ctx context.Context, in OpenAccountInput) (*domain.Account, error) {
	if !in.Role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", domain.ErrInvalidInput, in.Role)
	}
	if in.OpeningBalance < 0 {
		return nil, fmt.Errorf("%w: opening balance cannot be negative", domain.ErrInvalidInput)
	}
	if in.ID == "" {
		in.ID = id.Generate(id.PrefixAccount)
	}
	if in.DisplayName == "" {
		in.DisplayName = in.ID
	}

	now := uc.now()
	acc := &domain.Account{
		ID:          in.ID,
		DisplayName: in.DisplayName,
		Email:       strings.ToLower(strings.TrimSpace(in.Email)),
		Role:        in.Role,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := uc.store.CreateAccount(ctx, acc); err != nil {
		return nil, fmt.Errorf("failed to open account: %w", err)
	}
	if in.OpeningBalance > 0 {
		return uc.Deposit(ctx, acc.ID, in.OpeningBalance, "opening balance")
	}
	return acc, nil
}

func (uc *LedgerUsecase) GetAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	key := accountCacheKey(accountID)
	if uc.cache != nil {
		if val, err := uc.cache.Get(ctx, key).Result(); err == nil {
			var acc domain.Account
			if jsonErr := json.Unmarshal([]byte(val), &acc); jsonErr == nil {
				return &acc, nil
			}
		}
	}

	acc, err := uc.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if uc.cache != nil {
		if data, err := json.Marshal(acc); err == nil {
			_ = uc.cache.Set(ctx, key, data, accountCacheTTL).Err()
		}
	}
	return acc, nil
}

func (uc *LedgerUsecase) GetStatement(ctx context.Context, accountID string, limit int) ([]*domain.LedgerEntry, error) {
	if _, err := uc.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return uc.store.ListEntries(ctx, accountID, limit)
}

// Deposit credits external funds. It is the only single-sided entry.
func (uc *LedgerUsecase) Deposit(ctx context.Context, accountID string, amount domain.Amount, note string) (*domain.Account, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: deposit amount must be positive", domain.ErrInvalidInput)
	}
	entry := &domain.LedgerEntry{
		ID:         id.Generate(id.PrefixEntry),
		TransferID: id.Generate(id.PrefixTransfer),
		AccountID:  accountID,
		Direction:  domain.DirectionCredit,
		Amount:     amount,
		Source:     domain.SourceWalletTopup,
		Metadata:   map[string]string{"note": note},
		CreatedAt:  uc.now(),
	}
	acc, err := uc.store.Deposit(ctx, entry)
	if err != nil {
		return nil, fmt.Errorf("failed to deposit: %w", err)
	}
	uc.InvalidateBalances(ctx, accountID)

	uc.logger.Info("wallet topped up",
		zap.String("account_id", accountID),
		zap.String("amount", amount.String()),
		zap.String("balance", acc.Balance.String()))
	return acc, nil
}

// RequestFunds records a pending top-up request. Nothing is credited until
// an admin approves it.
func (uc *LedgerUsecase) RequestFunds(ctx context.Context, actor domain.Actor, amount domain.Amount, note string) (*domain.FundRequest, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("%w: valid amount is required", domain.ErrInvalidInput)
	}
	now := uc.now()
	req := &domain.FundRequest{
		ID:        id.Generate(id.PrefixFundRequest),
		AccountID: actor.ID,
		Amount:    amount,
		Note:      strings.TrimSpace(note),
		Status:    domain.FundRequestPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := uc.store.CreateFundRequest(ctx, req); err != nil {
		return nil, fmt.Errorf("failed to submit fund request: %w", err)
	}
	uc.logger.Info("fund request submitted",
		zap.String("request_id", req.ID),
		zap.String("account_id", req.AccountID),
		zap.String("amount", amount.String()))
	return req, nil
}

// ListFundRequests shows admins every request and everyone else their own.
func (uc *LedgerUsecase) ListFundRequests(ctx context.Context, actor domain.Actor, f domain.FundRequestFilter) ([]*domain.FundRequest, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown fund request status %q", domain.ErrInvalidInput, f.Status)
	}
	if !actor.Role.Privileged() {
		f.AccountID = actor.ID
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	return uc.store.ListFundRequests(ctx, f)
}

// ApproveFundRequest marks a pending request approved and credits the
// wallet in the same transaction.
func (uc *LedgerUsecase) ApproveFundRequest(ctx context.Context, admin domain.Actor, requestID string) (*domain.FundRequest, *domain.Account, error) {
	if !admin.Role.Privileged() {
		return nil, nil, fmt.Errorf("%w: only admins can approve fund requests", domain.ErrForbidden)
	}
	now := uc.now()
	var (
		req *domain.FundRequest
		acc *domain.Account
	)
	err := uc.store.RunInTx(ctx, func(tx repository.Tx) error {
		r, err := tx.GetFundRequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if err := r.Review(domain.FundRequestApproved, admin.ID, now); err != nil {
			return err
		}
		entry := &domain.LedgerEntry{
			ID:         id.Generate(id.PrefixEntry),
			TransferID: id.Generate(id.PrefixTransfer),
			AccountID:  r.AccountID,
			Direction:  domain.DirectionCredit,
			Amount:     r.Amount,
			Source:     domain.SourceAdminApproval,
			Metadata:   map[string]string{"request_id": r.ID, "approved_by": admin.ID},
			CreatedAt:  now,
		}
		if acc, err = tx.CreditAccount(ctx, entry); err != nil {
			return err
		}
		r.EntryID = entry.ID
		req = r
		return tx.SaveFundRequest(ctx, r)
	})
	if err != nil {
		return nil, nil, err
	}
	uc.InvalidateBalances(ctx, req.AccountID)

	uc.logger.Info("fund request approved",
		zap.String("request_id", req.ID),
		zap.String("account_id", req.AccountID),
		zap.String("admin_id", admin.ID),
		zap.String("amount", req.Amount.String()),
		zap.String("balance", acc.Balance.String()))
	return req, acc, nil
}

// RejectFundRequest closes a pending request without moving money.
func (uc *LedgerUsecase) RejectFundRequest(ctx context.Context, admin domain.Actor, requestID, reason string) (*domain.FundRequest, error) {
	if !admin.Role.Privileged() {
		return nil, fmt.Errorf("%w: only admins can reject fund requests", domain.ErrForbidden)
	}
	if reason = strings.TrimSpace(reason); reason == "" {
		reason = "Rejected by admin"
	}
	now := uc.now()
	var req *domain.FundRequest
	err := uc.store.RunInTx(ctx, func(tx repository.Tx) error {
		r, err := tx.GetFundRequestForUpdate(ctx, requestID)
		if err != nil {
			return err
		}
		if err := r.Review(domain.FundRequestRejected, admin.ID, now); err != nil {
			return err
		}
		r.Note = reason
		req = r
		return tx.SaveFundRequest(ctx, r)
	})
	if err != nil {
		return nil, err
	}
	uc.logger.Info("fund request rejected",
		zap.String("request_id", req.ID),
		zap.String("admin_id", admin.ID),
		zap.String("reason", reason))
	return req, nil
}

// EnsureEscrowAccount creates the system escrow account if it does not exist.
func (uc *LedgerUsecase) EnsureEscrowAccount(ctx context.Context, accountID, email string) (*domain.Account, error) {
	if accountID != "" {
		if acc, err := uc.store.GetAccount(ctx, accountID); err == nil {
			return acc, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	} else if email != "" {
		if acc, err := uc.store.GetAccountByEmail(ctx, strings.ToLower(email)); err == nil {
			return acc, nil
		} else if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
	}

	acc, err := uc.OpenAccount(ctx, OpenAccountInput{
		ID:          accountID,
		DisplayName: "Escrow",
		Email:       email,
		Role:        domain.RoleSystem,
	})
	if err != nil {
		return nil, err
	}
	uc.logger.Info("escrow account created", zap.String("account_id", acc.ID))
	return acc, nil
}

// ResolveEscrowAccount looks the escrow account up once, by ID if given and
// by email otherwise. The account must be admin or system owned.
func (uc *LedgerUsecase) ResolveEscrowAccount(ctx context.Context, accountID, email string) (domain.EscrowAccount, error) {
	var (
		acc *domain.Account
		err error
	)
	switch {
	case accountID != "":
		acc, err = uc.store.GetAccount(ctx, accountID)
	case email != "":
		acc, err = uc.store.GetAccountByEmail(ctx, strings.ToLower(email))
	default:
		return domain.EscrowAccount{}, domain.ErrEscrowAccountMissing
	}
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.EscrowAccount{}, fmt.Errorf("%w: %v", domain.ErrEscrowAccountMissing, err)
		}
		return domain.EscrowAccount{}, err
	}
	if !acc.Role.Privileged() {
		return domain.EscrowAccount{}, fmt.Errorf("%w: account %s has role %s", domain.ErrEscrowAccountMissing, acc.ID, acc.Role)
	}
	return domain.EscrowAccount{ID: acc.ID}, nil
}

// InvalidateBalances drops cached accounts after a movement.
func (uc *LedgerUsecase) InvalidateBalances(ctx context.Context, accountIDs ...string) {
	if uc.cache == nil || len(accountIDs) == 0 {
		return
	}
	keys := make([]string, 0, len(accountIDs))
	for _, a := range accountIDs {
		keys = append(keys, accountCacheKey(a))
	}
	if err := uc.cache.Del(ctx, keys...).Err(); err != nil {
		uc.logger.Warn("failed to invalidate cached balances", zap.Strings("accounts", accountIDs), zap.Error(err))
	}
}

func accountCacheKey(accountID string) string {
	return "auction:account:" + accountID
}
