package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auction-service/internal/domain"
	"auction-service/internal/lock"
	"auction-service/internal/pub"
	"auction-service/internal/repository"
	"auction-service/pkg/utils/id"

	"go.uber.org/zap"
)

type SettlementOutcome string

const (
	OutcomeEscrowed          SettlementOutcome = "escrowed"
	OutcomeNoWinner          SettlementOutcome = "no_winner"
	OutcomeInsufficientFunds SettlementOutcome = "failed_insufficient_funds"
)

const defaultRefundReason = "Order cancelled"

type SettlementConfig struct {
	AutoConfirmAfter time.Duration
	// LockPoll is how often a waiting caller (the sweeper) retries a held lock.
	LockPoll time.Duration
}

// SettlementResult is returned by phase one. On a funding shortfall it is
// returned together with *domain.InsufficientFundsError.
type SettlementResult struct {
	Outcome SettlementOutcome     `json:"outcome"`
	Auction *domain.Auction       `json:"auction"`
	Order   *domain.Order         `json:"order,omitempty"`
	Entries []*domain.LedgerEntry `json:"entries,omitempty"`
}

// EscrowResult is returned by phases two and three.
type EscrowResult struct {
	Order   *domain.Order         `json:"order"`
	Auction *domain.Auction       `json:"auction,omitempty"`
	Entries []*domain.LedgerEntry `json:"entries"`
}

type PendingSettlementReport struct {
	Escrowed int `json:"escrowed"`
	NoWinner int `json:"no_winner"`
	Failed   int `json:"failed"`
	Skipped  int `json:"skipped"`
}

// SettlementUsecase moves auction proceeds buyer -> escrow -> farmer, or back
// to the buyer on refund. Each phase runs under an exclusive lock and inside
// one store transaction; notifications go out only after commit.
type SettlementUsecase struct {
	store    repository.Store
	locker   lock.Locker
	ledger   *LedgerUsecase
	notifier pub.Broadcaster
	escrow   domain.EscrowAccount
	cfg      SettlementConfig
	logger   *zap.Logger
	now      func() time.Time
}

func NewSettlementUsecase(
	store repository.Store,
	locker lock.Locker,
	ledger *LedgerUsecase,
	notifier pub.Broadcaster,
	escrow domain.EscrowAccount,
	cfg SettlementConfig,
	logger *zap.Logger,
	opts ...Option,
) *SettlementUsecase {
	o := buildOptions(opts)
	if cfg.AutoConfirmAfter <= 0 {
		cfg.AutoConfirmAfter = 7 * 24 * time.Hour
	}
	if cfg.LockPoll <= 0 {
		cfg.LockPoll = 100 * time.Millisecond
	}
	return &SettlementUsecase{
		store:    store,
		locker:   locker,
		ledger:   ledger,
		notifier: notifier,
		escrow:   escrow,
		cfg:      cfg,
		logger:   logger,
		now:      o.now,
	}
}

// Ready reports whether an escrow account was resolved at startup.
func (uc *SettlementUsecase) Ready() bool {
	return uc.escrow.Configured()
}

func (uc *SettlementUsecase) Escrow() domain.EscrowAccount {
	return uc.escrow
}

func auctionLockKey(auctionID string) string { return "settlement:auction:" + auctionID }
func orderLockKey(orderID string) string     { return "settlement:order:" + orderID }

// ============================================================
// Phase 1: hold
// ============================================================

// SettleAuctionEnd converts an ended auction into a funded escrow hold.
func (uc *SettlementUsecase) SettleAuctionEnd(ctx context.Context, auctionID string) (res *SettlementResult, err error) {
	defer uc.observe(phaseHold, time.Now(), &err)

	if !uc.escrow.Configured() {
		return nil, domain.ErrEscrowAccountMissing
	}
	key := auctionLockKey(auctionID)
	lease, err := uc.acquire(ctx, key, false)
	if err != nil {
		return nil, err
	}
	defer uc.release(lease, key)

	return uc.settleLocked(ctx, auctionID)
}

// RetrySettlement resets a failed or pending settlement to pending and runs
// phase one again. Admin only.
func (uc *SettlementUsecase) RetrySettlement(ctx context.Context, auctionID string, actor domain.Actor) (res *SettlementResult, err error) {
	defer uc.observe(phaseHold, time.Now(), &err)

	if !actor.Role.Privileged() {
		return nil, fmt.Errorf("%w: only admins can retry settlement", domain.ErrForbidden)
	}
	if !uc.escrow.Configured() {
		return nil, domain.ErrEscrowAccountMissing
	}
	key := auctionLockKey(auctionID)
	lease, err := uc.acquire(ctx, key, false)
	if err != nil {
		return nil, err
	}
	defer uc.release(lease, key)

	err = uc.store.RunInTx(ctx, func(tx repository.Tx) error {
		a, err := tx.GetAuctionForUpdate(ctx, auctionID)
		if err != nil {
			return err
		}
		switch {
		case a.SettlementStatus == domain.SettlementFailedFunds || a.SettlementStatus == domain.SettlementPending:
		case a.SettlementStatus.Settled():
			return &domain.StateError{Entity: "auction", ID: a.ID, Status: string(a.SettlementStatus), Kind: domain.ErrAlreadySettled}
		default:
			return &domain.StateError{Entity: "auction", ID: a.ID, Status: string(a.SettlementStatus), Want: "failed_insufficient_funds or pending"}
		}
		a.SettlementStatus = domain.SettlementPending
		a.UpdatedAt = uc.now()
		return tx.SaveAuction(ctx, a)
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("settlement reset for retry",
		zap.String("auction_id", auctionID),
		zap.String("admin_id", actor.ID))
	return uc.settleLocked(ctx, auctionID)
}

func (uc *SettlementUsecase) settleLocked(ctx context.Context, auctionID string) (*SettlementResult, error) {
	now := uc.now()
	var (
		res       SettlementResult
		shortfall *domain.InsufficientFundsError
	)

	err := uc.store.RunInTx(ctx, func(tx repository.Tx) error {
		a, err := tx.GetAuctionForUpdate(ctx, auctionID)
		if err != nil {
			return err
		}
		if err := checkSettleable(a); err != nil {
			return err
		}

		if a.Winner == "" {
			a.SettlementStatus = domain.SettlementNoWinner
			a.SettledAt = &now
			a.UpdatedAt = now
			res = SettlementResult{Outcome: OutcomeNoWinner, Auction: a}
			return tx.SaveAuction(ctx, a)
		}
		if !a.WinningBidAmount.IsPositive() {
			return fmt.Errorf("%w: auction %s has a winner but no winning amount", domain.ErrInvalidState, a.ID)
		}

		if a.Winner == uc.escrow.ID {
			return fmt.Errorf("%w: auction %s was won by the escrow account", domain.ErrInvalidState, a.ID)
		}

		accounts, err := tx.LockAccounts(ctx, a.Winner, uc.escrow.ID)
		if err != nil {
			return uc.escrowLookupErr(err)
		}
		buyer := accounts[a.Winner]
		if buyer.Balance < a.WinningBidAmount {
			shortfall = &domain.InsufficientFundsError{
				AccountID: buyer.ID,
				Required:  a.WinningBidAmount,
				Available: buyer.Balance,
			}
			a.SettlementStatus = domain.SettlementFailedFunds
			a.UpdatedAt = now
			res = SettlementResult{Outcome: OutcomeInsufficientFunds, Auction: a}
			return tx.SaveAuction(ctx, a)
		}

		orderID := id.Generate(id.PrefixOrder)
		entries, err := tx.PostTransfer(ctx, &domain.Transfer{
			ID:           id.Generate(id.PrefixTransfer),
			FromAccount:  a.Winner,
			ToAccount:    uc.escrow.ID,
			Amount:       a.WinningBidAmount,
			DebitSource:  domain.SourceAuctionSettlement,
			CreditSource: domain.SourceEscrowReceived,
			Metadata: map[string]string{
				"auction_id": a.ID,
				"order_id":   orderID,
				"product":    a.ProductName,
				"note":       "Payment held in escrow",
			},
			At: now,
		})
		if err != nil {
			return uc.escrowLookupErr(err)
		}

		order := domain.NewEscrowOrder(orderID, a, uc.cfg.AutoConfirmAfter, now)
		if err := tx.CreateOrder(ctx, order); err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				return &domain.StateError{Entity: "auction", ID: a.ID, Status: "already has an order", Kind: domain.ErrAlreadySettled}
			}
			return err
		}

		a.SettlementStatus = domain.SettlementInEscrow
		a.OrderID = order.ID
		a.SettledAt = &now
		a.UpdatedAt = now
		if err := tx.SaveAuction(ctx, a); err != nil {
			return err
		}
		res = SettlementResult{Outcome: OutcomeEscrowed, Auction: a, Order: order, Entries: entries}
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.afterHold(ctx, &res, shortfall)
	if shortfall != nil {
		return &res, shortfall
	}
	return &res, nil
}

func checkSettleable(a *domain.Auction) error {
	if a.Status != domain.AuctionEnded {
		return &domain.StateError{Entity: "auction", ID: a.ID, Status: string(a.Status), Want: string(domain.AuctionEnded)}
	}
	switch {
	case a.SettlementStatus == domain.SettlementPending:
		return nil
	case a.SettlementStatus.Settled():
		return &domain.StateError{Entity: "auction", ID: a.ID, Status: string(a.SettlementStatus), Kind: domain.ErrAlreadySettled}
	default:
		return &domain.StateError{Entity: "auction", ID: a.ID, Status: string(a.SettlementStatus), Want: string(domain.SettlementPending)}
	}
}

func (uc *SettlementUsecase) afterHold(ctx context.Context, res *SettlementResult, shortfall *domain.InsufficientFundsError) {
	a := res.Auction
	switch res.Outcome {
	case OutcomeNoWinner:
		uc.logger.Info("auction closed without winner", zap.String("auction_id", a.ID))

	case OutcomeInsufficientFunds:
		uc.logger.Warn("settlement failed: insufficient funds",
			zap.String("auction_id", a.ID),
			zap.String("buyer_id", a.Winner),
			zap.String("required", shortfall.Required.String()),
			zap.String("available", shortfall.Available.String()))
		uc.notify(ctx, a.Winner, domain.NotifySettlementFailed, domain.Notice{
			Title: "Payment Failed",
			Message: fmt.Sprintf("Insufficient balance to pay for %s. Required: %s, Available: %s. Please add funds.",
				a.ProductName, shortfall.Required, shortfall.Available),
			AuctionID: a.ID,
			Required:  shortfall.Required,
			Available: shortfall.Available,
		})

	case OutcomeEscrowed:
		o := res.Order
		uc.ledger.InvalidateBalances(ctx, o.BuyerID, uc.escrow.ID)
		uc.logger.Info("auction settled into escrow",
			zap.String("auction_id", a.ID),
			zap.String("order_id", o.ID),
			zap.String("buyer_id", o.BuyerID),
			zap.String("amount", o.Amount.String()))
		uc.notify(ctx, o.BuyerID, domain.NotifyOrderPlaced, domain.Notice{
			Title: "Auction Won - Payment Held in Escrow",
			Message: fmt.Sprintf("Your payment of %s for %s is held in escrow. Confirm delivery to release it to the farmer.",
				o.Amount, o.ProductName),
			AuctionID: a.ID,
			OrderID:   o.ID,
			Amount:    o.Amount,
		})
		uc.notify(ctx, o.FarmerID, domain.NotifyOrderPlaced, domain.Notice{
			Title: "Auction Sold - Payment in Escrow",
			Message: fmt.Sprintf("%s sold for %s. Payment will be released after delivery is confirmed.",
				o.ProductName, o.Amount),
			AuctionID: a.ID,
			OrderID:   o.ID,
			Amount:    o.Amount,
		})
	}
	uc.broadcast(ctx, domain.AuctionTopic(a.ID), domain.EventAuctionUpdated, a)
}

// ============================================================
// Phase 2: release
// ============================================================

// ConfirmDelivery releases held funds to the farmer. Only the order's buyer
// or an admin/system actor may confirm.
func (uc *SettlementUsecase) ConfirmDelivery(ctx context.Context, orderID string, actor domain.Actor) (*EscrowResult, error) {
	return uc.releaseEscrow(ctx, orderID, actor, false, "Delivery confirmed")
}

// AutoConfirm is phase two run by the sweeper as the system actor. It waits
// for the order lock instead of failing fast.
func (uc *SettlementUsecase) AutoConfirm(ctx context.Context, orderID string) (*EscrowResult, error) {
	return uc.releaseEscrow(ctx, orderID, uc.escrow.Actor(), true, "Auto-confirmed after grace period")
}

func (uc *SettlementUsecase) releaseEscrow(ctx context.Context, orderID string, actor domain.Actor, wait bool, note string) (res *EscrowResult, err error) {
	defer uc.observe(phaseRelease, time.Now(), &err)

	if !uc.escrow.Configured() {
		return nil, domain.ErrEscrowAccountMissing
	}
	if actor.ID == "" {
		return nil, fmt.Errorf("%w: confirmer identity required", domain.ErrForbidden)
	}
	key := orderLockKey(orderID)
	lease, err := uc.acquire(ctx, key, wait)
	if err != nil {
		return nil, err
	}
	defer uc.release(lease, key)

	now := uc.now()
	var out EscrowResult
	err = uc.store.RunInTx(ctx, func(tx repository.Tx) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if actor.ID != o.BuyerID && !actor.Role.Privileged() {
			return fmt.Errorf("%w: only the buyer or an admin can confirm delivery of order %s", domain.ErrForbidden, o.ID)
		}
		if err := requireHeld(o); err != nil {
			return err
		}

		entries, err := tx.PostTransfer(ctx, &domain.Transfer{
			ID:           id.Generate(id.PrefixTransfer),
			FromAccount:  uc.escrow.ID,
			ToAccount:    o.FarmerID,
			Amount:       o.Amount,
			DebitSource:  domain.SourceEscrowRelease,
			CreditSource: domain.SourceAuctionPayment,
			Metadata: map[string]string{
				"auction_id":   o.AuctionID,
				"order_id":     o.ID,
				"confirmed_by": actor.ID,
				"role":         string(actor.Role),
			},
			At: now,
		})
		if err != nil {
			return uc.escrowLookupErr(err)
		}

		o.MarkReleased(actor, note, now)
		if err := tx.SaveOrder(ctx, o); err != nil {
			return err
		}
		out = EscrowResult{Order: o, Entries: entries}

		if o.AuctionID == "" {
			return nil
		}
		a, err := tx.GetAuctionForUpdate(ctx, o.AuctionID)
		if err != nil {
			return err
		}
		a.SettlementStatus = domain.SettlementCompleted
		a.PaymentReleasedAt = &now
		a.UpdatedAt = now
		out.Auction = a
		return tx.SaveAuction(ctx, a)
	})
	if err != nil {
		return nil, err
	}

	o := out.Order
	uc.ledger.InvalidateBalances(ctx, uc.escrow.ID, o.FarmerID)
	uc.logger.Info("escrow released",
		zap.String("order_id", o.ID),
		zap.String("farmer_id", o.FarmerID),
		zap.String("amount", o.Amount.String()),
		zap.String("confirmed_by", actor.ID),
		zap.String("role", string(actor.Role)))

	uc.notify(ctx, o.FarmerID, domain.NotifyPaymentReceived, domain.Notice{
		Title:     "Payment Received",
		Message:   fmt.Sprintf("Payment of %s for %s has been released to your wallet.", o.Amount, o.ProductName),
		AuctionID: o.AuctionID,
		OrderID:   o.ID,
		Amount:    o.Amount,
	})
	uc.notify(ctx, o.BuyerID, domain.NotifyPaymentReleased, domain.Notice{
		Title:     "Delivery Confirmed",
		Message:   fmt.Sprintf("Payment of %s for %s has been released to the farmer.", o.Amount, o.ProductName),
		AuctionID: o.AuctionID,
		OrderID:   o.ID,
		Amount:    o.Amount,
	})
	if out.Auction != nil {
		uc.broadcast(ctx, domain.AuctionTopic(out.Auction.ID), domain.EventAuctionUpdated, out.Auction)
	}
	return &out, nil
}

// ============================================================
// Phase 3: refund
// ============================================================

// Refund returns held funds to the buyer. Admin only.
func (uc *SettlementUsecase) Refund(ctx context.Context, orderID string, actor domain.Actor, reason string) (res *EscrowResult, err error) {
	defer uc.observe(phaseRefund, time.Now(), &err)

	if !actor.Role.Privileged() {
		return nil, fmt.Errorf("%w: only admins can refund escrow", domain.ErrForbidden)
	}
	if !uc.escrow.Configured() {
		return nil, domain.ErrEscrowAccountMissing
	}
	if reason == "" {
		reason = defaultRefundReason
	}
	key := orderLockKey(orderID)
	lease, err := uc.acquire(ctx, key, false)
	if err != nil {
		return nil, err
	}
	defer uc.release(lease, key)

	now := uc.now()
	var out EscrowResult
	err = uc.store.RunInTx(ctx, func(tx repository.Tx) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if err := requireHeld(o); err != nil {
			return err
		}

		entries, err := tx.PostTransfer(ctx, &domain.Transfer{
			ID:           id.Generate(id.PrefixTransfer),
			FromAccount:  uc.escrow.ID,
			ToAccount:    o.BuyerID,
			Amount:       o.Amount,
			DebitSource:  domain.SourceEscrowRefund,
			CreditSource: domain.SourceAuctionRefund,
			Metadata: map[string]string{
				"auction_id":  o.AuctionID,
				"order_id":    o.ID,
				"refunded_by": actor.ID,
				"reason":      reason,
			},
			At: now,
		})
		if err != nil {
			return uc.escrowLookupErr(err)
		}

		o.MarkRefunded(actor, reason, now)
		if err := tx.SaveOrder(ctx, o); err != nil {
			return err
		}
		out = EscrowResult{Order: o, Entries: entries}

		if o.AuctionID == "" {
			return nil
		}
		a, err := tx.GetAuctionForUpdate(ctx, o.AuctionID)
		if err != nil {
			return err
		}
		a.SettlementStatus = domain.SettlementRefunded
		a.UpdatedAt = now
		out.Auction = a
		return tx.SaveAuction(ctx, a)
	})
	if err != nil {
		return nil, err
	}

	o := out.Order
	uc.ledger.InvalidateBalances(ctx, uc.escrow.ID, o.BuyerID)
	uc.logger.Info("escrow refunded",
		zap.String("order_id", o.ID),
		zap.String("buyer_id", o.BuyerID),
		zap.String("amount", o.Amount.String()),
		zap.String("admin_id", actor.ID),
		zap.String("reason", reason))

	uc.notify(ctx, o.BuyerID, domain.NotifyRefundProcessed, domain.Notice{
		Title:     "Refund Processed",
		Message:   fmt.Sprintf("Your payment of %s has been refunded. Reason: %s", o.Amount, reason),
		AuctionID: o.AuctionID,
		OrderID:   o.ID,
		Amount:    o.Amount,
	})
	uc.notify(ctx, o.FarmerID, domain.NotifyOrderCancelled, domain.Notice{
		Title:     "Order Cancelled",
		Message:   fmt.Sprintf("Order for %s has been cancelled and refunded. Reason: %s", o.ProductName, reason),
		AuctionID: o.AuctionID,
		OrderID:   o.ID,
		Amount:    o.Amount,
	})
	if out.Auction != nil {
		uc.broadcast(ctx, domain.AuctionTopic(out.Auction.ID), domain.EventAuctionUpdated, out.Auction)
	}
	return &out, nil
}

func requireHeld(o *domain.Order) error {
	switch o.EscrowStatus {
	case domain.EscrowHeld:
		return nil
	case domain.EscrowReleased, domain.EscrowRefunded:
		return &domain.TerminalStateError{OrderID: o.ID, Status: o.EscrowStatus}
	default:
		return &domain.StateError{Entity: "order", ID: o.ID, Status: string(o.EscrowStatus), Want: string(domain.EscrowHeld)}
	}
}

// ============================================================
// Queries & batch
// ============================================================

func (uc *SettlementUsecase) GetOrder(ctx context.Context, orderID string, actor domain.Actor) (*domain.Order, error) {
	o, err := uc.store.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !o.CanView(actor) {
		return nil, fmt.Errorf("%w: not a party to order %s", domain.ErrForbidden, orderID)
	}
	return o, nil
}

// OrderScope selects whose orders ListOrders returns.
type OrderScope int

const (
	ScopeBuyer  OrderScope = iota // orders the actor bought
	ScopeFarmer                   // orders for the actor's produce
	ScopeAll                      // every order, privileged only
)

// ListOrders lists orders newest first. Buyer and farmer scopes pin the
// filter to the actor; ScopeAll honours the caller's filter.
func (uc *SettlementUsecase) ListOrders(ctx context.Context, actor domain.Actor, scope OrderScope, f domain.OrderFilter) ([]*domain.Order, error) {
	switch f.EscrowStatus {
	case "", domain.EscrowNone, domain.EscrowHeld, domain.EscrowReleased, domain.EscrowRefunded:
	default:
		return nil, fmt.Errorf("%w: unknown escrow status %q", domain.ErrInvalidInput, f.EscrowStatus)
	}
	switch scope {
	case ScopeBuyer:
		f.BuyerID, f.FarmerID = actor.ID, ""
	case ScopeFarmer:
		f.BuyerID, f.FarmerID = "", actor.ID
	case ScopeAll:
		if !actor.Role.Privileged() {
			return nil, fmt.Errorf("%w: only admins can list all orders", domain.ErrForbidden)
		}
	default:
		return nil, fmt.Errorf("%w: unknown order scope", domain.ErrInvalidInput)
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	return uc.store.ListOrders(ctx, f)
}

// DueForAutoConfirm lists held orders past their auto-confirm date.
func (uc *SettlementUsecase) DueForAutoConfirm(ctx context.Context, limit int) ([]*domain.Order, error) {
	return uc.store.ListOrdersDueForAutoConfirm(ctx, uc.now(), limit)
}

// SettlePending runs phase one for ended auctions that were never settled,
// e.g. those closed by the clock rather than an explicit end.
func (uc *SettlementUsecase) SettlePending(ctx context.Context, limit int) (PendingSettlementReport, error) {
	var report PendingSettlementReport
	if !uc.escrow.Configured() {
		return report, domain.ErrEscrowAccountMissing
	}
	auctions, err := uc.store.ListAuctionsAwaitingSettlement(ctx, limit)
	if err != nil {
		return report, err
	}

	for _, a := range auctions {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		res, err := uc.SettleAuctionEnd(ctx, a.ID)
		switch {
		case err == nil && res.Outcome == OutcomeNoWinner:
			report.NoWinner++
		case err == nil:
			report.Escrowed++
		case isContention(err):
			report.Skipped++
			uc.logger.Debug("pending settlement already handled", zap.String("auction_id", a.ID), zap.Error(err))
		default:
			report.Failed++
			if !errors.Is(err, domain.ErrInsufficientFunds) {
				uc.logger.Error("pending settlement failed", zap.String("auction_id", a.ID), zap.Error(err))
			}
		}
	}
	return report, nil
}

// ============================================================
// Helpers
// ============================================================

func (uc *SettlementUsecase) acquire(ctx context.Context, key string, wait bool) (lock.Lease, error) {
	var (
		lease lock.Lease
		err   error
	)
	if wait {
		lease, err = lock.AcquireWait(ctx, uc.locker, key, uc.cfg.LockPoll)
	} else {
		lease, err = uc.locker.TryAcquire(ctx, key)
	}
	if err != nil {
		if errors.Is(err, lock.ErrLockHeld) {
			return nil, fmt.Errorf("%w: %s", domain.ErrSettlementInProgress, key)
		}
		return nil, fmt.Errorf("failed to acquire %s: %w", key, err)
	}
	return lease, nil
}

// release runs on a fresh context so a cancelled request still frees the lock.
func (uc *SettlementUsecase) release(lease lock.Lease, key string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := lease.Release(ctx); err != nil {
		uc.logger.Warn("failed to release settlement lock", zap.String("key", key), zap.Error(err))
	}
}

// escrowLookupErr turns a missing escrow account row into the fatal
// configuration error rather than a plain not-found.
func (uc *SettlementUsecase) escrowLookupErr(err error) error {
	var nf *domain.NotFoundError
	if errors.As(err, &nf) && nf.ID == uc.escrow.ID {
		return fmt.Errorf("%w: %v", domain.ErrEscrowAccountMissing, err)
	}
	return err
}

func (uc *SettlementUsecase) notify(ctx context.Context, recipientID, kind string, payload any) {
	if err := uc.notifier.Notify(ctx, recipientID, kind, payload); err != nil {
		uc.logger.Warn("notification failed", zap.String("recipient", recipientID), zap.String("kind", kind), zap.Error(err))
	}
}

func (uc *SettlementUsecase) broadcast(ctx context.Context, topic, kind string, payload any) {
	if err := uc.notifier.Broadcast(ctx, topic, kind, payload); err != nil {
		uc.logger.Warn("broadcast failed", zap.String("topic", topic), zap.String("kind", kind), zap.Error(err))
	}
}

func (uc *SettlementUsecase) observe(phase string, start time.Time, err *error) {
	settlementOps.WithLabelValues(phase, outcomeLabel(*err)).Inc()
	settlementDuration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
}
