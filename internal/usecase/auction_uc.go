package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"auction-service/internal/domain"
	"auction-service/internal/pub"
	"auction-service/internal/repository"
	"auction-service/pkg/utils/id"

	"go.uber.org/zap"
)

const (
	defaultMaxBidAttempts = 5
	defaultSettleTimeout  = 30 * time.Second
	defaultListLimit      = 100
)

// Settler is the part of the settlement engine an explicit auction end
// triggers.
type Settler interface {
	SettleAuctionEnd(ctx context.Context, auctionID string) (*SettlementResult, error)
}

type AuctionConfig struct {
	DefaultMinBidIncrement domain.Amount
	MaxBidAttempts         int
	SettleTimeout          time.Duration
}

type BidResult struct {
	Auction *domain.Auction `json:"auction"`
	Bid     *domain.Bid     `json:"bid"`
}

type AuctionUsecase struct {
	store    repository.Store
	settler  Settler
	notifier pub.Broadcaster
	cfg      AuctionConfig
	logger   *zap.Logger
	now      func() time.Time

	followUps sync.WaitGroup
}

// NewAuctionUsecase builds the lifecycle manager. settler may be nil, in
// which case ended auctions wait for the pending-settlement sweep.
func NewAuctionUsecase(
	store repository.Store,
	settler Settler,
	notifier pub.Broadcaster,
	cfg AuctionConfig,
	logger *zap.Logger,
	opts ...Option,
) *AuctionUsecase {
	o := buildOptions(opts)
	if cfg.MaxBidAttempts <= 0 {
		cfg.MaxBidAttempts = defaultMaxBidAttempts
	}
	if cfg.SettleTimeout <= 0 {
		cfg.SettleTimeout = defaultSettleTimeout
	}
	if cfg.DefaultMinBidIncrement <= 0 {
		cfg.DefaultMinBidIncrement = domain.MustAmount("10")
	}
	return &AuctionUsecase{
		store:    store,
		settler:  settler,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		now:      o.now,
	}
}

// CreateAuction lists a lot for the calling farmer.
func (uc *AuctionUsecase) CreateAuction(ctx context.Context, actor domain.Actor, in domain.CreateAuctionInput) (*domain.Auction, error) {
	if actor.Role != domain.RoleFarmer && actor.Role != domain.RoleAdmin {
		return nil, fmt.Errorf("%w: only farmers can create auctions", domain.ErrForbidden)
	}
	seller, err := uc.store.GetAccount(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	now := uc.now()
	in.ProductName = strings.TrimSpace(in.ProductName)
	if err := uc.validateCreate(&in, now); err != nil {
		return nil, err
	}

	a := &domain.Auction{
		ID:               id.Generate(id.PrefixAuction),
		FarmerID:         seller.ID,
		FarmerName:       seller.DisplayName,
		ProductName:      in.ProductName,
		Description:      in.Description,
		Category:         in.Category,
		Quantity:         in.Quantity,
		Unit:             in.Unit,
		StartingPrice:    in.StartingPrice,
		CurrentPrice:     in.StartingPrice,
		MinBidIncrement:  in.MinBidIncrement,
		StartTime:        in.StartTime,
		EndTime:          in.EndTime,
		Status:           domain.AuctionScheduled,
		Participants:     []string{},
		SettlementStatus: domain.SettlementPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := uc.store.CreateAuction(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to create auction: %w", err)
	}
	uc.logger.Info("auction created",
		zap.String("auction_id", a.ID),
		zap.String("farmer_id", a.FarmerID),
		zap.String("starting_price", a.StartingPrice.String()),
		zap.Time("end_time", a.EndTime))

	// An auction whose start time has already passed goes live immediately.
	if _, err := uc.RefreshStatuses(ctx); err != nil {
		return nil, err
	}
	created, err := uc.store.GetAuction(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	uc.broadcast(ctx, domain.TopicAuctions, domain.EventAuctionUpdated, created)
	return created, nil
}

func (uc *AuctionUsecase) validateCreate(in *domain.CreateAuctionInput, now time.Time) error {
	switch {
	case in.ProductName == "":
		return fmt.Errorf("%w: product name is required", domain.ErrInvalidInput)
	case !in.Quantity.IsPositive():
		return fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidInput)
	case in.StartingPrice < 0:
		return fmt.Errorf("%w: starting price cannot be negative", domain.ErrInvalidInput)
	case in.MinBidIncrement < 0:
		return fmt.Errorf("%w: minimum bid increment cannot be negative", domain.ErrInvalidInput)
	case in.EndTime.IsZero():
		return fmt.Errorf("%w: end time is required", domain.ErrInvalidInput)
	}
	if in.MinBidIncrement == 0 {
		in.MinBidIncrement = uc.cfg.DefaultMinBidIncrement
	}
	if in.StartTime.IsZero() {
		in.StartTime = now
	}
	if !in.EndTime.After(in.StartTime) {
		return fmt.Errorf("%w: end time must be after start time", domain.ErrInvalidInput)
	}
	if !in.EndTime.After(now) {
		return fmt.Errorf("%w: end time must be in the future", domain.ErrInvalidInput)
	}
	if in.Unit == "" {
		in.Unit = "kg"
	}
	return nil
}

// RefreshStatuses applies scheduled->live and live->ended transitions that
// are due. Callers run it before reads so stale statuses are never served.
func (uc *AuctionUsecase) RefreshStatuses(ctx context.Context) (domain.StatusRefresh, error) {
	r, err := uc.store.AdvanceStatuses(ctx, uc.now())
	if err != nil {
		return r, fmt.Errorf("failed to refresh auction statuses: %w", err)
	}
	if r.Started > 0 || r.Ended > 0 {
		uc.logger.Info("auction statuses refreshed", zap.Int("started", r.Started), zap.Int("ended", r.Ended))
	}
	return r, nil
}

func (uc *AuctionUsecase) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	if _, err := uc.RefreshStatuses(ctx); err != nil {
		return nil, err
	}
	return uc.store.GetAuction(ctx, auctionID)
}

func (uc *AuctionUsecase) ListAuctions(ctx context.Context, filter domain.AuctionFilter) ([]*domain.Auction, error) {
	if _, err := uc.RefreshStatuses(ctx); err != nil {
		return nil, err
	}
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = defaultListLimit
	}
	return uc.store.ListAuctions(ctx, filter)
}

// ListBids returns the auction's bids, highest first.
func (uc *AuctionUsecase) ListBids(ctx context.Context, auctionID string) ([]*domain.Bid, error) {
	if _, err := uc.GetAuction(ctx, auctionID); err != nil {
		return nil, err
	}
	return uc.store.ListBids(ctx, auctionID)
}

// PlaceBid admits a bid if the auction is live, the amount clears the
// minimum and the bidder can currently cover it. The write is conditional on
// the price read here; a concurrent winner forces a re-read and re-check.
func (uc *AuctionUsecase) PlaceBid(ctx context.Context, auctionID string, actor domain.Actor, amount domain.Amount) (*BidResult, error) {
	if !amount.IsPositive() {
		return nil, uc.rejectBid(ctx, auctionID, actor, fmt.Errorf("%w: bid amount must be positive", domain.ErrInvalidInput))
	}
	if _, err := uc.RefreshStatuses(ctx); err != nil {
		return nil, err
	}

	for attempt := 0; attempt < uc.cfg.MaxBidAttempts; attempt++ {
		a, err := uc.store.GetAuction(ctx, auctionID)
		if err != nil {
			return nil, err
		}
		now := uc.now()

		if a.Status != domain.AuctionLive {
			return nil, uc.rejectBid(ctx, auctionID, actor,
				&domain.StateError{Entity: "auction", ID: a.ID, Status: string(a.Status), Want: string(domain.AuctionLive)})
		}
		if !now.Before(a.EndTime) {
			return nil, uc.rejectBid(ctx, auctionID, actor,
				&domain.StateError{Entity: "auction", ID: a.ID, Status: "expired", Want: string(domain.AuctionLive)})
		}
		if actor.ID == a.FarmerID {
			return nil, uc.rejectBid(ctx, auctionID, actor,
				fmt.Errorf("%w: farmers cannot bid on their own auction", domain.ErrForbidden))
		}
		if minimum := a.MinimumBid(); amount < minimum {
			return nil, uc.rejectBid(ctx, auctionID, actor, &domain.BidTooLowError{Minimum: minimum, Offered: amount})
		}

		bidder, err := uc.store.GetAccount(ctx, actor.ID)
		if err != nil {
			return nil, err
		}
		if bidder.Role == domain.RoleSystem {
			return nil, uc.rejectBid(ctx, auctionID, actor,
				fmt.Errorf("%w: system accounts cannot bid", domain.ErrForbidden))
		}
		if bidder.Balance < amount {
			return nil, uc.rejectBid(ctx, auctionID, actor,
				&domain.InsufficientFundsError{AccountID: bidder.ID, Required: amount, Available: bidder.Balance})
		}

		bid := &domain.Bid{
			ID:         id.Generate(id.PrefixBid),
			AuctionID:  a.ID,
			BidderID:   bidder.ID,
			BidderName: bidder.DisplayName,
			Amount:     amount,
			CreatedAt:  now,
		}
		updated, err := uc.store.AdmitBid(ctx, bid, a.CurrentPrice)
		if errors.Is(err, domain.ErrPriceChanged) {
			bidsTotal.WithLabelValues("retried").Inc()
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to place bid: %w", err)
		}

		bidsTotal.WithLabelValues("accepted").Inc()
		uc.afterBid(ctx, a, updated, bid)
		return &BidResult{Auction: updated, Bid: bid}, nil
	}

	bidsTotal.WithLabelValues("contended").Inc()
	return nil, fmt.Errorf("%w: auction %s is receiving too many concurrent bids, retry", domain.ErrPriceChanged, auctionID)
}

func (uc *AuctionUsecase) rejectBid(ctx context.Context, auctionID string, actor domain.Actor, err error) error {
	bidsTotal.WithLabelValues("rejected").Inc()
	uc.notify(ctx, actor.ID, domain.EventBidRejected, domain.Notice{
		Title:     "Bid Rejected",
		Message:   err.Error(),
		AuctionID: auctionID,
	})
	return err
}

func (uc *AuctionUsecase) afterBid(ctx context.Context, before, after *domain.Auction, bid *domain.Bid) {
	uc.logger.Info("bid placed",
		zap.String("auction_id", after.ID),
		zap.String("bidder_id", bid.BidderID),
		zap.String("amount", bid.Amount.String()),
		zap.Int("total_bids", after.TotalBids))

	uc.broadcast(ctx, domain.AuctionTopic(after.ID), domain.EventNewBid, domain.BidPlaced{
		AuctionID:  after.ID,
		BidID:      bid.ID,
		BidderID:   bid.BidderID,
		BidderName: bid.BidderName,
		Amount:     bid.Amount,
		TotalBids:  after.TotalBids,
		MinimumBid: after.MinimumBid(),
		PlacedAt:   bid.CreatedAt,
	})
	uc.broadcast(ctx, domain.TopicAuctions, domain.EventAuctionUpdated, after)

	if prev := before.CurrentBidder; prev != "" && prev != bid.BidderID {
		uc.notify(ctx, prev, domain.EventOutbid, domain.Notice{
			Title:     "You've been outbid",
			Message:   fmt.Sprintf("Someone bid %s on %s.", bid.Amount, after.ProductName),
			AuctionID: after.ID,
			Amount:    bid.Amount,
		})
	}
}

// EndAuction closes a live or scheduled auction early. Only the seller or an
// admin may end it. Settlement phase one follows in the background.
func (uc *AuctionUsecase) EndAuction(ctx context.Context, auctionID string, actor domain.Actor) (*domain.Auction, error) {
	now := uc.now()
	var ended *domain.Auction
	err := uc.store.RunInTx(ctx, func(tx repository.Tx) error {
		a, err := tx.GetAuctionForUpdate(ctx, auctionID)
		if err != nil {
			return err
		}
		if actor.ID != a.FarmerID && !actor.Role.Privileged() {
			return fmt.Errorf("%w: only the seller or an admin can end auction %s", domain.ErrForbidden, a.ID)
		}
		switch a.Status {
		case domain.AuctionEnded:
			return fmt.Errorf("%w: auction %s", domain.ErrAlreadyEnded, a.ID)
		case domain.AuctionCancelled:
			return &domain.StateError{Entity: "auction", ID: a.ID, Status: string(a.Status), Want: string(domain.AuctionLive)}
		}
		a.Close(now)
		if err := tx.SaveAuction(ctx, a); err != nil {
			return err
		}
		ended = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("auction ended",
		zap.String("auction_id", ended.ID),
		zap.String("ended_by", actor.ID),
		zap.String("winner", ended.Winner),
		zap.String("winning_bid", ended.WinningBidAmount.String()))

	evt := domain.AuctionClosed{
		AuctionID:        ended.ID,
		Winner:           ended.Winner,
		WinnerName:       ended.CurrentBidderName,
		WinningBidAmount: ended.WinningBidAmount,
		TotalBids:        ended.TotalBids,
	}
	uc.broadcast(ctx, domain.AuctionTopic(ended.ID), domain.EventAuctionEnded, evt)
	uc.broadcast(ctx, domain.TopicAuctions, domain.EventAuctionUpdated, ended)
	if ended.Winner != "" {
		uc.notify(ctx, ended.Winner, domain.EventAuctionWon, domain.Notice{
			Title:     "Congratulations! You won the auction",
			Message:   fmt.Sprintf("You won %s for %s.", ended.ProductName, ended.WinningBidAmount),
			AuctionID: ended.ID,
			Amount:    ended.WinningBidAmount,
		})
	}

	uc.settleInBackground(ended.ID)
	return ended, nil
}

func (uc *AuctionUsecase) settleInBackground(auctionID string) {
	if uc.settler == nil {
		return
	}
	uc.followUps.Add(1)
	go func() {
		defer uc.followUps.Done()
		ctx, cancel := context.WithTimeout(context.Background(), uc.cfg.SettleTimeout)
		defer cancel()

		res, err := uc.settler.SettleAuctionEnd(ctx, auctionID)
		switch {
		case err == nil:
			uc.logger.Debug("auction settled after end",
				zap.String("auction_id", auctionID),
				zap.String("outcome", string(res.Outcome)))
		case errors.Is(err, domain.ErrInsufficientFunds), isContention(err):
			uc.logger.Info("settlement after end did not complete", zap.String("auction_id", auctionID), zap.Error(err))
		default:
			uc.logger.Error("settlement after end failed", zap.String("auction_id", auctionID), zap.Error(err))
		}
	}()
}

// WaitFollowUps blocks until background settlements started by EndAuction
// have finished.
func (uc *AuctionUsecase) WaitFollowUps() {
	uc.followUps.Wait()
}

// CancelAuction withdraws an auction that has not started or has no bids.
func (uc *AuctionUsecase) CancelAuction(ctx context.Context, auctionID string, actor domain.Actor) (*domain.Auction, error) {
	now := uc.now()
	var cancelled *domain.Auction
	err := uc.store.RunInTx(ctx, func(tx repository.Tx) error {
		a, err := tx.GetAuctionForUpdate(ctx, auctionID)
		if err != nil {
			return err
		}
		if actor.ID != a.FarmerID && !actor.Role.Privileged() {
			return fmt.Errorf("%w: only the seller or an admin can cancel auction %s", domain.ErrForbidden, a.ID)
		}
		switch {
		case a.Status == domain.AuctionScheduled:
		case a.Status == domain.AuctionLive && a.TotalBids == 0:
		case a.Status == domain.AuctionLive:
			return &domain.StateError{Entity: "auction", ID: a.ID, Status: "live with bids", Want: "scheduled or live without bids"}
		default:
			return &domain.StateError{Entity: "auction", ID: a.ID, Status: string(a.Status), Want: "scheduled or live without bids"}
		}
		a.Status = domain.AuctionCancelled
		a.CancelledAt = &now
		a.UpdatedAt = now
		if err := tx.SaveAuction(ctx, a); err != nil {
			return err
		}
		cancelled = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("auction cancelled", zap.String("auction_id", cancelled.ID), zap.String("cancelled_by", actor.ID))
	uc.broadcast(ctx, domain.AuctionTopic(cancelled.ID), domain.EventAuctionUpdated, cancelled)
	uc.broadcast(ctx, domain.TopicAuctions, domain.EventAuctionUpdated, cancelled)
	return cancelled, nil
}

func (uc *AuctionUsecase) notify(ctx context.Context, recipientID, kind string, payload any) {
	if recipientID == "" {
		return
	}
	if err := uc.notifier.Notify(ctx, recipientID, kind, payload); err != nil {
		uc.logger.Warn("notification failed", zap.String("recipient", recipientID), zap.String("kind", kind), zap.Error(err))
	}
}

func (uc *AuctionUsecase) broadcast(ctx context.Context, topic, kind string, payload any) {
	if err := uc.notifier.Broadcast(ctx, topic, kind, payload); err != nil {
		uc.logger.Warn("broadcast failed", zap.String("topic", topic), zap.String("kind", kind), zap.Error(err))
	}
}
