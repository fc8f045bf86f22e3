package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type AuctionStatus string

const (
	AuctionScheduled AuctionStatus = "scheduled"
	AuctionLive      AuctionStatus = "live"
	AuctionEnded     AuctionStatus = "ended"
	AuctionCancelled AuctionStatus = "cancelled"
)

// SettlementStatus is written only by the settlement engine.
type SettlementStatus string

const (
	SettlementPending     SettlementStatus = "pending"
	SettlementInEscrow    SettlementStatus = "in_escrow"
	SettlementCompleted   SettlementStatus = "completed"
	SettlementRefunded    SettlementStatus = "refunded"
	SettlementFailedFunds SettlementStatus = "failed_insufficient_funds"
	SettlementNoWinner    SettlementStatus = "no_winner"
)

// Settled reports whether an order exists or the auction closed with no
// winner, i.e. phase one must not run again.
func (s SettlementStatus) Settled() bool {
	switch s {
	case SettlementInEscrow, SettlementCompleted, SettlementRefunded, SettlementNoWinner:
		return true
	}
	return false
}

type Auction struct {
	ID          string          `json:"id"`
	FarmerID    string          `json:"farmer_id"`
	FarmerName  string          `json:"farmer_name,omitempty"`
	ProductName string          `json:"product_name"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit"`

	StartingPrice   Amount        `json:"starting_price"`
	CurrentPrice    Amount        `json:"current_price"`
	MinBidIncrement Amount        `json:"min_bid_increment"`
	StartTime       time.Time     `json:"start_time"`
	EndTime         time.Time     `json:"end_time"`
	Status          AuctionStatus `json:"status"`

	CurrentBidder     string   `json:"current_bidder,omitempty"`
	CurrentBidderName string   `json:"current_bidder_name,omitempty"`
	TotalBids         int      `json:"total_bids"`
	Participants      []string `json:"participants"`

	Winner           string     `json:"winner,omitempty"`
	WinningBidAmount Amount     `json:"winning_bid_amount"`
	WinningTime      *time.Time `json:"winning_time,omitempty"`

	SettlementStatus  SettlementStatus `json:"settlement_status"`
	OrderID           string           `json:"order_id,omitempty"`
	SettledAt         *time.Time       `json:"settled_at,omitempty"`
	PaymentReleasedAt *time.Time       `json:"payment_released_at,omitempty"`
	CancelledAt       *time.Time       `json:"cancelled_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MinimumBid is the smallest amount the next bid may offer.
func (a *Auction) MinimumBid() Amount {
	return a.CurrentPrice + a.MinBidIncrement
}

// Close marks the auction ended and stamps the winner from the current
// high bidder, if any.
func (a *Auction) Close(now time.Time) {
	a.Status = AuctionEnded
	if a.CurrentBidder != "" {
		a.Winner = a.CurrentBidder
		a.WinningBidAmount = a.CurrentPrice
		t := now
		a.WinningTime = &t
	}
	a.UpdatedAt = now
}

// HasParticipant reports whether the user has bid on the auction.
func (a *Auction) HasParticipant(userID string) bool {
	for _, p := range a.Participants {
		if p == userID {
			return true
		}
	}
	return false
}

func (a *Auction) Clone() *Auction {
	if a == nil {
		return nil
	}
	c := *a
	c.Participants = append([]string(nil), a.Participants...)
	return &c
}

type Bid struct {
	ID         string    `json:"id"`
	AuctionID  string    `json:"auction_id"`
	BidderID   string    `json:"bidder_id"`
	BidderName string    `json:"bidder_name,omitempty"`
	Amount     Amount    `json:"amount"`
	CreatedAt  time.Time `json:"created_at"`
}

type CreateAuctionInput struct {
	ProductName     string          `json:"product_name"`
	Description     string          `json:"description"`
	Category        string          `json:"category"`
	Quantity        decimal.Decimal `json:"quantity"`
	Unit            string          `json:"unit"`
	StartingPrice   Amount          `json:"starting_price"`
	MinBidIncrement Amount          `json:"min_bid_increment"`
	StartTime       time.Time       `json:"start_time"`
	EndTime         time.Time       `json:"end_time"`
}

type AuctionFilter struct {
	Status   *AuctionStatus
	FarmerID *string
	Limit    int
}

// StatusRefresh counts the transitions applied by one status tick.
type StatusRefresh struct {
	Started int `json:"started"`
	Ended   int `json:"ended"`
}
