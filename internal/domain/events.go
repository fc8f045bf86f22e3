package domain

import "time"

// Event kinds carried by broadcasts and user notifications.
const (
	EventNewBid         = "new_bid"
	EventAuctionUpdated = "auction_updated"
	EventAuctionEnded   = "auction_ended"
	EventAuctionWon     = "auction_won"
	EventBidRejected    = "bid_rejected"
	EventOutbid         = "outbid"

	NotifySettlementFailed = "settlement_failed"
	NotifyOrderPlaced      = "order_placed"
	NotifyPaymentReleased  = "payment_released"
	NotifyPaymentReceived  = "payment_received"
	NotifyRefundProcessed  = "refund_processed"
	NotifyOrderCancelled   = "order_cancelled"
)

// TopicAuctions is the room every connected client may watch.
const TopicAuctions = "auctions"

func AuctionTopic(auctionID string) string {
	return "auction_" + auctionID
}

func UserTopic(userID string) string {
	return "user_" + userID
}

type BidPlaced struct {
	AuctionID  string    `json:"auction_id"`
	BidID      string    `json:"bid_id"`
	BidderID   string    `json:"bidder_id"`
	BidderName string    `json:"bidder_name,omitempty"`
	Amount     Amount    `json:"amount"`
	TotalBids  int       `json:"total_bids"`
	MinimumBid Amount    `json:"minimum_bid"`
	PlacedAt   time.Time `json:"placed_at"`
}

type AuctionClosed struct {
	AuctionID        string `json:"auction_id"`
	Winner           string `json:"winner,omitempty"`
	WinnerName       string `json:"winner_name,omitempty"`
	WinningBidAmount Amount `json:"winning_bid_amount"`
	TotalBids        int    `json:"total_bids"`
}

// Notice is the payload of a user notification.
type Notice struct {
	Title     string `json:"title"`
	Message   string `json:"message"`
	AuctionID string `json:"auction_id,omitempty"`
	OrderID   string `json:"order_id,omitempty"`
	Amount    Amount `json:"amount,omitempty"`
	Required  Amount `json:"required,omitempty"`
	Available Amount `json:"available,omitempty"`
}

// SweepFailure records one order the auto-confirmation sweep could not release.
type SweepFailure struct {
	OrderID string `json:"order_id"`
	Error   string `json:"error"`
}

// SweepReport summarises one auto-confirmation run. Skipped counts orders
// that another path released or refunded first.
type SweepReport struct {
	Processed  int            `json:"processed"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	Skipped    int            `json:"skipped"`
	Failures   []SweepFailure `json:"failures,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
}
