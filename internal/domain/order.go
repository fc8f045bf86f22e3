package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type EscrowStatus string

const (
	EscrowNone     EscrowStatus = "none"
	EscrowHeld     EscrowStatus = "held"
	EscrowReleased EscrowStatus = "released"
	EscrowRefunded EscrowStatus = "refunded"
)

type OrderStatus string

const (
	OrderPendingDelivery OrderStatus = "pending_delivery"
	OrderCompleted       OrderStatus = "completed"
	OrderCancelled       OrderStatus = "cancelled"
)

// Terminal order statuses are excluded from auto-confirmation.
func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderCancelled
}

type OrderStatusUpdate struct {
	Status    OrderStatus `json:"status"`
	Note      string      `json:"note,omitempty"`
	ActorID   string      `json:"actor_id,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
}

// Order is the settlement record created by phase one. Phases two and three
// operate on it, not on the auction.
type Order struct {
	ID          string          `json:"id"`
	AuctionID   string          `json:"auction_id"`
	BuyerID     string          `json:"buyer_id"`
	FarmerID    string          `json:"farmer_id"`
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	Unit        string          `json:"unit"`
	Amount      Amount          `json:"amount"`

	EscrowStatus  EscrowStatus `json:"escrow_status"`
	OrderStatus   OrderStatus  `json:"order_status"`
	AutoConfirmAt time.Time    `json:"auto_confirm_at"`

	ConfirmedBy     string     `json:"confirmed_by,omitempty"`
	ConfirmedByRole Role       `json:"confirmed_by_role,omitempty"`
	ConfirmedAt     *time.Time `json:"confirmed_at,omitempty"`

	RefundedBy   string     `json:"refunded_by,omitempty"`
	RefundReason string     `json:"refund_reason,omitempty"`
	RefundedAt   *time.Time `json:"refunded_at,omitempty"`

	History []OrderStatusUpdate `json:"history"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (o *Order) record(status OrderStatus, note, actorID string, at time.Time) {
	o.OrderStatus = status
	o.History = append(o.History, OrderStatusUpdate{
		Status:    status,
		Note:      note,
		ActorID:   actorID,
		CreatedAt: at,
	})
	o.UpdatedAt = at
}

// MarkReleased moves a held order to released/completed.
func (o *Order) MarkReleased(actor Actor, note string, at time.Time) {
	o.EscrowStatus = EscrowReleased
	o.ConfirmedBy = actor.ID
	o.ConfirmedByRole = actor.Role
	t := at
	o.ConfirmedAt = &t
	o.record(OrderCompleted, note, actor.ID, at)
}

// MarkRefunded moves a held order to refunded/cancelled.
func (o *Order) MarkRefunded(actor Actor, reason string, at time.Time) {
	o.EscrowStatus = EscrowRefunded
	o.RefundedBy = actor.ID
	o.RefundReason = reason
	t := at
	o.RefundedAt = &t
	o.record(OrderCancelled, "Refunded: "+reason, actor.ID, at)
}

// OrderFilter narrows order listings. Empty fields match everything.
type OrderFilter struct {
	BuyerID      string
	FarmerID     string
	EscrowStatus EscrowStatus
	Limit        int
}

// CanView reports whether the actor is a party to the order or privileged.
func (o *Order) CanView(actor Actor) bool {
	return actor.Role.Privileged() || actor.ID == o.BuyerID || actor.ID == o.FarmerID
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.History = append([]OrderStatusUpdate(nil), o.History...)
	return &c
}

// NewEscrowOrder builds the held order for a funded auction.
func NewEscrowOrder(id string, a *Auction, autoConfirmAfter time.Duration, now time.Time) *Order {
	o := &Order{
		ID:            id,
		AuctionID:     a.ID,
		BuyerID:       a.Winner,
		FarmerID:      a.FarmerID,
		ProductName:   a.ProductName,
		Quantity:      a.Quantity,
		Unit:          a.Unit,
		Amount:        a.WinningBidAmount,
		EscrowStatus:  EscrowHeld,
		AutoConfirmAt: now.Add(autoConfirmAfter),
		CreatedAt:     now,
	}
	o.record(OrderPendingDelivery, "Order created from auction win, payment held in escrow", a.Winner, now)
	return o
}
