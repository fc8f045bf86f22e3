package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"auction-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const orderColumns = `
	id, auction_id, buyer_id, farmer_id, product_name, quantity::text, unit, amount,
	escrow_status, order_status, auto_confirm_at,
	confirmed_by, confirmed_by_role, confirmed_at,
	refunded_by, refund_reason, refunded_at,
	history, created_at, updated_at`

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	var quantity string
	err := row.Scan(
		&o.ID, &o.AuctionID, &o.BuyerID, &o.FarmerID, &o.ProductName, &quantity, &o.Unit, &o.Amount,
		&o.EscrowStatus, &o.OrderStatus, &o.AutoConfirmAt,
		&o.ConfirmedBy, &o.ConfirmedByRole, &o.ConfirmedAt,
		&o.RefundedBy, &o.RefundReason, &o.RefundedAt,
		&o.History, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if o.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return nil, fmt.Errorf("failed to parse order quantity: %w", err)
	}
	return &o, nil
}

func (s *PostgresStore) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	o, err := scanOrder(s.db.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound("order", orderID)
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return o, nil
}

func (s *PostgresStore) ListOrders(ctx context.Context, f domain.OrderFilter) ([]*domain.Order, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `SELECT `+orderColumns+`
		FROM orders
		WHERE ($1 = '' OR buyer_id = $1)
		  AND ($2 = '' OR farmer_id = $2)
		  AND ($3 = '' OR escrow_status = $3)
		ORDER BY created_at DESC, id DESC
		LIMIT $4`, f.BuyerID, f.FarmerID, string(f.EscrowStatus), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer rows.Close()

	var out []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order row: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListOrdersDueForAutoConfirm(ctx context.Context, now time.Time, limit int) ([]*domain.Order, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.Query(ctx, `SELECT `+orderColumns+`
		FROM orders
		WHERE escrow_status = 'held'
		  AND auto_confirm_at <= $1
		  AND order_status NOT IN ('completed', 'cancelled')
		ORDER BY auto_confirm_at ASC
		LIMIT $2`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders due for auto-confirm: %w", err)
	}
	defer rows.Close()

	var out []*domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order row: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
