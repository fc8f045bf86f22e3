package repository

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"auction-service/internal/domain"
	"auction-service/pkg/utils/id"

	"github.com/jackc/pgx/v5"
)

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockAccounts(ctx context.Context, ids ...string) (map[string]*domain.Account, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	rows, err := t.tx.Query(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`, sorted)
	if err != nil {
		return nil, fmt.Errorf("failed to lock accounts: %w", err)
	}
	defer rows.Close()

	out := make(map[string]*domain.Account, len(ids))
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		out[a.ID] = a
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	for _, accountID := range ids {
		if _, ok := out[accountID]; !ok {
			return nil, domain.NotFound("account", accountID)
		}
	}
	return out, nil
}

func (t *pgTx) PostTransfer(ctx context.Context, tr *domain.Transfer) ([]*domain.LedgerEntry, error) {
	if err := validateTransfer(tr); err != nil {
		return nil, err
	}
	locked, err := t.LockAccounts(ctx, tr.FromAccount, tr.ToAccount)
	if err != nil {
		return nil, err
	}
	from := locked[tr.FromAccount]
	if from.Balance < tr.Amount {
		return nil, &domain.InsufficientFundsError{AccountID: from.ID, Required: tr.Amount, Available: from.Balance}
	}

	if err := t.applyDelta(ctx, tr.FromAccount, -tr.Amount, tr); err != nil {
		return nil, err
	}
	if err := t.applyDelta(ctx, tr.ToAccount, tr.Amount, tr); err != nil {
		return nil, err
	}

	debit, credit := transferEntries(tr, id.Generate(id.PrefixEntry), id.Generate(id.PrefixEntry))
	for _, e := range []*domain.LedgerEntry{debit, credit} {
		if err := insertEntry(ctx, t.tx, e); err != nil {
			return nil, err
		}
	}
	return []*domain.LedgerEntry{debit, credit}, nil
}

func (t *pgTx) CreditAccount(ctx context.Context, entry *domain.LedgerEntry) (*domain.Account, error) {
	if err := validateCredit(entry); err != nil {
		return nil, err
	}
	a, err := scanAccount(t.tx.QueryRow(ctx, `
		UPDATE accounts
		SET balance = balance + $2, version = version + 1, updated_at = $3
		WHERE id = $1
		RETURNING `+accountColumns, entry.AccountID, entry.Amount, entry.CreatedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound("account", entry.AccountID)
		}
		return nil, fmt.Errorf("failed to credit account: %w", err)
	}
	if err := insertEntry(ctx, t.tx, entry); err != nil {
		return nil, err
	}
	return a, nil
}

func (t *pgTx) applyDelta(ctx context.Context, accountID string, delta domain.Amount, tr *domain.Transfer) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE accounts
		SET balance = balance + $2, version = version + 1, updated_at = $3
		WHERE id = $1
	`, accountID, delta, tr.At)
	if err != nil {
		if pgErrorCode(err) == pgCheckViolation {
			return &domain.InsufficientFundsError{AccountID: accountID, Required: tr.Amount}
		}
		return fmt.Errorf("failed to update balance for %s: %w", accountID, err)
	}
	return nil
}

func (t *pgTx) GetAuctionForUpdate(ctx context.Context, auctionID string) (*domain.Auction, error) {
	a, err := scanAuction(t.tx.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1 FOR UPDATE`, auctionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound("auction", auctionID)
		}
		return nil, fmt.Errorf("failed to lock auction: %w", err)
	}
	return a, nil
}

func (t *pgTx) SaveAuction(ctx context.Context, a *domain.Auction) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE auctions
		SET status              = $2,
		    winner              = $3,
		    winning_bid_amount  = $4,
		    winning_time        = $5,
		    settlement_status   = $6,
		    order_id            = $7,
		    settled_at          = $8,
		    payment_released_at = $9,
		    cancelled_at        = $10,
		    updated_at          = $11
		WHERE id = $1
	`,
		a.ID, a.Status, a.Winner, a.WinningBidAmount, a.WinningTime,
		a.SettlementStatus, a.OrderID, a.SettledAt, a.PaymentReleasedAt, a.CancelledAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update auction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("auction", a.ID)
	}
	return nil
}

func (t *pgTx) CreateOrder(ctx context.Context, o *domain.Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders (
			id, auction_id, buyer_id, farmer_id, product_name, quantity, unit, amount,
			escrow_status, order_status, auto_confirm_at, history, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6::numeric, $7, $8, $9, $10, $11, $12, $13, $13)
	`,
		o.ID, o.AuctionID, o.BuyerID, o.FarmerID, o.ProductName, o.Quantity.String(), o.Unit, o.Amount,
		o.EscrowStatus, o.OrderStatus, o.AutoConfirmAt, historyOrEmpty(o.History), o.CreatedAt,
	)
	if err != nil {
		if pgErrorCode(err) == pgUniqueViolation {
			return fmt.Errorf("order for auction %s: %w", o.AuctionID, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (t *pgTx) GetOrderForUpdate(ctx context.Context, orderID string) (*domain.Order, error) {
	o, err := scanOrder(t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound("order", orderID)
		}
		return nil, fmt.Errorf("failed to lock order: %w", err)
	}
	return o, nil
}

func (t *pgTx) SaveOrder(ctx context.Context, o *domain.Order) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE orders
		SET escrow_status     = $2,
		    order_status      = $3,
		    confirmed_by      = $4,
		    confirmed_by_role = $5,
		    confirmed_at      = $6,
		    refunded_by       = $7,
		    refund_reason     = $8,
		    refunded_at       = $9,
		    history           = $10,
		    updated_at        = $11
		WHERE id = $1
	`,
		o.ID, o.EscrowStatus, o.OrderStatus, o.ConfirmedBy, o.ConfirmedByRole, o.ConfirmedAt,
		o.RefundedBy, o.RefundReason, o.RefundedAt, historyOrEmpty(o.History), o.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("order", o.ID)
	}
	return nil
}

func historyOrEmpty(h []domain.OrderStatusUpdate) []domain.OrderStatusUpdate {
	if h == nil {
		return []domain.OrderStatusUpdate{}
	}
	return h
}
