package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"auction-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const auctionColumns = `
	id, farmer_id, farmer_name, product_name, description, category, quantity::text, unit,
	starting_price, current_price, min_bid_increment, start_time, end_time, status,
	current_bidder, current_bidder_name, total_bids, participants,
	winner, winning_bid_amount, winning_time,
	settlement_status, order_id, settled_at, payment_released_at, cancelled_at,
	created_at, updated_at`

func scanAuction(row pgx.Row) (*domain.Auction, error) {
	var a domain.Auction
	var quantity string
	err := row.Scan(
		&a.ID, &a.FarmerID, &a.FarmerName, &a.ProductName, &a.Description, &a.Category, &quantity, &a.Unit,
		&a.StartingPrice, &a.CurrentPrice, &a.MinBidIncrement, &a.StartTime, &a.EndTime, &a.Status,
		&a.CurrentBidder, &a.CurrentBidderName, &a.TotalBids, &a.Participants,
		&a.Winner, &a.WinningBidAmount, &a.WinningTime,
		&a.SettlementStatus, &a.OrderID, &a.SettledAt, &a.PaymentReleasedAt, &a.CancelledAt,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if a.Quantity, err = decimal.NewFromString(quantity); err != nil {
		return nil, fmt.Errorf("failed to parse auction quantity: %w", err)
	}
	return &a, nil
}

func scanAuctionRows(rows pgx.Rows) ([]*domain.Auction, error) {
	defer rows.Close()
	var out []*domain.Auction
	for rows.Next() {
		a, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan auction row: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) CreateAuction(ctx context.Context, a *domain.Auction) error {
	participants := a.Participants
	if participants == nil {
		participants = []string{}
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO auctions (
			id, farmer_id, farmer_name, product_name, description, category, quantity, unit,
			starting_price, current_price, min_bid_increment, start_time, end_time, status,
			participants, settlement_status, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $17)
	`,
		a.ID, a.FarmerID, a.FarmerName, a.ProductName, a.Description, a.Category, a.Quantity.String(), a.Unit,
		a.StartingPrice, a.CurrentPrice, a.MinBidIncrement, a.StartTime, a.EndTime, a.Status,
		participants, a.SettlementStatus, a.CreatedAt,
	)
	if err != nil {
		if pgErrorCode(err) == pgUniqueViolation {
			return fmt.Errorf("auction %s: %w", a.ID, ErrDuplicate)
		}
		return fmt.Errorf("failed to insert auction: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	a, err := scanAuction(s.db.QueryRow(ctx, `SELECT `+auctionColumns+` FROM auctions WHERE id = $1`, auctionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound("auction", auctionID)
		}
		return nil, fmt.Errorf("failed to get auction: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ListAuctions(ctx context.Context, f domain.AuctionFilter) ([]*domain.Auction, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != nil {
		args = append(args, *f.Status)
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.FarmerID != nil {
		args = append(args, *f.FarmerID)
		where = append(where, fmt.Sprintf("farmer_id = $%d", len(args)))
	}

	query := `SELECT ` + auctionColumns + ` FROM auctions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY end_time ASC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list auctions: %w", err)
	}
	return scanAuctionRows(rows)
}

func (s *PostgresStore) ListBids(ctx context.Context, auctionID string) ([]*domain.Bid, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, auction_id, bidder_id, bidder_name, amount, created_at
		FROM bids
		WHERE auction_id = $1
		ORDER BY created_at DESC, id DESC
	`, auctionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bids: %w", err)
	}
	defer rows.Close()

	var out []*domain.Bid
	for rows.Next() {
		var b domain.Bid
		if err := rows.Scan(&b.ID, &b.AuctionID, &b.BidderID, &b.BidderName, &b.Amount, &b.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan bid: %w", err)
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

// AdmitBid is a single conditional UPDATE against the price the caller
// validated. A concurrent bid that committed first makes it match zero rows.
func (s *PostgresStore) AdmitBid(ctx context.Context, bid *domain.Bid, expectedPrice domain.Amount) (*domain.Auction, error) {
	var out *domain.Auction
	err := s.RunInTx(ctx, func(t Tx) error {
		tx := t.(*pgTx).tx
		a, err := scanAuction(tx.QueryRow(ctx, `
			UPDATE auctions
			SET current_price       = $3,
			    current_bidder      = $4,
			    current_bidder_name = $5,
			    total_bids          = total_bids + 1,
			    participants        = CASE WHEN $4 = ANY(participants) THEN participants
			                               ELSE array_append(participants, $4) END,
			    updated_at          = $6
			WHERE id = $1
			  AND status = 'live'
			  AND current_price = $2
			  AND end_time > $6
			RETURNING `+auctionColumns,
			bid.AuctionID, expectedPrice, bid.Amount, bid.BidderID, bid.BidderName, bid.CreatedAt,
		))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return domain.ErrPriceChanged
			}
			return fmt.Errorf("failed to update auction price: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO bids (id, auction_id, bidder_id, bidder_name, amount, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, bid.ID, bid.AuctionID, bid.BidderID, bid.BidderName, bid.Amount, bid.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert bid: %w", err)
		}
		out = a
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *PostgresStore) AdvanceStatuses(ctx context.Context, now time.Time) (domain.StatusRefresh, error) {
	var r domain.StatusRefresh

	tag, err := s.db.Exec(ctx, `
		UPDATE auctions SET status = 'live', updated_at = $1
		WHERE status = 'scheduled' AND start_time <= $1
	`, now)
	if err != nil {
		return r, fmt.Errorf("failed to start auctions: %w", err)
	}
	r.Started = int(tag.RowsAffected())

	tag, err = s.db.Exec(ctx, `
		UPDATE auctions
		SET status             = 'ended',
		    winner             = current_bidder,
		    winning_bid_amount = CASE WHEN current_bidder <> '' THEN current_price ELSE 0 END,
		    winning_time       = CASE WHEN current_bidder <> '' THEN $1::timestamptz ELSE NULL END,
		    updated_at         = $1
		WHERE status = 'live' AND end_time <= $1
	`, now)
	if err != nil {
		return r, fmt.Errorf("failed to end auctions: %w", err)
	}
	r.Ended = int(tag.RowsAffected())
	return r, nil
}

func (s *PostgresStore) ListAuctionsAwaitingSettlement(ctx context.Context, limit int) ([]*domain.Auction, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `SELECT `+auctionColumns+`
		FROM auctions
		WHERE status = 'ended' AND settlement_status = 'pending'
		ORDER BY end_time ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list auctions awaiting settlement: %w", err)
	}
	return scanAuctionRows(rows)
}
