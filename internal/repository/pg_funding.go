package repository

import (
	"context"
	"errors"
	"fmt"

	"auction-service/internal/domain"

	"github.com/jackc/pgx/v5"
)

const fundRequestColumns = `id, account_id, amount, note, status, reviewed_by, reviewed_at, entry_id, created_at, updated_at`

func scanFundRequest(row pgx.Row) (*domain.FundRequest, error) {
	var r domain.FundRequest
	err := row.Scan(&r.ID, &r.AccountID, &r.Amount, &r.Note, &r.Status,
		&r.ReviewedBy, &r.ReviewedAt, &r.EntryID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) CreateFundRequest(ctx context.Context, r *domain.FundRequest) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO fund_requests (id, account_id, amount, note, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
	`, r.ID, r.AccountID, r.Amount, r.Note, r.Status, r.CreatedAt)
	if err != nil {
		switch pgErrorCode(err) {
		case pgUniqueViolation:
			return fmt.Errorf("fund request %s: %w", r.ID, ErrDuplicate)
		case pgForeignKeyViolation:
			return domain.NotFound("account", r.AccountID)
		}
		return fmt.Errorf("failed to insert fund request: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetFundRequest(ctx context.Context, requestID string) (*domain.FundRequest, error) {
	r, err := scanFundRequest(s.db.QueryRow(ctx, `SELECT `+fundRequestColumns+` FROM fund_requests WHERE id = $1`, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound("fund request", requestID)
		}
		return nil, fmt.Errorf("failed to get fund request: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) ListFundRequests(ctx context.Context, f domain.FundRequestFilter) ([]*domain.FundRequest, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx, `SELECT `+fundRequestColumns+`
		FROM fund_requests
		WHERE ($1 = '' OR account_id = $1)
		  AND ($2 = '' OR status = $2)
		ORDER BY created_at DESC, id DESC
		LIMIT $3`, f.AccountID, string(f.Status), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list fund requests: %w", err)
	}
	defer rows.Close()

	var out []*domain.FundRequest
	for rows.Next() {
		r, err := scanFundRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan fund request: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (t *pgTx) GetFundRequestForUpdate(ctx context.Context, requestID string) (*domain.FundRequest, error) {
	r, err := scanFundRequest(t.tx.QueryRow(ctx, `SELECT `+fundRequestColumns+` FROM fund_requests WHERE id = $1 FOR UPDATE`, requestID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NotFound("fund request", requestID)
		}
		return nil, fmt.Errorf("failed to lock fund request: %w", err)
	}
	return r, nil
}

func (t *pgTx) SaveFundRequest(ctx context.Context, r *domain.FundRequest) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE fund_requests
		SET status      = $2,
		    note        = $3,
		    reviewed_by = $4,
		    reviewed_at = $5,
		    entry_id    = $6,
		    updated_at  = $7
		WHERE id = $1
	`, r.ID, r.Status, r.Note, r.ReviewedBy, r.ReviewedAt, r.EntryID, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to update fund request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NotFound("fund request", r.ID)
	}
	return nil
}
