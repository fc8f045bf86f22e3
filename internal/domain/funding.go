package domain

import "time"

type FundRequestStatus string

const (
	FundRequestPending  FundRequestStatus = "pending"
	FundRequestApproved FundRequestStatus = "approved"
	FundRequestRejected FundRequestStatus = "rejected"
)

func (s FundRequestStatus) Valid() bool {
	switch s {
	case FundRequestPending, FundRequestApproved, FundRequestRejected:
		return true
	}
	return false
}

// FundRequest is a user's ask for external funds. Only an admin approval
// credits the wallet.
type FundRequest struct {
	ID         string            `json:"id"`
	AccountID  string            `json:"account_id"`
	Amount     Amount            `json:"amount"`
	Note       string            `json:"note,omitempty"`
	Status     FundRequestStatus `json:"status"`
	ReviewedBy string            `json:"reviewed_by,omitempty"`
	ReviewedAt *time.Time        `json:"reviewed_at,omitempty"`
	EntryID    string            `json:"entry_id,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// Review moves a pending request to approved or rejected.
func (r *FundRequest) Review(status FundRequestStatus, reviewer string, at time.Time) error {
	if r.Status != FundRequestPending {
		return &StateError{Entity: "fund request", ID: r.ID, Status: string(r.Status), Want: string(FundRequestPending)}
	}
	r.Status = status
	r.ReviewedBy = reviewer
	t := at
	r.ReviewedAt = &t
	r.UpdatedAt = at
	return nil
}

type FundRequestFilter struct {
	AccountID string
	Status    FundRequestStatus
	Limit     int
}
