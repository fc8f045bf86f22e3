package domain

import "time"

type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

// EntrySource tags why a ledger entry exists.
type EntrySource string

const (
	SourceAuctionSettlement EntrySource = "auction_settlement" // buyer debit, hold
	SourceEscrowReceived    EntrySource = "escrow_received"    // escrow credit, hold
	SourceEscrowRelease     EntrySource = "escrow_release"     // escrow debit, release
	SourceAuctionPayment    EntrySource = "auction_payment"    // farmer credit, release
	SourceEscrowRefund      EntrySource = "escrow_refund"      // escrow debit, refund
	SourceAuctionRefund     EntrySource = "auction_refund"     // buyer credit, refund
	SourceWalletTopup       EntrySource = "wallet_topup"
	SourceAdminApproval     EntrySource = "admin_approval" // approved fund request
)

// LedgerEntry is immutable once written.
type LedgerEntry struct {
	ID         string            `json:"id"`
	TransferID string            `json:"transfer_id"`
	AccountID  string            `json:"account_id"`
	Direction  Direction         `json:"direction"`
	Amount     Amount            `json:"amount"`
	Source     EntrySource       `json:"source"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

// Signed returns the entry's effect on its account balance.
func (e *LedgerEntry) Signed() Amount {
	if e.Direction == DirectionDebit {
		return -e.Amount
	}
	return e.Amount
}

// Transfer describes one matched debit/credit movement between two accounts.
type Transfer struct {
	ID           string
	FromAccount  string
	ToAccount    string
	Amount       Amount
	DebitSource  EntrySource
	CreditSource EntrySource
	Metadata     map[string]string
	At           time.Time
}
