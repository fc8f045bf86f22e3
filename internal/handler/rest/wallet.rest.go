package handler

import (
	"fmt"
	"net/http"

	"auction-service/internal/domain"
	"auction-service/internal/usecase"
	"auction-service/pkg/response"

	"github.com/go-chi/chi/v5"
)

type openWalletRequest struct {
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// OpenWallet provisions the caller's wallet under the gateway identity.
// POST /api/v1/wallet
func (h *RestHandler) OpenWallet(w http.ResponseWriter, r *http.Request) {
	var req openWalletRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	actor := actorFrom(r)
	acc, err := h.ledger.OpenAccount(r.Context(), usecase.OpenAccountInput{
		ID:          actor.ID,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Role:        actor.Role,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.Message(w, http.StatusCreated, "Wallet created", acc)
}

// GetWallet
// GET /api/v1/wallet
func (h *RestHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	acc, err := h.ledger.GetAccount(r.Context(), actorFrom(r).ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, acc)
}

// GetTransactions lists the caller's ledger entries, newest first.
// GET /api/v1/wallet/transactions?limit=50
func (h *RestHandler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	entries, err := h.ledger.GetStatement(r.Context(), actorFrom(r).ID, queryInt(r, "limit", 100))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*domain.LedgerEntry{}
	}
	response.JSON(w, http.StatusOK, entries)
}

type fundRequestBody struct {
	Amount domain.Amount `json:"amount"`
	Note   string        `json:"note"`
}

// RequestFunds asks an admin to top up the caller's wallet.
// POST /api/v1/wallet/request
func (h *RestHandler) RequestFunds(w http.ResponseWriter, r *http.Request) {
	var req fundRequestBody
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	fr, err := h.ledger.RequestFunds(r.Context(), actorFrom(r), req.Amount, req.Note)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.Message(w, http.StatusCreated, "Fund request submitted", fr)
}

// ListFundRequests returns every request to admins and the caller's own to
// everyone else.
// GET /api/v1/wallet/requests?status=pending
func (h *RestHandler) ListFundRequests(w http.ResponseWriter, r *http.Request) {
	list, err := h.ledger.ListFundRequests(r.Context(), actorFrom(r), domain.FundRequestFilter{
		Status: domain.FundRequestStatus(r.URL.Query().Get("status")),
		Limit:  queryInt(r, "limit", 100),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*domain.FundRequest{}
	}
	response.JSON(w, http.StatusOK, list)
}

// ApproveFundRequest
// PUT /api/v1/wallet/requests/{requestID}/approve
func (h *RestHandler) ApproveFundRequest(w http.ResponseWriter, r *http.Request) {
	fr, acc, err := h.ledger.ApproveFundRequest(r.Context(), actorFrom(r), chi.URLParam(r, "requestID"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.Message(w, http.StatusOK, "Request approved and wallet credited", map[string]any{
		"request": fr,
		"account": acc,
	})
}

type rejectFundRequestBody struct {
	Reason string `json:"reason"`
}

// RejectFundRequest
// PUT /api/v1/wallet/requests/{requestID}/reject
func (h *RestHandler) RejectFundRequest(w http.ResponseWriter, r *http.Request) {
	var req rejectFundRequestBody
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	fr, err := h.ledger.RejectFundRequest(r.Context(), actorFrom(r), chi.URLParam(r, "requestID"), req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.Message(w, http.StatusOK, "Fund request rejected", fr)
}

type depositRequest struct {
	AccountID string        `json:"account_id"`
	Amount    domain.Amount `json:"amount"`
	Note      string        `json:"note"`
}

// Deposit books an external top-up onto any wallet. Admin only.
// POST /api/v1/wallet/deposit
func (h *RestHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	var req depositRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.AccountID == "" {
		h.writeError(w, r, fmt.Errorf("%w: account_id is required", domain.ErrInvalidInput))
		return
	}
	if req.Note == "" {
		req.Note = "deposit by " + actorFrom(r).ID
	}
	acc, err := h.ledger.Deposit(r.Context(), req.AccountID, req.Amount, req.Note)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.Message(w, http.StatusOK, "Wallet topped up", acc)
}
