package handler

import (
	"net/http"

	"auction-service/internal/domain"
	"auction-service/internal/usecase"
	"auction-service/pkg/response"

	"github.com/go-chi/chi/v5"
)

// SettleAuction runs phase one by hand.
// POST /api/v1/escrow/settle/{auctionID}
func (h *RestHandler) SettleAuction(w http.ResponseWriter, r *http.Request) {
	res, err := h.settlement.SettleAuctionEnd(r.Context(), chi.URLParam(r, "auctionID"))
	h.writeSettlement(w, r, res, err)
}

// RetrySettlement
// POST /api/v1/escrow/retry-settlement/{auctionID}
func (h *RestHandler) RetrySettlement(w http.ResponseWriter, r *http.Request) {
	res, err := h.settlement.RetrySettlement(r.Context(), chi.URLParam(r, "auctionID"), actorFrom(r))
	h.writeSettlement(w, r, res, err)
}

func (h *RestHandler) writeSettlement(w http.ResponseWriter, r *http.Request, res *usecase.SettlementResult, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	msg := "Payment held in escrow"
	if res.Outcome == usecase.OutcomeNoWinner {
		msg = "Auction closed without a winner"
	}
	response.Message(w, http.StatusOK, msg, res)
}

// ConfirmDelivery
// POST /api/v1/escrow/confirm-delivery/{orderID}
func (h *RestHandler) ConfirmDelivery(w http.ResponseWriter, r *http.Request) {
	res, err := h.settlement.ConfirmDelivery(r.Context(), chi.URLParam(r, "orderID"), actorFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.Message(w, http.StatusOK, "Delivery confirmed, payment released to farmer", res)
}

type refundRequest struct {
	Reason string `json:"reason"`
}

// Refund
// POST /api/v1/escrow/refund/{orderID}
func (h *RestHandler) Refund(w http.ResponseWriter, r *http.Request) {
	var req refundRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.settlement.Refund(r.Context(), chi.URLParam(r, "orderID"), actorFrom(r), req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.Message(w, http.StatusOK, "Payment refunded to buyer", res)
}

// GetOrder
// GET /api/v1/escrow/orders/{orderID}
func (h *RestHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.settlement.GetOrder(r.Context(), chi.URLParam(r, "orderID"), actorFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, o)
}

// MyOrders lists the orders the caller won.
// GET /api/v1/escrow/my-orders?escrow_status=held
func (h *RestHandler) MyOrders(w http.ResponseWriter, r *http.Request) {
	h.listOrders(w, r, usecase.ScopeBuyer)
}

// FarmerOrders lists orders for the caller's produce.
// GET /api/v1/escrow/farmer-orders
func (h *RestHandler) FarmerOrders(w http.ResponseWriter, r *http.Request) {
	h.listOrders(w, r, usecase.ScopeFarmer)
}

// ListOrders lists every order, optionally by buyer_id or farmer_id.
// GET /api/v1/escrow/orders
func (h *RestHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	h.listOrders(w, r, usecase.ScopeAll)
}

func (h *RestHandler) listOrders(w http.ResponseWriter, r *http.Request, scope usecase.OrderScope) {
	q := r.URL.Query()
	orders, err := h.settlement.ListOrders(r.Context(), actorFrom(r), scope, domain.OrderFilter{
		BuyerID:      q.Get("buyer_id"),
		FarmerID:     q.Get("farmer_id"),
		EscrowStatus: domain.EscrowStatus(q.Get("escrow_status")),
		Limit:        queryInt(r, "limit", 100),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if orders == nil {
		orders = []*domain.Order{}
	}
	response.JSON(w, http.StatusOK, orders)
}

// ProcessAutoConfirmations runs one sweep synchronously.
// POST /api/v1/escrow/process-auto-confirmations
func (h *RestHandler) ProcessAutoConfirmations(w http.ResponseWriter, r *http.Request) {
	if !h.settlement.Ready() {
		h.writeError(w, r, domain.ErrEscrowAccountMissing)
		return
	}
	report, err := h.sweeper.RunOnce(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.Message(w, http.StatusOK, "Auto-confirmation sweep completed", report)
}

// SchedulerStatus
// GET /api/v1/escrow/scheduler
func (h *RestHandler) SchedulerStatus(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, http.StatusOK, h.sweeper.Status())
}
