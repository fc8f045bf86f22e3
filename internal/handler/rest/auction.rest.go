package handler

import (
	"net/http"

	"auction-service/internal/domain"
	"auction-service/pkg/response"

	"github.com/go-chi/chi/v5"
)

// CreateAuction
// POST /api/v1/auctions
func (h *RestHandler) CreateAuction(w http.ResponseWriter, r *http.Request) {
	var in domain.CreateAuctionInput
	if err := decode(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	a, err := h.auctions.CreateAuction(r.Context(), actorFrom(r), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.Message(w, http.StatusCreated, "Auction created", a)
}

// ListAuctions
// GET /api/v1/auctions?status=live&farmer_id=...&limit=50
func (h *RestHandler) ListAuctions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.AuctionFilter{Limit: queryInt(r, "limit", 100)}
	if s := q.Get("status"); s != "" {
		status := domain.AuctionStatus(s)
		filter.Status = &status
	}
	if f := q.Get("farmer_id"); f != "" {
		filter.FarmerID = &f
	}

	auctions, err := h.auctions.ListAuctions(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if auctions == nil {
		auctions = []*domain.Auction{}
	}
	response.JSON(w, http.StatusOK, auctions)
}

// GetAuction
// GET /api/v1/auctions/{id}
func (h *RestHandler) GetAuction(w http.ResponseWriter, r *http.Request) {
	a, err := h.auctions.GetAuction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.JSON(w, http.StatusOK, a)
}

// ListBids
// GET /api/v1/auctions/{id}/bids
func (h *RestHandler) ListBids(w http.ResponseWriter, r *http.Request) {
	bids, err := h.auctions.ListBids(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if bids == nil {
		bids = []*domain.Bid{}
	}
	response.JSON(w, http.StatusOK, bids)
}

type placeBidRequest struct {
	Amount domain.Amount `json:"amount"`
}

// PlaceBid
// POST /api/v1/auctions/{id}/bids
func (h *RestHandler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	var req placeBidRequest
	if err := decode(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.auctions.PlaceBid(r.Context(), chi.URLParam(r, "id"), actorFrom(r), req.Amount)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.Message(w, http.StatusCreated, "Bid placed", res)
}

// EndAuction
// POST /api/v1/auctions/{id}/end
func (h *RestHandler) EndAuction(w http.ResponseWriter, r *http.Request) {
	a, err := h.auctions.EndAuction(r.Context(), chi.URLParam(r, "id"), actorFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.Message(w, http.StatusOK, "Auction ended", a)
}

// CancelAuction
// POST /api/v1/auctions/{id}/cancel
func (h *RestHandler) CancelAuction(w http.ResponseWriter, r *http.Request) {
	a, err := h.auctions.CancelAuction(r.Context(), chi.URLParam(r, "id"), actorFrom(r))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	response.Message(w, http.StatusOK, "Auction cancelled", a)
}
