// internal/handler/rest/handler.go
package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"auction-service/internal/domain"
	"auction-service/internal/middleware"
	"auction-service/internal/repository"
	"auction-service/internal/usecase"
	"auction-service/internal/worker"
	"auction-service/pkg/response"

	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

type RestHandler struct {
	auctions   *usecase.AuctionUsecase
	settlement *usecase.SettlementUsecase
	ledger     *usecase.LedgerUsecase
	sweeper    *worker.AutoConfirmWorker
	logger     *zap.Logger
}

func NewRestHandler(
	auctions *usecase.AuctionUsecase,
	settlement *usecase.SettlementUsecase,
	ledger *usecase.LedgerUsecase,
	sweeper *worker.AutoConfirmWorker,
	logger *zap.Logger,
) *RestHandler {
	return &RestHandler{
		auctions:   auctions,
		settlement: settlement,
		ledger:     ledger,
		sweeper:    sweeper,
		logger:     logger,
	}
}

func actorFrom(r *http.Request) domain.Actor {
	actor, _ := middleware.GetActor(r.Context())
	return actor
}

// decode reads an optional JSON body into v. An empty body leaves v as is.
func decode(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: invalid request body: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

// writeError maps the domain error taxonomy onto HTTP status codes.
func (h *RestHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		low   *domain.BidTooLowError
		funds *domain.InsufficientFundsError
	)
	switch {
	case errors.As(err, &low):
		response.ErrorWithData(w, http.StatusUnprocessableEntity, err.Error(), map[string]any{
			"minimum_bid": low.Minimum,
			"offered":     low.Offered,
		})
	case errors.As(err, &funds):
		response.ErrorWithData(w, http.StatusPaymentRequired, err.Error(), map[string]any{
			"required":  funds.Required,
			"available": funds.Available,
		})
	case errors.Is(err, domain.ErrNotFound):
		response.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrForbidden):
		response.Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		response.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrSettlementInProgress):
		response.Error(w, http.StatusLocked, err.Error())
	case errors.Is(err, domain.ErrEscrowAccountMissing):
		h.logger.Error("escrow account unavailable", zap.String("path", r.URL.Path), zap.Error(err))
		response.Error(w, http.StatusServiceUnavailable, "settlement is unavailable: escrow account not configured")
	case errors.Is(err, domain.ErrAlreadySettled),
		errors.Is(err, domain.ErrAlreadyReleased),
		errors.Is(err, domain.ErrAlreadyRefunded),
		errors.Is(err, domain.ErrAlreadyEnded),
		errors.Is(err, domain.ErrPriceChanged),
		errors.Is(err, domain.ErrInvalidState),
		errors.Is(err, repository.ErrDuplicate),
		errors.Is(err, worker.ErrSweepInProgress):
		response.Error(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "internal server error")
	}
}
