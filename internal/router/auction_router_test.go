package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"auction-service/internal/domain"
	rh "auction-service/internal/handler/rest"
	wsh "auction-service/internal/handler/websocket"
	"auction-service/internal/lock"
	"auction-service/internal/repository"
	"auction-service/internal/usecase"
	"auction-service/internal/worker"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stack struct {
	router   http.Handler
	auctions *usecase.AuctionUsecase
	locker   *lock.LocalLocker
}

func newStack(t *testing.T, rdb redis.UniversalClient, opts Options) *stack {
	t.Helper()
	ctx := context.Background()
	logger := zap.NewNop()

	store := repository.NewMemoryStore()
	locker := lock.NewLocalLocker(30 * time.Second)
	ledger := usecase.NewLedgerUsecase(store, nil, logger)

	_, err := ledger.EnsureEscrowAccount(ctx, "escrow", "")
	require.NoError(t, err)
	escrow, err := ledger.ResolveEscrowAccount(ctx, "escrow", "")
	require.NoError(t, err)

	hub := wsh.NewHub(logger)
	settlement := usecase.NewSettlementUsecase(store, locker, ledger, hub, escrow,
		usecase.SettlementConfig{AutoConfirmAfter: 7 * 24 * time.Hour}, logger)
	auctions := usecase.NewAuctionUsecase(store, settlement, hub, usecase.AuctionConfig{}, logger)
	sweeper := worker.NewAutoConfirmWorker(settlement, worker.AutoConfirmConfig{Interval: time.Hour}, logger)

	restHandler := rh.NewRestHandler(auctions, settlement, ledger, sweeper, logger)
	wsHandler := wsh.NewWebSocketHandler(hub, nil, logger)

	return &stack{
		router:   SetupRoutes(chi.NewRouter(), restHandler, wsHandler, rdb, opts),
		auctions: auctions,
		locker:   locker,
	}
}

type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (s *stack) call(t *testing.T, method, path, userID string, role domain.Role, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
		req.Header.Set("X-User-Role", string(role))
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env envelope
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec.Code, env
}

func (s *stack) openWallet(t *testing.T, userID string, role domain.Role, deposit string) {
	t.Helper()
	code, _ := s.call(t, http.MethodPost, "/api/v1/wallet", userID, role, map[string]string{"display_name": userID})
	require.Equal(t, http.StatusCreated, code)
	if deposit == "" {
		return
	}
	code, env := s.call(t, http.MethodPost, "/api/v1/wallet/request", userID, role, map[string]string{"amount": deposit})
	require.Equal(t, http.StatusCreated, code, env.Message)
	var req domain.FundRequest
	require.NoError(t, json.Unmarshal(env.Data, &req))
	code, env = s.call(t, http.MethodPut, "/api/v1/wallet/requests/"+req.ID+"/approve", "admin-1", domain.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, code, env.Message)
}

func (s *stack) createAuction(t *testing.T, farmerID string) *domain.Auction {
	t.Helper()
	code, env := s.call(t, http.MethodPost, "/api/v1/auctions", farmerID, domain.RoleFarmer, map[string]any{
		"product_name":   "Tomatoes",
		"quantity":       "50",
		"starting_price": "20",
		"end_time":       time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, code, env.Message)
	var a domain.Auction
	require.NoError(t, json.Unmarshal(env.Data, &a))
	require.Equal(t, domain.AuctionLive, a.Status)
	return &a
}

func TestPublicRoutes(t *testing.T) {
	s := newStack(t, nil, Options{})

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	s.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIRequiresIdentity(t *testing.T) {
	s := newStack(t, nil, Options{})

	code, _ := s.call(t, http.MethodGet, "/api/v1/auctions", "", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.call(t, http.MethodGet, "/api/v1/auctions", "u1", "pirate", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestAuctionToPayoutOverHTTP(t *testing.T) {
	s := newStack(t, nil, Options{})
	s.openWallet(t, "farmer-1", domain.RoleFarmer, "")
	s.openWallet(t, "buyer-1", domain.RoleBuyer, "100")
	a := s.createAuction(t, "farmer-1")
	bidPath := "/api/v1/auctions/" + a.ID + "/bids"

	code, env := s.call(t, http.MethodPost, bidPath, "buyer-1", domain.RoleBuyer, map[string]string{"amount": "5"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Contains(t, string(env.Data), "minimum_bid")

	code, env = s.call(t, http.MethodPost, bidPath, "buyer-1", domain.RoleBuyer, map[string]string{"amount": "1000"})
	assert.Equal(t, http.StatusPaymentRequired, code)
	assert.Contains(t, string(env.Data), "available")

	code, _ = s.call(t, http.MethodPost, bidPath, "farmer-1", domain.RoleFarmer, map[string]string{"amount": "50"})
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.call(t, http.MethodPost, bidPath, "escrow", domain.RoleBuyer, map[string]string{"amount": "50"})
	assert.Equal(t, http.StatusForbidden, code)

	code, env = s.call(t, http.MethodPost, bidPath, "buyer-1", domain.RoleBuyer, map[string]string{"amount": "50"})
	require.Equal(t, http.StatusCreated, code, env.Message)

	code, env = s.call(t, http.MethodGet, bidPath, "buyer-1", domain.RoleBuyer, nil)
	require.Equal(t, http.StatusOK, code)
	var bids []domain.Bid
	require.NoError(t, json.Unmarshal(env.Data, &bids))
	assert.Len(t, bids, 1)

	// Only the seller or an admin may close early.
	code, _ = s.call(t, http.MethodPost, "/api/v1/auctions/"+a.ID+"/end", "buyer-1", domain.RoleBuyer, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = s.call(t, http.MethodPost, "/api/v1/auctions/"+a.ID+"/end", "farmer-1", domain.RoleFarmer, nil)
	require.Equal(t, http.StatusOK, code)
	s.auctions.WaitFollowUps()

	code, env = s.call(t, http.MethodGet, "/api/v1/auctions/"+a.ID, "buyer-1", domain.RoleBuyer, nil)
	require.Equal(t, http.StatusOK, code)
	var ended domain.Auction
	require.NoError(t, json.Unmarshal(env.Data, &ended))
	assert.Equal(t, domain.SettlementInEscrow, ended.SettlementStatus)
	require.NotEmpty(t, ended.OrderID)

	code, _ = s.call(t, http.MethodPost, "/api/v1/escrow/settle/"+a.ID, "admin-1", domain.RoleAdmin, nil)
	assert.Equal(t, http.StatusConflict, code)

	code, _ = s.call(t, http.MethodGet, "/api/v1/escrow/orders/"+ended.OrderID, "stranger", domain.RoleBuyer, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = s.call(t, http.MethodPost, "/api/v1/escrow/confirm-delivery/"+ended.OrderID, "buyer-1", domain.RoleBuyer, nil)
	require.Equal(t, http.StatusOK, code, env.Message)

	code, _ = s.call(t, http.MethodPost, "/api/v1/escrow/refund/"+ended.OrderID, "admin-1", domain.RoleAdmin, nil)
	assert.Equal(t, http.StatusConflict, code)

	code, env = s.call(t, http.MethodGet, "/api/v1/wallet", "farmer-1", domain.RoleFarmer, nil)
	require.Equal(t, http.StatusOK, code)
	var farmer domain.Account
	require.NoError(t, json.Unmarshal(env.Data, &farmer))
	assert.Equal(t, domain.MustAmount("50"), farmer.Balance)

	code, env = s.call(t, http.MethodGet, "/api/v1/wallet/transactions", "buyer-1", domain.RoleBuyer, nil)
	require.Equal(t, http.StatusOK, code)
	var entries []domain.LedgerEntry
	require.NoError(t, json.Unmarshal(env.Data, &entries))
	assert.Len(t, entries, 2)
}

func TestEscrowAdminRoutes(t *testing.T) {
	s := newStack(t, nil, Options{})

	code, _ := s.call(t, http.MethodPost, "/api/v1/escrow/settle/auc_1", "buyer-1", domain.RoleBuyer, nil)
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = s.call(t, http.MethodGet, "/api/v1/escrow/scheduler", "buyer-1", domain.RoleBuyer, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.call(t, http.MethodPost, "/api/v1/escrow/settle/missing", "admin-1", domain.RoleAdmin, nil)
	assert.Equal(t, http.StatusNotFound, code)

	lease, err := s.locker.TryAcquire(context.Background(), "settlement:auction:auc_busy")
	require.NoError(t, err)
	code, _ = s.call(t, http.MethodPost, "/api/v1/escrow/settle/auc_busy", "admin-1", domain.RoleAdmin, nil)
	assert.Equal(t, http.StatusLocked, code)
	require.NoError(t, lease.Release(context.Background()))

	code, env := s.call(t, http.MethodGet, "/api/v1/escrow/scheduler", "admin-1", domain.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, code)
	var status worker.AutoConfirmStatus
	require.NoError(t, json.Unmarshal(env.Data, &status))
	assert.False(t, status.Active)

	code, env = s.call(t, http.MethodPost, "/api/v1/escrow/process-auto-confirmations", "admin-1", domain.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, code)
	var report domain.SweepReport
	require.NoError(t, json.Unmarshal(env.Data, &report))
	assert.Zero(t, report.Processed)
}

func TestUnknownAuctionAndBadBody(t *testing.T) {
	s := newStack(t, nil, Options{})

	code, _ := s.call(t, http.MethodGet, "/api/v1/auctions/nope", "buyer-1", domain.RoleBuyer, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = s.call(t, http.MethodPost, "/api/v1/auctions", "farmer-1", domain.RoleFarmer, map[string]any{"colour": "red"})
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestBidRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	s := newStack(t, rdb, Options{BidRateLimit: 2})
	s.openWallet(t, "farmer-1", domain.RoleFarmer, "")
	s.openWallet(t, "buyer-1", domain.RoleBuyer, "1000")
	a := s.createAuction(t, "farmer-1")
	bidPath := "/api/v1/auctions/" + a.ID + "/bids"

	for _, amount := range []string{"50", "100"} {
		code, env := s.call(t, http.MethodPost, bidPath, "buyer-1", domain.RoleBuyer, map[string]string{"amount": amount})
		require.Equal(t, http.StatusCreated, code, env.Message)
	}
	code, _ := s.call(t, http.MethodPost, bidPath, "buyer-1", domain.RoleBuyer, map[string]string{"amount": "150"})
	assert.Equal(t, http.StatusTooManyRequests, code)

	// Reads are not limited.
	code, _ = s.call(t, http.MethodGet, bidPath, "buyer-1", domain.RoleBuyer, nil)
	assert.Equal(t, http.StatusOK, code)
}

func TestFundRequestFlowOverHTTP(t *testing.T) {
	s := newStack(t, nil, Options{})
	s.openWallet(t, "buyer-1", domain.RoleBuyer, "")

	balance := func() domain.Amount {
		code, env := s.call(t, http.MethodGet, "/api/v1/wallet", "buyer-1", domain.RoleBuyer, nil)
		require.Equal(t, http.StatusOK, code)
		var acc domain.Account
		require.NoError(t, json.Unmarshal(env.Data, &acc))
		return acc.Balance
	}

	// Users cannot credit themselves.
	code, _ := s.call(t, http.MethodPost, "/api/v1/wallet/deposit", "buyer-1", domain.RoleBuyer,
		map[string]string{"account_id": "buyer-1", "amount": "1000"})
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, domain.Amount(0), balance())

	code, _ = s.call(t, http.MethodPost, "/api/v1/wallet/request", "buyer-1", domain.RoleBuyer, map[string]string{"amount": "0"})
	assert.Equal(t, http.StatusBadRequest, code)

	code, env := s.call(t, http.MethodPost, "/api/v1/wallet/request", "buyer-1", domain.RoleBuyer,
		map[string]string{"amount": "250", "note": "bank transfer"})
	require.Equal(t, http.StatusCreated, code)
	var req domain.FundRequest
	require.NoError(t, json.Unmarshal(env.Data, &req))
	assert.Equal(t, domain.FundRequestPending, req.Status)
	assert.Equal(t, domain.Amount(0), balance())

	code, _ = s.call(t, http.MethodPut, "/api/v1/wallet/requests/"+req.ID+"/approve", "buyer-1", domain.RoleBuyer, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, env = s.call(t, http.MethodGet, "/api/v1/wallet/requests?status=pending", "admin-1", domain.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, code)
	var pending []domain.FundRequest
	require.NoError(t, json.Unmarshal(env.Data, &pending))
	require.Len(t, pending, 1)
	assert.Equal(t, req.ID, pending[0].ID)

	code, _ = s.call(t, http.MethodPut, "/api/v1/wallet/requests/"+req.ID+"/approve", "admin-1", domain.RoleAdmin, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, domain.MustAmount("250"), balance())

	code, _ = s.call(t, http.MethodPut, "/api/v1/wallet/requests/"+req.ID+"/approve", "admin-1", domain.RoleAdmin, nil)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, domain.MustAmount("250"), balance())

	code, env = s.call(t, http.MethodPost, "/api/v1/wallet/request", "buyer-1", domain.RoleBuyer, map[string]string{"amount": "90"})
	require.Equal(t, http.StatusCreated, code)
	require.NoError(t, json.Unmarshal(env.Data, &req))
	code, env = s.call(t, http.MethodPut, "/api/v1/wallet/requests/"+req.ID+"/reject", "admin-1", domain.RoleAdmin,
		map[string]string{"reason": "no proof of payment"})
	require.Equal(t, http.StatusOK, code)
	var rejected domain.FundRequest
	require.NoError(t, json.Unmarshal(env.Data, &rejected))
	assert.Equal(t, domain.FundRequestRejected, rejected.Status)
	assert.Equal(t, "no proof of payment", rejected.Note)
	assert.Equal(t, domain.MustAmount("250"), balance())

	code, env = s.call(t, http.MethodGet, "/api/v1/wallet/requests", "buyer-1", domain.RoleBuyer, nil)
	require.Equal(t, http.StatusOK, code)
	var own []domain.FundRequest
	require.NoError(t, json.Unmarshal(env.Data, &own))
	assert.Len(t, own, 2)

	code, _ = s.call(t, http.MethodPost, "/api/v1/wallet/deposit", "admin-1", domain.RoleAdmin, map[string]string{"amount": "10"})
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = s.call(t, http.MethodPost, "/api/v1/wallet/deposit", "admin-1", domain.RoleAdmin,
		map[string]string{"account_id": "buyer-1", "amount": "10"})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, domain.MustAmount("260"), balance())
}

func TestOrderListingRoutes(t *testing.T) {
	s := newStack(t, nil, Options{})
	s.openWallet(t, "farmer-1", domain.RoleFarmer, "")
	s.openWallet(t, "buyer-1", domain.RoleBuyer, "500")
	s.openWallet(t, "buyer-2", domain.RoleBuyer, "500")

	win := func(buyerID, amount string) {
		a := s.createAuction(t, "farmer-1")
		code, env := s.call(t, http.MethodPost, "/api/v1/auctions/"+a.ID+"/bids", buyerID, domain.RoleBuyer, map[string]string{"amount": amount})
		require.Equal(t, http.StatusCreated, code, env.Message)
		code, _ = s.call(t, http.MethodPost, "/api/v1/auctions/"+a.ID+"/end", "farmer-1", domain.RoleFarmer, nil)
		require.Equal(t, http.StatusOK, code)
		s.auctions.WaitFollowUps()
	}
	win("buyer-1", "50")
	win("buyer-1", "60")
	win("buyer-2", "70")

	list := func(path, userID string, role domain.Role) []domain.Order {
		t.Helper()
		code, env := s.call(t, http.MethodGet, path, userID, role, nil)
		require.Equal(t, http.StatusOK, code, env.Message)
		var orders []domain.Order
		require.NoError(t, json.Unmarshal(env.Data, &orders))
		return orders
	}

	mine := list("/api/v1/escrow/my-orders", "buyer-1", domain.RoleBuyer)
	require.Len(t, mine, 2)
	for _, o := range mine {
		assert.Equal(t, "buyer-1", o.BuyerID)
		assert.Equal(t, domain.EscrowHeld, o.EscrowStatus)
	}
	assert.Empty(t, list("/api/v1/escrow/my-orders", "farmer-1", domain.RoleFarmer))

	assert.Len(t, list("/api/v1/escrow/farmer-orders", "farmer-1", domain.RoleFarmer), 3)
	assert.Empty(t, list("/api/v1/escrow/farmer-orders", "buyer-1", domain.RoleBuyer))

	code, _ := s.call(t, http.MethodGet, "/api/v1/escrow/orders", "buyer-1", domain.RoleBuyer, nil)
	assert.Equal(t, http.StatusForbidden, code)
	assert.Len(t, list("/api/v1/escrow/orders", "admin-1", domain.RoleAdmin), 3)
	others := list("/api/v1/escrow/orders?buyer_id=buyer-2", "admin-1", domain.RoleAdmin)
	require.Len(t, others, 1)
	assert.Equal(t, domain.MustAmount("70"), others[0].Amount)
	assert.Empty(t, list("/api/v1/escrow/orders?escrow_status=released", "admin-1", domain.RoleAdmin))

	code, _ = s.call(t, http.MethodGet, "/api/v1/escrow/orders?escrow_status=lost", "admin-1", domain.RoleAdmin, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}
