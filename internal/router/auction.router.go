// internal/router/auction.router.go
package router

import (
	"net/http"
	"time"

	"auction-service/internal/domain"
	rh "auction-service/internal/handler/rest"
	wsh "auction-service/internal/handler/websocket"
	"auction-service/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type Options struct {
	// BidRateLimit is bids per minute per user; zero disables limiting.
	BidRateLimit int
	// AllowedOrigins is the CORS allow list. Empty allows any origin.
	AllowedOrigins []string
}

func SetupRoutes(
	r chi.Router,
	restHandler *rh.RestHandler,
	wsHandler *wsh.WebSocketHandler,
	rdb redis.UniversalClient,
	opts Options,
) chi.Router {

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// ---- Global Middleware ----
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.HeaderUserID, middleware.HeaderRole},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(middleware.Actor)

	// ---------- Public ----------
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Auction service is running"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", wsHandler.HandleConnection)

	admin := middleware.RequireRole(domain.RoleAdmin, domain.RoleSystem)

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.RequireActor)

		// ============ AUCTIONS ============
		api.Route("/auctions", func(ar chi.Router) {
			ar.Get("/", restHandler.ListAuctions)
			ar.Post("/", restHandler.CreateAuction)
			ar.Get("/{id}", restHandler.GetAuction)
			ar.Get("/{id}/bids", restHandler.ListBids)
			ar.With(middleware.RateLimiter(rdb, opts.BidRateLimit, time.Minute, 5*time.Minute, "auction:bids")).
				Post("/{id}/bids", restHandler.PlaceBid)
			ar.Post("/{id}/end", restHandler.EndAuction)
			ar.Post("/{id}/cancel", restHandler.CancelAuction)
		})

		// ============ ESCROW ============
		api.Route("/escrow", func(er chi.Router) {
			er.Post("/confirm-delivery/{orderID}", restHandler.ConfirmDelivery)
			er.Get("/my-orders", restHandler.MyOrders)
			er.Get("/farmer-orders", restHandler.FarmerOrders)
			er.Get("/orders/{orderID}", restHandler.GetOrder)

			er.Group(func(ad chi.Router) {
				ad.Use(admin)
				ad.Post("/settle/{auctionID}", restHandler.SettleAuction)
				ad.Post("/retry-settlement/{auctionID}", restHandler.RetrySettlement)
				ad.Post("/refund/{orderID}", restHandler.Refund)
				ad.Post("/process-auto-confirmations", restHandler.ProcessAutoConfirmations)
				ad.Get("/orders", restHandler.ListOrders)
				ad.Get("/scheduler", restHandler.SchedulerStatus)
			})
		})

		// ============ WALLET ============
		api.Route("/wallet", func(wr chi.Router) {
			wr.Get("/", restHandler.GetWallet)
			wr.Post("/", restHandler.OpenWallet)
			wr.Get("/transactions", restHandler.GetTransactions)
			wr.Post("/request", restHandler.RequestFunds)
			wr.Get("/requests", restHandler.ListFundRequests)

			wr.Group(func(ad chi.Router) {
				ad.Use(admin)
				ad.Put("/requests/{requestID}/approve", restHandler.ApproveFundRequest)
				ad.Put("/requests/{requestID}/reject", restHandler.RejectFundRequest)
				ad.Post("/deposit", restHandler.Deposit)
			})
		})
	})

	return r
}
