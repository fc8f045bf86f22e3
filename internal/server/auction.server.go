// internal/server/auction.server.go
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"auction-service/internal/config"
	"auction-service/internal/domain"
	hgrpc "auction-service/internal/handler/grpc"
	rh "auction-service/internal/handler/rest"
	wsh "auction-service/internal/handler/websocket"
	"auction-service/internal/lock"
	"auction-service/internal/pub"
	"auction-service/internal/repository"
	"auction-service/internal/router"
	"auction-service/internal/usecase"
	"auction-service/internal/worker"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// Server owns every long-lived component of the service.
type Server struct {
	cfg    config.AppConfig
	logger *zap.Logger

	db    *pgxpool.Pool
	rdb   redis.UniversalClient
	kafka *kafka.Writer

	dispatcher *pub.Dispatcher
	relay      *wsh.Relay
	auctions   *usecase.AuctionUsecase
	settlement *usecase.SettlementUsecase
	sweeper    *worker.AutoConfirmWorker
	ticker     *worker.AuctionTicker
	health     *hgrpc.HealthHandler

	httpServer *http.Server
	grpcServer *grpc.Server

	ctx     context.Context
	cancel  context.CancelFunc
	started atomic.Bool
	workers sync.WaitGroup
}

func NewServer(cfg config.AppConfig, logger *zap.Logger) (*Server, error) {
	s := &Server{cfg: cfg, logger: logger}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	ctx := context.Background()

	// --- Store ---
	var store repository.Store
	switch cfg.StoreBackend {
	case "postgres":
		db, err := config.ConnectDB(cfg.DB, logger)
		if err != nil {
			return nil, err
		}
		s.db = db
		pg := repository.NewPostgresStore(db)
		if err := pg.Migrate(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to migrate schema: %w", err)
		}
		store = pg
	default:
		logger.Warn("using in-memory store, state will not survive a restart")
		store = repository.NewMemoryStore()
	}

	// --- Redis ---
	if cfg.RedisEnabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       0,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			if cfg.LockBackend == "redis" {
				s.closeClients()
				return nil, fmt.Errorf("failed to connect to Redis: %w", err)
			}
			logger.Warn("redis unavailable, continuing without cache, relay or rate limiting", zap.Error(err))
			rdb.Close()
		} else {
			logger.Info("redis connected", zap.String("addr", cfg.RedisAddr))
			s.rdb = rdb
		}
	}

	// --- Locks ---
	var locker lock.Locker
	switch cfg.LockBackend {
	case "redis":
		locker = lock.NewRedisLocker(s.rdb, "auction:lock", cfg.SettlementLockTimeout)
	case "postgres":
		locker = lock.NewPostgresLocker(s.db, cfg.SettlementLockTimeout)
	default:
		locker = lock.NewLocalLocker(cfg.SettlementLockTimeout)
	}

	// --- Ledger & escrow account ---
	ledger := usecase.NewLedgerUsecase(store, s.rdb, logger)
	escrow, err := s.resolveEscrow(ctx, ledger)
	if err != nil {
		logger.Error("escrow account unavailable, settlement disabled", zap.Error(err))
	}

	// --- Notifications ---
	hub := wsh.NewHub(logger)
	sinks := pub.Multi{}
	if s.rdb != nil {
		sinks = append(sinks, pub.NewRedisPublisher(s.rdb))
		s.relay = wsh.NewRelay(s.rdb, hub, logger)
	} else {
		sinks = append(sinks, hub)
	}
	if cfg.KafkaEnabled() {
		s.kafka = pub.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic, logger)
		sinks = append(sinks, pub.NewKafkaPublisher(s.kafka))
		logger.Info("kafka publisher configured", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}
	s.dispatcher = pub.NewDispatcher(sinks, cfg.NotifyQueueSize, logger)

	// --- Usecases ---
	s.settlement = usecase.NewSettlementUsecase(store, locker, ledger, s.dispatcher, escrow,
		usecase.SettlementConfig{AutoConfirmAfter: cfg.AutoConfirmAfter()}, logger)
	s.auctions = usecase.NewAuctionUsecase(store, s.settlement, s.dispatcher, usecase.AuctionConfig{
		DefaultMinBidIncrement: cfg.DefaultMinBidIncrement,
		SettleTimeout:          cfg.SettlementLockTimeout,
	}, logger)

	// --- Workers ---
	s.sweeper = worker.NewAutoConfirmWorker(s.settlement, worker.AutoConfirmConfig{
		Interval:   cfg.SchedulerInterval,
		StartDelay: cfg.SchedulerStartDelay,
	}, logger)
	s.ticker = worker.NewAuctionTicker(s.auctions, s.settlement, cfg.AuctionTickInterval, logger)

	// --- Handlers ---
	restHandler := rh.NewRestHandler(s.auctions, s.settlement, ledger, s.sweeper, logger)
	wsHandler := wsh.NewWebSocketHandler(hub, cfg.AllowedOrigins, logger)
	s.health = hgrpc.NewHealthHandler(s.settlement)
	s.grpcServer = hgrpc.NewGRPCServer(s.health)

	// --- Router ---
	r := router.SetupRoutes(chi.NewRouter(), restHandler, wsHandler, s.rdb, router.Options{
		BidRateLimit:   cfg.BidRateLimit,
		AllowedOrigins: cfg.AllowedOrigins,
	})
	s.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// resolveEscrow creates the escrow account on first boot, then resolves it.
func (s *Server) resolveEscrow(ctx context.Context, ledger *usecase.LedgerUsecase) (domain.EscrowAccount, error) {
	if s.cfg.EscrowAccountID == "" && s.cfg.EscrowAccountEmail == "" {
		return domain.EscrowAccount{}, domain.ErrEscrowAccountMissing
	}
	if _, err := ledger.EnsureEscrowAccount(ctx, s.cfg.EscrowAccountID, s.cfg.EscrowAccountEmail); err != nil {
		return domain.EscrowAccount{}, err
	}
	escrow, err := ledger.ResolveEscrowAccount(ctx, s.cfg.EscrowAccountID, s.cfg.EscrowAccountEmail)
	if err != nil {
		return domain.EscrowAccount{}, err
	}
	s.logger.Info("escrow account resolved", zap.String("account_id", escrow.ID))
	return escrow, nil
}

// ListenAndServe starts the background workers and the gRPC listener, then
// blocks serving HTTP.
func (s *Server) ListenAndServe() error {
	lis, err := net.Listen("tcp", s.cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.GRPCAddr, err)
	}

	ctx := s.ctx
	s.started.Store(true)
	s.dispatcher.Start()

	s.goWorker(func() {
		s.logger.Info("gRPC server listening", zap.String("addr", lis.Addr().String()))
		if err := s.grpcServer.Serve(lis); err != nil {
			s.logger.Error("gRPC server stopped", zap.Error(err))
		}
	})

	if s.relay != nil {
		s.goWorker(func() {
			if err := s.relay.Run(ctx); err != nil {
				s.logger.Error("websocket relay stopped", zap.Error(err))
			}
		})
	}

	s.goWorker(func() { s.ticker.Start(ctx) })

	switch {
	case !s.cfg.SchedulerEnabled:
		s.logger.Info("auto-confirm scheduler disabled")
	case !s.settlement.Ready():
		s.logger.Warn("auto-confirm scheduler not started: escrow account missing")
	default:
		s.goWorker(func() { s.sweeper.Start(ctx) })
	}

	s.logger.Info("HTTP server listening", zap.String("addr", s.cfg.HTTPAddr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) goWorker(fn func()) {
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		fn()
	}()
}

// Shutdown stops intake first, lets in-flight settlement finish, flushes
// queued notifications and finally closes the clients.
func (s *Server) Shutdown(ctx context.Context) error {
	s.health.Shutdown()
	err := s.httpServer.Shutdown(ctx)

	s.sweeper.Stop()
	s.ticker.Stop()
	s.cancel()
	s.auctions.WaitFollowUps()

	s.grpcServer.GracefulStop()
	s.workers.Wait()

	if s.started.Load() {
		s.dispatcher.Stop()
	}
	s.closeClients()

	s.logger.Info("server stopped")
	return err
}

func (s *Server) closeClients() {
	if s.kafka != nil {
		if err := s.kafka.Close(); err != nil {
			s.logger.Warn("failed to close kafka writer", zap.Error(err))
		}
	}
	if s.rdb != nil {
		s.rdb.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
}
