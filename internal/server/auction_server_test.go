package server

import (
	"context"
	"testing"
	"time"

	"auction-service/internal/config"
	"auction-service/internal/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig() config.AppConfig {
	return config.AppConfig{
		Env:                    "test",
		HTTPAddr:               "127.0.0.1:0",
		GRPCAddr:               "127.0.0.1:0",
		StoreBackend:           "memory",
		LockBackend:            "local",
		RedisAddr:              "none",
		EscrowAccountEmail:     "escrow@example.com",
		AutoConfirmDays:        7,
		SchedulerInterval:      time.Hour,
		SchedulerStartDelay:    time.Hour,
		SchedulerEnabled:       true,
		SettlementLockTimeout:  5 * time.Second,
		DefaultMinBidIncrement: domain.MustAmount("10"),
		AuctionTickInterval:    time.Hour,
	}
}

func TestNewServerResolvesEscrow(t *testing.T) {
	s, err := NewServer(testConfig(), zap.NewNop())
	require.NoError(t, err)

	assert.True(t, s.settlement.Ready())
	assert.Nil(t, s.rdb)
	assert.Nil(t, s.relay)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, s.Shutdown(ctx))
}

func TestNewServerWithoutEscrowStillBoots(t *testing.T) {
	cfg := testConfig()
	cfg.EscrowAccountEmail = ""

	s, err := NewServer(cfg, zap.NewNop())
	require.NoError(t, err)
	assert.False(t, s.settlement.Ready())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(t, s.Shutdown(ctx))
}

func TestServeAndShutdownWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.RedisAddr = mr.Addr()
	cfg.LockBackend = "redis"

	s, err := NewServer(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, s.rdb)
	require.NotNil(t, s.relay)

	done := make(chan error, 1)
	go func() { done <- s.ListenAndServe() }()

	require.Eventually(t, func() bool { return s.sweeper.Status().Active }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("ListenAndServe did not return after shutdown")
	}
}
