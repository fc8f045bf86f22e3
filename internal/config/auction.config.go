package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"auction-service/internal/domain"
)

type AppConfig struct {
	Env      string
	HTTPAddr string
	GRPCAddr string

	StoreBackend string // postgres | memory
	LockBackend  string // local | redis | postgres

	DB DBConfig

	RedisAddr string
	RedisPass string

	KafkaBrokers []string
	KafkaTopic   string

	EscrowAccountID    string
	EscrowAccountEmail string

	AutoConfirmDays        int
	SchedulerInterval      time.Duration
	SchedulerStartDelay    time.Duration
	SchedulerEnabled       bool
	SettlementLockTimeout  time.Duration
	DefaultMinBidIncrement domain.Amount
	AuctionTickInterval    time.Duration

	NotifyQueueSize int
	BidRateLimit    int
	AllowedOrigins  []string
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
}

func (c DBConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

// AutoConfirmAfter is the grace period between escrow hold and automatic
// release.
func (c AppConfig) AutoConfirmAfter() time.Duration {
	return time.Duration(c.AutoConfirmDays) * 24 * time.Hour
}

// RedisEnabled is false when REDIS_ADDR is explicitly set to "none".
func (c AppConfig) RedisEnabled() bool {
	return c.RedisAddr != "" && c.RedisAddr != "none"
}

func (c AppConfig) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func Load() (AppConfig, error) {
	minIncrement, err := domain.ParseAmount(getEnv("DEFAULT_MIN_BID_INCREMENT", "10"))
	if err != nil {
		return AppConfig{}, fmt.Errorf("DEFAULT_MIN_BID_INCREMENT: %w", err)
	}

	cfg := AppConfig{
		Env:      getEnv("APP_ENV", "production"),
		HTTPAddr: getEnv("HTTP_ADDR", ":8030"),
		GRPCAddr: getEnv("GRPC_ADDR", ":8031"),

		StoreBackend: strings.ToLower(getEnv("STORE_BACKEND", "postgres")),
		LockBackend:  strings.ToLower(getEnv("LOCK_BACKEND", "local")),

		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "auctions"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(getEnvAsInt("DB_MAX_CONNS", 50)),
		},

		RedisAddr: getEnv("REDIS_ADDR", "redis:6379"),
		RedisPass: getEnv("REDIS_PASS", ""),

		KafkaBrokers: getEnvSlice("KAFKA_BROKERS", nil),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "auction.notifications"),

		EscrowAccountID:    getEnv("ESCROW_ACCOUNT_ID", ""),
		EscrowAccountEmail: getEnv("ESCROW_ACCOUNT_EMAIL", "admin@farm2home.com"),

		AutoConfirmDays:        getEnvAsInt("AUTO_CONFIRM_DAYS", 7),
		SchedulerInterval:      time.Duration(getEnvAsInt("SCHEDULER_INTERVAL_HOURS", 6)) * time.Hour,
		SchedulerStartDelay:    time.Duration(getEnvAsInt("SCHEDULER_START_DELAY_SECONDS", 5)) * time.Second,
		SchedulerEnabled:       getEnvAsBool("AUTO_CONFIRM_SCHEDULER_ENABLED", true),
		SettlementLockTimeout:  time.Duration(getEnvAsInt("SETTLEMENT_LOCK_TIMEOUT_SECONDS", 30)) * time.Second,
		DefaultMinBidIncrement: minIncrement,
		AuctionTickInterval:    time.Duration(getEnvAsInt("AUCTION_TICK_SECONDS", 30)) * time.Second,

		NotifyQueueSize: getEnvAsInt("NOTIFY_QUEUE_SIZE", 1024),
		BidRateLimit:    getEnvAsInt("BID_RATE_LIMIT", 30),
		AllowedOrigins:  getEnvSlice("ALLOWED_ORIGINS", nil),
	}
	return cfg, cfg.validate()
}

func (c AppConfig) validate() error {
	switch c.StoreBackend {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.StoreBackend)
	}
	switch c.LockBackend {
	case "local", "redis", "postgres":
	default:
		return fmt.Errorf("unknown LOCK_BACKEND %q", c.LockBackend)
	}
	if c.LockBackend == "redis" && !c.RedisEnabled() {
		return fmt.Errorf("LOCK_BACKEND=redis requires REDIS_ADDR")
	}
	if c.LockBackend == "postgres" && c.StoreBackend != "postgres" {
		return fmt.Errorf("LOCK_BACKEND=postgres requires STORE_BACKEND=postgres")
	}
	if c.AutoConfirmDays <= 0 {
		return fmt.Errorf("AUTO_CONFIRM_DAYS must be positive")
	}
	if c.SchedulerInterval <= 0 || c.AuctionTickInterval <= 0 || c.SettlementLockTimeout <= 0 {
		return fmt.Errorf("scheduler, tick and lock intervals must be positive")
	}
	if !c.DefaultMinBidIncrement.IsPositive() {
		return fmt.Errorf("DEFAULT_MIN_BID_INCREMENT must be positive")
	}
	if c.EscrowAccountID == "" && c.EscrowAccountEmail == "" {
		return fmt.Errorf("one of ESCROW_ACCOUNT_ID or ESCROW_ACCOUNT_EMAIL is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvAsBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvSlice(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return fallback
}
