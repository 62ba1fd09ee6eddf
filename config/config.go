package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Ledger   LedgerConfig
	Pot      PotConfig
}

type ServerConfig struct {
	Port         string
	Env          string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	RateLimitRPS float64
	RateBurst    int
}

type DatabaseConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	ConnectRetries  int
}

// RedisConfig is optional; an empty Addr disables Redis-backed locks and publication.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	AccessSecret string
	Issuer       string
	AccessExpiry time.Duration
}

// LedgerConfig selects how two-wallet mutations are executed.
//
// Mode "atomic" runs each operation in one database transaction.
// Mode "saga" applies single-row writes with compensations and a durable outbox.
type LedgerConfig struct {
	Mode                 string
	CASRetries           int
	CompensationAttempts int
	CompensationBackoff  time.Duration
	OutboxInterval       time.Duration
	OutboxMaxAttempts    int
	OutboxBatch          int
}

type PotConfig struct {
	PenaltyWalletID string
	LockBackend     string
	LockTTL         time.Duration
	LockWait        time.Duration
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", "8099"),
			Env:          getEnv("APP_ENV", "development"),
			ReadTimeout:  getEnvDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getEnvDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			RateLimitRPS: getEnvFloat("RATE_LIMIT_RPS", 5),
			RateBurst:    getEnvInt("RATE_LIMIT_BURST", 10),
		},
		Database: DatabaseConfig{
			DSN:             getEnv("DATABASE_DSN", "potledger:potledger@tcp(localhost:3306)/potledger?charset=utf8mb4&parseTime=True&loc=UTC"),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 10),
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 100),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", time.Hour),
			ConnectRetries:  getEnvInt("DB_CONNECT_RETRIES", 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			AccessSecret: getEnv("JWT_ACCESS_SECRET", "change-me-in-production"),
			Issuer:       getEnv("JWT_ISSUER", "potledger"),
			AccessExpiry: getEnvDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
		},
		Ledger: LedgerConfig{
			Mode:                 getEnv("LEDGER_MODE", "atomic"),
			CASRetries:           getEnvInt("LEDGER_CAS_RETRIES", 5),
			CompensationAttempts: getEnvInt("LEDGER_COMPENSATION_ATTEMPTS", 3),
			CompensationBackoff:  getEnvDuration("LEDGER_COMPENSATION_BACKOFF", 100*time.Millisecond),
			OutboxInterval:       getEnvDuration("LEDGER_OUTBOX_INTERVAL", 30*time.Second),
			OutboxMaxAttempts:    getEnvInt("LEDGER_OUTBOX_MAX_ATTEMPTS", 10),
			OutboxBatch:          getEnvInt("LEDGER_OUTBOX_BATCH", 50),
		},
		Pot: PotConfig{
			PenaltyWalletID: getEnv("POT_PENALTY_WALLET_ID", ""),
			LockBackend:     getEnv("POT_LOCK_BACKEND", "local"),
			LockTTL:         getEnvDuration("POT_LOCK_TTL", 30*time.Second),
			LockWait:        getEnvDuration("POT_LOCK_WAIT", 5*time.Second),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
