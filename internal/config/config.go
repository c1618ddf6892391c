package config

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application level configuration loaded from environment and flags.
type Config struct {
	RunAddress              string
	DatabaseURI             string
	SettlementSystemAddress string
	JWTSecret               string
	LotteryPrepareTTL       time.Duration
	DeferredLotteryClose    bool
	RecoveryPollInterval    time.Duration
	RecoveryStaleAfter      time.Duration
	RecoveryBatchSize       int
	WorkerPoolSize          int
	ShutdownTimeout         time.Duration
	LogLevel                string
}

const (
	defaultRunAddress           = ":8080"
	defaultJWTSecret            = "change-me-in-production"
	defaultLotteryPrepareTTL    = 15 * time.Minute
	defaultRecoveryPollInterval = 30 * time.Second
	defaultRecoveryStaleAfter   = 10 * time.Minute
	defaultRecoveryBatchSize    = 16
	defaultWorkerPoolSize       = 2
	defaultShutdownTimeout      = 10 * time.Second
	defaultLogLevel             = "info"
)

// Load parses configuration from flags and environment variables.
func Load() (*Config, error) {
	return load(os.Args[1:], os.LookupEnv)
}

type envLookup func(string) (string, bool)

func load(args []string, lookup envLookup) (*Config, error) {
	cfg := &Config{
		RunAddress:              getString(lookup, "RUN_ADDRESS", defaultRunAddress),
		DatabaseURI:             getString(lookup, "DATABASE_URI", ""),
		SettlementSystemAddress: getString(lookup, "SETTLEMENT_SYSTEM_ADDRESS", ""),
		JWTSecret:               getString(lookup, "JWT_SECRET", defaultJWTSecret),
		LotteryPrepareTTL:       getDuration(lookup, "LOTTERY_PREPARE_TTL", defaultLotteryPrepareTTL),
		DeferredLotteryClose:    getBool(lookup, "DEFERRED_LOTTERY_CLOSE", false),
		RecoveryPollInterval:    getDuration(lookup, "RECOVERY_POLL_INTERVAL", defaultRecoveryPollInterval),
		RecoveryStaleAfter:      getDuration(lookup, "RECOVERY_STALE_AFTER", defaultRecoveryStaleAfter),
		RecoveryBatchSize:       getInt(lookup, "RECOVERY_BATCH_SIZE", defaultRecoveryBatchSize),
		WorkerPoolSize:          getInt(lookup, "WORKER_POOL_SIZE", defaultWorkerPoolSize),
		ShutdownTimeout:         getDuration(lookup, "SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		LogLevel:                getString(lookup, "LOG_LEVEL", defaultLogLevel),
	}

	fs := flag.NewFlagSet("shiftclose", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		prepareTTLStr      = cfg.LotteryPrepareTTL.String()
		pollIntervalStr    = cfg.RecoveryPollInterval.String()
		staleAfterStr      = cfg.RecoveryStaleAfter.String()
		shutdownTimeoutStr = cfg.ShutdownTimeout.String()
	)

	fs.StringVar(&cfg.RunAddress, "a", cfg.RunAddress, "HTTP server listen address")
	fs.StringVar(&cfg.DatabaseURI, "d", cfg.DatabaseURI, "PostgreSQL DSN")
	fs.StringVar(&cfg.SettlementSystemAddress, "s", cfg.SettlementSystemAddress, "Settlement system base URL")
	fs.StringVar(&cfg.JWTSecret, "jwt-secret", cfg.JWTSecret, "Secret for verifying session tokens")
	fs.StringVar(&prepareTTLStr, "prepare-ttl", prepareTTLStr, "Validity window of a lottery prepare")
	fs.BoolVar(&cfg.DeferredLotteryClose, "deferred-lottery-close", cfg.DeferredLotteryClose, "Allow lottery commit only from day-close finalize")
	fs.StringVar(&pollIntervalStr, "recovery-interval", pollIntervalStr, "Interval between stale finalize sweeps")
	fs.StringVar(&staleAfterStr, "recovery-stale-after", staleAfterStr, "Age after which a FINALIZING draft is recovered")
	fs.IntVar(&cfg.RecoveryBatchSize, "recovery-batch", cfg.RecoveryBatchSize, "Maximum drafts per recovery sweep")
	fs.IntVar(&cfg.WorkerPoolSize, "worker-pool", cfg.WorkerPoolSize, "Number of concurrent recovery workers")
	fs.StringVar(&shutdownTimeoutStr, "shutdown-timeout", shutdownTimeoutStr, "Graceful shutdown timeout")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn or error")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}

	var err error

	if cfg.LotteryPrepareTTL, err = time.ParseDuration(prepareTTLStr); err != nil {
		return nil, fmt.Errorf("invalid prepare ttl: %w", err)
	}

	if cfg.RecoveryPollInterval, err = time.ParseDuration(pollIntervalStr); err != nil {
		return nil, fmt.Errorf("invalid recovery interval: %w", err)
	}

	if cfg.RecoveryStaleAfter, err = time.ParseDuration(staleAfterStr); err != nil {
		return nil, fmt.Errorf("invalid recovery stale age: %w", err)
	}

	if cfg.ShutdownTimeout, err = time.ParseDuration(shutdownTimeoutStr); err != nil {
		return nil, fmt.Errorf("invalid shutdown timeout: %w", err)
	}

	if secretFile, ok := lookup("JWT_SECRET_FILE"); ok && secretFile != "" {
		content, err := os.ReadFile(secretFile)
		if err != nil {
			return nil, fmt.Errorf("read jwt secret file: %w", err)
		}
		cfg.JWTSecret = strings.TrimSpace(string(content))
	}

	if cfg.LotteryPrepareTTL <= 0 {
		cfg.LotteryPrepareTTL = defaultLotteryPrepareTTL
	}

	if cfg.RecoveryPollInterval <= 0 {
		cfg.RecoveryPollInterval = defaultRecoveryPollInterval
	}

	if cfg.RecoveryStaleAfter <= 0 {
		cfg.RecoveryStaleAfter = defaultRecoveryStaleAfter
	}

	if cfg.RecoveryBatchSize <= 0 {
		cfg.RecoveryBatchSize = defaultRecoveryBatchSize
	}

	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = defaultWorkerPoolSize
	}

	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}

	if cfg.DatabaseURI == "" {
		return nil, fmt.Errorf("database URI must be provided")
	}

	if cfg.SettlementSystemAddress == "" {
		return nil, fmt.Errorf("settlement system address must be provided")
	}

	return cfg, nil
}

func getString(lookup envLookup, key, def string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return def
}

func getInt(lookup envLookup, key string, def int) int {
	if v, ok := lookup(key); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getBool(lookup envLookup, key string, def bool) bool {
	if v, ok := lookup(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDuration(lookup envLookup, key string, def time.Duration) time.Duration {
	if v, ok := lookup(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
