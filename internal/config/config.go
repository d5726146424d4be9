// Package config loads application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	VaultPath  string
	AdminToken string
	LogLevel   slog.Level

	RPCURLs          []string
	ChainID          int64
	DonationContract string
	SpendingContract string
	WalletAddress    string
	ExplorerTxURL    string
	RPCTimeout       time.Duration
	FeeMarginPercent int
	ConfirmTimeout   time.Duration

	ScanInterval    time.Duration
	ScanMaxAge      time.Duration
	ScanLimit       int
	ScanConcurrency int
	AttemptGrace    time.Duration
	// MaxRetries counts attempts after the first one.
	MaxRetries      int
	RetryMinBackoff time.Duration
	RetryMaxBackoff time.Duration
}

// DefaultRPCURLs are the public Sepolia endpoints tried in order when
// AUTORECORD_RPC_URLS is unset.
var DefaultRPCURLs = []string{
	"https://ethereum-sepolia-rpc.publicnode.com",
	"https://sepolia.drpc.org",
	"https://rpc.sepolia.org",
}

const sepoliaChainID = 11155111

// Load reads configuration from environment variables and returns a validated Config.
// AUTORECORD_DONATION_CONTRACT is required; AUTORECORD_SPENDING_CONTRACT
// defaults to it. Every other variable has a default.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:       envOr("AUTORECORD_LISTEN_ADDR", "127.0.0.1:8080"),
		DBPath:           envOr("AUTORECORD_DB_PATH", "autorecord.db"),
		VaultPath:        envOr("AUTORECORD_VAULT_PATH", "vault.json"),
		AdminToken:       os.Getenv("AUTORECORD_ADMIN_TOKEN"),
		DonationContract: strings.TrimSpace(os.Getenv("AUTORECORD_DONATION_CONTRACT")),
		SpendingContract: strings.TrimSpace(os.Getenv("AUTORECORD_SPENDING_CONTRACT")),
		WalletAddress:    strings.TrimSpace(os.Getenv("AUTORECORD_WALLET_ADDRESS")),
		ExplorerTxURL:    envOr("AUTORECORD_EXPLORER_TX_URL", "https://sepolia.etherscan.io/tx/"),
		RPCURLs:          DefaultRPCURLs,
	}

	if cfg.DonationContract == "" {
		return nil, errors.New("AUTORECORD_DONATION_CONTRACT is required")
	}
	if cfg.SpendingContract == "" {
		cfg.SpendingContract = cfg.DonationContract
	}

	if v, ok := os.LookupEnv("AUTORECORD_RPC_URLS"); ok && v != "" {
		cfg.RPCURLs = splitList(v)
		if len(cfg.RPCURLs) == 0 {
			return nil, fmt.Errorf("AUTORECORD_RPC_URLS has no usable entries: %q", v)
		}
	}

	var err error
	if cfg.LogLevel, err = logLevel("AUTORECORD_LOG_LEVEL"); err != nil {
		return nil, err
	}

	ints := []struct {
		key string
		dst *int
		def int
		min int
	}{
		{"AUTORECORD_FEE_MARGIN_PERCENT", &cfg.FeeMarginPercent, 20, 0},
		{"AUTORECORD_SCAN_LIMIT", &cfg.ScanLimit, 5, 1},
		{"AUTORECORD_SCAN_CONCURRENCY", &cfg.ScanConcurrency, 1, 1},
		{"AUTORECORD_MAX_RETRIES", &cfg.MaxRetries, 3, 0},
	}
	for _, f := range ints {
		if *f.dst, err = intVar(f.key, f.def, f.min); err != nil {
			return nil, err
		}
	}

	chainID, err := intVar("AUTORECORD_CHAIN_ID", sepoliaChainID, 1)
	if err != nil {
		return nil, err
	}
	cfg.ChainID = int64(chainID)

	durations := []struct {
		key string
		dst *time.Duration
		def time.Duration
	}{
		{"AUTORECORD_RPC_TIMEOUT", &cfg.RPCTimeout, 15 * time.Second},
		{"AUTORECORD_CONFIRM_TIMEOUT", &cfg.ConfirmTimeout, 120 * time.Second},
		{"AUTORECORD_SCAN_INTERVAL", &cfg.ScanInterval, 5 * time.Minute},
		{"AUTORECORD_SCAN_MAX_AGE", &cfg.ScanMaxAge, 24 * time.Hour},
		{"AUTORECORD_ATTEMPT_GRACE", &cfg.AttemptGrace, 10 * time.Minute},
		{"AUTORECORD_RETRY_MIN_BACKOFF", &cfg.RetryMinBackoff, time.Minute},
		{"AUTORECORD_RETRY_MAX_BACKOFF", &cfg.RetryMaxBackoff, 30 * time.Minute},
	}
	for _, f := range durations {
		if *f.dst, err = durationVar(f.key, f.def); err != nil {
			return nil, err
		}
	}

	if cfg.RetryMaxBackoff < cfg.RetryMinBackoff {
		return nil, fmt.Errorf("AUTORECORD_RETRY_MAX_BACKOFF (%s) is below AUTORECORD_RETRY_MIN_BACKOFF (%s)",
			cfg.RetryMaxBackoff, cfg.RetryMinBackoff)
	}
	if cfg.ConfirmTimeout >= cfg.AttemptGrace {
		return nil, fmt.Errorf("AUTORECORD_CONFIRM_TIMEOUT (%s) must be shorter than AUTORECORD_ATTEMPT_GRACE (%s)",
			cfg.ConfirmTimeout, cfg.AttemptGrace)
	}

	return cfg, nil
}

func envOr(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for item := range strings.SplitSeq(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func intVar(key string, def, minValue int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
	}
	if n < minValue {
		return 0, fmt.Errorf("%s must be at least %d, got %d", key, minValue, n)
	}
	return n, nil
}

func durationVar(key string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, d)
	}
	return d, nil
}

func logLevel(key string) (slog.Level, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return slog.LevelInfo, nil
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return 0, fmt.Errorf("%s has invalid level %q: %w", key, v, err)
	}
	return level, nil
}
