package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileConfig models drop.json.
type FileConfig struct {
	Name  string `json:"name"`
	Chain struct {
		ChainID      int64  `json:"chainId"`
		RPCURL       string `json:"rpcUrl"`
		NativeSymbol string `json:"nativeSymbol"`
	} `json:"chain"`
	Contracts struct {
		NFTDrop string `json:"nftDrop"`
	} `json:"contracts"`
	Timeouts struct {
		RPCTimeoutMs   int `json:"rpcTimeoutMs"`
		ClaimTimeoutMs int `json:"claimTimeoutMs"`
		ReceiptPollMs  int `json:"receiptPollMs"`
	} `json:"timeouts"`
	// Dev configures the in-memory drop used when no RPC endpoint is set.
	Dev struct {
		Claimed     uint64 `json:"claimed"`
		TotalSupply uint64 `json:"totalSupply"`
		PriceWei    string `json:"priceWei"`
		Account     string `json:"account"`
	} `json:"dev"`
}

// AppConfig ties together drop.json and environment overrides.
type AppConfig struct {
	File    FileConfig
	Service ServiceConfig
	Chain   ChainConfig
	Journal JournalConfig
	Log     LogConfig
}

type ServiceConfig struct {
	HTTPPort      int
	HMACSecret    string
	HMACClockSkew time.Duration
}

type ChainConfig struct {
	RPCURL          string
	PrivateKey      string
	ContractAddress string
	NativeSymbol    string
	ReadTimeout     time.Duration
	ClaimTimeout    time.Duration
	ReceiptPoll     time.Duration
}

// Live reports whether a real RPC endpoint and contract are configured.
func (c ChainConfig) Live() bool {
	return c.RPCURL != "" && c.ContractAddress != ""
}

type JournalConfig struct {
	Path        string
	PostgresDSN string
}

type LogConfig struct {
	Level       string
	Development bool
}

const defaultConfigPath = "drop.json"

// Load aggregates configuration from disk and environment. A missing drop.json is not an error.
func Load() (*AppConfig, error) {
	path := envOr("DROP_CONFIG_PATH", defaultConfigPath)

	fileCfg, err := loadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}

	serviceCfg := ServiceConfig{
		HTTPPort:      envOrInt("API_HTTP_PORT", 3000),
		HMACSecret:    envOr("HMAC_SECRET", ""),
		HMACClockSkew: time.Duration(envOrInt("HMAC_CLOCK_SKEW_SECONDS", 60)) * time.Second,
	}

	chainCfg := ChainConfig{
		RPCURL:          envOr("CHAIN_RPC_URL", fileCfg.Chain.RPCURL),
		PrivateKey:      envOr("CHAIN_PRIVATE_KEY", ""),
		ContractAddress: envOr("DROP_CONTRACT_ADDRESS", fileCfg.Contracts.NFTDrop),
		NativeSymbol:    envOr("DROP_NATIVE_SYMBOL", orDefault(fileCfg.Chain.NativeSymbol, "ETH")),
		ReadTimeout:     millis(envOrInt("RPC_TIMEOUT_MS", orDefaultInt(fileCfg.Timeouts.RPCTimeoutMs, 10_000))),
		ClaimTimeout:    millis(envOrInt("CLAIM_TIMEOUT_MS", orDefaultInt(fileCfg.Timeouts.ClaimTimeoutMs, 180_000))),
		ReceiptPoll:     millis(envOrInt("RECEIPT_POLL_MS", orDefaultInt(fileCfg.Timeouts.ReceiptPollMs, 2_000))),
	}

	journalCfg := JournalConfig{
		Path:        envOr("JOURNAL_PATH", filepath.Join(os.TempDir(), "nft-drop-journal.json")),
		PostgresDSN: envOr("JOURNAL_POSTGRES_DSN", ""),
	}

	logCfg := LogConfig{
		Level:       strings.ToLower(envOr("LOG_LEVEL", "info")),
		Development: envOr("LOG_FORMAT", "json") == "console",
	}

	return &AppConfig{
		File:    *fileCfg,
		Service: serviceCfg,
		Chain:   chainCfg,
		Journal: journalCfg,
		Log:     logCfg,
	}, nil
}

func loadFile(path string) (*FileConfig, error) {
	var cfg FileConfig
	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &cfg, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func envOr(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func envOrInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		var parsed int
		if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
			return parsed
		}
	}
	return fallback
}

func orDefault(val, fallback string) string {
	if val == "" {
		return fallback
	}
	return val
}

func orDefaultInt(val, fallback int) int {
	if val <= 0 {
		return fallback
	}
	return val
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
