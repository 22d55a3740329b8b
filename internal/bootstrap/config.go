package bootstrap

import (
	"fmt"
	"os"

	"basket_swap/internal/config"
	"basket_swap/internal/wallet"
)

// Config is an alias for the project's main configuration struct
type Config = config.Config

// LoadConfig delegates to the project's config loader
func LoadConfig(path string) (*Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}

	// Pre-flight Checks
	if err := checkPreFlight(cfg); err != nil {
		return nil, fmt.Errorf("pre-flight checks failed: %w", err)
	}

	return cfg, nil
}

// checkPreFlight performs environment checks beyond schema validation
func checkPreFlight(cfg *Config) error {
	if cfg.App.EngineType == "dbos" && !cfg.App.DatabaseURL.IsSet() {
		return fmt.Errorf("database_url is required when engine_type is 'dbos'")
	}

	if cfg.App.Venue == "live" {
		if cfg.Aggregator.BaseURL == "" {
			return fmt.Errorf("aggregator.base_url is required when venue is 'live'")
		}
		if cfg.Chain.RPCURL == "" {
			return fmt.Errorf("chain.rpc_url is required when venue is 'live'")
		}
	}

	// The wallet file holds a private key: owner-only, or not at all
	if cfg.Wallet.Source == "file" && cfg.Wallet.File != "" {
		if err := wallet.CheckPermissions(cfg.Wallet.File); err != nil {
			return err
		}
	}

	if cfg.Catalog.File != "" {
		if _, err := os.Stat(cfg.Catalog.File); err != nil {
			return fmt.Errorf("catalog file: %w", err)
		}
	}

	return nil
}
