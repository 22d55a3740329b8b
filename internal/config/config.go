// Package config handles configuration management with validation
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration structure
type Config struct {
	App         AppConfig         `yaml:"app"`
	Funding     FundingConfig     `yaml:"funding"`
	Swap        SwapConfig        `yaml:"swap"`
	Aggregator  AggregatorConfig  `yaml:"aggregator"`
	Chain       ChainConfig       `yaml:"chain"`
	Wallet      WalletConfig      `yaml:"wallet"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	Pricing     PricingConfig     `yaml:"pricing"`
	Cache       CacheConfig       `yaml:"cache"`
	Server      ServerConfig      `yaml:"server"`
	Alerts      AlertsConfig      `yaml:"alerts"`
	System      SystemConfig      `yaml:"system"`
	Telemetry   TelemetryConfig   `yaml:"telemetry"`
	Concurrency ConcurrencyConfig `yaml:"concurrency"`
}

// AppConfig contains application-level settings
type AppConfig struct {
	EngineType     string `yaml:"engine_type" validate:"required,oneof=simple dbos"`
	DatabaseURL    Secret `yaml:"database_url"` // Required for DBOS
	RunStorePath   string `yaml:"run_store_path"` // SQLite run history for the simple engine, empty keeps it in memory
	Venue          string `yaml:"venue" validate:"oneof=live mock"`
	ExecutionMode  string `yaml:"execution_mode" validate:"oneof=sequential batched"`
	PrefetchQuotes bool   `yaml:"prefetch_quotes"`
}

// FundingConfig describes the asset every leg is paid from
type FundingConfig struct {
	Symbol   string `yaml:"symbol"`
	CoinType string `yaml:"coin_type" validate:"required"`
	Decimals int32  `yaml:"decimals" validate:"min=0,max=18"`
}

// SwapConfig contains swap parameters and investment bounds
type SwapConfig struct {
	Slippage          float64 `yaml:"slippage" validate:"gt=0,max=0.5"`
	CommissionPartner string  `yaml:"commission_partner"`
	CommissionBps     int     `yaml:"commission_bps" validate:"min=0,max=10000"`
	DefaultInvestment float64 `yaml:"default_investment"`
	MaxInvestment     float64 `yaml:"max_investment"`
}

// AggregatorConfig points at the swap routing aggregator
type AggregatorConfig struct {
	BaseURL   string   `yaml:"base_url"`
	APIKey    Secret   `yaml:"api_key"`
	TimeoutMs int      `yaml:"timeout_ms"`
	RateLimit float64  `yaml:"rate_limit"` // Requests per second, 0 disables limiting
	RateBurst int      `yaml:"rate_burst"`
	Sources   []string `yaml:"sources"`
}

func (c AggregatorConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// ChainConfig points at the Sui fullnode
type ChainConfig struct {
	RPCURL      string `yaml:"rpc_url"`
	TimeoutMs   int    `yaml:"timeout_ms"`
	RequestType string `yaml:"request_type" validate:"oneof=WaitForLocalExecution WaitForEffectsCert"`
}

func (c ChainConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// WalletConfig selects where the signing wallet comes from
type WalletConfig struct {
	Source     string `yaml:"source" validate:"oneof=file env"`
	File       string `yaml:"file"`
	Address    string `yaml:"address"`
	PrivateKey Secret `yaml:"private_key"`
}

// CatalogConfig selects the basket catalog source. Both empty means built-in defaults.
type CatalogConfig struct {
	File       string `yaml:"file"`
	SQLitePath string `yaml:"sqlite_path"`
}

// PricingConfig contains the Pyth Hermes settings used for portfolio valuation
type PricingConfig struct {
	HermesURL       string `yaml:"hermes_url"`
	TimeoutMs       int    `yaml:"timeout_ms"`
	RefreshInterval int    `yaml:"refresh_interval"` // Seconds between tracked portfolio refreshes
	TrackAddress    string `yaml:"track_address"`    // Defaults to the wallet address
}

func (c PricingConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// CacheConfig configures the preview quote cache. An empty address disables it.
type CacheConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword Secret `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	QuoteTTLMs    int    `yaml:"quote_ttl_ms"`
}

func (c CacheConfig) QuoteTTL() time.Duration {
	return time.Duration(c.QuoteTTLMs) * time.Millisecond
}

// ServerConfig contains listener and access settings
type ServerConfig struct {
	Listen             string   `yaml:"listen"`
	AllowedOrigins     []string `yaml:"allowed_origins"`
	WebsocketListen    string   `yaml:"websocket_listen"`
	GRPCPort           int      `yaml:"grpc_port"`   // 0 disables the gRPC health service
	HealthPort         string   `yaml:"health_port"` // Ops port for /health, /status and /metrics
	APIKeys            Secret   `yaml:"api_keys"`    // Comma-separated, empty disables authentication
	RateLimit          int      `yaml:"rate_limit"`  // Requests per second per API key
	Production         bool     `yaml:"production"`
	AllowMissingOrigin bool     `yaml:"allow_missing_origin"`
}

// APIKeyList splits APIKeys
func (c ServerConfig) APIKeyList() []string {
	var keys []string
	for _, k := range strings.Split(string(c.APIKeys), ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// AlertsConfig contains notification channels. Unset channels are skipped.
type AlertsConfig struct {
	SlackWebhookURL  Secret `yaml:"slack_webhook_url"`
	TelegramBotToken Secret `yaml:"telegram_bot_token"`
	TelegramChatID   string `yaml:"telegram_chat_id"`
	MinLevel         string `yaml:"min_level"` // INFO, WARNING, ERROR or CRITICAL
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel string `yaml:"log_level" validate:"required,oneof=DEBUG INFO WARN ERROR FATAL"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ServiceName string `yaml:"service_name"`
}

// ConcurrencyConfig contains worker pool settings
type ConcurrencyConfig struct {
	QuotePoolSize   int `yaml:"quote_pool_size" validate:"min=1,max=100"`
	QuotePoolBuffer int `yaml:"quote_pool_buffer" validate:"min=1,max=10000"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion.
// A .env file next to the config file, or in the working directory, is loaded first;
// variables already set in the environment win.
func LoadConfig(filename string) (*Config, error) {
	if err := loadDotEnv(filename); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse expands environment variables in data, overlays it on DefaultConfig and validates
func Parse(data []byte) (*Config, error) {
	expandedData := expandEnvVars(string(data))

	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expandedData), config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

func loadDotEnv(configFile string) error {
	candidates := []string{filepath.Join(filepath.Dir(configFile), ".env"), ".env"}
	seen := make(map[string]bool)
	for _, path := range candidates {
		abs, err := filepath.Abs(path)
		if err != nil || seen[abs] {
			continue
		}
		seen[abs] = true

		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errs []string

	validators := []func() error{
		c.validateAppConfig,
		c.validateFundingConfig,
		c.validateSwapConfig,
		c.validateAggregatorConfig,
		c.validateChainConfig,
		c.validateWalletConfig,
		c.validateServerConfig,
		c.validateSystemConfig,
		c.validateAlertsConfig,
		c.validateConcurrencyConfig,
	}
	for _, validate := range validators {
		if err := validate(); err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errs, "\n"))
	}

	return nil
}

func (c *Config) validateAppConfig() error {
	if !contains([]string{"simple", "dbos"}, c.App.EngineType) {
		return ValidationError{
			Field:   "app.engine_type",
			Value:   c.App.EngineType,
			Message: "must be one of: simple, dbos",
		}
	}

	if !contains([]string{"live", "mock"}, c.App.Venue) {
		return ValidationError{
			Field:   "app.venue",
			Value:   c.App.Venue,
			Message: "must be one of: live, mock",
		}
	}

	if c.App.ExecutionMode != "" && !contains([]string{"sequential", "batched"}, c.App.ExecutionMode) {
		return ValidationError{
			Field:   "app.execution_mode",
			Value:   c.App.ExecutionMode,
			Message: "must be one of: sequential, batched",
		}
	}

	return nil
}

func (c *Config) validateAlertsConfig() error {
	if c.Alerts.MinLevel != "" && !contains([]string{"INFO", "WARNING", "ERROR", "CRITICAL"}, strings.ToUpper(c.Alerts.MinLevel)) {
		return ValidationError{
			Field:   "alerts.min_level",
			Value:   c.Alerts.MinLevel,
			Message: "must be one of: INFO, WARNING, ERROR, CRITICAL",
		}
	}
	return nil
}

func (c *Config) validateFundingConfig() error {
	if c.Funding.CoinType == "" {
		return ValidationError{
			Field:   "funding.coin_type",
			Message: "funding coin type is required",
		}
	}
	if c.Funding.Decimals < 0 || c.Funding.Decimals > 18 {
		return ValidationError{
			Field:   "funding.decimals",
			Value:   c.Funding.Decimals,
			Message: "must be between 0 and 18",
		}
	}
	return nil
}

func (c *Config) validateSwapConfig() error {
	if c.Swap.Slippage <= 0 || c.Swap.Slippage > 0.5 {
		return ValidationError{
			Field:   "swap.slippage",
			Value:   c.Swap.Slippage,
			Message: "must be in (0, 0.5]",
		}
	}

	if c.Swap.CommissionBps < 0 || c.Swap.CommissionBps > 10000 {
		return ValidationError{
			Field:   "swap.commission_bps",
			Value:   c.Swap.CommissionBps,
			Message: "must be between 0 and 10000",
		}
	}

	if c.Swap.CommissionBps > 0 && c.Swap.CommissionPartner == "" {
		return ValidationError{
			Field:   "swap.commission_partner",
			Message: "partner address is required when commission_bps is set",
		}
	}

	if c.Swap.MaxInvestment <= 0 {
		return ValidationError{
			Field:   "swap.max_investment",
			Value:   c.Swap.MaxInvestment,
			Message: "must be positive",
		}
	}

	if c.Swap.DefaultInvestment <= 0 || c.Swap.DefaultInvestment > c.Swap.MaxInvestment {
		return ValidationError{
			Field:   "swap.default_investment",
			Value:   c.Swap.DefaultInvestment,
			Message: "must be positive and at most max_investment",
		}
	}

	return nil
}

func (c *Config) validateAggregatorConfig() error {
	if c.Aggregator.RateLimit < 0 {
		return ValidationError{
			Field:   "aggregator.rate_limit",
			Value:   c.Aggregator.RateLimit,
			Message: "must not be negative",
		}
	}
	if c.Aggregator.TimeoutMs <= 0 {
		return ValidationError{
			Field:   "aggregator.timeout_ms",
			Value:   c.Aggregator.TimeoutMs,
			Message: "must be positive",
		}
	}
	return nil
}

func (c *Config) validateChainConfig() error {
	if !contains([]string{"WaitForLocalExecution", "WaitForEffectsCert"}, c.Chain.RequestType) {
		return ValidationError{
			Field:   "chain.request_type",
			Value:   c.Chain.RequestType,
			Message: "must be one of: WaitForLocalExecution, WaitForEffectsCert",
		}
	}
	return nil
}

func (c *Config) validateWalletConfig() error {
	switch c.Wallet.Source {
	case "file":
		if c.Wallet.File == "" {
			return ValidationError{
				Field:   "wallet.file",
				Message: "wallet file is required when source is 'file'",
			}
		}
	case "env":
		if !c.Wallet.PrivateKey.IsSet() {
			return ValidationError{
				Field:   "wallet.private_key",
				Message: "private key is required when source is 'env'",
			}
		}
	default:
		return ValidationError{
			Field:   "wallet.source",
			Value:   c.Wallet.Source,
			Message: "must be one of: file, env",
		}
	}
	return nil
}

func (c *Config) validateServerConfig() error {
	if c.Server.GRPCPort < 0 || c.Server.GRPCPort > 65535 {
		return ValidationError{
			Field:   "server.grpc_port",
			Value:   c.Server.GRPCPort,
			Message: "must be a valid port or 0 to disable",
		}
	}
	if len(c.Server.APIKeyList()) > 0 && c.Server.RateLimit <= 0 {
		return ValidationError{
			Field:   "server.rate_limit",
			Value:   c.Server.RateLimit,
			Message: "must be positive when api_keys are set",
		}
	}
	return nil
}

func (c *Config) validateSystemConfig() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

func (c *Config) validateConcurrencyConfig() error {
	if c.Concurrency.QuotePoolSize < 1 || c.Concurrency.QuotePoolSize > 100 {
		return ValidationError{
			Field:   "concurrency.quote_pool_size",
			Value:   c.Concurrency.QuotePoolSize,
			Message: "must be between 1 and 100",
		}
	}
	if c.Concurrency.QuotePoolBuffer < 1 {
		return ValidationError{
			Field:   "concurrency.quote_pool_buffer",
			Value:   c.Concurrency.QuotePoolBuffer,
			Message: "must be positive",
		}
	}
	return nil
}

// String returns a YAML representation of the configuration with secrets redacted
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

// Helper functions

// expandEnvVars replaces ${VAR} and ${VAR:-default}
func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		name, fallback, hasDefault := strings.Cut(key, ":-")
		if value, ok := os.LookupEnv(name); ok && value != "" {
			return value
		}
		if hasDefault {
			return fallback
		}
		return ""
	})
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns the configuration used for any field the file leaves out: mock
// venue, simple engine, built-in catalog, USDC funding
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			EngineType:    "simple",
			Venue:         "mock",
			ExecutionMode: "sequential",
		},
		Funding: FundingConfig{
			Symbol:   "USDC",
			CoinType: "0xdba34672e30cb065b1f93e3ab55318768fd6fef66c15942c9f7cb846e2f900e7::usdc::USDC",
			Decimals: 6,
		},
		Swap: SwapConfig{
			Slippage:          0.01,
			DefaultInvestment: 100,
			MaxInvestment:     10000,
		},
		Aggregator: AggregatorConfig{
			BaseURL:   "https://api.7k.ag",
			TimeoutMs: 10000,
			RateLimit: 5,
			RateBurst: 5,
		},
		Chain: ChainConfig{
			RPCURL:      "https://fullnode.mainnet.sui.io:443",
			TimeoutMs:   15000,
			RequestType: "WaitForLocalExecution",
		},
		Wallet: WalletConfig{
			Source: "file",
			File:   "data/wallet.json",
		},
		Pricing: PricingConfig{
			HermesURL:       "https://hermes.pyth.network",
			TimeoutMs:       5000,
			RefreshInterval: 60,
		},
		Cache: CacheConfig{
			QuoteTTLMs: 5000,
		},
		Server: ServerConfig{
			Listen:          ":8080",
			AllowedOrigins:  []string{"http://localhost:3000"},
			WebsocketListen: ":8081",
			HealthPort:      "8082",
			RateLimit:       20,
		},
		System: SystemConfig{
			LogLevel: "INFO",
		},
		Telemetry: TelemetryConfig{
			ServiceName: "basket-swap",
		},
		Concurrency: ConcurrencyConfig{
			QuotePoolSize:   4,
			QuotePoolBuffer: 64,
		},
	}
}
