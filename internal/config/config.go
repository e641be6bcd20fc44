// Package config provides configuration management for the covered-call tool.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	yaml "gopkg.in/yaml.v3"

	"github.com/eddiefleurent/covered_call/internal/analysis"
	"github.com/eddiefleurent/covered_call/internal/expiration"
	"github.com/eddiefleurent/covered_call/internal/market"
	"github.com/eddiefleurent/covered_call/internal/retry"
	"github.com/eddiefleurent/covered_call/internal/strategy"
)

const (
	defaultBrokerTimeout = "10s"
	defaultServerPort    = 8080
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Broker      BrokerConfig      `yaml:"broker"`
	Analysis    AnalysisConfig    `yaml:"analysis"`
	Market      MarketConfig      `yaml:"market"`
	Retry       RetryConfig       `yaml:"retry"`
	Server      ServerConfig      `yaml:"server"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // sandbox | production
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// BrokerConfig defines market-data provider settings.
type BrokerConfig struct {
	Provider    string `yaml:"provider"` // tradier | mock
	APIKey      string `yaml:"api_key"`
	APIEndpoint string `yaml:"api_endpoint"`
	Timeout     string `yaml:"timeout"`
}

// AnalysisConfig tunes expiration bucketing, chain filtering and bulk requests.
type AnalysisConfig struct {
	BucketLimit        int     `yaml:"bucket_limit"`
	PriceCeilingOffset *float64 `yaml:"price_ceiling_offset"`
	BulkPages          int     `yaml:"bulk_pages"`
}

// MarketConfig defines the exchange session.
type MarketConfig struct {
	Timezone string `yaml:"timezone"` // e.g., "America/New_York"
	Open     string `yaml:"open"`     // "HH:MM"
	Close    string `yaml:"close"`    // "HH:MM"
}

// RetryConfig bounds retries of transient gateway failures.
type RetryConfig struct {
	MaxRetries     int    `yaml:"max_retries"`
	InitialBackoff string `yaml:"initial_backoff"`
	MaxBackoff     string `yaml:"max_backoff"`
	Timeout        string `yaml:"timeout"`
}

// ServerConfig defines the HTTP API listener.
type ServerConfig struct {
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// Default returns a configuration that runs against the mock provider.
func Default() *Config {
	c := &Config{
		Environment: EnvironmentConfig{Mode: "sandbox", LogLevel: "info"},
		Broker:      BrokerConfig{Provider: "mock"},
	}
	c.applyDefaults()
	return c
}

// LoadEnv loads variables from the given .env files (".env" when none) without
// overriding ones already set. Missing files are skipped.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s file: %w", f, err)
		}
	}
	return nil
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Environment.LogLevel == "" {
		c.Environment.LogLevel = "info"
	}
	if c.Broker.Provider == "" {
		c.Broker.Provider = "tradier"
	}
	if c.Broker.Timeout == "" {
		c.Broker.Timeout = defaultBrokerTimeout
	}
	if c.Analysis.BucketLimit == 0 {
		c.Analysis.BucketLimit = expiration.DefaultBucketLimit
	}
	if c.Analysis.PriceCeilingOffset == nil {
		offset := strategy.DefaultPriceCeilingOffset
		c.Analysis.PriceCeilingOffset = &offset
	}
	if c.Analysis.BulkPages == 0 {
		c.Analysis.BulkPages = analysis.DefaultBulkPages
	}
	if c.Market.Timezone == "" {
		c.Market.Timezone = market.DefaultTimezone
	}
	if c.Market.Open == "" {
		c.Market.Open = "09:30"
	}
	if c.Market.Close == "" {
		c.Market.Close = "16:00"
	}
	if c.Retry.MaxRetries == 0 {
		c.Retry.MaxRetries = retry.DefaultConfig.MaxRetries
	}
	if c.Retry.InitialBackoff == "" {
		c.Retry.InitialBackoff = retry.DefaultConfig.InitialBackoff.String()
	}
	if c.Retry.MaxBackoff == "" {
		c.Retry.MaxBackoff = retry.DefaultConfig.MaxBackoff.String()
	}
	if c.Retry.Timeout == "" {
		c.Retry.Timeout = retry.DefaultConfig.Timeout.String()
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultServerPort
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	// Environment validation
	if c.Environment.Mode != "sandbox" && c.Environment.Mode != "production" {
		return fmt.Errorf("environment.mode must be 'sandbox' or 'production'")
	}
	switch strings.ToLower(c.Environment.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("environment.log_level must be one of debug, info, warn, error")
	}

	// Broker validation
	switch c.Broker.Provider {
	case "tradier", "mock":
	default:
		return fmt.Errorf("broker.provider must be 'tradier' or 'mock'")
	}
	if d, err := time.ParseDuration(c.Broker.Timeout); err != nil || d <= 0 {
		return fmt.Errorf("broker.timeout must be a positive duration")
	}

	// Analysis validation
	if c.Analysis.BucketLimit <= 0 {
		return fmt.Errorf("analysis.bucket_limit must be > 0")
	}
	if c.Analysis.PriceCeilingOffset == nil || *c.Analysis.PriceCeilingOffset < 0 {
		return fmt.Errorf("analysis.price_ceiling_offset must be >= 0")
	}
	if c.Analysis.BulkPages <= 0 {
		return fmt.Errorf("analysis.bulk_pages must be > 0")
	}

	// Market validation
	if _, err := time.LoadLocation(c.Market.Timezone); err != nil {
		return fmt.Errorf("market.timezone invalid: %w", err)
	}
	open, err1 := market.ParseClock(c.Market.Open)
	closing, err2 := market.ParseClock(c.Market.Close)
	if err1 != nil || err2 != nil ||
		open.Hour > closing.Hour || (open.Hour == closing.Hour && open.Minute >= closing.Minute) {
		return fmt.Errorf("market session invalid (open/close parse/order)")
	}

	// Retry validation
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0")
	}
	for name, v := range map[string]string{
		"retry.initial_backoff": c.Retry.InitialBackoff,
		"retry.max_backoff":     c.Retry.MaxBackoff,
		"retry.timeout":         c.Retry.Timeout,
	} {
		if _, err := time.ParseDuration(v); err != nil {
			return fmt.Errorf("%s invalid: %w", name, err)
		}
	}

	// Server validation
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535")
	}

	return nil
}

// IsSandbox returns true if the Tradier sandbox endpoint should be used.
func (c *Config) IsSandbox() bool {
	return c.Environment.Mode == "sandbox"
}

// UseMock returns true if market data comes from the offline provider.
func (c *Config) UseMock() bool {
	return c.Broker.Provider == "mock"
}

// GetBrokerTimeout returns the HTTP timeout for provider calls.
func (c *Config) GetBrokerTimeout() time.Duration {
	d, err := time.ParseDuration(c.Broker.Timeout)
	if err != nil || d <= 0 {
		return 10 * time.Second // default
	}
	return d
}

// GetSession returns the configured exchange session.
func (c *Config) GetSession() market.Session {
	s := market.NYSE()
	s.Location = market.LoadLocation(c.Market.Timezone)
	if open, err := market.ParseClock(c.Market.Open); err == nil {
		s.Open = open
	}
	if closing, err := market.ParseClock(c.Market.Close); err == nil {
		s.Close = closing
	}
	return s
}

// RequireCredentials reports a missing API key for the tradier provider. It is
// checked when a market-data gateway is built, not on load, so commands that
// never touch market data run without credentials.
func (c *Config) RequireCredentials() error {
	if c.Broker.Provider == "tradier" && c.Broker.APIKey == "" {
		return fmt.Errorf("broker.api_key is required for the tradier provider")
	}
	return nil
}

// GetPriceCeilingOffset returns the configured ceiling offset. An explicit 0
// keeps only strikes below the market price.
func (c *Config) GetPriceCeilingOffset() float64 {
	if c.Analysis.PriceCeilingOffset == nil {
		return strategy.DefaultPriceCeilingOffset
	}
	return *c.Analysis.PriceCeilingOffset
}

// GetAnalysisOptions returns the analyzer tuning.
func (c *Config) GetAnalysisOptions() analysis.Options {
	return analysis.Options{
		BucketLimit:        c.Analysis.BucketLimit,
		PriceCeilingOffset: analysis.CeilingOffset(c.GetPriceCeilingOffset()),
		BulkPages:          c.Analysis.BulkPages,
	}
}

// GetRetryConfig returns the retry policy, falling back to retry.DefaultConfig
// for any unparsable duration.
func (c *Config) GetRetryConfig() retry.Config {
	cfg := retry.DefaultConfig
	cfg.MaxRetries = c.Retry.MaxRetries
	if d, err := time.ParseDuration(c.Retry.InitialBackoff); err == nil {
		cfg.InitialBackoff = d
	}
	if d, err := time.ParseDuration(c.Retry.MaxBackoff); err == nil {
		cfg.MaxBackoff = d
	}
	if d, err := time.ParseDuration(c.Retry.Timeout); err == nil {
		cfg.Timeout = d
	}
	return cfg
}
