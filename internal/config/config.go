// Package config loads storefront settings from a CUE file.
//
// The embedded #Config schema supplies defaults and constraints; the user's
// file is unified with it, validated concrete and decoded. Derived values
// (tax rate, retry policy, tariff, normalizer) are parsed once by Validate.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/shopspring/decimal"

	"github.com/roach88/storefront/internal/media"
	"github.com/roach88/storefront/internal/order"
	"github.com/roach88/storefront/internal/txretry"
)

//go:embed schema.cue
var schemaSrc string

// Config is the decoded configuration.
type Config struct {
	Database       string            `json:"database"`
	LogLevel       string            `json:"log_level"`
	MediaPrefix    string            `json:"media_prefix"`
	StaticPrefixes []string          `json:"static_prefixes"`
	TaxRate        string            `json:"tax_rate"`
	Retry          RetryConfig       `json:"retry"`
	Notify         NotifyConfig      `json:"notify"`
	Delivery       map[string]string `json:"delivery"`
}

// RetryConfig bounds the write contention retry loop.
type RetryConfig struct {
	Attempts       int    `json:"attempts"`
	InitialBackoff string `json:"initial_backoff"`
	MaxBackoff     string `json:"max_backoff"`
}

// NotifyConfig selects the change event topic.
type NotifyConfig struct {
	Topic    string `json:"topic"`
	RedisURL string `json:"redis_url"`
	Buffer   int    `json:"buffer"`
}

// Load reads the CUE file at path and applies schema defaults.
// An empty path yields the defaults alone.
func Load(path string) (*Config, error) {
	var (
		src  []byte
		name = "defaults"
	)
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		src, name = data, path
	}
	return Parse(name, src)
}

// Parse unifies src with the schema. name is used in error positions.
func Parse(name string, src []byte) (*Config, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSrc, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	user := ctx.CompileBytes(src, cue.Filename(name))
	if err := user.Err(); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", name, err)
	}

	v := def.Unify(user)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("validate config %s: %w", name, err)
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", name, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", name, err)
	}
	return &cfg, nil
}

// Default returns the schema defaults.
func Default() *Config {
	cfg, err := Parse("defaults", nil)
	if err != nil {
		panic(fmt.Sprintf("config schema defaults are invalid: %v", err))
	}
	return cfg
}

// Validate checks the fields the schema leaves as strings.
func (c *Config) Validate() error {
	rate, err := c.TaxRateDecimal()
	if err != nil {
		return err
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return fmt.Errorf("tax_rate must be in [0, 1), got %s", rate)
	}
	p, err := c.RetryPolicy()
	if err != nil {
		return err
	}
	if p.InitialBackoff > p.MaxBackoff {
		return fmt.Errorf("retry.initial_backoff %s exceeds retry.max_backoff %s", p.InitialBackoff, p.MaxBackoff)
	}
	if _, err := c.Tariff(); err != nil {
		return err
	}
	if strings.TrimSpace(c.Database) == "" {
		return fmt.Errorf("database must not be empty")
	}
	return nil
}

// TaxRateDecimal parses tax_rate.
func (c *Config) TaxRateDecimal() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(c.TaxRate))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("tax_rate %q: %w", c.TaxRate, err)
	}
	return d, nil
}

// RetryPolicy converts the retry section.
func (c *Config) RetryPolicy() (txretry.Policy, error) {
	initial, err := time.ParseDuration(c.Retry.InitialBackoff)
	if err != nil {
		return txretry.Policy{}, fmt.Errorf("retry.initial_backoff: %w", err)
	}
	maxBackoff, err := time.ParseDuration(c.Retry.MaxBackoff)
	if err != nil {
		return txretry.Policy{}, fmt.Errorf("retry.max_backoff: %w", err)
	}
	if initial <= 0 || maxBackoff <= 0 {
		return txretry.Policy{}, fmt.Errorf("retry backoffs must be positive")
	}
	return txretry.Policy{
		Attempts:       c.Retry.Attempts,
		InitialBackoff: initial,
		MaxBackoff:     maxBackoff,
	}, nil
}

// Tariff builds the delivery table; no entries means the built-in table.
func (c *Config) Tariff() (*order.Tariff, error) {
	return order.ParseTariff(c.Delivery)
}

// Normalizer builds the image reference normalizer.
func (c *Config) Normalizer() *media.Normalizer {
	return media.New(c.MediaPrefix, c.StaticPrefixes)
}

// SlogLevel maps log_level to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
