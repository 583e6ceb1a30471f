// Package config loads server settings from the environment, a .env file,
// and command-line flags, plus the vault table from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"

	"github.com/deltavault/position-engine/internal/wei"
)

// Config holds runtime settings. Flags override environment variables.
type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string
	CacheTTL    time.Duration

	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	VaultsPath  string
	JournalPath string
	MaxPriceAge time.Duration

	// Equity caps in wei of the quote unit. Zero disables a cap.
	MaxPerVault   decimal.Decimal
	MaxCorrelated decimal.Decimal

	LogLevel  string
	LogFormat string
}

// Load reads .env (if present), then environment variables, then args.
func Load(args []string) (*Config, error) {
	// A missing .env is fine; variables may come from the real environment.
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisURL:     os.Getenv("REDIS_URL"),
		InfluxURL:    os.Getenv("INFLUX_URL"),
		InfluxToken:  os.Getenv("INFLUX_TOKEN"),
		InfluxOrg:    os.Getenv("INFLUX_ORG"),
		InfluxBucket: os.Getenv("INFLUX_BUCKET"),
	}

	var maxPerVault, maxCorrelated string

	flags := pflag.NewFlagSet("position-engine", pflag.ContinueOnError)
	flags.StringVarP(&cfg.Port, "port", "p", envOr("PORT", "8080"), "HTTP listen port")
	flags.StringVar(&cfg.VaultsPath, "vaults", envOr("VAULTS_FILE", ""), "path to the vault table YAML")
	flags.StringVar(&cfg.JournalPath, "journal", envOr("JOURNAL_FILE", "data/plans.jsonl"), "JSON-lines plan journal, empty to disable")
	flags.DurationVar(&cfg.MaxPriceAge, "max-price-age", 15*time.Minute, "reject prices older than this, 0 to disable")
	flags.DurationVar(&cfg.CacheTTL, "cache-ttl", 30*time.Second, "redis read-through cache TTL")
	flags.StringVar(&maxPerVault, "max-per-vault", "0", "max equity per vault in quote units, 0 for no cap")
	flags.StringVar(&maxCorrelated, "max-correlated", "0", "max equity across vaults sharing an asset token, 0 for no cap")
	flags.StringVar(&cfg.LogLevel, "log-level", envOr("LOG_LEVEL", "info"), "debug, info, warn or error")
	flags.StringVar(&cfg.LogFormat, "log-format", envOr("LOG_FORMAT", "console"), "console or json")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	var err error
	if cfg.MaxPerVault, err = parseCap("max-per-vault", maxPerVault); err != nil {
		return nil, err
	}
	if cfg.MaxCorrelated, err = parseCap("max-correlated", maxCorrelated); err != nil {
		return nil, err
	}
	if cfg.MaxPriceAge < 0 {
		return nil, fmt.Errorf("invalid --max-price-age %s", cfg.MaxPriceAge)
	}
	return cfg, nil
}

// InfluxEnabled reports whether every Influx setting is present.
func (c *Config) InfluxEnabled() bool {
	return c.InfluxURL != "" && c.InfluxToken != "" && c.InfluxOrg != "" && c.InfluxBucket != ""
}

// parseCap converts a human quote amount to wei.
func parseCap(name, raw string) (decimal.Decimal, error) {
	human, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid --%s %q: %w", name, raw, err)
	}
	if human.IsNegative() {
		return decimal.Zero, fmt.Errorf("invalid --%s %q: must be non-negative", name, raw)
	}
	amount, err := wei.ParseUnits(human, wei.MaxDecimals)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid --%s %q: %w", name, raw, err)
	}
	return wei.ToDecimal(amount), nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
