// Package config loads the server settings from an optional YAML file and
// environment variables. Environment values override the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/atmx/ledger-engine/internal/asset"
	"github.com/atmx/ledger-engine/internal/logging"
	"github.com/atmx/ledger-engine/internal/model"
	"github.com/atmx/ledger-engine/internal/risk"
)

// Config captures the runtime settings of the ledger server.
type Config struct {
	Port        string          `yaml:"port"`
	DatabaseURL string          `yaml:"database_url"`
	RedisURL    string          `yaml:"redis_url"`
	CacheTTL    time.Duration   `yaml:"cache_ttl"`
	Faucet      bool            `yaml:"faucet"`
	Log         logging.Config  `yaml:"log"`
	NATS        NATSConfig      `yaml:"nats"`
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
	Assets      AssetsConfig    `yaml:"assets"`
	Owners      OwnersConfig    `yaml:"owners"`
	Perp        PerpConfig      `yaml:"perp"`
}

// NATSConfig enables event publishing when URL is set.
type NATSConfig struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// RateLimitConfig bounds requests per client. Zero RPS disables limiting.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// AssetsConfig names the assets each engine works with.
type AssetsConfig struct {
	Lending string `yaml:"lending"`
	A       string `yaml:"a"`
	B       string `yaml:"b"`
	Reward  string `yaml:"reward"`
}

// OwnersConfig lists the privileged accounts. Swap and Perp fall back to
// Default.
type OwnersConfig struct {
	Default string `yaml:"default"`
	Swap    string `yaml:"swap"`
	Perp    string `yaml:"perp"`
}

// PerpConfig holds the perpetual engine parameters as decimal strings.
type PerpConfig struct {
	RewardPerSecond string `yaml:"reward_per_second"`
	MaxLeverage     int64  `yaml:"max_leverage"`
	MaxPerTrader    string `yaml:"max_per_trader"`
	MaxPerSide      string `yaml:"max_per_side"`
}

// Resolved holds the typed values derived during validation.
type Resolved struct {
	LendingAsset    model.Asset
	AssetA          model.Asset
	AssetB          model.Asset
	RewardAsset     model.Asset
	SwapOwner       model.Account
	PerpOwner       model.Account
	RewardPerSecond decimal.Decimal
	Limits          risk.Limits
}

func defaults() Config {
	return Config{
		Port:     "8080",
		CacheTTL: 30 * time.Second,
		Log: logging.Config{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 10,
			MaxAgeDays: 30,
		},
		NATS:      NATSConfig{SubjectPrefix: "ledger"},
		RateLimit: RateLimitConfig{RPS: 50, Burst: 100},
		Assets: AssetsConfig{
			Lending: "MTKA",
			A:       "MTKA",
			B:       "MTKB",
			Reward:  "RWD",
		},
		Perp: PerpConfig{RewardPerSecond: "1"},
	}
}

// Load reads the YAML file at path (skipped when empty), applies environment
// overrides, then normalizes and validates the result.
func Load(path string) (Config, Resolved, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (Config, Resolved, error) {
	cfg := defaults()
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return Config{}, Resolved{}, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		if err := yaml.NewDecoder(file).Decode(&cfg); err != nil {
			return Config{}, Resolved{}, fmt.Errorf("decode config: %w", err)
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, Resolved{}, err
	}
	cfg.normalize()
	res, err := cfg.validate()
	if err != nil {
		return Config{}, Resolved{}, err
	}
	return cfg, res, nil
}

func (cfg *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}
	str("PORT", &cfg.Port)
	str("DATABASE_URL", &cfg.DatabaseURL)
	str("REDIS_URL", &cfg.RedisURL)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("LOG_FILE", &cfg.Log.File)
	str("NATS_URL", &cfg.NATS.URL)
	str("NATS_SUBJECT_PREFIX", &cfg.NATS.SubjectPrefix)
	str("LENDING_ASSET", &cfg.Assets.Lending)
	str("ASSET_A", &cfg.Assets.A)
	str("ASSET_B", &cfg.Assets.B)
	str("REWARD_ASSET", &cfg.Assets.Reward)
	str("OWNER_ACCOUNT", &cfg.Owners.Default)
	str("SWAP_OWNER", &cfg.Owners.Swap)
	str("PERP_OWNER", &cfg.Owners.Perp)
	str("REWARD_PER_SECOND", &cfg.Perp.RewardPerSecond)

	if v, ok := lookup("CACHE_TTL"); ok {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("CACHE_TTL: %w", err)
		}
		cfg.CacheTTL = d
	}
	if v, ok := lookup("FAUCET_ENABLED"); ok {
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("FAUCET_ENABLED: %w", err)
		}
		cfg.Faucet = b
	}
	if v, ok := lookup("RATE_LIMIT_RPS"); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return fmt.Errorf("RATE_LIMIT_RPS: %w", err)
		}
		cfg.RateLimit.RPS = f
	}
	if v, ok := lookup("RATE_LIMIT_BURST"); ok {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("RATE_LIMIT_BURST: %w", err)
		}
		cfg.RateLimit.Burst = n
	}
	return nil
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.Port = strings.TrimPrefix(strings.TrimSpace(cfg.Port), ":")
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	cfg.DatabaseURL = strings.TrimSpace(cfg.DatabaseURL)
	cfg.RedisURL = strings.TrimSpace(cfg.RedisURL)
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 30 * time.Second
	}
	cfg.Log.Level = strings.ToLower(strings.TrimSpace(cfg.Log.Level))
	cfg.Log.File = strings.TrimSpace(cfg.Log.File)
	cfg.NATS.URL = strings.TrimSpace(cfg.NATS.URL)
	cfg.NATS.SubjectPrefix = strings.Trim(strings.TrimSpace(cfg.NATS.SubjectPrefix), ".")
	if cfg.NATS.SubjectPrefix == "" {
		cfg.NATS.SubjectPrefix = "ledger"
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = int(cfg.RateLimit.RPS) + 1
	}

	cfg.Owners.Default = strings.TrimSpace(cfg.Owners.Default)
	cfg.Owners.Swap = strings.TrimSpace(cfg.Owners.Swap)
	cfg.Owners.Perp = strings.TrimSpace(cfg.Owners.Perp)
	if cfg.Owners.Swap == "" {
		cfg.Owners.Swap = cfg.Owners.Default
	}
	if cfg.Owners.Perp == "" {
		cfg.Owners.Perp = cfg.Owners.Default
	}
	cfg.Perp.RewardPerSecond = strings.TrimSpace(cfg.Perp.RewardPerSecond)
	if cfg.Perp.RewardPerSecond == "" {
		cfg.Perp.RewardPerSecond = "0"
	}
}

func (cfg *Config) validate() (Resolved, error) {
	var res Resolved
	if cfg == nil {
		return res, fmt.Errorf("configuration is missing")
	}
	if _, err := strconv.ParseUint(cfg.Port, 10, 16); err != nil {
		return res, fmt.Errorf("port: invalid value %q", cfg.Port)
	}
	if cfg.RateLimit.RPS < 0 {
		return res, fmt.Errorf("rate_limit: rps must not be negative")
	}

	var err error
	if res.LendingAsset, err = asset.ParseSymbol(cfg.Assets.Lending); err != nil {
		return res, fmt.Errorf("assets.lending: %w", err)
	}
	if res.AssetA, err = asset.ParseSymbol(cfg.Assets.A); err != nil {
		return res, fmt.Errorf("assets.a: %w", err)
	}
	if res.AssetB, err = asset.ParseSymbol(cfg.Assets.B); err != nil {
		return res, fmt.Errorf("assets.b: %w", err)
	}
	if res.AssetA == res.AssetB {
		return res, fmt.Errorf("assets: %w", asset.ErrSameAsset)
	}
	if res.RewardAsset, err = asset.ParseSymbol(cfg.Assets.Reward); err != nil {
		return res, fmt.Errorf("assets.reward: %w", err)
	}

	if cfg.Owners.Swap == "" || cfg.Owners.Perp == "" {
		return res, fmt.Errorf("owners: an owner account must be configured (owners.default or OWNER_ACCOUNT)")
	}
	if res.SwapOwner, err = model.ParseAccount(cfg.Owners.Swap); err != nil {
		return res, fmt.Errorf("owners.swap: %w", err)
	}
	if res.PerpOwner, err = model.ParseAccount(cfg.Owners.Perp); err != nil {
		return res, fmt.Errorf("owners.perp: %w", err)
	}

	if res.RewardPerSecond, err = model.ParseAmount(cfg.Perp.RewardPerSecond); err != nil {
		return res, fmt.Errorf("perp.reward_per_second: %w", err)
	}
	if cfg.Perp.MaxLeverage < 0 {
		return res, fmt.Errorf("perp.max_leverage: must not be negative")
	}
	res.Limits.MaxLeverage = cfg.Perp.MaxLeverage
	if res.Limits.MaxPerTrader, err = optionalAmount(cfg.Perp.MaxPerTrader); err != nil {
		return res, fmt.Errorf("perp.max_per_trader: %w", err)
	}
	if res.Limits.MaxPerSide, err = optionalAmount(cfg.Perp.MaxPerSide); err != nil {
		return res, fmt.Errorf("perp.max_per_side: %w", err)
	}
	return res, nil
}

func optionalAmount(s string) (decimal.Decimal, error) {
	if strings.TrimSpace(s) == "" {
		return decimal.Zero, nil
	}
	return model.ParseAmount(s)
}
