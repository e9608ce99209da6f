// Package config loads the service configuration from an optional YAML file
// and TRIPZY_* environment variables. Environment values win.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tripzydevops/tripzytravelanti-sub001/internal/model"
	"github.com/tripzydevops/tripzytravelanti-sub001/internal/quota"
)

type Config struct {
	Port          string        `yaml:"port"`
	DBPath        string        `yaml:"db_path"`
	Log           Log           `yaml:"log"`
	Auth          Auth          `yaml:"auth"`
	Redis         Redis         `yaml:"redis"`
	Redeem        Redeem        `yaml:"redeem"`
	Scanner       Scanner       `yaml:"scanner"`
	Websocket     Websocket     `yaml:"websocket"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Auth configures verification of the auth provider's bearer tokens.
type Auth struct {
	Secret string `yaml:"secret"`
	Issuer string `yaml:"issuer"`
}

// Redis is optional. Without an address, scanner redeems are not idempotent.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type Redeem struct {
	// HighValueThreshold is the savings, in minor currency units, at which a
	// vendor scan needs the owner's confirmation. Zero disables it.
	HighValueThreshold int `yaml:"high_value_threshold"`
	// MonthlyLimits overrides the per-tier monthly redemption base; -1 is unlimited.
	MonthlyLimits map[model.Tier]int `yaml:"monthly_limits"`
}

type Scanner struct {
	RateLimit  int           `yaml:"rate_limit"`
	RateWindow time.Duration `yaml:"rate_window"`
}

type Websocket struct {
	OriginPatterns []string `yaml:"origin_patterns"`
}

// Load reads path, if non-empty, then applies the environment and defaults.
// A missing file is an error only when path was given explicitly.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	setString := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	setString("TRIPZY_PORT", &c.Port)
	setString("TRIPZY_DB_PATH", &c.DBPath)
	setString("TRIPZY_LOG_LEVEL", &c.Log.Level)
	setString("TRIPZY_LOG_FORMAT", &c.Log.Format)
	setString("TRIPZY_AUTH_SECRET", &c.Auth.Secret)
	setString("TRIPZY_AUTH_ISSUER", &c.Auth.Issuer)
	setString("TRIPZY_REDIS_ADDR", &c.Redis.Addr)
	setString("TRIPZY_REDIS_PASSWORD", &c.Redis.Password)

	if v := getenv("TRIPZY_HIGH_VALUE_THRESHOLD"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("TRIPZY_HIGH_VALUE_THRESHOLD: %w", err)
		}
		c.Redeem.HighValueThreshold = n
	}
	if v := getenv("TRIPZY_ALLOWED_ORIGINS"); v != "" {
		c.Websocket.OriginPatterns = strings.Split(v, ",")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Port == "" {
		c.Port = "8080"
	}
	if c.DBPath == "" {
		c.DBPath = "tripzy.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = time.Minute
	}
	if c.Scanner.RateLimit == 0 {
		c.Scanner.RateLimit = 60
	}
	if c.Scanner.RateWindow == 0 {
		c.Scanner.RateWindow = time.Minute
	}
}

// Validate reports the first configuration error.
func (c *Config) Validate() error {
	if c.Auth.Secret == "" {
		return errors.New("auth secret is required (auth.secret or TRIPZY_AUTH_SECRET)")
	}
	if c.Redeem.HighValueThreshold < 0 {
		return fmt.Errorf("high value threshold must not be negative, got %d", c.Redeem.HighValueThreshold)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log format must be text or json, got %q", c.Log.Format)
	}
	for t, n := range c.Redeem.MonthlyLimits {
		if !t.Valid() {
			return fmt.Errorf("monthly limit for unknown tier %q", t)
		}
		if n < quota.Unlimited {
			return fmt.Errorf("monthly limit for %s must be -1 (unlimited) or more, got %d", t, n)
		}
	}
	if c.Scanner.RateLimit < 0 {
		return fmt.Errorf("scanner rate limit must not be negative, got %d", c.Scanner.RateLimit)
	}
	return nil
}

// QuotaTable returns the default monthly table with configured overrides.
func (c *Config) QuotaTable() quota.Table {
	t := make(quota.Table, len(quota.DefaultTable))
	for tier, n := range quota.DefaultTable {
		t[tier] = n
	}
	for tier, n := range c.Redeem.MonthlyLimits {
		t[tier] = n
	}
	return t
}
