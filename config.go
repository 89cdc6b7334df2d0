package main

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	HTTPPort string `yaml:"http_port"`
	LogLevel string `yaml:"log_level"`

	BalanceStore        string `yaml:"balance_store"` // postgres, remote or memory
	DBUsername          string `yaml:"db_username"`
	DBPassword          string `yaml:"db_password"`
	DBPort              string `yaml:"db_port"`
	DBHost              string `yaml:"db_host"`
	DBName              string `yaml:"db_name"`
	RemoteURL           string `yaml:"remote_url"`
	RemoteAPIKey        string `yaml:"remote_api_key"`
	RemoteRatePerSecond int    `yaml:"remote_rate_per_second"`

	CurrenciesDir   string `yaml:"currencies_dir"`
	ExtractDefaults bool   `yaml:"extract_defaults"`
	StrictPrimary   bool   `yaml:"strict_primary"`

	RefreshIntervalMs int   `yaml:"refresh_interval_ms"`
	RankingLimit      int   `yaml:"ranking_limit"`
	FetchConcurrency  int64 `yaml:"fetch_concurrency"`
	FetchTimeoutMs    int   `yaml:"fetch_timeout_ms"`

	Economy struct {
		Enabled          bool `yaml:"enabled"`
		CommandShortcuts bool `yaml:"command_shortcuts"`
	} `yaml:"economy"`

	Breaker struct {
		ErrorThreshold   int `yaml:"error_threshold"`
		SuccessThreshold int `yaml:"success_threshold"`
		TimeoutMs        int `yaml:"timeout_ms"`
	} `yaml:"breaker"`
}

// LoadConfig reads a yaml configuration file and applies defaults.
func LoadConfig(path string) (Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read configuration file")
	}

	cfg := Config{
		HTTPPort:          ":3000",
		LogLevel:          "info",
		BalanceStore:      "postgres",
		CurrenciesDir:     "currencies",
		ExtractDefaults:   true,
		RefreshIntervalMs: 60000,
		FetchConcurrency:  4,
		FetchTimeoutMs:    10000,
	}
	cfg.Economy.CommandShortcuts = true

	if err := yaml.Unmarshal(content, &cfg); err != nil {
		return Config{}, errors.Wrap(err, "parse configuration file")
	}

	switch cfg.BalanceStore {
	case "postgres", "remote", "memory":
	default:
		return Config{}, errors.Errorf("unknown balance_store: %q", cfg.BalanceStore)
	}

	if cfg.BalanceStore == "remote" && cfg.RemoteURL == "" {
		return Config{}, errors.New("remote_url is required for the remote balance store")
	}

	return cfg, nil
}

func (c Config) RefreshInterval() time.Duration {
	return time.Duration(c.RefreshIntervalMs) * time.Millisecond
}

func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutMs) * time.Millisecond
}

func (c Config) BreakerTimeout() time.Duration {
	return time.Duration(c.Breaker.TimeoutMs) * time.Millisecond
}
