// Package config assembles a single explicit Config struct at boot time,
// populated from environment variables and YAML overrides. There is no
// global mutable singleton: every component that needs configuration
// receives it through its constructor (see spec.md §9, "Global mutable
// singletons").
package config

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the enumerated set of recognized options. Unknown YAML keys
// reject at load time via a yaml.Decoder with KnownFields(true).
type Config struct {
	DatabaseURL           string        `yaml:"database_url"`
	BinanceAPIBaseURL     string        `yaml:"binance_api_base_url"`
	BinanceRateLimitRPS   float64       `yaml:"binance_rate_limit_rps"`
	BinanceRateLimitBurst int           `yaml:"binance_rate_limit_burst"`
	LogLevel              string        `yaml:"log_level"`
	SchedulerTimezone     string        `yaml:"scheduler_timezone"`
	RecommendationUpdateTime string     `yaml:"recommendation_update_time"` // "HH:MM" UTC
	PrestartDays          int           `yaml:"prestart_days"`
	PrestartChunkSize     int           `yaml:"prestart_chunk_size"`
	PrestartSleepMs       int           `yaml:"prestart_sleep_ms"`
	RiskRuinAlertThreshold float64      `yaml:"risk_ruin_alert_threshold"`
	RiskOfRuinMax         float64       `yaml:"risk_of_ruin_max"`
	LeverageWarnThreshold float64       `yaml:"leverage_warn_threshold"`
	LeverageHardThreshold float64       `yaml:"leverage_hard_threshold"`
	ExposureLimitMultiplier float64     `yaml:"exposure_limit_multiplier"`
	WormRetentionDays     int           `yaml:"worm_retention_days"`
	AlertWebhookURL       string        `yaml:"alert_webhook_url"`
	RedisAddr             string        `yaml:"redis_addr"`
	DataDir               string        `yaml:"data_dir"`
	ArtifactsDir          string        `yaml:"artifacts_dir"`
	CodeCommit            string        `yaml:"code_commit"`
	ParamsVersion         string        `yaml:"params_version"`
	ConfigVersion         string        `yaml:"config_version"`
}

// Default returns production-reasonable defaults; every field can be
// overridden by an environment variable or a YAML file.
func Default() Config {
	return Config{
		BinanceAPIBaseURL:        "https://api.binance.com",
		BinanceRateLimitRPS:      20.0, // 1200 req / 60s
		BinanceRateLimitBurst:    40,
		LogLevel:                 "info",
		SchedulerTimezone:        "UTC",
		RecommendationUpdateTime: "00:05",
		PrestartDays:             7,
		PrestartChunkSize:        500,
		PrestartSleepMs:          250,
		RiskRuinAlertThreshold:   0.05,
		RiskOfRuinMax:            0.05,
		LeverageWarnThreshold:    2.0,
		LeverageHardThreshold:    3.0,
		ExposureLimitMultiplier:  2.0,
		WormRetentionDays:        3650,
		DataDir:                  "data",
		ArtifactsDir:             "artifacts",
		ConfigVersion:            "v1",
	}
}

// LoadFile decodes a YAML override file on top of Default(), rejecting
// unknown keys so a typo in an operator's config never silently no-ops.
func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return applyEnv(cfg), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config %s: %w", path, err)
	}
	return applyEnv(cfg), nil
}

// applyEnv overlays the environment variables enumerated in spec.md §6.
func applyEnv(cfg Config) Config {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("BINANCE_API_BASE_URL"); v != "" {
		cfg.BinanceAPIBaseURL = v
	}
	if v := os.Getenv("BINANCE_RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.BinanceRateLimitRPS = f
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SCHEDULER_TIMEZONE"); v != "" {
		cfg.SchedulerTimezone = v
	}
	if v := os.Getenv("RECOMMENDATION_UPDATE_TIME"); v != "" {
		cfg.RecommendationUpdateTime = v
	}
	if v := os.Getenv("RISK_RUIN_ALERT_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RiskRuinAlertThreshold = f
		}
	}
	if v := os.Getenv("RISK_OF_RUIN_MAX"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RiskOfRuinMax = f
		}
	}
	if v := os.Getenv("LEVERAGE_WARN_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.LeverageWarnThreshold = f
		}
	}
	if v := os.Getenv("LEVERAGE_HARD_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.LeverageHardThreshold = f
		}
	}
	if v := os.Getenv("EXPOSURE_LIMIT_MULTIPLIER"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.ExposureLimitMultiplier = f
		}
	}
	if v := os.Getenv("WORM_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WormRetentionDays = n
		}
	}
	if v := os.Getenv("ALERT_WEBHOOK_URL"); v != "" {
		cfg.AlertWebhookURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	return cfg
}

// UpdateTime parses RecommendationUpdateTime ("HH:MM") into an hour/minute
// pair in the scheduler's configured timezone.
func (c Config) UpdateTime() (hour, minute int, err error) {
	t, err := time.Parse("15:04", c.RecommendationUpdateTime)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid recommendation_update_time %q: %w", c.RecommendationUpdateTime, err)
	}
	return t.Hour(), t.Minute(), nil
}
