package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RiskGuardConfig holds the ordered threshold set the Risk Evaluator
// (C9) applies. Values mirror the table in spec.md §4.7. Grounded on
// the teacher's internal/config/guards.go GuardProfile/RegimeGuards
// YAML shape.
type RiskGuardConfig struct {
	DailyRiskCapPct          float64 `yaml:"daily_risk_cap_pct"`          // 3%
	DailyRiskWarnPct         float64 `yaml:"daily_risk_warn_pct"`         // 2%
	MaxTrades24h             int     `yaml:"max_trades_24h"`
	CooldownLossStreak       int     `yaml:"cooldown_loss_streak"`        // 3 over 24h
	CooldownTradeCount12h    int     `yaml:"cooldown_trade_count_12h"`    // >8 trades in 12h
	LeverageHardStop         float64 `yaml:"leverage_hard_stop"`          // 3x
	LeverageHardStopMinutes  int     `yaml:"leverage_hard_stop_minutes"`  // 60
	ExposureLimitMultiplier  float64 `yaml:"exposure_limit_multiplier"`   // 2.0x equity
	RuinAlertThreshold       float64 `yaml:"ruin_alert_threshold"`        // 5%
	RiskRewardFloor          float64 `yaml:"risk_reward_floor"`           // 1.2
}

// DefaultRiskGuardConfig returns the production thresholds from spec.md §4.7.
func DefaultRiskGuardConfig() RiskGuardConfig {
	return RiskGuardConfig{
		DailyRiskCapPct:         3.0,
		DailyRiskWarnPct:        2.0,
		MaxTrades24h:            10,
		CooldownLossStreak:      3,
		CooldownTradeCount12h:   8,
		LeverageHardStop:        3.0,
		LeverageHardStopMinutes: 60,
		ExposureLimitMultiplier: 2.0,
		RuinAlertThreshold:      0.05,
		RiskRewardFloor:         1.2,
	}
}

// LoadRiskGuardConfig loads an override file on top of the defaults,
// rejecting unknown keys.
func LoadRiskGuardConfig(path string) (RiskGuardConfig, error) {
	cfg := DefaultRiskGuardConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read risk guard config %s: %w", path, err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse risk guard config %s: %w", path, err)
	}
	return cfg, nil
}
