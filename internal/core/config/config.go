package config

import (
	"fmt"
	"time"

	"github.com/vietddude/faultkeeper/internal/core/domain"
	redisclient "github.com/vietddude/faultkeeper/internal/infra/redis"
	"github.com/vietddude/faultkeeper/internal/resilience/health"
	"github.com/vietddude/faultkeeper/internal/resilience/monitor"
	"github.com/vietddude/faultkeeper/internal/resilience/policy"
	"github.com/vietddude/faultkeeper/internal/resilience/recovery"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig       `yaml:"server"`
	Logging    LoggingConfig      `yaml:"logging"`
	Redis      redisclient.Config `yaml:"redis"`
	Admin      AdminConfig        `yaml:"admin"`
	Resilience ResilienceConfig   `yaml:"resilience"`
}

// ServerConfig holds HTTP and gRPC listener settings.
type ServerConfig struct {
	Port     int `yaml:"port"`
	GRPCPort int `yaml:"grpc_port"` // 0 = gRPC health disabled
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// AdminConfig limits the administrative endpoints.
type AdminConfig struct {
	RateLimit float64 `yaml:"rate_limit"` // requests per second
	Burst     int     `yaml:"burst"`
}

// ResilienceConfig configures tracking, retry, recovery and monitoring.
type ResilienceConfig struct {
	TrackingWindow  time.Duration           `yaml:"tracking_window"`
	StrategyTimeout time.Duration           `yaml:"strategy_timeout"`
	Policies        map[string]PolicyConfig `yaml:"policies"`
	Thresholds      map[string]int          `yaml:"thresholds"`
	Components      []ComponentConfig       `yaml:"components"`
	Health          HealthConfig            `yaml:"health"`
	Monitor         MonitorConfig           `yaml:"monitor"`
}

// PolicyConfig overrides the stock retry policy of one category.
// Unset fields keep the stock value.
type PolicyConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
	Exponential *bool         `yaml:"exponential"`
	Jitter      *bool         `yaml:"jitter"`
}

// ComponentConfig registers one recoverable component.
type ComponentConfig struct {
	Name                string `yaml:"name"`
	MaxRecoveryAttempts int    `yaml:"max_recovery_attempts"`
	Critical            bool   `yaml:"critical"`
}

// HealthConfig holds the healthy-ratio floors.
type HealthConfig struct {
	Degraded float64 `yaml:"degraded"`
	Critical float64 `yaml:"critical"`
}

// MonitorConfig configures the background sweep.
type MonitorConfig struct {
	Interval   time.Duration `yaml:"interval"`
	StaleAfter time.Duration `yaml:"stale_after"`
	DecayAfter time.Duration `yaml:"decay_after"`
}

// PolicyTable merges the configured overrides onto the stock policies and thresholds.
func (r ResilienceConfig) PolicyTable() (*policy.Table, error) {
	policies := policy.DefaultPolicies()
	for name, pc := range r.Policies {
		category, err := domain.ParseCategory(name)
		if err != nil {
			return nil, fmt.Errorf("policies: %w", err)
		}
		p, ok := policies[category]
		if !ok {
			p = policy.DefaultPolicy()
		}
		if pc.MaxAttempts != 0 {
			p.MaxAttempts = pc.MaxAttempts
		}
		if pc.BaseDelay != 0 {
			p.BaseDelay = pc.BaseDelay
		}
		if pc.MaxDelay != 0 {
			p.MaxDelay = pc.MaxDelay
		}
		if pc.Exponential != nil {
			p.Exponential = *pc.Exponential
		}
		if pc.Jitter != nil {
			p.Jitter = *pc.Jitter
		}
		policies[category] = p
	}

	thresholds := policy.DefaultThresholds()
	for name, n := range r.Thresholds {
		category, err := domain.ParseCategory(name)
		if err != nil {
			return nil, fmt.Errorf("thresholds: %w", err)
		}
		thresholds[category] = n
	}

	return policy.NewTable(policies, thresholds)
}

// RecoveryConfig converts the component registry and health ratios.
func (r ResilienceConfig) RecoveryConfig() recovery.Config {
	cfg := recovery.Config{
		Thresholds: health.Thresholds{
			Degraded: r.Health.Degraded,
			Critical: r.Health.Critical,
		},
	}
	for _, c := range r.Components {
		cfg.Components = append(cfg.Components, recovery.ComponentConfig{
			Name:                c.Name,
			MaxRecoveryAttempts: c.MaxRecoveryAttempts,
			Critical:            c.Critical,
		})
	}
	return cfg
}

// MonitorSettings converts the sweep settings.
func (r ResilienceConfig) MonitorSettings() monitor.Config {
	return monitor.Config{
		Interval: r.Monitor.Interval,
		Policy: recovery.SweepPolicy{
			StaleAfter: r.Monitor.StaleAfter,
			DecayAfter: r.Monitor.DecayAfter,
		},
	}
}
