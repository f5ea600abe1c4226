package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/faultkeeper/internal/resilience/monitor"
	"github.com/vietddude/faultkeeper/internal/resilience/recovery"
	"github.com/vietddude/faultkeeper/internal/resilience/tracker"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML content, applies defaults and validates the result.
func Parse(data []byte) (*AppConfig, error) {
	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *AppConfig {
	var cfg AppConfig
	cfg.applyDefaults()
	return &cfg
}

func (c *AppConfig) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Admin.RateLimit == 0 {
		c.Admin.RateLimit = 1
	}
	if c.Admin.Burst == 0 {
		c.Admin.Burst = 5
	}

	r := &c.Resilience
	if r.TrackingWindow == 0 {
		r.TrackingWindow = tracker.DefaultWindow
	}
	if r.StrategyTimeout == 0 {
		r.StrategyTimeout = 10 * time.Second
	}
	if r.Health.Degraded == 0 && r.Health.Critical == 0 {
		r.Health.Degraded = 0.8
		r.Health.Critical = 0.5
	}
	if len(r.Components) == 0 {
		for _, comp := range recovery.DefaultComponents() {
			r.Components = append(r.Components, ComponentConfig{
				Name:                comp.Name,
				MaxRecoveryAttempts: comp.MaxRecoveryAttempts,
				Critical:            comp.Critical,
			})
		}
	}
	for i := range r.Components {
		if r.Components[i].MaxRecoveryAttempts == 0 {
			r.Components[i].MaxRecoveryAttempts = 3
		}
	}
	if r.Monitor.Interval == 0 {
		r.Monitor.Interval = monitor.DefaultInterval
	}
	sweep := recovery.DefaultSweepPolicy()
	if r.Monitor.StaleAfter == 0 {
		r.Monitor.StaleAfter = sweep.StaleAfter
	}
	if r.Monitor.DecayAfter == 0 {
		r.Monitor.DecayAfter = sweep.DecayAfter
	}
}

// Validate checks the resilience section.
func (c *AppConfig) Validate() error {
	if _, err := c.Resilience.PolicyTable(); err != nil {
		return fmt.Errorf("invalid resilience config: %w", err)
	}
	if err := c.Resilience.RecoveryConfig().Validate(); err != nil {
		return fmt.Errorf("invalid resilience config: %w", err)
	}
	if c.Resilience.TrackingWindow < 0 || c.Resilience.Monitor.Interval < 0 {
		return fmt.Errorf("invalid resilience config: durations must not be negative")
	}
	if c.Resilience.StrategyTimeout < 0 {
		return fmt.Errorf("invalid resilience config: strategy_timeout must not be negative")
	}
	if c.Server.GRPCPort != 0 && c.Server.Port == c.Server.GRPCPort {
		return fmt.Errorf("server.port and server.grpc_port must differ")
	}
	return nil
}

// CriticalComponents returns the names of components flagged critical.
func (c *AppConfig) CriticalComponents() []string {
	var out []string
	for _, comp := range c.Resilience.Components {
		if comp.Critical {
			out = append(out, comp.Name)
		}
	}
	return out
}
