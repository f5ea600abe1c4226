package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/vietddude/faultkeeper/internal/core/domain"
)

func TestLoad_EnvSubstitution(t *testing.T) {
	// Setup env var
	os.Setenv("TEST_REDIS_URL", "redis://localhost:6380/2")
	defer os.Unsetenv("TEST_REDIS_URL")

	// Create temp config file
	configContent := `
redis:
  url: ${TEST_REDIS_URL}
  channel: display-events
`
	tmpFile, err := os.CreateTemp("", "config_*.yaml")
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer os.Remove(tmpFile.Name())

	if _, err := tmpFile.Write([]byte(configContent)); err != nil {
		t.Fatalf("Failed to write to temp file: %v", err)
	}
	tmpFile.Close()

	// Load config
	cfg, err := Load(tmpFile.Name())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Redis.URL != "redis://localhost:6380/2" {
		t.Errorf("Expected URL redis://localhost:6380/2, got %s", cfg.Redis.URL)
	}
	if cfg.Redis.Channel != "display-events" {
		t.Errorf("Expected channel display-events, got %s", cfg.Redis.Channel)
	}
}

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte(""))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Resilience.TrackingWindow != time.Hour {
		t.Errorf("Expected 1h tracking window, got %v", cfg.Resilience.TrackingWindow)
	}
	if cfg.Resilience.Monitor.Interval != 30*time.Second {
		t.Errorf("Expected 30s monitor interval, got %v", cfg.Resilience.Monitor.Interval)
	}
	if cfg.Resilience.Monitor.StaleAfter != 300*time.Second {
		t.Errorf("Expected 300s staleness, got %v", cfg.Resilience.Monitor.StaleAfter)
	}
	if len(cfg.Resilience.Components) != 5 {
		t.Fatalf("Expected 5 default components, got %d", len(cfg.Resilience.Components))
	}
	if got := cfg.CriticalComponents(); len(got) != 1 || got[0] != domain.ComponentDisplay {
		t.Errorf("Expected display to be the only critical component, got %v", got)
	}

	table, err := cfg.Resilience.PolicyTable()
	if err != nil {
		t.Fatalf("PolicyTable failed: %v", err)
	}
	if table.Threshold(domain.CategorySystem) != 1 {
		t.Errorf("Expected system threshold 1, got %d", table.Threshold(domain.CategorySystem))
	}
}

func TestParse_PolicyOverrides(t *testing.T) {
	cfg, err := Parse([]byte(`
resilience:
  policies:
    folder_access:
      max_attempts: 5
      base_delay: 250ms
      jitter: false
  thresholds:
    display_error: 7
  components:
    - name: display
      max_recovery_attempts: 2
      critical: true
    - name: carousel
  health:
    degraded: 0.9
    critical: 0.6
  monitor:
    interval: 10s
`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	table, err := cfg.Resilience.PolicyTable()
	if err != nil {
		t.Fatalf("PolicyTable failed: %v", err)
	}
	p := table.Policy(domain.CategoryFolderAccess)
	if p.MaxAttempts != 5 || p.BaseDelay != 250*time.Millisecond {
		t.Errorf("Override not applied: %+v", p)
	}
	if p.Jitter {
		t.Error("Expected jitter disabled")
	}
	if !p.Exponential {
		t.Error("Expected exponential kept from stock policy")
	}
	if p.MaxDelay != time.Minute {
		t.Errorf("Expected stock max delay, got %v", p.MaxDelay)
	}
	if table.Threshold(domain.CategoryDisplay) != 7 {
		t.Errorf("Expected display threshold 7, got %d", table.Threshold(domain.CategoryDisplay))
	}

	rc := cfg.Resilience.RecoveryConfig()
	if len(rc.Components) != 2 {
		t.Fatalf("Expected 2 components, got %d", len(rc.Components))
	}
	if rc.Components[1].MaxRecoveryAttempts != 3 {
		t.Errorf("Expected default cap 3, got %d", rc.Components[1].MaxRecoveryAttempts)
	}
	if rc.Thresholds.Degraded != 0.9 || rc.Thresholds.Critical != 0.6 {
		t.Errorf("Unexpected health thresholds: %+v", rc.Thresholds)
	}
	if got := cfg.Resilience.MonitorSettings().Interval; got != 10*time.Second {
		t.Errorf("Expected 10s interval, got %v", got)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name: "unknown category",
			content: `
resilience:
  policies:
    gpu:
      max_attempts: 2
`,
			want: "unknown failure category",
		},
		{
			name: "zero threshold",
			content: `
resilience:
  thresholds:
    network: -1
`,
			want: "invalid error threshold",
		},
		{
			name: "duplicate component",
			content: `
resilience:
  components:
    - name: display
    - name: display
`,
			want: "duplicate component",
		},
		{
			name: "inverted health ratios",
			content: `
resilience:
  health:
    degraded: 0.4
    critical: 0.7
`,
			want: "invalid health thresholds",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.content))
			if err == nil {
				t.Fatal("Expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
