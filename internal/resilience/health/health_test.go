package health

import (
	"testing"

	"github.com/vietddude/faultkeeper/internal/core/domain"
)

// =============================================================================
// Tests
// =============================================================================

func TestEvaluate(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		name           string
		healthy, total int
		want           Level
	}{
		{"all healthy", 5, 5, LevelHealthy},
		{"empty set", 0, 0, LevelHealthy},
		{"4 of 5", 4, 5, LevelDegraded},
		{"3 of 5", 3, 5, LevelCritical},
		{"1 of 2", 1, 2, LevelCritical},
		{"2 of 5", 2, 5, LevelEmergency},
		{"none", 0, 5, LevelEmergency},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Evaluate(tt.healthy, tt.total, th); got != tt.want {
				t.Errorf("Evaluate(%d, %d) = %s, want %s", tt.healthy, tt.total, got, tt.want)
			}
		})
	}
}

func TestEvaluate_CustomThresholds(t *testing.T) {
	th := Thresholds{Degraded: 0.5, Critical: 0.2}

	if got := Evaluate(3, 5, th); got != LevelDegraded {
		t.Errorf("expected degraded, got %s", got)
	}
	if got := Evaluate(1, 5, th); got != LevelCritical {
		t.Errorf("expected critical, got %s", got)
	}
}

func TestAggregate_CriticalPermanentFailure(t *testing.T) {
	components := []domain.ComponentStatus{
		domain.NewComponentStatus(domain.ComponentImagePipeline, 3, false),
		domain.NewComponentStatus(domain.ComponentCarousel, 3, false),
		domain.NewComponentStatus(domain.ComponentDisplay, 1, true),
		domain.NewComponentStatus(domain.ComponentScheduler, 3, false),
		domain.NewComponentStatus(domain.ComponentUI, 3, false),
	}
	if got := Aggregate(components, DefaultThresholds()); got != LevelHealthy {
		t.Fatalf("expected healthy, got %s", got)
	}

	components[2].Healthy = false
	components[2].State = domain.ComponentUnhealthy
	if got := Aggregate(components, DefaultThresholds()); got != LevelDegraded {
		t.Fatalf("expected degraded, got %s", got)
	}

	components[2].State = domain.ComponentPermanentlyFailed
	if got := Aggregate(components, DefaultThresholds()); got != LevelEmergency {
		t.Fatalf("expected emergency, got %s", got)
	}
}

func TestAggregate_NonCriticalPermanentFailure(t *testing.T) {
	components := []domain.ComponentStatus{
		domain.NewComponentStatus(domain.ComponentCarousel, 3, false),
		domain.NewComponentStatus(domain.ComponentDisplay, 1, true),
	}
	components[0].Healthy = false
	components[0].State = domain.ComponentPermanentlyFailed

	if got := Aggregate(components, DefaultThresholds()); got != LevelCritical {
		t.Errorf("expected critical, got %s", got)
	}
}

func TestThresholds_Validate(t *testing.T) {
	if err := DefaultThresholds().Validate(); err != nil {
		t.Errorf("default thresholds invalid: %v", err)
	}
	if err := (Thresholds{Degraded: 0.4, Critical: 0.6}).Validate(); err == nil {
		t.Error("expected error for critical above degraded")
	}
	if err := (Thresholds{Degraded: 1.5, Critical: 0.5}).Validate(); err == nil {
		t.Error("expected error for ratio above 1")
	}
}

func TestLevel_Rank(t *testing.T) {
	if !LevelEmergency.Worse(LevelCritical) || !LevelCritical.Worse(LevelDegraded) || !LevelDegraded.Worse(LevelHealthy) {
		t.Error("levels are not ordered")
	}
	if LevelHealthy.Worse(LevelHealthy) {
		t.Error("a level is not worse than itself")
	}
}
