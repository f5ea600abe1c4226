// Package health derives the system health level from the component status set.
package health

import (
	"errors"
	"fmt"

	"github.com/vietddude/faultkeeper/internal/core/domain"
)

// Level is the overall health state of the system.
type Level string

const (
	LevelHealthy   Level = "healthy"
	LevelDegraded  Level = "degraded"
	LevelCritical  Level = "critical"
	LevelEmergency Level = "emergency"
)

// Rank orders levels from best (0) to worst (3).
func (l Level) Rank() int {
	switch l {
	case LevelHealthy:
		return 0
	case LevelDegraded:
		return 1
	case LevelCritical:
		return 2
	case LevelEmergency:
		return 3
	default:
		return -1
	}
}

// Worse reports whether l is a worse level than other.
func (l Level) Worse(other Level) bool {
	return l.Rank() > other.Rank()
}

// ErrInvalidThresholds is returned when health ratios are out of order or out of range.
var ErrInvalidThresholds = errors.New("invalid health thresholds")

// Thresholds are the healthy-ratio floors for DEGRADED and CRITICAL.
// A ratio of 1 is HEALTHY, >= Degraded is DEGRADED, >= Critical is CRITICAL, anything lower is EMERGENCY.
type Thresholds struct {
	Degraded float64 `yaml:"degraded" json:"degraded"`
	Critical float64 `yaml:"critical" json:"critical"`
}

// DefaultThresholds returns the stock 80%/50% ratios.
func DefaultThresholds() Thresholds {
	return Thresholds{Degraded: 0.8, Critical: 0.5}
}

// Validate checks 0 <= Critical <= Degraded <= 1.
func (t Thresholds) Validate() error {
	if t.Critical < 0 || t.Degraded > 1 || t.Critical > t.Degraded {
		return fmt.Errorf("%w: degraded=%v critical=%v", ErrInvalidThresholds, t.Degraded, t.Critical)
	}
	return nil
}

// Evaluate maps a healthy/total count to a level. An empty set is healthy.
func Evaluate(healthy, total int, t Thresholds) Level {
	if total <= 0 || healthy >= total {
		return LevelHealthy
	}
	ratio := float64(healthy) / float64(total)
	switch {
	case ratio >= t.Degraded:
		return LevelDegraded
	case ratio >= t.Critical:
		return LevelCritical
	default:
		return LevelEmergency
	}
}

// Aggregate computes the level of a component set. A permanently failed
// critical component forces EMERGENCY regardless of the ratio.
func Aggregate(components []domain.ComponentStatus, t Thresholds) Level {
	healthy := 0
	for _, c := range components {
		if c.Critical && c.PermanentlyFailed() {
			return LevelEmergency
		}
		if c.Healthy {
			healthy++
		}
	}
	return Evaluate(healthy, len(components), t)
}
