package recovery

import (
	"log/slog"
	"time"

	"github.com/vietddude/faultkeeper/internal/core/domain"
	"github.com/vietddude/faultkeeper/internal/resilience/health"
	"github.com/vietddude/faultkeeper/internal/resilience/tracker"
)

// Snapshot is a read-only view of the subsystem.
type Snapshot struct {
	SystemHealth     health.Level                      `json:"system_health"`
	Components       map[string]domain.ComponentStatus `json:"components"`
	Errors           tracker.Statistics                `json:"error_statistics"`
	Escalated        bool                              `json:"escalated"`
	MonitoringActive bool                              `json:"monitoring_active"`
	GeneratedAt      time.Time                         `json:"generated_at"`
}

// SystemStatus builds a snapshot. The level is derived from the current
// component set, never read from a cache.
func (o *Orchestrator) SystemStatus() Snapshot {
	o.mu.Lock()
	statuses := o.statusesLocked()
	o.mu.Unlock()

	snap := Snapshot{
		SystemHealth:     health.Aggregate(statuses, o.thresholds),
		Components:       make(map[string]domain.ComponentStatus, len(statuses)),
		Errors:           o.tracker.Statistics(),
		MonitoringActive: o.monitoring.Load(),
		GeneratedAt:      o.now(),
	}
	for _, s := range statuses {
		snap.Components[s.Name] = s
		if s.Critical && s.PermanentlyFailed() {
			snap.Escalated = true
		}
	}
	return snap
}

// Level returns the current system health level.
func (o *Orchestrator) Level() health.Level {
	o.mu.Lock()
	defer o.mu.Unlock()
	return health.Aggregate(o.statusesLocked(), o.thresholds)
}

// Component returns the status of one component.
func (o *Orchestrator) Component(name string) (domain.ComponentStatus, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.components[name]
	if !ok {
		return domain.ComponentStatus{}, false
	}
	return c.status, true
}

// Components returns the registered component names in registration order.
func (o *Orchestrator) Components() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, len(o.order))
	copy(out, o.order)
	return out
}

// MarkMonitoring records whether the background monitor is running.
func (o *Orchestrator) MarkMonitoring(active bool) {
	o.monitoring.Store(active)
}

// SweepPolicy configures a periodic sweep.
type SweepPolicy struct {
	// StaleAfter marks an unhealthy component silent when its last error is older.
	StaleAfter time.Duration
	// DecayAfter clears counters of a healthy component when its last error is older.
	DecayAfter time.Duration
}

// DefaultSweepPolicy returns 5 minutes staleness and 1 hour decay.
func DefaultSweepPolicy() SweepPolicy {
	return SweepPolicy{
		StaleAfter: 300 * time.Second,
		DecayAfter: time.Hour,
	}
}

// SweepResult lists the components touched by a sweep.
type SweepResult struct {
	Silent  []string
	Decayed []string
}

// Sweep detects silent components and decays stale counters of healthy ones.
// Silent components are only logged.
func (o *Orchestrator) Sweep(now time.Time, p SweepPolicy) SweepResult {
	var res SweepResult

	o.mu.Lock()
	for _, name := range o.order {
		s := &o.components[name].status
		switch {
		case !s.Healthy:
			if s.LastError != nil && now.Sub(*s.LastError) > p.StaleAfter {
				res.Silent = append(res.Silent, name)
			}
		case s.ErrorCount > 0:
			if s.LastError == nil || now.Sub(*s.LastError) > p.DecayAfter {
				s.ErrorCount = 0
				s.RecoveryAttempts = 0
				res.Decayed = append(res.Decayed, name)
			}
		}
	}
	o.mu.Unlock()

	for _, name := range res.Silent {
		o.safeLog(slog.LevelWarn, "Component appears to be unresponsive", "target", name)
	}
	for _, name := range res.Decayed {
		o.safeLog(slog.LevelInfo, "Decayed error counters", "target", name)
	}
	return res
}
