package domain

import "time"

// Well-known components of the display application.
const (
	ComponentImagePipeline = "image-pipeline"
	ComponentCarousel      = "carousel"
	ComponentDisplay       = "display"
	ComponentScheduler     = "scheduler"
	ComponentUI            = "ui"
)

// ComponentState is the recovery state of a component.
type ComponentState string

const (
	ComponentHealthy           ComponentState = "healthy"
	ComponentUnhealthy         ComponentState = "unhealthy"
	ComponentRecovering        ComponentState = "recovering"
	ComponentPermanentlyFailed ComponentState = "permanently_failed"
)

// ComponentStatus is the health record of one named component.
type ComponentStatus struct {
	Name                string         `json:"name"`
	State               ComponentState `json:"state"`
	Healthy             bool           `json:"healthy"`
	Critical            bool           `json:"critical"`
	LastError           *time.Time     `json:"last_error"`
	ErrorCount          int            `json:"error_count"`
	RecoveryAttempts    int            `json:"recovery_attempts"`
	MaxRecoveryAttempts int            `json:"max_recovery_attempts"`
}

// NewComponentStatus returns a fresh, healthy status record.
func NewComponentStatus(name string, maxRecoveryAttempts int, critical bool) ComponentStatus {
	return ComponentStatus{
		Name:                name,
		State:               ComponentHealthy,
		Healthy:             true,
		Critical:            critical,
		MaxRecoveryAttempts: maxRecoveryAttempts,
	}
}

// PermanentlyFailed reports whether the component exhausted its recovery budget.
func (s ComponentStatus) PermanentlyFailed() bool {
	return s.State == ComponentPermanentlyFailed
}
