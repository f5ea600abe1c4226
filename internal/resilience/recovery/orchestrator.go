// Package recovery owns per-component health records and drives registered
// recovery strategies through the component state machine.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/faultkeeper/internal/core/domain"
	"github.com/vietddude/faultkeeper/internal/resilience/health"
	"github.com/vietddude/faultkeeper/internal/resilience/metrics"
	"github.com/vietddude/faultkeeper/internal/resilience/tracker"
)

var (
	// ErrUnknownComponent is returned for names outside the component registry.
	ErrUnknownComponent = errors.New("unknown component")

	// ErrStrategyExists is returned when a component already has a strategy.
	ErrStrategyExists = errors.New("recovery strategy already registered")

	// ErrInvalidConfig is returned by New for a bad component registry.
	ErrInvalidConfig = errors.New("invalid recovery config")
)

// Recoverable probes and repairs one component. It returns true when the
// component is healthy again.
type Recoverable interface {
	AttemptRecovery() bool
}

// RecoverableFunc adapts a function to Recoverable.
type RecoverableFunc func() bool

// AttemptRecovery calls f().
func (f RecoverableFunc) AttemptRecovery() bool { return f() }

// FailureTracker is the part of the tracker the orchestrator depends on.
type FailureTracker interface {
	tracker.FailureHandler
	Statistics() tracker.Statistics
}

// ComponentConfig registers one component.
type ComponentConfig struct {
	Name                string
	MaxRecoveryAttempts int
	Critical            bool
}

// DefaultComponents returns the stock registry. The display is critical and
// gets a single recovery attempt.
func DefaultComponents() []ComponentConfig {
	return []ComponentConfig{
		{Name: domain.ComponentImagePipeline, MaxRecoveryAttempts: 3},
		{Name: domain.ComponentCarousel, MaxRecoveryAttempts: 3},
		{Name: domain.ComponentDisplay, MaxRecoveryAttempts: 1, Critical: true},
		{Name: domain.ComponentScheduler, MaxRecoveryAttempts: 3},
		{Name: domain.ComponentUI, MaxRecoveryAttempts: 3},
	}
}

// Config is the static input of an Orchestrator.
type Config struct {
	Components []ComponentConfig
	Thresholds health.Thresholds
}

// Validate checks the registry and health thresholds.
func (c Config) Validate() error {
	seen := make(map[string]struct{}, len(c.Components))
	for _, comp := range c.Components {
		if comp.Name == "" {
			return fmt.Errorf("%w: component name is empty", ErrInvalidConfig)
		}
		if _, dup := seen[comp.Name]; dup {
			return fmt.Errorf("%w: duplicate component %q", ErrInvalidConfig, comp.Name)
		}
		seen[comp.Name] = struct{}{}
		if comp.MaxRecoveryAttempts < 1 {
			return fmt.Errorf("%w: component %q: max_recovery_attempts must be >= 1", ErrInvalidConfig, comp.Name)
		}
	}
	if err := c.Thresholds.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// Outcome is the full result of a component report.
type Outcome struct {
	// Continue is false only when a critical component is permanently failed.
	Continue bool
	// TrackerContinue is the tracker's decision for the same report.
	TrackerContinue   bool
	State             State
	RecoveryAttempted bool
	Recovered         bool
}

type component struct {
	status domain.ComponentStatus
	// recoverMu serializes recovery for this component.
	recoverMu sync.Mutex
}

// changeSet collects rejected transitions for logging after unlock.
type changeSet struct {
	errs []error
}

// Orchestrator is safe for concurrent use. Strategies, logging and event sinks
// always run outside its lock.
type Orchestrator struct {
	tracker    FailureTracker
	thresholds health.Thresholds
	now        func() time.Time
	log        *slog.Logger

	mu         sync.Mutex
	components map[string]*component
	order      []string
	strategies map[string]Recoverable
	sinks      []EventSink
	level      health.Level
	// pending holds committed events in commit order until delivered.
	pending    []Event
	seq        uint64
	delivering bool

	monitoring atomic.Bool
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.log = l
	}
}

// WithSink registers an event sink at construction.
func WithSink(s EventSink) Option {
	return func(o *Orchestrator) {
		o.sinks = append(o.sinks, s)
	}
}

// New creates an orchestrator over the component registry in cfg.
// An empty registry falls back to DefaultComponents, zero thresholds to the defaults.
func New(cfg Config, tr FailureTracker, opts ...Option) (*Orchestrator, error) {
	if tr == nil {
		return nil, fmt.Errorf("%w: tracker is required", ErrInvalidConfig)
	}
	if len(cfg.Components) == 0 {
		cfg.Components = DefaultComponents()
	}
	if cfg.Thresholds == (health.Thresholds{}) {
		cfg.Thresholds = health.DefaultThresholds()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		tracker:    tr,
		thresholds: cfg.Thresholds,
		now:        time.Now,
		log:        slog.Default().With("component", "recovery"),
		components: make(map[string]*component, len(cfg.Components)),
		strategies: make(map[string]Recoverable),
		level:      health.LevelHealthy,
	}
	for _, opt := range opts {
		opt(o)
	}

	for _, c := range cfg.Components {
		o.components[c.Name] = &component{
			status: domain.NewComponentStatus(c.Name, c.MaxRecoveryAttempts, c.Critical),
		}
		o.order = append(o.order, c.Name)
		metrics.ComponentHealthy.WithLabelValues(c.Name).Set(1)
	}
	metrics.SystemHealthLevel.Set(float64(o.level.Rank()))

	return o, nil
}

// AddSink registers an event sink.
func (o *Orchestrator) AddSink(s EventSink) {
	o.mu.Lock()
	defer o.mu.Unlock()
	next := make([]EventSink, len(o.sinks), len(o.sinks)+1)
	copy(next, o.sinks)
	o.sinks = append(next, s)
}

// RegisterStrategy associates r with a registered component. At most one
// strategy per component.
func (o *Orchestrator) RegisterStrategy(name string, r Recoverable) error {
	if r == nil {
		return fmt.Errorf("recovery strategy for %s is nil", name)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.components[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownComponent, name)
	}
	if _, ok := o.strategies[name]; ok {
		return fmt.Errorf("%w: %s", ErrStrategyExists, name)
	}
	o.strategies[name] = r

	o.log.Info("Registered recovery strategy", "target", name)
	return nil
}

// ReportComponentError routes a component-scoped failure through recovery and
// returns false only when the host should stop.
func (o *Orchestrator) ReportComponentError(name string, report domain.FailureReport) bool {
	return o.Report(name, report).Continue
}

// Report is ReportComponentError with the full outcome.
func (o *Orchestrator) Report(name string, report domain.FailureReport) Outcome {
	out := Outcome{
		Continue:        true,
		TrackerContinue: o.tracker.HandleFailure(report),
	}

	c, ok := o.lookup(name)
	if !ok {
		o.safeLog(slog.LevelWarn, "Unknown component reported error",
			"target", name, "category", report.Category())
		return out
	}

	if !report.Severity().AtLeast(domain.SeverityHigh) {
		o.mu.Lock()
		c.recordError(report.Timestamp())
		out.State = c.status.State
		if c.status.PermanentlyFailed() {
			out.Continue = !c.status.Critical
		}
		o.mu.Unlock()
		return out
	}

	c.recoverMu.Lock()
	defer c.recoverMu.Unlock()

	var cs changeSet
	o.mu.Lock()
	c.recordError(report.Timestamp())
	if c.status.PermanentlyFailed() {
		out.State = c.status.State
		out.Continue = !c.status.Critical
		o.mu.Unlock()
		o.safeLog(slog.LevelError, "Component permanently failed, report ignored",
			"target", name, "severity", report.Severity())
		return out
	}
	o.transitionLocked(&cs, c, domain.ComponentUnhealthy,
		fmt.Sprintf("%s %s failure", report.Severity(), report.Category()))
	o.mu.Unlock()
	o.dispatch(cs)

	res := o.runRecovery(c, "failure report")
	out.State = res.state
	out.RecoveryAttempted = res.attempted
	out.Recovered = res.recovered
	if res.state == domain.ComponentPermanentlyFailed {
		out.Continue = !res.critical
	}
	return out
}

// ForceRecovery clears the attempt counter and runs the strategy once,
// including from PERMANENTLY_FAILED. Unknown components return false.
func (o *Orchestrator) ForceRecovery(name string) bool {
	c, ok := o.lookup(name)
	if !ok {
		o.safeLog(slog.LevelWarn, "Forced recovery of unknown component", "target", name)
		return false
	}

	c.recoverMu.Lock()
	defer c.recoverMu.Unlock()

	o.mu.Lock()
	c.status.RecoveryAttempts = 0
	o.mu.Unlock()

	o.safeLog(slog.LevelInfo, "Forcing recovery", "target", name)
	return o.runRecovery(c, "forced recovery").recovered
}

// ResetComponent returns a component to a fully healthy state. Resetting a
// healthy component is a no-op.
// It waits for any recovery of the same component in progress.
func (o *Orchestrator) ResetComponent(name string) error {
	c, ok := o.lookup(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownComponent, name)
	}

	c.recoverMu.Lock()
	defer c.recoverMu.Unlock()

	var cs changeSet
	o.mu.Lock()
	c.status.ErrorCount = 0
	c.status.RecoveryAttempts = 0
	c.status.LastError = nil
	o.transitionLocked(&cs, c, domain.ComponentHealthy, "reset")
	o.mu.Unlock()

	o.dispatch(cs)
	o.safeLog(slog.LevelInfo, "Reset component", "target", name)
	return nil
}

type recoveryResult struct {
	state     State
	critical  bool
	attempted bool
	recovered bool
}

// runRecovery requires c.recoverMu to be held by the caller.
func (o *Orchestrator) runRecovery(c *component, reason string) recoveryResult {
	var cs changeSet

	o.mu.Lock()
	name := c.status.Name
	if c.status.RecoveryAttempts >= c.status.MaxRecoveryAttempts {
		o.failPermanentlyLocked(&cs, c)
		res := recoveryResult{state: c.status.State, critical: c.status.Critical}
		o.mu.Unlock()
		o.dispatch(cs)
		return res
	}
	o.transitionLocked(&cs, c, domain.ComponentRecovering, reason)
	strategy := o.strategies[name]
	attempt := c.status.RecoveryAttempts + 1
	maxAttempts := c.status.MaxRecoveryAttempts
	o.mu.Unlock()
	o.dispatch(cs)

	o.safeLog(slog.LevelInfo, "Attempting recovery",
		"target", name, "attempt", attempt, "max_attempts", maxAttempts)
	ok := o.invoke(name, strategy)

	cs = changeSet{}
	o.mu.Lock()
	if ok {
		c.status.ErrorCount = 0
		c.status.RecoveryAttempts = 0
		o.transitionLocked(&cs, c, domain.ComponentHealthy, "recovery succeeded")
	} else {
		c.status.RecoveryAttempts++
		o.transitionLocked(&cs, c, domain.ComponentUnhealthy, "recovery failed")
		if c.status.RecoveryAttempts >= c.status.MaxRecoveryAttempts {
			o.failPermanentlyLocked(&cs, c)
		}
	}
	res := recoveryResult{
		state:     c.status.State,
		critical:  c.status.Critical,
		attempted: true,
		recovered: ok,
	}
	o.mu.Unlock()
	o.dispatch(cs)

	return res
}

// invoke runs a strategy. A panic or a missing strategy counts as failure.
func (o *Orchestrator) invoke(name string, r Recoverable) (ok bool) {
	if r == nil {
		metrics.RecoveryAttemptsTotal.WithLabelValues(name, "no_strategy").Inc()
		o.safeLog(slog.LevelWarn, "No recovery strategy registered", "target", name)
		return false
	}

	defer func() {
		if p := recover(); p != nil {
			metrics.RecoveryAttemptsTotal.WithLabelValues(name, "panic").Inc()
			o.safeLog(slog.LevelError, "Recovery strategy panicked", "target", name, "panic", p)
			ok = false
		}
	}()

	ok = r.AttemptRecovery()
	if ok {
		metrics.RecoveryAttemptsTotal.WithLabelValues(name, "success").Inc()
	} else {
		metrics.RecoveryAttemptsTotal.WithLabelValues(name, "failure").Inc()
	}
	return ok
}

func (o *Orchestrator) failPermanentlyLocked(cs *changeSet, c *component) {
	o.transitionLocked(cs, c, domain.ComponentPermanentlyFailed, "recovery attempts exhausted")
	if c.status.Critical {
		e := newEvent(EventEscalation, o.level, o.now())
		e.Component = c.status.Name
		e.Reason = "critical component permanently failed"
		o.emitLocked(e)
	}
}

func (o *Orchestrator) transitionLocked(cs *changeSet, c *component, to State, reason string) {
	t := Transition{
		Component: c.status.Name,
		From:      c.status.State,
		To:        to,
		Reason:    reason,
		Timestamp: o.now(),
	}
	if t.From == t.To {
		return
	}
	if !t.IsValid() {
		cs.errs = append(cs.errs,
			fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, t.Component, t.From, t.To))
		return
	}

	c.status.State = to
	c.status.Healthy = to == domain.ComponentHealthy
	if c.status.Healthy {
		metrics.ComponentHealthy.WithLabelValues(c.status.Name).Set(1)
	} else {
		metrics.ComponentHealthy.WithLabelValues(c.status.Name).Set(0)
	}

	o.emitLocked(transitionEvent(t, o.level))
	o.recomputeLocked()
}

func (o *Orchestrator) recomputeLocked() {
	next := health.Aggregate(o.statusesLocked(), o.thresholds)
	prev := o.level
	if next == prev {
		return
	}
	o.level = next
	metrics.SystemHealthLevel.Set(float64(next.Rank()))

	kind := EventHealthChanged
	switch next {
	case health.LevelEmergency:
		kind = EventEmergency
	case health.LevelCritical:
		kind = EventCritical
	}
	e := newEvent(kind, next, o.now())
	e.Previous = prev
	o.emitLocked(e)
}

// emitLocked numbers e and queues it for delivery.
func (o *Orchestrator) emitLocked(e Event) {
	o.seq++
	e.Seq = o.seq
	o.pending = append(o.pending, e)
}

// dispatch logs rejected transitions and delivers queued events. Callers must
// not hold o.mu. A single goroutine delivers at a time, so sinks see events in
// commit order; a caller that finds delivery in progress leaves its events to
// the active deliverer.
func (o *Orchestrator) dispatch(cs changeSet) {
	for _, err := range cs.errs {
		o.safeLog(slog.LevelError, "Rejected component transition", "error", err)
	}

	o.mu.Lock()
	if o.delivering {
		o.mu.Unlock()
		return
	}
	o.delivering = true
	for len(o.pending) > 0 {
		events := o.pending
		o.pending = nil
		sinks := o.sinks
		o.mu.Unlock()

		for _, e := range events {
			o.logEvent(e)
			for _, s := range sinks {
				o.notify(s, e)
			}
		}

		o.mu.Lock()
	}
	o.delivering = false
	o.mu.Unlock()
}

func (o *Orchestrator) notify(s EventSink, e Event) {
	defer func() {
		if p := recover(); p != nil {
			o.safeLog(slog.LevelError, "Event sink panicked", "kind", e.Kind, "panic", p)
		}
	}()
	s.Notify(e)
}

func (o *Orchestrator) logEvent(e Event) {
	switch e.Kind {
	case EventTransition:
		level := slog.LevelInfo
		switch e.To {
		case domain.ComponentUnhealthy:
			level = slog.LevelWarn
		case domain.ComponentPermanentlyFailed:
			level = slog.LevelError
		}
		o.safeLog(level, "Component state changed",
			"target", e.Component, "from", e.From, "to", e.To, "reason", e.Reason,
			"state", StateDescription(e.To))
	case EventHealthChanged:
		o.safeLog(slog.LevelWarn, "System health changed", "from", e.Previous, "to", e.Level)
	case EventCritical:
		o.safeLog(slog.LevelWarn, "Entering critical mode - reduced functionality",
			"from", e.Previous, "to", e.Level)
	case EventEmergency:
		o.safeLog(tracker.LevelCritical, "Entering emergency mode - minimal functionality only",
			"from", e.Previous, "to", e.Level)
	case EventEscalation:
		o.safeLog(tracker.LevelCritical, "Critical component failed", "target", e.Component)
	}
}

func (o *Orchestrator) lookup(name string) (*component, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.components[name]
	return c, ok
}

func (o *Orchestrator) statusesLocked() []domain.ComponentStatus {
	out := make([]domain.ComponentStatus, 0, len(o.order))
	for _, name := range o.order {
		out = append(out, o.components[name].status)
	}
	return out
}

func (c *component) recordError(at time.Time) {
	t := at
	c.status.LastError = &t
	c.status.ErrorCount++
}

// safeLog never lets a misbehaving handler take the orchestrator down.
func (o *Orchestrator) safeLog(level slog.Level, msg string, args ...any) {
	defer func() {
		_ = recover()
	}()
	if o.log == nil {
		return
	}
	o.log.Log(context.Background(), level, msg, args...)
}
