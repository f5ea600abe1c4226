// Package monitor runs the periodic health sweep in the background.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/vietddude/faultkeeper/internal/resilience/recovery"
)

var (
	// ErrAlreadyRunning is returned by Start when the loop is active.
	ErrAlreadyRunning = errors.New("monitor already running")

	// ErrStopTimeout is returned by Stop when the loop did not exit in time.
	ErrStopTimeout = errors.New("monitor did not stop in time")
)

// DefaultInterval is the default time between sweeps.
const DefaultInterval = 30 * time.Second

// Sweeper is the part of the orchestrator the monitor drives.
type Sweeper interface {
	Sweep(now time.Time, p recovery.SweepPolicy) recovery.SweepResult
	MarkMonitoring(active bool)
}

// Config configures the loop.
type Config struct {
	Interval time.Duration
	Policy   recovery.SweepPolicy
}

// DefaultConfig returns a 30s interval with the default sweep policy.
func DefaultConfig() Config {
	return Config{
		Interval: DefaultInterval,
		Policy:   recovery.DefaultSweepPolicy(),
	}
}

// Monitor owns a single sweep goroutine.
type Monitor struct {
	sweeper Sweeper
	cfg     Config
	now     func() time.Time
	log     *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock overrides the time passed to each sweep.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) {
		m.log = l
	}
}

// New creates a stopped monitor.
func New(s Sweeper, cfg Config, opts ...Option) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Policy == (recovery.SweepPolicy{}) {
		cfg.Policy = recovery.DefaultSweepPolicy()
	}
	m := &Monitor{
		sweeper: s,
		cfg:     cfg,
		now:     time.Now,
		log:     slog.Default().With("component", "monitor"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the loop. It exits when ctx is cancelled or Stop is called.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.done != nil {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.done = done

	m.sweeper.MarkMonitoring(true)
	go m.run(ctx, done)

	m.log.Info("Started system health monitoring", "interval", m.cfg.Interval)
	return nil
}

// Run starts the loop and blocks until ctx is done, then joins it.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return m.Stop(5 * time.Second)
}

// Stop signals the loop and waits up to timeout for it to exit.
// Stopping a stopped monitor is a no-op.
func (m *Monitor) Stop(timeout time.Duration) error {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if done == nil {
		return nil
	}
	cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		m.log.Info("Stopped system health monitoring")
		return nil
	case <-timer.C:
		m.log.Warn("Health monitoring did not stop in time", "timeout", timeout)
		return ErrStopTimeout
	}
}

// Running reports whether the loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done != nil
}

func (m *Monitor) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer m.sweeper.MarkMonitoring(false)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

func (m *Monitor) sweep() {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("Error in monitoring worker", "panic", r)
		}
	}()

	res := m.sweeper.Sweep(m.now(), m.cfg.Policy)
	if len(res.Silent) > 0 || len(res.Decayed) > 0 {
		m.log.Debug("Health sweep finished", "silent", res.Silent, "decayed", res.Decayed)
	}
}
