package tracker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/faultkeeper/internal/core/domain"
	"github.com/vietddude/faultkeeper/internal/resilience/policy"
)

// =============================================================================
// Helpers
// =============================================================================

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestTracker(clock *fakeClock) *Tracker {
	return New(
		policy.DefaultTable(),
		WithClock(clock.Now),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
}

func report(c domain.Category, s domain.Severity, at time.Time) domain.FailureReport {
	return domain.NewFailureReport(c, s, "test failure", domain.WithTimestamp(at))
}

// panicHandler simulates a broken log sink.
type panicHandler struct{}

func (panicHandler) Enabled(context.Context, slog.Level) bool  { return true }
func (panicHandler) Handle(context.Context, slog.Record) error { panic("log sink down") }
func (h panicHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h panicHandler) WithGroup(string) slog.Handler           { return h }

// =============================================================================
// Tests
// =============================================================================

func TestHandle_SeverityDispatch(t *testing.T) {
	clock := &fakeClock{now: time.Now()}

	tests := []struct {
		severity domain.Severity
		cont     bool
		reason   Reason
	}{
		{domain.SeverityLow, true, ReasonLogged},
		{domain.SeverityMedium, true, ReasonRecoverable},
		{domain.SeverityHigh, true, ReasonDegraded},
		{domain.SeverityCritical, false, ReasonFatal},
	}

	for _, tt := range tests {
		t.Run(tt.severity.String(), func(t *testing.T) {
			tr := newTestTracker(clock)
			out := tr.Handle(report(domain.CategoryImageLoading, tt.severity, clock.Now()))
			assert.Equal(t, tt.cont, out.Continue)
			assert.Equal(t, tt.reason, out.Reason)
		})
	}
}

func TestHandle_DisplayHighContinuesDegraded(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	tr := newTestTracker(clock)

	out := tr.Handle(report(domain.CategoryDisplay, domain.SeverityHigh, clock.Now()))
	assert.True(t, out.Continue)
	assert.Equal(t, ReasonDegraded, out.Reason)
}

func TestHandle_ThresholdExhaustion(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	tr := newTestTracker(clock)
	require.Equal(t, 5, tr.Table().Threshold(domain.CategoryFolderAccess))

	for i := 1; i <= 4; i++ {
		ok := tr.HandleFailure(report(domain.CategoryFolderAccess, domain.SeverityMedium, clock.Now()))
		assert.True(t, ok, "call %d should continue", i)
	}

	out := tr.Handle(report(domain.CategoryFolderAccess, domain.SeverityMedium, clock.Now()))
	assert.False(t, out.Continue, "5th call should stop")
	assert.Equal(t, ReasonThresholdExceeded, out.Reason)
	assert.Equal(t, 5, out.RecentCount)
}

func TestHandle_ThresholdSumsAcrossSeverities(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	tr := newTestTracker(clock)

	// display threshold is 3
	assert.True(t, tr.HandleFailure(report(domain.CategoryDisplay, domain.SeverityLow, clock.Now())))
	assert.True(t, tr.HandleFailure(report(domain.CategoryDisplay, domain.SeverityMedium, clock.Now())))
	assert.False(t, tr.HandleFailure(report(domain.CategoryDisplay, domain.SeverityLow, clock.Now())))

	// other categories are unaffected
	assert.True(t, tr.HandleFailure(report(domain.CategoryImageLoading, domain.SeverityLow, clock.Now())))
}

func TestHandle_SystemEscalatesImmediately(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	tr := newTestTracker(clock)

	out := tr.Handle(report(domain.CategorySystem, domain.SeverityLow, clock.Now()))
	assert.False(t, out.Continue)
	assert.Equal(t, ReasonThresholdExceeded, out.Reason)
}

func TestHandle_WindowAgesOut(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	tr := newTestTracker(clock)

	for i := 0; i < 3; i++ {
		tr.HandleFailure(report(domain.CategoryDisplay, domain.SeverityLow, clock.Now()))
	}
	assert.True(t, tr.Exhausted(domain.CategoryDisplay))

	clock.Advance(61 * time.Minute)
	assert.False(t, tr.Exhausted(domain.CategoryDisplay))
	assert.Equal(t, 0, tr.RecentCount(domain.CategoryDisplay))

	// counts are never lowered by ageing, only excluded from the window
	stats := tr.Statistics()
	assert.Equal(t, 3, stats.Counts["display_error_low"])
}

func TestReset(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	tr := newTestTracker(clock)

	for i := 0; i < 3; i++ {
		tr.HandleFailure(report(domain.CategoryDisplay, domain.SeverityLow, clock.Now()))
		tr.HandleFailure(report(domain.CategoryNetwork, domain.SeverityLow, clock.Now()))
	}

	tr.Reset(domain.CategoryDisplay)
	assert.Equal(t, 0, tr.RecentCount(domain.CategoryDisplay))
	assert.Equal(t, 3, tr.RecentCount(domain.CategoryNetwork))
	assert.True(t, tr.HandleFailure(report(domain.CategoryDisplay, domain.SeverityLow, clock.Now())))

	tr.ResetAll()
	assert.Empty(t, tr.Statistics().Entries)
}

func TestStatistics(t *testing.T) {
	clock := &fakeClock{now: time.Now()}
	tr := newTestTracker(clock)

	at := clock.Now().Add(-time.Minute)
	tr.HandleFailure(report(domain.CategoryNetwork, domain.SeverityHigh, at))
	tr.HandleFailure(report(domain.CategoryNetwork, domain.SeverityLow, at))
	tr.HandleFailure(report(domain.CategoryNetwork, domain.SeverityLow, clock.Now()))

	stats := tr.Statistics()
	require.Len(t, stats.Entries, 2)
	assert.Equal(t, domain.SeverityLow, stats.Entries[0].Severity)
	assert.Equal(t, 2, stats.Counts["network_low"])
	assert.Equal(t, 1, stats.Counts["network_high"])
	assert.Equal(t, clock.Now(), stats.LastErrors["network_low"])
	assert.Equal(t, 10, stats.Thresholds[domain.CategoryImageLoading])
	assert.Equal(t, DefaultWindow, stats.Window)
}

func TestHandle_LoggingFailureIsSwallowed(t *testing.T) {
	tr := New(policy.DefaultTable(), WithLogger(slog.New(panicHandler{})))

	assert.NotPanics(t, func() {
		ok := tr.HandleFailure(domain.NewFailureReport(
			domain.CategoryNetwork,
			domain.SeverityMedium,
			"timeout",
			domain.WithCause(fmt.Errorf("dial tcp: i/o timeout")),
			domain.WithField("host", "example.org"),
		))
		assert.True(t, ok)
	})
}

func TestHandle_Concurrent(t *testing.T) {
	table, err := policy.NewTable(nil, map[domain.Category]int{domain.CategoryImageLoading: 1_000_000})
	require.NoError(t, err)
	tr := New(table, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))

	const workers, perWorker = 16, 200
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				tr.HandleFailure(domain.NewFailureReport(domain.CategoryImageLoading, domain.SeverityLow, "decode"))
				_ = tr.Statistics()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, workers*perWorker, tr.RecentCount(domain.CategoryImageLoading))
}
