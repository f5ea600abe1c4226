package retry

import (
	"errors"
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

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) Sleep(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
}

func (s *sleepRecorder) Total() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total time.Duration
	for _, d := range s.delays {
		total += d
	}
	return total
}

type recordingHandler struct {
	mu      sync.Mutex
	reports []domain.FailureReport
}

func (h *recordingHandler) HandleFailure(r domain.FailureReport) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.reports = append(h.reports, r)
	return false
}

func newExecutor(t *testing.T, p policy.RetryPolicy, opts ...Option) (*Executor, *sleepRecorder, *recordingHandler) {
	t.Helper()
	table, err := policy.NewTable(map[domain.Category]policy.RetryPolicy{
		domain.CategoryFolderAccess: p,
	}, nil)
	require.NoError(t, err)

	sleeper := &sleepRecorder{}
	handler := &recordingHandler{}
	base := []Option{
		WithSleep(sleeper.Sleep),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return NewExecutor(table, handler, append(base, opts...)...), sleeper, handler
}

var errScan = errors.New("folder unavailable")

// =============================================================================
// Tests
// =============================================================================

func TestDo_RetryCountAndSleep(t *testing.T) {
	exec, sleeper, handler := newExecutor(t, policy.RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    time.Minute,
		Exponential: true,
	})

	calls := 0
	res := Do(exec, domain.CategoryFolderAccess, func() ([]string, error) {
		calls++
		return nil, errScan
	})

	assert.False(t, res.OK)
	assert.Nil(t, res.Value)
	assert.ErrorIs(t, res.Err, errScan)
	assert.Equal(t, 3, calls)
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeper.delays)
	assert.Equal(t, 3*time.Second, sleeper.Total())
	assert.Len(t, handler.reports, 1)
}

func TestDo_ExhaustionReportsToTracker(t *testing.T) {
	exec, _, handler := newExecutor(t, policy.RetryPolicy{MaxAttempts: 2, MaxDelay: time.Second})

	exec.Run(domain.CategoryFolderAccess, func() error { return errScan })

	require.Len(t, handler.reports, 1)
	r := handler.reports[0]
	assert.Equal(t, domain.CategoryFolderAccess, r.Category())
	assert.Equal(t, domain.SeverityMedium, r.Severity())
	assert.Equal(t, "operation failed after 2 attempts", r.Message())
	assert.ErrorIs(t, r.Cause(), errScan)
	attempts, ok := r.Lookup("attempts")
	assert.True(t, ok)
	assert.Equal(t, "2", attempts)
}

func TestDo_FirstSuccessWins(t *testing.T) {
	exec, sleeper, handler := newExecutor(t, policy.RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    time.Minute,
		Exponential: true,
	})

	calls := 0
	res := Do(exec, domain.CategoryFolderAccess, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errScan
		}
		return 42, nil
	})

	assert.True(t, res.OK)
	assert.Equal(t, 42, res.Value)
	assert.Equal(t, 3, res.Attempts)
	assert.NoError(t, res.Err)
	assert.Len(t, sleeper.delays, 2)
	assert.Empty(t, handler.reports)
}

func TestDo_ImmediateSuccessNoSleep(t *testing.T) {
	exec, sleeper, _ := newExecutor(t, policy.DefaultPolicy())

	res := exec.Run(domain.CategoryFolderAccess, func() error { return nil })

	assert.True(t, res.OK)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, sleeper.delays)
}

func TestDo_JitterWithinBounds(t *testing.T) {
	samples := []float64{0, 0.999999, 0.5, 0.25}
	i := 0
	exec, sleeper, _ := newExecutor(t, policy.RetryPolicy{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    time.Minute,
		Exponential: true,
		Jitter:      true,
	}, WithRandom(func() float64 {
		u := samples[i%len(samples)]
		i++
		return u
	}))

	exec.Run(domain.CategoryFolderAccess, func() error { return errScan })

	require.Len(t, sleeper.delays, 4)
	for attempt, d := range sleeper.delays {
		base := time.Second << attempt
		assert.GreaterOrEqual(t, d, time.Duration(float64(base)*0.8), "attempt %d", attempt)
		assert.LessOrEqual(t, d, time.Duration(float64(base)*1.2), "attempt %d", attempt)
	}
}

func TestDo_DefaultRandomJitterWithinBounds(t *testing.T) {
	exec, _, _ := newExecutor(t, policy.DefaultPolicy())
	p := policy.RetryPolicy{MaxAttempts: 1, BaseDelay: 10 * time.Second, MaxDelay: time.Minute, Jitter: true}

	for i := 0; i < 1000; i++ {
		d := exec.Backoff(p, 0)
		assert.GreaterOrEqual(t, d, 8*time.Second)
		assert.LessOrEqual(t, d, 12*time.Second)
	}
}

func TestDo_PanicIsFailure(t *testing.T) {
	exec, _, handler := newExecutor(t, policy.RetryPolicy{MaxAttempts: 2, MaxDelay: time.Second})

	var res Result[string]
	assert.NotPanics(t, func() {
		res = Do(exec, domain.CategoryFolderAccess, func() (string, error) {
			panic("window handle lost")
		})
	})

	assert.False(t, res.OK)
	var pe *PanicError
	assert.ErrorAs(t, res.Err, &pe)
	assert.Len(t, handler.reports, 1)
}

func TestDo_UnknownCategoryUsesDefaultPolicy(t *testing.T) {
	exec, sleeper, _ := newExecutor(t, policy.RetryPolicy{MaxAttempts: 1})

	calls := 0
	exec.Run(domain.CategoryNetwork, func() error {
		calls++
		return errScan
	})

	assert.Equal(t, policy.DefaultPolicy().MaxAttempts, calls)
	assert.Len(t, sleeper.delays, policy.DefaultPolicy().MaxAttempts-1)
}
