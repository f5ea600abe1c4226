// Package retry runs fallible synchronous operations under the per-category retry policy.
package retry

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/vietddude/faultkeeper/internal/core/domain"
	"github.com/vietddude/faultkeeper/internal/resilience/metrics"
	"github.com/vietddude/faultkeeper/internal/resilience/policy"
	"github.com/vietddude/faultkeeper/internal/resilience/tracker"
)

// Result is the outcome of a retried operation.
type Result[T any] struct {
	OK       bool
	Value    T
	Attempts int
	Err      error
}

// PanicError wraps a value recovered from a panicking operation.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("operation panicked: %v", e.Value)
}

// Executor drives bounded retries. Backoff blocks only the calling goroutine.
type Executor struct {
	table   *policy.Table
	handler tracker.FailureHandler
	sleep   func(time.Duration)
	random  func() float64
	log     *slog.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithSleep overrides how the executor waits between attempts.
func WithSleep(fn func(time.Duration)) Option {
	return func(e *Executor) {
		e.sleep = fn
	}
}

// WithRandom overrides the jitter source. fn must return values in [0, 1).
func WithRandom(fn func() float64) Option {
	return func(e *Executor) {
		e.random = fn
	}
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		e.log = l
	}
}

// NewExecutor creates an executor. Exhausted operations are reported to handler.
func NewExecutor(table *policy.Table, handler tracker.FailureHandler, opts ...Option) *Executor {
	if table == nil {
		table = policy.DefaultTable()
	}
	e := &Executor{
		table:   table,
		handler: handler,
		sleep:   time.Sleep,
		random:  rand.Float64,
		log:     slog.Default().With("component", "retry"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Do invokes op until it succeeds or the category's policy is exhausted.
// The first success wins. Do never panics.
func Do[T any](e *Executor, category domain.Category, op func() (T, error)) Result[T] {
	p := e.table.Policy(category)

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		value, err := call(op)
		if err == nil {
			metrics.RetryAttemptsTotal.WithLabelValues(string(category), "success").Inc()
			if attempt > 0 {
				e.log.Info("Operation succeeded after retry",
					"category", category, "attempt", attempt+1)
			}
			return Result[T]{OK: true, Value: value, Attempts: attempt + 1}
		}
		metrics.RetryAttemptsTotal.WithLabelValues(string(category), "failure").Inc()
		lastErr = err

		if attempt == p.MaxAttempts-1 {
			break
		}

		delay := e.Backoff(p, attempt)
		metrics.RetryBackoffSeconds.WithLabelValues(string(category)).Observe(delay.Seconds())
		e.log.Warn("Operation failed, retrying",
			"category", category,
			"attempt", attempt+1,
			"max_attempts", p.MaxAttempts,
			"delay", delay,
			"error", err,
		)
		e.sleep(delay)
	}

	metrics.RetryExhaustedTotal.WithLabelValues(string(category)).Inc()
	if e.handler != nil {
		report := domain.NewFailureReport(
			category,
			domain.SeverityMedium,
			fmt.Sprintf("operation failed after %d attempts", p.MaxAttempts),
			domain.WithCause(lastErr),
			domain.WithField("attempts", strconv.Itoa(p.MaxAttempts)),
		)
		// tracking only, the decision is not used here
		_ = e.handler.HandleFailure(report)
	}

	return Result[T]{Attempts: p.MaxAttempts, Err: lastErr}
}

// Run is Do for operations without a result value.
func (e *Executor) Run(category domain.Category, op func() error) Result[struct{}] {
	return Do(e, category, func() (struct{}, error) {
		return struct{}{}, op()
	})
}

// Backoff returns the delay to wait after the given failed attempt, jitter included.
func (e *Executor) Backoff(p policy.RetryPolicy, attempt int) time.Duration {
	delay := p.Delay(attempt)
	if p.Jitter {
		delay = policy.ApplyJitter(delay, e.random())
	}
	return delay
}

func call[T any](op func() (T, error)) (value T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r}
		}
	}()
	return op()
}
