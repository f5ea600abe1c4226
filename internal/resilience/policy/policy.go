// Package policy holds the per-category retry policies and escalation thresholds.
package policy

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/vietddude/faultkeeper/internal/core/domain"
)

// DefaultThreshold applies to categories without an explicit threshold.
const DefaultThreshold = 5

// Jitter bounds applied to a computed delay.
const (
	JitterMin = 0.8
	JitterMax = 1.2
)

var (
	// ErrInvalidPolicy is returned when a retry policy fails validation.
	ErrInvalidPolicy = errors.New("invalid retry policy")

	// ErrInvalidThreshold is returned for a non-positive error threshold.
	ErrInvalidThreshold = errors.New("invalid error threshold")
)

// RetryPolicy configures retries for one failure category.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Exponential bool
	Jitter      bool
}

// DefaultPolicy is used for categories without an explicit entry.
func DefaultPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    60 * time.Second,
		Exponential: true,
		Jitter:      true,
	}
}

// Validate checks the policy bounds.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < 1 {
		return fmt.Errorf("%w: max_attempts must be >= 1, got %d", ErrInvalidPolicy, p.MaxAttempts)
	}
	if p.BaseDelay < 0 {
		return fmt.Errorf("%w: base_delay must be >= 0, got %v", ErrInvalidPolicy, p.BaseDelay)
	}
	if p.MaxDelay < 0 {
		return fmt.Errorf("%w: max_delay must be >= 0, got %v", ErrInvalidPolicy, p.MaxDelay)
	}
	return nil
}

// Delay returns the un-jittered wait before the retry that follows attempt (0-indexed).
// Exponential: BaseDelay * 2^attempt, clamped to MaxDelay.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := float64(p.BaseDelay)
	if p.Exponential {
		delay *= math.Pow(2, float64(attempt))
	}
	if delay > float64(p.MaxDelay) {
		return p.MaxDelay
	}
	return time.Duration(delay)
}

// ApplyJitter scales d by a factor in [JitterMin, JitterMax] chosen by u, a uniform sample in [0, 1).
func ApplyJitter(d time.Duration, u float64) time.Duration {
	u = min(max(u, 0), 1)
	factor := JitterMin + (JitterMax-JitterMin)*u
	return time.Duration(float64(d) * factor)
}

// Table maps categories to retry policies and thresholds.
// It is immutable once built and safe for concurrent reads.
type Table struct {
	policies   map[domain.Category]RetryPolicy
	thresholds map[domain.Category]int
	fallback   RetryPolicy
}

// NewTable validates and copies the given maps into a Table.
func NewTable(
	policies map[domain.Category]RetryPolicy,
	thresholds map[domain.Category]int,
) (*Table, error) {
	t := &Table{
		policies:   make(map[domain.Category]RetryPolicy, len(policies)),
		thresholds: make(map[domain.Category]int, len(thresholds)),
		fallback:   DefaultPolicy(),
	}
	for c, p := range policies {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("category %s: %w", c, err)
		}
		t.policies[c] = p
	}
	for c, n := range thresholds {
		if n < 1 {
			return nil, fmt.Errorf("%w: category %s: %d", ErrInvalidThreshold, c, n)
		}
		t.thresholds[c] = n
	}
	return t, nil
}

// DefaultPolicies returns the stock per-category retry policies.
func DefaultPolicies() map[domain.Category]RetryPolicy {
	p := func(attempts int, base time.Duration) RetryPolicy {
		return RetryPolicy{
			MaxAttempts: attempts,
			BaseDelay:   base,
			MaxDelay:    60 * time.Second,
			Exponential: true,
			Jitter:      true,
		}
	}
	return map[domain.Category]RetryPolicy{
		domain.CategoryImageLoading:  p(2, 500*time.Millisecond),
		domain.CategoryFolderAccess:  p(3, 1*time.Second),
		domain.CategoryDisplay:       p(2, 2*time.Second),
		domain.CategorySystem:        p(1, 5*time.Second),
		domain.CategoryConfiguration: p(1, 0),
		domain.CategoryNetwork:       p(3, 2*time.Second),
		domain.CategoryPermission:    p(1, 0),
	}
}

// DefaultThresholds returns the stock escalation thresholds.
// Image errors are tolerated often, system errors escalate immediately.
func DefaultThresholds() map[domain.Category]int {
	return map[domain.Category]int{
		domain.CategoryImageLoading: 10,
		domain.CategoryFolderAccess: 5,
		domain.CategoryDisplay:      3,
		domain.CategorySystem:       1,
	}
}

// DefaultTable builds the stock table.
func DefaultTable() *Table {
	t, err := NewTable(DefaultPolicies(), DefaultThresholds())
	if err != nil {
		panic(err) // static data
	}
	return t
}

// Policy returns the retry policy for c.
func (t *Table) Policy(c domain.Category) RetryPolicy {
	if p, ok := t.policies[c]; ok {
		return p
	}
	return t.fallback
}

// Threshold returns the escalation threshold for c.
func (t *Table) Threshold(c domain.Category) int {
	if n, ok := t.thresholds[c]; ok {
		return n
	}
	return DefaultThreshold
}

// Thresholds returns a copy of the explicit thresholds.
func (t *Table) Thresholds() map[domain.Category]int {
	out := make(map[domain.Category]int, len(t.thresholds))
	for c, n := range t.thresholds {
		out[c] = n
	}
	return out
}
