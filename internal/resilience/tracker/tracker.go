// Package tracker classifies failure reports, keeps rolling per-category counts
// and decides whether the reporting operation may continue.
package tracker

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/faultkeeper/internal/core/domain"
	"github.com/vietddude/faultkeeper/internal/resilience/metrics"
	"github.com/vietddude/faultkeeper/internal/resilience/policy"
)

// DefaultWindow is the rolling window used for threshold exhaustion.
const DefaultWindow = time.Hour

// LevelCritical is the slog level used for CRITICAL reports.
const LevelCritical = slog.LevelError + 4

// Reason explains a decision.
type Reason string

const (
	ReasonLogged            Reason = "logged"
	ReasonRecoverable       Reason = "recoverable"
	ReasonDegraded          Reason = "degraded"
	ReasonFatal             Reason = "fatal"
	ReasonThresholdExceeded Reason = "threshold_exceeded"
)

// Outcome is the decision taken for one report.
type Outcome struct {
	Continue    bool
	Reason      Reason
	Category    domain.Category
	Severity    domain.Severity
	RecentCount int
	Threshold   int
}

// FailureHandler is the contract consumed by the retry executor and the orchestrator.
type FailureHandler interface {
	HandleFailure(report domain.FailureReport) bool
}

// Entry is the running count for one (category, severity) pair.
type Entry struct {
	Category domain.Category `json:"category"`
	Severity domain.Severity `json:"severity"`
	Count    int             `json:"count"`
	LastSeen time.Time       `json:"last_seen"`
}

// Key renders the entry key as category_severity.
func (e Entry) Key() string {
	return string(e.Category) + "_" + e.Severity.String()
}

type entryKey struct {
	category domain.Category
	severity domain.Severity
}

// Tracker is safe for concurrent use by any number of reporting goroutines.
type Tracker struct {
	table  *policy.Table
	window time.Duration
	now    func() time.Time
	log    *slog.Logger

	mu      sync.RWMutex
	entries map[entryKey]*Entry
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithWindow overrides the rolling window.
func WithWindow(d time.Duration) Option {
	return func(t *Tracker) {
		if d > 0 {
			t.window = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) {
		t.log = l
	}
}

// New creates a tracker backed by table.
func New(table *policy.Table, opts ...Option) *Tracker {
	if table == nil {
		table = policy.DefaultTable()
	}
	t := &Tracker{
		table:   table,
		window:  DefaultWindow,
		now:     time.Now,
		log:     slog.Default().With("component", "tracker"),
		entries: make(map[entryKey]*Entry),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Table returns the policy table the tracker enforces.
func (t *Tracker) Table() *policy.Table {
	return t.table
}

// HandleFailure records the report and returns true if the caller may continue.
func (t *Tracker) HandleFailure(report domain.FailureReport) bool {
	return t.Handle(report).Continue
}

// Handle records the report and returns the full decision.
func (t *Tracker) Handle(report domain.FailureReport) Outcome {
	t.logReport(report)

	category := report.Category()
	severity := report.Severity()
	threshold := t.table.Threshold(category)

	t.mu.Lock()
	k := entryKey{category: category, severity: severity}
	e, ok := t.entries[k]
	if !ok {
		e = &Entry{Category: category, Severity: severity}
		t.entries[k] = e
	}
	e.Count++
	e.LastSeen = report.Timestamp()
	recent := t.recentLocked(category)
	t.mu.Unlock()

	metrics.FailuresTotal.WithLabelValues(string(category), severity.String()).Inc()

	out := Outcome{
		Category:    category,
		Severity:    severity,
		RecentCount: recent,
		Threshold:   threshold,
	}

	if recent >= threshold {
		out.Reason = ReasonThresholdExceeded
		t.safeLog(LevelCritical, "Error threshold exceeded",
			"category", category, "recent", recent, "threshold", threshold)
	} else {
		switch severity {
		case domain.SeverityCritical:
			out.Reason = ReasonFatal
		case domain.SeverityHigh:
			out.Continue = true
			out.Reason = ReasonDegraded
			if category == domain.CategoryDisplay {
				t.safeLog(slog.LevelWarn, "Continuing with degraded rendering", "category", category)
			}
		case domain.SeverityMedium:
			out.Continue = true
			out.Reason = ReasonRecoverable
		default:
			out.Continue = true
			out.Reason = ReasonLogged
		}
	}

	metrics.DecisionsTotal.WithLabelValues(string(category), string(out.Reason)).Inc()
	return out
}

// RecentCount returns the number of failures of category inside the window.
func (t *Tracker) RecentCount(category domain.Category) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.recentLocked(category)
}

func (t *Tracker) recentLocked(category domain.Category) int {
	cutoff := t.now().Add(-t.window)
	total := 0
	for k, e := range t.entries {
		if k.category == category && e.LastSeen.After(cutoff) {
			total += e.Count
		}
	}
	return total
}

// Exhausted reports whether category currently exceeds its threshold.
func (t *Tracker) Exhausted(category domain.Category) bool {
	return t.RecentCount(category) >= t.table.Threshold(category)
}

// Reset clears every entry of category.
func (t *Tracker) Reset(category domain.Category) {
	t.mu.Lock()
	for k := range t.entries {
		if k.category == category {
			delete(t.entries, k)
		}
	}
	t.mu.Unlock()
	t.safeLog(slog.LevelInfo, "Reset error counts", "category", category)
}

// ResetAll clears all entries.
func (t *Tracker) ResetAll() {
	t.mu.Lock()
	t.entries = make(map[entryKey]*Entry)
	t.mu.Unlock()
	t.safeLog(slog.LevelInfo, "Reset error counts", "category", "all")
}

// Statistics is a read-only view of the tracking table.
type Statistics struct {
	Entries    []Entry                 `json:"entries"`
	Counts     map[string]int          `json:"error_counts"`
	LastErrors map[string]time.Time    `json:"last_errors"`
	Thresholds map[domain.Category]int `json:"thresholds"`
	Window     time.Duration           `json:"window"`
}

// Statistics returns a snapshot of all entries, ordered by category then severity.
func (t *Tracker) Statistics() Statistics {
	t.mu.RLock()
	entries := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		entries = append(entries, *e)
	}
	t.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Category != entries[j].Category {
			return entries[i].Category < entries[j].Category
		}
		return entries[i].Severity < entries[j].Severity
	})

	stats := Statistics{
		Entries:    entries,
		Counts:     make(map[string]int, len(entries)),
		LastErrors: make(map[string]time.Time, len(entries)),
		Thresholds: t.table.Thresholds(),
		Window:     t.window,
	}
	for _, e := range entries {
		stats.Counts[e.Key()] = e.Count
		stats.LastErrors[e.Key()] = e.LastSeen
	}
	return stats
}

func (t *Tracker) logReport(r domain.FailureReport) {
	level := slog.LevelInfo
	switch r.Severity() {
	case domain.SeverityCritical:
		level = LevelCritical
	case domain.SeverityHigh:
		level = slog.LevelError
	case domain.SeverityMedium:
		level = slog.LevelWarn
	}

	args := []any{
		"category", r.Category(),
		"severity", r.Severity(),
		"report_id", r.ID(),
	}
	if r.Cause() != nil {
		args = append(args, "error", r.Cause())
	}
	if fields := r.Context(); len(fields) > 0 {
		attrs := make([]any, 0, len(fields))
		for _, f := range fields {
			attrs = append(attrs, slog.String(f.Key, f.Value))
		}
		args = append(args, slog.Group("context", attrs...))
	}
	t.safeLog(level, r.Message(), args...)
}

// safeLog never lets a misbehaving handler take the tracker down.
func (t *Tracker) safeLog(level slog.Level, msg string, args ...any) {
	defer func() {
		_ = recover()
	}()
	if t.log == nil {
		return
	}
	t.log.Log(context.Background(), level, msg, args...)
}
