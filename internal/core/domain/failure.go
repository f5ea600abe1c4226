package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category classifies a failure by the subsystem it originated from.
type Category string

const (
	CategoryImageLoading  Category = "image_loading"
	CategoryFolderAccess  Category = "folder_access"
	CategoryDisplay       Category = "display_error"
	CategorySystem        Category = "system_error"
	CategoryConfiguration Category = "configuration"
	CategoryNetwork       Category = "network"
	CategoryPermission    Category = "permission"
)

// Categories lists every known category in a stable order.
var Categories = []Category{
	CategoryImageLoading,
	CategoryFolderAccess,
	CategoryDisplay,
	CategorySystem,
	CategoryConfiguration,
	CategoryNetwork,
	CategoryPermission,
}

// ParseCategory resolves a category from its string form.
func ParseCategory(s string) (Category, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown failure category %q", s)
}

// Severity is the ordered urgency of a failure.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

var severityNames = map[Severity]string{
	SeverityLow:      "low",
	SeverityMedium:   "medium",
	SeverityHigh:     "high",
	SeverityCritical: "critical",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("severity(%d)", int(s))
}

// MarshalText renders the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a severity name.
func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseSeverity resolves a severity from its name.
func ParseSeverity(s string) (Severity, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for sev, name := range severityNames {
		if name == s {
			return sev, nil
		}
	}
	return 0, fmt.Errorf("unknown severity %q", s)
}

// AtLeast reports whether s is as urgent as other or more.
func (s Severity) AtLeast(other Severity) bool {
	return s >= other
}

// Field is a single diagnostic key/value attached to a report.
type Field struct {
	Key   string
	Value string
}

// F is shorthand for building a Field.
func F(key, value string) Field {
	return Field{Key: key, Value: value}
}

// FailureReport describes one failure observed by a collaborator.
// It is built once at the failure site and never mutated afterwards.
type FailureReport struct {
	id        string
	category  Category
	severity  Severity
	message   string
	cause     error
	timestamp time.Time
	context   []Field
}

// ReportOption customises a FailureReport at construction time.
type ReportOption func(*FailureReport)

// WithCause attaches the underlying error.
func WithCause(err error) ReportOption {
	return func(r *FailureReport) {
		r.cause = err
	}
}

// WithTimestamp overrides the creation time.
func WithTimestamp(t time.Time) ReportOption {
	return func(r *FailureReport) {
		r.timestamp = t
	}
}

// WithField appends one context field. Order of insertion is preserved.
func WithField(key, value string) ReportOption {
	return func(r *FailureReport) {
		r.context = append(r.context, Field{Key: key, Value: value})
	}
}

// WithFields appends several context fields.
func WithFields(fields ...Field) ReportOption {
	return func(r *FailureReport) {
		r.context = append(r.context, fields...)
	}
}

// NewFailureReport creates a report stamped with the current time.
func NewFailureReport(
	category Category,
	severity Severity,
	message string,
	opts ...ReportOption,
) FailureReport {
	r := FailureReport{
		id:       uuid.New().String(),
		category: category,
		severity: severity,
		message:  message,
	}
	for _, opt := range opts {
		opt(&r)
	}
	if r.timestamp.IsZero() {
		r.timestamp = time.Now()
	}
	return r
}

func (r FailureReport) ID() string           { return r.id }
func (r FailureReport) Category() Category   { return r.category }
func (r FailureReport) Severity() Severity   { return r.severity }
func (r FailureReport) Message() string      { return r.message }
func (r FailureReport) Cause() error         { return r.cause }
func (r FailureReport) Timestamp() time.Time { return r.timestamp }

// Context returns a copy of the diagnostic fields in insertion order.
func (r FailureReport) Context() []Field {
	out := make([]Field, len(r.context))
	copy(out, r.context)
	return out
}

// Lookup returns the first context value stored under key.
func (r FailureReport) Lookup(key string) (string, bool) {
	for _, f := range r.context {
		if f.Key == key {
			return f.Value, true
		}
	}
	return "", false
}

func (r FailureReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", r.category, r.message)
	if r.cause != nil {
		fmt.Fprintf(&b, " - %v", r.cause)
	}
	if len(r.context) > 0 {
		parts := make([]string, 0, len(r.context))
		for _, f := range r.context {
			parts = append(parts, f.Key+"="+f.Value)
		}
		fmt.Fprintf(&b, " (context: %s)", strings.Join(parts, ", "))
	}
	return b.String()
}
