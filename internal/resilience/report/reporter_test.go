package report

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/faultkeeper/internal/core/domain"
	"github.com/vietddude/faultkeeper/internal/resilience/policy"
	"github.com/vietddude/faultkeeper/internal/resilience/recovery"
	"github.com/vietddude/faultkeeper/internal/resilience/tracker"
)

type routed struct {
	component string
	report    domain.FailureReport
}

type recorder struct {
	components []routed
	tracked    []domain.FailureReport
}

func (r *recorder) ReportComponentError(component string, report domain.FailureReport) bool {
	r.components = append(r.components, routed{component, report})
	return true
}

func (r *recorder) HandleFailure(report domain.FailureReport) bool {
	r.tracked = append(r.tracked, report)
	return true
}

func TestReporter_Routing(t *testing.T) {
	rec := &recorder{}
	r := New(rec, rec)
	errDecode := errors.New("unexpected EOF")

	r.ImageError("/pics/a.jpg", errDecode)
	r.FolderError("/pics/day", errDecode)
	r.DisplayError(errDecode, domain.F("monitor", "1"))
	r.SystemError("out of memory", errDecode)
	r.ConfigError("bad interval", errDecode)
	r.NetworkError("remote unreachable", errDecode)
	r.PermissionError("/pics/night", errDecode)

	require.Len(t, rec.components, 3)
	tests := []struct {
		component string
		category  domain.Category
		severity  domain.Severity
	}{
		{domain.ComponentImagePipeline, domain.CategoryImageLoading, domain.SeverityLow},
		{domain.ComponentCarousel, domain.CategoryFolderAccess, domain.SeverityMedium},
		{domain.ComponentDisplay, domain.CategoryDisplay, domain.SeverityHigh},
	}
	for i, tt := range tests {
		got := rec.components[i]
		assert.Equal(t, tt.component, got.component)
		assert.Equal(t, tt.category, got.report.Category())
		assert.Equal(t, tt.severity, got.report.Severity())
		assert.ErrorIs(t, got.report.Cause(), errDecode)
	}

	path, ok := rec.components[0].report.Lookup("image_path")
	assert.True(t, ok)
	assert.Equal(t, "/pics/a.jpg", path)
	monitor, _ := rec.components[2].report.Lookup("monitor")
	assert.Equal(t, "1", monitor)

	require.Len(t, rec.tracked, 4)
	assert.Equal(t, domain.CategorySystem, rec.tracked[0].Category())
	assert.Equal(t, domain.SeverityHigh, rec.tracked[0].Severity())
	assert.Equal(t, domain.CategoryConfiguration, rec.tracked[1].Category())
	assert.Equal(t, domain.CategoryNetwork, rec.tracked[2].Category())
	assert.Equal(t, domain.CategoryPermission, rec.tracked[3].Category())
}

func TestReporter_DisplayErrorEscalates(t *testing.T) {
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	tr := tracker.New(policy.DefaultTable(), tracker.WithLogger(discard))
	o, err := recovery.New(recovery.Config{}, tr, recovery.WithLogger(discard))
	require.NoError(t, err)
	require.NoError(t, o.RegisterStrategy(domain.ComponentDisplay,
		recovery.RecoverableFunc(func() bool { return false })))

	r := New(o, tr)

	assert.True(t, r.ImageError("/pics/a.jpg", errors.New("decode")))
	assert.False(t, r.DisplayError(errors.New("window lost")))
}
