// Package report offers one-call helpers for the failures collaborators
// report most often.
package report

import (
	"github.com/vietddude/faultkeeper/internal/core/domain"
	"github.com/vietddude/faultkeeper/internal/resilience/tracker"
)

// ComponentReporter routes component-scoped failures through recovery.
type ComponentReporter interface {
	ReportComponentError(component string, report domain.FailureReport) bool
}

// Reporter builds reports with the standard category, severity and component.
type Reporter struct {
	components ComponentReporter
	handler    tracker.FailureHandler
}

// New creates a reporter. Component failures go to components, the rest to handler.
func New(components ComponentReporter, handler tracker.FailureHandler) *Reporter {
	return &Reporter{
		components: components,
		handler:    handler,
	}
}

// ImageError reports an image that could not be loaded. It returns false when
// the caller should show an error screen instead of skipping the image.
func (r *Reporter) ImageError(path string, err error) bool {
	return r.components.ReportComponentError(domain.ComponentImagePipeline, domain.NewFailureReport(
		domain.CategoryImageLoading,
		domain.SeverityLow,
		"failed to load image: "+path,
		domain.WithCause(err),
		domain.WithField("image_path", path),
	))
}

// FolderError reports an unreadable image folder.
func (r *Reporter) FolderError(path string, err error) bool {
	return r.components.ReportComponentError(domain.ComponentCarousel, domain.NewFailureReport(
		domain.CategoryFolderAccess,
		domain.SeverityMedium,
		"failed to access folder: "+path,
		domain.WithCause(err),
		domain.WithField("folder_path", path),
	))
}

// DisplayError reports a display system failure. The display is recovered
// or, once exhausted, escalated.
func (r *Reporter) DisplayError(err error, fields ...domain.Field) bool {
	return r.components.ReportComponentError(domain.ComponentDisplay, domain.NewFailureReport(
		domain.CategoryDisplay,
		domain.SeverityHigh,
		"display system error",
		domain.WithCause(err),
		domain.WithFields(fields...),
	))
}

// SystemError reports a general system failure.
func (r *Reporter) SystemError(message string, err error, fields ...domain.Field) bool {
	return r.handler.HandleFailure(domain.NewFailureReport(
		domain.CategorySystem,
		domain.SeverityHigh,
		message,
		domain.WithCause(err),
		domain.WithFields(fields...),
	))
}

// ConfigError reports an invalid or unreadable configuration value.
func (r *Reporter) ConfigError(message string, err error, fields ...domain.Field) bool {
	return r.handler.HandleFailure(domain.NewFailureReport(
		domain.CategoryConfiguration,
		domain.SeverityMedium,
		message,
		domain.WithCause(err),
		domain.WithFields(fields...),
	))
}

// NetworkError reports a failed remote call.
func (r *Reporter) NetworkError(message string, err error, fields ...domain.Field) bool {
	return r.handler.HandleFailure(domain.NewFailureReport(
		domain.CategoryNetwork,
		domain.SeverityMedium,
		message,
		domain.WithCause(err),
		domain.WithFields(fields...),
	))
}

// PermissionError reports a denied filesystem or device access.
func (r *Reporter) PermissionError(path string, err error) bool {
	return r.handler.HandleFailure(domain.NewFailureReport(
		domain.CategoryPermission,
		domain.SeverityHigh,
		"permission denied: "+path,
		domain.WithCause(err),
		domain.WithField("path", path),
	))
}
