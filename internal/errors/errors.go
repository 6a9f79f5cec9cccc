// Package errors provides the enhanced error type used across the service.
// Errors carry a component and category so logs and telemetry can be
// aggregated by failure domain, while staying fully compatible with the
// standard library errors package.
package errors

import (
	stderrors "errors"
	"fmt"
	"sync/atomic"

	"github.com/getsentry/sentry-go"
)

// Category classifies the failure domain of an error.
type Category string

const (
	CategoryDatabase   Category = "database"
	CategoryNetwork    Category = "network"
	CategoryValidation Category = "validation"
	CategoryConfig     Category = "configuration"
	CategoryCache      Category = "cache"
	CategoryGeneric    Category = "generic"
)

// telemetryEnabled gates Sentry capture. Off unless Init was called with a DSN.
var telemetryEnabled atomic.Bool

// Init configures Sentry error telemetry. An empty DSN leaves telemetry off.
func Init(dsn, release string) error {
	if dsn == "" {
		return nil
	}
	if err := sentry.Init(sentry.ClientOptions{Dsn: dsn, Release: release}); err != nil {
		return fmt.Errorf("failed to initialize error telemetry: %w", err)
	}
	telemetryEnabled.Store(true)
	return nil
}

// Error wraps an underlying error with component and category context.
type Error struct {
	Err       error
	component string
	category  Category
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "unknown error"
	}
	return e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// GetComponent returns the component tag, or empty if unset.
func (e *Error) GetComponent() string { return e.component }

// GetCategory returns the category tag.
func (e *Error) GetCategory() Category { return e.category }

// Builder assembles an Error fluently.
type Builder struct {
	err *Error
}

// New starts building an enhanced error around err.
func New(err error) *Builder {
	return &Builder{err: &Error{Err: err, category: CategoryGeneric}}
}

// Newf starts building an enhanced error from a format string.
func Newf(format string, args ...any) *Builder {
	return New(fmt.Errorf(format, args...))
}

// Component tags the error with the subsystem it originated in.
func (b *Builder) Component(name string) *Builder {
	b.err.component = name
	return b
}

// Category tags the error with its failure domain.
func (b *Builder) Category(c Category) *Builder {
	b.err.category = c
	return b
}

// Build finalizes the error and reports it to telemetry when enabled.
func (b *Builder) Build() *Error {
	if telemetryEnabled.Load() {
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("component", b.err.component)
			scope.SetTag("category", string(b.err.category))
			sentry.CaptureException(b.err.Err)
		})
	}
	return b.err
}

// Standard library pass-throughs so callers import a single errors package.

func Is(err, target error) bool { return stderrors.Is(err, target) }

func As(err error, target any) bool { return stderrors.As(err, target) }

func Unwrap(err error) error { return stderrors.Unwrap(err) }

// NewStd returns a plain sentinel error, for package-level error values.
func NewStd(text string) error { return stderrors.New(text) }
