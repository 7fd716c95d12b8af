package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
)

// ErrorContext carries the fields worth attaching to a reported failure.
type ErrorContext struct {
	Codebase   string
	Operation  string
	Trigger    Trigger
	ErrorKind  string
	Duration   time.Duration
	Extra      map[string]any
}

// ErrorReporter optionally forwards terminal workflow failures to Sentry.
// Disabled unless a DSN is configured; every call is also logged
// regardless of DSN state.
type ErrorReporter struct {
	logger  *slog.Logger
	enabled bool
}

// NewErrorReporter initializes the Sentry SDK when dsn is non-empty. A
// failure to initialize disables reporting but never errors the caller.
func NewErrorReporter(dsn, environment string, logger *slog.Logger) *ErrorReporter {
	if logger == nil {
		logger = slog.Default()
	}
	if dsn == "" {
		return &ErrorReporter{logger: logger, enabled: false}
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		TracesSampleRate: 0,
	})
	if err != nil {
		logger.Warn("observability: sentry init failed, error reporting disabled", "error", err)
		return &ErrorReporter{logger: logger, enabled: false}
	}
	return &ErrorReporter{logger: logger, enabled: true}
}

// ReportTerminalFailure reports a workflow that exhausted its retries with an
// IntegrityError or a TransientStoreError. It always logs; it captures to
// Sentry only when enabled.
func (r *ErrorReporter) ReportTerminalFailure(_ context.Context, errCtx ErrorContext, cause error) {
	r.logger.Error("sync workflow failed terminally",
		"codebase", errCtx.Codebase,
		"operation", errCtx.Operation,
		"trigger", errCtx.Trigger,
		"error_kind", errCtx.ErrorKind,
		"duration", errCtx.Duration,
		"error", cause,
	)
	if !r.enabled {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("codebase", errCtx.Codebase)
		scope.SetTag("operation", errCtx.Operation)
		scope.SetTag("trigger", string(errCtx.Trigger))
		scope.SetTag("error_kind", errCtx.ErrorKind)
		for k, v := range errCtx.Extra {
			scope.SetExtra(k, v)
		}
		sentry.CaptureException(cause)
	})
}

// Flush blocks up to timeout waiting for queued events to send, for use at
// process shutdown.
func (r *ErrorReporter) Flush(timeout time.Duration) bool {
	if !r.enabled {
		return true
	}
	return sentry.Flush(timeout)
}
