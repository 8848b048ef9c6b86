package logging

import (
	"context"
	"log/slog"

	"github.com/nsm120/vle/kernelerr"
	"github.com/nsm120/vle/telemetry/tracing"
)

// Logger is a minimal interface wrapper allowing correlation injection.
type Logger interface {
	InfoCtx(ctx context.Context, msg string, attrs ...any)
	ErrorCtx(ctx context.Context, msg string, attrs ...any)

	// LogKernelError logs a failed phase with the fields an operator needs
	// to locate it in the model tree: which AtomicModel, which Coordinator
	// phase, and at what simulation time, pulled straight from err's
	// *kernelerr.KernelError if it is one (any other error is logged with
	// only its message).
	LogKernelError(ctx context.Context, err error)
}

type correlatedLogger struct{ base *slog.Logger }

// New returns a correlated Logger wrapper.
func New(base *slog.Logger) Logger {
	if base == nil {
		base = slog.Default()
	}
	return &correlatedLogger{base: base}
}

func (l *correlatedLogger) InfoCtx(ctx context.Context, msg string, attrs ...any) {
	traceID, spanID := tracing.ExtractIDs(ctx)
	if traceID != "" || spanID != "" {
		attrs = append(attrs, slog.String("trace_id", traceID), slog.String("span_id", spanID))
	}
	l.base.InfoContext(ctx, msg, attrs...)
}

func (l *correlatedLogger) ErrorCtx(ctx context.Context, msg string, attrs ...any) {
	traceID, spanID := tracing.ExtractIDs(ctx)
	if traceID != "" || spanID != "" {
		attrs = append(attrs, slog.String("trace_id", traceID), slog.String("span_id", spanID))
	}
	l.base.ErrorContext(ctx, msg, attrs...)
}

func (l *correlatedLogger) LogKernelError(ctx context.Context, err error) {
	var ke *kernelerr.KernelError
	if !kernelerr.As(err, &ke) {
		l.ErrorCtx(ctx, "kernel error", slog.String("error", err.Error()))
		return
	}
	l.ErrorCtx(ctx, "kernel error",
		slog.String("kind", ke.Kind.String()),
		slog.String("model", ke.ModelPath),
		slog.String("phase", ke.Phase),
		slog.Float64("t", ke.Time),
		slog.String("error", ke.Unwrap().Error()),
	)
}
