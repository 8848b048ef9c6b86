package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/nsm120/vle/kernelerr"
	"github.com/nsm120/vle/telemetry/tracing"
)

func TestCorrelatedLoggerAddsTraceSpan(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, &slog.HandlerOptions{AddSource: false})
	base := slog.New(handler)
	log := New(base)

	tr, err := tracing.NewTracer("vle-test", "test")
	if err != nil {
		t.Fatal(err)
	}
	ctx, span := tr.StartPhase(context.Background(), "op", "/gen")
	defer span.End()
	log.InfoCtx(ctx, "hello", "k", "v")
	out := buf.String()
	if !strings.Contains(out, "trace_id=") || !strings.Contains(out, "span_id=") {
		t.Fatalf("expected trace/span in log: %s", out)
	}
}

func TestCorrelatedLoggerNoSpan(t *testing.T) {
	var buf bytes.Buffer
	handler := slog.NewTextHandler(&buf, nil)
	log := New(slog.New(handler))
	log.InfoCtx(context.Background(), "plain")
	if strings.Contains(buf.String(), "trace_id=") {
		t.Fatalf("unexpected trace id present")
	}
}

func TestLogKernelErrorExtractsStructuredFields(t *testing.T) {
	var buf bytes.Buffer
	log := New(slog.New(slog.NewTextHandler(&buf, nil)))
	err := kernelerr.NewRuntimeError("root.decay", "transition", 1.5, errors.New("negative sigma"))

	log.LogKernelError(context.Background(), err)

	out := buf.String()
	for _, want := range []string{"kind=RuntimeError", "model=root.decay", "phase=transition", "t=1.5", "error=\"negative sigma\""} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected log line to contain %q, got: %s", want, out)
		}
	}
}

func TestLogKernelErrorFallsBackForPlainErrors(t *testing.T) {
	var buf bytes.Buffer
	log := New(slog.New(slog.NewTextHandler(&buf, nil)))

	log.LogKernelError(context.Background(), errors.New("plain failure"))

	out := buf.String()
	if !strings.Contains(out, "error=\"plain failure\"") {
		t.Fatalf("expected plain error message to be logged, got: %s", out)
	}
	if strings.Contains(out, "phase=") {
		t.Fatalf("did not expect a phase field for a non-kernel error, got: %s", out)
	}
}
