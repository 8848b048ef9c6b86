package tracing

import (
	"context"
	"errors"
	"testing"
)

func TestStartPhaseProducesExtractableIDs(t *testing.T) {
	tr, err := NewTracer("vle-test", "test")
	if err != nil {
		t.Fatal(err)
	}
	ctx, span := tr.StartPhase(context.Background(), "step", "/gen")
	traceID, spanID := ExtractIDs(ctx)
	if traceID == "" || spanID == "" {
		t.Fatalf("expected non-empty trace/span IDs, got %q %q", traceID, spanID)
	}
	FinishPhase(span, true)
}

func TestExtractIDsOnBareContextIsEmpty(t *testing.T) {
	traceID, spanID := ExtractIDs(context.Background())
	if traceID != "" || spanID != "" {
		t.Fatalf("expected empty IDs on a bare context, got %q %q", traceID, spanID)
	}
}

func TestRecordErrorDoesNotPanicOnBareContext(t *testing.T) {
	RecordError(context.Background(), "step", "/gen", errors.New("boom"))
}
