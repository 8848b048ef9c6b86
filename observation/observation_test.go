package observation

import (
	"bytes"
	"strings"
	"testing"

	"github.com/nsm120/vle/value"
)

func TestTimedViewAdvancesByTimestep(t *testing.T) {
	v := NewTimedView("v1", value.Time(0), value.Time(1), NewMemoryStream())
	if v.NextSampleTime() != value.Time(0) {
		t.Fatalf("expected first sample at t=0")
	}
	v.Advance()
	if v.NextSampleTime() != value.Time(1) {
		t.Fatalf("expected next sample at t=1, got %v", v.NextSampleTime())
	}
}

func TestEventViewNeverAutoSamples(t *testing.T) {
	v := NewEventView("v2", NewMemoryStream())
	if v.NextSampleTime() != value.PositiveInfinity {
		t.Fatalf("event view should never auto-sample")
	}
}

func TestMemoryStreamRecordsRows(t *testing.T) {
	s := NewMemoryStream()
	_ = s.Open("v1", value.Time(0))
	_ = s.Write(value.Time(0), "gen", "p", value.Int(42))
	_ = s.Write(value.Time(1), "gen", "p", value.Int(42))
	_ = s.Close(value.Time(3))
	if len(s.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(s.Rows))
	}
	if err := s.Write(value.Time(2), "gen", "p", value.Int(1)); err == nil {
		t.Fatalf("expected error writing after close")
	}
	// Close must be idempotent.
	if err := s.Close(value.Time(3)); err != nil {
		t.Fatalf("second close should be a no-op, got %v", err)
	}
}

func TestCompositeStreamFansOutAndKeepsWritingOnError(t *testing.T) {
	failing := NewMemoryStream()
	_ = failing.Close(value.Time(0))
	ok1 := NewMemoryStream()
	ok2 := NewMemoryStream()
	composite := NewCompositeStream(failing, ok1, ok2)
	_ = composite.Open("v", value.Time(0))
	if err := composite.Write(value.Time(0), "m", "p", value.Int(1)); err == nil {
		t.Fatal("expected the closed stream's write error")
	}
	if len(ok1.Rows) != 1 || len(ok2.Rows) != 1 {
		t.Fatalf("expected both streams to receive the write")
	}
}

func TestCSVStreamWritesHeaderAndRows(t *testing.T) {
	var buf bytes.Buffer
	s := NewCSVStream(&buf, nil)
	if err := s.Open("v1", value.Time(0)); err != nil {
		t.Fatal(err)
	}
	if err := s.Write(value.Time(1), "gen", "p", value.Double(3.5)); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(value.Time(2)); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "time,model,port,value") {
		t.Fatalf("expected CSV header, got %q", out)
	}
	if !strings.Contains(out, "gen,p,3.5") {
		t.Fatalf("expected data row, got %q", out)
	}
}
