// Package observation implements Views & Observation (C9): timed and
// event-driven views sampling (model,port) pairs into stream plugins.
// Stream is the plugin contract from spec.md §4.7; CompositeStream fans a
// view out to N streams, grounded on output/composite_sink.go's
// CompositeSink (first-error-but-keep-writing semantics, streams replacing
// sinks).
package observation

import (
	"fmt"
	"sync"

	"github.com/nsm120/vle/value"
)

// Stream is the output plugin contract. Close must be idempotent.
type Stream interface {
	Open(viewName string, startTime value.Time) error
	Write(t value.Time, model, port string, v value.Value) error
	Close(endTime value.Time) error
}

// Kind distinguishes a timed view (sampled every Timestep) from an event
// view (sampled only when a Dynamics explicitly requests it).
type Kind int

const (
	KindTimed Kind = iota
	KindEvent
)

// ObservedPort names one (model,port) pair a View samples.
type ObservedPort struct {
	Model string
	Port  string
}

// View is a named subscription producing time-indexed observations
// (spec.md §3).
type View struct {
	Name         string
	Kind         Kind
	Timestep     value.Time // meaningful only for KindTimed
	Stream       Stream
	Observed     []ObservedPort
	nextSample   value.Time
}

// NewTimedView constructs a timed view with its first sample at begin.
func NewTimedView(name string, begin, timestep value.Time, stream Stream, observed ...ObservedPort) *View {
	return &View{Name: name, Kind: KindTimed, Timestep: timestep, Stream: stream, Observed: observed, nextSample: begin}
}

// NewEventView constructs an event-driven view with no automatic cadence.
func NewEventView(name string, stream Stream, observed ...ObservedPort) *View {
	return &View{Name: name, Kind: KindEvent, Stream: stream, Observed: observed, nextSample: value.PositiveInfinity}
}

// NextSampleTime returns the next time this view should be sampled by the
// Coordinator's observation phase (KindEvent views return PositiveInfinity,
// since they are never driven by cadence).
func (v *View) NextSampleTime() value.Time { return v.nextSample }

// Advance moves a timed view's next sample time forward by one Timestep.
func (v *View) Advance() {
	if v.Kind == KindTimed {
		v.nextSample = v.nextSample.Add(v.Timestep)
	}
}

// Open opens the view's underlying stream.
func (v *View) Open(startTime value.Time) error { return v.Stream.Open(v.Name, startTime) }

// Close closes the view's underlying stream.
func (v *View) Close(endTime value.Time) error { return v.Stream.Close(endTime) }

// CompositeStream fans a view out to N streams. Write and Close return the
// first error encountered but keep writing to / closing every stream,
// mirroring output/composite_sink.go's CompositeSink semantics.
type CompositeStream struct {
	mu      sync.RWMutex
	streams []Stream
}

// NewCompositeStream constructs a CompositeStream fanning out to streams.
func NewCompositeStream(streams ...Stream) *CompositeStream {
	return &CompositeStream{streams: streams}
}

func (c *CompositeStream) Open(viewName string, startTime value.Time) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var firstErr error
	for _, s := range c.streams {
		if err := s.Open(viewName, startTime); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *CompositeStream) Write(t value.Time, model, port string, v value.Value) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var firstErr error
	for _, s := range c.streams {
		if err := s.Write(t, model, port, v); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *CompositeStream) Close(endTime value.Time) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var firstErr error
	for _, s := range c.streams {
		if err := s.Close(endTime); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// MemoryStream accumulates observations in-memory for programmatic
// post-mortem access: the in-scope replacement for the out-of-scope
// "storage" output plugin.
type MemoryStream struct {
	mu     sync.Mutex
	Rows   []MemoryRow
	closed bool
}

// MemoryRow is one recorded observation.
type MemoryRow struct {
	Time  value.Time
	Model string
	Port  string
	Value value.Value
}

func NewMemoryStream() *MemoryStream { return &MemoryStream{} }

func (m *MemoryStream) Open(viewName string, startTime value.Time) error { return nil }

func (m *MemoryStream) Write(t value.Time, model, port string, v value.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("observation: write after close")
	}
	m.Rows = append(m.Rows, MemoryRow{Time: t, Model: model, Port: port, Value: v.Clone()})
	return nil
}

func (m *MemoryStream) Close(endTime value.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true // idempotent: re-closing just re-asserts closed
	return nil
}
