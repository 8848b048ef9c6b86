// Package event defines the four DEVS event subtypes that flow through the
// calendar and the coordinator's routing logic: External, Internal,
// Observation, and Request. All four carry a time stamp and a target
// Simulator, generalized from the teacher's CrawlResult{URL, Page, Error,
// Stage, Success, Retry} envelope-with-discriminant style.
package event

import "github.com/nsm120/vle/value"

// SimulatorID is the arena index of the target Simulator, per the
// coordinator's arena-style storage (spec.md §9).
type SimulatorID int

// Kind discriminates the four event subtypes.
type Kind int

const (
	KindInternal Kind = iota
	KindExternal
	KindObservation
	KindRequest
)

// External carries a routed payload from a source (model,port) to a
// target (model,port). Payload is shared by reference among routed copies;
// downstream Dynamics must treat it as read-only (spec.md §4.3).
type External struct {
	Time       value.Time
	Target     SimulatorID
	SourcePort string
	TargetPort string
	Payload    value.Value
}

// Internal records that Simulator Target will fire its internal transition
// at Time. Only one outstanding Internal event is permitted per Simulator;
// the calendar enforces this by replacing, not appending.
type Internal struct {
	Time   value.Time
	Target SimulatorID
}

// Observation requests a sampled value for (model,port) on behalf of a
// named view.
type Observation struct {
	Time     value.Time
	Target   SimulatorID
	View     string
	Port     string
}

// Request is a synchronous query. It is acknowledged to exist (spec.md §3)
// but the kernel does not implement a dispatch path for it beyond that —
// any handling is a Dynamics-level concern.
type Request struct {
	Time   value.Time
	Target SimulatorID
	Query  string
}

// Bag is the set of events presented together to one Simulator at a single
// time instant: zero or one Internal plus zero or more External. Bag
// contents classify the transition a Simulator must run (spec.md §4.1):
// pure Internal -> δint, pure External -> δext, both -> δconf.
type Bag struct {
	Internal  *Internal
	Externals []External
}

// IsConfluent reports whether both an internal and at least one external
// event are present, requiring a confluent transition rather than a pure
// internal or external one.
func (b Bag) IsConfluent() bool {
	return b.Internal != nil && len(b.Externals) > 0
}
