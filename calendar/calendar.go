// Package calendar implements the Event Table (DEVS component C3): a
// time-ordered schedule of pending internal events and external-event bags,
// with O(1) cancellation of a Simulator's single outstanding internal
// event. It is a container/heap priority queue of time buckets plus a map
// keyed by Simulator for cancellation, mirroring the mutex-guarded
// map-plus-snapshot idiom of the teacher's resource manager
// (internal/resources/manager.go), repurposed from page caching to event
// scheduling.
package calendar

import (
	"container/heap"
	"sort"
	"sync"

	"github.com/nsm120/vle/event"
	"github.com/nsm120/vle/value"
)

type bucket struct {
	internals    map[event.SimulatorID]struct{}
	externals    []event.External
	observations map[int]struct{}
}

func (b *bucket) empty() bool {
	return b == nil || (len(b.internals) == 0 && len(b.externals) == 0 && len(b.observations) == 0)
}

type timeHeap []value.Time

func (h timeHeap) Len() int            { return len(h) }
func (h timeHeap) Less(i, j int) bool  { return h[i].Compare(h[j]) < 0 }
func (h timeHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *timeHeap) Push(x interface{}) { *h = append(*h, x.(value.Time)) }
func (h *timeHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Table is the Event Table. Zero value is not usable; construct with New.
type Table struct {
	mu              sync.Mutex
	heap            timeHeap
	buckets         map[value.Time]*bucket
	internalBySim   map[event.SimulatorID]value.Time
	observationByID map[int]value.Time

	lastBagDepth int
}

// New constructs an empty Event Table.
func New() *Table {
	return &Table{
		buckets:         make(map[value.Time]*bucket),
		internalBySim:   make(map[event.SimulatorID]value.Time),
		observationByID: make(map[int]value.Time),
	}
}

func (t *Table) ensureBucket(at value.Time) *bucket {
	b, ok := t.buckets[at]
	if !ok {
		b = &bucket{internals: make(map[event.SimulatorID]struct{})}
		t.buckets[at] = b
		heap.Push(&t.heap, at)
	}
	return b
}

// PutInternal records that sim will fire its internal transition at t,
// replacing any prior outstanding internal event for sim.
func (t *Table) PutInternal(sim event.SimulatorID, at value.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked(sim)
	b := t.ensureBucket(at)
	b.internals[sim] = struct{}{}
	t.internalBySim[sim] = at
}

// PutExternal appends ev to the bag at ev.Time for its target Simulator.
func (t *Table) PutExternal(ev event.External) {
	t.mu.Lock()
	defer t.mu.Unlock()
	b := t.ensureBucket(ev.Time)
	b.externals = append(b.externals, ev)
}

// PutObservation schedules view's next sample tick at at as its own Event
// Table entry (spec.md §3's ObservationEvent subtype), replacing any prior
// outstanding tick for view — the same single-outstanding-event invariant
// PutInternal enforces per Simulator, applied here per timed view so
// TopTime/PopBag drive observation cadence instead of a post-hoc
// time-equality check against Simulator-driven pops.
func (t *Table) PutObservation(view int, at value.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelObservationLocked(view)
	b := t.ensureBucket(at)
	if b.observations == nil {
		b.observations = make(map[int]struct{})
	}
	b.observations[view] = struct{}{}
	t.observationByID[view] = at
}

func (t *Table) cancelObservationLocked(view int) {
	at, ok := t.observationByID[view]
	if !ok {
		return
	}
	delete(t.observationByID, view)
	if b, ok := t.buckets[at]; ok {
		delete(b.observations, view)
	}
}

// Cancel removes any outstanding internal event for sim. Used when an
// external event preempts a scheduled internal transition at a different
// time (the bag-construction logic upstream decides whether preemption is
// needed; Cancel itself is unconditional).
func (t *Table) Cancel(sim event.SimulatorID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked(sim)
}

func (t *Table) cancelLocked(sim event.SimulatorID) {
	at, ok := t.internalBySim[sim]
	if !ok {
		return
	}
	delete(t.internalBySim, sim)
	if b, ok := t.buckets[at]; ok {
		delete(b.internals, sim)
		// Bucket left in place even if now empty; lazily skipped by
		// cleanLocked on the next peek/pop. Avoids an O(n) heap removal.
	}
}

// cleanLocked discards heap entries whose bucket has become empty (through
// Cancel, or a prior PopBag already having consumed it).
func (t *Table) cleanLocked() {
	for t.heap.Len() > 0 {
		top := t.heap[0]
		if !t.buckets[top].empty() {
			return
		}
		heap.Pop(&t.heap)
		delete(t.buckets, top)
	}
}

// TopTime returns the smallest time across all pending internal events,
// external events and observation ticks, or value.PositiveInfinity if the
// table is empty.
func (t *Table) TopTime() value.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cleanLocked()
	if t.heap.Len() == 0 {
		return value.PositiveInfinity
	}
	return t.heap[0]
}

// Empty reports whether the table has no pending events at all.
func (t *Table) Empty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cleanLocked()
	return t.heap.Len() == 0
}

// PopBag atomically removes every internal event, external bag, and
// observation tick at TopTime(). bags groups Simulator events by target;
// views lists the indices (as given to PutObservation) of every timed
// view due to sample at at. ok is false if the table is empty.
func (t *Table) PopBag() (at value.Time, bags map[event.SimulatorID]event.Bag, views []int, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cleanLocked()
	if t.heap.Len() == 0 {
		return value.PositiveInfinity, nil, nil, false
	}
	at = heap.Pop(&t.heap).(value.Time)
	b := t.buckets[at]
	delete(t.buckets, at)

	bags = make(map[event.SimulatorID]event.Bag)
	for sim := range b.internals {
		internal := event.Internal{Time: at, Target: sim}
		entry := bags[sim]
		entry.Internal = &internal
		bags[sim] = entry
		delete(t.internalBySim, sim)
	}
	for _, ext := range b.externals {
		entry := bags[ext.Target]
		entry.Externals = append(entry.Externals, ext)
		bags[ext.Target] = entry
	}
	for view := range b.observations {
		views = append(views, view)
		delete(t.observationByID, view)
	}
	sort.Ints(views)
	t.lastBagDepth = len(bags)
	return at, bags, views, true
}

// Stats is a point-in-time snapshot fed to the health evaluator, in the
// same style as the teacher's resource-manager Stats() snapshot.
type Stats struct {
	PendingInternal int
	PendingExternal int
	LastBagDepth    int
}

// Stats returns a snapshot of the table's current load.
func (t *Table) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Stats{PendingInternal: len(t.internalBySim), LastBagDepth: t.lastBagDepth}
	for _, b := range t.buckets {
		s.PendingExternal += len(b.externals)
	}
	return s
}
