package value

import "math"

// Time is a nonnegative simulation time. Two sentinels, NegativeInfinity and
// PositiveInfinity, participate in total ordering; arithmetic involving a
// sentinel saturates rather than propagating NaN.
type Time float64

var (
	// PositiveInfinity marks a Simulator that never schedules another
	// internal event from its current state.
	PositiveInfinity Time = Time(math.Inf(1))
	// NegativeInfinity is used only as a "before any event" sentinel for
	// freshly constructed Simulators; it never appears in the calendar.
	NegativeInfinity Time = Time(math.Inf(-1))
)

// IsInfinite reports whether t is either sentinel.
func (t Time) IsInfinite() bool {
	return math.IsInf(float64(t), 0)
}

// Compare returns -1, 0, or 1 as t is less than, equal to, or greater than
// other. Equality uses exact bit comparison so that a sentinel never
// compares equal to a large finite value computed to look similar.
func (t Time) Compare(other Time) int {
	tb, ob := math.Float64bits(float64(t)), math.Float64bits(float64(other))
	if tb == ob {
		return 0
	}
	if t < other {
		return -1
	}
	return 1
}

// Add returns t+d, saturating at PositiveInfinity if t is already infinite.
// Adding to NegativeInfinity is only ever done at Init time (d is the
// model's first time advance), and saturates symmetrically.
func (t Time) Add(d Time) Time {
	if t.IsInfinite() {
		return t
	}
	if d.IsInfinite() {
		return d
	}
	return t + d
}

// Sub returns t-other. Subtracting two infinities of the same sign is an
// invariant violation at the one call site that could produce it (elapsed
// time in an external transition); callers must guard against that case
// before calling Sub, per spec.md §3.
func (t Time) Sub(other Time) Time {
	return t - other
}
