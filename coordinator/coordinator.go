// Package coordinator implements the DEVS Coordinator (C8): the
// Init/Loop/Terminate phase machine that is the kernel's single control
// flow (spec.md §4.2, §5). Grounded on internal/pipeline/pipeline.go's
// `Pipeline` struct shape (arena-held stages, per-stage metrics map,
// explicit Stop/lifecycle methods) and its worker-function decomposition
// into one function per pipeline stage — rewritten single-threaded, since
// the kernel has exactly one control flow and spec.md §5 rules out worker
// pools between phases.
package coordinator

import (
	"context"
	"fmt"
	"sort"

	"github.com/nsm120/vle/calendar"
	"github.com/nsm120/vle/event"
	"github.com/nsm120/vle/kernelerr"
	"github.com/nsm120/vle/model"
	"github.com/nsm120/vle/observation"
	"github.com/nsm120/vle/simulator"
	"github.com/nsm120/vle/telemetry/events"
	"github.com/nsm120/vle/telemetry/logging"
	"github.com/nsm120/vle/telemetry/metrics"
	"github.com/nsm120/vle/telemetry/tracing"
	"github.com/nsm120/vle/value"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// Phase is the Coordinator's own lifecycle state, distinct from the
// per-Simulator bag classification in package simulator.
type Phase int

const (
	Uninitialized Phase = iota
	Running
	Finished
)

// DefaultMaxConfluentIterations bounds the number of times the Coordinator
// may re-pop the calendar at an unchanged timestamp before concluding a
// zero-time-advance model graph is looping forever (spec.md §8's
// boundary-behavior requirement).
const DefaultMaxConfluentIterations = 10000

// Options configures ambient behavior not named by spec.md's core
// algorithm: tracing, the event bus, metrics/logging for failed phases, and
// the confluent-loop guard.
type Options struct {
	EndTime                value.Time
	MaxConfluentIterations int // 0 => DefaultMaxConfluentIterations
	Tracer                 *tracing.Tracer
	Bus                    events.Bus
	Metrics                metrics.Provider // nil => phase failures aren't counted
	Logger                 logging.Logger   // nil => phase failures aren't logged
}

// Coordinator runs the DEVS simulation loop over a fixed arena of
// Simulators and their owning AtomicModels, addressed by event.SimulatorID
// per spec.md §9's arena-storage redesign.
type Coordinator struct {
	sims    []*simulator.Simulator
	atomics []*model.AtomicModel
	cal     *calendar.Table
	views   []*observation.View

	endTime   value.Time
	maxIters  int
	tracer    *tracing.Tracer
	bus       events.Bus
	logger    logging.Logger
	errCount  metrics.Counter

	phase       Phase
	currentTime value.Time
}

// New constructs a Coordinator over an arena of Simulators and their
// owning AtomicModels (index i of each slice must describe the same
// model — atomics[i].Simulator == event.SimulatorID(i)), a shared
// calendar, and the views to sample during the observation phase.
func New(sims []*simulator.Simulator, atomics []*model.AtomicModel, cal *calendar.Table, views []*observation.View, opts Options) *Coordinator {
	maxIters := opts.MaxConfluentIterations
	if maxIters <= 0 {
		maxIters = DefaultMaxConfluentIterations
	}
	var errCount metrics.Counter
	if opts.Metrics != nil {
		// Labeled only by phase/kind (both bounded enumerations the
		// cardinality limiter is told about; see telemetry/metrics), plus
		// model so a runaway single AtomicModel is still identifiable.
		errCount = opts.Metrics.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{
			Namespace: "vle", Subsystem: "coordinator", Name: "phase_errors_total",
			Help:   "Phase failures by offending model, phase, and error kind",
			Labels: []string{"model", "phase", "kind"},
		}})
	}
	return &Coordinator{
		sims: sims, atomics: atomics, cal: cal, views: views,
		endTime: opts.EndTime, maxIters: maxIters, tracer: opts.Tracer, bus: opts.Bus,
		logger: opts.Logger, errCount: errCount,
		phase: Uninitialized, currentTime: value.NegativeInfinity,
	}
}

func (c *Coordinator) publish(category, typ string) {
	if c.bus == nil {
		return
	}
	_ = c.bus.Publish(events.Event{Category: category, Type: typ})
}

// Init runs spec.md §4.2 step 1: initializes every Simulator and opens
// every view, scheduling each timed view's first observation tick (the
// first Step that pops it writes the sample).
func (c *Coordinator) Init(ctx context.Context) error {
	if c.phase != Uninitialized {
		return kernelerr.NewInvariantViolation("", "init", 0, fmt.Errorf("coordinator already initialized"))
	}
	c.currentTime = 0
	for _, v := range c.views {
		if err := v.Open(c.currentTime); err != nil {
			return kernelerr.NewRuntimeError(v.Name, "observation-open", float64(c.currentTime), err)
		}
	}
	// Every timed view gets its own Event Table entry (spec.md §3's
	// ObservationEvent), so its t=0 sample and every later cadence tick
	// is driven by PopBag uniformly with Simulator events, rather than a
	// post-hoc comparison against whatever time a Simulator happens to
	// pop at.
	for i, v := range c.views {
		if v.Kind == observation.KindTimed {
			c.cal.PutObservation(i, v.NextSampleTime())
		}
	}
	for _, sim := range c.sims {
		atEnd, err := sim.Init(c.currentTime)
		if err != nil {
			return err
		}
		if !atEnd.IsInfinite() {
			c.cal.PutInternal(sim.ID, atEnd)
		}
	}
	c.phase = Running
	c.publish("coordinator", "initialized")
	return nil
}

// Run drives the full Init/Loop/Terminate cycle to completion. If Init or a
// Step fails, or ctx is cancelled between Steps, Run still calls Terminate
// (Finish on every Simulator, then every stream closed) before returning
// that error.
func (c *Coordinator) Run(ctx context.Context) error {
	if c.phase == Uninitialized {
		if err := c.Init(ctx); err != nil {
			_ = c.Terminate(ctx)
			return err
		}
	}
	for {
		if err := ctx.Err(); err != nil {
			_ = c.Terminate(ctx)
			return err
		}
		done, err := c.Step(ctx)
		if err != nil {
			_ = c.Terminate(ctx)
			return err
		}
		if done {
			return c.Terminate(ctx)
		}
	}
}

// Step runs one iteration of spec.md §4.2 step 2 (one calendar pop, output
// phase, transition phase, observation phase). done is true once the
// calendar is past endTime or empty, at which point the caller should call
// Terminate.
func (c *Coordinator) Step(ctx context.Context) (done bool, err error) {
	if c.phase != Running {
		return false, kernelerr.NewInvariantViolation("", "step", float64(c.currentTime), fmt.Errorf("coordinator not running"))
	}
	top := c.cal.TopTime()
	if top.IsInfinite() || top.Compare(c.endTime) > 0 {
		return true, nil
	}

	iterations := 0
	lastPopped := value.NegativeInfinity
	for {
		at, bags, dueViews, ok := c.cal.PopBag()
		if !ok {
			return true, nil
		}
		if at.Compare(c.endTime) > 0 {
			return true, nil
		}
		if at.Compare(lastPopped) == 0 {
			iterations++
		} else {
			iterations = 1
			lastPopped = at
		}
		if iterations > c.maxIters {
			return false, kernelerr.NewInvariantViolation("", "confluent-loop", float64(at),
				fmt.Errorf("exceeded %d confluent iterations at t=%v", c.maxIters, at))
		}
		c.currentTime = at

		ctxOut, spanOut := c.startSpan(ctx, "coordinator.output", at)
		if err := c.outputPhase(at, bags); err != nil {
			c.fail(ctxOut, "output", at, err)
			tracing.FinishPhase(spanOut, false)
			return false, err
		}
		tracing.FinishPhase(spanOut, true)

		ctxTrans, spanTrans := c.startSpan(ctxOut, "coordinator.transition", at)
		if err := c.transitionPhase(at, bags); err != nil {
			c.fail(ctxTrans, "transition", at, err)
			tracing.FinishPhase(spanTrans, false)
			return false, err
		}
		tracing.FinishPhase(spanTrans, true)

		ctxObs, spanObs := c.startSpan(ctxTrans, "coordinator.observe", at)
		if err := c.observe(at, dueViews); err != nil {
			c.fail(ctxObs, "observation", at, err)
			tracing.FinishPhase(spanObs, false)
			return false, err
		}
		tracing.FinishPhase(spanObs, true)

		// Re-check TopTime: if it is still `at`, this iteration scheduled
		// more events at the same instant (externals routed during the
		// output phase, or a zero time advance rescheduled during the
		// transition phase: a confluent self-rescheduling loop); keep draining
		// until the instant advances or the iteration guard trips.
		if c.cal.TopTime().Compare(at) != 0 {
			return false, nil
		}
	}
}

// startSpan opens a phase span when tracing is configured, otherwise
// returns ctx unchanged and oteltrace's ambient no-op span (SpanFromContext
// on a context with none set), so every call site can treat span uniformly.
func (c *Coordinator) startSpan(ctx context.Context, name string, at value.Time) (context.Context, oteltrace.Span) {
	if c.tracer == nil {
		return ctx, oteltrace.SpanFromContext(ctx)
	}
	return c.tracer.StartPhase(ctx, name, fmt.Sprintf("t=%v", at))
}

func (c *Coordinator) fail(ctx context.Context, phase string, at value.Time, err error) {
	modelPath, kind := "", ""
	var ke *kernelerr.KernelError
	if kernelerr.As(err, &ke) {
		modelPath, kind = ke.ModelPath, ke.Kind.String()
	}
	tracing.RecordError(ctx, phase, modelPath, err)
	if c.errCount != nil {
		c.errCount.Inc(1, modelPath, phase, kind)
	}
	if c.logger != nil {
		c.logger.LogKernelError(ctx, err)
	}
	c.publish("error", phase)
}

// bagSimIDs returns the Simulator IDs present in bags sorted ascending, so
// dispatch order is stable across runs of the same model (spec.md §4.1)
// instead of following Go's randomized map iteration order. Ties within a
// bag are broken by Simulator arena-index, per DESIGN.md.
func bagSimIDs(bags map[event.SimulatorID]event.Bag) []event.SimulatorID {
	ids := make([]event.SimulatorID, 0, len(bags))
	for simID := range bags {
		ids = append(ids, simID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// outputPhase runs spec.md §4.2 step 2c: for each bag entry with a pending
// internal event, call Dynamics.Output and route every emitted event
// through the model graph (§4.3), merging routed externals into bags
// already present in this pop or registering them with the calendar for a
// later (possibly same-instant) pop. Simulators are visited in sorted
// arena-index order so routing (and therefore downstream append order) is
// deterministic across runs.
func (c *Coordinator) outputPhase(at value.Time, bags map[event.SimulatorID]event.Bag) error {
	for _, simID := range bagSimIDs(bags) {
		bag := bags[simID]
		if bag.Internal == nil {
			continue
		}
		outs, err := c.sims[simID].Output(at)
		if err != nil {
			return err
		}
		atomic := c.atomics[simID]
		for _, o := range outs {
			c.routeFromOutput(atomic.Name, atomic.Parent, o.SourcePort, at, o.Payload, func(ext event.External) {
				if existing, present := bags[ext.Target]; present {
					existing.Externals = append(existing.Externals, ext)
					bags[ext.Target] = existing
				} else {
					c.cal.PutExternal(ext)
				}
			})
		}
	}
	return nil
}

// transitionPhase runs spec.md §4.2 step 2d over every Simulator present
// in bags, regardless of whether it held the internal event this pop, in
// sorted arena-index order (see bagSimIDs).
func (c *Coordinator) transitionPhase(at value.Time, bags map[event.SimulatorID]event.Bag) error {
	for _, simID := range bagSimIDs(bags) {
		nextAt, err := c.sims[simID].Transition(at, bags[simID])
		if err != nil {
			return err
		}
		if !nextAt.IsInfinite() {
			c.cal.PutInternal(simID, nextAt)
		}
	}
	return nil
}

// observe runs spec.md §4.2 step 2e for every view index PopBag reported
// as due at at (each one its own Event Table entry, registered by Init or
// by this method's own re-registration below): write its observed
// (model,port) values, then for timed views advance and re-schedule the
// next cadence tick with the calendar. due is already sorted by PopBag.
func (c *Coordinator) observe(at value.Time, due []int) error {
	if len(due) == 0 {
		return nil
	}
	byName := make(map[string]event.SimulatorID, len(c.atomics))
	for i, a := range c.atomics {
		byName[a.Name] = event.SimulatorID(i)
	}
	for _, idx := range due {
		v := c.views[idx]
		for _, op := range v.Observed {
			simID, ok := byName[op.Model]
			if !ok {
				return kernelerr.NewConfigError(op.Model, fmt.Errorf("view %q observes unknown model %q", v.Name, op.Model))
			}
			val, err := c.sims[simID].Observation(at, v.Name, op.Port)
			if err != nil {
				return err
			}
			if err := v.Stream.Write(at, op.Model, op.Port, val); err != nil {
				return kernelerr.NewRuntimeError(op.Model, "observation-write", float64(at), err)
			}
		}
		if v.Kind == observation.KindTimed {
			v.Advance()
			c.cal.PutObservation(idx, v.NextSampleTime())
		}
	}
	return nil
}

// routeFromOutput walks outward from (sourceName, port) on parent through
// spec.md §4.3's internal-to-internal and internal-to-output connections,
// invoking emit for every resolved target External. parent == nil means
// sourceName has no enclosing CoupledModel (it is the model root), so
// there is nowhere further to route.
func (c *Coordinator) routeFromOutput(sourceName string, parent *model.CoupledModel, port string, at value.Time, payload value.Value, emit func(event.External)) {
	if parent == nil {
		return
	}
	for _, conn := range parent.InternalToInternal {
		if conn.SourceModel == sourceName && conn.SourcePort == port {
			target := parent.Child(conn.TargetModel)
			c.routeToInput(target, conn.TargetPort, at, payload, emit)
		}
	}
	for _, conn := range parent.InternalToOutput {
		if conn.SourceModel == sourceName && conn.SourcePort == port {
			c.routeFromOutput(parent.Name, parent.Parent, conn.TargetPort, at, payload, emit)
		}
	}
}

// routeToInput resolves an event arriving at (target, port) down to the
// AtomicModel(s) it ultimately reaches, recursing through a CoupledModel's
// input-to-internal connections (conn.SourceModel is "" for these,
// meaning "target's own input port").
func (c *Coordinator) routeToInput(target model.Model, port string, at value.Time, payload value.Value, emit func(event.External)) {
	switch m := target.(type) {
	case *model.AtomicModel:
		emit(event.External{Time: at, Target: m.Simulator, TargetPort: port, Payload: payload})
	case *model.CoupledModel:
		for _, conn := range m.InputToInternal {
			if conn.SourcePort == port {
				child := m.Child(conn.TargetModel)
				c.routeToInput(child, conn.TargetPort, at, payload, emit)
			}
		}
	}
}

// Terminate runs spec.md §4.2 step 3: Dynamics.Finish on every Simulator,
// then closes every stream.
func (c *Coordinator) Terminate(ctx context.Context) error {
	if c.phase == Finished {
		return nil
	}
	var firstErr error
	for _, sim := range c.sims {
		if err := sim.Finish(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	for _, v := range c.views {
		if err := v.Close(c.currentTime); err != nil && firstErr == nil {
			firstErr = kernelerr.NewRuntimeError(v.Name, "observation-close", float64(c.currentTime), err)
		}
	}
	c.phase = Finished
	c.publish("coordinator", "terminated")
	return firstErr
}

// CurrentPhase reports the Coordinator's current lifecycle phase.
func (c *Coordinator) CurrentPhase() Phase { return c.phase }

// CurrentTime reports the simulated time of the most recently processed bag.
func (c *Coordinator) CurrentTime() value.Time { return c.currentTime }
