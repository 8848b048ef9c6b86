// Package vle is the root facade over the kernel: it composes config
// loading, the Dynamics/stream plugin registries, and the Coordinator
// behind a single entry point for embedding callers, mirroring the
// teacher's Engine facade composing pipeline+ratelimit+resources+telemetry
// behind one struct.
package vle

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nsm120/vle/calendar"
	"github.com/nsm120/vle/config"
	"github.com/nsm120/vle/coordinator"
	"github.com/nsm120/vle/factory"
	"github.com/nsm120/vle/factory/pluginadapter"
	"github.com/nsm120/vle/observation"
	"github.com/nsm120/vle/telemetry/events"
	"github.com/nsm120/vle/telemetry/health"
	"github.com/nsm120/vle/telemetry/logging"
	"github.com/nsm120/vle/telemetry/metrics"
	"github.com/nsm120/vle/telemetry/tracing"
	"github.com/nsm120/vle/value"
)

// Snapshot is a unified view of kernel state at a point in time.
type Snapshot struct {
	RunID     uuid.UUID         `json:"run_id"`
	StartedAt time.Time         `json:"started_at"`
	Uptime    time.Duration     `json:"uptime"`
	Calendar  calendar.Stats    `json:"calendar"`
	Phase     coordinator.Phase `json:"phase"`
}

// TelemetryEvent is a reduced, stable event representation for external
// observers, decoupling them from the internal event bus's Event type.
type TelemetryEvent struct {
	Time     time.Time              `json:"time"`
	Category string                 `json:"category"`
	Type     string                 `json:"type"`
	Severity string                 `json:"severity,omitempty"`
	TraceID  string                 `json:"trace_id,omitempty"`
	SpanID   string                 `json:"span_id,omitempty"`
	Labels   map[string]string      `json:"labels,omitempty"`
	Fields   map[string]interface{} `json:"fields,omitempty"`
}

// EventObserver receives TelemetryEvent notifications.
type EventObserver func(ev TelemetryEvent)

// Kernel composes every subsystem behind a single facade for embedding
// callers: load a project, register plugins, run the simulation, observe
// its telemetry.
type Kernel struct {
	cfg  *config.KernelConfig
	dyn  *factory.Registry
	cal  *calendar.Table
	coor *coordinator.Coordinator

	metricsProvider metrics.Provider
	eventBus        events.Bus
	tracer          *tracing.Tracer
	healthEval      *health.Evaluator

	runID     uuid.UUID
	startedAt time.Time

	eventObserversMu sync.RWMutex
	eventObservers   []EventObserver

	lastHealth atomic.Value // string(health.Status)
}

// New loads a project (and optional runtime options) from disk, registers
// Dynamics plugins from opts' search directories and/or explicit factories,
// elaborates the project, and returns a Kernel ready to Run.
func New(projectPath, runtimePath string, opts ...Option) (*Kernel, error) {
	cfg, err := config.LoadKernelConfig(projectPath, runtimePath)
	if err != nil {
		return nil, err
	}

	o := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	dyn := factory.NewRegistry()
	for name, f := range o.dynamicsFactories {
		dyn.Register(name, f)
	}
	if len(o.pluginDirs) > 0 {
		seen := make(map[string]bool, len(cfg.Project.Dynamics.Entries))
		for _, d := range cfg.Project.Dynamics.Entries {
			if seen[d.Library] {
				continue
			}
			seen[d.Library] = true
			if _, already := o.dynamicsFactories[d.Library]; already {
				continue
			}
			if err := pluginadapter.LoadInto(dyn, d.Library, o.pluginDirs...); err != nil {
				return nil, err
			}
		}
	}

	provider := buildMetricsProvider(cfg.Runtime.MetricsBackend)
	bus := events.NewBus(provider)
	var tracer *tracing.Tracer
	if cfg.Runtime.TracingEnabled {
		tracer, err = tracing.NewTracer("vle", "embedded")
		if err != nil {
			return nil, err
		}
	}

	streams := config.NewStreamRegistry()
	streams.Register("memory", func() (observation.Stream, error) {
		return observation.NewMemoryStream(), nil
	})
	streams.Register("metrics", func() (observation.Stream, error) {
		return observation.NewMetricsStream(provider), nil
	})
	for name, b := range o.streamBuilders {
		streams.Register(name, b)
	}

	elab, err := cfg.Project.Elaborate(dyn, streams)
	if err != nil {
		return nil, err
	}

	k := &Kernel{
		cfg: cfg, dyn: dyn,
		metricsProvider: provider, eventBus: bus, tracer: tracer,
	}
	k.cal = calendar.New()
	k.healthEval = health.NewEvaluator(0, k.healthProbes()...)
	endTime := value.Time(cfg.Project.Experiment.Begin + cfg.Project.Experiment.Duration)
	k.coor = coordinator.New(elab.Simulators, elab.Atomics, k.cal, elab.Views, coordinator.Options{
		EndTime:                endTime,
		MaxConfluentIterations: cfg.Runtime.MaxConfluentIterations,
		Tracer:                 tracer,
		Bus:                    bus,
		Metrics:                provider,
		Logger:                 buildLogger(cfg.Runtime.LogLevel, cfg.Runtime.LogFormat),
	})
	return k, nil
}

// healthProbes returns the health checks run by HealthSnapshot: calendar
// backlog depth, in the same spirit as the teacher's limiter/resource
// probes over internal subsystem counters.
func (k *Kernel) healthProbes() []health.Probe {
	calendarProbe := health.ProbeFunc(func(ctx context.Context) health.ProbeResult {
		stats := k.cal.Stats()
		if stats.PendingInternal+stats.PendingExternal > 100000 {
			return health.Degraded("calendar", "large pending event backlog")
		}
		return health.Healthy("calendar")
	})
	return []health.Probe{calendarProbe}
}

// Run drives the Coordinator's full Init/Loop/Terminate cycle to
// completion, returning a terminal *kernelerr.KernelError on failure (see
// kernelerr.ExitCode for mapping this to a process exit code).
func (k *Kernel) Run(ctx context.Context) error {
	k.runID = uuid.New()
	k.startedAt = time.Now()
	return k.coor.Run(ctx)
}

// Snapshot returns a unified view of the kernel's current state.
func (k *Kernel) Snapshot() Snapshot {
	started := k.startedAt
	if started.IsZero() {
		started = time.Now()
	}
	return Snapshot{
		RunID:     k.runID,
		StartedAt: started,
		Uptime:    time.Since(started),
		Calendar:  k.cal.Stats(),
		Phase:     k.coor.CurrentPhase(),
	}
}

// HealthSnapshot evaluates (or returns the cached) subsystem health,
// notifying registered observers when the overall status changes.
func (k *Kernel) HealthSnapshot(ctx context.Context) health.Snapshot {
	snap := k.healthEval.Evaluate(ctx)
	cur := string(snap.Overall)
	prevRaw := k.lastHealth.Load()
	prev := ""
	if prevRaw != nil {
		prev = prevRaw.(string)
	}
	if prev != "" && prev != cur {
		ev := events.Event{Category: events.CategoryHealth, Type: "health_change", Severity: "info",
			Fields: map[string]interface{}{"previous": prev, "current": cur, "run_id": k.runID.String()}}
		_ = k.eventBus.Publish(ev)
		k.dispatchEvent(ev)
	}
	k.lastHealth.Store(cur)
	return snap
}

// RegisterEventObserver adds an observer invoked synchronously for each
// internal telemetry event bridged through the Kernel (currently limited
// to health-status changes). No-op if obs is nil.
func (k *Kernel) RegisterEventObserver(obs EventObserver) {
	if k == nil || obs == nil {
		return
	}
	k.eventObserversMu.Lock()
	k.eventObservers = append(k.eventObservers, obs)
	k.eventObserversMu.Unlock()
}

func (k *Kernel) dispatchEvent(ev events.Event) {
	k.eventObserversMu.RLock()
	observers := append([]EventObserver(nil), k.eventObservers...)
	k.eventObserversMu.RUnlock()
	if len(observers) == 0 {
		return
	}
	pub := TelemetryEvent{
		Time: ev.Time, Category: ev.Category, Type: ev.Type, Severity: ev.Severity,
		TraceID: ev.TraceID, SpanID: ev.SpanID, Labels: ev.Labels, Fields: ev.Fields,
	}
	for _, o := range observers {
		func() { defer func() { _ = recover() }(); o(pub) }()
	}
}

// Config returns the loaded project/runtime configuration.
func (k *Kernel) Config() *config.KernelConfig { return k.cfg }

// MetricsProvider exposes the kernel's metrics provider, e.g. to mount a
// Prometheus HTTP handler from an embedding caller.
func (k *Kernel) MetricsProvider() metrics.Provider { return k.metricsProvider }

// DynamicsRegistry exposes the kernel's Dynamics factory registry so a
// caller can close plugin resources after Run returns.
func (k *Kernel) DynamicsRegistry() *factory.Registry { return k.dyn }

// Close tears down plugin resources registered by the Dynamics registry,
// in LIFO order (spec.md §4.5).
func (k *Kernel) Close() error {
	return k.dyn.Close()
}

func buildMetricsProvider(backend string) metrics.Provider {
	switch backend {
	case "otel":
		return metrics.NewOTelProvider(metrics.OTelProviderOptions{})
	case "noop":
		return metrics.NewNoopProvider()
	default:
		return metrics.NewPrometheusProvider(metrics.PrometheusProviderOptions{})
	}
}

// buildLogger constructs the Coordinator's correlated Logger from the
// runtime layer's log_level/log_format (spec.md §6), defaulting to text
// output at info level when unset.
func buildLogger(level, format string) logging.Logger {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(level)}
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return logging.New(slog.New(handler))
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
