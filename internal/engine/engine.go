package engine

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	ff "github.com/formflow-labs/formflow/pkg/formflow/v1"
	ffErrors "github.com/formflow-labs/formflow/pkg/formflow/v1/errors"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/events"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/field"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/format"
	fflog "github.com/formflow-labs/formflow/pkg/formflow/v1/log"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/metrics"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/persist"
	pubstate "github.com/formflow-labs/formflow/pkg/formflow/v1/state"
	fftracing "github.com/formflow-labs/formflow/pkg/formflow/v1/tracing"

	"github.com/formflow-labs/formflow/internal/binding"
	intEvents "github.com/formflow-labs/formflow/internal/events"
	intFormat "github.com/formflow-labs/formflow/internal/format"
	"github.com/formflow-labs/formflow/internal/graph"
	"github.com/formflow-labs/formflow/internal/history"
	intMetrics "github.com/formflow-labs/formflow/internal/metrics"
	"github.com/formflow-labs/formflow/internal/redact"
	"github.com/formflow-labs/formflow/internal/registry"
	intState "github.com/formflow-labs/formflow/internal/state"
	intTracing "github.com/formflow-labs/formflow/internal/tracing"
	"github.com/formflow-labs/formflow/internal/validation"
)

const tracerName = "formflow-engine"

// Engine is the core form-state component. It owns the field registry, the
// dependency graph, the current snapshot, and the change stream; all public
// mutators funnel through the batch coordinator's single commit path.
type Engine struct {
	// Core services and providers
	log             fflog.Logger
	eventBus        events.Bus
	formatter       format.Formatter
	metricsProvider metrics.RegistryProvider
	tracerProvider  fftracing.TracerProvider
	persistAdapter  persist.Adapter

	// Configuration
	formID          string
	defaultMode     field.Mode
	defaultDebounce time.Duration
	historyBound    int

	// Collaborators
	registry  *registry.FieldRegistry
	graph     *graph.DependencyGraph
	store     *intState.Store
	validator *validation.Engine
	history   *history.Manager
	bindings  *binding.Manager
	redactor  *redact.Tracker

	// mu is the mutator lock: every state-changing operation runs to
	// completion under it, so commits are totally ordered and never
	// re-entrant.
	mu       sync.Mutex
	disposed atomic.Bool

	// Submit gating
	lastSubmitAttempt time.Time
	lastSubmitAccept  time.Time

	// Metrics collectors
	batchCounter      *prometheus.CounterVec
	batchDuration     prometheus.Histogram
	validationCounter *prometheus.CounterVec
	submitCounter     *prometheus.CounterVec
	historyOps        *prometheus.CounterVec
	fieldGauge        prometheus.Gauge
	errorGauge        prometheus.Gauge
	pendingGauge      prometheus.Gauge
}

var _ ff.FormEngine = (*Engine)(nil)

// NewEngine creates a form engine. Collaborators not supplied via options
// are defaulted: a no-op event bus, the built-in catalog formatter, a
// Prometheus registry provider, a no-op tracer provider, and no
// persistence.
func NewEngine(log fflog.Logger, opts ...ff.EngineOption) (*Engine, error) {
	if log == nil {
		return nil, ffErrors.NewConfigError("logger cannot be nil", nil)
	}

	e := &Engine{
		log:             log,
		defaultMode:     field.ModeAlways,
		defaultDebounce: registry.DefaultDebounce,
		historyBound:    history.DefaultBound,
	}

	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, ffErrors.NewConfigError(fmt.Sprintf("failed to apply engine option: %v", err), err)
		}
	}

	if e.formID == "" {
		e.formID = uuid.NewString()
	}
	if e.eventBus == nil {
		e.eventBus = intEvents.NewNoOpEventBus()
	}
	if e.formatter == nil {
		e.formatter = intFormat.NewCatalogFormatter(nil)
	}
	if e.metricsProvider == nil {
		e.metricsProvider = intMetrics.NewPrometheusRegistryProvider()
	}
	if e.tracerProvider == nil {
		tp, err := intTracing.NewNoOpProvider()
		if err != nil {
			return nil, ffErrors.NewConfigError("failed to create default NoOp tracer provider", err)
		}
		e.tracerProvider = tp
	}

	e.graph = graph.New()
	e.registry = registry.New(e.graph, e.defaultMode, e.defaultDebounce)
	e.store = intState.NewStore(nil)
	e.validator = validation.NewEngine(e.log, e.eventBus, e.formID, e.settleAsync)
	e.history = history.NewManager(e.store.Current(), e.historyBound)
	e.redactor = redact.NewTracker()
	e.bindings = binding.NewManager(endpoint{e}, e.eventBus, e.formID)

	// History observes the change stream first, before any user listener,
	// so undo state is current by the time subscribers run.
	e.store.Subscribe(e.history.Observe)
	e.store.Subscribe(e.observeGauges)

	e.initMetrics()

	return e, nil
}

// endpoint adapts the engine to the binding manager's Endpoint interface,
// discarding the batch result a binding write does not need.
type endpoint struct {
	e *Engine
}

func (ep endpoint) GetValue(key string) (interface{}, bool) { return ep.e.GetValue(key) }

func (ep endpoint) SetValue(key string, value interface{}) error {
	_, err := ep.e.SetValue(key, value)
	return err
}

func (ep endpoint) Subscribe(listener pubstate.Listener) func() {
	return ep.e.Subscribe(listener)
}

func (e *Engine) initMetrics() {
	reg := e.metricsProvider.Registry()
	if reg == nil {
		e.log.Errorf("Metrics provider returned a nil registry, cannot initialize metrics.")
		return
	}

	e.batchCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "formflow_batches_total", Help: "Total number of batch applications by outcome."},
		[]string{"form_id", "status"},
	)
	e.batchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "formflow_batch_duration_seconds", Help: "Duration of batch applications in seconds.", Buckets: prometheus.DefBuckets},
	)
	e.validationCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "formflow_validations_total", Help: "Total number of field validations by outcome."},
		[]string{"form_id", "outcome"},
	)
	e.submitCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "formflow_submits_total", Help: "Total number of submit attempts by outcome."},
		[]string{"form_id", "outcome"},
	)
	e.historyOps = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "formflow_history_operations_total", Help: "Total number of undo and redo operations."},
		[]string{"form_id", "op"},
	)
	e.fieldGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "formflow_registered_fields", Help: "Number of currently registered fields."},
	)
	e.errorGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "formflow_error_count", Help: "Current number of invalid fields."},
	)
	e.pendingGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "formflow_pending_count", Help: "Current number of fields with in-flight async validation."},
	)

	for _, collector := range []prometheus.Collector{
		e.batchCounter, e.batchDuration, e.validationCounter,
		e.submitCounter, e.historyOps, e.fieldGauge, e.errorGauge, e.pendingGauge,
	} {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				e.log.Warnf("Failed to register metrics collector: %v", err)
			}
		}
	}
}

// observeGauges mirrors the snapshot counters into the Prometheus gauges on
// every commit.
func (e *Engine) observeGauges(snap *pubstate.Snapshot) {
	if e.errorGauge == nil {
		return
	}
	counters := snap.Counters()
	e.errorGauge.Set(float64(counters.Errors))
	e.pendingGauge.Set(float64(counters.Pending))
}

// Subscribe attaches a listener to the change stream.
func (e *Engine) Subscribe(listener pubstate.Listener) func() {
	return e.store.Subscribe(listener)
}

// Snapshot returns the current immutable snapshot.
func (e *Engine) Snapshot() *pubstate.Snapshot {
	return e.store.Current()
}

// GetValue returns a deep copy of the field's current value.
func (e *Engine) GetValue(key string) (interface{}, bool) {
	return e.store.Current().Value(key)
}

// RequireValue returns the field's value, or a RequiredValueError when the
// field holds no value or nil. The error is distinct from a validation
// failure: the value is absent, not merely invalid.
func (e *Engine) RequireValue(key string) (interface{}, error) {
	value, ok := e.store.Current().Value(key)
	if !ok || value == nil {
		return nil, ffErrors.NewRequiredValueError(key)
	}
	return value, nil
}

// Errors returns the message token of every invalid field.
func (e *Engine) Errors() map[string]string {
	return e.store.Current().Errors()
}

// ErrorMessages returns formatted, user-facing messages for every invalid
// field, sorted by field key.
func (e *Engine) ErrorMessages() []string {
	snap := e.store.Current()
	validations := snap.Validations()
	keys := make([]string, 0, len(validations))
	for key, result := range validations {
		if result.IsInvalid() {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	messages := make([]string, 0, len(keys))
	for _, key := range keys {
		result := validations[key]
		messages = append(messages, e.formatter.Format(result.Message(), result.Params()))
	}
	return messages
}

// ToNestedMap reconstructs dotted field keys into a nested value map.
func (e *Engine) ToNestedMap() map[string]interface{} {
	return e.store.Current().ToNestedMap()
}

// MetricsRegistryProvider returns the engine's metrics provider.
func (e *Engine) MetricsRegistryProvider() metrics.RegistryProvider {
	return e.metricsProvider
}

// TracerProvider returns the engine's tracer provider.
func (e *Engine) TracerProvider() fftracing.TracerProvider {
	return e.tracerProvider
}

// BindField mirrors sourceKey of the source engine into key on this
// engine. The returned function removes the binding.
func (e *Engine) BindField(key string, source ff.FormEngine, sourceKey string, twoWay bool) (func(), error) {
	if err := e.checkDisposed(); err != nil {
		return nil, err
	}
	if source == nil {
		return nil, ffErrors.NewConfigError("binding source engine cannot be nil", nil)
	}
	// A self-binding would re-enter SetValue under the mutator lock during
	// commit fan-out; bindings mirror between engine instances only.
	if src, ok := source.(*Engine); ok && src == e {
		return nil, ffErrors.NewConfigError("binding source must be a different engine instance", nil)
	}
	if !e.registry.Has(key) {
		return nil, ffErrors.NewMissingFieldError(key)
	}
	unbind := e.bindings.Bind(key, remoteEndpoint{source}, sourceKey, twoWay)
	return unbind, nil
}

// remoteEndpoint adapts a public FormEngine (the binding source) to the
// binding manager's Endpoint interface.
type remoteEndpoint struct {
	engine ff.FormEngine
}

func (r remoteEndpoint) GetValue(key string) (interface{}, bool) { return r.engine.GetValue(key) }

func (r remoteEndpoint) SetValue(key string, value interface{}) error {
	_, err := r.engine.SetValue(key, value)
	return err
}

func (r remoteEndpoint) Subscribe(listener pubstate.Listener) func() {
	return r.engine.Subscribe(listener)
}

// Dispose cancels all outstanding debounce timers, bindings, and change
// stream subscriptions. Subsequent mutations return a DisposedError.
func (e *Engine) Dispose() error {
	if !e.disposed.CompareAndSwap(false, true) {
		return nil
	}
	e.validator.Dispose()
	e.bindings.Dispose()
	e.store.Close()
	e.log.Debugf("Engine for form '%s' disposed.", e.formID)
	return nil
}

func (e *Engine) checkDisposed() error {
	if e.disposed.Load() {
		return ffErrors.NewDisposedError()
	}
	return nil
}

// settleAsync is the validation engine's completion callback. It commits
// the narrow transition for one key: the new validation result plus ±1
// counter deltas, never a recount.
func (e *Engine) settleAsync(key string, result pubstate.ValidationResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed.Load() {
		return
	}
	// A field unregistered while its validator was in flight is a no-op.
	if !e.registry.Has(key) {
		return
	}

	current := e.store.Current()
	delta := current.Mutate()
	counters := current.Counters()

	old := current.Validation(key)
	if old.IsValidating() {
		counters.Pending--
	}
	if old.IsInvalid() != result.IsInvalid() {
		if result.IsInvalid() {
			counters.Errors++
		} else {
			counters.Errors--
		}
	}

	delta.SetValidation(key, result)
	delta.SetCounters(counters)
	delta.MarkChanged(key)
	e.store.Commit(delta.Snapshot())

	outcome := "valid"
	if result.IsInvalid() {
		outcome = "invalid"
	}
	if e.validationCounter != nil {
		e.validationCounter.WithLabelValues(e.formID, outcome).Inc()
	}
}

// persistValues saves the committed values through the configured adapter,
// fire-and-forget. Sensitive fields are filtered out before the save.
// Failures are logged and surfaced as a diagnostic event, never retried.
func (e *Engine) persistValues(snap *pubstate.Snapshot) {
	adapter := e.persistAdapter
	if adapter == nil {
		return
	}
	values := e.redactor.FilterValues(snap.Values())
	formID := e.formID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := adapter.Save(ctx, formID, values); err != nil {
			e.log.Warnf("Failed to persist values for form '%s': %v", formID, err)
			e.emit(events.Event{
				Type:      events.PersistSaveFailed,
				Timestamp: time.Now(),
				FormID:    formID,
				Payload:   map[string]interface{}{"error": err.Error()},
			})
		}
	}()
}

// HydrateFromPersistence loads previously saved values for this form and
// applies them as one batch. Nothing saved is not an error.
func (e *Engine) HydrateFromPersistence(ctx context.Context) error {
	if err := e.checkDisposed(); err != nil {
		return err
	}
	if e.persistAdapter == nil {
		return ffErrors.NewConfigError("no persistence adapter configured", nil)
	}
	values, found, err := e.persistAdapter.Load(ctx, e.formID)
	if err != nil {
		return err
	}
	if !found || len(values) == 0 {
		return nil
	}
	_, err = e.SetValues(values)
	return err
}

func (e *Engine) emit(event events.Event) {
	if e.eventBus != nil {
		e.eventBus.Emit(event)
	}
}

// FormID returns the engine's opaque persistence key.
func (e *Engine) FormID() string { return e.formID }
