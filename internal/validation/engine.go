package validation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/formflow-labs/formflow/internal/registry"
	"github.com/formflow-labs/formflow/internal/tracing"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/events"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/format"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/log"
	pubstate "github.com/formflow-labs/formflow/pkg/formflow/v1/state"
)

// SettleFunc receives the outcome of an async validation. It is invoked at
// most once per scheduled task, and never for a task that was cancelled,
// superseded, or outlived its engine.
type SettleFunc func(key string, result pubstate.ValidationResult)

// Engine runs synchronous validator chains and owns the debounced async
// validation tasks. There is at most one outstanding task per field key;
// scheduling a new one replaces (never queues behind) the previous.
type Engine struct {
	log    log.Logger
	bus    events.Bus
	settle SettleFunc
	formID string

	mu       sync.Mutex
	tasks    map[string]*asyncTask
	seq      map[string]uint64
	disposed bool
}

type asyncTask struct {
	timer  *time.Timer
	cancel context.CancelFunc
}

// NewEngine creates a validation engine. settle is called with each async
// outcome; bus may be nil when diagnostics are disabled.
func NewEngine(logger log.Logger, bus events.Bus, formID string, settle SettleFunc) *Engine {
	return &Engine{
		log:    logger,
		bus:    bus,
		settle: settle,
		formID: formID,
		tasks:  make(map[string]*asyncTask),
		seq:    make(map[string]uint64),
	}
}

// SyncValidate runs the field's synchronous chain: first the per-field
// validator against the raw value, then, only if that passed, the
// cross-field validator against the shared snapshot view. The first error
// wins. A panicking validator is recovered into an invalid result carrying
// a diagnostic message; it never propagates.
func (e *Engine) SyncValidate(c *registry.CompiledField, value interface{}, view *pubstate.Snapshot) (result pubstate.ValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Errorf("validator for field '%s' panicked: %v", c.Key, r)
			result = pubstate.Invalid(fmt.Sprintf("validator panicked: %v", r))
		}
	}()

	if c.Def.Validate != nil {
		if err := c.Def.Validate(value); err != nil {
			return resultFromError(err)
		}
	}
	if c.Def.CrossValidate != nil {
		if err := c.Def.CrossValidate(value, view); err != nil {
			return resultFromError(err)
		}
	}
	return pubstate.Valid()
}

// ScheduleAsync arms (or re-arms) the debounced async task for the field.
// Any in-flight timer or running validator for the same key is cancelled
// first. The caller has already staged the field's result as validating.
func (e *Engine) ScheduleAsync(c *registry.CompiledField, value interface{}) {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.cancelLocked(c.Key)
	e.seq[c.Key]++
	seq := e.seq[c.Key]

	ctx, cancel := context.WithCancel(context.Background())
	task := &asyncTask{cancel: cancel}
	task.timer = time.AfterFunc(c.Debounce, func() {
		e.runAsync(ctx, c, value, seq)
	})
	e.tasks[c.Key] = task
	e.mu.Unlock()

	e.emit(events.Event{
		Type:      events.AsyncValidationScheduled,
		Timestamp: time.Now(),
		FormID:    e.formID,
		FieldKey:  c.Key,
		Payload:   map[string]interface{}{"debounce": c.Debounce.String()},
	})
}

// runAsync is the timer body: it invokes the async validator and settles
// the outcome, unless the task went stale while it was running.
func (e *Engine) runAsync(ctx context.Context, c *registry.CompiledField, value interface{}, seq uint64) {
	ctx, span := tracing.GetTracer().Start(ctx, "formflow.validate_async")
	span.SetAttributes(attribute.String("formflow.field", c.Key))
	defer span.End()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("async validator panicked: %v", r)
			}
		}()
		return c.Def.ValidateAsync(ctx, value)
	}()
	tracing.RecordError(span, err)

	e.mu.Lock()
	stale := e.disposed || e.seq[c.Key] != seq
	if !stale {
		delete(e.tasks, c.Key)
	}
	e.mu.Unlock()
	if stale || errors.Is(err, context.Canceled) {
		return
	}

	var result pubstate.ValidationResult
	outcome := "valid"
	if err != nil {
		result = resultFromError(err)
		outcome = "invalid"
		e.log.Debugf("async validation for field '%s' failed: %v", c.Key, err)
	} else {
		result = pubstate.Valid()
	}

	e.settle(c.Key, result)

	e.emit(events.Event{
		Type:      events.AsyncValidationSettled,
		Timestamp: time.Now(),
		FormID:    e.formID,
		FieldKey:  c.Key,
		Payload:   map[string]interface{}{"outcome": outcome},
	})
}

// Cancel drops the in-flight async task for the key, if any. A timer that
// already fired becomes a no-op through the sequence check.
func (e *Engine) Cancel(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelLocked(key)
	e.seq[key]++
}

// CancelAll drops every in-flight async task. Sequence numbers advance so
// timers that already fired settle as no-ops.
func (e *Engine) CancelAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key := range e.tasks {
		e.cancelLocked(key)
	}
	for key := range e.seq {
		e.seq[key]++
	}
}

// Dispose cancels every in-flight task and makes all subsequent
// ScheduleAsync calls no-ops.
func (e *Engine) Dispose() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for key := range e.tasks {
		e.cancelLocked(key)
	}
	e.disposed = true
}

// cancelLocked stops the key's timer and cancels its context. Caller holds
// e.mu.
func (e *Engine) cancelLocked(key string) {
	if task, ok := e.tasks[key]; ok {
		task.timer.Stop()
		task.cancel()
		delete(e.tasks, key)
	}
}

// SetBus replaces the diagnostic event bus.
func (e *Engine) SetBus(bus events.Bus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bus = bus
}

func (e *Engine) emit(event events.Event) {
	e.mu.Lock()
	bus := e.bus
	e.mu.Unlock()
	if bus != nil {
		bus.Emit(event)
	}
}

// resultFromError folds a validator error into an invalid result. Token
// errors keep their parameters so the message formatter can interpolate
// them downstream.
func resultFromError(err error) pubstate.ValidationResult {
	var tokenErr *format.TokenError
	if errors.As(err, &tokenErr) {
		return pubstate.InvalidWithParams(tokenErr.Token, tokenErr.Params)
	}
	return pubstate.Invalid(err.Error())
}
