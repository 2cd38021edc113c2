package v1

import (
	"context"
	"time"

	ffErrors "github.com/formflow-labs/formflow/pkg/formflow/v1/errors"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/events"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/field"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/format"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/metrics"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/persist"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/state"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/tracing"
)

// ResetStrategy selects the target values of a reset operation.
type ResetStrategy string

const (
	// ResetToInitialValues restores every field to its recorded initial value.
	ResetToInitialValues ResetStrategy = "initialValues"
	// ResetToEmpty applies each field's declared empty value (nil when none
	// is declared).
	ResetToEmpty ResetStrategy = "empty"
)

// BatchResult reports the outcome of one coordinator call. Per-field
// rejections are collected here rather than thrown; a batch never fails as
// a whole unless strict mode is requested.
type BatchResult struct {
	// Applied lists the keys whose value actually changed in this batch.
	Applied []string
	// Validated lists the keys whose validators ran (directly updated keys
	// plus transitive dependents admitted by their validation mode).
	Validated []string
	// MissingFields lists update keys not present in the field registry.
	MissingFields []string
	// TypeMismatches lists updates whose runtime type disagrees with the
	// field's inferred type. Empty under strict mode, where the first
	// mismatch aborts the batch instead.
	TypeMismatches []*ffErrors.TypeMismatchError
	// Snapshot is the single snapshot committed by this batch.
	Snapshot *state.Snapshot
}

// SubmitOptions configures one submit attempt.
type SubmitOptions struct {
	// OnValid is invoked with a deep copy of the form values when every
	// validation passes.
	OnValid func(ctx context.Context, values map[string]interface{}) error
	// OnError is invoked with the full validations map when the form is
	// invalid. Submission is not retried automatically.
	OnError func(validations map[string]state.ValidationResult)
	// Debounce suppresses a submit arriving within this window of the
	// previous attempt.
	Debounce time.Duration
	// Throttle enforces a minimum interval between accepted submits.
	Throttle time.Duration
	// Optimistic treats in-flight async validations as valid instead of
	// waiting for them.
	Optimistic bool
	// WaitForPending blocks until the pending counter reaches zero before
	// deciding validity.
	WaitForPending bool
}

// FormEngine is the public interface of a formflow engine instance. Each
// instance owns its field registry, snapshot, and change stream; lifecycle
// is caller-controlled via construction and Dispose.
//
// All mutators run to completion before the next queued operation; the
// published snapshots are totally ordered, and a listener attached before
// commit N observes every snapshot from N onward in order.
type FormEngine interface {
	// RegisterFields declares or replaces fields. Re-registration removes
	// the old dependency edges first and applies the definition's
	// re-registration policy to the current value.
	RegisterFields(defs ...field.Definition) error
	// UnregisterFields removes fields. With preserveState the value and
	// dirty/touched entries stay in the snapshot (a collapsed wizard step
	// keeps its fields "sleeping").
	UnregisterFields(preserveState bool, keys ...string) error

	// GetValue returns a deep copy of the field's current value.
	GetValue(key string) (interface{}, bool)
	// RequireValue is the non-null accessor: it returns a
	// RequiredValueError when the field holds no value or nil.
	RequireValue(key string) (interface{}, error)
	// SetValue updates a single field through the batch coordinator.
	SetValue(key string, value interface{}) (*BatchResult, error)
	// SetValues updates several fields in one batch (one commit, one
	// notification).
	SetValues(values map[string]interface{}) (*BatchResult, error)
	// ApplyBatch is the full-control batch entry point. touched overrides
	// the touched flag per key; strict aborts on the first type mismatch.
	ApplyBatch(updates map[string]interface{}, touched map[string]bool, strict bool) (*BatchResult, error)

	// Validate synchronously validates the given fields (all registered
	// fields when none are named) and reports whether they are all valid.
	Validate(keys ...string) bool
	// Submit validates the form and dispatches to the configured callbacks.
	Submit(ctx context.Context, opts SubmitOptions) error

	// Reset restores all fields per the strategy, clears dirty/touched/
	// pending flags, and recounts from scratch.
	Reset(strategy ResetStrategy) error
	// ResetFields resets only the named fields, maintaining counters
	// incrementally.
	ResetFields(strategy ResetStrategy, keys ...string) error
	// ResetToValues resets the form to an explicit value map.
	ResetToValues(values map[string]interface{}) error

	// Undo steps back one history entry. It reports false when there is no
	// past entry.
	Undo() bool
	// Redo re-applies the most recently undone entry.
	Redo() bool
	CanUndo() bool
	CanRedo() bool

	// SetFieldError forces the field invalid with the given message, or
	// valid when the message is empty, outside the automatic pipeline.
	SetFieldError(key string, message string) error
	// SetFieldValidating flags the field pending for an external optimistic
	// operation.
	SetFieldValidating(key string, validating bool) error
	// SetFieldTouched records user interaction (e.g. blur) for the field.
	SetFieldTouched(key string, touched bool) error

	// BindField mirrors sourceKey of the source engine into key on this
	// engine; with twoWay, edits mirror back. The returned func unbinds.
	BindField(key string, source FormEngine, sourceKey string, twoWay bool) (func(), error)

	// Array operations for list-valued fields.
	AddArrayItem(key string, item interface{}) error
	RemoveArrayItemAt(key string, index int) error
	ReplaceArrayItem(key string, index int, item interface{}) error
	MoveArrayItem(key string, from, to int) error
	ClearArray(key string) error

	// Subscribe attaches a listener to the change stream. The returned
	// func unsubscribes.
	Subscribe(listener state.Listener) func()
	// Snapshot returns the current immutable snapshot.
	Snapshot() *state.Snapshot
	// Errors returns the message of every invalid field.
	Errors() map[string]string
	// ErrorMessages returns formatted messages for every invalid field.
	ErrorMessages() []string
	// ToNestedMap reconstructs dotted field keys into a nested value map.
	ToNestedMap() map[string]interface{}

	// MetricsRegistryProvider returns the underlying metrics provider.
	MetricsRegistryProvider() metrics.RegistryProvider
	// TracerProvider returns the underlying tracing provider.
	TracerProvider() tracing.TracerProvider

	// Dispose cancels all outstanding debounce timers and subscriptions.
	// Further mutations return a DisposedError.
	Dispose() error

	// Setter methods for configuring engine components programmatically.
	SetEventBus(bus events.Bus) error
	SetPersistAdapter(adapter persist.Adapter) error
	SetFormatter(formatter format.Formatter) error
	SetMetricsRegistryProvider(provider metrics.RegistryProvider) error
	SetTracerProvider(provider tracing.TracerProvider) error
	SetDefaultMode(mode field.Mode) error
	SetDefaultDebounce(d time.Duration) error
	SetHistoryBound(n int) error
	SetFormID(id string) error
}

// EngineOption is a function type used to configure the engine at creation.
type EngineOption func(FormEngine) error

// WithEventBus is an engine option to provide a custom event bus.
func WithEventBus(bus events.Bus) EngineOption {
	return func(e FormEngine) error {
		if bus == nil {
			return ffErrors.NewConfigError("event bus cannot be nil", nil)
		}
		return e.SetEventBus(bus)
	}
}

// WithPersistAdapter is an engine option to provide a persistence adapter.
func WithPersistAdapter(adapter persist.Adapter) EngineOption {
	return func(e FormEngine) error {
		if adapter == nil {
			return ffErrors.NewConfigError("persistence adapter cannot be nil", nil)
		}
		return e.SetPersistAdapter(adapter)
	}
}

// WithFormatter is an engine option to provide a message formatter.
func WithFormatter(formatter format.Formatter) EngineOption {
	return func(e FormEngine) error {
		if formatter == nil {
			return ffErrors.NewConfigError("formatter cannot be nil", nil)
		}
		return e.SetFormatter(formatter)
	}
}

// WithMetricsRegistryProvider is an engine option to provide a custom metrics provider.
func WithMetricsRegistryProvider(provider metrics.RegistryProvider) EngineOption {
	return func(e FormEngine) error {
		if provider == nil {
			return ffErrors.NewConfigError("metrics registry provider cannot be nil", nil)
		}
		return e.SetMetricsRegistryProvider(provider)
	}
}

// WithTracerProvider is an engine option to provide a custom tracer provider.
func WithTracerProvider(provider tracing.TracerProvider) EngineOption {
	return func(e FormEngine) error {
		if provider == nil {
			return ffErrors.NewConfigError("tracer provider cannot be nil", nil)
		}
		return e.SetTracerProvider(provider)
	}
}

// WithDefaultMode is an engine option setting the validation mode that
// fields declaring ModeInherit resolve to.
func WithDefaultMode(mode field.Mode) EngineOption {
	return func(e FormEngine) error {
		if mode == "" || mode == field.ModeInherit {
			return ffErrors.NewConfigError("default mode must be a concrete mode", nil)
		}
		return e.SetDefaultMode(mode)
	}
}

// WithDefaultDebounce is an engine option setting the async validation
// debounce applied to fields that do not declare their own.
func WithDefaultDebounce(d time.Duration) EngineOption {
	return func(e FormEngine) error {
		if d < 0 {
			return ffErrors.NewConfigError("default debounce cannot be negative", nil)
		}
		return e.SetDefaultDebounce(d)
	}
}

// WithHistoryBound is an engine option setting the undo history depth.
func WithHistoryBound(n int) EngineOption {
	return func(e FormEngine) error {
		if n <= 0 {
			return ffErrors.NewConfigError("history bound must be positive", nil)
		}
		return e.SetHistoryBound(n)
	}
}

// WithFormID is an engine option fixing the opaque persistence key. When
// omitted, the engine generates one.
func WithFormID(id string) EngineOption {
	return func(e FormEngine) error {
		if id == "" {
			return ffErrors.NewConfigError("form id cannot be empty", nil)
		}
		return e.SetFormID(id)
	}
}
