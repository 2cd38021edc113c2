package engine

import (
	"time"

	ffErrors "github.com/formflow-labs/formflow/pkg/formflow/v1/errors"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/events"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/field"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/format"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/metrics"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/persist"
	fftracing "github.com/formflow-labs/formflow/pkg/formflow/v1/tracing"
)

// The Set* methods back the public engine options. They are normally called
// during construction, before the collaborators exist; when called later
// they propagate to the collaborators that cache the value.

// SetEventBus replaces the diagnostic event bus.
func (e *Engine) SetEventBus(bus events.Bus) error {
	if bus == nil {
		return ffErrors.NewConfigError("event bus cannot be nil", nil)
	}
	e.eventBus = bus
	if e.validator != nil {
		e.validator.SetBus(bus)
	}
	if e.bindings != nil {
		e.bindings.SetBus(bus)
	}
	return nil
}

// SetPersistAdapter configures the persistence adapter.
func (e *Engine) SetPersistAdapter(adapter persist.Adapter) error {
	if adapter == nil {
		return ffErrors.NewConfigError("persistence adapter cannot be nil", nil)
	}
	e.persistAdapter = adapter
	return nil
}

// SetFormatter replaces the message formatter.
func (e *Engine) SetFormatter(formatter format.Formatter) error {
	if formatter == nil {
		return ffErrors.NewConfigError("formatter cannot be nil", nil)
	}
	e.formatter = formatter
	return nil
}

// SetMetricsRegistryProvider replaces the metrics provider.
func (e *Engine) SetMetricsRegistryProvider(provider metrics.RegistryProvider) error {
	if provider == nil {
		return ffErrors.NewConfigError("metrics registry provider cannot be nil", nil)
	}
	e.metricsProvider = provider
	return nil
}

// SetTracerProvider replaces the tracer provider.
func (e *Engine) SetTracerProvider(provider fftracing.TracerProvider) error {
	if provider == nil {
		return ffErrors.NewConfigError("tracer provider cannot be nil", nil)
	}
	e.tracerProvider = provider
	return nil
}

// SetDefaultMode sets the validation mode that fields declaring
// ModeInherit resolve to. Already-registered fields keep their resolved
// mode.
func (e *Engine) SetDefaultMode(mode field.Mode) error {
	if mode == "" || mode == field.ModeInherit {
		return ffErrors.NewConfigError("default mode must be a concrete mode", nil)
	}
	e.defaultMode = mode
	if e.registry != nil {
		e.registry.SetDefaults(e.defaultMode, e.defaultDebounce)
	}
	return nil
}

// SetDefaultDebounce sets the async debounce applied to fields that do not
// declare their own.
func (e *Engine) SetDefaultDebounce(d time.Duration) error {
	if d < 0 {
		return ffErrors.NewConfigError("default debounce cannot be negative", nil)
	}
	if d > 0 {
		e.defaultDebounce = d
	}
	if e.registry != nil {
		e.registry.SetDefaults(e.defaultMode, e.defaultDebounce)
	}
	return nil
}

// SetHistoryBound sets the undo history depth.
func (e *Engine) SetHistoryBound(n int) error {
	if n <= 0 {
		return ffErrors.NewConfigError("history bound must be positive", nil)
	}
	e.historyBound = n
	if e.history != nil {
		e.history.SetBound(n)
	}
	return nil
}

// SetFormID fixes the opaque persistence key.
func (e *Engine) SetFormID(id string) error {
	if id == "" {
		return ffErrors.NewConfigError("form id cannot be empty", nil)
	}
	e.formID = id
	return nil
}
