package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/formflow-labs/formflow/internal/registry"
	intTracing "github.com/formflow-labs/formflow/internal/tracing"
	"github.com/formflow-labs/formflow/internal/util"
	ff "github.com/formflow-labs/formflow/pkg/formflow/v1"
	ffErrors "github.com/formflow-labs/formflow/pkg/formflow/v1/errors"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/events"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/field"
	pubstate "github.com/formflow-labs/formflow/pkg/formflow/v1/state"
)

// SetValue updates a single field through the batch coordinator. Unlike
// the batch entry points, a rejected key surfaces as an error: a missing
// field returns a MissingFieldError and an incompatible value a
// TypeMismatchError.
func (e *Engine) SetValue(key string, value interface{}) (*ff.BatchResult, error) {
	result, err := e.ApplyBatch(map[string]interface{}{key: value}, nil, false)
	if err != nil {
		return nil, err
	}
	if len(result.MissingFields) > 0 {
		return result, ffErrors.NewMissingFieldError(key)
	}
	if len(result.TypeMismatches) > 0 {
		return result, result.TypeMismatches[0]
	}
	return result, nil
}

// SetValues updates several fields in one batch: one commit, one
// notification, regardless of how many values change.
func (e *Engine) SetValues(values map[string]interface{}) (*ff.BatchResult, error) {
	return e.ApplyBatch(values, nil, false)
}

// ApplyBatch is the batch coordinator. Given N field updates it computes
// the minimal diff, determines which fields must (re)validate (the updated
// fields plus their transitive dependents, filtered by validation mode),
// runs the synchronous validators against one shared snapshot view, and
// commits exactly one state transition. Async validators are scheduled
// after the commit, and the new values are persisted fire-and-forget.
func (e *Engine) ApplyBatch(updates map[string]interface{}, touched map[string]bool, strict bool) (*ff.BatchResult, error) {
	if err := e.checkDisposed(); err != nil {
		return nil, err
	}
	start := time.Now()

	tracer := e.tracerProvider.GetTracer(tracerName)
	_, span := tracer.Start(context.Background(), "formflow.apply_batch")
	span.SetAttributes(attribute.String("formflow.form_id", e.formID))
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	current := e.store.Current()
	delta := current.Mutate()
	counters := current.Counters()
	result := &ff.BatchResult{}

	// Deterministic application order.
	updateKeys := make([]string, 0, len(updates))
	for key := range updates {
		updateKeys = append(updateKeys, key)
	}
	sort.Strings(updateKeys)

	// Step 1: partition into accepted vs rejected updates.
	type acceptedUpdate struct {
		compiled *registry.CompiledField
		value    interface{}
	}
	accepted := make([]acceptedUpdate, 0, len(updateKeys))
	for _, key := range updateKeys {
		compiled := e.registry.Lookup(key)
		if compiled == nil {
			result.MissingFields = append(result.MissingFields, key)
			continue
		}
		value := updates[key]
		if !compiled.CompatibleKind(value) {
			mismatch := ffErrors.NewTypeMismatchError(key, string(compiled.Kind), string(field.KindOf(value)))
			if strict {
				if e.batchCounter != nil {
					e.batchCounter.WithLabelValues(e.formID, "rejected").Inc()
				}
				intTracing.RecordError(span, mismatch)
				return nil, mismatch
			}
			result.TypeMismatches = append(result.TypeMismatches, mismatch)
			continue
		}
		accepted = append(accepted, acceptedUpdate{compiled: compiled, value: value})
	}

	// Steps 2-3: stage changed values copy-on-write, recompute dirty, and
	// apply touched overrides.
	changedSet := make(map[string]struct{})
	for _, update := range accepted {
		key := update.compiled.Key
		value := update.value
		if update.compiled.Def.Transform != nil {
			value = update.compiled.Def.Transform(value)
		}

		staged, hadStaged := delta.Value(key)
		if !hadStaged || !util.ValuesEqual(staged, value) {
			delta.SetValue(key, value)
			delta.MarkChanged(key)
			changedSet[key] = struct{}{}
			result.Applied = append(result.Applied, key)

			dirty := e.computeDirty(update.compiled, value)
			if dirty != delta.Dirty(key) {
				if dirty {
					counters.Dirty++
				} else {
					counters.Dirty--
				}
				delta.SetDirty(key, dirty)
			}
		}
		if override, ok := touched[key]; ok {
			delta.SetTouched(key, override)
		}
	}

	// Step 4: build the validation work-set. The visited set spans the
	// whole batch, so a dependent reachable from several updated fields is
	// considered exactly once.
	visited := make(map[string]struct{}, len(accepted))
	workSet := make([]*registry.CompiledField, 0, len(accepted))
	consider := func(key string) {
		if _, seen := visited[key]; seen {
			return
		}
		visited[key] = struct{}{}
		compiled := e.registry.Lookup(key)
		if compiled == nil {
			return
		}
		if e.modeAdmits(compiled, delta, current) {
			workSet = append(workSet, compiled)
		}
	}
	for _, update := range accepted {
		consider(update.compiled.Key)
	}
	for _, update := range accepted {
		for _, dependent := range e.graph.TransitiveDependents(update.compiled.Key) {
			consider(dependent)
		}
	}

	// Step 5: synchronous validation against one shared, this-batch-coherent
	// view. The view is sealed before any validation result is staged, so
	// every cross-field validator observes the same state.
	view := delta.Snapshot()
	type asyncCandidate struct {
		compiled *registry.CompiledField
		value    interface{}
	}
	var asyncCandidates []asyncCandidate
	for _, compiled := range workSet {
		key := compiled.Key
		value, _ := delta.Value(key)
		syncResult := e.validator.SyncValidate(compiled, value, view)

		final := syncResult
		if syncResult.IsValid() && compiled.Def.ValidateAsync != nil {
			final = pubstate.Validating()
			asyncCandidates = append(asyncCandidates, asyncCandidate{compiled: compiled, value: value})
		}

		old := delta.Validation(key)
		// A field leaving the validating state without a fresh schedule has
		// its in-flight async task cancelled so a stale settle cannot
		// overwrite this batch's result.
		if old.IsValidating() && !final.IsValidating() {
			e.validator.Cancel(key)
		}
		if old.IsInvalid() != final.IsInvalid() {
			if final.IsInvalid() {
				counters.Errors++
			} else {
				counters.Errors--
			}
		}
		if old.IsValidating() != final.IsValidating() {
			if final.IsValidating() {
				counters.Pending++
			} else {
				counters.Pending--
			}
		}

		delta.SetValidation(key, final)
		delta.MarkChanged(key)
		result.Validated = append(result.Validated, key)

		if e.validationCounter != nil {
			outcome := "valid"
			if final.IsInvalid() {
				outcome = "invalid"
			}
			e.validationCounter.WithLabelValues(e.formID, outcome).Inc()
		}
	}

	// Applied values are attached to the span with sensitive fields
	// redacted, so traces never leak what persistence filters out.
	if span.IsRecording() {
		attrs := make([]attribute.KeyValue, 0, len(result.Applied)+2)
		for _, key := range result.Applied {
			value, _ := delta.Value(key)
			attrs = append(attrs, attribute.String(key, fmt.Sprint(value)))
		}
		attrs = intTracing.RedactAttributes(attrs, e.redactor.KeySet())
		attrs = append(attrs,
			attribute.Int("formflow.applied", len(result.Applied)),
			attribute.Int("formflow.validated", len(result.Validated)),
		)
		span.SetAttributes(attrs...)
	}

	// Step 6: exactly one commit for the whole batch.
	delta.SetCounters(counters)
	valuesChanged := delta.ValuesCloned()
	committed := e.store.Commit(delta.Snapshot())
	result.Snapshot = committed

	// Step 7: arm debounced async validators after the commit.
	for _, candidate := range asyncCandidates {
		e.validator.ScheduleAsync(candidate.compiled, candidate.value)
	}

	// Step 8: fire-and-forget persistence of the committed values.
	if valuesChanged {
		e.persistValues(committed)
	}

	if e.batchCounter != nil {
		e.batchCounter.WithLabelValues(e.formID, "applied").Inc()
	}
	if e.batchDuration != nil {
		e.batchDuration.Observe(time.Since(start).Seconds())
	}
	e.emit(events.Event{
		Type:      events.BatchApplied,
		Timestamp: time.Now(),
		FormID:    e.formID,
		Payload: map[string]interface{}{
			"applied":   len(result.Applied),
			"validated": len(result.Validated),
			"rejected":  len(result.MissingFields) + len(result.TypeMismatches),
		},
	})

	return result, nil
}

// computeDirty reports whether value differs from the field's recorded
// initial value. A field without a recorded initial is dirty whenever the
// value is non-nil.
func (e *Engine) computeDirty(compiled *registry.CompiledField, value interface{}) bool {
	if !compiled.HasInitial {
		return value != nil
	}
	return !util.ValuesEqual(value, compiled.Initial)
}

// modeAdmits applies the validation-mode rule for batch work-set
// membership: always validates unconditionally; onUserInteraction once the
// field is dirty, touched, or previously validated; onBlur once touched or
// previously validated; disabled never.
func (e *Engine) modeAdmits(compiled *registry.CompiledField, delta *pubstate.Delta, current *pubstate.Snapshot) bool {
	switch compiled.Mode {
	case field.ModeAlways:
		return true
	case field.ModeOnUserInteraction:
		return delta.Dirty(compiled.Key) || delta.Touched(compiled.Key) || current.Validated(compiled.Key)
	case field.ModeOnBlur:
		return delta.Touched(compiled.Key) || current.Validated(compiled.Key)
	case field.ModeDisabled:
		return false
	}
	return false
}
