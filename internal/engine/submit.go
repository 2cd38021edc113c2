package engine

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/formflow-labs/formflow/internal/registry"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/events"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/field"
	pubstate "github.com/formflow-labs/formflow/pkg/formflow/v1/state"

	ff "github.com/formflow-labs/formflow/pkg/formflow/v1"
)

// Validate synchronously validates the named fields (all registered fields
// when none are given), commits the results as one transition, and reports
// whether every validated field passed. Mode-disabled fields are skipped.
// Fields owning an async validator are left validating with their task
// armed, which counts as provisionally valid here.
func (e *Engine) Validate(keys ...string) bool {
	if e.checkDisposed() != nil {
		return false
	}
	e.mu.Lock()

	if len(keys) == 0 {
		keys = e.registry.Keys()
	}

	current := e.store.Current()
	delta := current.Mutate()
	counters := current.Counters()
	view := delta.Snapshot()

	type asyncCandidate struct {
		compiled *registry.CompiledField
		value    interface{}
	}
	var asyncCandidates []asyncCandidate
	allValid := true

	for _, key := range keys {
		compiled := e.registry.Lookup(key)
		if compiled == nil || compiled.Mode == field.ModeDisabled {
			continue
		}
		value, _ := delta.Value(key)
		result := e.validator.SyncValidate(compiled, value, view)

		final := result
		if result.IsValid() && compiled.Def.ValidateAsync != nil {
			final = pubstate.Validating()
			asyncCandidates = append(asyncCandidates, asyncCandidate{compiled: compiled, value: value})
		}
		if final.IsInvalid() {
			allValid = false
		}

		old := delta.Validation(key)
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
	}

	delta.SetCounters(counters)
	e.store.Commit(delta.Snapshot())
	e.mu.Unlock()

	for _, candidate := range asyncCandidates {
		e.validator.ScheduleAsync(candidate.compiled, candidate.value)
	}
	return allValid
}

// Submit validates the whole form and dispatches to the configured
// callbacks. A submit arriving inside the debounce window of the previous
// attempt, or inside the throttle interval of the previous accepted
// attempt, is suppressed and returns nil. With WaitForPending the decision
// is deferred until the pending counter drains; Optimistic instead treats
// in-flight async validations as valid. A form-level failure invokes
// OnError with the full validations map and is never retried by the
// engine.
func (e *Engine) Submit(ctx context.Context, opts ff.SubmitOptions) error {
	if err := e.checkDisposed(); err != nil {
		return err
	}

	now := time.Now()
	e.mu.Lock()
	suppressed := (opts.Debounce > 0 && !e.lastSubmitAttempt.IsZero() && now.Sub(e.lastSubmitAttempt) < opts.Debounce) ||
		(opts.Throttle > 0 && !e.lastSubmitAccept.IsZero() && now.Sub(e.lastSubmitAccept) < opts.Throttle)
	e.lastSubmitAttempt = now
	if !suppressed {
		e.lastSubmitAccept = now
	}
	e.mu.Unlock()
	if suppressed {
		if e.submitCounter != nil {
			e.submitCounter.WithLabelValues(e.formID, "suppressed").Inc()
		}
		return nil
	}

	tracer := e.tracerProvider.GetTracer(tracerName)
	ctx, span := tracer.Start(ctx, "formflow.submit")
	span.SetAttributes(attribute.String("formflow.form_id", e.formID))
	defer span.End()

	e.emit(events.Event{Type: events.SubmitStart, Timestamp: time.Now(), FormID: e.formID})
	e.setSubmitting(true)
	defer e.setSubmitting(false)

	e.Validate()

	if opts.WaitForPending && !opts.Optimistic {
		if err := e.awaitPendingDrain(ctx); err != nil {
			span.SetStatus(codes.Error, "wait for pending validations aborted")
			span.RecordError(err)
			e.finishSubmit("aborted")
			return err
		}
	}

	snap := e.store.Current()
	if snap.ErrorCount() > 0 {
		span.SetAttributes(attribute.Int("formflow.error_count", snap.ErrorCount()))
		if opts.OnError != nil {
			opts.OnError(snap.Validations())
		}
		e.finishSubmit("invalid")
		return nil
	}

	if opts.OnValid != nil {
		if err := opts.OnValid(ctx, snap.Values()); err != nil {
			span.SetStatus(codes.Error, "submit callback failed")
			span.RecordError(err)
			e.finishSubmit("failed")
			return err
		}
	}
	e.finishSubmit("valid")
	return nil
}

func (e *Engine) finishSubmit(outcome string) {
	if e.submitCounter != nil {
		e.submitCounter.WithLabelValues(e.formID, outcome).Inc()
	}
	e.emit(events.Event{
		Type:      events.SubmitEnd,
		Timestamp: time.Now(),
		FormID:    e.formID,
		Payload:   map[string]interface{}{"outcome": outcome},
	})
}

// setSubmitting commits the form-level submitting flag. The values map
// identity is untouched, so the commit never lands in history.
func (e *Engine) setSubmitting(submitting bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed.Load() {
		return
	}
	current := e.store.Current()
	if current.Submitting() == submitting {
		return
	}
	delta := current.Mutate()
	delta.SetSubmitting(submitting)
	e.store.Commit(delta.Snapshot())
}

// awaitPendingDrain blocks until the pending counter reaches zero or the
// context is done. It must not be called while holding the mutator lock:
// async settles need the lock to commit the very transitions being awaited.
func (e *Engine) awaitPendingDrain(ctx context.Context) error {
	drained := make(chan struct{}, 1)
	unsubscribe := e.store.Subscribe(func(snap *pubstate.Snapshot) {
		if snap.PendingCount() == 0 {
			select {
			case drained <- struct{}{}:
			default:
			}
		}
	})
	defer unsubscribe()

	if e.store.Current().PendingCount() == 0 {
		return nil
	}
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
