package engine

import (
	"time"

	"github.com/formflow-labs/formflow/internal/registry"
	"github.com/formflow-labs/formflow/internal/util"
	ff "github.com/formflow-labs/formflow/pkg/formflow/v1"
	ffErrors "github.com/formflow-labs/formflow/pkg/formflow/v1/errors"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/events"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/field"
	pubstate "github.com/formflow-labs/formflow/pkg/formflow/v1/state"
)

// RegisterFields declares or replaces fields. Re-registration removes the
// field's old dependency edges before adding the new ones, and the value
// currently held follows the field's policy: a dirty (user-entered) value
// survives under PreferLocalOverride, while PreferDeclaredDefault always
// applies the newly declared initial. Registration is a topology change,
// so counters are recounted from scratch rather than maintained by delta.
func (e *Engine) RegisterFields(defs ...field.Definition) error {
	if err := e.checkDisposed(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	current := e.store.Current()
	delta := current.Mutate()

	for i := range defs {
		def := defs[i]
		existed := e.registry.Has(def.Key)
		if err := e.registry.Register(def); err != nil {
			return err
		}
		compiled := e.registry.Lookup(def.Key)

		if def.Sensitive {
			e.redactor.Add(def.Key)
		} else {
			e.redactor.Remove(def.Key)
		}

		_, hasValue := delta.Value(def.Key)
		wasDirty := delta.Dirty(def.Key)
		applyInitial := false
		switch {
		case !existed && !hasValue:
			// Brand-new field: seed the initial value when one is recorded.
			applyInitial = compiled.HasInitial
		case compiled.HasInitial && def.Initial != nil:
			// Re-registration (or a sleeping field waking up) with a declared
			// initial: a dirty value is overwritten only under
			// PreferDeclaredDefault; a clean one always takes the new default.
			applyInitial = !wasDirty || compiled.Policy == field.PreferDeclaredDefault
		}
		if applyInitial {
			delta.SetValue(def.Key, compiled.Initial)
		}

		// Dirty is recomputed against the (possibly new) initial value.
		if value, ok := delta.Value(def.Key); ok {
			delta.SetDirty(def.Key, e.computeDirty(compiled, value))
		} else {
			delta.SetDirty(def.Key, false)
		}

		delta.MarkChanged(def.Key)
		e.emit(events.Event{
			Type:      events.FieldRegistered,
			Timestamp: time.Now(),
			FormID:    e.formID,
			FieldKey:  def.Key,
		})
	}

	e.commitWithRecount(delta)
	if e.fieldGauge != nil {
		e.fieldGauge.Set(float64(e.registry.Len()))
	}
	return nil
}

// UnregisterFields removes fields and their dependency edges. With
// preserveState the value and dirty/touched entries stay in the snapshot,
// so a collapsed wizard step keeps its fields "sleeping"; an in-flight
// async validation is cancelled either way, since its validator is gone.
func (e *Engine) UnregisterFields(preserveState bool, keys ...string) error {
	if err := e.checkDisposed(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	current := e.store.Current()
	delta := current.Mutate()

	for _, key := range keys {
		if !e.registry.Has(key) {
			continue
		}
		e.registry.Unregister(key)
		e.redactor.Remove(key)
		e.validator.Cancel(key)

		if preserveState {
			// A sleeping field keeps value/dirty/touched, but an unresolved
			// validating result would leave the pending counter stuck.
			if delta.Validation(key).IsValidating() {
				delta.DeleteValidation(key)
			}
			delta.SetPending(key, false)
		} else {
			delta.DeleteValue(key)
			delta.DeleteValidation(key)
			delta.SetDirty(key, false)
			delta.SetTouched(key, false)
			delta.SetPending(key, false)
		}

		delta.MarkChanged(key)
		e.emit(events.Event{
			Type:      events.FieldUnregistered,
			Timestamp: time.Now(),
			FormID:    e.formID,
			FieldKey:  key,
		})
	}

	e.commitWithRecount(delta)
	if e.fieldGauge != nil {
		e.fieldGauge.Set(float64(e.registry.Len()))
	}
	return nil
}

// Reset restores every field per the strategy, clears all dirty/touched/
// pending flags, cancels in-flight async validation, and revalidates the
// fields whose effective mode is always (interaction-gated modes have
// nothing to assert once the flags are cleared). Counters are recounted
// from scratch, and the undo history is discarded: a reset is not an
// undoable edit but the start of a fresh session.
func (e *Engine) Reset(strategy ff.ResetStrategy) error {
	return e.resetAll(strategy, nil)
}

// ResetToValues resets the form to an explicit value map: named fields take
// the given value, all others their strategy-independent nil.
func (e *Engine) ResetToValues(values map[string]interface{}) error {
	if values == nil {
		return ffErrors.NewConfigError("reset values map cannot be nil", nil)
	}
	return e.resetAll(ff.ResetToInitialValues, values)
}

func (e *Engine) resetAll(strategy ff.ResetStrategy, overrides map[string]interface{}) error {
	if err := e.checkDisposed(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	e.validator.CancelAll()

	current := e.store.Current()
	delta := current.Mutate()

	// Flags of every key the snapshot knows about are cleared, including
	// sleeping fields kept by a preserveState unregister and valueless
	// fields that only carry a touched or pending flag.
	for _, key := range current.StateKeys() {
		delta.SetDirty(key, false)
		delta.SetTouched(key, false)
		delta.SetPending(key, false)
		delta.DeleteValidation(key)
	}

	registered := e.registry.Keys()
	for _, key := range registered {
		compiled := e.registry.Lookup(key)
		target, ok := e.resetTarget(compiled, strategy, overrides)
		if ok {
			delta.SetValue(key, target)
		} else {
			delta.DeleteValue(key)
		}
		delta.SetDirty(key, e.computeDirtyIfPresent(compiled, delta))
		delta.DeleteValidation(key)
	}

	delta.BumpResetCount()
	delta.MarkAllChanged()

	// Revalidate mode-always fields against the post-reset view.
	view := delta.Snapshot()
	for _, key := range registered {
		compiled := e.registry.Lookup(key)
		if compiled.Mode != field.ModeAlways {
			continue
		}
		value, _ := delta.Value(key)
		delta.SetValidation(key, e.validator.SyncValidate(compiled, value, view))
	}

	committed := e.commitWithRecount(delta)
	// A full reset starts a fresh editing session: the undo stack is
	// discarded and reseeded with the post-reset snapshot.
	e.history.Reset(committed)
	e.persistValues(committed)
	e.emit(events.Event{
		Type:      events.FormReset,
		Timestamp: time.Now(),
		FormID:    e.formID,
		Payload:   map[string]interface{}{"strategy": string(strategy)},
	})
	return nil
}

// ResetFields resets only the named fields. Unlike the full reset this is
// a routine operation, so counters are maintained incrementally.
func (e *Engine) ResetFields(strategy ff.ResetStrategy, keys ...string) error {
	if err := e.checkDisposed(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	current := e.store.Current()
	delta := current.Mutate()
	counters := current.Counters()

	type revalidation struct {
		compiled *registry.CompiledField
	}
	var revalidations []revalidation

	for _, key := range keys {
		compiled := e.registry.Lookup(key)
		if compiled == nil {
			return ffErrors.NewMissingFieldError(key)
		}
		e.validator.Cancel(key)

		if delta.Dirty(key) {
			counters.Dirty--
			delta.SetDirty(key, false)
		}
		delta.SetTouched(key, false)
		if delta.Pending(key) {
			counters.Pending--
			delta.SetPending(key, false)
		}
		old := delta.Validation(key)
		if old.IsInvalid() {
			counters.Errors--
		}
		if old.IsValidating() {
			counters.Pending--
		}
		delta.DeleteValidation(key)

		target, ok := e.resetTarget(compiled, strategy, nil)
		if ok {
			delta.SetValue(key, target)
		} else {
			delta.DeleteValue(key)
		}
		if dirty := e.computeDirtyIfPresent(compiled, delta); dirty != delta.Dirty(key) {
			counters.Dirty++
			delta.SetDirty(key, dirty)
		}
		delta.MarkChanged(key)

		if compiled.Mode == field.ModeAlways {
			revalidations = append(revalidations, revalidation{compiled: compiled})
		}
	}

	view := delta.Snapshot()
	for _, rv := range revalidations {
		value, _ := delta.Value(rv.compiled.Key)
		result := e.validator.SyncValidate(rv.compiled, value, view)
		if result.IsInvalid() {
			counters.Errors++
		}
		delta.SetValidation(rv.compiled.Key, result)
	}

	delta.SetCounters(counters)
	committed := e.store.Commit(delta.Snapshot())
	e.persistValues(committed)
	return nil
}

// resetTarget returns the value a field resets to under the strategy, and
// whether a value should be present at all afterwards.
func (e *Engine) resetTarget(compiled *registry.CompiledField, strategy ff.ResetStrategy, overrides map[string]interface{}) (interface{}, bool) {
	if overrides != nil {
		value, ok := overrides[compiled.Key]
		return value, ok
	}
	switch strategy {
	case ff.ResetToEmpty:
		if compiled.Def.Empty != nil {
			return util.DeepCopy(compiled.Def.Empty), true
		}
		return nil, false
	default:
		if compiled.HasInitial {
			return util.DeepCopy(compiled.Initial), true
		}
		return nil, false
	}
}

// computeDirtyIfPresent recomputes the dirty flag from the staged value,
// treating an absent value as clean.
func (e *Engine) computeDirtyIfPresent(compiled *registry.CompiledField, delta *pubstate.Delta) bool {
	value, ok := delta.Value(compiled.Key)
	if !ok {
		return false
	}
	return e.computeDirty(compiled, value)
}

// commitWithRecount finalizes a delta whose counter arithmetic is not
// tracked incrementally: the snapshot is recounted from scratch before the
// commit, which is acceptable on the rare topology-change and full-reset
// paths.
func (e *Engine) commitWithRecount(delta *pubstate.Delta) *pubstate.Snapshot {
	provisional := delta.Snapshot()
	delta.SetCounters(provisional.Recount())
	return e.store.Commit(delta.Snapshot())
}

// Undo steps back one history entry and force-publishes it. The restore is
// not re-recorded as a new entry.
func (e *Engine) Undo() bool {
	return e.restoreHistory("undo")
}

// Redo re-applies the most recently undone entry.
func (e *Engine) Redo() bool {
	return e.restoreHistory("redo")
}

func (e *Engine) restoreHistory(op string) bool {
	if e.checkDisposed() != nil {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		snap *pubstate.Snapshot
		ok   bool
	)
	if op == "undo" {
		snap, ok = e.history.Undo()
	} else {
		snap, ok = e.history.Redo()
	}
	if !ok {
		return false
	}

	// Async tasks armed for the abandoned timeline must not settle into the
	// restored one.
	e.validator.CancelAll()

	e.history.BeginRestore()
	delta := snap.Mutate()
	delta.MarkAllChanged()
	committed := e.store.Commit(delta.Snapshot())
	e.history.EndRestore()

	e.persistValues(committed)
	if e.historyOps != nil {
		e.historyOps.WithLabelValues(e.formID, op).Inc()
	}
	e.emit(events.Event{
		Type:      events.HistoryRestored,
		Timestamp: time.Now(),
		FormID:    e.formID,
		Payload:   map[string]interface{}{"op": op},
	})
	return true
}

// CanUndo reports whether a prior history entry exists.
func (e *Engine) CanUndo() bool { return e.history.CanUndo() }

// CanRedo reports whether an undone entry exists.
func (e *Engine) CanRedo() bool { return e.history.CanRedo() }
