package engine

import (
	"fmt"

	ffErrors "github.com/formflow-labs/formflow/pkg/formflow/v1/errors"
	pubstate "github.com/formflow-labs/formflow/pkg/formflow/v1/state"
)

// SetFieldError forces the field's validation result outside the automatic
// pipeline: invalid with the given message, or valid when the message is
// empty. Counters are adjusted by delta, and any in-flight async validation
// for the field is cancelled so it cannot overwrite the manual result.
func (e *Engine) SetFieldError(key string, message string) error {
	if err := e.checkDisposed(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.registry.Has(key) {
		return ffErrors.NewMissingFieldError(key)
	}
	e.validator.Cancel(key)

	result := pubstate.Valid()
	if message != "" {
		result = pubstate.Invalid(message)
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
	return nil
}

// SetFieldValidating flags the field pending for an external optimistic
// operation (e.g. a server round-trip owned by the caller). It moves only
// the pending flag and counter, leaving the validation result alone.
func (e *Engine) SetFieldValidating(key string, validating bool) error {
	if err := e.checkDisposed(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.registry.Has(key) {
		return ffErrors.NewMissingFieldError(key)
	}

	current := e.store.Current()
	if current.Pending(key) == validating {
		return nil
	}
	delta := current.Mutate()
	counters := current.Counters()
	if validating {
		counters.Pending++
	} else {
		counters.Pending--
	}
	delta.SetPending(key, validating)
	delta.SetCounters(counters)
	delta.MarkChanged(key)
	e.store.Commit(delta.Snapshot())
	return nil
}

// SetFieldTouched records user interaction (typically blur) for the field.
// A field becoming touched under an interaction-gated validation mode is
// validated immediately.
func (e *Engine) SetFieldTouched(key string, touched bool) error {
	if err := e.checkDisposed(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled := e.registry.Lookup(key)
	if compiled == nil {
		return ffErrors.NewMissingFieldError(key)
	}

	current := e.store.Current()
	if current.Touched(key) == touched {
		return nil
	}
	delta := current.Mutate()
	counters := current.Counters()
	delta.SetTouched(key, touched)

	if touched && e.modeAdmits(compiled, delta, current) {
		view := delta.Snapshot()
		value, _ := delta.Value(key)
		result := e.validator.SyncValidate(compiled, value, view)

		old := delta.Validation(key)
		if old.IsValidating() {
			e.validator.Cancel(key)
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
		delta.MarkChanged(key)
	}

	delta.SetCounters(counters)
	e.store.Commit(delta.Snapshot())
	return nil
}

// arrayValue reads the field's current value as a slice. A nil or absent
// value is an empty slice; any other type is a TypeMismatchError.
func (e *Engine) arrayValue(key string) ([]interface{}, error) {
	if !e.registry.Has(key) {
		return nil, ffErrors.NewMissingFieldError(key)
	}
	value, ok := e.store.Current().Value(key)
	if !ok || value == nil {
		return []interface{}{}, nil
	}
	items, ok := value.([]interface{})
	if !ok {
		return nil, ffErrors.NewTypeMismatchError(key, "list", fmt.Sprintf("%T", value))
	}
	return items, nil
}

// AddArrayItem appends an item to a list-valued field.
func (e *Engine) AddArrayItem(key string, item interface{}) error {
	if err := e.checkDisposed(); err != nil {
		return err
	}
	items, err := e.arrayValue(key)
	if err != nil {
		return err
	}
	_, err = e.SetValue(key, append(items, item))
	return err
}

// RemoveArrayItemAt removes the item at index from a list-valued field.
func (e *Engine) RemoveArrayItemAt(key string, index int) error {
	if err := e.checkDisposed(); err != nil {
		return err
	}
	items, err := e.arrayValue(key)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(items) {
		return ffErrors.NewValidationError(fmt.Sprintf("array index %d out of range for field '%s' (length %d)", index, key, len(items)), nil)
	}
	next := make([]interface{}, 0, len(items)-1)
	next = append(next, items[:index]...)
	next = append(next, items[index+1:]...)
	_, err = e.SetValue(key, next)
	return err
}

// ReplaceArrayItem replaces the item at index in a list-valued field.
func (e *Engine) ReplaceArrayItem(key string, index int, item interface{}) error {
	if err := e.checkDisposed(); err != nil {
		return err
	}
	items, err := e.arrayValue(key)
	if err != nil {
		return err
	}
	if index < 0 || index >= len(items) {
		return ffErrors.NewValidationError(fmt.Sprintf("array index %d out of range for field '%s' (length %d)", index, key, len(items)), nil)
	}
	next := append([]interface{}(nil), items...)
	next[index] = item
	_, err = e.SetValue(key, next)
	return err
}

// MoveArrayItem moves the item at from to position to, shifting the items
// in between.
func (e *Engine) MoveArrayItem(key string, from, to int) error {
	if err := e.checkDisposed(); err != nil {
		return err
	}
	items, err := e.arrayValue(key)
	if err != nil {
		return err
	}
	if from < 0 || from >= len(items) || to < 0 || to >= len(items) {
		return ffErrors.NewValidationError(fmt.Sprintf("array move %d -> %d out of range for field '%s' (length %d)", from, to, key, len(items)), nil)
	}
	if from == to {
		return nil
	}
	next := append([]interface{}(nil), items...)
	item := next[from]
	next = append(next[:from], next[from+1:]...)
	expanded := make([]interface{}, 0, len(items))
	expanded = append(expanded, next[:to]...)
	expanded = append(expanded, item)
	expanded = append(expanded, next[to:]...)
	_, err = e.SetValue(key, expanded)
	return err
}

// ClearArray empties a list-valued field.
func (e *Engine) ClearArray(key string) error {
	if err := e.checkDisposed(); err != nil {
		return err
	}
	if !e.registry.Has(key) {
		return ffErrors.NewMissingFieldError(key)
	}
	_, err := e.SetValue(key, []interface{}{})
	return err
}
