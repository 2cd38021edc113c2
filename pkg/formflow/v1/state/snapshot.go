// Package state defines the immutable form snapshot published by the engine
// and the validation result value type carried inside it.
package state

import (
	"reflect"
	"sort"
	"strings"

	"github.com/formflow-labs/formflow/internal/util"
)

// Status represents the tagged state of a single field's validation.
type Status string

const (
	// StatusValid indicates the field passed its most recent validation.
	StatusValid Status = "Valid"
	// StatusInvalid indicates the field failed validation and carries a message.
	StatusInvalid Status = "Invalid"
	// StatusValidating indicates an asynchronous validation is in flight.
	// A validating field is provisionally valid (it does not count as an
	// error) but counts toward the pending counter.
	StatusValidating Status = "Validating"
)

// ValidationResult is the immutable outcome of validating one field.
// The zero value is equivalent to Valid().
type ValidationResult struct {
	status  Status
	message string
	params  map[string]interface{}
}

// Valid returns a passing result.
func Valid() ValidationResult { return ValidationResult{status: StatusValid} }

// Invalid returns a failing result carrying the given message token.
func Invalid(message string) ValidationResult {
	return ValidationResult{status: StatusInvalid, message: message}
}

// InvalidWithParams returns a failing result carrying a message token and
// the parameters a message formatter interpolates into it.
func InvalidWithParams(message string, params map[string]interface{}) ValidationResult {
	return ValidationResult{status: StatusInvalid, message: message, params: params}
}

// Validating returns an in-flight result.
func Validating() ValidationResult { return ValidationResult{status: StatusValidating} }

// Status returns the tagged state. The zero value reports StatusValid.
func (r ValidationResult) Status() Status {
	if r.status == "" {
		return StatusValid
	}
	return r.status
}

// Message returns the error message token, empty unless invalid.
func (r ValidationResult) Message() string { return r.message }

// Params returns the formatter parameters attached to the message token,
// nil when the validator supplied none.
func (r ValidationResult) Params() map[string]interface{} { return r.params }

// IsValid reports whether the result counts as non-erroneous. A validating
// result is provisionally valid.
func (r ValidationResult) IsValid() bool { return r.Status() != StatusInvalid }

// IsInvalid reports whether the result is a validation failure.
func (r ValidationResult) IsInvalid() bool { return r.Status() == StatusInvalid }

// IsValidating reports whether an asynchronous validation is in flight.
func (r ValidationResult) IsValidating() bool { return r.Status() == StatusValidating }

// Counters holds the three incrementally maintained snapshot counters.
type Counters struct {
	// Errors is the number of fields whose validation result is invalid.
	Errors int
	// Dirty is the number of fields whose value differs from their
	// recorded initial value.
	Dirty int
	// Pending is the number of fields flagged pending plus the number of
	// fields whose validation result is validating.
	Pending int
}

// Listener observes every committed snapshot, in commit order.
type Listener func(*Snapshot)

// Snapshot is the fully-described state of a form at one point in logical
// time. Snapshots are immutable: every state-changing operation publishes a
// replacement built through a Delta, never a mutation in place. All read
// accessors that return complex types return deep copies, so callers can
// never alias engine state.
type Snapshot struct {
	values      map[string]interface{}
	validations map[string]ValidationResult
	dirty       map[string]bool
	touched     map[string]bool
	pending     map[string]bool
	submitting  bool
	resetCount  int
	counters    Counters
	// changed is the delta since the previous snapshot. nil means "assume
	// all changed" (e.g. the first published snapshot, or a history restore).
	changed map[string]struct{}
	version uint64
}

// New returns an empty snapshot with a nil changed-set ("assume all changed").
func New() *Snapshot {
	return &Snapshot{
		values:      make(map[string]interface{}),
		validations: make(map[string]ValidationResult),
		dirty:       make(map[string]bool),
		touched:     make(map[string]bool),
		pending:     make(map[string]bool),
	}
}

// Value retrieves a deep copy of the value for the given field key.
func (s *Snapshot) Value(key string) (interface{}, bool) {
	v, ok := s.values[key]
	if !ok {
		return nil, false
	}
	return util.DeepCopy(v), true
}

// Validation returns the field's validation result. Fields that have never
// been validated report Valid.
func (s *Snapshot) Validation(key string) ValidationResult {
	return s.validations[key]
}

// Validated reports whether the field has a recorded validation result,
// i.e. it has been validated at least once since the last reset.
func (s *Snapshot) Validated(key string) bool {
	_, ok := s.validations[key]
	return ok
}

// Dirty reports whether the field's value differs from its initial value.
func (s *Snapshot) Dirty(key string) bool { return s.dirty[key] }

// Touched reports whether the field has received user interaction.
func (s *Snapshot) Touched(key string) bool { return s.touched[key] }

// Pending reports whether the field is flagged pending (external optimistic
// operations). Fields with an in-flight async validation count as pending
// through their validating result instead.
func (s *Snapshot) Pending(key string) bool { return s.pending[key] }

// Submitting reports whether a submit is currently in progress.
func (s *Snapshot) Submitting() bool { return s.submitting }

// ResetCount returns the number of full or partial resets applied so far.
func (s *Snapshot) ResetCount() int { return s.resetCount }

// Counters returns the maintained counter triple.
func (s *Snapshot) Counters() Counters { return s.counters }

// ErrorCount returns the maintained invalid-field count.
func (s *Snapshot) ErrorCount() int { return s.counters.Errors }

// DirtyCount returns the maintained dirty-field count.
func (s *Snapshot) DirtyCount() int { return s.counters.Dirty }

// PendingCount returns the maintained pending count.
func (s *Snapshot) PendingCount() int { return s.counters.Pending }

// Version returns the snapshot's position in the total commit order.
func (s *Snapshot) Version() uint64 { return s.version }

// Keys returns the sorted set of field keys holding a value.
func (s *Snapshot) Keys() []string {
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// StateKeys returns the sorted union of every key carrying any per-field
// state: a value, a dirty/touched/pending flag, or a validation result.
// Unlike Keys it includes valueless fields that only hold flags, such as a
// field touched before it was ever given a value.
func (s *Snapshot) StateKeys() []string {
	set := make(map[string]struct{}, len(s.values))
	for k := range s.values {
		set[k] = struct{}{}
	}
	for k := range s.dirty {
		set[k] = struct{}{}
	}
	for k := range s.touched {
		set[k] = struct{}{}
	}
	for k := range s.pending {
		set[k] = struct{}{}
	}
	for k := range s.validations {
		set[k] = struct{}{}
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Values returns a deep copy of the full value map.
func (s *Snapshot) Values() map[string]interface{} {
	out := make(map[string]interface{}, len(s.values))
	for k, v := range s.values {
		out[k] = util.DeepCopy(v)
	}
	return out
}

// Errors returns the message for every invalid field, keyed by field key.
func (s *Snapshot) Errors() map[string]string {
	out := make(map[string]string)
	for k, r := range s.validations {
		if r.IsInvalid() {
			out[k] = r.Message()
		}
	}
	return out
}

// ErrorMessages returns the messages of all invalid fields, ordered by
// field key for determinism.
func (s *Snapshot) ErrorMessages() []string {
	errs := s.Errors()
	keys := make([]string, 0, len(errs))
	for k := range errs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, errs[k])
	}
	return msgs
}

// Validations returns a copy of the validation result map.
func (s *Snapshot) Validations() map[string]ValidationResult {
	out := make(map[string]ValidationResult, len(s.validations))
	for k, r := range s.validations {
		out[k] = r
	}
	return out
}

// ChangedFields returns the delta since the previous snapshot. When all is
// true, the delta is unknown and every field must be assumed changed.
func (s *Snapshot) ChangedFields() (keys []string, all bool) {
	if s.changed == nil {
		return nil, true
	}
	keys = make([]string, 0, len(s.changed))
	for k := range s.changed {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, false
}

// HasChanged reports whether the given field is part of the delta since the
// previous snapshot. A nil delta reports true for every key.
func (s *Snapshot) HasChanged(key string) bool {
	if s.changed == nil {
		return true
	}
	_, ok := s.changed[key]
	return ok
}

// SameValues reports whether the other snapshot shares this snapshot's
// value map. Because all value mutations are copy-on-write, map identity is
// a sufficient "values unchanged" signal; the history manager relies on it
// to skip validation-only and touched-only commits.
func (s *Snapshot) SameValues(other *Snapshot) bool {
	if other == nil {
		return false
	}
	return reflect.ValueOf(s.values).Pointer() == reflect.ValueOf(other.values).Pointer()
}

// Recount computes the counter triple from scratch. The engine maintains
// counters incrementally on every hot path; Recount is reserved for full
// resets, registration changes, and invariant checks in tests, where it
// MUST agree with the maintained counters.
func (s *Snapshot) Recount() Counters {
	c := Counters{Dirty: len(s.dirty), Pending: len(s.pending)}
	for _, r := range s.validations {
		switch {
		case r.IsInvalid():
			c.Errors++
		case r.IsValidating():
			c.Pending++
		}
	}
	return c
}

// ToNestedMap reconstructs dotted-path field keys (e.g. "address.city")
// into a nested map structure suitable for serialization. All values are
// deep copies.
func (s *Snapshot) ToNestedMap() map[string]interface{} {
	nested := make(map[string]interface{})
	for key, value := range s.values {
		parts := strings.Split(key, ".")
		current := nested

		// Traverse or create the nested structure.
		for _, part := range parts[:len(parts)-1] {
			if _, ok := current[part]; !ok {
				current[part] = make(map[string]interface{})
			}
			// On a key collision (e.g. "a.b" when "a" already holds a
			// scalar) the scalar is overwritten; that is a form design
			// issue, not an engine fault.
			if next, ok := current[part].(map[string]interface{}); ok {
				current = next
			} else {
				next := make(map[string]interface{})
				current[part] = next
				current = next
			}
		}
		current[parts[len(parts)-1]] = util.DeepCopy(value)
	}
	return nested
}

// WithVersion returns a shallow copy of the snapshot stamped with the given
// commit version. The state store is the only intended caller.
func (s *Snapshot) WithVersion(v uint64) *Snapshot {
	next := *s
	next.version = v
	return &next
}
