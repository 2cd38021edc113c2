package state

// Delta is a copy-on-write builder for the next snapshot. Each of the five
// per-field maps is cloned lazily, on its first staged write, so that an
// untouched map keeps its identity across commits. The values map identity
// in particular is what lets the history manager distinguish value-changing
// commits from validation-only ones.
//
// A Delta is single-use and not safe for concurrent use; the engine's
// mutator lock serializes all builders.
type Delta struct {
	base *Snapshot
	next Snapshot

	clonedValues      bool
	clonedValidations bool
	clonedDirty       bool
	clonedTouched     bool
	clonedPending     bool

	changed    map[string]struct{}
	changedAll bool
}

// Mutate returns a Delta staged on top of this snapshot.
func (s *Snapshot) Mutate() *Delta {
	return &Delta{base: s, next: *s, changed: make(map[string]struct{})}
}

func (d *Delta) values() map[string]interface{} {
	if !d.clonedValues {
		clone := make(map[string]interface{}, len(d.next.values))
		for k, v := range d.next.values {
			clone[k] = v
		}
		d.next.values = clone
		d.clonedValues = true
	}
	return d.next.values
}

func (d *Delta) validations() map[string]ValidationResult {
	if !d.clonedValidations {
		clone := make(map[string]ValidationResult, len(d.next.validations))
		for k, v := range d.next.validations {
			clone[k] = v
		}
		d.next.validations = clone
		d.clonedValidations = true
	}
	return d.next.validations
}

func (d *Delta) dirtyFlags() map[string]bool {
	if !d.clonedDirty {
		clone := make(map[string]bool, len(d.next.dirty))
		for k := range d.next.dirty {
			clone[k] = true
		}
		d.next.dirty = clone
		d.clonedDirty = true
	}
	return d.next.dirty
}

func (d *Delta) touchedFlags() map[string]bool {
	if !d.clonedTouched {
		clone := make(map[string]bool, len(d.next.touched))
		for k := range d.next.touched {
			clone[k] = true
		}
		d.next.touched = clone
		d.clonedTouched = true
	}
	return d.next.touched
}

func (d *Delta) pendingFlags() map[string]bool {
	if !d.clonedPending {
		clone := make(map[string]bool, len(d.next.pending))
		for k := range d.next.pending {
			clone[k] = true
		}
		d.next.pending = clone
		d.clonedPending = true
	}
	return d.next.pending
}

// Value reads through the staged state, so in-batch comparisons observe
// earlier writes of the same batch.
func (d *Delta) Value(key string) (interface{}, bool) {
	v, ok := d.next.values[key]
	return v, ok
}

// Validation reads the staged validation result for the key.
func (d *Delta) Validation(key string) ValidationResult {
	return d.next.validations[key]
}

// Validated reports whether the key has a staged validation result.
func (d *Delta) Validated(key string) bool {
	_, ok := d.next.validations[key]
	return ok
}

// Dirty reads the staged dirty flag for the key.
func (d *Delta) Dirty(key string) bool { return d.next.dirty[key] }

// Touched reads the staged touched flag for the key.
func (d *Delta) Touched(key string) bool { return d.next.touched[key] }

// Pending reads the staged pending flag for the key.
func (d *Delta) Pending(key string) bool { return d.next.pending[key] }

// SetValue stages a value write.
func (d *Delta) SetValue(key string, value interface{}) {
	d.values()[key] = value
}

// DeleteValue stages removal of a value.
func (d *Delta) DeleteValue(key string) {
	delete(d.values(), key)
}

// SetValidation stages a validation result write.
func (d *Delta) SetValidation(key string, r ValidationResult) {
	d.validations()[key] = r
}

// DeleteValidation stages removal of a validation result, returning the
// field to the never-validated state.
func (d *Delta) DeleteValidation(key string) {
	delete(d.validations(), key)
}

// SetDirty stages the dirty flag. Only true flags are stored, so the dirty
// map length always equals the dirty counter on a recount.
func (d *Delta) SetDirty(key string, dirty bool) {
	if dirty {
		d.dirtyFlags()[key] = true
	} else {
		delete(d.dirtyFlags(), key)
	}
}

// SetTouched stages the touched flag.
func (d *Delta) SetTouched(key string, touched bool) {
	if touched {
		d.touchedFlags()[key] = true
	} else {
		delete(d.touchedFlags(), key)
	}
}

// SetPending stages the pending flag.
func (d *Delta) SetPending(key string, pending bool) {
	if pending {
		d.pendingFlags()[key] = true
	} else {
		delete(d.pendingFlags(), key)
	}
}

// SetSubmitting stages the form-level submitting flag.
func (d *Delta) SetSubmitting(submitting bool) {
	d.next.submitting = submitting
}

// BumpResetCount stages a reset-counter increment.
func (d *Delta) BumpResetCount() {
	d.next.resetCount++
}

// SetCounters stages the caller-computed counter triple. Counters are
// always computed by the mutation path (incrementally, or via Recount on
// the rare full-rebuild paths), never by the store.
func (d *Delta) SetCounters(c Counters) {
	d.next.counters = c
}

// Counters returns the currently staged counters.
func (d *Delta) Counters() Counters { return d.next.counters }

// MarkChanged adds the key to the snapshot's changed-fields delta.
func (d *Delta) MarkChanged(key string) {
	d.changed[key] = struct{}{}
}

// MarkAllChanged publishes a nil changed-set, meaning "assume all changed".
func (d *Delta) MarkAllChanged() {
	d.changedAll = true
}

// ValuesCloned reports whether any value write was staged, i.e. whether the
// built snapshot will carry a fresh values map.
func (d *Delta) ValuesCloned() bool { return d.clonedValues }

// Snapshot finalizes the delta into an immutable snapshot. The version is
// stamped later by the state store on commit.
func (d *Delta) Snapshot() *Snapshot {
	built := d.next
	if d.changedAll {
		built.changed = nil
	} else {
		built.changed = d.changed
	}
	return &built
}
