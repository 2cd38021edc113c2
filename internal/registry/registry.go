package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/formflow-labs/formflow/internal/graph"
	ffErrors "github.com/formflow-labs/formflow/pkg/formflow/v1/errors"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/field"
)

// DefaultDebounce is the async validation debounce applied to fields that
// declare an async validator but no debounce of their own, when the engine
// has no default configured either.
const DefaultDebounce = 300 * time.Millisecond

// CompiledField is the registry's resolved view of one field definition.
// It is built once at registration: the inherit mode is resolved against
// the engine default, the debounce is normalized, and the value kind is
// inferred from the recorded initial value. Consumers treat it as
// read-only.
type CompiledField struct {
	Def field.Definition

	// Key mirrors Def.Key for convenience.
	Key string
	// Mode is the effective validation mode after inherit resolution.
	Mode field.Mode
	// Policy is the effective re-registration value policy.
	Policy field.Policy
	// Debounce is the normalized async debounce duration.
	Debounce time.Duration
	// Kind is the value kind inferred from the recorded initial value.
	// KindUnknown when no initial value was recorded; unknown accepts any
	// value type.
	Kind field.Kind
	// HasInitial reports whether an initial value was recorded for the
	// field, either at this registration or a previous one.
	HasInitial bool
	// Initial is the recorded initial value. Only meaningful when
	// HasInitial is true.
	Initial interface{}
}

// FieldRegistry holds the live set of field definitions and keeps the
// dependency graph's edges in step with registrations. Definitions are
// replaced wholesale on re-registration.
type FieldRegistry struct {
	mu sync.RWMutex

	fields map[string]*CompiledField
	graph  *graph.DependencyGraph

	defaultMode     field.Mode
	defaultDebounce time.Duration
}

// New creates a FieldRegistry wired to the given dependency graph.
// defaultMode resolves fields whose mode is "inherit" or unset;
// defaultDebounce (0 means DefaultDebounce) applies to async validators
// without their own debounce.
func New(g *graph.DependencyGraph, defaultMode field.Mode, defaultDebounce time.Duration) *FieldRegistry {
	if defaultMode == "" || defaultMode == field.ModeInherit {
		defaultMode = field.ModeAlways
	}
	if defaultDebounce <= 0 {
		defaultDebounce = DefaultDebounce
	}
	return &FieldRegistry{
		fields:          make(map[string]*CompiledField),
		graph:           g,
		defaultMode:     defaultMode,
		defaultDebounce: defaultDebounce,
	}
}

// Register stores the given definitions, replacing any previous definition
// with the same key. For a re-registered field the old dependency edges are
// removed before the new ones are added. The recorded initial value is
// carried over from the previous registration when the new definition does
// not declare one.
func (r *FieldRegistry) Register(defs ...field.Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range defs {
		def := defs[i]
		if def.Key == "" {
			return ffErrors.NewConfigError("field registration error: key cannot be empty", nil)
		}

		prev := r.fields[def.Key]
		if prev != nil {
			r.graph.RemoveField(def.Key)
		}

		compiled := &CompiledField{
			Def:      def,
			Key:      def.Key,
			Mode:     r.resolveMode(def.Mode),
			Policy:   def.Policy,
			Debounce: def.Debounce,
			Kind:     field.KindUnknown,
		}
		if compiled.Policy == "" {
			compiled.Policy = field.PreferLocalOverride
		}
		if compiled.Debounce <= 0 {
			compiled.Debounce = r.defaultDebounce
		}

		// Seed the initial value: a declared initial always wins; a silent
		// re-registration inherits the previously recorded one.
		switch {
		case def.Initial != nil:
			compiled.HasInitial = true
			compiled.Initial = def.Initial
		case prev != nil && prev.HasInitial:
			compiled.HasInitial = true
			compiled.Initial = prev.Initial
		}
		if compiled.HasInitial {
			compiled.Kind = field.KindOf(compiled.Initial)
		}

		r.fields[def.Key] = compiled
		r.graph.AddField(def.Key, def.DependsOn)
	}
	return nil
}

// Unregister removes the definitions and their dependency edges. Unknown
// keys are ignored. Snapshot entries for the removed fields are the
// engine's responsibility; the registry only forgets the definitions.
func (r *FieldRegistry) Unregister(keys ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range keys {
		if _, ok := r.fields[key]; !ok {
			continue
		}
		delete(r.fields, key)
		r.graph.RemoveField(key)
	}
}

// Lookup returns the compiled field for key, or nil when unregistered.
func (r *FieldRegistry) Lookup(key string) *CompiledField {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.fields[key]
}

// Has reports whether key is registered.
func (r *FieldRegistry) Has(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.fields[key]
	return ok
}

// Keys returns all registered field keys in sorted order.
func (r *FieldRegistry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.fields))
	for key := range r.fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Len returns the number of registered fields.
func (r *FieldRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.fields)
}

// SetDefaults replaces the engine-level default mode and debounce. Only
// future registrations observe the change; already-compiled fields keep
// their resolved values.
func (r *FieldRegistry) SetDefaults(defaultMode field.Mode, defaultDebounce time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if defaultMode != "" && defaultMode != field.ModeInherit {
		r.defaultMode = defaultMode
	}
	if defaultDebounce > 0 {
		r.defaultDebounce = defaultDebounce
	}
}

// CompatibleKind reports whether value's runtime kind is acceptable for
// the field. Fields without a recorded initial value accept any kind;
// numeric kinds are mutually compatible.
func (c *CompiledField) CompatibleKind(value interface{}) bool {
	if value == nil || c.Kind == field.KindUnknown {
		return true
	}
	return c.Kind.Compatible(field.KindOf(value))
}

func (r *FieldRegistry) resolveMode(m field.Mode) field.Mode {
	if m == "" || m == field.ModeInherit {
		return r.defaultMode
	}
	return m
}
