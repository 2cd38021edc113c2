// Package field defines the public field definition supplied to the engine
// at registration time, together with its validator function types and the
// runtime kind system used for boundary type checks.
package field

import (
	"context"
	"time"

	"github.com/formflow-labs/formflow/pkg/formflow/v1/state"
)

// Mode controls when a field is validated.
type Mode string

const (
	// ModeAlways validates the field on every update that reaches it.
	ModeAlways Mode = "always"
	// ModeOnUserInteraction validates once the field is dirty, touched, or
	// has been validated before.
	ModeOnUserInteraction Mode = "onUserInteraction"
	// ModeOnBlur validates once the field is touched or has been validated
	// before.
	ModeOnBlur Mode = "onBlur"
	// ModeDisabled suppresses automatic validation entirely.
	ModeDisabled Mode = "disabled"
	// ModeInherit defers to the engine's default mode.
	ModeInherit Mode = "inherit"
)

// Policy selects what happens to a field's value when it is re-registered
// with a new initial value.
type Policy string

const (
	// PreferLocalOverride keeps a user-entered (dirty) value across
	// re-registration; the new initial value applies only when the field is
	// not dirty. This is the default.
	PreferLocalOverride Policy = "preferLocalOverride"
	// PreferDeclaredDefault always applies the newly declared initial
	// value, dropping any local edit.
	PreferDeclaredDefault Policy = "preferDeclaredDefault"
)

// Validator checks a single field value. A nil return means the value is
// acceptable; a non-nil error carries the message token for the invalid
// result. Validators must not mutate the value.
type Validator func(value interface{}) error

// CrossValidator checks a value against a read-only, batch-coherent form
// snapshot, so rules spanning several fields observe a consistent state.
type CrossValidator func(value interface{}, snap *state.Snapshot) error

// AsyncValidator performs a potentially slow validation (e.g. a uniqueness
// probe). It is invoked once the field's debounce window elapses and must
// respect context cancellation.
type AsyncValidator func(ctx context.Context, value interface{}) error

// Transformer normalizes a raw value before it is staged (e.g. trimming
// whitespace, case folding).
type Transformer func(raw interface{}) interface{}

// Definition declares a field. Definitions are owned by the field registry
// and replaced wholesale on re-registration.
type Definition struct {
	// Key uniquely identifies the field within one engine instance.
	// Dotted keys ("address.city") group into nested structures on export.
	Key string

	// Initial is the optional initial value. It seeds the snapshot at
	// registration, anchors the dirty computation, and fixes the field's
	// inferred kind. nil means no initial value.
	Initial interface{}

	// Empty is the optional value applied by an empty-strategy reset.
	Empty interface{}

	// Validate is the synchronous per-field validator.
	Validate Validator

	// CrossValidate is the synchronous cross-field validator, run only
	// when Validate passes.
	CrossValidate CrossValidator

	// ValidateAsync is the debounced asynchronous validator, scheduled
	// only when the synchronous pass is valid.
	ValidateAsync AsyncValidator

	// Transform normalizes raw values before staging.
	Transform Transformer

	// Debounce is the async validation debounce window. Zero means the
	// engine default (300ms).
	Debounce time.Duration

	// DependsOn lists the keys this field derives validity from. Each
	// entry creates a dependency edge; changing any listed field
	// re-validates this one.
	DependsOn []string

	// Mode controls when validation runs. Empty means ModeInherit.
	Mode Mode

	// Policy selects the re-registration value policy.
	Policy Policy

	// Sensitive marks the value as secret: it is excluded from persistence
	// saves and redacted from diagnostic output.
	Sensitive bool
}
