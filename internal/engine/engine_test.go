package engine_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"

	"github.com/formflow-labs/formflow/internal/engine"
	"github.com/formflow-labs/formflow/internal/logger"
	"github.com/formflow-labs/formflow/internal/persist"
	ff "github.com/formflow-labs/formflow/pkg/formflow/v1"
	ffErrors "github.com/formflow-labs/formflow/pkg/formflow/v1/errors"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/field"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/format"
	pubstate "github.com/formflow-labs/formflow/pkg/formflow/v1/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, opts ...ff.EngineOption) *engine.Engine {
	t.Helper()
	e, err := engine.NewEngine(logger.NewDefaultLogger("error"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Dispose() })
	return e
}

// requireCountersConsistent asserts the incrementally maintained counters
// agree with a from-scratch recount of the current snapshot.
func requireCountersConsistent(t *testing.T, e *engine.Engine) {
	t.Helper()
	snap := e.Snapshot()
	require.Equal(t, snap.Recount(), snap.Counters(), "maintained counters diverged from recount")
}

// nonEmpty is a sync validator rejecting nil and empty strings.
func nonEmpty(value interface{}) error {
	if value == nil {
		return format.NewTokenError("required", nil)
	}
	if s, ok := value.(string); ok && s == "" {
		return format.NewTokenError("required", nil)
	}
	return nil
}

// TestNewEngineDefaults verifies construction and the generated form ID.
func TestNewEngineDefaults(t *testing.T) {
	e := newTestEngine(t)
	require.NotNil(t, e)
	assert.NotEmpty(t, e.FormID())
	assert.NotNil(t, e.Snapshot())
	assert.NotNil(t, e.MetricsRegistryProvider())
	assert.NotNil(t, e.TracerProvider())

	_, err := engine.NewEngine(nil)
	assert.Error(t, err, "nil logger is rejected")
}

// TestRegisterSeedsInitialValues verifies registration applies recorded
// initial values without marking fields dirty.
func TestRegisterSeedsInitialValues(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterFields(
		field.Definition{Key: "name", Initial: "anon"},
		field.Definition{Key: "age", Initial: 18},
		field.Definition{Key: "bio"},
	))

	snap := e.Snapshot()
	v, ok := snap.Value("name")
	require.True(t, ok)
	assert.Equal(t, "anon", v)
	v, _ = snap.Value("age")
	assert.Equal(t, 18, v)
	_, ok = snap.Value("bio")
	assert.False(t, ok, "field without initial holds no value")

	assert.Zero(t, snap.DirtyCount())
	assert.False(t, snap.Dirty("name"))
	requireCountersConsistent(t, e)
}

// TestSetValueAndDirtyTracking verifies the dirty flag follows the distance
// from the initial value in both directions.
func TestSetValueAndDirtyTracking(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterFields(field.Definition{Key: "name", Initial: "anon"}))

	result, err := e.SetValue("name", "ada")
	require.NoError(t, err)
	assert.Equal(t, []string{"name"}, result.Applied)
	assert.True(t, e.Snapshot().Dirty("name"))
	assert.Equal(t, 1, e.Snapshot().DirtyCount())

	// Returning to the initial value clears dirty.
	_, err = e.SetValue("name", "anon")
	require.NoError(t, err)
	assert.False(t, e.Snapshot().Dirty("name"))
	assert.Zero(t, e.Snapshot().DirtyCount())
	requireCountersConsistent(t, e)
}

// TestSetValueUnknownField verifies the single-value path surfaces a
// MissingFieldError.
func TestSetValueUnknownField(t *testing.T) {
	e := newTestEngine(t)
	_, err := e.SetValue("ghost", 1)
	require.Error(t, err)
	assert.True(t, ffErrors.IsMissingField(err))
}

// TestTypeMismatch covers both the collecting default and strict mode.
func TestTypeMismatch(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterFields(field.Definition{Key: "age", Initial: 18}))

	// Non-strict: the mismatch is collected, the batch proceeds.
	result, err := e.ApplyBatch(map[string]interface{}{"age": "old"}, nil, false)
	require.NoError(t, err)
	require.Len(t, result.TypeMismatches, 1)
	assert.Equal(t, "age", result.TypeMismatches[0].FieldKey)
	v, _ := e.GetValue("age")
	assert.Equal(t, 18, v, "rejected update leaves the value untouched")

	// Cross-width numerics are accepted.
	_, err = e.SetValue("age", int64(30))
	require.NoError(t, err)

	// Strict: the first mismatch aborts the whole batch.
	_, err = e.ApplyBatch(map[string]interface{}{"age": true}, nil, true)
	require.Error(t, err)
	assert.True(t, ffErrors.IsTypeMismatch(err))
	v, _ = e.GetValue("age")
	assert.Equal(t, int64(30), v)

	// The single-value path converts the collected mismatch into an error.
	_, err = e.SetValue("age", "x")
	require.Error(t, err)
	assert.True(t, ffErrors.IsTypeMismatch(err))
	requireCountersConsistent(t, e)
}

// TestBatchSingleCommit verifies an N-field batch produces exactly one
// snapshot whose changed-set is the union of updated and validated keys.
func TestBatchSingleCommit(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterFields(
		field.Definition{Key: "a", Validate: nonEmpty},
		field.Definition{Key: "b"},
		field.Definition{Key: "c", DependsOn: []string{"a"}},
	))

	var commits int
	var changed []string
	unsub := e.Subscribe(func(snap *pubstate.Snapshot) {
		commits++
		changed, _ = snap.ChangedFields()
	})
	defer unsub()

	result, err := e.SetValues(map[string]interface{}{"a": "x", "b": "y"})
	require.NoError(t, err)

	assert.Equal(t, 1, commits, "one commit per batch")
	assert.ElementsMatch(t, []string{"a", "b"}, result.Applied)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, result.Validated)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, changed)
	requireCountersConsistent(t, e)
}

// TestDependencyChainValidatedOnce verifies each member of a dependency
// closure is validated exactly once per batch, including diamonds.
func TestDependencyChainValidatedOnce(t *testing.T) {
	e := newTestEngine(t)

	counts := map[string]*int{}
	counting := func(key string) field.Validator {
		n := new(int)
		counts[key] = n
		return func(interface{}) error {
			*n++
			return nil
		}
	}
	require.NoError(t, e.RegisterFields(
		field.Definition{Key: "a", Validate: counting("a")},
		field.Definition{Key: "b", DependsOn: []string{"a"}, Validate: counting("b")},
		field.Definition{Key: "c", DependsOn: []string{"a"}, Validate: counting("c")},
		field.Definition{Key: "d", DependsOn: []string{"b", "c"}, Validate: counting("d")},
	))

	_, err := e.SetValue("a", 1)
	require.NoError(t, err)

	for key, n := range counts {
		assert.Equalf(t, 1, *n, "field %q should validate exactly once", key)
	}
}

// TestDependencyCycleTerminates verifies a dependency cycle validates each
// member once and returns.
func TestDependencyCycleTerminates(t *testing.T) {
	e := newTestEngine(t)

	var aCount, bCount int
	require.NoError(t, e.RegisterFields(
		field.Definition{Key: "a", DependsOn: []string{"b"}, Validate: func(interface{}) error { aCount++; return nil }},
		field.Definition{Key: "b", DependsOn: []string{"a"}, Validate: func(interface{}) error { bCount++; return nil }},
	))

	_, err := e.SetValue("a", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, aCount)
	assert.Equal(t, 1, bCount)
}

// TestCrossFieldValidation verifies dependents revalidate against the
// batch-coherent snapshot when their dependency changes.
func TestCrossFieldValidation(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterFields(
		field.Definition{Key: "min"},
		field.Definition{
			Key:       "max",
			DependsOn: []string{"min"},
			CrossValidate: func(value interface{}, snap *pubstate.Snapshot) error {
				maxV, _ := value.(int)
				minRaw, _ := snap.Value("min")
				minV, _ := minRaw.(int)
				if maxV <= minV {
					return format.NewTokenError("below_minimum", map[string]interface{}{"min": minV})
				}
				return nil
			},
		},
	))

	_, err := e.SetValues(map[string]interface{}{"min": 0, "max": 0})
	require.NoError(t, err)
	assert.True(t, e.Snapshot().Validation("max").IsInvalid())
	assert.Equal(t, 1, e.Snapshot().ErrorCount())

	// Lowering min revalidates max through the dependency edge.
	_, err = e.SetValue("min", -1)
	require.NoError(t, err)
	assert.True(t, e.Snapshot().Validation("max").IsValid())
	assert.Zero(t, e.Snapshot().ErrorCount())
	requireCountersConsistent(t, e)
}

// TestValidatorPanicBecomesInvalid verifies a panicking validator yields an
// invalid result instead of crashing the batch.
func TestValidatorPanicBecomesInvalid(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterFields(field.Definition{
		Key:      "boom",
		Validate: func(interface{}) error { panic("kaboom") },
	}))

	_, err := e.SetValue("boom", 1)
	require.NoError(t, err)
	result := e.Snapshot().Validation("boom")
	assert.True(t, result.IsInvalid())
	assert.Contains(t, result.Message(), "kaboom")
	requireCountersConsistent(t, e)
}

// TestModeGating verifies onBlur fields skip validation until touched, then
// validate on every subsequent change.
func TestModeGating(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterFields(
		field.Definition{Key: "email", Mode: field.ModeOnBlur, Validate: nonEmpty},
		field.Definition{Key: "hidden", Mode: field.ModeDisabled, Validate: nonEmpty},
	))

	_, err := e.SetValue("email", "")
	require.NoError(t, err)
	assert.False(t, e.Snapshot().Validated("email"), "untouched onBlur field is not validated")

	// Blur validates immediately.
	require.NoError(t, e.SetFieldTouched("email", true))
	assert.True(t, e.Snapshot().Validation("email").IsInvalid())
	assert.Equal(t, 1, e.Snapshot().ErrorCount())

	// Once validated, every change revalidates.
	_, err = e.SetValue("email", "a@b.c")
	require.NoError(t, err)
	assert.True(t, e.Snapshot().Validation("email").IsValid())
	assert.Zero(t, e.Snapshot().ErrorCount())

	// Disabled fields never validate.
	_, err = e.SetValue("hidden", "")
	require.NoError(t, err)
	require.NoError(t, e.SetFieldTouched("hidden", true))
	assert.False(t, e.Snapshot().Validated("hidden"))
	requireCountersConsistent(t, e)
}

// TestOnUserInteractionMode verifies the dirty gate of onUserInteraction.
func TestOnUserInteractionMode(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterFields(
		field.Definition{Key: "nick", Mode: field.ModeOnUserInteraction, Initial: "n", Validate: nonEmpty},
	))

	// A change makes the field dirty, which admits validation.
	_, err := e.SetValue("nick", "")
	require.NoError(t, err)
	assert.True(t, e.Snapshot().Validation("nick").IsInvalid())
	requireCountersConsistent(t, e)
}

// TestValidateAll verifies explicit whole-form validation commits once and
// reports overall validity.
func TestValidateAll(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterFields(
		field.Definition{Key: "a", Mode: field.ModeOnBlur, Validate: nonEmpty},
		field.Definition{Key: "b", Initial: "ok", Validate: nonEmpty},
	))

	// "a" was never validated by a batch (onBlur, untouched), but an
	// explicit Validate covers it regardless of mode gating.
	assert.False(t, e.Validate())
	assert.True(t, e.Snapshot().Validation("a").IsInvalid())
	assert.True(t, e.Snapshot().Validation("b").IsValid())

	_, err := e.SetValue("a", "filled")
	require.NoError(t, err)
	assert.True(t, e.Validate())
	assert.Zero(t, e.Snapshot().ErrorCount())
	requireCountersConsistent(t, e)
}

// TestUndoRedo walks value history including the redo-branch discard and
// verifies flag-only commits are not recorded.
func TestUndoRedo(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterFields(field.Definition{Key: "k", Initial: 1}))

	_, err := e.SetValue("k", 2)
	require.NoError(t, err)
	_, err = e.SetValue("k", 3)
	require.NoError(t, err)

	// A touched-only commit must not become an undo step.
	require.NoError(t, e.SetFieldTouched("k", true))

	require.True(t, e.Undo())
	v, _ := e.GetValue("k")
	assert.Equal(t, 2, v)
	assert.True(t, e.CanRedo())

	require.True(t, e.Redo())
	v, _ = e.GetValue("k")
	assert.Equal(t, 3, v)
	assert.False(t, e.CanRedo())

	// Editing after an undo discards the redo branch.
	require.True(t, e.Undo())
	_, err = e.SetValue("k", 9)
	require.NoError(t, err)
	assert.False(t, e.CanRedo())

	require.True(t, e.Undo())
	v, _ = e.GetValue("k")
	assert.Equal(t, 2, v)
	requireCountersConsistent(t, e)
}

// TestHistoryBound verifies the configured depth evicts the oldest entries.
func TestHistoryBound(t *testing.T) {
	e := newTestEngine(t, ff.WithHistoryBound(3))
	require.NoError(t, e.RegisterFields(field.Definition{Key: "k", Initial: 0}))

	for i := 1; i <= 10; i++ {
		_, err := e.SetValue("k", i)
		require.NoError(t, err)
	}

	undos := 0
	for e.Undo() {
		undos++
	}
	assert.Equal(t, 2, undos, "depth 3 leaves two undo steps")
	v, _ := e.GetValue("k")
	assert.Equal(t, 8, v)
}

// TestReset verifies a full reset restores initial values, clears all
// flags, revalidates always-mode fields, and bumps the reset counter.
func TestReset(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterFields(
		field.Definition{Key: "name", Initial: "anon", Validate: nonEmpty},
		field.Definition{Key: "email", Validate: nonEmpty},
	))

	_, err := e.SetValues(map[string]interface{}{"name": "ada", "email": "a@b.c"})
	require.NoError(t, err)
	require.NoError(t, e.SetFieldTouched("name", true))
	require.True(t, e.Snapshot().Dirty("name"))

	require.NoError(t, e.Reset(ff.ResetToInitialValues))

	snap := e.Snapshot()
	v, _ := snap.Value("name")
	assert.Equal(t, "anon", v)
	_, ok := snap.Value("email")
	assert.False(t, ok, "field without initial resets to absent")
	assert.Zero(t, snap.DirtyCount())
	assert.False(t, snap.Touched("name"))
	assert.Equal(t, 1, snap.ResetCount())

	// Post-reset revalidation: email is nil again and its always-mode
	// validator rejects that.
	assert.True(t, snap.Validation("email").IsInvalid())
	assert.True(t, snap.Validation("name").IsValid())
	assert.Equal(t, 1, snap.ErrorCount())
	requireCountersConsistent(t, e)
}

// TestResetClearsFlagsOfValuelessFields verifies a full reset clears
// touched and pending flags on registered fields that never held a value.
// A surviving pending flag would keep the pending counter above zero and
// wedge any waitForPending submit.
func TestResetClearsFlagsOfValuelessFields(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterFields(field.Definition{Key: "bio"}))

	require.NoError(t, e.SetFieldTouched("bio", true))
	require.NoError(t, e.SetFieldValidating("bio", true))
	require.Equal(t, 1, e.Snapshot().PendingCount())

	require.NoError(t, e.Reset(ff.ResetToInitialValues))

	snap := e.Snapshot()
	assert.False(t, snap.Touched("bio"), "touched flag must be cleared by a full reset")
	assert.False(t, snap.Pending("bio"), "pending flag must be cleared by a full reset")
	assert.Zero(t, snap.PendingCount())
	requireCountersConsistent(t, e)

	// With the pending counter drained, a waitForPending submit decides
	// immediately instead of blocking on the flag.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := e.Submit(ctx, ff.SubmitOptions{
		WaitForPending: true,
		OnValid:        func(context.Context, map[string]interface{}) error { return nil },
	})
	require.NoError(t, err)
}

// TestResetClearsHistory verifies a full reset starts a fresh editing
// session: prior edits are no longer undoable.
func TestResetClearsHistory(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterFields(field.Definition{Key: "k", Initial: 1}))
	_, err := e.SetValue("k", 2)
	require.NoError(t, err)
	_, err = e.SetValue("k", 3)
	require.NoError(t, err)
	require.True(t, e.CanUndo())

	require.NoError(t, e.Reset(ff.ResetToInitialValues))

	assert.False(t, e.CanUndo())
	assert.False(t, e.CanRedo())
	assert.False(t, e.Undo())
	v, _ := e.GetValue("k")
	assert.Equal(t, 1, v, "a failed undo leaves the reset state in place")

	// Edits after the reset are undoable back to the reset state only.
	_, err = e.SetValue("k", 9)
	require.NoError(t, err)
	require.True(t, e.Undo())
	v, _ = e.GetValue("k")
	assert.Equal(t, 1, v)
	assert.False(t, e.CanUndo())
}

// TestResetToEmpty verifies the declared empty values apply.
func TestResetToEmpty(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterFields(
		field.Definition{Key: "tags", Initial: []interface{}{"x"}, Empty: []interface{}{}},
		field.Definition{Key: "note", Initial: "hello"},
	))

	require.NoError(t, e.Reset(ff.ResetToEmpty))

	v, ok := e.GetValue("tags")
	require.True(t, ok)
	assert.Empty(t, v)
	_, ok = e.GetValue("note")
	assert.False(t, ok, "no declared empty value means absent")
	requireCountersConsistent(t, e)
}

// TestResetToValues verifies explicit override values.
func TestResetToValues(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterFields(
		field.Definition{Key: "a", Initial: 1},
		field.Definition{Key: "b", Initial: 2},
	))

	require.NoError(t, e.ResetToValues(map[string]interface{}{"a": 10}))
	v, _ := e.GetValue("a")
	assert.Equal(t, 10, v)
	_, ok := e.GetValue("b")
	assert.False(t, ok, "fields outside the override map reset to absent")

	assert.Error(t, e.ResetToValues(nil))
	requireCountersConsistent(t, e)
}

// TestResetFields verifies the partial reset touches only the named fields
// and keeps counters incrementally exact.
func TestResetFields(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterFields(
		field.Definition{Key: "a", Initial: "ia", Validate: nonEmpty},
		field.Definition{Key: "b", Initial: "ib"},
	))
	_, err := e.SetValues(map[string]interface{}{"a": "", "b": "edited"})
	require.NoError(t, err)
	require.Equal(t, 1, e.Snapshot().ErrorCount())

	require.NoError(t, e.ResetFields(ff.ResetToInitialValues, "a"))

	snap := e.Snapshot()
	v, _ := snap.Value("a")
	assert.Equal(t, "ia", v)
	v, _ = snap.Value("b")
	assert.Equal(t, "edited", v, "unnamed fields keep their state")
	assert.True(t, snap.Dirty("b"))
	assert.Zero(t, snap.ErrorCount(), "revalidated against the restored value")
	requireCountersConsistent(t, e)

	assert.Error(t, e.ResetFields(ff.ResetToInitialValues, "ghost"))
}

// TestSetFieldError covers the manual error override in both directions.
func TestSetFieldError(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterFields(field.Definition{Key: "user"}))

	require.NoError(t, e.SetFieldError("user", "already taken"))
	assert.Equal(t, 1, e.Snapshot().ErrorCount())
	assert.Equal(t, map[string]string{"user": "already taken"}, e.Errors())

	require.NoError(t, e.SetFieldError("user", ""))
	assert.Zero(t, e.Snapshot().ErrorCount())
	assert.True(t, e.Snapshot().Validation("user").IsValid())

	assert.Error(t, e.SetFieldError("ghost", "x"))
	requireCountersConsistent(t, e)
}

// TestSetFieldValidating covers the external pending flag.
func TestSetFieldValidating(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterFields(field.Definition{Key: "user"}))

	require.NoError(t, e.SetFieldValidating("user", true))
	assert.Equal(t, 1, e.Snapshot().PendingCount())
	assert.True(t, e.Snapshot().Pending("user"))

	// Idempotent.
	require.NoError(t, e.SetFieldValidating("user", true))
	assert.Equal(t, 1, e.Snapshot().PendingCount())

	require.NoError(t, e.SetFieldValidating("user", false))
	assert.Zero(t, e.Snapshot().PendingCount())
	requireCountersConsistent(t, e)
}

// TestArrayOperations exercises the list helpers end to end.
func TestArrayOperations(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterFields(field.Definition{Key: "tags"}))

	require.NoError(t, e.AddArrayItem("tags", "a"))
	require.NoError(t, e.AddArrayItem("tags", "b"))
	require.NoError(t, e.AddArrayItem("tags", "c"))
	v, _ := e.GetValue("tags")
	assert.Equal(t, []interface{}{"a", "b", "c"}, v)

	require.NoError(t, e.MoveArrayItem("tags", 0, 2))
	v, _ = e.GetValue("tags")
	assert.Equal(t, []interface{}{"b", "c", "a"}, v)

	require.NoError(t, e.ReplaceArrayItem("tags", 1, "x"))
	v, _ = e.GetValue("tags")
	assert.Equal(t, []interface{}{"b", "x", "a"}, v)

	require.NoError(t, e.RemoveArrayItemAt("tags", 0))
	v, _ = e.GetValue("tags")
	assert.Equal(t, []interface{}{"x", "a"}, v)

	assert.Error(t, e.RemoveArrayItemAt("tags", 5))
	assert.Error(t, e.ReplaceArrayItem("tags", -1, "y"))
	assert.Error(t, e.MoveArrayItem("tags", 0, 9))

	require.NoError(t, e.ClearArray("tags"))
	v, _ = e.GetValue("tags")
	assert.Empty(t, v)

	// Non-list values are rejected.
	require.NoError(t, e.RegisterFields(field.Definition{Key: "name"}))
	_, err := e.SetValue("name", "ada")
	require.NoError(t, err)
	err = e.AddArrayItem("name", "x")
	require.Error(t, err)
	assert.True(t, ffErrors.IsTypeMismatch(err))
	requireCountersConsistent(t, e)
}

// TestRequireValue covers the non-null accessor.
func TestRequireValue(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterFields(field.Definition{Key: "k"}))

	_, err := e.RequireValue("k")
	require.Error(t, err)
	assert.True(t, ffErrors.IsRequiredValue(err))

	_, err = e.SetValue("k", "v")
	require.NoError(t, err)
	v, err := e.RequireValue("k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

// TestErrorMessagesFormatted verifies token results render through the
// message catalog with their parameters.
func TestErrorMessagesFormatted(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterFields(field.Definition{
		Key: "pin",
		Validate: func(value interface{}) error {
			return format.NewTokenError("too_short", map[string]interface{}{"min": 4})
		},
	}))

	_, err := e.SetValue("pin", "1")
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"pin": "too_short"}, e.Errors())
	assert.Equal(t, []string{"Must be at least 4 characters"}, e.ErrorMessages())
}

// TestToNestedMap verifies dotted keys export as nested structures.
func TestToNestedMap(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterFields(
		field.Definition{Key: "name"},
		field.Definition{Key: "address.city"},
	))
	_, err := e.SetValues(map[string]interface{}{"name": "ada", "address.city": "Oslo"})
	require.NoError(t, err)

	assert.Equal(t, map[string]interface{}{
		"name":    "ada",
		"address": map[string]interface{}{"city": "Oslo"},
	}, e.ToNestedMap())
}

// TestUnregisterPreserveState verifies sleeping fields keep their values
// and wake with them on re-registration.
func TestUnregisterPreserveState(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterFields(field.Definition{Key: "step2.color", Initial: "red"}))
	_, err := e.SetValue("step2.color", "blue")
	require.NoError(t, err)

	require.NoError(t, e.UnregisterFields(true, "step2.color"))
	v, ok := e.GetValue("step2.color")
	require.True(t, ok, "preserved value stays in the snapshot")
	assert.Equal(t, "blue", v)

	// Updates to the sleeping field are rejected.
	_, err = e.SetValue("step2.color", "green")
	assert.Error(t, err)

	// Waking up under preferLocalOverride keeps the dirty local value.
	require.NoError(t, e.RegisterFields(field.Definition{Key: "step2.color", Initial: "red"}))
	v, _ = e.GetValue("step2.color")
	assert.Equal(t, "blue", v)
	assert.True(t, e.Snapshot().Dirty("step2.color"))
	requireCountersConsistent(t, e)
}

// TestUnregisterDropState verifies a plain unregister erases all traces.
func TestUnregisterDropState(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterFields(field.Definition{Key: "tmp", Validate: nonEmpty}))
	_, err := e.SetValue("tmp", "")
	require.NoError(t, err)
	require.Equal(t, 1, e.Snapshot().ErrorCount())

	require.NoError(t, e.UnregisterFields(false, "tmp"))
	snap := e.Snapshot()
	_, ok := snap.Value("tmp")
	assert.False(t, ok)
	assert.False(t, snap.Validated("tmp"))
	assert.Zero(t, snap.ErrorCount())
	assert.Zero(t, snap.DirtyCount())
	requireCountersConsistent(t, e)
}

// TestReRegisterPolicy verifies the two re-registration value policies.
func TestReRegisterPolicy(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterFields(
		field.Definition{Key: "local", Initial: "v1"},
		field.Definition{Key: "declared", Initial: "v1", Policy: field.PreferDeclaredDefault},
	))
	_, err := e.SetValues(map[string]interface{}{"local": "edited", "declared": "edited"})
	require.NoError(t, err)

	require.NoError(t, e.RegisterFields(
		field.Definition{Key: "local", Initial: "v2"},
		field.Definition{Key: "declared", Initial: "v2", Policy: field.PreferDeclaredDefault},
	))

	v, _ := e.GetValue("local")
	assert.Equal(t, "edited", v, "preferLocalOverride keeps the dirty value")
	v, _ = e.GetValue("declared")
	assert.Equal(t, "v2", v, "preferDeclaredDefault applies the new initial")

	// A clean field always takes the new default.
	require.NoError(t, e.RegisterFields(field.Definition{Key: "clean", Initial: "v1"}))
	require.NoError(t, e.RegisterFields(field.Definition{Key: "clean", Initial: "v2"}))
	v, _ = e.GetValue("clean")
	assert.Equal(t, "v2", v)
	requireCountersConsistent(t, e)
}

// TestAsyncValidation verifies the debounce pipeline: validating interim
// state, counter movement, and the settled result.
func TestAsyncValidation(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterFields(field.Definition{
		Key:      "user",
		Debounce: 50 * time.Millisecond,
		ValidateAsync: func(ctx context.Context, value interface{}) error {
			if value == "taken" {
				return format.NewTokenError("not_allowed", nil)
			}
			return nil
		},
	}))

	_, err := e.SetValue("user", "taken")
	require.NoError(t, err)
	assert.True(t, e.Snapshot().Validation("user").IsValidating())
	assert.Equal(t, 1, e.Snapshot().PendingCount())

	require.Eventually(t, func() bool {
		return e.Snapshot().Validation("user").IsInvalid()
	}, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, e.Snapshot().PendingCount())
	assert.Equal(t, 1, e.Snapshot().ErrorCount())
	requireCountersConsistent(t, e)

	_, err = e.SetValue("user", "free")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		snap := e.Snapshot()
		return snap.Validation("user").IsValid() && !snap.Validation("user").IsValidating()
	}, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, e.Snapshot().ErrorCount())
	requireCountersConsistent(t, e)
}

// TestAsyncDebounceCoalesces verifies rapid successive updates trigger the
// async validator only once.
func TestAsyncDebounceCoalesces(t *testing.T) {
	e := newTestEngine(t)
	var runs atomic.Int32
	require.NoError(t, e.RegisterFields(field.Definition{
		Key:      "q",
		Debounce: 50 * time.Millisecond,
		ValidateAsync: func(ctx context.Context, value interface{}) error {
			runs.Add(1)
			return nil
		},
	}))

	for i := 0; i < 5; i++ {
		_, err := e.SetValue("q", i)
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		return e.Snapshot().PendingCount() == 0
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), runs.Load(), "only the last update's task should fire")
}

// TestSubmitValid verifies the happy path hands a value copy to OnValid.
func TestSubmitValid(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterFields(field.Definition{Key: "name", Initial: "anon", Validate: nonEmpty}))

	var got map[string]interface{}
	err := e.Submit(context.Background(), ff.SubmitOptions{
		OnValid: func(ctx context.Context, values map[string]interface{}) error {
			got = values
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"name": "anon"}, got)
	assert.False(t, e.Snapshot().Submitting(), "submitting flag cleared afterwards")
}

// TestSubmitInvalid verifies OnError receives the validations and the
// submit itself does not error.
func TestSubmitInvalid(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterFields(field.Definition{Key: "name", Validate: nonEmpty}))

	var calledValid bool
	var gotValidations map[string]pubstate.ValidationResult
	err := e.Submit(context.Background(), ff.SubmitOptions{
		OnValid: func(context.Context, map[string]interface{}) error { calledValid = true; return nil },
		OnError: func(validations map[string]pubstate.ValidationResult) { gotValidations = validations },
	})
	require.NoError(t, err)
	assert.False(t, calledValid)
	require.Contains(t, gotValidations, "name")
	assert.True(t, gotValidations["name"].IsInvalid())
}

// TestSubmitCallbackError verifies an OnValid failure propagates.
func TestSubmitCallbackError(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterFields(field.Definition{Key: "k", Initial: 1}))

	wantErr := format.NewTokenError("boom", nil)
	err := e.Submit(context.Background(), ff.SubmitOptions{
		OnValid: func(context.Context, map[string]interface{}) error { return wantErr },
	})
	assert.ErrorIs(t, err, wantErr)
}

// TestSubmitDebounce verifies a second submit inside the debounce window is
// silently suppressed.
func TestSubmitDebounce(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterFields(field.Definition{Key: "k", Initial: 1}))

	calls := 0
	opts := ff.SubmitOptions{
		Debounce: time.Hour,
		OnValid:  func(context.Context, map[string]interface{}) error { calls++; return nil },
	}
	require.NoError(t, e.Submit(context.Background(), opts))
	require.NoError(t, e.Submit(context.Background(), opts))
	assert.Equal(t, 1, calls)
}

// TestSubmitWaitForPending verifies the decision waits for async
// validations to drain.
func TestSubmitWaitForPending(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterFields(field.Definition{
		Key:      "user",
		Debounce: 5 * time.Millisecond,
		ValidateAsync: func(ctx context.Context, value interface{}) error {
			time.Sleep(10 * time.Millisecond)
			return nil
		},
	}))
	_, err := e.SetValue("user", "x")
	require.NoError(t, err)

	var got map[string]interface{}
	err = e.Submit(context.Background(), ff.SubmitOptions{
		WaitForPending: true,
		OnValid: func(ctx context.Context, values map[string]interface{}) error {
			got = values
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "x", got["user"])
	assert.Zero(t, e.Snapshot().PendingCount())
}

// TestSubmitWaitAborted verifies context cancellation aborts the wait.
func TestSubmitWaitAborted(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterFields(field.Definition{
		Key:      "slow",
		Debounce: time.Hour,
		ValidateAsync: func(ctx context.Context, value interface{}) error {
			return nil
		},
	}))
	_, err := e.SetValue("slow", 1)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = e.Submit(ctx, ff.SubmitOptions{
		WaitForPending: true,
		OnValid:        func(context.Context, map[string]interface{}) error { return nil },
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// TestBindField verifies one-way and two-way mirroring plus the loop guard.
func TestBindField(t *testing.T) {
	src := newTestEngine(t)
	dst := newTestEngine(t)
	require.NoError(t, src.RegisterFields(field.Definition{Key: "email"}))
	require.NoError(t, dst.RegisterFields(field.Definition{Key: "contact"}))

	_, err := src.SetValue("email", "a@b.c")
	require.NoError(t, err)

	unbind, err := dst.BindField("contact", src, "email", true)
	require.NoError(t, err)

	// Binding seeds the target immediately.
	v, _ := dst.GetValue("contact")
	assert.Equal(t, "a@b.c", v)

	// Forward direction.
	_, err = src.SetValue("email", "x@y.z")
	require.NoError(t, err)
	v, _ = dst.GetValue("contact")
	assert.Equal(t, "x@y.z", v)

	// Backward direction.
	_, err = dst.SetValue("contact", "back@y.z")
	require.NoError(t, err)
	v, _ = src.GetValue("email")
	assert.Equal(t, "back@y.z", v)

	// Once both sides agree, further mirroring is suppressed.
	srcVersion := src.Snapshot().Version()
	dstVersion := dst.Snapshot().Version()
	_, err = src.SetValue("email", "back@y.z")
	require.NoError(t, err)
	assert.Equal(t, srcVersion+1, src.Snapshot().Version(), "only the direct batch commits")
	assert.Equal(t, dstVersion, dst.Snapshot().Version(), "equal values are not mirrored")

	unbind()
	_, err = src.SetValue("email", "after@unbind")
	require.NoError(t, err)
	v, _ = dst.GetValue("contact")
	assert.Equal(t, "back@y.z", v)

	// Binding an unregistered target fails.
	_, err = dst.BindField("ghost", src, "email", false)
	assert.Error(t, err)
}

// TestBindFieldRejectsSelf verifies an engine cannot be its own binding
// source: the mirror write would re-enter the engine under its own lock.
func TestBindFieldRejectsSelf(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterFields(
		field.Definition{Key: "a"},
		field.Definition{Key: "b"},
	))

	_, err := e.BindField("a", e, "b", false)
	require.Error(t, err)
	var configErr *ffErrors.ConfigError
	assert.ErrorAs(t, err, &configErr)
}

// TestPersistenceRoundTrip verifies fire-and-forget saves, sensitive-field
// filtering, and rehydration into a fresh engine.
func TestPersistenceRoundTrip(t *testing.T) {
	adapter := persist.NewMemoryAdapter()

	e1 := newTestEngine(t, ff.WithFormID("signup"), ff.WithPersistAdapter(adapter))
	require.NoError(t, e1.RegisterFields(
		field.Definition{Key: "email"},
		field.Definition{Key: "password", Sensitive: true},
	))
	_, err := e1.SetValues(map[string]interface{}{"email": "a@b.c", "password": "hunter2"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		values, found, loadErr := adapter.Load(context.Background(), "signup")
		return loadErr == nil && found && values["email"] == "a@b.c"
	}, 2*time.Second, 10*time.Millisecond)

	values, _, err := adapter.Load(context.Background(), "signup")
	require.NoError(t, err)
	_, hasPassword := values["password"]
	assert.False(t, hasPassword, "sensitive values never reach the adapter")

	e2 := newTestEngine(t, ff.WithFormID("signup"), ff.WithPersistAdapter(adapter))
	require.NoError(t, e2.RegisterFields(
		field.Definition{Key: "email"},
		field.Definition{Key: "password", Sensitive: true},
	))
	require.NoError(t, e2.HydrateFromPersistence(context.Background()))
	v, _ := e2.GetValue("email")
	assert.Equal(t, "a@b.c", v)
	_, ok := e2.GetValue("password")
	assert.False(t, ok)
}

// spanRecordingProvider adapts an SDK tracer provider with an in-memory
// span recorder to the engine's provider interface.
type spanRecordingProvider struct {
	tp *sdktrace.TracerProvider
}

func (p spanRecordingProvider) GetTracer(name string, opts ...trace.TracerOption) trace.Tracer {
	return p.tp.Tracer(name, opts...)
}

func (p spanRecordingProvider) Shutdown(ctx context.Context) error { return p.tp.Shutdown(ctx) }

// TestSpansRedactSensitiveValues verifies batch and submit spans are
// emitted and that sensitive field values never appear in span attributes.
func TestSpansRedactSensitiveValues(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	e := newTestEngine(t, ff.WithTracerProvider(spanRecordingProvider{tp: tp}))

	require.NoError(t, e.RegisterFields(
		field.Definition{Key: "email"},
		field.Definition{Key: "password", Sensitive: true},
	))
	_, err := e.SetValues(map[string]interface{}{"email": "a@b.c", "password": "hunter2"})
	require.NoError(t, err)
	require.NoError(t, e.Submit(context.Background(), ff.SubmitOptions{
		OnValid: func(context.Context, map[string]interface{}) error { return nil },
	}))

	var batchSpan, submitSpan sdktrace.ReadOnlySpan
	for _, span := range recorder.Ended() {
		switch span.Name() {
		case "formflow.apply_batch":
			batchSpan = span
		case "formflow.submit":
			submitSpan = span
		}
	}
	require.NotNil(t, batchSpan, "batch application must emit a span")
	require.NotNil(t, submitSpan, "submit must emit a span")

	attrs := make(map[string]string)
	for _, kv := range batchSpan.Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "a@b.c", attrs["email"])
	assert.Equal(t, "[REDACTED]", attrs["password"], "sensitive values never reach span attributes")
	assert.Contains(t, attrs, "formflow.form_id")
}

// TestDispose verifies post-dispose mutations fail fast and dispose is
// idempotent.
func TestDispose(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterFields(field.Definition{Key: "k"}))

	require.NoError(t, e.Dispose())
	require.NoError(t, e.Dispose())

	_, err := e.SetValue("k", 1)
	assert.True(t, ffErrors.IsDisposed(err))
	assert.True(t, ffErrors.IsDisposed(e.RegisterFields(field.Definition{Key: "x"})))
	assert.True(t, ffErrors.IsDisposed(e.Reset(ff.ResetToInitialValues)))
	assert.True(t, ffErrors.IsDisposed(e.Submit(context.Background(), ff.SubmitOptions{})))
	assert.False(t, e.Undo())
}

// TestCountersStayConsistent runs a mixed operation sequence and checks the
// incremental counters against a recount after every step.
func TestCountersStayConsistent(t *testing.T) {
	e := newTestEngine(t)
	require.NoError(t, e.RegisterFields(
		field.Definition{Key: "a", Initial: "ia", Validate: nonEmpty},
		field.Definition{Key: "b", Validate: nonEmpty},
		field.Definition{Key: "c", DependsOn: []string{"a"}},
	))
	requireCountersConsistent(t, e)

	steps := []func(){
		func() { _, _ = e.SetValue("a", "") },
		func() { _, _ = e.SetValues(map[string]interface{}{"a": "x", "b": "y"}) },
		func() { _ = e.SetFieldTouched("b", true) },
		func() { _ = e.SetFieldError("c", "manual") },
		func() { _ = e.SetFieldValidating("c", true) },
		func() { _ = e.SetFieldValidating("c", false) },
		func() { _ = e.ResetFields(ff.ResetToInitialValues, "a") },
		func() { _, _ = e.SetValue("b", "") },
		func() { _ = e.UnregisterFields(false, "b") },
		func() { _ = e.RegisterFields(field.Definition{Key: "d", Initial: 1}) },
		func() { _ = e.Reset(ff.ResetToInitialValues) },
	}
	for i, step := range steps {
		step()
		snap := e.Snapshot()
		require.Equalf(t, snap.Recount(), snap.Counters(), "divergence after step %d", i)
	}
}
