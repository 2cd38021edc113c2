package errors

import (
	"errors"
	"fmt"
)

// --- Formflow Core Error Types ---

// ConfigError represents an error encountered during the loading, parsing,
// or validation of a form configuration or engine options.
type ConfigError struct {
	Message string
	Cause   error
}

func NewConfigError(message string, cause error) *ConfigError {
	return &ConfigError{Message: message, Cause: cause}
}
func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("configuration error: %s", e.Message)
}
func (e *ConfigError) Unwrap() error { return e.Cause }

// ValidationError indicates that some input (e.g., form config structure,
// schema version, rule parameters) failed validation checks at load time.
// It is unrelated to field-level validation results, which are values,
// not errors.
type ValidationError struct {
	Message string
	Cause   error
}

func NewValidationError(message string, cause error) *ValidationError {
	return &ValidationError{Message: message, Cause: cause}
}
func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("validation error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}
func (e *ValidationError) Unwrap() error { return e.Cause }

// TypeMismatchError signifies that a value supplied in a batch update
// disagrees with the field's inferred type. Numeric kinds are mutually
// compatible and never produce this error against each other.
type TypeMismatchError struct {
	FieldKey string
	Expected string
	Actual   string
}

func NewTypeMismatchError(fieldKey, expected, actual string) *TypeMismatchError {
	return &TypeMismatchError{FieldKey: fieldKey, Expected: expected, Actual: actual}
}
func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type mismatch for field '%s': expected %s, got %s", e.FieldKey, e.Expected, e.Actual)
}

// MissingFieldError indicates that an update targeted a key that is not
// present in the field registry. It is collected per field in a BatchResult
// and never aborts a batch.
type MissingFieldError struct {
	FieldKey string
}

func NewMissingFieldError(fieldKey string) *MissingFieldError {
	return &MissingFieldError{FieldKey: fieldKey}
}
func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("field not registered: %s", e.FieldKey)
}

// RequiredValueError is returned by the non-null value accessor when the
// requested field holds no value. It is distinguishable from a field that
// is present but invalid.
type RequiredValueError struct {
	FieldKey string
}

func NewRequiredValueError(fieldKey string) *RequiredValueError {
	return &RequiredValueError{FieldKey: fieldKey}
}
func (e *RequiredValueError) Error() string {
	return fmt.Sprintf("required value for field '%s' is not set", e.FieldKey)
}

// RuleNotFoundError indicates that a validator rule referenced by a form
// configuration could not be found in the rule registry.
type RuleNotFoundError struct {
	RuleName string
}

func NewRuleNotFoundError(ruleName string) *RuleNotFoundError {
	return &RuleNotFoundError{RuleName: ruleName}
}
func (e *RuleNotFoundError) Error() string {
	return fmt.Sprintf("validator rule not found: %s", e.RuleName)
}

// DisposedError indicates an operation was attempted on an engine that has
// already been disposed.
type DisposedError struct{}

func NewDisposedError() *DisposedError { return &DisposedError{} }
func (e *DisposedError) Error() string { return "engine has been disposed" }

// IsTypeMismatch checks if an error is a TypeMismatchError using errors.As.
func IsTypeMismatch(err error) bool {
	var tmErr *TypeMismatchError
	return errors.As(err, &tmErr)
}

// IsMissingField checks if an error is a MissingFieldError using errors.As.
func IsMissingField(err error) bool {
	var mfErr *MissingFieldError
	return errors.As(err, &mfErr)
}

// IsRequiredValue checks if an error is a RequiredValueError using errors.As.
func IsRequiredValue(err error) bool {
	var rvErr *RequiredValueError
	return errors.As(err, &rvErr)
}

// IsDisposed checks if an error is a DisposedError using errors.As.
func IsDisposed(err error) bool {
	var dErr *DisposedError
	return errors.As(err, &dErr)
}
