package config

import (
	"fmt"
	"regexp"
	"time"

	ffErrors "github.com/formflow-labs/formflow/pkg/formflow/v1/errors"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/field"
)

// Pre-compiled regex for validating field keys. Keys are dot-separated
// identifier segments, so nested paths like "address.street" are valid.
var fieldKeyRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*(\.[a-zA-Z_][a-zA-Z0-9_]*)*$`)

// ValidateFormStructure performs a logical validation of the parsed
// FormConfig. It checks cross-field consistency and valid references,
// rules that cannot be fully expressed in JSON Schema alone. It returns
// a slice of all validation errors found.
func ValidateFormStructure(c *FormConfig) []error {
	var errs []error

	if len(c.Fields) == 0 {
		errs = append(errs, ffErrors.NewValidationError("form config must declare at least one field in 'fields' list", nil))
	}

	if c.DefaultMode != "" {
		if c.DefaultMode == string(field.ModeInherit) {
			errs = append(errs, ffErrors.NewValidationError("'default_mode' cannot be 'inherit'", nil))
		} else if !validMode(c.DefaultMode) {
			errs = append(errs, ffErrors.NewValidationError(fmt.Sprintf("'default_mode' has invalid value: '%s'", c.DefaultMode), nil))
		}
	}
	if c.DefaultDebounce != "" {
		if _, err := time.ParseDuration(c.DefaultDebounce); err != nil {
			errs = append(errs, ffErrors.NewValidationError(fmt.Sprintf("invalid format for 'default_debounce': %v", err), nil))
		}
	}

	fieldKeys := make(map[string]bool)
	for i := range c.Fields {
		spec := &c.Fields[i]
		fieldDisplayName := fmt.Sprintf("field %d", i)
		if spec.Key != "" {
			fieldDisplayName = fmt.Sprintf("field %d ('%s')", i, spec.Key)
		}

		if spec.Key == "" {
			errs = append(errs, ffErrors.NewValidationError(fmt.Sprintf("%s: 'key' is required", fieldDisplayName), nil))
		} else {
			if !fieldKeyRegex.MatchString(spec.Key) {
				errs = append(errs, ffErrors.NewValidationError(fmt.Sprintf("%s: key is not a valid dot-separated identifier", fieldDisplayName), nil))
			}
			if fieldKeys[spec.Key] {
				errs = append(errs, ffErrors.NewValidationError(fmt.Sprintf("%s: duplicate field key found", fieldDisplayName), nil))
			}
			fieldKeys[spec.Key] = true
		}

		if spec.Mode != "" && spec.Mode != string(field.ModeInherit) && !validMode(spec.Mode) {
			errs = append(errs, ffErrors.NewValidationError(fmt.Sprintf("%s: invalid mode '%s'", fieldDisplayName, spec.Mode), nil))
		}
		if spec.Policy != "" && spec.Policy != string(field.PreferLocalOverride) && spec.Policy != string(field.PreferDeclaredDefault) {
			errs = append(errs, ffErrors.NewValidationError(fmt.Sprintf("%s: invalid policy '%s'", fieldDisplayName, spec.Policy), nil))
		}
		if spec.Debounce != "" {
			if d, err := time.ParseDuration(spec.Debounce); err != nil {
				errs = append(errs, ffErrors.NewValidationError(fmt.Sprintf("%s: invalid format for 'debounce': %v", fieldDisplayName, err), nil))
			} else if d < 0 {
				errs = append(errs, ffErrors.NewValidationError(fmt.Sprintf("%s: 'debounce' cannot be negative", fieldDisplayName), nil))
			}
		}

		for _, ruleSpec := range spec.Rules {
			if ruleSpec.Rule == "" {
				errs = append(errs, ffErrors.NewValidationError(fmt.Sprintf("%s: rule entry is missing 'rule' name", fieldDisplayName), nil))
			}
		}
	}

	// Dependency references may target any declared field except the field
	// itself. Cycles among distinct fields are legal; the engine guards
	// against re-validation loops at batch time.
	for i := range c.Fields {
		spec := &c.Fields[i]
		fieldDisplayName := fmt.Sprintf("field %d ('%s')", i, spec.Key)
		for _, dep := range spec.DependsOn {
			if dep == spec.Key {
				errs = append(errs, ffErrors.NewValidationError(fmt.Sprintf("%s: 'depends_on' cannot reference itself", fieldDisplayName), nil))
				continue
			}
			if !fieldKeys[dep] {
				errs = append(errs, ffErrors.NewValidationError(fmt.Sprintf("%s: 'depends_on' references undeclared field '%s'", fieldDisplayName, dep), nil))
			}
		}
	}

	return errs
}

func validMode(m string) bool {
	switch field.Mode(m) {
	case field.ModeAlways, field.ModeOnUserInteraction, field.ModeOnBlur, field.ModeDisabled:
		return true
	}
	return false
}
