package config

import (
	"fmt"

	ffErrors "github.com/formflow-labs/formflow/pkg/formflow/v1/errors"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/field"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/rule"
)

// BuildDefinitions compiles a validated FormConfig into runtime field
// definitions, resolving each declared rule through the given registry and
// chaining the built validators in declaration order. The first failing
// validator in the chain wins.
func BuildDefinitions(cfg *FormConfig, registry rule.Registry) ([]field.Definition, error) {
	if registry == nil {
		return nil, ffErrors.NewConfigError("rule registry cannot be nil", nil)
	}

	defs := make([]field.Definition, 0, len(cfg.Fields))
	for i := range cfg.Fields {
		spec := &cfg.Fields[i]

		validators := make([]field.Validator, 0, len(spec.Rules))
		for _, ruleSpec := range spec.Rules {
			factory, err := registry.Get(ruleSpec.Rule)
			if err != nil {
				return nil, ffErrors.NewConfigError(fmt.Sprintf("field '%s': unknown rule '%s'", spec.Key, ruleSpec.Rule), err)
			}
			validator, err := factory().Build(ruleSpec.Params)
			if err != nil {
				return nil, ffErrors.NewConfigError(fmt.Sprintf("field '%s': failed to build rule '%s'", spec.Key, ruleSpec.Rule), err)
			}
			validators = append(validators, validator)
		}

		def := field.Definition{
			Key:       spec.Key,
			Initial:   spec.Initial,
			Empty:     spec.Empty,
			Validate:  chainValidators(validators),
			Debounce:  spec.GetDebounce(),
			DependsOn: append([]string(nil), spec.DependsOn...),
			Mode:      field.Mode(spec.Mode),
			Policy:    field.Policy(spec.Policy),
			Sensitive: spec.Sensitive,
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// chainValidators folds a validator list into a single validator that stops
// at the first failure. nil is returned for an empty list so the registry
// treats the field as having no sync validator at all.
func chainValidators(validators []field.Validator) field.Validator {
	switch len(validators) {
	case 0:
		return nil
	case 1:
		return validators[0]
	}
	return func(value interface{}) error {
		for _, v := range validators {
			if err := v(value); err != nil {
				return err
			}
		}
		return nil
	}
}
