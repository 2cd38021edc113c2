package oneof

import (
	"github.com/formflow-labs/formflow/internal/paramutil"
	"github.com/formflow-labs/formflow/internal/rule"
	"github.com/formflow-labs/formflow/internal/util"
	ffErrors "github.com/formflow-labs/formflow/pkg/formflow/v1/errors"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/field"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/format"
	pubrule "github.com/formflow-labs/formflow/pkg/formflow/v1/rule"
)

func init() {
	rule.Register("one_of", NewOneOfRule)
}

// OneOfRule restricts a value to an enumerated set. Comparison uses the
// engine's value equality, so numeric widths are interchangeable. nil
// values pass.
type OneOfRule struct{}

// NewOneOfRule is the factory for OneOfRule.
func NewOneOfRule() pubrule.Rule {
	return &OneOfRule{}
}

// Build compiles the rule into a validator.
func (r *OneOfRule) Build(params map[string]interface{}) (field.Validator, error) {
	if err := paramutil.CheckAllowed(params, []string{"values"}); err != nil {
		return nil, err
	}
	values, err := paramutil.GetRequiredSlice(params, "values")
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, ffErrors.NewValidationError("one_of rule requires a non-empty 'values' list", nil)
	}

	return func(value interface{}) error {
		if value == nil {
			return nil
		}
		for _, allowed := range values {
			if util.ValuesEqual(value, allowed) {
				return nil
			}
		}
		return format.NewTokenError("not_allowed", map[string]interface{}{"values": values})
	}, nil
}
