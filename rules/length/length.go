package length

import (
	"reflect"
	"unicode/utf8"

	"github.com/formflow-labs/formflow/internal/paramutil"
	"github.com/formflow-labs/formflow/internal/rule"
	ffErrors "github.com/formflow-labs/formflow/pkg/formflow/v1/errors"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/field"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/format"
	pubrule "github.com/formflow-labs/formflow/pkg/formflow/v1/rule"
)

func init() {
	rule.Register("length", NewLengthRule)
}

// LengthRule bounds the length of a string (counted in runes) or of a
// list value. At least one of "min"/"max" must be given. nil values pass;
// combine with "required" to reject them.
type LengthRule struct{}

// NewLengthRule is the factory for LengthRule.
func NewLengthRule() pubrule.Rule {
	return &LengthRule{}
}

// Build compiles the rule into a validator.
func (r *LengthRule) Build(params map[string]interface{}) (field.Validator, error) {
	if err := paramutil.CheckAllowed(params, []string{"min", "max"}); err != nil {
		return nil, err
	}
	min, hasMin, err := paramutil.GetOptionalInt(params, "min")
	if err != nil {
		return nil, err
	}
	max, hasMax, err := paramutil.GetOptionalInt(params, "max")
	if err != nil {
		return nil, err
	}
	if !hasMin && !hasMax {
		return nil, ffErrors.NewValidationError("length rule requires at least one of 'min' or 'max'", nil)
	}
	if hasMin && hasMax && min > max {
		return nil, ffErrors.NewValidationError("length rule 'min' cannot exceed 'max'", nil)
	}

	return func(value interface{}) error {
		if value == nil {
			return nil
		}
		var n int
		switch v := value.(type) {
		case string:
			n = utf8.RuneCountInString(v)
		default:
			rv := reflect.ValueOf(value)
			switch rv.Kind() {
			case reflect.Slice, reflect.Array, reflect.Map:
				n = rv.Len()
			default:
				// Length is meaningless for scalars; the rule does not apply.
				return nil
			}
		}
		if hasMin && n < min {
			return format.NewTokenError("too_short", map[string]interface{}{"min": min, "actual": n})
		}
		if hasMax && n > max {
			return format.NewTokenError("too_long", map[string]interface{}{"max": max, "actual": n})
		}
		return nil
	}, nil
}
