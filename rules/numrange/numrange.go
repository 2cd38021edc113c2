package numrange

import (
	"github.com/formflow-labs/formflow/internal/paramutil"
	"github.com/formflow-labs/formflow/internal/rule"
	ffErrors "github.com/formflow-labs/formflow/pkg/formflow/v1/errors"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/field"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/format"
	pubrule "github.com/formflow-labs/formflow/pkg/formflow/v1/rule"
)

func init() {
	rule.Register("range", NewRangeRule)
}

// RangeRule bounds a numeric value. All integer and float widths are
// accepted and compared by magnitude, matching the engine's numeric
// compatibility rule. Non-numeric values are rejected with "not_a_number";
// nil values pass.
type RangeRule struct{}

// NewRangeRule is the factory for RangeRule.
func NewRangeRule() pubrule.Rule {
	return &RangeRule{}
}

// Build compiles the rule into a validator.
func (r *RangeRule) Build(params map[string]interface{}) (field.Validator, error) {
	if err := paramutil.CheckAllowed(params, []string{"min", "max"}); err != nil {
		return nil, err
	}
	min, hasMin, err := paramutil.GetOptionalFloat(params, "min")
	if err != nil {
		return nil, err
	}
	max, hasMax, err := paramutil.GetOptionalFloat(params, "max")
	if err != nil {
		return nil, err
	}
	if !hasMin && !hasMax {
		return nil, ffErrors.NewValidationError("range rule requires at least one of 'min' or 'max'", nil)
	}
	if hasMin && hasMax && min > max {
		return nil, ffErrors.NewValidationError("range rule 'min' cannot exceed 'max'", nil)
	}

	return func(value interface{}) error {
		if value == nil {
			return nil
		}
		n, ok := toFloat(value)
		if !ok {
			return format.NewTokenError("not_a_number", nil)
		}
		if hasMin && n < min {
			return format.NewTokenError("below_minimum", map[string]interface{}{"min": min, "actual": n})
		}
		if hasMax && n > max {
			return format.NewTokenError("above_maximum", map[string]interface{}{"max": max, "actual": n})
		}
		return nil
	}, nil
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
