package required

import (
	"reflect"
	"strings"

	"github.com/formflow-labs/formflow/internal/paramutil"
	"github.com/formflow-labs/formflow/internal/rule"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/field"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/format"
	pubrule "github.com/formflow-labs/formflow/pkg/formflow/v1/rule"
)

// The init function self-registers the rule with the global default registry.
func init() {
	rule.Register("required", NewRequiredRule)
}

// RequiredRule rejects nil values, empty strings, and empty collections.
// With the optional "allow_whitespace: false" parameter (the default),
// strings consisting solely of whitespace are also rejected.
type RequiredRule struct{}

// NewRequiredRule is the factory function for RequiredRule.
func NewRequiredRule() pubrule.Rule {
	return &RequiredRule{}
}

// Build compiles the rule into a validator.
func (r *RequiredRule) Build(params map[string]interface{}) (field.Validator, error) {
	if err := paramutil.CheckAllowed(params, []string{"allow_whitespace"}); err != nil {
		return nil, err
	}
	allowWhitespace, _, err := paramutil.GetOptionalBool(params, "allow_whitespace")
	if err != nil {
		return nil, err
	}

	return func(value interface{}) error {
		if value == nil {
			return format.NewTokenError("required", nil)
		}
		switch v := value.(type) {
		case string:
			if v == "" {
				return format.NewTokenError("required", nil)
			}
			if !allowWhitespace && strings.TrimSpace(v) == "" {
				return format.NewTokenError("required", nil)
			}
		default:
			rv := reflect.ValueOf(value)
			switch rv.Kind() {
			case reflect.Slice, reflect.Map, reflect.Array:
				if rv.Len() == 0 {
					return format.NewTokenError("required", nil)
				}
			}
		}
		return nil
	}, nil
}
