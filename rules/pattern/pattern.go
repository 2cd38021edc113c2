package pattern

import (
	"fmt"
	"regexp"

	"github.com/formflow-labs/formflow/internal/paramutil"
	"github.com/formflow-labs/formflow/internal/rule"
	ffErrors "github.com/formflow-labs/formflow/pkg/formflow/v1/errors"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/field"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/format"
	pubrule "github.com/formflow-labs/formflow/pkg/formflow/v1/rule"
)

func init() {
	rule.Register("pattern", NewPatternRule)
}

// PatternRule matches string values against a regular expression. The
// expression is compiled once at Build time, so a malformed pattern fails
// form loading rather than a later batch. Non-string values are rejected
// with "not_a_string"; nil and empty values pass.
type PatternRule struct{}

// NewPatternRule is the factory for PatternRule.
func NewPatternRule() pubrule.Rule {
	return &PatternRule{}
}

// Build compiles the rule into a validator.
func (r *PatternRule) Build(params map[string]interface{}) (field.Validator, error) {
	if err := paramutil.CheckAllowed(params, []string{"regex", "token"}); err != nil {
		return nil, err
	}
	expr, err := paramutil.GetRequiredString(params, "regex")
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, ffErrors.NewValidationError(fmt.Sprintf("pattern rule has invalid regex '%s'", expr), err)
	}
	// The failure token is overridable so forms can emit semantic tokens
	// like "invalid_email" instead of the generic one.
	token, hasToken, err := paramutil.GetOptionalString(params, "token")
	if err != nil {
		return nil, err
	}
	if !hasToken {
		token = "pattern_mismatch"
	}

	return func(value interface{}) error {
		if value == nil {
			return nil
		}
		s, ok := value.(string)
		if !ok {
			return format.NewTokenError("not_a_string", nil)
		}
		if s == "" {
			return nil
		}
		if !re.MatchString(s) {
			return format.NewTokenError(token, map[string]interface{}{"regex": expr})
		}
		return nil
	}, nil
}
