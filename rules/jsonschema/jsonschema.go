package jsonschema

import (
	"github.com/xeipuuv/gojsonschema"

	"github.com/formflow-labs/formflow/internal/paramutil"
	"github.com/formflow-labs/formflow/internal/rule"
	ffErrors "github.com/formflow-labs/formflow/pkg/formflow/v1/errors"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/field"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/format"
	pubrule "github.com/formflow-labs/formflow/pkg/formflow/v1/rule"
)

func init() {
	rule.Register("json_schema", NewJSONSchemaRule)
}

// JSONSchemaRule validates a field value against a JSON Schema fragment
// supplied inline in the rule parameters. The schema is compiled once at
// build time; validation failures surface the first schema error's
// description as the message parameter of a "schema_violation" token.
type JSONSchemaRule struct{}

// NewJSONSchemaRule is the factory for JSONSchemaRule.
func NewJSONSchemaRule() pubrule.Rule {
	return &JSONSchemaRule{}
}

// Build compiles the rule into a validator.
func (r *JSONSchemaRule) Build(params map[string]interface{}) (field.Validator, error) {
	if err := paramutil.CheckAllowed(params, []string{"schema"}); err != nil {
		return nil, err
	}
	schemaDoc, found, err := paramutil.GetOptionalMap(params, "schema")
	if err != nil {
		return nil, err
	}
	if !found || schemaDoc == nil {
		return nil, ffErrors.NewValidationError("json_schema rule requires a 'schema' map parameter", nil)
	}

	schema, compileErr := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaDoc))
	if compileErr != nil {
		return nil, ffErrors.NewValidationError("json_schema rule: failed to compile schema", compileErr)
	}

	return func(value interface{}) error {
		if value == nil {
			return nil
		}
		result, vErr := schema.Validate(gojsonschema.NewGoLoader(value))
		if vErr != nil {
			return format.NewTokenError("schema_violation", map[string]interface{}{
				"detail": vErr.Error(),
			})
		}
		if !result.Valid() {
			detail := ""
			if errs := result.Errors(); len(errs) > 0 {
				detail = errs[0].Description()
			}
			return format.NewTokenError("schema_violation", map[string]interface{}{
				"detail": detail,
			})
		}
		return nil
	}, nil
}
