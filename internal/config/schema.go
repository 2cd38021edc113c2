package config

import (
	_ "embed" // Required for //go:embed directive
	"fmt"
	"sync"

	ffErrors "github.com/formflow-labs/formflow/pkg/formflow/v1/errors"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// Embed the schema file content directly into the compiled binary.
// The path is relative to the location of this Go source file.
//
//go:embed formflow_schema_v1.0.0.json
var schemaV1Bytes []byte

var (
	// schemaV1Loader holds the schema content loaded from the embedded bytes.
	schemaV1Loader gojsonschema.JSONLoader
	// schemaV1 holds the compiled schema object for efficient validation.
	schemaV1 *gojsonschema.Schema
	// schemaOnce ensures the schema is loaded and compiled only once.
	schemaOnce sync.Once
	// schemaErr stores any error encountered during the one-time schema load.
	schemaErr error
)

// loadSchema ensures the embedded schema is loaded and compiled thread-safely,
// only once. It returns the compiled schema or an error if loading failed.
func loadSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		if len(schemaV1Bytes) == 0 {
			schemaErr = ffErrors.NewConfigError("embedded schema 'formflow_schema_v1.0.0.json' is empty or not found", nil)
			return
		}
		schemaV1Loader = gojsonschema.NewBytesLoader(schemaV1Bytes)
		schemaV1, schemaErr = gojsonschema.NewSchema(schemaV1Loader)
		if schemaErr != nil {
			schemaErr = ffErrors.NewConfigError("failed to compile embedded schema 'formflow_schema_v1.0.0.json'", schemaErr)
		}
	})
	return schemaV1, schemaErr
}

// ValidateWithSchema validates the given YAML document bytes against the
// embedded formflow v1.0.0 schema. It handles the YAML-to-JSON conversion
// required by the validator.
func ValidateWithSchema(documentYAML []byte) error {
	schema, err := loadSchema()
	if err != nil {
		return err
	}

	// The gojsonschema library works with JSON-like data structures, so the
	// input YAML is unmarshalled into a generic interface{} first.
	var jsonData interface{}
	if err := yaml.Unmarshal(documentYAML, &jsonData); err != nil {
		return ffErrors.NewConfigError("failed to parse form config YAML for schema validation", err)
	}

	docLoader := gojsonschema.NewGoLoader(jsonData)

	result, err := schema.Validate(docLoader)
	if err != nil {
		return ffErrors.NewConfigError("schema validation process failed", err)
	}

	if !result.Valid() {
		errMsg := "form config failed JSON schema validation:"
		for _, desc := range result.Errors() {
			field := desc.Field()
			if field == "(root)" || field == "" {
				field = desc.Context().String()
			}
			errMsg += fmt.Sprintf("\n  - Field '%s': %s", field, desc.Description())
		}
		return ffErrors.NewValidationError(errMsg, nil)
	}

	return nil
}
