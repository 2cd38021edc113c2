package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	ffErrors "github.com/formflow-labs/formflow/pkg/formflow/v1/errors"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"
)

// SupportedSchemaVersionConstraint defines the SemVer major version that
// loaded form configs must satisfy. A v1 engine only accepts v1 configs.
const SupportedSchemaVersionConstraint = "v1"

// LoadFormConfig unmarshals the given YAML bytes into a FormConfig,
// validates against the embedded JSON schema, checks schema version
// compatibility, and performs logical validation.
func LoadFormConfig(configYAML []byte, filePathHint string) (*FormConfig, error) {
	if len(configYAML) == 0 {
		return nil, ffErrors.NewConfigError("form config content cannot be empty", nil)
	}

	// Step 1: Validate against the JSON Schema for basic structure and types.
	if err := ValidateWithSchema(configYAML); err != nil {
		return nil, ffErrors.NewConfigError(fmt.Sprintf("form config '%s' failed schema validation", filePathHint), err)
	}

	// Step 2: Unmarshal using strict decoding to catch unknown fields.
	var cfg FormConfig
	if err := yamlUnmarshalStrict(configYAML, &cfg); err != nil {
		return nil, ffErrors.NewConfigError(fmt.Sprintf("failed to parse form config YAML '%s'", filePathHint), err)
	}
	cfg.FilePath = filePathHint

	// Step 3: Check schema version compatibility.
	if cfg.SchemaVersion == "" {
		return nil, ffErrors.NewValidationError(fmt.Sprintf("form config '%s' is missing required 'schemaVersion' field", filePathHint), nil)
	}
	configSemVer := cfg.SchemaVersion
	if !strings.HasPrefix(configSemVer, "v") {
		configSemVer = "v" + configSemVer
	}
	if !semver.IsValid(configSemVer) {
		return nil, ffErrors.NewValidationError(fmt.Sprintf("form config '%s' has invalid 'schemaVersion' format: '%s'", filePathHint, cfg.SchemaVersion), nil)
	}
	if semver.Major(configSemVer) != SupportedSchemaVersionConstraint {
		return nil, ffErrors.NewValidationError(
			fmt.Sprintf("form config '%s' schemaVersion '%s' is not compatible with engine requirement '%s'",
				filePathHint, cfg.SchemaVersion, SupportedSchemaVersionConstraint),
			nil,
		)
	}

	// Step 4: Perform detailed logical validation on the Go struct.
	validationErrs := ValidateFormStructure(&cfg)
	if len(validationErrs) > 0 {
		var errorMessages []string
		for _, vErr := range validationErrs {
			errorMessages = append(errorMessages, vErr.Error())
		}
		combinedMessage := fmt.Sprintf("form config '%s' has %d validation error(s):\n- %s",
			filePathHint, len(errorMessages), strings.Join(errorMessages, "\n- "))
		return nil, ffErrors.NewValidationError(combinedMessage, validationErrs[0])
	}

	return &cfg, nil
}

// LoadFormConfigFromFile is a convenience function to read a form config
// from disk.
func LoadFormConfigFromFile(filePath string) (*FormConfig, error) {
	if filePath == "" {
		return nil, ffErrors.NewConfigError("form config file path cannot be empty", nil)
	}
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return nil, ffErrors.NewConfigError(fmt.Sprintf("failed to get absolute path for '%s'", filePath), err)
	}
	yamlFile, err := os.ReadFile(absPath)
	if err != nil {
		return nil, ffErrors.NewConfigError(fmt.Sprintf("failed to read form config file '%s'", absPath), err)
	}
	return LoadFormConfig(yamlFile, absPath)
}

// yamlUnmarshalStrict provides stricter YAML unmarshalling by disallowing
// unknown fields, so typos in form configs surface as errors early.
func yamlUnmarshalStrict(in []byte, out interface{}) error {
	decoder := yaml.NewDecoder(strings.NewReader(string(in)))
	decoder.KnownFields(true)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("YAML parsing error: %w", err)
	}
	return nil
}
