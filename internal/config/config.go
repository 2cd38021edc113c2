package config

import (
	"time"
)

// FormConfig represents the top-level structure of a formflow form YAML file.
type FormConfig struct {
	Name          string `yaml:"name"`
	SchemaVersion string `yaml:"schemaVersion"`
	FormID        string `yaml:"form_id,omitempty"`

	// DefaultMode is the validation mode applied to fields whose own mode
	// is "inherit" or unset. Optional.
	DefaultMode string `yaml:"default_mode,omitempty"`
	// DefaultDebounce is the async validation debounce applied to fields
	// that do not declare their own. Optional, Go duration string.
	DefaultDebounce string `yaml:"default_debounce,omitempty"`

	Fields []FieldSpec `yaml:"fields"`

	// FilePath is an internal field for storing the source file path for
	// context in logging and error messages. It is not parsed from the YAML.
	FilePath string `yaml:"-"`
}

// FieldSpec describes a single field declaration within a form config.
type FieldSpec struct {
	Key       string      `yaml:"key"`
	Initial   interface{} `yaml:"initial,omitempty"`
	Empty     interface{} `yaml:"empty,omitempty"`
	Mode      string      `yaml:"mode,omitempty"`
	Policy    string      `yaml:"policy,omitempty"`
	Debounce  string      `yaml:"debounce,omitempty"`
	DependsOn []string    `yaml:"depends_on,omitempty"`
	Sensitive bool        `yaml:"sensitive,omitempty"`
	Rules     []RuleSpec  `yaml:"rules,omitempty"`
}

// RuleSpec names a registered validator rule and its build parameters.
type RuleSpec struct {
	Rule   string                 `yaml:"rule"`
	Params map[string]interface{} `yaml:"params,omitempty"`
}

// GetDebounce returns the field's configured debounce duration, or 0 if
// unset or invalid.
func (f *FieldSpec) GetDebounce() time.Duration {
	if f.Debounce == "" {
		return 0
	}
	duration, err := time.ParseDuration(f.Debounce)
	if err != nil || duration < 0 {
		return 0
	}
	return duration
}

// GetDefaultDebounce returns the form-wide default debounce duration, or 0
// if unset or invalid.
func (c *FormConfig) GetDefaultDebounce() time.Duration {
	if c.DefaultDebounce == "" {
		return 0
	}
	duration, err := time.ParseDuration(c.DefaultDebounce)
	if err != nil || duration < 0 {
		return 0
	}
	return duration
}
