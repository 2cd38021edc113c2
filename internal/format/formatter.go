package format

import (
	"fmt"
	"strings"
	"sync"

	pubformat "github.com/formflow-labs/formflow/pkg/formflow/v1/format"
)

// defaultCatalog maps the tokens of the built-in rules to English message
// templates. Placeholders use {param} syntax and are interpolated from the
// validation result's parameter map.
var defaultCatalog = map[string]string{
	"required":         "This field is required",
	"too_short":        "Must be at least {min} characters",
	"too_long":         "Must be at most {max} characters",
	"not_a_number":     "Must be a number",
	"below_minimum":    "Must be at least {min}",
	"above_maximum":    "Must be at most {max}",
	"not_a_string":     "Must be text",
	"pattern_mismatch": "Invalid format",
	"not_allowed":      "Not an allowed value",
	"schema_violation": "Invalid value: {detail}",
}

// CatalogFormatter is the default message formatter: a token-to-template
// catalog with {param} interpolation. Unknown tokens are interpolated and
// returned verbatim, so validators that return plain error strings pass
// through unchanged.
type CatalogFormatter struct {
	mu      sync.RWMutex
	catalog map[string]string
}

// NewCatalogFormatter creates a formatter over the built-in catalog merged
// with the given overrides. Overrides win on token collision; a nil map is
// allowed.
func NewCatalogFormatter(overrides map[string]string) *CatalogFormatter {
	catalog := make(map[string]string, len(defaultCatalog)+len(overrides))
	for token, template := range defaultCatalog {
		catalog[token] = template
	}
	for token, template := range overrides {
		catalog[token] = template
	}
	return &CatalogFormatter{catalog: catalog}
}

// Format renders the message for a token.
func (f *CatalogFormatter) Format(token string, params map[string]interface{}) string {
	f.mu.RLock()
	template, ok := f.catalog[token]
	f.mu.RUnlock()
	if !ok {
		template = token
	}
	return interpolate(template, params)
}

// Extend adds or replaces catalog entries at runtime.
func (f *CatalogFormatter) Extend(entries map[string]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for token, template := range entries {
		f.catalog[token] = template
	}
}

// interpolate substitutes {name} placeholders with parameter values.
// Placeholders without a matching parameter are left intact.
func interpolate(template string, params map[string]interface{}) string {
	if len(params) == 0 || !strings.Contains(template, "{") {
		return template
	}
	out := template
	for name, value := range params {
		out = strings.ReplaceAll(out, "{"+name+"}", fmt.Sprintf("%v", value))
	}
	return out
}

var _ pubformat.Formatter = (*CatalogFormatter)(nil)
