// Package paramutil provides helpers for validating and extracting the
// parameter maps declared on validator rules in a form configuration.
// Rules should use these instead of ad-hoc type assertions so that
// misconfiguration produces consistent ValidationErrors at load time.
package paramutil

import (
	"fmt"

	ffErrors "github.com/formflow-labs/formflow/pkg/formflow/v1/errors"
)

// GetRequiredString retrieves a required string parameter from the params map.
// It returns the string value and a nil error if the key exists and the value
// is a string. Otherwise, it returns an empty string and a ValidationError.
func GetRequiredString(params map[string]interface{}, key string) (string, error) {
	value, exists := params[key]
	if !exists {
		return "", ffErrors.NewValidationError(fmt.Sprintf("missing required parameter '%s'", key), nil)
	}

	strValue, ok := value.(string)
	if !ok {
		return "", ffErrors.NewValidationError(fmt.Sprintf("parameter '%s' must be a string, got %T", key, value), nil)
	}

	return strValue, nil
}

// GetOptionalString retrieves an optional string parameter from the params map.
// Returns the value and true if found and correct type, empty string and false
// if not found, or error if the key exists but has the wrong type.
func GetOptionalString(params map[string]interface{}, key string) (string, bool, error) {
	value, exists := params[key]
	if !exists {
		return "", false, nil
	}

	strValue, ok := value.(string)
	if !ok {
		return "", false, ffErrors.NewValidationError(fmt.Sprintf("parameter '%s' must be a string, got %T", key, value), nil)
	}

	return strValue, true, nil
}

// GetRequiredSlice retrieves a required slice parameter from the params map.
// The YAML decoder unmarshals lists into []interface{}, so that is the type
// checked for.
func GetRequiredSlice(params map[string]interface{}, key string) ([]interface{}, error) {
	value, exists := params[key]
	if !exists {
		return nil, ffErrors.NewValidationError(fmt.Sprintf("missing required parameter '%s'", key), nil)
	}

	sliceValue, ok := value.([]interface{})
	if !ok {
		return nil, ffErrors.NewValidationError(fmt.Sprintf("parameter '%s' must be a list/slice, got %T", key, value), nil)
	}

	return sliceValue, nil
}

// GetOptionalMap retrieves an optional parameter that should be a
// map[string]interface{}. Handles conversion from map[interface{}]interface{}
// if necessary (common from YAML).
func GetOptionalMap(params map[string]interface{}, key string) (map[string]interface{}, bool, error) {
	value, exists := params[key]
	if !exists {
		return nil, false, nil
	}

	mapValue, ok := value.(map[string]interface{})
	if ok {
		return mapValue, true, nil
	}

	if genericMap, isGenericMap := value.(map[interface{}]interface{}); isGenericMap {
		convertedMap := make(map[string]interface{}, len(genericMap))
		for k, v := range genericMap {
			strKey, ok := k.(string)
			if !ok {
				return nil, false, ffErrors.NewValidationError(fmt.Sprintf("parameter '%s' must be a map with string keys, found key of type %T", key, k), nil)
			}
			convertedMap[strKey] = v
		}
		return convertedMap, true, nil
	}

	return nil, false, ffErrors.NewValidationError(fmt.Sprintf("parameter '%s' must be a map, got %T", key, value), nil)
}

// GetOptionalInt retrieves an optional integer parameter, attempting coercion
// from compatible types. Returns the int value and true if found and
// coercible, 0 and false if not found, or error if the key exists but the
// value type is incompatible or conversion overflows.
func GetOptionalInt(params map[string]interface{}, key string) (int, bool, error) {
	value, exists := params[key]
	if !exists {
		return 0, false, nil
	}

	switch v := value.(type) {
	case int:
		return v, true, nil
	case int8:
		return int(v), true, nil
	case int16:
		return int(v), true, nil
	case int32:
		return int(v), true, nil
	case int64:
		intValue := int(v)
		// Check for overflow on 32-bit systems where int might be smaller than int64.
		if int64(intValue) != v {
			return 0, false, ffErrors.NewValidationError(fmt.Sprintf("parameter '%s' value %v overflows standard int type", key, v), nil)
		}
		return intValue, true, nil
	case float32:
		// Allow conversion only if it represents a whole number.
		if v == float32(int(v)) {
			return int(v), true, nil
		}
		return 0, false, ffErrors.NewValidationError(fmt.Sprintf("parameter '%s' is a non-integer float (%v), cannot convert to int", key, v), nil)
	case float64:
		if v == float64(int(v)) {
			return int(v), true, nil
		}
		return 0, false, ffErrors.NewValidationError(fmt.Sprintf("parameter '%s' is a non-integer float (%v), cannot convert to int", key, v), nil)
	default:
		return 0, false, ffErrors.NewValidationError(fmt.Sprintf("parameter '%s' must be an integer or whole number, got %T", key, value), nil)
	}
}

// GetOptionalFloat retrieves an optional numeric parameter widened to
// float64. Integer values coerce losslessly.
func GetOptionalFloat(params map[string]interface{}, key string) (float64, bool, error) {
	value, exists := params[key]
	if !exists {
		return 0, false, nil
	}

	switch v := value.(type) {
	case float64:
		return v, true, nil
	case float32:
		return float64(v), true, nil
	case int:
		return float64(v), true, nil
	case int8:
		return float64(v), true, nil
	case int16:
		return float64(v), true, nil
	case int32:
		return float64(v), true, nil
	case int64:
		return float64(v), true, nil
	default:
		return 0, false, ffErrors.NewValidationError(fmt.Sprintf("parameter '%s' must be a number, got %T", key, value), nil)
	}
}

// GetOptionalBool retrieves an optional boolean parameter.
func GetOptionalBool(params map[string]interface{}, key string) (bool, bool, error) {
	value, exists := params[key]
	if !exists {
		return false, false, nil
	}

	boolValue, ok := value.(bool)
	if !ok {
		return false, false, ffErrors.NewValidationError(fmt.Sprintf("parameter '%s' must be a boolean, got %T", key, value), nil)
	}

	return boolValue, true, nil
}

// CheckRequired validates that all keys in the 'required' list exist in the
// params map. Returns a ValidationError if any required key is missing.
func CheckRequired(params map[string]interface{}, required []string) error {
	for _, key := range required {
		if _, exists := params[key]; !exists {
			return ffErrors.NewValidationError(fmt.Sprintf("missing required parameter '%s'", key), nil)
		}
	}
	return nil
}

// CheckAllowed validates that only keys from the 'allowed' list exist in the
// params map. Returns a ValidationError if any unexpected key is found.
// Skips the check if 'allowed' is empty.
func CheckAllowed(params map[string]interface{}, allowed []string) error {
	if len(allowed) == 0 {
		return nil
	}

	allowedSet := make(map[string]struct{}, len(allowed))
	for _, key := range allowed {
		allowedSet[key] = struct{}{}
	}

	for key := range params {
		if _, isAllowed := allowedSet[key]; !isAllowed {
			return ffErrors.NewValidationError(fmt.Sprintf("unknown parameter '%s' provided", key), nil)
		}
	}
	return nil
}
