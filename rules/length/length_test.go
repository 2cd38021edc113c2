package length_test

import (
	"errors"
	"testing"

	"github.com/formflow-labs/formflow/pkg/formflow/v1/format"
	"github.com/formflow-labs/formflow/rules/length"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBuildParamValidation covers the parameter contract.
func TestBuildParamValidation(t *testing.T) {
	r := length.NewLengthRule()

	_, err := r.Build(nil)
	assert.Error(t, err, "needs at least min or max")

	_, err = r.Build(map[string]interface{}{"min": 5, "max": 2})
	assert.Error(t, err, "min above max")

	_, err = r.Build(map[string]interface{}{"min": 1, "typo": 2})
	assert.Error(t, err, "unknown parameter")

	_, err = r.Build(map[string]interface{}{"min": "five"})
	assert.Error(t, err, "non-integer min")
}

// TestStringLength verifies rune counting and the boundary tokens.
func TestStringLength(t *testing.T) {
	v, err := length.NewLengthRule().Build(map[string]interface{}{"min": 2, "max": 4})
	require.NoError(t, err)

	testCases := []struct {
		name      string
		value     interface{}
		wantToken string
	}{
		{name: "Too Short", value: "a", wantToken: "too_short"},
		{name: "At Min", value: "ab"},
		{name: "At Max", value: "abcd"},
		{name: "Too Long", value: "abcde", wantToken: "too_long"},
		{name: "Runes Not Bytes", value: "æøå"},
		{name: "Nil Passes", value: nil},
		{name: "Scalar Ignored", value: 42},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := v(tc.value)
			if tc.wantToken == "" {
				assert.NoError(t, err)
				return
			}
			var tokenErr *format.TokenError
			require.ErrorAs(t, err, &tokenErr)
			assert.Equal(t, tc.wantToken, tokenErr.Token)
		})
	}
}

// TestListLength verifies the rule applies to slice values.
func TestListLength(t *testing.T) {
	v, err := length.NewLengthRule().Build(map[string]interface{}{"max": 2})
	require.NoError(t, err)

	assert.NoError(t, v([]interface{}{1, 2}))
	assert.Error(t, v([]interface{}{1, 2, 3}))
}

// TestTokenParams verifies the failure carries the bound and actual length.
func TestTokenParams(t *testing.T) {
	v, err := length.NewLengthRule().Build(map[string]interface{}{"min": 8})
	require.NoError(t, err)

	var tokenErr *format.TokenError
	require.True(t, errors.As(v("short"), &tokenErr))
	assert.Equal(t, 8, tokenErr.Params["min"])
	assert.Equal(t, 5, tokenErr.Params["actual"])
}
