package required_test

import (
	"testing"

	"github.com/formflow-labs/formflow/rules/required"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRequiredRule exercises the rejection matrix across value types.
func TestRequiredRule(t *testing.T) {
	v, err := required.NewRequiredRule().Build(nil)
	require.NoError(t, err)
	require.NotNil(t, v)

	testCases := []struct {
		name    string
		value   interface{}
		wantErr bool
	}{
		{name: "Nil", value: nil, wantErr: true},
		{name: "Empty String", value: "", wantErr: true},
		{name: "Whitespace Only", value: "   \t", wantErr: true},
		{name: "Non-Empty String", value: "x", wantErr: false},
		{name: "Empty Slice", value: []interface{}{}, wantErr: true},
		{name: "Non-Empty Slice", value: []interface{}{1}, wantErr: false},
		{name: "Empty Map", value: map[string]interface{}{}, wantErr: true},
		{name: "Non-Empty Map", value: map[string]interface{}{"k": 1}, wantErr: false},
		{name: "Zero Number Passes", value: 0, wantErr: false},
		{name: "False Passes", value: false, wantErr: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := v(tc.value)
			if tc.wantErr {
				require.Error(t, err)
				assert.Equal(t, "required", err.Error())
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

// TestAllowWhitespace verifies the parameter flips whitespace handling.
func TestAllowWhitespace(t *testing.T) {
	v, err := required.NewRequiredRule().Build(map[string]interface{}{"allow_whitespace": true})
	require.NoError(t, err)

	assert.NoError(t, v("   "))
	assert.Error(t, v(""), "the empty string stays rejected")
}

// TestUnknownParam verifies unexpected parameters fail the build.
func TestUnknownParam(t *testing.T) {
	_, err := required.NewRequiredRule().Build(map[string]interface{}{"bogus": 1})
	assert.Error(t, err)
}
