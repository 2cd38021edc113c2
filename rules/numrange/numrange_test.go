package numrange_test

import (
	"testing"

	"github.com/formflow-labs/formflow/pkg/formflow/v1/format"
	"github.com/formflow-labs/formflow/rules/numrange"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBuildParamValidation covers the parameter contract.
func TestBuildParamValidation(t *testing.T) {
	r := numrange.NewRangeRule()

	_, err := r.Build(nil)
	assert.Error(t, err, "needs at least min or max")

	_, err = r.Build(map[string]interface{}{"min": 10, "max": 1})
	assert.Error(t, err, "min above max")

	_, err = r.Build(map[string]interface{}{"min": 0, "step": 2})
	assert.Error(t, err, "unknown parameter")
}

// TestRangeBounds verifies boundary behavior and tokens across numeric
// widths.
func TestRangeBounds(t *testing.T) {
	v, err := numrange.NewRangeRule().Build(map[string]interface{}{"min": 0, "max": 100})
	require.NoError(t, err)

	testCases := []struct {
		name      string
		value     interface{}
		wantToken string
	}{
		{name: "In Range Int", value: 50},
		{name: "In Range Float", value: 50.5},
		{name: "In Range Int64", value: int64(99)},
		{name: "At Min", value: 0},
		{name: "At Max", value: 100},
		{name: "Below", value: -1, wantToken: "below_minimum"},
		{name: "Above", value: 100.1, wantToken: "above_maximum"},
		{name: "Not A Number", value: "fifty", wantToken: "not_a_number"},
		{name: "Nil Passes"},
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

// TestMinOnly verifies a half-open range.
func TestMinOnly(t *testing.T) {
	v, err := numrange.NewRangeRule().Build(map[string]interface{}{"min": 18})
	require.NoError(t, err)

	assert.Error(t, v(17))
	assert.NoError(t, v(18))
	assert.NoError(t, v(1e9))
}
