package redact_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/formflow-labs/formflow/internal/redact"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewTracker ensures the constructor returns a non-nil, empty tracker.
func TestNewTracker(t *testing.T) {
	tracker := redact.NewTracker()
	require.NotNil(t, tracker, "NewTracker should not return nil")
	assert.False(t, tracker.IsSensitive("password"))
}

// TestAddRemoveIsSensitive verifies tracking of field keys.
func TestAddRemoveIsSensitive(t *testing.T) {
	tracker := redact.NewTracker()

	tracker.Add("password")
	tracker.Add("api.token")

	assert.True(t, tracker.IsSensitive("password"))
	assert.True(t, tracker.IsSensitive("api.token"))
	assert.False(t, tracker.IsSensitive("email"))

	tracker.Remove("password")
	assert.False(t, tracker.IsSensitive("password"))
	assert.True(t, tracker.IsSensitive("api.token"))

	// Removing an untracked key is harmless.
	tracker.Remove("ghost")
}

// TestFilterValues verifies sensitive keys are dropped entirely, as used in
// the persistence path.
func TestFilterValues(t *testing.T) {
	tracker := redact.NewTracker()
	tracker.Add("password")

	values := map[string]interface{}{
		"email":    "a@b.c",
		"password": "hunter2",
	}

	filtered := tracker.FilterValues(values)
	assert.Equal(t, map[string]interface{}{"email": "a@b.c"}, filtered)
	assert.Equal(t, "hunter2", values["password"], "input map must not be mutated")
}

// TestRedactValues verifies sensitive values are replaced by the redaction
// marker while the keys stay visible, as used in diagnostic output.
func TestRedactValues(t *testing.T) {
	tracker := redact.NewTracker()
	tracker.Add("password")

	redacted := tracker.RedactValues(map[string]interface{}{
		"email":    "a@b.c",
		"password": "hunter2",
	})

	assert.Equal(t, "a@b.c", redacted["email"])
	assert.Equal(t, redact.RedactedValue, redacted["password"])
}

// TestConcurrentAccess exercises the tracker from multiple goroutines to
// catch data races under the race detector.
func TestConcurrentAccess(t *testing.T) {
	tracker := redact.NewTracker()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(n int) {
			defer wg.Done()
			tracker.Add(fmt.Sprintf("key-%d", n))
		}(i)
		go func(n int) {
			defer wg.Done()
			tracker.IsSensitive(fmt.Sprintf("key-%d", n))
			tracker.FilterValues(map[string]interface{}{"key-0": 1})
		}(i)
	}
	wg.Wait()

	for i := 0; i < 10; i++ {
		assert.True(t, tracker.IsSensitive(fmt.Sprintf("key-%d", i)))
	}
}
