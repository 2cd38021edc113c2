package redact

import (
	"strings"
	"sync"
)

// RedactedValue replaces sensitive field values in diagnostic payloads and
// CLI output.
const RedactedValue = "[REDACTED]"

// Tracker records which field keys are marked sensitive so their values can
// be excluded from persistence saves and replaced in diagnostic output. It
// is owned by one engine instance.
type Tracker struct {
	mu   sync.RWMutex
	keys map[string]struct{}
}

// NewTracker creates a new, empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		keys: make(map[string]struct{}),
	}
}

// Add marks a field key as sensitive. Empty keys are ignored.
func (t *Tracker) Add(key string) {
	if key == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.keys[key] = struct{}{}
}

// Remove clears the sensitive mark for a key, used when the field is
// unregistered or re-registered without the flag.
func (t *Tracker) Remove(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.keys, key)
}

// IsSensitive reports whether the key is marked sensitive.
func (t *Tracker) IsSensitive(key string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, found := t.keys[key]
	return found
}

// KeySet returns a lowercased copy of the sensitive key set, in the shape
// the tracing attribute redactor consumes.
func (t *Tracker) KeySet() map[string]struct{} {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]struct{}, len(t.keys))
	for key := range t.keys {
		out[strings.ToLower(key)] = struct{}{}
	}
	return out
}

// FilterValues returns a copy of values with every sensitive key removed.
// Used on the persistence path, where sensitive values must never land.
func (t *Tracker) FilterValues(values map[string]interface{}) map[string]interface{} {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]interface{}, len(values))
	for key, value := range values {
		if _, sensitive := t.keys[key]; sensitive {
			continue
		}
		out[key] = value
	}
	return out
}

// RedactValues returns a copy of values with every sensitive value replaced
// by the redaction marker. Used for diagnostic payloads and CLI output,
// where the key itself should remain visible.
func (t *Tracker) RedactValues(values map[string]interface{}) map[string]interface{} {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]interface{}, len(values))
	for key, value := range values {
		if _, sensitive := t.keys[key]; sensitive {
			out[key] = RedactedValue
			continue
		}
		out[key] = value
	}
	return out
}
