package persist

import "context"

// Adapter defines the interface for persisting form values between
// sessions. Implementations store a flat map of field key to
// JSON-serializable value, keyed by an opaque form ID, independent of any
// validation or dirty/touched metadata.
//
// The engine calls Save fire-and-forget after each value-changing commit
// and assumes at most one operation in flight per form. Failures are
// logged and reported on the event bus but never retried by the core.
type Adapter interface {
	// Save stores the full value map for the form, replacing any previous
	// snapshot of it.
	Save(ctx context.Context, formID string, values map[string]interface{}) error

	// Load retrieves the persisted value map for the form. It returns
	// found=false (and no error) when nothing has been saved yet.
	Load(ctx context.Context, formID string) (values map[string]interface{}, found bool, err error)

	// Clear removes any persisted values for the form.
	Clear(ctx context.Context, formID string) error
}
