package persist

import (
	"context"
	"sync"

	"github.com/formflow-labs/formflow/internal/util"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/persist"
)

// MemoryAdapter is a volatile persistence adapter backed by an in-process
// map. It is the default for tests and for engines that only want the
// snapshot restore behavior within one process lifetime. All reads and
// writes deep-copy, so callers never alias stored state.
type MemoryAdapter struct {
	mu    sync.RWMutex
	forms map[string]map[string]interface{}
}

// NewMemoryAdapter creates an empty MemoryAdapter.
func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		forms: make(map[string]map[string]interface{}),
	}
}

// Save stores a deep copy of values under formID.
func (a *MemoryAdapter) Save(ctx context.Context, formID string, values map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	copied := util.DeepCopy(values).(map[string]interface{})
	a.mu.Lock()
	defer a.mu.Unlock()
	a.forms[formID] = copied
	return nil
}

// Load returns a deep copy of the stored values for formID. The second
// return is false when nothing was saved for the form.
func (a *MemoryAdapter) Load(ctx context.Context, formID string) (map[string]interface{}, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	stored, ok := a.forms[formID]
	if !ok {
		return nil, false, nil
	}
	return util.DeepCopy(stored).(map[string]interface{}), true, nil
}

// Clear removes the stored values for formID.
func (a *MemoryAdapter) Clear(ctx context.Context, formID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.forms, formID)
	return nil
}

var _ persist.Adapter = (*MemoryAdapter)(nil)
