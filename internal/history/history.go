package history

import (
	"sync"

	pubstate "github.com/formflow-labs/formflow/pkg/formflow/v1/state"
)

// DefaultBound is the maximum number of history entries kept.
const DefaultBound = 50

// Manager is the snapshot-based undo/redo stack. It observes every commit
// and records only value-changing ones: because all value mutations are
// copy-on-write, a values-map identity check against the previously
// recorded entry is sufficient to skip validation-only and touched-only
// commits.
type Manager struct {
	mu        sync.Mutex
	entries   []*pubstate.Snapshot
	cursor    int
	bound     int
	restoring bool
}

// NewManager creates a history manager seeded with the initial snapshot as
// its first entry. bound <= 0 selects DefaultBound.
func NewManager(initial *pubstate.Snapshot, bound int) *Manager {
	if bound <= 0 {
		bound = DefaultBound
	}
	m := &Manager{bound: bound}
	if initial != nil {
		m.entries = append(m.entries, initial)
	}
	return m
}

// Observe examines a committed snapshot. While a restore is replaying
// history the commit is skipped; otherwise, if the snapshot carries a new
// values map, any future entries beyond the cursor are truncated, the
// snapshot is appended, and the oldest entry is evicted once the bound is
// exceeded (without advancing the cursor, since eviction shifts the list
// under it).
func (m *Manager) Observe(snap *pubstate.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.restoring {
		return
	}
	if len(m.entries) > 0 && snap.SameValues(m.entries[m.cursor]) {
		return
	}

	m.entries = append(m.entries[:m.cursor+1], snap)
	if len(m.entries) > m.bound {
		m.entries = m.entries[1:]
	} else {
		m.cursor++
	}
}

// CanUndo reports whether a prior entry exists.
func (m *Manager) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor > 0
}

// CanRedo reports whether an undone entry exists ahead of the cursor.
func (m *Manager) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cursor < len(m.entries)-1
}

// Undo moves the cursor back one entry and returns the snapshot to
// restore. The second return is false when there is nothing to undo.
func (m *Manager) Undo() (*pubstate.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cursor <= 0 {
		return nil, false
	}
	m.cursor--
	return m.entries[m.cursor], true
}

// Redo moves the cursor forward one entry and returns the snapshot to
// restore. The second return is false when there is nothing to redo.
func (m *Manager) Redo() (*pubstate.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cursor >= len(m.entries)-1 {
		return nil, false
	}
	m.cursor++
	return m.entries[m.cursor], true
}

// BeginRestore marks the manager as replaying history so the restore's own
// commit is not re-recorded. It must be paired with EndRestore.
func (m *Manager) BeginRestore() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restoring = true
}

// EndRestore clears the replaying flag.
func (m *Manager) EndRestore() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restoring = false
}

// Reset discards all history and reseeds with the given snapshot, used
// after a full form reset.
func (m *Manager) Reset(initial *pubstate.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = m.entries[:0]
	if initial != nil {
		m.entries = append(m.entries, initial)
	}
	m.cursor = 0
}

// SetBound changes the history depth. Shrinking below the current length
// evicts the oldest entries, keeping the cursor on the same snapshot.
func (m *Manager) SetBound(bound int) {
	if bound <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bound = bound
	for len(m.entries) > m.bound {
		m.entries = m.entries[1:]
		if m.cursor > 0 {
			m.cursor--
		}
	}
}

// Len returns the number of recorded entries.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
