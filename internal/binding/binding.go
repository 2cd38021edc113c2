package binding

import (
	"sync"
	"time"

	"github.com/formflow-labs/formflow/internal/util"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/events"
	pubstate "github.com/formflow-labs/formflow/pkg/formflow/v1/state"
)

// Endpoint is the slice of an engine a binding needs: current value reads,
// value writes, and the change stream. Both sides of a binding satisfy it.
type Endpoint interface {
	GetValue(key string) (interface{}, bool)
	SetValue(key string, value interface{}) error
	Subscribe(listener pubstate.Listener) func()
}

// Manager mirrors fields between engine instances. Each binding subscribes
// to the source's change stream and writes through to the target whenever
// the two values differ; the inequality guard is the sole loop-prevention
// mechanism, which is sufficient for one- and two-way pairs.
type Manager struct {
	local  Endpoint
	bus    events.Bus
	formID string

	mu       sync.Mutex
	unbinds  map[uint64]func()
	nextID   uint64
	disposed bool
}

// NewManager creates a binding manager for the given local engine.
// bus may be nil.
func NewManager(local Endpoint, bus events.Bus, formID string) *Manager {
	return &Manager{
		local:   local,
		bus:     bus,
		formID:  formID,
		unbinds: make(map[uint64]func()),
	}
}

// Bind mirrors source's sourceKey into the local targetKey. With twoWay a
// mirrored subscription writes local changes of targetKey back to the
// source under the same inequality guard. The returned function removes
// the binding; it is safe to call more than once.
func (m *Manager) Bind(targetKey string, source Endpoint, sourceKey string, twoWay bool) func() {
	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		return func() {}
	}
	m.nextID++
	id := m.nextID
	m.mu.Unlock()

	forward := source.Subscribe(func(snap *pubstate.Snapshot) {
		if !snap.HasChanged(sourceKey) {
			return
		}
		m.mirror(source, sourceKey, m.local, targetKey)
	})
	var backward func()
	if twoWay {
		backward = m.local.Subscribe(func(snap *pubstate.Snapshot) {
			if !snap.HasChanged(targetKey) {
				return
			}
			m.mirror(m.local, targetKey, source, sourceKey)
		})
	}

	// Seed the target with the source's current value.
	m.mirror(source, sourceKey, m.local, targetKey)

	var once sync.Once
	unbind := func() {
		once.Do(func() {
			forward()
			if backward != nil {
				backward()
			}
			m.mu.Lock()
			delete(m.unbinds, id)
			m.mu.Unlock()
		})
	}

	m.mu.Lock()
	if m.disposed {
		m.mu.Unlock()
		unbind()
		return func() {}
	}
	m.unbinds[id] = unbind
	m.mu.Unlock()
	return unbind
}

// SetBus replaces the diagnostic event bus.
func (m *Manager) SetBus(bus events.Bus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bus = bus
}

// mirror writes from's value of fromKey into to's toKey when the two
// differ. Equal values produce zero writes, which is what breaks
// write-back loops.
func (m *Manager) mirror(from Endpoint, fromKey string, to Endpoint, toKey string) {
	sourceValue, ok := from.GetValue(fromKey)
	if !ok {
		return
	}
	targetValue, _ := to.GetValue(toKey)
	if util.ValuesEqual(sourceValue, targetValue) {
		return
	}
	if err := to.SetValue(toKey, sourceValue); err != nil {
		return
	}
	m.mu.Lock()
	bus := m.bus
	m.mu.Unlock()
	if bus != nil {
		bus.Emit(events.Event{
			Type:      events.BindingApplied,
			Timestamp: time.Now(),
			FormID:    m.formID,
			FieldKey:  toKey,
		})
	}
}

// Dispose removes every binding. Further Bind calls are no-ops.
func (m *Manager) Dispose() {
	m.mu.Lock()
	unbinds := make([]func(), 0, len(m.unbinds))
	for _, fn := range m.unbinds {
		unbinds = append(unbinds, fn)
	}
	m.unbinds = map[uint64]func(){}
	m.disposed = true
	m.mu.Unlock()
	for _, fn := range unbinds {
		fn()
	}
}
