package rule

import (
	"fmt"
	"sync"

	// Import public interfaces the internal registry deals with.
	ffErrors "github.com/formflow-labs/formflow/pkg/formflow/v1/errors"
	"github.com/formflow-labs/formflow/pkg/formflow/v1/rule" // Import the public rule package
)

// StaticRegistry implements the rule.Registry interface using a compile-time map.
// It provides thread-safe registration and retrieval of rule factories.
// This is the default registry implementation used by formflow if no other
// registry is provided.
type StaticRegistry struct {
	// factories maps the registered rule name (string) to its factory function.
	factories map[string]rule.RuleFactory
	// mu provides read/write locking to ensure thread-safe access to the factories map.
	mu sync.RWMutex
}

// NewStaticRegistry creates a new, empty static registry.
// Rules must be registered using the Register method before they can be retrieved.
func NewStaticRegistry() *StaticRegistry {
	return &StaticRegistry{
		factories: make(map[string]rule.RuleFactory),
	}
}

// Register associates a rule name with its factory function.
// This function is typically called from the init() function of a rule package
// or explicitly by the application wiring the registry. It enforces that rule
// names and factories are valid and prevents duplicate registrations.
func (r *StaticRegistry) Register(name string, factory rule.RuleFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if name == "" {
		return ffErrors.NewConfigError("rule registration error: name cannot be empty", nil)
	}
	if factory == nil {
		return ffErrors.NewConfigError(fmt.Sprintf("rule registration error for '%s': factory cannot be nil", name), nil)
	}
	if _, exists := r.factories[name]; exists {
		return ffErrors.NewConfigError(fmt.Sprintf("rule registration error: duplicate rule name '%s'", name), nil)
	}

	r.factories[name] = factory
	return nil
}

// Get retrieves the factory function for a given rule name.
// It returns the factory and a nil error if found.
// If the rule name is not registered, it returns nil and a RuleNotFoundError.
func (r *StaticRegistry) Get(name string) (rule.RuleFactory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, exists := r.factories[name]
	if !exists {
		return nil, ffErrors.NewRuleNotFoundError(name)
	}
	return factory, nil
}

// List returns a slice containing the names of all registered rules.
// The order of names in the returned slice is not guaranteed.
func (r *StaticRegistry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}

// --- Default Global Registry (for compile-time registration via init) ---

var (
	// globalRegistry holds the default registry instance used for package-level
	// registration via the global Register function.
	globalRegistry = NewStaticRegistry()
	// Compile-time check to ensure StaticRegistry correctly implements the
	// public rule.Registry interface.
	_ rule.Registry = (*StaticRegistry)(nil)
)

// Register globally associates a rule name with its factory function in the
// default global registry instance. This is the intended mechanism for rules
// to self-register during program initialization via their init() functions.
// It panics on registration errors (e.g., duplicate name) because init()
// functions run early, and such errors indicate a programming mistake that
// must be fixed.
func Register(name string, factory rule.RuleFactory) {
	if err := globalRegistry.Register(name, factory); err != nil {
		panic(fmt.Errorf("failed to register rule '%s' globally: %w", name, err))
	}
}

// DefaultStaticRegistryGetter provides convenient access to the global static
// registry instance. This allows the main application (`cmd/formflow`) or
// library consumers to easily retrieve the default registry containing
// compile-time registered rules.
var DefaultStaticRegistryGetter rule.Registry = globalRegistry
