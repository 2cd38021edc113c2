package rule

import (
	"github.com/formflow-labs/formflow/pkg/formflow/v1/field"
)

// Rule is the public interface all validator rules implement. A rule is a
// factory: given the parameters declared in a form configuration, it builds
// the value-erased validator closure that is attached to the field at
// registration time, once, rather than being re-wrapped per validation.
type Rule interface {
	// Build compiles the rule parameters into a validator. It returns a
	// formflow errors.ConfigError (or ValidationError) when the parameters
	// are malformed, so misconfiguration surfaces at load time, never
	// during a batch.
	Build(params map[string]interface{}) (field.Validator, error)
}

// RuleFactory is a function type that creates new instances of a specific Rule.
// Each rule registers a factory function of this type.
type RuleFactory func() Rule

// Registry defines the public interface for the engine's rule registry. It
// provides a mechanism for registering and retrieving rule factories by name.
type Registry interface {
	// Get retrieves the factory function for a given rule name.
	// It returns an errors.RuleNotFoundError if the name is not registered.
	Get(name string) (RuleFactory, error)

	// Register associates a rule name with its factory function.
	// This should be concurrency-safe. It returns an error if the name is
	// empty, the factory is nil, or the name is already registered.
	Register(name string, factory RuleFactory) error

	// List returns a slice containing the names of all registered rules.
	// The order of names in the returned slice is not guaranteed.
	List() []string
}
