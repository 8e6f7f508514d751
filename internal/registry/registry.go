package registry

import (
	"fmt"
	"sort"
	"sync"
)

// errUnknownCapability keeps the enum error message in one place.
func errUnknownCapability(c Capability) error {
	return fmt.Errorf("unknown capability: %q", c)
}

// Registry holds the collaborators available to one process.
// It is constructed once at startup and passed by reference - there is no
// package-level default instance. Thread-safe.
type Registry struct {
	mu            sync.RWMutex
	collaborators map[string]Collaborator
}

// NewRegistry creates an empty collaborator registry.
func NewRegistry() *Registry {
	return &Registry{
		collaborators: make(map[string]Collaborator),
	}
}

// Register adds a collaborator to the registry.
// Rejects empty names, duplicate names, invalid capabilities, and
// collaborators whose declared capability does not match the runner
// interface they implement. Catching the mismatch here means dispatch can
// trust the declaration at call time.
func (r *Registry) Register(c Collaborator) error {
	name := c.Name()
	if name == "" {
		return fmt.Errorf("collaborator name cannot be empty")
	}

	if err := c.Capability().Validate(); err != nil {
		return fmt.Errorf("collaborator %q: %w", name, err)
	}

	if err := checkRunner(c); err != nil {
		return fmt.Errorf("collaborator %q: %w", name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.collaborators[name]; exists {
		return fmt.Errorf("collaborator %q is already registered", name)
	}

	r.collaborators[name] = c
	return nil
}

// Get returns the collaborator registered under name.
// The second return value reports whether the name was found.
func (r *Registry) Get(name string) (Collaborator, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.collaborators[name]
	return c, ok
}

// Names returns the registered collaborator names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.collaborators))
	for name := range r.collaborators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered collaborators.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.collaborators)
}

// checkRunner verifies the declared capability against the implemented
// runner interface.
func checkRunner(c Collaborator) error {
	switch c.Capability() {
	case CapabilityGroundedRun:
		if _, ok := c.(GroundedRunner); !ok {
			return fmt.Errorf("declares grounded_run but does not implement GroundedRunner")
		}
	case CapabilityInnerAgentRun:
		if _, ok := c.(InnerAgentRunner); !ok {
			return fmt.Errorf("declares inner_agent_run but does not implement InnerAgentRunner")
		}
	case CapabilityDirectRun:
		if _, ok := c.(DirectRunner); !ok {
			return fmt.Errorf("declares direct_run but does not implement DirectRunner")
		}
	}
	return nil
}
