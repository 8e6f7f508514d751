// Package gates provides pass/fail quality evaluation of a phase's output
// against structural and content rules.
//
// Gates are pure functions over structured and unstructured text: they never
// call collaborators, touch storage, or keep state, so they are safe to run
// speculatively. A failing gate is a verdict, not an abort - the pipeline
// decides whether to retry with a refined instruction, proceed with a
// warning, or fail the phase.
package gates

import (
	"fmt"
	"sync"
)

// Result is a gate verdict.
type Result struct {
	Passed  bool                   // Whether the content met the gate's rules
	Message string                 // Human-readable summary of the verdict
	Details map[string]interface{} // Rule-specific findings (missing parts, unverified IDs)
}

// GateFunc evaluates free-form keyword content and returns a verdict.
// Implementations must be pure: no side effects, no external calls.
type GateFunc func(content map[string]interface{}) Result

// Engine holds named gates. Construct once with NewEngine and pass by
// reference; there is no package-level default. Thread-safe.
type Engine struct {
	mu    sync.RWMutex
	gates map[string]GateFunc
}

// NewEngine creates an engine preloaded with the built-in gates:
// picot_complete, citation_grounding, and min_substance.
func NewEngine() *Engine {
	e := &Engine{gates: make(map[string]GateFunc)}
	e.gates[GatePICOTComplete] = picotComplete
	e.gates[GateCitationGrounding] = citationGrounding
	e.gates[GateMinSubstance] = minSubstance
	return e
}

// Register adds a custom gate under name. Rejects empty names, nil funcs,
// and name collisions (built-ins included).
func (e *Engine) Register(name string, fn GateFunc) error {
	if name == "" {
		return fmt.Errorf("gate name cannot be empty")
	}
	if fn == nil {
		return fmt.Errorf("gate %q: function cannot be nil", name)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.gates[name]; exists {
		return fmt.Errorf("gate %q is already registered", name)
	}
	e.gates[name] = fn
	return nil
}

// Run evaluates the named gate against content.
// Returns an error only for unknown gate names; every evaluation outcome,
// including failure, is expressed in the Result.
func (e *Engine) Run(name string, content map[string]interface{}) (Result, error) {
	e.mu.RLock()
	fn, ok := e.gates[name]
	e.mu.RUnlock()

	if !ok {
		return Result{}, fmt.Errorf("unknown gate: %q", name)
	}

	return fn(content), nil
}

// Names returns the registered gate names (unordered).
func (e *Engine) Names() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.gates))
	for name := range e.gates {
		names = append(names, name)
	}
	return names
}
