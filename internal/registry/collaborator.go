// Package registry defines the collaborator contract consumed by the NurseRN
// core and the explicit registry that holds collaborators for one process.
//
// A collaborator is any external unit of work (typically an LLM-backed agent)
// invoked through the dispatch gateway. The core never inspects a
// collaborator's internals - it only sees the capability the collaborator
// declares and the single run method that capability implies.
//
// There is deliberately no package-level default registry: a Registry is
// constructed once at process start and passed by reference to everything
// that needs it.
package registry

import "context"

// Capability declares which run method a collaborator implements.
// Every collaborator declares exactly one; the dispatch gateway switches on
// the declared capability instead of probing for methods at call time.
type Capability string

const (
	// CapabilityGroundedRun marks collaborators whose output is checked
	// against source material before being returned. Dispatch prefers this
	// capability and surfaces its tagged outcome directly.
	CapabilityGroundedRun Capability = "grounded_run"

	// CapabilityInnerAgentRun marks collaborators that wrap a nested agent
	// and delegate execution to it.
	CapabilityInnerAgentRun Capability = "inner_agent_run"

	// CapabilityDirectRun marks collaborators with a plain run method.
	CapabilityDirectRun Capability = "direct_run"
)

// Validate checks if the Capability is a valid enum value.
func (c Capability) Validate() error {
	switch c {
	case CapabilityGroundedRun, CapabilityInnerAgentRun, CapabilityDirectRun:
		return nil
	default:
		return errUnknownCapability(c)
	}
}

// Collaborator is the minimal contract every registered unit of work meets.
// A collaborator additionally implements the runner interface matching its
// declared capability; Registry.Register enforces the pairing.
type Collaborator interface {
	// Name returns the unique collaborator name used for dispatch,
	// context-store scoping, and audit identity.
	Name() string

	// Capability declares which runner interface this collaborator implements.
	Capability() Capability
}

// RunOutput is the value returned by direct and inner-agent runs.
type RunOutput struct {
	Content  string            // Main response text
	Metadata map[string]string // Collaborator-specific extras, carried through untouched
}

// DirectRunner is the runner interface for CapabilityDirectRun.
type DirectRunner interface {
	// Run executes the collaborator against the query. Blocking; honors ctx.
	Run(ctx context.Context, query string, opts map[string]string) (*RunOutput, error)
}

// InnerAgentRunner is the runner interface for CapabilityInnerAgentRun.
// The gateway resolves the inner agent once per dispatch and runs it exactly
// once, so composing layers cannot double-execute the underlying call.
type InnerAgentRunner interface {
	// InnerAgent returns the nested agent that performs the actual work.
	InnerAgent() DirectRunner
}

// GroundedRunner is the runner interface for CapabilityGroundedRun.
type GroundedRunner interface {
	// RunGrounded executes the collaborator and reports a tagged outcome.
	// Grounding violations are a variant of the outcome, not a Go error;
	// the error return is reserved for call failures (network, provider).
	RunGrounded(ctx context.Context, query string, opts map[string]string) (Outcome, error)
}
