package pipeline

import "fmt"

// Phase is a stage of the evidence pipeline.
// Phases move strictly forward; complete and failed are terminal.
type Phase string

const (
	// PhasePlanning formulates the PICOT question from the topic.
	PhasePlanning Phase = "planning"

	// PhaseSearch retrieves evidence for the formulated question.
	PhaseSearch Phase = "search"

	// PhaseValidation verifies the retrieved citations against sources.
	PhaseValidation Phase = "validation"

	// PhaseSynthesis composes the verified evidence into a synthesis.
	PhaseSynthesis Phase = "synthesis"

	// PhaseAnalysis appraises the synthesis and drafts recommendations.
	PhaseAnalysis Phase = "analysis"

	// PhaseComplete is the successful terminal state.
	PhaseComplete Phase = "complete"

	// PhaseFailed is the unsuccessful terminal state.
	PhaseFailed Phase = "failed"
)

// workPhases is the execution order of the non-terminal phases.
var workPhases = []Phase{PhasePlanning, PhaseSearch, PhaseValidation, PhaseSynthesis, PhaseAnalysis}

// Validate checks if the Phase is a valid enum value.
func (p Phase) Validate() error {
	switch p {
	case PhasePlanning, PhaseSearch, PhaseValidation, PhaseSynthesis,
		PhaseAnalysis, PhaseComplete, PhaseFailed:
		return nil
	default:
		return fmt.Errorf("unknown phase: %q", p)
	}
}

// IsTerminal reports whether the phase ends the pipeline.
func (p Phase) IsTerminal() bool {
	return p == PhaseComplete || p == PhaseFailed
}

// Attempt records one collaborator execution and its gate verdict within a
// phase. Both attempts of a retried phase stay visible in the history.
type Attempt struct {
	Query         string `json:"query"`          // The query as actually sent (including any refinement)
	Content       string `json:"content"`        // Collaborator output ("" on failure)
	Error         string `json:"error,omitempty"`
	GateName      string `json:"gate"`
	GatePassed    bool   `json:"gate_passed"`
	GateMessage   string `json:"gate_message"`
	AttemptedAtMs int64  `json:"attempted_at_ms"`
}

// PhaseRecord is the persisted history of one phase.
type PhaseRecord struct {
	Phase    Phase     `json:"phase"`
	Attempts []Attempt `json:"attempts"`
	Output   string    `json:"output,omitempty"` // Accepted output, set when Passed
	Passed   bool      `json:"passed"`
}

// State is the durable pipeline state, persisted to the context store on
// every transition so a crashed process can be diagnosed from the last
// written state. Partial outputs survive failure.
type State struct {
	WorkflowID  string            `json:"workflow_id"`
	Topic       string            `json:"topic"`
	Current     Phase             `json:"current"`
	Outputs     map[string]string `json:"outputs"` // phase name → accepted output
	History     []PhaseRecord     `json:"history"`
	Error       string            `json:"error,omitempty"` // Set when Current == failed
	StartedAtMs int64             `json:"started_at_ms"`
}

// Output returns the accepted output of a completed phase, or "".
func (s *State) Output(phase Phase) string {
	return s.Outputs[string(phase)]
}
