// Package pipeline sequences the evidence phases, applies quality gates,
// retries with escalation, and persists state on every transition.
//
// The pipeline is a linear state machine: planning → search → validation →
// synthesis → analysis → complete, with failed as the other terminal state.
// A phase never advances without its gate having evaluated. On a gate
// failure the phase is retried with a refined instruction appended to the
// same query; when the retry budget is exhausted the pipeline fails with a
// phase-specific error, keeping every partial output collected so far.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/radfares/nurseRN-sub000/internal/config"
	"github.com/radfares/nurseRN-sub000/internal/contextstore"
	"github.com/radfares/nurseRN-sub000/internal/gates"
	"github.com/radfares/nurseRN-sub000/internal/orchestrator"
	"github.com/radfares/nurseRN-sub000/internal/registry"
)

// Context-store coordinates of the persisted pipeline state.
const (
	StateScope = "pipeline"
	StateKey   = "state"
)

// Metadata keys a validation collaborator uses to report its citation sets,
// as comma-separated ID lists.
const (
	MetaCitedIDs    = "cited_ids"
	MetaVerifiedIDs = "verified_ids"
)

// Pipeline executes the phased evidence workflow for one deployment.
// Construct with New; Execute may be called for many topics sequentially.
type Pipeline struct {
	reg        *registry.Registry
	orch       *orchestrator.Orchestrator
	store      *contextstore.Store
	engine     *gates.Engine
	agents     config.PhaseAgents
	maxRetries int

	cancelled atomic.Bool
}

// New creates a pipeline. maxRetries is the per-phase refined-retry budget
// (0 means a single attempt per phase).
func New(reg *registry.Registry, orch *orchestrator.Orchestrator, store *contextstore.Store, engine *gates.Engine, agents config.PhaseAgents, maxRetries int) (*Pipeline, error) {
	if reg == nil || orch == nil || store == nil || engine == nil {
		return nil, fmt.Errorf("registry, orchestrator, store, and gate engine are all required")
	}
	if maxRetries < 0 {
		return nil, fmt.Errorf("maxRetries must be >= 0, got %d", maxRetries)
	}

	return &Pipeline{
		reg:        reg,
		orch:       orch,
		store:      store,
		engine:     engine,
		agents:     agents,
		maxRetries: maxRetries,
	}, nil
}

// RequestCancel asks the pipeline to stop. The flag is checked between
// phases only, never preemptively mid-call. Safe from any goroutine.
func (p *Pipeline) RequestCancel() {
	p.cancelled.Store(true)
}

// Execute runs the full pipeline for a topic and returns the terminal state.
// It never returns a Go error: every failure mode, including missing
// collaborators, is expressed in the returned state, and partial outputs
// are preserved for diagnosis or resumption.
func (p *Pipeline) Execute(ctx context.Context, topic string) *State {
	state := &State{
		WorkflowID:  uuid.New().String(),
		Topic:       topic,
		Current:     PhasePlanning,
		Outputs:     make(map[string]string),
		StartedAtMs: time.Now().UnixMilli(),
	}
	p.cancelled.Store(false)
	p.orch.SetSession(state.WorkflowID)

	if missing := p.missingAgents(); len(missing) > 0 {
		return p.fail(ctx, state, fmt.Sprintf("Missing required agents: %s", strings.Join(missing, ", ")))
	}

	for _, phase := range workPhases {
		if p.cancelled.Load() {
			return p.fail(ctx, state, fmt.Sprintf("cancellation requested before %s phase", phase))
		}

		state.Current = phase
		p.persist(ctx, state)

		record, ok := p.runPhase(ctx, state, phase)
		state.History = append(state.History, record)

		if !ok {
			last := record.Attempts[len(record.Attempts)-1]
			reason := last.GateMessage
			if last.Error != "" {
				reason = last.Error
			}
			return p.fail(ctx, state, fmt.Sprintf("%s phase failed after %d attempt(s): %s", phase, len(record.Attempts), reason))
		}

		state.Outputs[string(phase)] = record.Output
		p.persist(ctx, state)
	}

	state.Current = PhaseComplete
	p.persist(ctx, state)

	p.logEvent("pipeline_complete", map[string]interface{}{
		"workflow_id": state.WorkflowID,
		"phases":      len(state.History),
	})
	return state
}

// runPhase executes one phase with its retry loop. Returns the phase record
// and whether the phase passed its gate within the budget.
func (p *Pipeline) runPhase(ctx context.Context, state *State, phase Phase) (PhaseRecord, bool) {
	record := PhaseRecord{Phase: phase}
	agent := p.agentFor(phase)
	query := p.buildQuery(state, phase)

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		result := p.orch.ExecuteSingle(ctx, agent, query, state.WorkflowID, nil)

		att := Attempt{
			Query:         query,
			Content:       result.Content,
			Error:         result.Error,
			AttemptedAtMs: time.Now().UnixMilli(),
		}

		if !result.Success {
			// No output to gate; the collaborator failure consumes the attempt.
			att.GateName = p.gateFor(phase)
			att.GateMessage = "gate not evaluated: collaborator failed"
			record.Attempts = append(record.Attempts, att)
			query = refineQuery(query, result.Error)
			continue
		}

		verdict := p.evaluateGate(state, phase, result)
		att.GateName = p.gateFor(phase)
		att.GatePassed = verdict.Passed
		att.GateMessage = verdict.Message
		record.Attempts = append(record.Attempts, att)

		p.logEvent("gate_evaluated", map[string]interface{}{
			"workflow_id": state.WorkflowID,
			"phase":       string(phase),
			"gate":        att.GateName,
			"passed":      verdict.Passed,
			"attempt":     attempt + 1,
		})

		if verdict.Passed {
			record.Output = result.Content
			record.Passed = true
			return record, true
		}

		query = refineQuery(query, verdict.Message)
	}

	return record, false
}

// evaluateGate runs the phase's gate over the collaborator result, and for
// the validation phase also records the grounding check on the audit trail.
func (p *Pipeline) evaluateGate(state *State, phase Phase, result *orchestrator.CollaboratorResult) gates.Result {
	gateName := p.gateFor(phase)
	content := p.gateContent(phase, result)

	verdict, err := p.engine.Run(gateName, content)
	if err != nil {
		// An unknown gate is a wiring bug; fail the verdict, not the process.
		return gates.Result{Passed: false, Message: err.Error()}
	}

	if phase == PhaseValidation {
		cited := splitIDs(result.Metadata[MetaCitedIDs])
		verified := splitIDs(result.Metadata[MetaVerifiedIDs])
		if auditor := p.orch.Auditor(p.agentFor(phase)); auditor != nil {
			_ = auditor.LogGroundingCheck(cited, verified, !verdict.Passed)
		}
	}

	return verdict
}

// gateContent builds the keyword content handed to the phase's gate.
func (p *Pipeline) gateContent(phase Phase, result *orchestrator.CollaboratorResult) map[string]interface{} {
	switch phase {
	case PhasePlanning:
		return map[string]interface{}{"question": result.Content}
	case PhaseValidation:
		return map[string]interface{}{
			"cited_ids":    splitIDs(result.Metadata[MetaCitedIDs]),
			"verified_ids": splitIDs(result.Metadata[MetaVerifiedIDs]),
		}
	default:
		return map[string]interface{}{"text": result.Content}
	}
}

// gateFor maps a phase to its gate name.
func (p *Pipeline) gateFor(phase Phase) string {
	switch phase {
	case PhasePlanning:
		return gates.GatePICOTComplete
	case PhaseValidation:
		return gates.GateCitationGrounding
	default:
		return gates.GateMinSubstance
	}
}

// agentFor maps a phase to its configured collaborator name.
func (p *Pipeline) agentFor(phase Phase) string {
	switch phase {
	case PhasePlanning:
		return p.agents.Planning
	case PhaseSearch:
		return p.agents.Search
	case PhaseValidation:
		return p.agents.Validation
	case PhaseSynthesis:
		return p.agents.Synthesis
	case PhaseAnalysis:
		return p.agents.Analysis
	default:
		return ""
	}
}

// buildQuery composes a phase's query from the topic and prior outputs.
func (p *Pipeline) buildQuery(state *State, phase Phase) string {
	switch phase {
	case PhasePlanning:
		return fmt.Sprintf("Formulate a complete PICOT question for the topic: %s", state.Topic)
	case PhaseSearch:
		return fmt.Sprintf("Find primary evidence for this clinical question:\n%s", state.Output(PhasePlanning))
	case PhaseValidation:
		return fmt.Sprintf("Verify every citation in these search results against its source:\n%s", state.Output(PhaseSearch))
	case PhaseSynthesis:
		return fmt.Sprintf("Synthesize the verified evidence into an appraisal:\n%s", state.Output(PhaseValidation))
	case PhaseAnalysis:
		return fmt.Sprintf("Analyze this synthesis and draft practice recommendations:\n%s", state.Output(PhaseSynthesis))
	default:
		return state.Topic
	}
}

// missingAgents returns the configured phase agents that are not registered.
func (p *Pipeline) missingAgents() []string {
	var missing []string
	for _, phase := range workPhases {
		name := p.agentFor(phase)
		if name == "" {
			missing = append(missing, fmt.Sprintf("%s (unconfigured)", phase))
			continue
		}
		if _, ok := p.reg.Get(name); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// fail moves the pipeline to the failed terminal state, preserving all
// partial outputs, and persists it.
func (p *Pipeline) fail(ctx context.Context, state *State, reason string) *State {
	state.Current = PhaseFailed
	state.Error = reason
	p.persist(ctx, state)

	p.logEvent("pipeline_failed", map[string]interface{}{
		"workflow_id": state.WorkflowID,
		"error":       reason,
		"outputs":     len(state.Outputs),
	})
	return state
}

// persist writes the state to the context store. Persistence failures are
// logged and do not interrupt execution - the in-memory state remains the
// source of truth for the running process.
func (p *Pipeline) persist(ctx context.Context, state *State) {
	if err := p.store.Store(ctx, state.WorkflowID, StateScope, StateKey, state); err != nil {
		log.Printf("[Pipeline] Failed to persist state for workflow %s: %v", state.WorkflowID, err)
	}
}

// refineQuery appends a refinement instruction derived from the failure to
// the same query, for the next attempt.
func refineQuery(query, reason string) string {
	return fmt.Sprintf("%s\n\nRefine your previous answer; it was rejected because: %s", query, reason)
}

// splitIDs parses a comma-separated ID list, dropping empty elements.
func splitIDs(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			ids = append(ids, trimmed)
		}
	}
	return ids
}

// logEvent logs a structured event in JSON format.
func (p *Pipeline) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "pipeline"
	data["event_type"] = eventType

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Pipeline] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
