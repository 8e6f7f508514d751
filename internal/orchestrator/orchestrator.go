// Package orchestrator executes collaborators - singly or in parallel with a
// bounded wait - and persists every outcome into the context store.
//
// ExecuteSingle is the synchronous building block: one envelope round-trip
// through the dispatch gateway, unwrapped into a CollaboratorResult and
// written under (workflow, collaborator, "last_result") regardless of
// outcome. Collaborator failures come back as structured failure results,
// never as Go errors, so callers branch without error handling.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/radfares/nurseRN-sub000/internal/audit"
	"github.com/radfares/nurseRN-sub000/internal/breaker"
	"github.com/radfares/nurseRN-sub000/internal/contextstore"
	"github.com/radfares/nurseRN-sub000/internal/dispatch"
	"github.com/radfares/nurseRN-sub000/internal/registry"
	"github.com/radfares/nurseRN-sub000/pkg/protocol"
)

// LastResultKey is the context-store key every execution writes under.
const LastResultKey = "last_result"

// DefaultPoolSize bounds concurrent collaborator calls when none is configured.
const DefaultPoolSize = 4

// LastResult is the record persisted to the context store after every
// execution, success or failure.
type LastResult struct {
	Content     string            `json:"content"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	Error       string            `json:"error,omitempty"`
	Success     bool              `json:"success"`
	TimestampMs int64             `json:"timestamp_ms"`
}

// Options configures an Orchestrator.
type Options struct {
	// Sender stamped on task envelopes. Defaults to "orchestrator".
	Sender string

	// PoolSize bounds concurrent collaborator calls across all
	// ExecuteParallel invocations. Defaults to DefaultPoolSize.
	PoolSize int64

	// BreakerThreshold and BreakerCoolDown configure the per-collaborator
	// circuit guards. Zero values take the breaker package defaults.
	BreakerThreshold uint32
	BreakerCoolDown  time.Duration

	// AuditDir, when set, enables a per-collaborator audit trail under it.
	AuditDir string

	// AuditMaxSize is the audit rotation threshold (bytes). Zero takes the
	// audit package default.
	AuditMaxSize int64
}

// Orchestrator coordinates collaborator execution for one process.
// Construct with New; thread-safe.
type Orchestrator struct {
	reg     *registry.Registry
	gateway *dispatch.Gateway
	store   *contextstore.Store

	guards   map[string]*breaker.Guard
	auditors map[string]*audit.Logger

	sem    *semaphore.Weighted
	sender string
}

// New creates an orchestrator over the given registry and context store.
// A circuit guard is created per registered collaborator, and an audit
// logger per collaborator when opts.AuditDir is set. Collaborators
// registered after construction run without a guard or trail.
func New(reg *registry.Registry, store *contextstore.Store, opts Options) (*Orchestrator, error) {
	if reg == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("context store cannot be nil")
	}

	if opts.Sender == "" {
		opts.Sender = "orchestrator"
	}
	if opts.PoolSize <= 0 {
		opts.PoolSize = DefaultPoolSize
	}

	o := &Orchestrator{
		reg:      reg,
		gateway:  dispatch.NewGateway(opts.Sender),
		store:    store,
		guards:   make(map[string]*breaker.Guard),
		auditors: make(map[string]*audit.Logger),
		sem:      semaphore.NewWeighted(opts.PoolSize),
		sender:   opts.Sender,
	}

	for _, name := range reg.Names() {
		o.guards[name] = breaker.New(name, fmt.Sprintf("collaborator %s", name), opts.BreakerThreshold, opts.BreakerCoolDown)

		if opts.AuditDir != "" {
			logger, err := audit.NewLogger(opts.AuditDir, name, opts.AuditMaxSize)
			if err != nil {
				o.closeAuditors()
				return nil, fmt.Errorf("failed to create audit logger for %q: %w", name, err)
			}
			o.auditors[name] = logger
		}
	}

	return o, nil
}

// Close releases the per-collaborator audit loggers.
func (o *Orchestrator) Close() error {
	return o.closeAuditors()
}

// SetSession stamps a correlation ID on every collaborator's audit trail.
func (o *Orchestrator) SetSession(sessionID string) {
	for _, logger := range o.auditors {
		logger.SetSession(sessionID)
	}
}

// Auditor returns the audit logger for a collaborator, or nil when auditing
// is disabled or the collaborator is unknown.
func (o *Orchestrator) Auditor(name string) *audit.Logger {
	return o.auditors[name]
}

// ExecuteSingle runs one collaborator against query and persists the outcome
// under (workflowID, collaborator, "last_result") - unconditionally, so the
// context store always reflects the most recent attempt. The returned result
// is structured on every path; collaborator errors never escape as Go errors.
func (o *Orchestrator) ExecuteSingle(ctx context.Context, collaborator, query, workflowID string, runOpts map[string]string) *CollaboratorResult {
	start := time.Now()

	collab, ok := o.reg.Get(collaborator)
	if !ok {
		result := failureResult(collaborator, fmt.Sprintf("unknown collaborator: %q", collaborator), nil, 0)
		o.persistResult(ctx, workflowID, result)
		return result
	}

	task := protocol.NewTask(o.sender, collaborator, query, nil)
	response := o.gateway.Dispatch(ctx, collab, task, dispatch.Options{
		RunOpts: runOpts,
		Guard:   o.guards[collaborator],
		Audit:   o.auditors[collaborator],
	})

	durationMs := durationFromEnvelope(response, start)

	var result *CollaboratorResult
	if response.IsError() {
		result = failureResult(collaborator, response.Content, response.Metadata, durationMs)
	} else {
		result = successResult(collaborator, response.Content, response.Metadata, durationMs)
	}

	o.persistResult(ctx, workflowID, result)

	o.logEvent("collaborator_executed", map[string]interface{}{
		"collaborator": collaborator,
		"workflow_id":  workflowID,
		"task_id":      task.TaskID,
		"success":      result.Success,
		"duration_ms":  durationMs,
	})

	return result
}

// persistResult writes the execution outcome to the context store. Store
// failures are logged, not surfaced: the caller already holds the result and
// the store is a side channel.
func (o *Orchestrator) persistResult(ctx context.Context, workflowID string, result *CollaboratorResult) {
	if workflowID == "" {
		return
	}

	record := LastResult{
		Content:     result.Content,
		Metadata:    result.Metadata,
		Error:       result.Error,
		Success:     result.Success,
		TimestampMs: time.Now().UnixMilli(),
	}

	if err := o.store.Store(ctx, workflowID, result.Collaborator, LastResultKey, record); err != nil {
		log.Printf("[Orchestrator] Failed to persist result for %s/%s: %v", workflowID, result.Collaborator, err)
	}
}

// durationFromEnvelope prefers the gateway's measured latency, falling back
// to the orchestrator's own clock.
func durationFromEnvelope(env *protocol.Envelope, start time.Time) int64 {
	if raw, ok := env.Metadata[protocol.MetaLatencyMs]; ok {
		if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return ms
		}
	}
	return time.Since(start).Milliseconds()
}

// closeAuditors closes every audit logger, keeping the first error.
func (o *Orchestrator) closeAuditors() error {
	var firstErr error
	for _, logger := range o.auditors {
		if err := logger.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// logEvent logs a structured event in JSON format.
func (o *Orchestrator) logEvent(eventType string, data map[string]interface{}) {
	data["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	data["level"] = "info"
	data["component"] = "orchestrator"
	data["event_type"] = eventType

	jsonData, err := json.Marshal(data)
	if err != nil {
		log.Printf("[Orchestrator] Failed to marshal log event: %v", err)
		return
	}

	log.Println(string(jsonData))
}
