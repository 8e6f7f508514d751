// Package dispatch implements the single sanctioned call path from a raw
// query to a validated result envelope.
//
// The gateway validates the task envelope, selects the collaborator's
// declared execution strategy, runs it exactly once (optionally behind a
// circuit guard), and normalizes every result and error shape into a
// response envelope. No collaborator error ever escapes Dispatch as a Go
// error - callers always receive an envelope carrying the originating task
// ID, with the measured call latency in its metadata.
package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/radfares/nurseRN-sub000/internal/audit"
	"github.com/radfares/nurseRN-sub000/internal/breaker"
	"github.com/radfares/nurseRN-sub000/internal/registry"
	"github.com/radfares/nurseRN-sub000/pkg/protocol"
)

// Error classifications recorded under the error_type metadata key.
const (
	ErrorTypeValidation = "validation"
	ErrorTypeCapability = "capability"
	ErrorTypeExecution  = "execution"
	ErrorTypeGrounding  = "grounding_violation"
)

// Options configures a single dispatch.
type Options struct {
	// RunOpts is passed through to the collaborator's run method.
	RunOpts map[string]string

	// Guard optionally gates the underlying call behind a circuit breaker.
	// Nil means direct invocation.
	Guard *breaker.Guard

	// Audit optionally records the round-trip on the collaborator's trail.
	Audit *audit.Logger
}

// Gateway dispatches task envelopes to collaborators. Stateless apart from
// its identity; safe for concurrent use.
type Gateway struct {
	sender string
}

// NewGateway creates a gateway that stamps sender as the origin of the task
// envelopes it validates. An empty sender defaults to "dispatch".
func NewGateway(sender string) *Gateway {
	if sender == "" {
		sender = "dispatch"
	}
	return &Gateway{sender: sender}
}

// Dispatch performs one validated envelope round-trip against a collaborator.
//
// Preconditions: task.Kind == "task" and all identity fields non-empty.
// A violation yields an error envelope with error_type=validation carrying
// the same task ID - never a panic or an error return.
//
// Exactly one underlying collaborator call happens per dispatch, chosen from
// the collaborator's declared capability (grounded run preferred over inner
// agent run over direct run when composing layers declare capabilities).
// The measured latency is reported in the result metadata regardless of
// outcome.
func (g *Gateway) Dispatch(ctx context.Context, collab registry.Collaborator, task *protocol.Envelope, opts Options) *protocol.Envelope {
	start := time.Now()

	if errEnv := g.validateTask(collab, task); errEnv != nil {
		return stampLatency(errEnv, start)
	}

	auditEvent(opts.Audit, audit.ActionQueryReceived, map[string]interface{}{
		"task_id": task.TaskID,
		"query":   task.Content,
	})

	result := g.execute(ctx, collab, task, opts)
	result = stampLatency(result, start)

	if result.IsError() {
		auditEvent(opts.Audit, audit.ActionError, map[string]interface{}{
			"task_id":    task.TaskID,
			"error_type": result.ErrorType(),
			"error":      result.Content,
		})
	} else {
		auditEvent(opts.Audit, audit.ActionResponseGenerated, map[string]interface{}{
			"task_id":        task.TaskID,
			"content_length": len(result.Content),
		})
	}

	return result
}

// validateTask checks the dispatch preconditions. Returns an error envelope
// on violation, nil when the task is dispatchable.
func (g *Gateway) validateTask(collab registry.Collaborator, task *protocol.Envelope) *protocol.Envelope {
	if task.Kind != protocol.KindTask {
		return protocol.NewError(task, ErrorTypeValidation,
			fmt.Sprintf("cannot dispatch %q envelope: only task envelopes cross the gateway", task.Kind))
	}

	if err := task.Validate(); err != nil {
		return protocol.NewError(task, ErrorTypeValidation, fmt.Sprintf("invalid task envelope: %v", err))
	}

	if task.Recipient != collab.Name() {
		return protocol.NewError(task, ErrorTypeValidation,
			fmt.Sprintf("task addressed to %q but dispatched to %q", task.Recipient, collab.Name()))
	}

	return nil
}

// execute runs the collaborator's declared strategy exactly once and maps
// its outcome onto a response envelope.
func (g *Gateway) execute(ctx context.Context, collab registry.Collaborator, task *protocol.Envelope, opts Options) *protocol.Envelope {
	switch collab.Capability() {
	case registry.CapabilityGroundedRun:
		runner, ok := collab.(registry.GroundedRunner)
		if !ok {
			return capabilityError(task, collab, "GroundedRunner")
		}
		return g.runGrounded(ctx, runner, task, opts)

	case registry.CapabilityInnerAgentRun:
		runner, ok := collab.(registry.InnerAgentRunner)
		if !ok {
			return capabilityError(task, collab, "InnerAgentRunner")
		}
		inner := runner.InnerAgent()
		if inner == nil {
			return protocol.NewError(task, ErrorTypeCapability,
				fmt.Sprintf("collaborator %q declares an inner agent but returned none", collab.Name()))
		}
		return g.runDirect(ctx, inner, task, opts)

	case registry.CapabilityDirectRun:
		runner, ok := collab.(registry.DirectRunner)
		if !ok {
			return capabilityError(task, collab, "DirectRunner")
		}
		return g.runDirect(ctx, runner, task, opts)

	default:
		return protocol.NewError(task, ErrorTypeCapability,
			fmt.Sprintf("collaborator %q declares unknown capability %q", collab.Name(), collab.Capability()))
	}
}

// runGrounded executes a grounded runner and maps its tagged outcome.
func (g *Gateway) runGrounded(ctx context.Context, runner registry.GroundedRunner, task *protocol.Envelope, opts Options) *protocol.Envelope {
	value, err := opts.Guard.Call(func() (interface{}, error) {
		return runner.RunGrounded(ctx, task.Content, opts.RunOpts)
	})
	if err != nil {
		return protocol.NewError(task, ErrorTypeExecution, err.Error())
	}

	outcome, ok := value.(registry.Outcome)
	if !ok {
		return protocol.NewError(task, ErrorTypeExecution, "grounded run returned an unexpected value")
	}

	switch outcome.Kind {
	case registry.OutcomeOk:
		result := protocol.NewResult(task, outcome.Content, outcome.Metadata)
		return result.WithMetadata(protocol.MetaValidationPassed, "true")

	case registry.OutcomeGroundingViolation:
		errEnv := protocol.NewError(task, ErrorTypeGrounding, outcome.Details)
		for k, v := range outcome.Metadata {
			errEnv = errEnv.WithMetadata(k, v)
		}
		return errEnv

	default:
		return protocol.NewError(task, ErrorTypeExecution, outcome.Details)
	}
}

// runDirect executes a direct runner (also used for resolved inner agents).
func (g *Gateway) runDirect(ctx context.Context, runner registry.DirectRunner, task *protocol.Envelope, opts Options) *protocol.Envelope {
	value, err := opts.Guard.Call(func() (interface{}, error) {
		return runner.Run(ctx, task.Content, opts.RunOpts)
	})
	if err != nil {
		return protocol.NewError(task, ErrorTypeExecution, err.Error())
	}

	output, ok := value.(*registry.RunOutput)
	if !ok || output == nil {
		return protocol.NewError(task, ErrorTypeExecution, "run returned no output")
	}

	return protocol.NewResult(task, output.Content, output.Metadata)
}

// capabilityError reports a collaborator whose declared capability does not
// match any run method it exposes.
func capabilityError(task *protocol.Envelope, collab registry.Collaborator, iface string) *protocol.Envelope {
	return protocol.NewError(task, ErrorTypeCapability,
		fmt.Sprintf("collaborator %q declares %s but does not implement %s", collab.Name(), collab.Capability(), iface))
}

// stampLatency records the measured round-trip latency on the envelope.
func stampLatency(env *protocol.Envelope, start time.Time) *protocol.Envelope {
	return env.WithMetadata(protocol.MetaLatencyMs, strconv.FormatInt(time.Since(start).Milliseconds(), 10))
}

// auditEvent appends to the trail when one is configured. Audit write
// failures are swallowed here: observability must not fail the dispatch.
func auditEvent(logger *audit.Logger, action audit.ActionType, fields map[string]interface{}) {
	if logger == nil {
		return
	}
	_ = logger.LogEvent(action, fields)
}
