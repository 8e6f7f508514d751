package orchestrator

import (
	"context"
	"fmt"
	"time"
)

// TimedOutError is the error text of a synthesized timeout failure, distinct
// from any collaborator-raised error.
const TimedOutError = "timed out"

// DefaultParallelTimeout bounds ExecuteParallel when no timeout is given.
const DefaultParallelTimeout = 2 * time.Minute

// ExecuteParallel runs one ExecuteSingle per collaborator on the bounded
// worker pool and waits up to timeout for all of them.
//
// Collaborators that have not completed in time get a synthesized failure
// result with error "timed out". Abandoned calls are not interrupted - they
// may still complete and write their last_result to the context store after
// the caller has moved on (at-least-once semantics for abandoned work); only
// their delivery into the returned map is discarded. A stuck collaborator
// never affects its siblings' result delivery.
func (o *Orchestrator) ExecuteParallel(ctx context.Context, collaborators []string, query, workflowID string, timeout time.Duration) map[string]*CollaboratorResult {
	if timeout <= 0 {
		timeout = DefaultParallelTimeout
	}

	type delivery struct {
		name   string
		result *CollaboratorResult
	}

	// Buffered to len(collaborators) so abandoned workers never block on send.
	deliveries := make(chan delivery, len(collaborators))

	for _, name := range collaborators {
		go func(name string) {
			// The pool bound applies to the call itself, not to waiting:
			// acquisition happens inside the worker goroutine.
			if err := o.sem.Acquire(ctx, 1); err != nil {
				deliveries <- delivery{name: name, result: failureResult(name, fmt.Sprintf("worker pool unavailable: %v", err), nil, 0)}
				return
			}
			defer o.sem.Release(1)

			deliveries <- delivery{name: name, result: o.ExecuteSingle(ctx, name, query, workflowID, nil)}
		}(name)
	}

	results := make(map[string]*CollaboratorResult, len(collaborators))
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	pending := len(collaborators)
	for pending > 0 {
		select {
		case d := <-deliveries:
			// A name listed twice delivers twice; last delivery wins, matching
			// the context store's last-write-wins contract.
			results[d.name] = d.result
			pending--

		case <-deadline.C:
			for _, name := range collaborators {
				if _, done := results[name]; !done {
					results[name] = failureResult(name, TimedOutError, nil, timeout.Milliseconds())
				}
			}
			o.logEvent("parallel_timeout", map[string]interface{}{
				"workflow_id": workflowID,
				"abandoned":   pending,
				"timeout_ms":  timeout.Milliseconds(),
			})
			return results
		}
	}

	return results
}
