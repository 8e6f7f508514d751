package orchestrator

import (
	"fmt"
	"sort"
	"strings"
)

// CollaboratorResult is the normalized outcome of one collaborator execution.
// Exactly one of Content and Error is populated: success implies content and
// no error, failure implies an error and no content.
type CollaboratorResult struct {
	Collaborator string            `json:"collaborator"`       // Collaborator name
	Success      bool              `json:"success"`            // Whether the call produced usable content
	Content      string            `json:"content,omitempty"`  // Response text (success only)
	Metadata     map[string]string `json:"metadata,omitempty"` // Carried through from the response envelope
	Error        string            `json:"error,omitempty"`    // Failure description (failure only)
	DurationMs   int64             `json:"duration_ms"`        // Measured execution time
}

// successResult builds a passing result, enforcing the content/error invariant.
func successResult(collaborator, content string, metadata map[string]string, durationMs int64) *CollaboratorResult {
	return &CollaboratorResult{
		Collaborator: collaborator,
		Success:      true,
		Content:      content,
		Metadata:     metadata,
		DurationMs:   durationMs,
	}
}

// failureResult builds a failing result, enforcing the content/error invariant.
func failureResult(collaborator, errMsg string, metadata map[string]string, durationMs int64) *CollaboratorResult {
	return &CollaboratorResult{
		Collaborator: collaborator,
		Success:      false,
		Metadata:     metadata,
		Error:        errMsg,
		DurationMs:   durationMs,
	}
}

// AggregateResults concatenates labeled collaborator outputs into one summary
// string for human consumption. Failures are marked inline. Collaborators
// appear in sorted name order so the summary is stable.
func AggregateResults(results map[string]*CollaboratorResult) string {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteString("\n\n")
		}

		result := results[name]
		if result.Success {
			fmt.Fprintf(&b, "=== %s ===\n%s", name, result.Content)
		} else {
			fmt.Fprintf(&b, "=== %s (FAILED) ===\n%s", name, result.Error)
		}
	}
	return b.String()
}
