package registry

// OutcomeKind tags the variant of a grounded run outcome.
type OutcomeKind string

const (
	// OutcomeOk means the run produced content that passed grounding.
	OutcomeOk OutcomeKind = "ok"

	// OutcomeGroundingViolation means the run produced content that cited
	// material it could not verify. The content is withheld; Details names
	// the unverified citations.
	OutcomeGroundingViolation OutcomeKind = "grounding_violation"

	// OutcomeError means the run itself failed.
	OutcomeError OutcomeKind = "error"
)

// Outcome is the tagged result of a grounded run. Callers branch on Kind
// rather than catching error types.
type Outcome struct {
	Kind     OutcomeKind       // Which variant this is
	Content  string            // Set when Kind == OutcomeOk
	Details  string            // Set when Kind != OutcomeOk
	Metadata map[string]string // Collaborator-specific extras (cited IDs, model info)
}

// Ok builds a successful outcome carrying the run's content.
func Ok(content string, metadata map[string]string) Outcome {
	return Outcome{Kind: OutcomeOk, Content: content, Metadata: metadata}
}

// Violation builds a grounding-violation outcome. The details describe the
// unverifiable citations; no content is carried.
func Violation(details string, metadata map[string]string) Outcome {
	return Outcome{Kind: OutcomeGroundingViolation, Details: details, Metadata: metadata}
}

// Failure builds an error outcome for runs that failed outright.
func Failure(details string) Outcome {
	return Outcome{Kind: OutcomeError, Details: details}
}
