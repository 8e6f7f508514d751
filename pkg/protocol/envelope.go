package protocol

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Version is the protocol version stamped on every envelope.
// Bumped only for incompatible changes; additive information travels in metadata.
const Version = "1.0"

// MessageKind defines the role an envelope plays in a dispatch round-trip.
type MessageKind string

const (
	// KindTask is a request envelope built by the dispatch gateway.
	KindTask MessageKind = "task"

	// KindResult is a successful response envelope from a collaborator call.
	KindResult MessageKind = "result"

	// KindError is a failure response envelope. The failure class travels in
	// the "error_type" metadata field.
	KindError MessageKind = "error"
)

// Validate checks if the MessageKind is a valid enum value.
func (k MessageKind) Validate() error {
	switch k {
	case KindTask, KindResult, KindError:
		return nil
	default:
		return fmt.Errorf("unknown message kind: %q", k)
	}
}

// Metadata keys used by the core. Collaborators may add their own keys;
// unknown keys are carried through untouched.
const (
	// MetaErrorType classifies an error envelope: "validation", "execution",
	// or "capability".
	MetaErrorType = "error_type"

	// MetaLatencyMs records the measured collaborator call latency. Present on
	// every result and error envelope produced by the gateway.
	MetaLatencyMs = "latency_ms"

	// MetaSessionID correlates all envelopes of one pipeline run.
	MetaSessionID = "session_id"

	// MetaValidationPassed carries a grounded collaborator's own verdict.
	MetaValidationPassed = "validation_passed"
)

// Envelope is the immutable message exchanged across the dispatch boundary.
// Every result or error envelope carries the TaskID of the task envelope it
// answers - the correlation invariant the whole core relies on.
//
// Envelopes must not be mutated after construction. Derive new envelopes with
// NewResult / NewError instead of patching fields.
type Envelope struct {
	ProtocolVersion string            `json:"protocol_version"` // Always Version
	Kind            MessageKind       `json:"message_type"`     // task, result, or error
	Sender          string            `json:"sender"`           // Originating component or collaborator name
	Recipient       string            `json:"recipient"`        // Target collaborator name
	TaskID          string            `json:"task_id"`          // UUID - unique per request, reused by responses
	Content         string            `json:"content"`          // Main payload text
	Metadata        map[string]string `json:"metadata"`         // Open key/value map, additive-only
	TimestampMs     int64             `json:"timestamp_ms"`     // Unix milliseconds at construction
}

// NewTask builds a task envelope with a fresh task ID.
// The metadata map is copied; the caller keeps ownership of its argument.
func NewTask(sender, recipient, content string, metadata map[string]string) *Envelope {
	return &Envelope{
		ProtocolVersion: Version,
		Kind:            KindTask,
		Sender:          sender,
		Recipient:       recipient,
		TaskID:          uuid.New().String(),
		Content:         content,
		Metadata:        copyMetadata(metadata),
		TimestampMs:     time.Now().UnixMilli(),
	}
}

// NewResult builds a result envelope answering the given task.
// Sender and recipient are swapped, and the task ID is carried unchanged.
func NewResult(task *Envelope, content string, metadata map[string]string) *Envelope {
	return &Envelope{
		ProtocolVersion: Version,
		Kind:            KindResult,
		Sender:          task.Recipient,
		Recipient:       task.Sender,
		TaskID:          task.TaskID,
		Content:         content,
		Metadata:        copyMetadata(metadata),
		TimestampMs:     time.Now().UnixMilli(),
	}
}

// NewError builds an error envelope answering the given task.
// errorType classifies the failure ("validation", "execution", "capability")
// and is recorded under the error_type metadata key.
func NewError(task *Envelope, errorType, message string) *Envelope {
	return &Envelope{
		ProtocolVersion: Version,
		Kind:            KindError,
		Sender:          task.Recipient,
		Recipient:       task.Sender,
		TaskID:          task.TaskID,
		Content:         message,
		Metadata:        map[string]string{MetaErrorType: errorType},
		TimestampMs:     time.Now().UnixMilli(),
	}
}

// Validate checks if the Envelope has valid field values.
// Returns an error if any validation fails.
func (e *Envelope) Validate() error {
	if e.ProtocolVersion == "" {
		return fmt.Errorf("protocol version cannot be empty")
	}

	if err := e.Kind.Validate(); err != nil {
		return fmt.Errorf("invalid message kind: %w", err)
	}

	if e.Sender == "" {
		return fmt.Errorf("sender cannot be empty")
	}

	if e.Recipient == "" {
		return fmt.Errorf("recipient cannot be empty")
	}

	if !isValidUUID(e.TaskID) {
		return fmt.Errorf("invalid task ID: not a valid UUID")
	}

	return nil
}

// IsError reports whether the envelope is an error envelope.
func (e *Envelope) IsError() bool {
	return e.Kind == KindError
}

// ErrorType returns the error classification of an error envelope, or ""
// for non-error envelopes.
func (e *Envelope) ErrorType() string {
	if e.Kind != KindError {
		return ""
	}
	return e.Metadata[MetaErrorType]
}

// WithMetadata returns a copy of the envelope with the given key set.
// The receiver is unchanged, preserving envelope immutability.
func (e *Envelope) WithMetadata(key, value string) *Envelope {
	clone := *e
	clone.Metadata = copyMetadata(e.Metadata)
	clone.Metadata[key] = value
	return &clone
}

// copyMetadata returns a fresh map so no two envelopes share metadata storage.
// A nil input yields an empty, non-nil map for JSON consistency.
func copyMetadata(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// isValidUUID checks if a string is a valid UUID format.
func isValidUUID(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}
