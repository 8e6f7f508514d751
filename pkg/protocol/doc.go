// Package protocol provides the message envelope exchanged across the
// NurseRN dispatch boundary.
//
// # Overview
//
// Every collaborator call in NurseRN is a round-trip of two envelopes: a task
// envelope built by the dispatch gateway, and a result or error envelope
// returned to the caller. Envelopes are immutable values - they are replaced,
// never patched - and every result or error envelope carries the task ID of
// the envelope that produced it, so callers can correlate responses with
// requests across any number of composed layers.
//
// # Wire Shape
//
// Envelopes serialize to JSON with a stable shape:
//
//	{
//	  "protocol_version": "1.0",
//	  "message_type": "task",
//	  "sender": "pipeline",
//	  "recipient": "picot-agent",
//	  "task_id": "<uuid>",
//	  "content": "...",
//	  "metadata": {},
//	  "timestamp_ms": 1735689600000
//	}
//
// The shape is stable across versions: new information is carried by
// additive metadata fields, never by renaming or removing top-level fields.
//
// # Usage Example
//
//	import "github.com/radfares/nurseRN-sub000/pkg/protocol"
//
//	task := protocol.NewTask("pipeline", "picot-agent", "diabetes education", nil)
//	if err := task.Validate(); err != nil {
//		log.Fatal(err)
//	}
//	result := protocol.NewResult(task, "P: adult inpatients ...", nil)
//	// result.TaskID == task.TaskID
//
// # Design Principles
//
//   - Immutability: envelopes are never mutated after construction
//   - Correlation: result/error envelopes reuse the originating task ID
//   - Type safety: message kinds are validated enum values
//   - Simplicity: minimal dependencies (only google/uuid for IDs)
package protocol
