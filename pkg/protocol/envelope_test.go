package protocol

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTask(t *testing.T) {
	t.Run("creates valid task envelope", func(t *testing.T) {
		task := NewTask("pipeline", "picot-agent", "diabetes education", nil)

		assert.Equal(t, Version, task.ProtocolVersion)
		assert.Equal(t, KindTask, task.Kind)
		assert.Equal(t, "pipeline", task.Sender)
		assert.Equal(t, "picot-agent", task.Recipient)
		assert.Equal(t, "diabetes education", task.Content)
		assert.NotZero(t, task.TimestampMs)
		assert.NoError(t, task.Validate())

		_, err := uuid.Parse(task.TaskID)
		assert.NoError(t, err)
	})

	t.Run("unique task IDs per request", func(t *testing.T) {
		a := NewTask("pipeline", "picot-agent", "q", nil)
		b := NewTask("pipeline", "picot-agent", "q", nil)
		assert.NotEqual(t, a.TaskID, b.TaskID)
	})

	t.Run("copies metadata", func(t *testing.T) {
		meta := map[string]string{"session_id": "s-1"}
		task := NewTask("pipeline", "picot-agent", "q", meta)

		meta["session_id"] = "mutated"
		assert.Equal(t, "s-1", task.Metadata["session_id"])
	})

	t.Run("nil metadata becomes empty map", func(t *testing.T) {
		task := NewTask("pipeline", "picot-agent", "q", nil)
		assert.NotNil(t, task.Metadata)
		assert.Empty(t, task.Metadata)
	})
}

func TestCorrelationInvariant(t *testing.T) {
	task := NewTask("pipeline", "search-agent", "find RCTs", nil)

	t.Run("result carries task ID unchanged", func(t *testing.T) {
		result := NewResult(task, "found 12 studies", nil)
		assert.Equal(t, task.TaskID, result.TaskID)
		assert.Equal(t, KindResult, result.Kind)
		assert.Equal(t, "search-agent", result.Sender)
		assert.Equal(t, "pipeline", result.Recipient)
	})

	t.Run("error carries task ID unchanged", func(t *testing.T) {
		errEnv := NewError(task, "validation", "empty recipient")
		assert.Equal(t, task.TaskID, errEnv.TaskID)
		assert.Equal(t, KindError, errEnv.Kind)
		assert.Equal(t, "validation", errEnv.ErrorType())
		assert.Equal(t, "empty recipient", errEnv.Content)
	})
}

func TestEnvelopeValidate(t *testing.T) {
	valid := func() *Envelope {
		return NewTask("pipeline", "picot-agent", "q", nil)
	}

	tests := []struct {
		name    string
		mutate  func(*Envelope)
		wantErr string
	}{
		{"valid envelope", func(e *Envelope) {}, ""},
		{"missing protocol version", func(e *Envelope) { e.ProtocolVersion = "" }, "protocol version"},
		{"unknown kind", func(e *Envelope) { e.Kind = "request" }, "message kind"},
		{"empty sender", func(e *Envelope) { e.Sender = "" }, "sender"},
		{"empty recipient", func(e *Envelope) { e.Recipient = "" }, "recipient"},
		{"malformed task ID", func(e *Envelope) { e.TaskID = "not-a-uuid" }, "task ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := valid()
			tt.mutate(env)
			err := env.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestWithMetadata(t *testing.T) {
	task := NewTask("pipeline", "picot-agent", "q", map[string]string{"a": "1"})
	stamped := task.WithMetadata(MetaLatencyMs, "42")

	// Receiver is unchanged; the copy carries both keys.
	assert.NotContains(t, task.Metadata, MetaLatencyMs)
	assert.Equal(t, "42", stamped.Metadata[MetaLatencyMs])
	assert.Equal(t, "1", stamped.Metadata["a"])
	assert.Equal(t, task.TaskID, stamped.TaskID)
}

func TestWireShape(t *testing.T) {
	task := NewTask("pipeline", "picot-agent", "q", map[string]string{"session_id": "s-1"})

	data, err := json.Marshal(task)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))

	// Stable top-level field names.
	for _, field := range []string{
		"protocol_version", "message_type", "sender", "recipient",
		"task_id", "content", "metadata", "timestamp_ms",
	} {
		assert.Contains(t, decoded, field)
	}
	assert.Equal(t, "task", decoded["message_type"])
}

func TestErrorType(t *testing.T) {
	task := NewTask("pipeline", "picot-agent", "q", nil)

	t.Run("non-error envelope has no error type", func(t *testing.T) {
		assert.Equal(t, "", NewResult(task, "ok", nil).ErrorType())
	})

	t.Run("error envelope reports its class", func(t *testing.T) {
		assert.Equal(t, "execution", NewError(task, "execution", "boom").ErrorType())
	})
}
