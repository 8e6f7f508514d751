// Package audit provides an append-only, sanitized event trail per
// collaborator with size-based rotation.
//
// Every collaborator call leaves a durable trace: query received, tool calls,
// validation checks, the generated response, and any errors. Entries are
// written as JSON lines, stamped with wall-clock time and collaborator
// identity, and never modified after the fact - rotation renames the whole
// file, it never edits it.
//
// Sanitization is zero tolerance: credential-shaped substrings are stripped
// before the entry touches disk, and a field that cannot be serialized is
// replaced with a redaction marker rather than failing the write. Losing a
// field is always preferred over leaking a token.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"
)

const (
	// DefaultMaxLogSize is the rotation threshold when none is configured (10MB).
	DefaultMaxLogSize = 10 * 1024 * 1024

	// LogFileExtension is the suffix of every audit file.
	LogFileExtension = ".jsonl"

	// RedactionMarker replaces values that were stripped during sanitization.
	RedactionMarker = "[REDACTED]"
)

// ActionType classifies an audit entry.
type ActionType string

const (
	ActionQueryReceived     ActionType = "query_received"
	ActionToolCall          ActionType = "tool_call"
	ActionToolResult        ActionType = "tool_result"
	ActionValidationCheck   ActionType = "validation_check"
	ActionResponseGenerated ActionType = "response_generated"
	ActionGroundingCheck    ActionType = "grounding_check"
	ActionError             ActionType = "error"
)

// Entry is a single append-only audit record.
type Entry struct {
	Timestamp    time.Time              `json:"timestamp"`
	Collaborator string                 `json:"collaborator"`
	SessionID    string                 `json:"session_id,omitempty"`
	Action       ActionType             `json:"action"`
	Fields       map[string]interface{} `json:"fields,omitempty"`
}

// credentialPatterns match credential-shaped substrings that must never be
// persisted. Matched spans are replaced wholesale with the redaction marker.
var credentialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(api[_-]?key|secret|password|passwd|token|authorization)\s*[:=]\s*\S+`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._~+/-]+=*`),
	regexp.MustCompile(`\bsk-[A-Za-z0-9]{16,}\b`),
	regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
}

// Logger writes the audit trail for one collaborator identity.
// A single mutex guards the append; each critical section is one write.
type Logger struct {
	mu          sync.Mutex
	file        *os.File
	path        string
	currentSize int64
	maxSize     int64

	collaborator string
	sessionID    string
	rotations    int
}

// NewLogger opens (or creates) the audit file for a collaborator at
// dir/<collaborator>.jsonl. maxSize <= 0 falls back to DefaultMaxLogSize.
func NewLogger(dir, collaborator string, maxSize int64) (*Logger, error) {
	if collaborator == "" {
		return nil, fmt.Errorf("collaborator name cannot be empty")
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxLogSize
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	l := &Logger{
		path:         filepath.Join(dir, collaborator+LogFileExtension),
		maxSize:      maxSize,
		collaborator: collaborator,
	}

	if err := l.openLogFile(); err != nil {
		return nil, err
	}
	return l, nil
}

// SetSession sets the correlation ID stamped on subsequent entries.
// An empty ID clears it.
func (l *Logger) SetSession(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sessionID = sessionID
}

// LogEvent appends one audit entry. Field values are sanitized before the
// write: credential-shaped substrings are stripped, and values that cannot
// be serialized are replaced with the redaction marker (recorded under the
// "sanitization_degraded" field). Sanitization itself never fails the call;
// only I/O errors are returned.
func (l *Logger) LogEvent(action ActionType, fields map[string]interface{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := &Entry{
		Timestamp:    time.Now().UTC(),
		Collaborator: l.collaborator,
		SessionID:    l.sessionID,
		Action:       action,
		Fields:       sanitizeFields(fields),
	}

	return l.writeEntry(entry)
}

// LogGroundingCheck records a citation-grounding verdict: which IDs the
// response cited, which were verified against source material, and the set
// difference that drove the verdict.
func (l *Logger) LogGroundingCheck(citedIDs, verifiedIDs []string, hallucinationDetected bool) error {
	return l.LogEvent(ActionGroundingCheck, map[string]interface{}{
		"cited_ids":              citedIDs,
		"verified_ids":           verifiedIDs,
		"unverified_ids":         diffIDs(citedIDs, verifiedIDs),
		"hallucination_detected": hallucinationDetected,
	})
}

// Rotate renames the audit file with a timestamp suffix and starts a fresh
// file, but only if the current file exceeds the configured threshold.
// Calling it again immediately is a no-op. No entries are lost or reordered
// across rotation.
func (l *Logger) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rotateIfNeeded(0)
}

// Close syncs and closes the audit file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	if err := l.file.Sync(); err != nil {
		return err
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// Path returns the current audit file path.
func (l *Logger) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}

// CurrentSize returns the size of the current audit file in bytes.
func (l *Logger) CurrentSize() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentSize
}

// writeEntry marshals and appends one entry. Caller holds l.mu.
func (l *Logger) writeEntry(entry *Entry) error {
	if l.file == nil {
		return fmt.Errorf("audit logger is closed")
	}

	data, err := json.Marshal(entry)
	if err != nil {
		// Sanitization already replaced unserializable values; reaching this
		// point means the entry structure itself is broken. Degrade to a
		// marker entry so the trail records that something was dropped.
		fallback := &Entry{
			Timestamp:    entry.Timestamp,
			Collaborator: entry.Collaborator,
			SessionID:    entry.SessionID,
			Action:       entry.Action,
			Fields:       map[string]interface{}{"sanitization_degraded": true, "dropped": RedactionMarker},
		}
		data, err = json.Marshal(fallback)
		if err != nil {
			return fmt.Errorf("failed to marshal audit entry: %w", err)
		}
	}
	data = append(data, '\n')

	if err := l.rotateIfNeeded(int64(len(data))); err != nil {
		return fmt.Errorf("failed to rotate audit log: %w", err)
	}

	n, err := l.file.Write(data)
	if err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}

	// Sync so the entry is durable before the caller proceeds.
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync audit log: %w", err)
	}

	l.currentSize += int64(n)
	return nil
}

// rotateIfNeeded renames the current file with a timestamp suffix when the
// next write of pending bytes would exceed the threshold. Caller holds l.mu.
func (l *Logger) rotateIfNeeded(pending int64) error {
	if l.currentSize == 0 || l.currentSize+pending <= l.maxSize {
		return nil
	}

	if err := l.file.Close(); err != nil {
		return fmt.Errorf("failed to close current audit file: %w", err)
	}

	l.rotations++
	stamp := time.Now().UTC().Format("20060102T150405")
	base := l.path[:len(l.path)-len(LogFileExtension)]
	rotatedPath := fmt.Sprintf("%s.%s.%d%s", base, stamp, l.rotations, LogFileExtension)

	if err := os.Rename(l.path, rotatedPath); err != nil {
		return fmt.Errorf("failed to rename audit file: %w", err)
	}

	return l.openLogFile()
}

// openLogFile opens the append-only file and records its current size.
func (l *Logger) openLogFile() error {
	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open audit file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat audit file: %w", err)
	}

	l.file = file
	l.currentSize = stat.Size()
	return nil
}

// sanitizeFields strips credential-shaped substrings from every string value
// and replaces unserializable values with the redaction marker. The input map
// is never mutated.
func sanitizeFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	out := make(map[string]interface{}, len(fields))
	degraded := false
	for key, value := range fields {
		clean, ok := sanitizeValue(value)
		if !ok {
			clean = RedactionMarker
			degraded = true
		}
		out[key] = clean
	}
	if degraded {
		out["sanitization_degraded"] = true
	}
	return out
}

// sanitizeValue returns a sanitized copy of value. The second return value is
// false when the value could not be serialized and must be redacted.
func sanitizeValue(value interface{}) (interface{}, bool) {
	switch v := value.(type) {
	case string:
		return scrub(v), true
	case []string:
		clean := make([]string, len(v))
		for i, s := range v {
			clean[i] = scrub(s)
		}
		return clean, true
	case map[string]interface{}:
		return sanitizeFields(v), true
	default:
		// Anything else must at least survive JSON encoding; scrub the
		// encoded form to catch credentials inside nested structures.
		data, err := json.Marshal(v)
		if err != nil {
			return nil, false
		}
		if scrubbed := scrub(string(data)); scrubbed != string(data) {
			return scrubbed, true
		}
		return v, true
	}
}

// scrub replaces every credential-shaped span in s with the redaction marker.
func scrub(s string) string {
	for _, pattern := range credentialPatterns {
		s = pattern.ReplaceAllString(s, RedactionMarker)
	}
	return s
}

// diffIDs returns the members of cited that are absent from verified,
// preserving cited order.
func diffIDs(cited, verified []string) []string {
	seen := make(map[string]bool, len(verified))
	for _, id := range verified {
		seen[id] = true
	}

	missing := []string{}
	for _, id := range cited {
		if !seen[id] {
			missing = append(missing, id)
		}
	}
	return missing
}
