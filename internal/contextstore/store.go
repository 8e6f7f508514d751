// Package contextstore provides the durable key-value store that hands off
// intermediate results between pipeline phases.
//
// Entries are keyed by (workflow ID, scope, key), where the scope is usually
// a collaborator name. Workflows are strictly isolated: a workflow can only
// ever read the entries written under its own ID. Writes are last-write-wins
// and are durable (acknowledged by Redis) before Store returns. Entries are
// never deleted implicitly - clearing is explicit and scoped to one workflow.
package contextstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Entry is a stored context value with its write timestamp.
type Entry struct {
	Value       json.RawMessage `json:"value"`         // JSON-encoded caller value
	UpdatedAtMs int64           `json:"updated_at_ms"` // Unix milliseconds of the last write
}

// Decode unmarshals the entry's value into dest.
func (e *Entry) Decode(dest interface{}) error {
	if err := json.Unmarshal(e.Value, dest); err != nil {
		return fmt.Errorf("failed to decode context entry: %w", err)
	}
	return nil
}

// Store provides instance-scoped context storage on Redis.
// All keys are automatically namespaced with the instance name.
// Thread-safe; safe for concurrent use across workflows.
type Store struct {
	rdb          *redis.Client
	instanceName string
}

// NewStore creates a context store for the given instance.
// Returns an error if instanceName is empty.
func NewStore(redisOpts *redis.Options, instanceName string) (*Store, error) {
	if instanceName == "" {
		return nil, fmt.Errorf("instance name cannot be empty")
	}

	return &Store{
		rdb:          redis.NewClient(redisOpts),
		instanceName: instanceName,
	}, nil
}

// Close closes the Redis connection. Implements io.Closer.
func (s *Store) Close() error {
	return s.rdb.Close()
}

// Ping verifies Redis connectivity. Useful for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Store writes value under (workflowID, scope, key), overwriting any previous
// value for the same tuple (last-write-wins). The value must be
// JSON-serializable. The write is acknowledged by Redis before Store returns.
func (s *Store) Store(ctx context.Context, workflowID, scope, key string, value interface{}) error {
	if err := validateTuple(workflowID, scope, key); err != nil {
		return err
	}

	valueJSON, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal context value: %w", err)
	}

	entry := Entry{
		Value:       valueJSON,
		UpdatedAtMs: time.Now().UnixMilli(),
	}
	entryJSON, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal context entry: %w", err)
	}

	// Entry write and scope-index update land together.
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, ScopeKey(s.instanceName, workflowID, scope), key, string(entryJSON))
		pipe.SAdd(ctx, ScopeIndexKey(s.instanceName, workflowID), scope)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to write context entry: %w", err)
	}

	return nil
}

// Get retrieves the entry stored under (workflowID, scope, key).
// Returns (nil, redis.Nil) if no such entry exists; use IsNotFound to check.
// The read reflects the most recent completed write for the exact tuple.
func (s *Store) Get(ctx context.Context, workflowID, scope, key string) (*Entry, error) {
	if err := validateTuple(workflowID, scope, key); err != nil {
		return nil, err
	}

	raw, err := s.rdb.HGet(ctx, ScopeKey(s.instanceName, workflowID, scope), key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, redis.Nil
		}
		return nil, fmt.Errorf("failed to read context entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		return nil, fmt.Errorf("failed to deserialize context entry: %w", err)
	}

	return &entry, nil
}

// GetAll returns every entry written under workflowID, as scope → key → entry.
// Returns an empty map for a workflow with no entries (not an error).
func (s *Store) GetAll(ctx context.Context, workflowID string) (map[string]map[string]Entry, error) {
	if workflowID == "" {
		return nil, fmt.Errorf("workflow ID cannot be empty")
	}

	scopes, err := s.rdb.SMembers(ctx, ScopeIndexKey(s.instanceName, workflowID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read scope index: %w", err)
	}

	all := make(map[string]map[string]Entry, len(scopes))
	for _, scope := range scopes {
		raw, err := s.rdb.HGetAll(ctx, ScopeKey(s.instanceName, workflowID, scope)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read context scope %q: %w", scope, err)
		}

		entries := make(map[string]Entry, len(raw))
		for key, entryJSON := range raw {
			var entry Entry
			if err := json.Unmarshal([]byte(entryJSON), &entry); err != nil {
				return nil, fmt.Errorf("failed to deserialize context entry %s/%s: %w", scope, key, err)
			}
			entries[key] = entry
		}
		all[scope] = entries
	}

	return all, nil
}

// Clear deletes every entry written under workflowID. Other workflows are
// untouched. Clearing a workflow with no entries is a no-op.
func (s *Store) Clear(ctx context.Context, workflowID string) error {
	if workflowID == "" {
		return fmt.Errorf("workflow ID cannot be empty")
	}

	indexKey := ScopeIndexKey(s.instanceName, workflowID)
	scopes, err := s.rdb.SMembers(ctx, indexKey).Result()
	if err != nil {
		return fmt.Errorf("failed to read scope index: %w", err)
	}

	keys := make([]string, 0, len(scopes)+1)
	for _, scope := range scopes {
		keys = append(keys, ScopeKey(s.instanceName, workflowID, scope))
	}
	keys = append(keys, indexKey)

	if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to clear workflow context: %w", err)
	}

	return nil
}

// IsNotFound returns true if the error is a Redis "key not found" error.
// Use this to check whether Get returned "absent".
func IsNotFound(err error) bool {
	return errors.Is(err, redis.Nil)
}

// validateTuple rejects empty components, which would collapse distinct
// namespaces into one key.
func validateTuple(workflowID, scope, key string) error {
	if workflowID == "" {
		return fmt.Errorf("workflow ID cannot be empty")
	}
	if scope == "" {
		return fmt.Errorf("scope cannot be empty")
	}
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	return nil
}
