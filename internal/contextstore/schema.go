package contextstore

import "fmt"

// Redis key pattern helpers
//
// All keys are namespaced by instance name so multiple NurseRN instances can
// safely coexist on a single Redis server, and by workflow ID so no workflow
// can observe another's entries.
//
// Entry hashes:  nursern:{instance}:context:{workflow_id}:{scope}
// Scope index:   nursern:{instance}:context_scopes:{workflow_id}

// ScopeKey returns the Redis key of the hash holding all entries for one
// (workflow, scope) pair. Fields of the hash are the context keys.
func ScopeKey(instanceName, workflowID, scope string) string {
	return fmt.Sprintf("nursern:%s:context:%s:%s", instanceName, workflowID, scope)
}

// ScopeIndexKey returns the Redis key of the set listing every scope written
// under a workflow. The index is what makes GetAll and Clear workflow-scoped
// without pattern scans.
func ScopeIndexKey(instanceName, workflowID string) string {
	return fmt.Sprintf("nursern:%s:context_scopes:%s", instanceName, workflowID)
}
