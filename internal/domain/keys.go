package domain

import "fmt"

const (
	WorkflowKeyPrefix = "weft:workflow:"
	RunKeyPrefix      = "weft:run:"
	LockKeyPrefix     = "weft:lock:"
	TagKeyPrefix      = "weft:tag:"
	JournalKeyPrefix  = "journal:"

	// Storage read-through entries live in their own namespace so they
	// never collide with cache-manager envelopes under the same id.
	StoreWorkflowKeyPrefix = "weft:store:workflow:"
	StoreRunKeyPrefix      = "weft:store:run:"
)

// WorkflowKey builds the canonical cache key for a workflow document.
func WorkflowKey(id string) string {
	return WorkflowKeyPrefix + id
}

// RunKey builds the canonical cache key for a run record.
func RunKey(id string) string {
	return RunKeyPrefix + id
}

// LockKey builds the key a distributed lock is held under.
func LockKey(name string) string {
	return LockKeyPrefix + name
}

// TagKey builds the key of the set tracking which cache keys carry a tag.
func TagKey(tag string) string {
	return TagKeyPrefix + tag
}

// WorkflowTag is the invalidation tag every cached view of a workflow
// carries.
func WorkflowTag(id string) string {
	return "workflow:" + id
}

// StoreWorkflowKey is the read-through key for a workflow row.
func StoreWorkflowKey(id string) string {
	return StoreWorkflowKeyPrefix + id
}

// StoreRunKey is the read-through key for a run row.
func StoreRunKey(id string) string {
	return StoreRunKeyPrefix + id
}

// JournalKey orders a run's journaled events by sequence.
func JournalKey(runID string, seq uint64) string {
	return fmt.Sprintf("%s%s:%020d", JournalKeyPrefix, runID, seq)
}

// JournalRunPrefix is the scan prefix for one run's journal entries.
func JournalRunPrefix(runID string) string {
	return JournalKeyPrefix + runID + ":"
}
