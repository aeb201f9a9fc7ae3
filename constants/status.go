package constants

// TaskStatus is the canonical status for entries in the task tracker.
type TaskStatus string

// Stable values (serialized as-is on the task status surface).
const (
	TaskStatusPending    TaskStatus = "pending"    // created, not yet picked up
	TaskStatusProcessing TaskStatus = "processing" // in progress
	TaskStatusCompleted  TaskStatus = "completed"  // terminal success
	TaskStatusFailed     TaskStatus = "failed"     // terminal failure
)

// Terminal reports whether a status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Task kinds submitted to the background queue.
const (
	TaskKindExtractURL    = "extract_url"
	TaskKindExtractUpload = "extract_upload"
)
