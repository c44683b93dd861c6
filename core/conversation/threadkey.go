package conversation

import "strings"

const (
	DefaultMode = "homework"
	DefaultTask = "general"
)

// ThreadKey partitions durable storage and the thread-scoped one-shot flags.
type ThreadKey struct {
	Mode   string
	TaskID string
}

// ResolveThreadKey derives a stable key from a (mode, taskID) pair.
// The mode is case-insensitive; blank values fall back to DefaultMode and DefaultTask.
func ResolveThreadKey(mode, taskID string) ThreadKey {
	mode = strings.ToLower(strings.TrimSpace(mode))
	if mode == "" {
		mode = DefaultMode
	}
	taskID = strings.TrimSpace(taskID)
	if taskID == "" {
		taskID = DefaultTask
	}
	return ThreadKey{Mode: mode, TaskID: taskID}
}

func (k ThreadKey) String() string { return k.Mode + ":" + k.TaskID }

func (k ThreadKey) IsZero() bool { return k.Mode == "" && k.TaskID == "" }
