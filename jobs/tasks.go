package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskProfilesSnapshot copies the avatar and profile maps to a dated key.
	TaskProfilesSnapshot = "profiles:snapshot"
	// TaskProfilesRestore replaces the avatar and profile maps from a snapshot.
	TaskProfilesRestore = "profiles:restore"
)

// SnapshotPayload configures a snapshot run. A zero Retention uses the job
// default.
type SnapshotPayload struct {
	Retention time.Duration `json:"retention,omitempty"`
}

// RestorePayload names the snapshot to restore. An empty Key restores the
// latest snapshot.
type RestorePayload struct {
	Key string `json:"key,omitempty"`
}

// NewSnapshotTask constructs a profiles:snapshot task.
func NewSnapshotTask(retention time.Duration) (*asynq.Task, error) {
	data, err := json.Marshal(SnapshotPayload{Retention: retention})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskProfilesSnapshot, data), nil
}

// NewRestoreTask constructs a profiles:restore task.
func NewRestoreTask(key string) (*asynq.Task, error) {
	data, err := json.Marshal(RestorePayload{Key: key})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskProfilesRestore, data), nil
}
