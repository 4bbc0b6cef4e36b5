package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/hashavatar/hashavatar/internal/jobs"
	"github.com/hashavatar/hashavatar/internal/kv"
	"github.com/hashavatar/hashavatar/internal/profiles"
)

const (
	// SnapshotKeyPrefix prefixes every snapshot key; the suffix is the Unix
	// time the snapshot was taken.
	SnapshotKeyPrefix = "snapshot:"
	// SnapshotLatestKey holds the key of the newest snapshot.
	SnapshotLatestKey = "snapshot:latest"
	// DefaultSnapshotRetention applies when neither the job nor the payload
	// sets one.
	DefaultSnapshotRetention = 7 * 24 * time.Hour
)

// ErrNoSnapshot is returned by a restore without any snapshot to read.
var ErrNoSnapshot = errors.New("jobs: no snapshot available")

type snapshotDocument struct {
	TakenAt  int64                `json:"takenAt"`
	Avatars  *profiles.AvatarMap  `json:"avatars"`
	Profiles *profiles.ProfileMap `json:"profiles"`
}

// SnapshotJob copies the durable collections to expiring snapshot keys and
// restores them on request.
type SnapshotJob struct {
	Store     *profiles.Store
	KV        kv.Store
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	Retention time.Duration
	clock     func() time.Time
}

// NewSnapshotJob initialises the snapshot handler.
func NewSnapshotJob(store *profiles.Store, backend kv.Store, logger *slog.Logger, metrics *jobmetrics.Metrics, retention time.Duration) *SnapshotJob {
	return &SnapshotJob{
		Store:     store,
		KV:        backend,
		Logger:    logger,
		Metrics:   metrics,
		Retention: retention,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskProfilesSnapshot tasks.
func (j *SnapshotJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("snapshot: handler not configured")
	}
	var payload SnapshotPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	_, err := j.Snapshot(ctx, payload.Retention)
	return err
}

// Snapshot writes the current collections under a new snapshot key and
// returns that key.
func (j *SnapshotJob) Snapshot(ctx context.Context, retention time.Duration) (key string, err error) {
	tracker := j.Metrics.Track(TaskProfilesSnapshot)
	defer func() {
		err = tracker.End(err)
	}()

	if retention <= 0 {
		retention = j.Retention
	}
	if retention <= 0 {
		retention = DefaultSnapshotRetention
	}

	export, err := j.Store.Export(ctx)
	if err != nil {
		j.logger().Error("snapshot export failed", slog.Any("error", err))
		return "", err
	}
	takenAt := j.now()
	raw, err := json.Marshal(snapshotDocument{
		TakenAt:  takenAt.Unix(),
		Avatars:  export.Avatars,
		Profiles: export.Profiles,
	})
	if err != nil {
		return "", fmt.Errorf("snapshot: encode: %w", err)
	}

	key = SnapshotKeyPrefix + strconv.FormatInt(takenAt.Unix(), 10)
	if err := j.KV.SetWithTTL(ctx, key, string(raw), retention); err != nil {
		return "", err
	}
	if err := j.KV.SetWithTTL(ctx, SnapshotLatestKey, key, retention); err != nil {
		return "", err
	}

	j.Metrics.SetSnapshotSize(profiles.KeyAvatars, export.Avatars.Len())
	j.Metrics.SetSnapshotSize(profiles.KeyProfiles, export.Profiles.Len())
	j.logger().Info("profiles snapshot written",
		slog.String("key", key),
		slog.Int("avatars", export.Avatars.Len()),
		slog.Int("profiles", export.Profiles.Len()),
		slog.Duration("retention", retention),
	)
	return key, nil
}

// HandleRestore processes TaskProfilesRestore tasks. A missing or malformed
// snapshot is not retried.
func (j *SnapshotJob) HandleRestore(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("snapshot: handler not configured")
	}
	var payload RestorePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	err := j.Restore(ctx, payload.Key)
	if errors.Is(err, ErrNoSnapshot) || errors.Is(err, profiles.ErrMalformedExport) {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	return err
}

// Restore replaces the collections with the snapshot stored at key, or the
// latest snapshot when key is empty.
func (j *SnapshotJob) Restore(ctx context.Context, key string) (err error) {
	tracker := j.Metrics.Track(TaskProfilesRestore)
	defer func() {
		err = tracker.End(err)
	}()

	if key == "" {
		latest, ok, err := j.KV.Get(ctx, SnapshotLatestKey)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNoSnapshot
		}
		key = latest
	}
	raw, ok, err := j.KV.Get(ctx, key)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoSnapshot, key)
	}
	export, err := profiles.DecodeExport(raw)
	if err != nil {
		j.logger().Warn("snapshot unreadable", slog.String("key", key), slog.Any("error", err))
		return err
	}
	if err := j.Store.Import(ctx, export); err != nil {
		return err
	}
	j.logger().Info("profiles restored",
		slog.String("key", key),
		slog.Int("avatars", export.Avatars.Len()),
		slog.Int("profiles", export.Profiles.Len()),
	)
	return nil
}

func (j *SnapshotJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}

func (j *SnapshotJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
