package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"

	"github.com/hashavatar/hashavatar/internal/platform/httpx"
)

// ErrUnknownTask is returned for task names the worker does not handle.
var ErrUnknownTask = errors.New("jobs: unknown task")

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// TaskByName prepares a task from its type name with its enqueue options.
// arg is the snapshot key for TaskProfilesRestore and ignored otherwise.
func TaskByName(name string, retention time.Duration, arg string) (*asynq.Task, []asynq.Option, error) {
	switch name {
	case TaskProfilesSnapshot:
		task, err := NewSnapshotTask(retention)
		return task, []asynq.Option{asynq.Queue(QueueDefault), asynq.MaxRetry(3)}, err
	case TaskProfilesRestore:
		task, err := NewRestoreTask(arg)
		return task, []asynq.Option{asynq.Queue(QueueDefault), asynq.MaxRetry(1)}, err
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
}

// Enqueue submits the named task.
func (c *Client) Enqueue(ctx context.Context, name string, retention time.Duration, arg string) (*asynq.TaskInfo, error) {
	task, opts, err := TaskByName(name, retention, arg)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task, opts...)
}

// EnqueueSnapshot enqueues a profiles:snapshot task.
func (c *Client) EnqueueSnapshot(ctx context.Context, retention time.Duration) (*asynq.TaskInfo, error) {
	return c.Enqueue(ctx, TaskProfilesSnapshot, retention, "")
}

// EnqueueRestore enqueues a profiles:restore task for key.
func (c *Client) EnqueueRestore(ctx context.Context, key string) (*asynq.TaskInfo, error) {
	return c.Enqueue(ctx, TaskProfilesRestore, 0, key)
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

// QueueInspector is the part of asynq.Inspector the health endpoint reads.
type QueueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// QueueHealth is the body of GET /jobs/health.
type QueueHealth struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Paused    bool   `json:"paused"`
}

// Handler exposes HTTP endpoints for job observability.
type Handler struct {
	inspector QueueInspector
	logger    *slog.Logger
}

// NewHandler constructs an HTTP handler for jobs endpoints. A nil inspector
// reports an empty queue.
func NewHandler(inspector QueueInspector, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{inspector: inspector, logger: logger}
}

// MountRoutes attaches job routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/health", h.health)
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	health := QueueHealth{Queue: QueueDefault}
	if h.inspector == nil {
		httpx.JSON(w, http.StatusOK, health)
		return
	}
	info, err := h.inspector.GetQueueInfo(QueueDefault)
	if err != nil {
		h.logger.Warn("jobs health", slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Queue unavailable", "the job queue could not be inspected")
		return
	}
	if info != nil {
		health = QueueHealth{
			Queue:     info.Queue,
			Pending:   info.Pending,
			Active:    info.Active,
			Scheduled: info.Scheduled,
			Retry:     info.Retry,
			Archived:  info.Archived,
			Paused:    info.Paused,
		}
	}
	httpx.JSON(w, http.StatusOK, health)
}
