package task

import (
	"context"
	"sync"
	"time"

	"docwebapi/batch"
)

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
)

// ItemFailure reports one input that could not be converted.
type ItemFailure struct {
	Input string `json:"input"`
	Error string `json:"error"`
}

// Task is an asynchronous batch conversion.
type Task struct {
	ID          string         `json:"id"`
	Status      Status         `json:"status"`
	Inputs      []string       `json:"-"`
	Progress    batch.Snapshot `json:"progress"`
	Message     string         `json:"message,omitempty"`
	Failures    []ItemFailure  `json:"failures,omitempty"`
	ArchivePath string         `json:"-"`
	DownloadURL string         `json:"downloadUrl,omitempty"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"createdAt"`
	StartedAt   *time.Time     `json:"startedAt,omitempty"`
	CompletedAt *time.Time     `json:"completedAt,omitempty"`

	mu         sync.Mutex
	cancelFunc context.CancelFunc
}

func timestamp() *time.Time {
	now := time.Now()
	return &now
}

// Copy returns a point-in-time copy that is safe to read and modify.
func (t *Task) Copy() *Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	return &Task{
		ID:          t.ID,
		Status:      t.Status,
		Inputs:      append([]string(nil), t.Inputs...),
		Progress:    t.Progress,
		Message:     t.Message,
		Failures:    append([]ItemFailure(nil), t.Failures...),
		ArchivePath: t.ArchivePath,
		DownloadURL: t.DownloadURL,
		Error:       t.Error,
		CreatedAt:   t.CreatedAt,
		StartedAt:   t.StartedAt,
		CompletedAt: t.CompletedAt,
	}
}

func (t *Task) update(fn func(t *Task)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fn(t)
}
