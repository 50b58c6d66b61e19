package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"docwebapi/batch"
	"docwebapi/config"
	"docwebapi/convert"
	"docwebapi/workspace"
)

var ErrQueueFull = errors.New("task queue is full")

// JobRunner converts a single document. *convert.Converter implements it.
type JobRunner interface {
	Run(ctx context.Context, inputPath string) (*convert.Result, error)
}

// BatchReport is the outcome of one batch run.
type BatchReport struct {
	TaskID      string            `json:"taskId"`
	ArchivePath string            `json:"archivePath"`
	Status      string            `json:"status"`
	Results     []*convert.Result `json:"results"`
	Failures    []ItemFailure     `json:"failures"`
	Progress    batch.Snapshot    `json:"progress"`
}

type Manager struct {
	cfg            *config.Config
	runner         JobRunner
	ws             *workspace.Allocator
	executor       *batch.Executor
	aggregator     *batch.Aggregator
	tasks          sync.Map
	taskQueue      chan *Task
	concurrencySem chan struct{}
}

func NewManager(cfg *config.Config, ws *workspace.Allocator, runner JobRunner) (*Manager, error) {
	if ws == nil || runner == nil {
		return nil, errors.New("task manager needs a workspace allocator and a job runner")
	}
	queue := cfg.MaxQueue
	if queue <= 0 {
		queue = 100
	}
	batches := cfg.MaxBatches
	if batches <= 0 {
		batches = 1
	}
	m := &Manager{
		cfg:            cfg,
		runner:         runner,
		ws:             ws,
		executor:       batch.NewExecutor(cfg.MaxWorkers),
		aggregator:     &batch.Aggregator{},
		tasks:          sync.Map{},
		taskQueue:      make(chan *Task, queue),
		concurrencySem: make(chan struct{}, batches),
	}
	return m, nil
}

func (m *Manager) Workspaces() *workspace.Allocator { return m.ws }

func (m *Manager) Start(ctx context.Context) {
	slog.Info("task manager started", "max_workers", m.executor.MaxWorkers(), "max_batches", cap(m.concurrencySem))
	go m.cleanupLoop(ctx)
	go m.workerLoop(ctx)
}

// ConvertFile runs a single conversion job synchronously.
func (m *Manager) ConvertFile(ctx context.Context, inputPath string) (*convert.Result, error) {
	res, err := m.runner.Run(ctx, inputPath)
	if err != nil {
		slog.Error("conversion failed", "path", inputPath, "error", err)
		return nil, err
	}
	return res, nil
}

// RunBatch converts all inputs concurrently and merges the per-job archives
// into one batch archive. Individual failures are reported in the result;
// an error is returned only when no batch archive could be produced.
func (m *Manager) RunBatch(ctx context.Context, inputs []string) (*BatchReport, error) {
	if len(inputs) == 0 {
		return nil, errors.New("no input files")
	}
	ws, err := m.ws.Allocate(workspace.KindBatch)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", convert.ErrPackaging, err)
	}
	return m.runBatch(ctx, ws, inputs, nil)
}

func (m *Manager) runBatch(ctx context.Context, ws workspace.Workspace, inputs []string, onProgress func(batch.Snapshot, *ItemFailure)) (*BatchReport, error) {
	progress, err := batch.NewTracker(len(inputs), "batch "+ws.ID)
	if err != nil {
		return nil, err
	}

	outcomes := batch.Process(ctx, m.executor, inputs, m.runner.Run, func(o batch.Outcome[string, *convert.Result]) {
		s := progress.Update(1)
		slog.Info("processed file", "batch", ws.ID, "path", o.Item, "ok", o.OK(), "percentage", fmt.Sprintf("%.2f", s.Percentage))
		if onProgress == nil {
			return
		}
		if o.OK() {
			onProgress(s, nil)
		} else {
			onProgress(s, &ItemFailure{Input: o.Item, Error: o.Err.Error()})
		}
	})

	report := &BatchReport{TaskID: ws.ID, Progress: progress.Snapshot()}
	for _, o := range outcomes {
		if o.OK() {
			report.Results = append(report.Results, o.Value)
		} else {
			report.Failures = append(report.Failures, ItemFailure{Input: o.Item, Error: o.Err.Error()})
		}
	}
	sort.Slice(report.Failures, func(i, j int) bool { return report.Failures[i].Input < report.Failures[j].Input })

	if err := ctx.Err(); err != nil {
		report.Status = fmt.Sprintf("canceled: %d converted, %d failed", len(report.Results), len(report.Failures))
		return report, err
	}

	report.ArchivePath, err = m.aggregator.Aggregate(outcomes, ws)
	if err != nil {
		report.Status = fmt.Sprintf("packaging failed: %d converted, %d failed", len(report.Results), len(report.Failures))
		return report, err
	}

	report.Status = fmt.Sprintf("done: %d converted, %d failed", len(report.Results), len(report.Failures))
	slog.Info("batch finished", "batch", ws.ID, "status", report.Status, "archive", report.ArchivePath)
	return report, nil
}

// SubmitBatch queues an asynchronous batch and returns its task.
func (m *Manager) SubmitBatch(inputs []string) (*Task, error) {
	if len(inputs) == 0 {
		return nil, errors.New("no input files")
	}
	ws, err := m.ws.Allocate(workspace.KindBatch)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", convert.ErrPackaging, err)
	}

	t := &Task{
		ID:        ws.ID,
		Status:    StatusQueued,
		Inputs:    append([]string(nil), inputs...),
		Progress:  batch.Snapshot{Total: len(inputs)},
		CreatedAt: time.Now(),
	}

	m.tasks.Store(t.ID, t)
	select {
	case m.taskQueue <- t:
	default:
		m.tasks.Delete(t.ID)
		return nil, ErrQueueFull
	}
	slog.Info("batch submitted to queue", "task_id", t.ID, "files", len(inputs))
	return t.Copy(), nil
}

// workerLoop pulls tasks from the queue and processes them
func (m *Manager) workerLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			slog.Info("worker loop shutting down")
			return
		case t := <-m.taskQueue:
			// Wait for a free processing slot
			select {
			case m.concurrencySem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			go func(t *Task) {
				defer func() { <-m.concurrencySem }()
				m.processTask(ctx, t)
			}(t)
		}
	}
}

func (m *Manager) processTask(parentCtx context.Context, t *Task) {
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	canceled := false
	t.update(func(t *Task) {
		if t.Status == StatusCanceled {
			canceled = true
			return
		}
		t.Status = StatusProcessing
		t.StartedAt = timestamp()
		t.cancelFunc = cancel
	})
	if canceled {
		slog.Info("task was canceled before processing", "task_id", t.ID)
		return
	}

	ws, err := m.ws.Open(t.ID)
	var report *BatchReport
	if err == nil {
		report, err = m.runBatch(ctx, ws, t.Inputs, func(s batch.Snapshot, f *ItemFailure) {
			t.update(func(t *Task) {
				if s.Completed > t.Progress.Completed {
					t.Progress = s
				}
				if f != nil {
					t.Failures = append(t.Failures, *f)
				}
			})
		})
	}

	t.update(func(t *Task) {
		t.cancelFunc = nil
		t.CompletedAt = timestamp()
		if report != nil {
			t.Progress = report.Progress
			t.Failures = report.Failures
			t.Message = report.Status
			t.ArchivePath = report.ArchivePath
		}
		switch {
		case errors.Is(err, context.Canceled):
			t.Status = StatusCanceled
			t.Error = "Task was canceled"
		case err != nil:
			t.Status = StatusFailed
			t.Error = err.Error()
		default:
			t.Status = StatusCompleted
		}
	})
	slog.Info("task finished", "task_id", t.ID, "status", t.Copy().Status)
}

// cleanupLoop periodically removes old workspaces and forgets finished tasks.
func (m *Manager) cleanupLoop(ctx context.Context) {
	lifetime := m.cfg.OutputLocalLifetime
	if lifetime <= 0 {
		return
	}
	ticker := time.NewTicker(lifetime / 4) // Check 4 times per lifetime
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("cleanup loop shutting down")
			return
		case <-ticker.C:
			m.cleanup(lifetime)
		}
	}
}

func (m *Manager) cleanup(lifetime time.Duration) {
	inUse := m.activeWorkspaces()
	if _, err := m.ws.Sweep(lifetime, func(id string) bool { return inUse[id] }); err != nil {
		slog.Warn("workspace cleanup failed", "error", err)
	}
	m.tasks.Range(func(key, value interface{}) bool {
		t := value.(*Task).Copy()
		if t.CompletedAt != nil && time.Since(*t.CompletedAt) > lifetime {
			m.tasks.Delete(key)
		}
		return true
	})
}

// activeWorkspaces collects the batch and upload workspaces of tasks that
// have not finished yet.
func (m *Manager) activeWorkspaces() map[string]bool {
	inUse := map[string]bool{}
	m.tasks.Range(func(key, value interface{}) bool {
		t := value.(*Task).Copy()
		if t.Status != StatusQueued && t.Status != StatusProcessing {
			return true
		}
		inUse[t.ID] = true
		for _, in := range t.Inputs {
			if id, ok := m.ws.IDOf(in); ok {
				inUse[id] = true
			}
		}
		return true
	})
	return inUse
}

func (m *Manager) Get(taskID string) (*Task, bool) {
	if val, ok := m.tasks.Load(taskID); ok {
		return val.(*Task).Copy(), true
	}
	return nil, false
}

func (m *Manager) List() []*Task {
	var taskList []*Task
	m.tasks.Range(func(key, value interface{}) bool {
		taskList = append(taskList, value.(*Task).Copy())
		return true
	})
	sort.Slice(taskList, func(i, j int) bool { return taskList[i].CreatedAt.Before(taskList[j].CreatedAt) })
	return taskList
}

// Cancel stops a queued or running batch. Jobs already running are
// interrupted; files not yet started are skipped.
func (m *Manager) Cancel(taskID string) error {
	val, ok := m.tasks.Load(taskID)
	if !ok {
		return fmt.Errorf("task %s not found", taskID)
	}

	t := val.(*Task)
	var err error
	t.update(func(t *Task) {
		switch t.Status {
		case StatusCompleted, StatusFailed, StatusCanceled:
			err = fmt.Errorf("cannot cancel task in state: %s", t.Status)
		case StatusQueued:
			t.Status = StatusCanceled
			t.Error = "Canceled by user while in queue"
			t.CompletedAt = timestamp()
			slog.Info("task marked as canceled in queue", "task_id", t.ID)
		case StatusProcessing:
			if t.cancelFunc == nil {
				err = fmt.Errorf("task %s is processing but has no cancellation handle", t.ID)
				return
			}
			t.cancelFunc()
			slog.Info("cancellation signal sent to running task", "task_id", t.ID)
		}
	})
	return err
}

// FilePath locates a downloadable file inside a task's workspace.
func (m *Manager) FilePath(taskID, filename string) (string, error) {
	return m.ws.Resolve(taskID, filename)
}
