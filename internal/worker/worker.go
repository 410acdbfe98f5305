// Package worker drains the background task queue, dispatching each task to
// the handler registered for its type.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/kalambet/chunkdim/internal/storage"
)

// TaskStore abstracts the task queue operations.
type TaskStore interface {
	ClaimNextTask(types []string) (*storage.Task, error)
	CompleteTask(id string) error
	FailTask(id string, errMsg string) error
}

// Handler executes one task payload.
type Handler interface {
	HandleTask(ctx context.Context, payload string) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, payload string) error

func (f HandlerFunc) HandleTask(ctx context.Context, payload string) error { return f(ctx, payload) }

// Worker processes queued tasks one at a time. Failed tasks are not retried.
type Worker struct {
	store    TaskStore
	handlers map[string]Handler
	types    []string
	poll     time.Duration
	logger   *slog.Logger
}

// New creates a Worker. If pollInterval is <= 0, it defaults to 500ms.
func New(store TaskStore, pollInterval time.Duration, logger *slog.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		store:    store,
		handlers: make(map[string]Handler),
		poll:     pollInterval,
		logger:   logger,
	}
}

// Handle registers h for tasks of the given type. It must be called before Run.
func (w *Worker) Handle(taskType string, h Handler) {
	w.handlers[taskType] = h
	w.types = w.types[:0]
	for t := range w.handlers {
		w.types = append(w.types, t)
	}
	sort.Strings(w.types)
}

// Run polls for tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single task.
// Returns true if a task was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	task, err := w.store.ClaimNextTask(w.types)
	if err != nil {
		return false, fmt.Errorf("claiming task: %w", err)
	}
	if task == nil {
		return false, nil
	}

	log := w.logger.With("task_id", task.ID, "type", task.Type)
	h, ok := w.handlers[task.Type]
	if !ok {
		err = fmt.Errorf("no handler for task type %q", task.Type)
	} else {
		start := time.Now()
		err = h.HandleTask(ctx, task.PayloadJSON)
		log = log.With("duration", time.Since(start))
	}

	if err != nil {
		log.Warn("task failed", "error", err)
		if failErr := w.store.FailTask(task.ID, err.Error()); failErr != nil {
			log.Error("failed to mark task as failed", "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteTask(task.ID); err != nil {
		return true, fmt.Errorf("completing task %s: %w", task.ID, err)
	}
	log.Debug("task completed")
	return true, nil
}
