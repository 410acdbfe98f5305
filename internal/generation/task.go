package generation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/kalambet/chunkdim/internal/storage"
)

// TaskType is the queue task type of a background generation run.
const TaskType = "generate_dimensions"

// Enqueuer puts work on the background task queue.
type Enqueuer interface {
	EnqueueTask(t storage.Task) error
}

type taskPayload struct {
	RunID   string  `json:"run_id"`
	Request Request `json:"request"`
}

// Start records a new run and queues its execution, returning the run
// without waiting for any chunk to be processed.
func (e *Engine) Start(q Enqueuer, req Request) (storage.Run, error) {
	run, err := e.StartRun(req)
	if err != nil {
		return storage.Run{}, err
	}
	payload, err := json.Marshal(taskPayload{RunID: run.RunID, Request: req})
	if err != nil {
		return storage.Run{}, fmt.Errorf("encoding generation task: %w", err)
	}
	if err := q.EnqueueTask(storage.Task{ID: e.cfg.NewID(), Type: TaskType, PayloadJSON: string(payload)}); err != nil {
		msg := "queueing run: " + err.Error()
		status := RunFailed
		now := e.cfg.Now()
		if uerr := e.store.UpdateRun(run.RunID, storage.RunUpdate{Status: &status, ErrorMessage: &msg, CompletedAt: &now}); uerr != nil {
			e.logger.Error("failed to mark run failed", "run_id", run.RunID, "error", uerr)
		}
		return storage.Run{}, fmt.Errorf("queueing generation run: %w", err)
	}
	e.logger.Info("generation run queued", "run_id", run.RunID, "document_id", req.DocumentID)
	return run, nil
}

// HandleTask executes a queued generation run.
func (e *Engine) HandleTask(ctx context.Context, payload string) error {
	var p taskPayload
	if err := json.Unmarshal([]byte(payload), &p); err != nil {
		return fmt.Errorf("decoding generation task: %w", err)
	}
	return e.ExecuteRun(ctx, p.RunID, p.Request)
}
