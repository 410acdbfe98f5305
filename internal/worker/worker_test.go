package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/chunkdim/internal/storage"
)

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	s, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func enqueue(t *testing.T, store *storage.Store, id, taskType, payload string) {
	t.Helper()
	if err := store.EnqueueTask(storage.Task{ID: id, Type: taskType, PayloadJSON: payload}); err != nil {
		t.Fatalf("EnqueueTask: %v", err)
	}
}

func TestWorker_DispatchesByType(t *testing.T) {
	store := openTestStore(t)
	enqueue(t, store, "t-1", "extract_document", `{"job_id":"j"}`)

	var got string
	w := New(store, 0, nil)
	w.Handle("extract_document", HandlerFunc(func(_ context.Context, payload string) error {
		got = payload
		return nil
	}))
	w.Handle("generate_dimensions", HandlerFunc(func(context.Context, string) error {
		t.Error("wrong handler called")
		return nil
	}))

	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if !didWork {
		t.Fatal("RunOnce returned false, expected true")
	}
	if got != `{"job_id":"j"}` {
		t.Errorf("payload = %q", got)
	}

	task, err := store.GetTask("t-1")
	if err != nil {
		t.Fatalf("GetTask: %v", err)
	}
	if task.Status != storage.TaskCompleted {
		t.Errorf("status = %q, want completed", task.Status)
	}
}

func TestWorker_FailureIsNotRetried(t *testing.T) {
	store := openTestStore(t)
	enqueue(t, store, "t-1", "generate_dimensions", `{}`)

	var calls atomic.Int32
	w := New(store, 0, nil)
	w.Handle("generate_dimensions", HandlerFunc(func(context.Context, string) error {
		calls.Add(1)
		return errors.New("model unavailable")
	}))

	for i := 0; i < 2; i++ {
		if _, err := w.RunOnce(context.Background()); err != nil {
			t.Fatalf("RunOnce error: %v", err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("handler called %d times, want 1", calls.Load())
	}

	task, _ := store.GetTask("t-1")
	if task.Status != storage.TaskFailed {
		t.Errorf("status = %q, want failed", task.Status)
	}
	if task.LastError != "model unavailable" {
		t.Errorf("LastError = %q", task.LastError)
	}
}

func TestWorker_IgnoresUnregisteredTypes(t *testing.T) {
	store := openTestStore(t)
	enqueue(t, store, "t-1", "something_else", `{}`)

	w := New(store, 0, nil)
	w.Handle("extract_document", HandlerFunc(func(context.Context, string) error { return nil }))

	didWork, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce error: %v", err)
	}
	if didWork {
		t.Error("claimed a task with no handler")
	}
}

func TestWorker_RunStopsOnCancel(t *testing.T) {
	store := openTestStore(t)
	enqueue(t, store, "t-1", "extract_document", `{}`)
	enqueue(t, store, "t-2", "extract_document", `{}`)

	var calls atomic.Int32
	w := New(store, 10*time.Millisecond, nil)
	w.Handle("extract_document", HandlerFunc(func(context.Context, string) error {
		calls.Add(1)
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("processed %d tasks, want 2", calls.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
