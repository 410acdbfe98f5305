// Package audit records every model call of a generation run without
// putting the database write on the generation path.
package audit

import (
	"log/slog"
	"sync"

	"github.com/kalambet/chunkdim/internal/storage"
)

const defaultBuffer = 256

// Writer persists audit records.
type Writer interface {
	SaveAPIResponseLog(l storage.APIResponseLog) error
}

// DropCounter is told about records the sink could not accept.
type DropCounter interface {
	AuditDropped()
}

// Sink is a best-effort, buffered audit log. Record never blocks: when the
// buffer is full the record is dropped with a warning.
type Sink struct {
	w       Writer
	logger  *slog.Logger
	drops   DropCounter
	records chan storage.APIResponseLog
	done    chan struct{}

	mu     sync.RWMutex
	closed bool
}

// Options configures a Sink.
type Options struct {
	Buffer int
	Logger *slog.Logger
	Drops  DropCounter
}

// NewSink starts the goroutine draining records into w.
func NewSink(w Writer, opts Options) *Sink {
	if opts.Buffer <= 0 {
		opts.Buffer = defaultBuffer
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Sink{
		w:       w,
		logger:  opts.Logger,
		drops:   opts.Drops,
		records: make(chan storage.APIResponseLog, opts.Buffer),
		done:    make(chan struct{}),
	}
	go s.run()
	return s
}

// Record queues l for writing.
func (s *Sink) Record(l storage.APIResponseLog) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.drop(l, "sink closed")
		return
	}
	select {
	case s.records <- l:
	default:
		s.drop(l, "buffer full")
	}
}

func (s *Sink) drop(l storage.APIResponseLog, reason string) {
	s.logger.Warn("dropping audit record", "reason", reason, "run_id", l.RunID, "chunk_ref", l.ChunkRef, "template", l.TemplateName)
	if s.drops != nil {
		s.drops.AuditDropped()
	}
}

func (s *Sink) run() {
	defer close(s.done)
	for l := range s.records {
		if err := s.w.SaveAPIResponseLog(l); err != nil {
			s.logger.Warn("failed to write audit record", "run_id", l.RunID, "chunk_ref", l.ChunkRef, "error", err)
		}
	}
}

// Close stops accepting records and waits until the queued ones are written.
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.closed = true
	close(s.records)
	s.mu.Unlock()
	<-s.done
}
