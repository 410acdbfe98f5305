package audit

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kalambet/chunkdim/internal/storage"
)

type fakeWriter struct {
	mu      sync.Mutex
	saved   []storage.APIResponseLog
	release chan struct{}
	err     error
}

func (f *fakeWriter) SaveAPIResponseLog(l storage.APIResponseLog) error {
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saved = append(f.saved, l)
	return f.err
}

func (f *fakeWriter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

type dropCounter struct {
	mu sync.Mutex
	n  int
}

func (d *dropCounter) AuditDropped() {
	d.mu.Lock()
	d.n++
	d.mu.Unlock()
}

func TestSinkWritesAllOnClose(t *testing.T) {
	w := &fakeWriter{}
	s := NewSink(w, Options{Buffer: 8})

	for i := 0; i < 5; i++ {
		s.Record(storage.APIResponseLog{ID: string(rune('a' + i)), RunID: "run-1"})
	}
	s.Close()

	require.Equal(t, 5, w.count())
	assert.Equal(t, "a", w.saved[0].ID)
	assert.Equal(t, "e", w.saved[4].ID)
}

func TestSinkDropsWhenFull(t *testing.T) {
	w := &fakeWriter{release: make(chan struct{})}
	drops := &dropCounter{}
	s := NewSink(w, Options{Buffer: 1, Drops: drops})

	// The drain goroutine holds at most one record while blocked on the
	// writer and the buffer holds one more, so of 5 records at least 3 drop.
	for i := 0; i < 5; i++ {
		s.Record(storage.APIResponseLog{ID: "x"})
	}
	close(w.release)
	s.Close()

	assert.GreaterOrEqual(t, drops.n, 3)
	assert.Equal(t, 5, w.count()+drops.n)
}

func TestSinkRecordAfterCloseDrops(t *testing.T) {
	w := &fakeWriter{}
	drops := &dropCounter{}
	s := NewSink(w, Options{Drops: drops})
	s.Close()
	s.Close()

	s.Record(storage.APIResponseLog{ID: "late"})
	assert.Equal(t, 0, w.count())
	assert.Equal(t, 1, drops.n)
}

func TestSinkWriteErrorDoesNotStopDrain(t *testing.T) {
	w := &fakeWriter{err: errors.New("disk full")}
	s := NewSink(w, Options{})
	s.Record(storage.APIResponseLog{ID: "1"})
	s.Record(storage.APIResponseLog{ID: "2"})
	s.Close()

	assert.Equal(t, 2, w.count())
}
