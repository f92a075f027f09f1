package telemetry

import (
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/user/proximity-beacon/logger"
	"gopkg.in/natefinch/lumberjack.v2"
)

const DefaultBuffer = 64

// Recorder is an asynchronous Sink that encodes records as CBOR on a single writer
// goroutine. Log never blocks: when the buffer is full the record is dropped and counted.
type Recorder struct {
	records chan Record
	done    chan struct{}
	enc     *cbor.Encoder
	closer  io.Closer
	now     func() time.Time

	mu      sync.RWMutex
	closed  bool
	dropped atomic.Uint64
	written atomic.Uint64
}

// NewRecorder starts a recorder writing to w. If w is an io.Closer it is closed by Close.
func NewRecorder(w io.Writer, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	r := &Recorder{
		records: make(chan Record, buffer),
		done:    make(chan struct{}),
		enc:     recordEncMode.NewEncoder(w),
		now:     time.Now,
	}
	if c, ok := w.(io.Closer); ok {
		r.closer = c
	}
	go r.run()
	return r
}

// OpenFile starts a recorder on a size-rotated file at path.
func OpenFile(path string, maxSizeMB, maxBackups, buffer int) (*Recorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}
	lj := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB, // MiB
		MaxBackups: maxBackups,
	}
	return NewRecorder(lj, buffer), nil
}

// Log queues a record. It is safe for concurrent use and after Close.
func (r *Recorder) Log(tag, message string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.dropped.Add(1)
		return
	}
	select {
	case r.records <- Record{Time: r.now().UTC(), Tag: tag, Message: message}:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns the number of records discarded because the buffer was full or the
// recorder was closed.
func (r *Recorder) Dropped() uint64 {
	return r.dropped.Load()
}

// Written returns the number of records handed to the encoder successfully.
func (r *Recorder) Written() uint64 {
	return r.written.Load()
}

// Close flushes queued records, stops the writer goroutine and closes the underlying
// writer. It is safe to call Close multiple times.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.records)
	r.mu.Unlock()

	<-r.done
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}

func (r *Recorder) run() {
	defer close(r.done)
	for rec := range r.records {
		if err := r.enc.Encode(rec); err != nil {
			logger.Warn("Telemetry", "failed to write record %q: %v", rec.Tag, err)
			continue
		}
		r.written.Add(1)
	}
}

var _ Sink = (*Recorder)(nil)
