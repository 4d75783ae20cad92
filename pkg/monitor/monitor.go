package monitor

import (
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/logger"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/types"
)

// DefaultBufferSize is the number of entries kept before the buffer flushes
const DefaultBufferSize = 100

// Sink receives batches of monitor entries when the buffer flushes.
// Implementations must not block; the daemon calls Flush from its dispatcher.
type Sink interface {
	Flush(entries []types.MonitorEntry)
}

// LogSink writes flushed entries to the structured log. It is the default
// sink when no external collector is registered.
type LogSink struct {
	log *logger.Logger
}

// NewLogSink creates a sink logging each flushed entry
func NewLogSink() *LogSink {
	return &LogSink{log: logger.New("monitor")}
}

// Flush logs every entry in the batch
func (s *LogSink) Flush(entries []types.MonitorEntry) {
	for _, e := range entries {
		s.log.WithFields(map[string]interface{}{
			"client":    e.Key.Client,
			"user":      e.Key.User,
			"privilege": e.Key.Privilege,
			"result":    e.Result.String(),
		}).Info("Access check")
	}
}

// Buffer is a bounded in-memory queue of monitor entries. When full it
// flushes itself to the sink and starts over.
type Buffer struct {
	capacity int
	sink     Sink
	entries  []types.MonitorEntry
	mu       sync.Mutex
}

// NewBuffer creates a buffer flushing to sink when capacity entries are held.
// A zero or negative capacity falls back to DefaultBufferSize; a nil sink
// falls back to the log sink.
func NewBuffer(capacity int, sink Sink) *Buffer {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	if sink == nil {
		sink = NewLogSink()
	}
	return &Buffer{
		capacity: capacity,
		sink:     sink,
		entries:  make([]types.MonitorEntry, 0, capacity),
	}
}

// Put appends one entry, stamping the time if unset
func (b *Buffer) Put(entry types.MonitorEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	b.entries = append(b.entries, entry)
	if len(b.entries) >= b.capacity {
		b.flushLocked()
	}
}

// Record is a convenience Put for one answered check
func (b *Buffer) Record(key types.PolicyKey, result types.PolicyType) {
	b.Put(types.MonitorEntry{Key: key, Result: result})
}

// Drain removes and returns up to max buffered entries without flushing the
// rest. A non-positive max drains everything.
func (b *Buffer) Drain(max int) []types.MonitorEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.entries)
	if max > 0 && max < n {
		n = max
	}
	out := make([]types.MonitorEntry, n)
	copy(out, b.entries[:n])
	b.entries = append(b.entries[:0], b.entries[n:]...)
	return out
}

// Size returns the number of buffered entries
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

// FlushNow pushes every buffered entry to the sink immediately
func (b *Buffer) FlushNow() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flushLocked()
}

func (b *Buffer) flushLocked() {
	if len(b.entries) == 0 {
		return
	}
	batch := make([]types.MonitorEntry, len(b.entries))
	copy(batch, b.entries)
	b.entries = b.entries[:0]
	b.sink.Flush(batch)
}
