package monitor

import (
	"testing"
	"time"

	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/types"
)

// captureSink collects flushed batches for assertions
type captureSink struct {
	batches [][]types.MonitorEntry
}

func (c *captureSink) Flush(entries []types.MonitorEntry) {
	c.batches = append(c.batches, entries)
}

func entry(client string, result types.PolicyType) types.MonitorEntry {
	return types.MonitorEntry{
		Key:       types.NewPolicyKey(client, "user", "privilege"),
		Result:    result,
		Timestamp: time.Now().UTC(),
	}
}

func TestBufferFlushesAtCapacity(t *testing.T) {
	sink := &captureSink{}
	b := NewBuffer(3, sink)

	b.Put(entry("a", types.TypeAllow))
	b.Put(entry("b", types.TypeDeny))
	if len(sink.batches) != 0 {
		t.Fatalf("Expected no flush below capacity, got %d", len(sink.batches))
	}

	b.Put(entry("c", types.TypeAllow))
	if len(sink.batches) != 1 {
		t.Fatalf("Expected one flush at capacity, got %d", len(sink.batches))
	}
	if len(sink.batches[0]) != 3 {
		t.Errorf("Expected 3 entries in batch, got %d", len(sink.batches[0]))
	}
	if b.Size() != 0 {
		t.Errorf("Expected empty buffer after flush, got %d", b.Size())
	}
}

func TestBufferDrain(t *testing.T) {
	b := NewBuffer(10, &captureSink{})
	for i := 0; i < 5; i++ {
		b.Put(entry("client", types.TypeDeny))
	}

	got := b.Drain(2)
	if len(got) != 2 {
		t.Errorf("Expected 2 drained entries, got %d", len(got))
	}
	if b.Size() != 3 {
		t.Errorf("Expected 3 entries left, got %d", b.Size())
	}

	got = b.Drain(0)
	if len(got) != 3 {
		t.Errorf("Expected full drain of 3 entries, got %d", len(got))
	}
	if b.Size() != 0 {
		t.Errorf("Expected empty buffer, got %d", b.Size())
	}
}

func TestBufferStampsTimestamp(t *testing.T) {
	b := NewBuffer(10, &captureSink{})
	b.Record(types.NewPolicyKey("c", "u", "p"), types.TypeAllow)

	got := b.Drain(0)
	if len(got) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(got))
	}
	if got[0].Timestamp.IsZero() {
		t.Error("Expected timestamp to be stamped")
	}
}

func TestFlushNow(t *testing.T) {
	sink := &captureSink{}
	b := NewBuffer(100, sink)
	b.Put(entry("a", types.TypeAllow))

	b.FlushNow()
	if len(sink.batches) != 1 || len(sink.batches[0]) != 1 {
		t.Fatalf("Expected immediate flush of 1 entry, got %v", sink.batches)
	}

	// Flushing an empty buffer is a no-op
	b.FlushNow()
	if len(sink.batches) != 1 {
		t.Errorf("Expected no extra flush, got %d", len(sink.batches))
	}
}
