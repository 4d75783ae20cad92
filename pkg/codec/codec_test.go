package codec

import (
	"bytes"
	"testing"

	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/errors"
)

func TestBinaryQueueAppendConsume(t *testing.T) {
	q := NewBinaryQueue()
	q.Append([]byte("hello"))
	q.Append([]byte(" world"))

	if q.Size() != 11 {
		t.Fatalf("Expected size 11, got %d", q.Size())
	}

	// Peek must not consume
	peeked, err := q.Peek(5)
	if err != nil {
		t.Fatalf("Peek failed: %v", err)
	}
	if string(peeked) != "hello" {
		t.Errorf("Expected peek 'hello', got %q", peeked)
	}
	if q.Size() != 11 {
		t.Errorf("Peek consumed data, size %d", q.Size())
	}

	// Consume across chunk boundary
	got, err := q.Consume(7)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if string(got) != "hello w" {
		t.Errorf("Expected 'hello w', got %q", got)
	}
	if q.Size() != 4 {
		t.Errorf("Expected size 4, got %d", q.Size())
	}

	rest, err := q.Consume(4)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if string(rest) != "orld" {
		t.Errorf("Expected 'orld', got %q", rest)
	}
}

func TestBinaryQueueOutOfData(t *testing.T) {
	q := NewBinaryQueue()
	q.Append([]byte("abc"))

	if _, err := q.Consume(4); !errors.IsErrorCode(err, errors.ErrOutOfData) {
		t.Errorf("Expected out-of-data error, got %v", err)
	}
	// The failed consume must not have touched the queue
	if q.Size() != 3 {
		t.Errorf("Expected size 3 after failed consume, got %d", q.Size())
	}
}

func TestSerializationRoundTrip(t *testing.T) {
	q := NewBinaryQueue()
	s := NewSerializer(q)
	s.PutUint8(0x42)
	s.PutUint16(0xBEEF)
	s.PutUint32(0xDEADBEEF)
	s.PutBool(true)
	s.PutBool(false)
	s.PutString("camera")
	s.PutString("")

	d := NewDeserializer(q)
	if v, _ := d.Uint8(); v != 0x42 {
		t.Errorf("Uint8 = %#x", v)
	}
	if v, _ := d.Uint16(); v != 0xBEEF {
		t.Errorf("Uint16 = %#x", v)
	}
	if v, _ := d.Uint32(); v != 0xDEADBEEF {
		t.Errorf("Uint32 = %#x", v)
	}
	if v, _ := d.Bool(); v != true {
		t.Error("Bool = false, want true")
	}
	if v, _ := d.Bool(); v != false {
		t.Error("Bool = true, want false")
	}
	if v, _ := d.String(); v != "camera" {
		t.Errorf("String = %q", v)
	}
	if v, _ := d.String(); v != "" {
		t.Errorf("String = %q, want empty", v)
	}
	if q.Size() != 0 {
		t.Errorf("Expected drained queue, %d bytes left", q.Size())
	}
}

func TestSerializationLittleEndian(t *testing.T) {
	q := NewBinaryQueue()
	NewSerializer(q).PutUint32(0x01020304)
	b, err := q.Consume(4)
	if err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if !bytes.Equal(b, []byte{0x04, 0x03, 0x02, 0x01}) {
		t.Errorf("Expected little-endian bytes, got %v", b)
	}
}

func TestDeserializeStringBogusLength(t *testing.T) {
	q := NewBinaryQueue()
	NewSerializer(q).PutUint32(0xFFFFFFFF)
	q.Append([]byte("short"))

	if _, err := NewDeserializer(q).String(); !errors.IsErrorCode(err, errors.ErrOutOfData) {
		t.Errorf("Expected out-of-data error, got %v", err)
	}
}

func TestFrameRoundTrip(t *testing.T) {
	payload := []byte("some payload bytes")
	in := &Frame{OpCode: 7, Sequence: 42, Payload: payload}

	q := NewBinaryQueue()
	SerializeFrame(in, q)

	if q.Size() != HeaderLength+len(payload) {
		t.Errorf("Expected %d bytes on the wire, got %d", HeaderLength+len(payload), q.Size())
	}

	out, err := DeserializeFrame(q)
	if err != nil {
		t.Fatalf("DeserializeFrame failed: %v", err)
	}
	if out == nil {
		t.Fatal("Expected a complete frame")
	}
	if out.OpCode != in.OpCode || out.Sequence != in.Sequence {
		t.Errorf("Header mismatch: %+v", out)
	}
	if !bytes.Equal(out.Payload, payload) {
		t.Errorf("Payload mismatch: %q", out.Payload)
	}
	if q.Size() != 0 {
		t.Errorf("Expected drained queue, %d bytes left", q.Size())
	}
}

func TestFramePartialData(t *testing.T) {
	q := NewBinaryQueue()
	SerializeFrame(&Frame{OpCode: 1, Sequence: 1, Payload: []byte("payload")}, q)

	wire, _ := q.Consume(q.Size())

	// Feed the bytes one at a time; only the last byte completes the frame
	partial := NewBinaryQueue()
	for i, b := range wire {
		partial.Append([]byte{b})
		frame, err := DeserializeFrame(partial)
		if err != nil {
			t.Fatalf("Unexpected error at byte %d: %v", i, err)
		}
		if i < len(wire)-1 {
			if frame != nil {
				t.Fatalf("Got a frame after only %d bytes", i+1)
			}
			if partial.Size() != i+1 {
				t.Fatalf("Partial frame consumed data at byte %d", i)
			}
		} else if frame == nil {
			t.Fatal("Expected a frame after the full wire image")
		}
	}
}

func TestFrameInvalidSignature(t *testing.T) {
	q := NewBinaryQueue()
	SerializeFrame(&Frame{OpCode: 0, Sequence: 7, Payload: []byte("x")}, q)

	wire, _ := q.Consume(q.Size())
	wire[0] ^= 0xFF

	bad := NewBinaryQueue()
	bad.Append(wire)
	if _, err := DeserializeFrame(bad); !errors.IsErrorCode(err, errors.ErrInvalidSignature) {
		t.Errorf("Expected invalid-signature error, got %v", err)
	}
}
