package codec

import (
	"encoding/binary"

	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/errors"
)

// Serializer writes primitive values to a BinaryQueue in wire order.
// Integers are little-endian; strings are a u32 length followed by raw bytes.
type Serializer struct {
	queue *BinaryQueue
}

// NewSerializer creates a serializer appending to queue
func NewSerializer(queue *BinaryQueue) *Serializer {
	return &Serializer{queue: queue}
}

// PutUint8 writes one unsigned byte
func (s *Serializer) PutUint8(v uint8) {
	s.queue.Append([]byte{v})
}

// PutUint16 writes a little-endian u16
func (s *Serializer) PutUint16(v uint16) {
	var buf [2]byte
	binary.LittleEndian.PutUint16(buf[:], v)
	s.queue.Append(buf[:])
}

// PutUint32 writes a little-endian u32
func (s *Serializer) PutUint32(v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	s.queue.Append(buf[:])
}

// PutUint64 writes a little-endian u64
func (s *Serializer) PutUint64(v uint64) {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	s.queue.Append(buf[:])
}

// PutBool writes a bool as one byte
func (s *Serializer) PutBool(v bool) {
	if v {
		s.PutUint8(1)
	} else {
		s.PutUint8(0)
	}
}

// PutString writes a u32 length followed by the raw bytes
func (s *Serializer) PutString(v string) {
	s.PutUint32(uint32(len(v)))
	s.queue.Append([]byte(v))
}

// Deserializer reads primitive values from a BinaryQueue, consuming them
type Deserializer struct {
	queue *BinaryQueue
}

// NewDeserializer creates a deserializer consuming from queue
func NewDeserializer(queue *BinaryQueue) *Deserializer {
	return &Deserializer{queue: queue}
}

// Uint8 reads one unsigned byte
func (d *Deserializer) Uint8() (uint8, error) {
	b, err := d.queue.Consume(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// Uint16 reads a little-endian u16
func (d *Deserializer) Uint16() (uint16, error) {
	b, err := d.queue.Consume(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// Uint32 reads a little-endian u32
func (d *Deserializer) Uint32() (uint32, error) {
	b, err := d.queue.Consume(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Uint64 reads a little-endian u64
func (d *Deserializer) Uint64() (uint64, error) {
	b, err := d.queue.Consume(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Bool reads a one-byte bool
func (d *Deserializer) Bool() (bool, error) {
	b, err := d.Uint8()
	if err != nil {
		return false, err
	}
	return b != 0, nil
}

// String reads a u32 length followed by that many raw bytes
func (d *Deserializer) String() (string, error) {
	n, err := d.Uint32()
	if err != nil {
		return "", err
	}
	if int(n) > d.queue.Size() {
		return "", errors.New(errors.ErrOutOfData, "string length exceeds buffered data").
			WithField("length", n)
	}
	b, err := d.queue.Consume(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
