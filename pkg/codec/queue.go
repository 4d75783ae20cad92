package codec

import (
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/errors"
)

// BinaryQueue is a FIFO byte buffer used for socket I/O staging. Appended
// slices are kept as chunks; Consume and Peek cross chunk boundaries.
type BinaryQueue struct {
	chunks [][]byte
	offset int
	size   int
}

// NewBinaryQueue creates an empty queue
func NewBinaryQueue() *BinaryQueue {
	return &BinaryQueue{}
}

// Append adds data to the back of the queue. The slice is copied so callers
// may reuse their buffers.
func (q *BinaryQueue) Append(data []byte) {
	if len(data) == 0 {
		return
	}
	chunk := make([]byte, len(data))
	copy(chunk, data)
	q.chunks = append(q.chunks, chunk)
	q.size += len(chunk)
}

// Size returns the number of buffered bytes
func (q *BinaryQueue) Size() int {
	return q.size
}

// Peek returns the next n bytes without consuming them
func (q *BinaryQueue) Peek(n int) ([]byte, error) {
	if n > q.size {
		return nil, errors.New(errors.ErrOutOfData, "not enough data in queue").
			WithField("want", n).
			WithField("have", q.size)
	}
	out := make([]byte, 0, n)
	offset := q.offset
	for _, chunk := range q.chunks {
		if len(out) == n {
			break
		}
		part := chunk[offset:]
		offset = 0
		if len(part) > n-len(out) {
			part = part[:n-len(out)]
		}
		out = append(out, part...)
	}
	return out, nil
}

// Consume removes and returns the next n bytes
func (q *BinaryQueue) Consume(n int) ([]byte, error) {
	out, err := q.Peek(n)
	if err != nil {
		return nil, err
	}
	q.discard(n)
	return out, nil
}

func (q *BinaryQueue) discard(n int) {
	q.size -= n
	for n > 0 {
		head := len(q.chunks[0]) - q.offset
		if n < head {
			q.offset += n
			return
		}
		n -= head
		q.chunks = q.chunks[1:]
		q.offset = 0
	}
}

// AppendQueue moves the entire contents of other into q
func (q *BinaryQueue) AppendQueue(other *BinaryQueue) {
	if other.size == 0 {
		return
	}
	if other.offset > 0 {
		other.chunks[0] = other.chunks[0][other.offset:]
		other.offset = 0
	}
	q.chunks = append(q.chunks, other.chunks...)
	q.size += other.size
	other.chunks = nil
	other.size = 0
}

// Clear drops all buffered bytes
func (q *BinaryQueue) Clear() {
	q.chunks = nil
	q.offset = 0
	q.size = 0
}
