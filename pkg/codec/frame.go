package codec

import (
	"bytes"
	"encoding/binary"

	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/errors"
)

// FrameSignature is the version-tagged magic opening every frame
const FrameSignature = "GKPR0001"

// HeaderLength is the fixed size of the frame header in bytes:
// 8 signature + 4 length + 1 opcode + 2 sequence
const HeaderLength = 15

// Frame is one length-prefixed protocol message
type Frame struct {
	OpCode   uint8
	Sequence uint16
	Payload  []byte
}

// SerializeFrame appends the wire form of a frame to out
func SerializeFrame(frame *Frame, out *BinaryQueue) {
	header := make([]byte, HeaderLength)
	copy(header[0:8], FrameSignature)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(frame.Payload)))
	header[12] = frame.OpCode
	binary.LittleEndian.PutUint16(header[13:15], frame.Sequence)
	out.Append(header)
	out.Append(frame.Payload)
}

// DeserializeFrame extracts one frame from the queue. A nil frame with a nil
// error means more data is required; nothing is consumed in that case.
func DeserializeFrame(queue *BinaryQueue) (*Frame, error) {
	if queue.Size() < HeaderLength {
		return nil, nil
	}

	header, err := queue.Peek(HeaderLength)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(header[0:8], []byte(FrameSignature)) {
		return nil, errors.New(errors.ErrInvalidSignature, "frame signature mismatch").
			WithField("signature", string(header[0:8]))
	}

	length := binary.LittleEndian.Uint32(header[8:12])
	if queue.Size() < HeaderLength+int(length) {
		return nil, nil
	}

	if _, err := queue.Consume(HeaderLength); err != nil {
		return nil, err
	}
	payload, err := queue.Consume(int(length))
	if err != nil {
		return nil, err
	}

	return &Frame{
		OpCode:   header[12],
		Sequence: binary.LittleEndian.Uint16(header[13:15]),
		Payload:  payload,
	}, nil
}
