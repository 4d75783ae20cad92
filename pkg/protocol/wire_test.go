package protocol

import (
	"reflect"
	"testing"
	"time"

	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/codec"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/errors"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/types"
)

func roundTrip(t *testing.T, msg Message) Message {
	t.Helper()

	frame := Encode(msg)
	if frame.OpCode != msg.Op() {
		t.Errorf("Encoded opcode %d, want %d", frame.OpCode, msg.Op())
	}
	if frame.Sequence != msg.Seq() {
		t.Errorf("Encoded sequence %d, want %d", frame.Sequence, msg.Seq())
	}

	// Full wire pass through the frame layer
	q := codec.NewBinaryQueue()
	codec.SerializeFrame(frame, q)
	if q.Size() != codec.HeaderLength+len(frame.Payload) {
		t.Errorf("Wire size %d, want length+%d", q.Size(), codec.HeaderLength)
	}
	decodedFrame, err := codec.DeserializeFrame(q)
	if err != nil {
		t.Fatalf("DeserializeFrame failed: %v", err)
	}

	decoded, err := Decode(decodedFrame)
	if err != nil {
		t.Fatalf("Decode failed for opcode %d: %v", msg.Op(), err)
	}
	return decoded
}

func TestMessageRoundTrips(t *testing.T) {
	key := types.NewPolicyKey("app-A", "user-1", "camera")
	filter := types.NewPolicyKey("*", "user-1", "*")
	ts := time.Date(2024, 5, 12, 9, 30, 0, 123456000, time.UTC)

	messages := []Message{
		NewCheckRequest(7, key),
		NewCheckResponse(7, types.AllowResult()),
		NewCancelRequest(8),
		NewCancelResponse(8),
		NewSimpleCheckRequest(9, key),
		NewSimpleCheckResponse(9, -1, types.DenyResult()),
		NewMonitorEntryPut(10, types.MonitorEntry{Key: key, Result: types.TypeAllow, Timestamp: ts}),
		NewInsertOrUpdateBucketRequest(11, "cam", types.DenyResult()),
		NewRemoveBucketRequest(12, "cam", true),
		NewSetPoliciesRequest(13,
			[]BucketedPolicy{
				{Bucket: "", Policy: types.Policy{Key: key, Result: types.BucketResult("cam")}},
				{Bucket: "cam", Policy: types.Policy{Key: filter, Result: types.AllowResult()}},
			},
			[]BucketedKey{{Bucket: "cam", Key: key}},
		),
		NewCodeResponse(14, CodeDbCorrupted),
		NewAdminCheckRequest(15, "cam", true, key),
		NewAdminCheckResponse(15, types.NoneResult(), true, false),
		NewListRequest(16, "", filter),
		NewListResponse(16, []types.Policy{{Key: key, Result: types.AllowResult()}}, true, false),
		NewEraseRequest(17, "", true, filter),
		NewDescriptionListRequest(18),
		NewDescriptionListResponse(18, []PolicyDescription{
			{Type: types.TypeDeny, Name: "DENY"},
			{Type: types.PolicyType(0x0010), Name: "ASK"},
		}, false),
		NewMonitorGetEntriesRequest(19, 100),
		NewMonitorGetEntriesResponse(19, []types.MonitorEntry{
			{Key: key, Result: types.TypeDeny, Timestamp: ts},
		}),
		NewAgentRegisterRequest(20, "popup-agent"),
		NewAgentRegisterResponse(20, CodeOK),
		NewAgentActionRequest(21, AgentActionCheck, "payload"),
		NewAgentActionResponse(21, AgentActionRespond, "verdict"),
	}

	for _, msg := range messages {
		decoded := roundTrip(t, msg)
		if !reflect.DeepEqual(msg, decoded) {
			t.Errorf("Round trip mismatch for opcode %d:\n got %#v\nwant %#v", msg.Op(), decoded, msg)
		}
	}
}

func TestDecodeTamperedSignature(t *testing.T) {
	frame := Encode(NewCheckRequest(7, types.NewPolicyKey("c", "u", "p")))
	q := codec.NewBinaryQueue()
	codec.SerializeFrame(frame, q)

	wire, _ := q.Consume(q.Size())
	wire[3] ^= 0x01

	bad := codec.NewBinaryQueue()
	bad.Append(wire)
	if _, err := codec.DeserializeFrame(bad); !errors.IsErrorCode(err, errors.ErrInvalidSignature) {
		t.Errorf("Expected invalid-signature error, got %v", err)
	}
}

func TestDecodeUnknownOpCode(t *testing.T) {
	_, err := Decode(&codec.Frame{OpCode: 99, Sequence: 1})
	if !errors.IsErrorCode(err, errors.ErrWrongOpCode) {
		t.Errorf("Expected wrong-opcode error, got %v", err)
	}
}

func TestDecodeTruncatedPayload(t *testing.T) {
	frame := Encode(NewCheckRequest(7, types.NewPolicyKey("client", "user", "priv")))
	frame.Payload = frame.Payload[:len(frame.Payload)-2]

	_, err := Decode(frame)
	if !errors.IsErrorCode(err, errors.ErrTruncated) {
		t.Errorf("Expected truncated error, got %v", err)
	}
}

func TestDecodeTrailingBytes(t *testing.T) {
	frame := Encode(NewCancelRequest(3))
	frame.Payload = append(frame.Payload, 0xAA)

	_, err := Decode(frame)
	if !errors.IsErrorCode(err, errors.ErrTrailingBytes) {
		t.Errorf("Expected trailing-bytes error, got %v", err)
	}
}
