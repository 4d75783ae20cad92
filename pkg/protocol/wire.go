package protocol

import (
	"time"

	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/codec"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/errors"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/types"
)

// Encode turns a message into a wire frame
func Encode(m Message) *codec.Frame {
	q := codec.NewBinaryQueue()
	s := codec.NewSerializer(q)

	switch msg := m.(type) {
	case *CheckRequest:
		putKey(s, msg.Key)
	case *CheckResponse:
		putResult(s, msg.Result)
	case *CancelRequest, *CancelResponse, *DescriptionListRequest:
		// no payload
	case *SimpleCheckRequest:
		putKey(s, msg.Key)
	case *SimpleCheckResponse:
		s.PutUint32(uint32(msg.RetCode))
		putResult(s, msg.Result)
	case *MonitorEntryPut:
		putMonitorEntry(s, msg.Entry)
	case *InsertOrUpdateBucketRequest:
		s.PutString(msg.BucketID)
		putResult(s, msg.Default)
	case *RemoveBucketRequest:
		s.PutString(msg.BucketID)
		s.PutBool(msg.Recursive)
	case *SetPoliciesRequest:
		s.PutUint32(uint32(len(msg.Insert)))
		for _, bp := range msg.Insert {
			s.PutString(bp.Bucket)
			putKey(s, bp.Policy.Key)
			putResult(s, bp.Policy.Result)
		}
		s.PutUint32(uint32(len(msg.Remove)))
		for _, bk := range msg.Remove {
			s.PutString(bk.Bucket)
			putKey(s, bk.Key)
		}
	case *CodeResponse:
		s.PutUint16(uint16(msg.Code))
	case *AdminCheckRequest:
		s.PutString(msg.StartBucket)
		s.PutBool(msg.Recursive)
		putKey(s, msg.Key)
	case *AdminCheckResponse:
		putResult(s, msg.Result)
		s.PutBool(msg.BucketValid)
		s.PutBool(msg.DbCorrupted)
	case *ListRequest:
		s.PutString(msg.Bucket)
		putKey(s, msg.Filter)
	case *ListResponse:
		s.PutUint32(uint32(len(msg.Policies)))
		for _, p := range msg.Policies {
			putKey(s, p.Key)
			putResult(s, p.Result)
		}
		s.PutBool(msg.BucketValid)
		s.PutBool(msg.DbCorrupted)
	case *EraseRequest:
		s.PutString(msg.StartBucket)
		s.PutBool(msg.Recursive)
		putKey(s, msg.Filter)
	case *DescriptionListResponse:
		s.PutUint32(uint32(len(msg.Descriptions)))
		for _, d := range msg.Descriptions {
			s.PutUint16(uint16(d.Type))
			s.PutString(d.Name)
		}
		s.PutBool(msg.DbCorrupted)
	case *MonitorGetEntriesRequest:
		s.PutUint32(msg.BufferSize)
	case *MonitorGetEntriesResponse:
		s.PutUint32(uint32(len(msg.Entries)))
		for _, e := range msg.Entries {
			putMonitorEntry(s, e)
		}
	case *AgentRegisterRequest:
		s.PutString(msg.AgentType)
	case *AgentRegisterResponse:
		s.PutUint16(uint16(msg.Code))
	case *AgentActionRequest:
		s.PutUint8(uint8(msg.ActionType))
		s.PutString(msg.Data)
	case *AgentActionResponse:
		s.PutUint8(uint8(msg.ActionType))
		s.PutString(msg.Data)
	}

	payload, _ := q.Consume(q.Size())
	return &codec.Frame{OpCode: m.Op(), Sequence: m.Seq(), Payload: payload}
}

// Decode turns a wire frame back into a typed message. The payload must
// deserialize completely: missing bytes fail as Truncated, leftover bytes as
// TrailingBytes, unknown opcodes as WrongOpCode.
func Decode(frame *codec.Frame) (Message, error) {
	q := codec.NewBinaryQueue()
	q.Append(frame.Payload)
	d := codec.NewDeserializer(q)
	seq := frame.Sequence

	var (
		msg Message
		err error
	)

	switch frame.OpCode {
	case OpCheckPolicyRequest:
		var key types.PolicyKey
		if key, err = getKey(d); err == nil {
			msg = NewCheckRequest(seq, key)
		}
	case OpCheckPolicyResponse:
		var result types.PolicyResult
		if result, err = getResult(d); err == nil {
			msg = NewCheckResponse(seq, result)
		}
	case OpCancelRequest:
		msg = NewCancelRequest(seq)
	case OpCancelResponse:
		msg = NewCancelResponse(seq)
	case OpSimpleCheckRequest:
		var key types.PolicyKey
		if key, err = getKey(d); err == nil {
			msg = NewSimpleCheckRequest(seq, key)
		}
	case OpSimpleCheckResponse:
		msg, err = decodeSimpleCheckResponse(d, seq)
	case OpMonitorEntryPut:
		var entry types.MonitorEntry
		if entry, err = getMonitorEntry(d); err == nil {
			msg = NewMonitorEntryPut(seq, entry)
		}
	case OpInsertOrUpdateBucket:
		msg, err = decodeInsertOrUpdateBucket(d, seq)
	case OpRemoveBucket:
		msg, err = decodeRemoveBucket(d, seq)
	case OpSetPolicies:
		msg, err = decodeSetPolicies(d, seq)
	case OpCodeResponse:
		var code uint16
		if code, err = d.Uint16(); err == nil {
			msg = NewCodeResponse(seq, Code(code))
		}
	case OpAdminCheckRequest:
		msg, err = decodeAdminCheckRequest(d, seq)
	case OpAdminCheckPolicyResponse:
		msg, err = decodeAdminCheckResponse(d, seq)
	case OpListRequest:
		msg, err = decodeListRequest(d, seq)
	case OpListResponse:
		msg, err = decodeListResponse(d, seq)
	case OpEraseRequest:
		msg, err = decodeEraseRequest(d, seq)
	case OpDescriptionListRequest:
		msg = NewDescriptionListRequest(seq)
	case OpDescriptionListResponse:
		msg, err = decodeDescriptionListResponse(d, seq)
	case OpMonitorGetEntries:
		var size uint32
		if size, err = d.Uint32(); err == nil {
			msg = NewMonitorGetEntriesRequest(seq, size)
		}
	case OpMonitorGetEntriesResponse:
		msg, err = decodeMonitorGetEntriesResponse(d, seq)
	case OpAgentRegisterRequest:
		var agentType string
		if agentType, err = d.String(); err == nil {
			msg = NewAgentRegisterRequest(seq, agentType)
		}
	case OpAgentRegisterResponse:
		var code uint16
		if code, err = d.Uint16(); err == nil {
			msg = NewAgentRegisterResponse(seq, Code(code))
		}
	case OpAgentActionRequest:
		msg, err = decodeAgentAction(d, seq, false)
	case OpAgentActionResponse:
		msg, err = decodeAgentAction(d, seq, true)
	default:
		return nil, errors.New(errors.ErrWrongOpCode, "unknown opcode").
			WithField("opcode", frame.OpCode)
	}

	if err != nil {
		if errors.IsErrorCode(err, errors.ErrOutOfData) {
			return nil, errors.Wrap(errors.ErrTruncated, "frame payload too short", err).
				WithField("opcode", frame.OpCode)
		}
		return nil, err
	}
	if q.Size() != 0 {
		return nil, errors.New(errors.ErrTrailingBytes, "frame payload has trailing bytes").
			WithField("opcode", frame.OpCode).
			WithField("trailing", q.Size())
	}
	return msg, nil
}

func decodeSimpleCheckResponse(d *codec.Deserializer, seq uint16) (Message, error) {
	retCode, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	result, err := getResult(d)
	if err != nil {
		return nil, err
	}
	return NewSimpleCheckResponse(seq, int32(retCode), result), nil
}

func decodeInsertOrUpdateBucket(d *codec.Deserializer, seq uint16) (Message, error) {
	bucketID, err := d.String()
	if err != nil {
		return nil, err
	}
	def, err := getResult(d)
	if err != nil {
		return nil, err
	}
	return NewInsertOrUpdateBucketRequest(seq, bucketID, def), nil
}

func decodeRemoveBucket(d *codec.Deserializer, seq uint16) (Message, error) {
	bucketID, err := d.String()
	if err != nil {
		return nil, err
	}
	recursive, err := d.Bool()
	if err != nil {
		return nil, err
	}
	return NewRemoveBucketRequest(seq, bucketID, recursive), nil
}

func decodeSetPolicies(d *codec.Deserializer, seq uint16) (Message, error) {
	insertCount, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	insert := make([]BucketedPolicy, 0, insertCount)
	for i := uint32(0); i < insertCount; i++ {
		bucket, err := d.String()
		if err != nil {
			return nil, err
		}
		key, err := getKey(d)
		if err != nil {
			return nil, err
		}
		result, err := getResult(d)
		if err != nil {
			return nil, err
		}
		insert = append(insert, BucketedPolicy{Bucket: bucket, Policy: types.Policy{Key: key, Result: result}})
	}

	removeCount, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	remove := make([]BucketedKey, 0, removeCount)
	for i := uint32(0); i < removeCount; i++ {
		bucket, err := d.String()
		if err != nil {
			return nil, err
		}
		key, err := getKey(d)
		if err != nil {
			return nil, err
		}
		remove = append(remove, BucketedKey{Bucket: bucket, Key: key})
	}
	return NewSetPoliciesRequest(seq, insert, remove), nil
}

func decodeAdminCheckRequest(d *codec.Deserializer, seq uint16) (Message, error) {
	startBucket, err := d.String()
	if err != nil {
		return nil, err
	}
	recursive, err := d.Bool()
	if err != nil {
		return nil, err
	}
	key, err := getKey(d)
	if err != nil {
		return nil, err
	}
	return NewAdminCheckRequest(seq, startBucket, recursive, key), nil
}

func decodeAdminCheckResponse(d *codec.Deserializer, seq uint16) (Message, error) {
	result, err := getResult(d)
	if err != nil {
		return nil, err
	}
	bucketValid, err := d.Bool()
	if err != nil {
		return nil, err
	}
	dbCorrupted, err := d.Bool()
	if err != nil {
		return nil, err
	}
	return NewAdminCheckResponse(seq, result, bucketValid, dbCorrupted), nil
}

func decodeListRequest(d *codec.Deserializer, seq uint16) (Message, error) {
	bucket, err := d.String()
	if err != nil {
		return nil, err
	}
	filter, err := getKey(d)
	if err != nil {
		return nil, err
	}
	return NewListRequest(seq, bucket, filter), nil
}

func decodeListResponse(d *codec.Deserializer, seq uint16) (Message, error) {
	count, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	policies := make([]types.Policy, 0, count)
	for i := uint32(0); i < count; i++ {
		key, err := getKey(d)
		if err != nil {
			return nil, err
		}
		result, err := getResult(d)
		if err != nil {
			return nil, err
		}
		policies = append(policies, types.Policy{Key: key, Result: result})
	}
	bucketValid, err := d.Bool()
	if err != nil {
		return nil, err
	}
	dbCorrupted, err := d.Bool()
	if err != nil {
		return nil, err
	}
	return NewListResponse(seq, policies, bucketValid, dbCorrupted), nil
}

func decodeEraseRequest(d *codec.Deserializer, seq uint16) (Message, error) {
	startBucket, err := d.String()
	if err != nil {
		return nil, err
	}
	recursive, err := d.Bool()
	if err != nil {
		return nil, err
	}
	filter, err := getKey(d)
	if err != nil {
		return nil, err
	}
	return NewEraseRequest(seq, startBucket, recursive, filter), nil
}

func decodeDescriptionListResponse(d *codec.Deserializer, seq uint16) (Message, error) {
	count, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	descriptions := make([]PolicyDescription, 0, count)
	for i := uint32(0); i < count; i++ {
		pt, err := d.Uint16()
		if err != nil {
			return nil, err
		}
		name, err := d.String()
		if err != nil {
			return nil, err
		}
		descriptions = append(descriptions, PolicyDescription{Type: types.PolicyType(pt), Name: name})
	}
	dbCorrupted, err := d.Bool()
	if err != nil {
		return nil, err
	}
	return NewDescriptionListResponse(seq, descriptions, dbCorrupted), nil
}

func decodeMonitorGetEntriesResponse(d *codec.Deserializer, seq uint16) (Message, error) {
	count, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	entries := make([]types.MonitorEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		entry, err := getMonitorEntry(d)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return NewMonitorGetEntriesResponse(seq, entries), nil
}

func decodeAgentAction(d *codec.Deserializer, seq uint16, response bool) (Message, error) {
	actionType, err := d.Uint8()
	if err != nil {
		return nil, err
	}
	data, err := d.String()
	if err != nil {
		return nil, err
	}
	if response {
		return NewAgentActionResponse(seq, AgentActionType(actionType), data), nil
	}
	return NewAgentActionRequest(seq, AgentActionType(actionType), data), nil
}

func putKey(s *codec.Serializer, key types.PolicyKey) {
	s.PutString(key.Client)
	s.PutString(key.User)
	s.PutString(key.Privilege)
}

func getKey(d *codec.Deserializer) (types.PolicyKey, error) {
	client, err := d.String()
	if err != nil {
		return types.PolicyKey{}, err
	}
	user, err := d.String()
	if err != nil {
		return types.PolicyKey{}, err
	}
	privilege, err := d.String()
	if err != nil {
		return types.PolicyKey{}, err
	}
	return types.NewPolicyKey(client, user, privilege), nil
}

func putResult(s *codec.Serializer, result types.PolicyResult) {
	s.PutUint16(uint16(result.Type))
	s.PutString(result.Metadata)
}

func getResult(d *codec.Deserializer) (types.PolicyResult, error) {
	pt, err := d.Uint16()
	if err != nil {
		return types.PolicyResult{}, err
	}
	metadata, err := d.String()
	if err != nil {
		return types.PolicyResult{}, err
	}
	return types.PolicyResult{Type: types.PolicyType(pt), Metadata: metadata}, nil
}

func putMonitorEntry(s *codec.Serializer, entry types.MonitorEntry) {
	putKey(s, entry.Key)
	s.PutUint16(uint16(entry.Result))
	s.PutUint64(uint64(entry.Timestamp.UnixMicro()))
}

func getMonitorEntry(d *codec.Deserializer) (types.MonitorEntry, error) {
	key, err := getKey(d)
	if err != nil {
		return types.MonitorEntry{}, err
	}
	result, err := d.Uint16()
	if err != nil {
		return types.MonitorEntry{}, err
	}
	micros, err := d.Uint64()
	if err != nil {
		return types.MonitorEntry{}, err
	}
	return types.MonitorEntry{
		Key:       key,
		Result:    types.PolicyType(result),
		Timestamp: time.UnixMicro(int64(micros)).UTC(),
	}, nil
}
