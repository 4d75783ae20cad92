package protocol

import (
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/types"
)

// Message is one typed protocol operation. Concrete message structs carry the
// frame sequence number; the dispatcher pattern-matches on the concrete type.
type Message interface {
	Op() OpCode
	Seq() uint16
}

// base carries the sequence number shared by every message
type base struct {
	Sequence uint16
}

// Seq returns the frame sequence number
func (b base) Seq() uint16 { return b.Sequence }

// CheckRequest asks whether a key is permitted, with agent dispatch allowed
type CheckRequest struct {
	base
	Key types.PolicyKey
}

// Op returns the message opcode
func (CheckRequest) Op() OpCode { return OpCheckPolicyRequest }

// NewCheckRequest creates a CheckRequest
func NewCheckRequest(seq uint16, key types.PolicyKey) *CheckRequest {
	return &CheckRequest{base{seq}, key}
}

// CheckResponse answers a CheckRequest with the raw policy result
type CheckResponse struct {
	base
	Result types.PolicyResult
}

// Op returns the message opcode
func (CheckResponse) Op() OpCode { return OpCheckPolicyResponse }

// NewCheckResponse creates a CheckResponse
func NewCheckResponse(seq uint16, result types.PolicyResult) *CheckResponse {
	return &CheckResponse{base{seq}, result}
}

// CancelRequest cancels the pending check with the same sequence number
type CancelRequest struct {
	base
}

// Op returns the message opcode
func (CancelRequest) Op() OpCode { return OpCancelRequest }

// NewCancelRequest creates a CancelRequest
func NewCancelRequest(seq uint16) *CancelRequest {
	return &CancelRequest{base{seq}}
}

// CancelResponse confirms a cancellation
type CancelResponse struct {
	base
}

// Op returns the message opcode
func (CancelResponse) Op() OpCode { return OpCancelResponse }

// NewCancelResponse creates a CancelResponse
func NewCancelResponse(seq uint16) *CancelResponse {
	return &CancelResponse{base{seq}}
}

// SimpleCheckRequest asks for an immediate answer with no agent round-trip
type SimpleCheckRequest struct {
	base
	Key types.PolicyKey
}

// Op returns the message opcode
func (SimpleCheckRequest) Op() OpCode { return OpSimpleCheckRequest }

// NewSimpleCheckRequest creates a SimpleCheckRequest
func NewSimpleCheckRequest(seq uint16, key types.PolicyKey) *SimpleCheckRequest {
	return &SimpleCheckRequest{base{seq}, key}
}

// SimpleCheckResponse answers a SimpleCheckRequest
type SimpleCheckResponse struct {
	base
	RetCode int32
	Result  types.PolicyResult
}

// Op returns the message opcode
func (SimpleCheckResponse) Op() OpCode { return OpSimpleCheckResponse }

// NewSimpleCheckResponse creates a SimpleCheckResponse
func NewSimpleCheckResponse(seq uint16, retCode int32, result types.PolicyResult) *SimpleCheckResponse {
	return &SimpleCheckResponse{base{seq}, retCode, result}
}

// MonitorEntryPut carries one monitoring record from a client library
type MonitorEntryPut struct {
	base
	Entry types.MonitorEntry
}

// Op returns the message opcode
func (MonitorEntryPut) Op() OpCode { return OpMonitorEntryPut }

// NewMonitorEntryPut creates a MonitorEntryPut
func NewMonitorEntryPut(seq uint16, entry types.MonitorEntry) *MonitorEntryPut {
	return &MonitorEntryPut{base{seq}, entry}
}

// InsertOrUpdateBucketRequest creates a bucket or replaces its default
type InsertOrUpdateBucketRequest struct {
	base
	BucketID string
	Default  types.PolicyResult
}

// Op returns the message opcode
func (InsertOrUpdateBucketRequest) Op() OpCode { return OpInsertOrUpdateBucket }

// NewInsertOrUpdateBucketRequest creates an InsertOrUpdateBucketRequest
func NewInsertOrUpdateBucketRequest(seq uint16, bucketID string, def types.PolicyResult) *InsertOrUpdateBucketRequest {
	return &InsertOrUpdateBucketRequest{base{seq}, bucketID, def}
}

// RemoveBucketRequest deletes a bucket
type RemoveBucketRequest struct {
	base
	BucketID  string
	Recursive bool
}

// Op returns the message opcode
func (RemoveBucketRequest) Op() OpCode { return OpRemoveBucket }

// NewRemoveBucketRequest creates a RemoveBucketRequest
func NewRemoveBucketRequest(seq uint16, bucketID string, recursive bool) *RemoveBucketRequest {
	return &RemoveBucketRequest{base{seq}, bucketID, recursive}
}

// BucketedPolicy is a policy qualified with its owning bucket
type BucketedPolicy struct {
	Bucket string
	Policy types.Policy
}

// BucketedKey is a policy key qualified with its owning bucket
type BucketedKey struct {
	Bucket string
	Key    types.PolicyKey
}

// SetPoliciesRequest applies a batch of policy insertions and removals
type SetPoliciesRequest struct {
	base
	Insert []BucketedPolicy
	Remove []BucketedKey
}

// Op returns the message opcode
func (SetPoliciesRequest) Op() OpCode { return OpSetPolicies }

// NewSetPoliciesRequest creates a SetPoliciesRequest
func NewSetPoliciesRequest(seq uint16, insert []BucketedPolicy, remove []BucketedKey) *SetPoliciesRequest {
	return &SetPoliciesRequest{base{seq}, insert, remove}
}

// CodeResponse reports the outcome of an admin mutation
type CodeResponse struct {
	base
	Code Code
}

// Op returns the message opcode
func (CodeResponse) Op() OpCode { return OpCodeResponse }

// NewCodeResponse creates a CodeResponse
func NewCodeResponse(seq uint16, code Code) *CodeResponse {
	return &CodeResponse{base{seq}, code}
}

// AdminCheckRequest evaluates a key from an arbitrary start bucket
type AdminCheckRequest struct {
	base
	StartBucket string
	Recursive   bool
	Key         types.PolicyKey
}

// Op returns the message opcode
func (AdminCheckRequest) Op() OpCode { return OpAdminCheckRequest }

// NewAdminCheckRequest creates an AdminCheckRequest
func NewAdminCheckRequest(seq uint16, startBucket string, recursive bool, key types.PolicyKey) *AdminCheckRequest {
	return &AdminCheckRequest{base{seq}, startBucket, recursive, key}
}

// AdminCheckResponse answers an AdminCheckRequest
type AdminCheckResponse struct {
	base
	Result      types.PolicyResult
	BucketValid bool
	DbCorrupted bool
}

// Op returns the message opcode
func (AdminCheckResponse) Op() OpCode { return OpAdminCheckPolicyResponse }

// NewAdminCheckResponse creates an AdminCheckResponse
func NewAdminCheckResponse(seq uint16, result types.PolicyResult, bucketValid, dbCorrupted bool) *AdminCheckResponse {
	return &AdminCheckResponse{base{seq}, result, bucketValid, dbCorrupted}
}

// ListRequest lists the policies of one bucket matching a filter
type ListRequest struct {
	base
	Bucket string
	Filter types.PolicyKey
}

// Op returns the message opcode
func (ListRequest) Op() OpCode { return OpListRequest }

// NewListRequest creates a ListRequest
func NewListRequest(seq uint16, bucket string, filter types.PolicyKey) *ListRequest {
	return &ListRequest{base{seq}, bucket, filter}
}

// ListResponse answers a ListRequest
type ListResponse struct {
	base
	Policies    []types.Policy
	BucketValid bool
	DbCorrupted bool
}

// Op returns the message opcode
func (ListResponse) Op() OpCode { return OpListResponse }

// NewListResponse creates a ListResponse
func NewListResponse(seq uint16, policies []types.Policy, bucketValid, dbCorrupted bool) *ListResponse {
	return &ListResponse{base{seq}, policies, bucketValid, dbCorrupted}
}

// EraseRequest removes every policy matching a filter, optionally following
// bucket redirections depth-first
type EraseRequest struct {
	base
	StartBucket string
	Recursive   bool
	Filter      types.PolicyKey
}

// Op returns the message opcode
func (EraseRequest) Op() OpCode { return OpEraseRequest }

// NewEraseRequest creates an EraseRequest
func NewEraseRequest(seq uint16, startBucket string, recursive bool, filter types.PolicyKey) *EraseRequest {
	return &EraseRequest{base{seq}, startBucket, recursive, filter}
}

// PolicyDescription names one supported policy type
type PolicyDescription struct {
	Type types.PolicyType
	Name string
}

// DescriptionListRequest asks for the supported policy types
type DescriptionListRequest struct {
	base
}

// Op returns the message opcode
func (DescriptionListRequest) Op() OpCode { return OpDescriptionListRequest }

// NewDescriptionListRequest creates a DescriptionListRequest
func NewDescriptionListRequest(seq uint16) *DescriptionListRequest {
	return &DescriptionListRequest{base{seq}}
}

// DescriptionListResponse answers a DescriptionListRequest
type DescriptionListResponse struct {
	base
	Descriptions []PolicyDescription
	DbCorrupted  bool
}

// Op returns the message opcode
func (DescriptionListResponse) Op() OpCode { return OpDescriptionListResponse }

// NewDescriptionListResponse creates a DescriptionListResponse
func NewDescriptionListResponse(seq uint16, descriptions []PolicyDescription, dbCorrupted bool) *DescriptionListResponse {
	return &DescriptionListResponse{base{seq}, descriptions, dbCorrupted}
}

// MonitorGetEntriesRequest drains buffered monitor entries
type MonitorGetEntriesRequest struct {
	base
	BufferSize uint32
}

// Op returns the message opcode
func (MonitorGetEntriesRequest) Op() OpCode { return OpMonitorGetEntries }

// NewMonitorGetEntriesRequest creates a MonitorGetEntriesRequest
func NewMonitorGetEntriesRequest(seq uint16, bufferSize uint32) *MonitorGetEntriesRequest {
	return &MonitorGetEntriesRequest{base{seq}, bufferSize}
}

// MonitorGetEntriesResponse answers a MonitorGetEntriesRequest
type MonitorGetEntriesResponse struct {
	base
	Entries []types.MonitorEntry
}

// Op returns the message opcode
func (MonitorGetEntriesResponse) Op() OpCode { return OpMonitorGetEntriesResponse }

// NewMonitorGetEntriesResponse creates a MonitorGetEntriesResponse
func NewMonitorGetEntriesResponse(seq uint16, entries []types.MonitorEntry) *MonitorGetEntriesResponse {
	return &MonitorGetEntriesResponse{base{seq}, entries}
}

// AgentRegisterRequest binds the connection to an agent type
type AgentRegisterRequest struct {
	base
	AgentType string
}

// Op returns the message opcode
func (AgentRegisterRequest) Op() OpCode { return OpAgentRegisterRequest }

// NewAgentRegisterRequest creates an AgentRegisterRequest
func NewAgentRegisterRequest(seq uint16, agentType string) *AgentRegisterRequest {
	return &AgentRegisterRequest{base{seq}, agentType}
}

// AgentRegisterResponse confirms or refuses an agent registration
type AgentRegisterResponse struct {
	base
	Code Code
}

// Op returns the message opcode
func (AgentRegisterResponse) Op() OpCode { return OpAgentRegisterResponse }

// NewAgentRegisterResponse creates an AgentRegisterResponse
func NewAgentRegisterResponse(seq uint16, code Code) *AgentRegisterResponse {
	return &AgentRegisterResponse{base{seq}, code}
}

// AgentActionType tags the purpose of an agent action frame
type AgentActionType uint8

const (
	// AgentActionCheck asks the agent to decide a parked check
	AgentActionCheck AgentActionType = 0
	// AgentActionCancel tells the agent a parked check was cancelled
	AgentActionCancel AgentActionType = 1
	// AgentActionRespond carries the agent's verdict back to the daemon
	AgentActionRespond AgentActionType = 2
)

// AgentActionRequest forwards a parked check to a registered agent.
// The sequence number is the daemon-issued checkId.
type AgentActionRequest struct {
	base
	ActionType AgentActionType
	Data       string
}

// Op returns the message opcode
func (AgentActionRequest) Op() OpCode { return OpAgentActionRequest }

// NewAgentActionRequest creates an AgentActionRequest
func NewAgentActionRequest(seq uint16, actionType AgentActionType, data string) *AgentActionRequest {
	return &AgentActionRequest{base{seq}, actionType, data}
}

// AgentActionResponse carries an agent verdict for the checkId in Seq
type AgentActionResponse struct {
	base
	ActionType AgentActionType
	Data       string
}

// Op returns the message opcode
func (AgentActionResponse) Op() OpCode { return OpAgentActionResponse }

// NewAgentActionResponse creates an AgentActionResponse
func NewAgentActionResponse(seq uint16, actionType AgentActionType, data string) *AgentActionResponse {
	return &AgentActionResponse{base{seq}, actionType, data}
}
