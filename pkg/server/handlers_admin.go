package server

import (
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/errors"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/protocol"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/storage"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/types"
)

func (s *Server) handleAdminRequest(conn *Connection, msg protocol.Message) {
	switch req := msg.(type) {
	case *protocol.InsertOrUpdateBucketRequest:
		s.handleInsertOrUpdateBucket(conn, req)
	case *protocol.RemoveBucketRequest:
		s.handleRemoveBucket(conn, req)
	case *protocol.SetPoliciesRequest:
		s.handleSetPolicies(conn, req)
	case *protocol.AdminCheckRequest:
		s.handleAdminCheck(conn, req)
	case *protocol.ListRequest:
		s.handleList(conn, req)
	case *protocol.EraseRequest:
		s.handleErase(conn, req)
	case *protocol.DescriptionListRequest:
		s.handleDescriptionList(conn, req)
	case *protocol.MonitorGetEntriesRequest:
		s.handleMonitorGetEntries(conn, req)
	default:
		log.Warnf("Opcode %d not allowed for admins", msg.Op())
		s.closeConnection(conn)
	}
}

func (s *Server) handleInsertOrUpdateBucket(conn *Connection, req *protocol.InsertOrUpdateBucketRequest) {
	err := s.store.InsertOrUpdateBucket(req.BucketID, req.Default)
	s.metrics.RecordStorageSave(err)
	s.finishMutation(conn, req.Seq(), err)
}

func (s *Server) handleRemoveBucket(conn *Connection, req *protocol.RemoveBucketRequest) {
	err := s.store.DeleteBucket(req.BucketID, req.Recursive)
	s.metrics.RecordStorageSave(err)
	s.finishMutation(conn, req.Seq(), err)
}

func (s *Server) handleSetPolicies(conn *Connection, req *protocol.SetPoliciesRequest) {
	insert := make([]storage.BucketedPolicy, len(req.Insert))
	for i, bp := range req.Insert {
		insert[i] = storage.BucketedPolicy{Bucket: bp.Bucket, Policy: bp.Policy}
	}
	remove := make([]storage.BucketedKey, len(req.Remove))
	for i, bk := range req.Remove {
		remove[i] = storage.BucketedKey{Bucket: bk.Bucket, Key: bk.Key}
	}

	err := s.store.SetPolicies(insert, remove)
	s.metrics.RecordStorageSave(err)
	s.finishMutation(conn, req.Seq(), err)
}

func (s *Server) handleErase(conn *Connection, req *protocol.EraseRequest) {
	err := s.store.Erase(req.StartBucket, req.Recursive, req.Filter)
	s.metrics.RecordStorageSave(err)
	s.finishMutation(conn, req.Seq(), err)
}

// finishMutation maps a mutation outcome to a CodeResponse and, on success,
// invalidates client caches: the mutation may have changed any decision
func (s *Server) finishMutation(conn *Connection, seq uint16, err error) {
	code := mutationCode(err)
	s.respond(conn, protocol.NewCodeResponse(seq, code))
	if err == nil {
		s.invalidateClients()
	}
}

// mutationCode maps storage errors to wire codes
func mutationCode(err error) protocol.Code {
	if err == nil {
		return protocol.CodeOK
	}
	switch errors.GetErrorCode(err) {
	case errors.ErrDatabaseReadOnly:
		return protocol.CodeDbCorrupted
	case errors.ErrBucketNotFound:
		return protocol.CodeNoBucket
	case errors.ErrDefaultBucketDelete, errors.ErrBucketReferenced:
		return protocol.CodeNotAllowed
	case errors.ErrUnknownPolicyType:
		return protocol.CodeNoPolicyType
	default:
		return protocol.CodeFailed
	}
}

func (s *Server) handleAdminCheck(conn *Connection, req *protocol.AdminCheckRequest) {
	if s.store.Corrupted() {
		s.respond(conn, protocol.NewAdminCheckResponse(req.Seq(), types.DenyResult(), false, true))
		return
	}
	if !s.store.HasBucket(req.StartBucket) {
		s.respond(conn, protocol.NewAdminCheckResponse(req.Seq(), types.DenyResult(), false, false))
		return
	}

	result, err := s.store.CheckFrom(req.StartBucket, req.Recursive, req.Key)
	if err != nil {
		result = types.DenyResult()
	}
	s.respond(conn, protocol.NewAdminCheckResponse(req.Seq(), result, true, false))
}

func (s *Server) handleList(conn *Connection, req *protocol.ListRequest) {
	if s.store.Corrupted() {
		s.respond(conn, protocol.NewListResponse(req.Seq(), nil, false, true))
		return
	}

	policies, err := s.store.ListPolicies(req.Bucket, req.Filter)
	if err != nil {
		s.respond(conn, protocol.NewListResponse(req.Seq(), nil, false, false))
		return
	}
	s.respond(conn, protocol.NewListResponse(req.Seq(), policies, true, false))
}

func (s *Server) handleDescriptionList(conn *Connection, req *protocol.DescriptionListRequest) {
	s.respond(conn, protocol.NewDescriptionListResponse(req.Seq(), s.plugins.descriptions(), s.store.Corrupted()))
}

func (s *Server) handleMonitorGetEntries(conn *Connection, req *protocol.MonitorGetEntriesRequest) {
	entries := s.monitor.Drain(int(req.BufferSize))
	s.respond(conn, protocol.NewMonitorGetEntriesResponse(req.Seq(), entries))
}
