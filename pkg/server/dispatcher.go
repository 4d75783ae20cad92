package server

import (
	"context"

	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/protocol"
)

// dispatch is the single goroutine owning storage, roles, agents and parked
// checks. Requests from one connection arrive in receive order because each
// reader forwards frames sequentially.
func (s *Server) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-s.events:
			switch e := ev.(type) {
			case evNewConn:
				s.onNewConn(e.conn)
			case evRequest:
				s.onRequest(e.conn, e.msg)
			case evConnClosed:
				s.onConnClosed(e.conn, e.err)
			}
		}
	}
}

func (s *Server) onNewConn(conn *Connection) {
	s.connections[conn.id] = conn
	go conn.writeLoop()
	go s.readLoop(conn)
}

func (s *Server) onConnClosed(conn *Connection, err error) {
	if _, tracked := s.connections[conn.id]; !tracked {
		return
	}
	if err != nil {
		log.WithError(err).Debug("Closing connection after protocol error")
	}
	s.closeConnection(conn)
}

// closeConnection tears a connection down and cancels everything it owns
func (s *Server) closeConnection(conn *Connection) {
	delete(s.connections, conn.id)
	if conn.role != RoleUnknown {
		s.metrics.Connection(string(conn.role), -1)
	}

	switch conn.role {
	case RoleClient:
		for _, ctx := range s.contexts.forConnection(conn) {
			s.cancelContext(ctx)
		}
	case RoleAgent:
		if s.agents[conn.agentType] == conn {
			delete(s.agents, conn.agentType)
			log.WithField("agent_type", conn.agentType).Info("Agent unregistered")
			s.failAgentContexts(conn.agentType)
		}
	}
	conn.shutdown()
}

// onRequest fixes the connection role at its first frame, then routes the
// message to the role's handler
func (s *Server) onRequest(conn *Connection, msg protocol.Message) {
	if conn.closed {
		return
	}

	if conn.role == RoleUnknown {
		if !s.assumeRole(conn, msg) {
			s.closeConnection(conn)
			return
		}
	}

	switch conn.role {
	case RoleClient:
		s.handleClientRequest(conn, msg)
	case RoleAdmin:
		s.handleAdminRequest(conn, msg)
	case RoleAgent:
		s.handleAgentRequest(conn, msg)
	}
}

// assumeRole derives the role from the first frame and the accepting socket
func (s *Server) assumeRole(conn *Connection, msg protocol.Message) bool {
	switch conn.origin {
	case OriginAdmin:
		if !isAdminOp(msg.Op()) {
			log.Warnf("Non-admin opcode %d on admin socket", msg.Op())
			return false
		}
		conn.role = RoleAdmin
	case OriginClient:
		if _, isRegister := msg.(*protocol.AgentRegisterRequest); isRegister {
			conn.role = RoleAgent
		} else if isClientOp(msg.Op()) {
			conn.role = RoleClient
		} else {
			log.Warnf("Unexpected opcode %d on client socket", msg.Op())
			return false
		}
	}
	s.metrics.Connection(string(conn.role), 1)
	return true
}

func isClientOp(op protocol.OpCode) bool {
	switch op {
	case protocol.OpCheckPolicyRequest, protocol.OpSimpleCheckRequest,
		protocol.OpCancelRequest, protocol.OpMonitorEntryPut:
		return true
	}
	return false
}

func isAdminOp(op protocol.OpCode) bool {
	switch op {
	case protocol.OpInsertOrUpdateBucket, protocol.OpRemoveBucket,
		protocol.OpSetPolicies, protocol.OpAdminCheckRequest,
		protocol.OpListRequest, protocol.OpEraseRequest,
		protocol.OpDescriptionListRequest, protocol.OpMonitorGetEntries:
		return true
	}
	return false
}

// respond queues a message on a connection, tearing it down when the peer
// stopped draining its socket
func (s *Server) respond(conn *Connection, msg protocol.Message) {
	if conn.closed {
		return
	}
	if !conn.send(msg) {
		log.Warn("Peer not draining responses, disconnecting")
		s.closeConnection(conn)
	}
}

// invalidateClients tells every client to drop its decision cache. The
// invalidation signal is the disconnect itself: client libraries clear their
// cache whenever the daemon closes the connection.
func (s *Server) invalidateClients() {
	for _, conn := range s.connections {
		if conn.role == RoleClient {
			s.closeConnection(conn)
		}
	}
	s.metrics.RecordInvalidation()
}
