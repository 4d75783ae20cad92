package server

import (
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/protocol"
)

func (s *Server) handleAgentRequest(conn *Connection, msg protocol.Message) {
	switch req := msg.(type) {
	case *protocol.AgentRegisterRequest:
		s.handleAgentRegister(conn, req)
	case *protocol.AgentActionResponse:
		s.handleAgentAction(conn, req)
	default:
		log.Warnf("Opcode %d not allowed for agents", msg.Op())
		s.closeConnection(conn)
	}
}

// handleAgentRegister binds the connection to its agent type. A second
// registration for a type already served is refused.
func (s *Server) handleAgentRegister(conn *Connection, req *protocol.AgentRegisterRequest) {
	if conn.agentType != "" {
		s.respond(conn, protocol.NewAgentRegisterResponse(req.Seq(), protocol.CodeFailed))
		return
	}
	if req.AgentType == "" {
		s.respond(conn, protocol.NewAgentRegisterResponse(req.Seq(), protocol.CodeFailed))
		s.closeConnection(conn)
		return
	}
	if _, taken := s.agents[req.AgentType]; taken {
		log.Warnf("Agent type %q already registered", req.AgentType)
		s.respond(conn, protocol.NewAgentRegisterResponse(req.Seq(), protocol.CodeFailed))
		s.closeConnection(conn)
		return
	}

	conn.agentType = req.AgentType
	s.agents[req.AgentType] = conn
	s.respond(conn, protocol.NewAgentRegisterResponse(req.Seq(), protocol.CodeOK))
	log.WithField("agent_type", req.AgentType).Info("Agent registered")
}

// handleAgentAction resumes the parked check identified by the response's
// checkId. Replies for cancelled or vanished checks are discarded.
func (s *Server) handleAgentAction(conn *Connection, resp *protocol.AgentActionResponse) {
	ctx, ok := s.contexts.take(resp.Seq())
	if !ok {
		log.WithField("check_id", resp.Seq()).Debug("Dropping agent reply for unknown check")
		return
	}
	s.metrics.ParkCheck(-1)

	if ctx.cancelled || ctx.conn.closed {
		return
	}

	result := ctx.plugin.Interpret(ctx.key, resp.Data)
	s.respond(ctx.conn, protocol.NewCheckResponse(ctx.clientSeq, result))
	s.monitor.Record(ctx.key, result.Type)
	s.metrics.RecordCheck(result.Type.String(), 0)
}
