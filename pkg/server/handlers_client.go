package server

import (
	"time"

	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/errors"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/protocol"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/types"
)

func (s *Server) handleClientRequest(conn *Connection, msg protocol.Message) {
	switch req := msg.(type) {
	case *protocol.CheckRequest:
		s.handleCheck(conn, req)
	case *protocol.SimpleCheckRequest:
		s.handleSimpleCheck(conn, req)
	case *protocol.CancelRequest:
		s.handleCancel(conn, req)
	case *protocol.MonitorEntryPut:
		s.monitor.Put(req.Entry)
	default:
		log.Warnf("Opcode %d not allowed for clients", msg.Op())
		s.closeConnection(conn)
	}
}

// handleCheck resolves a check, parking it on an agent when the result's
// service plugin requires one
func (s *Server) handleCheck(conn *Connection, req *protocol.CheckRequest) {
	start := time.Now()

	if req.Key.Validate() != nil {
		s.respond(conn, protocol.NewCheckResponse(req.Seq(), types.DenyResult()))
		return
	}

	result, err := s.store.Check(req.Key)
	if err != nil {
		result = types.DenyResult()
	}

	if result.Type.IsPluginType() {
		if plugin, ok := s.plugins.forType(result.Type); ok {
			if s.parkOnAgent(conn, req.Seq(), req.Key, result, plugin) {
				return
			}
			// No agent available for this plugin type
			result = types.DenyResult()
		}
		// Without a service plugin the raw result travels to the client,
		// whose own interpreter decides
	}

	s.finishCheck(conn, req.Seq(), req.Key, result, start)
}

// parkOnAgent forwards a plugin-typed result to its agent and parks the
// check. Returns false when the agent is not connected.
func (s *Server) parkOnAgent(conn *Connection, clientSeq uint16, key types.PolicyKey, result types.PolicyResult, plugin ServicePlugin) bool {
	agentConn, ok := s.agents[plugin.AgentType()]
	if !ok {
		return false
	}

	ctx := s.contexts.create(conn, clientSeq, key, plugin)
	request := protocol.NewAgentActionRequest(ctx.checkID, protocol.AgentActionCheck, plugin.AgentData(key, result))
	if !agentConn.send(request) {
		s.contexts.drop(ctx.checkID)
		s.closeConnection(agentConn)
		return false
	}

	s.metrics.RecordAgentRoundTrip(plugin.AgentType())
	s.metrics.ParkCheck(1)
	log.WithFields(map[string]interface{}{
		"check_id": ctx.checkID,
		"agent":    plugin.AgentType(),
	}).Debug("Check parked on agent")
	return true
}

// finishCheck sends the response and records the answered check
func (s *Server) finishCheck(conn *Connection, seq uint16, key types.PolicyKey, result types.PolicyResult, start time.Time) {
	s.respond(conn, protocol.NewCheckResponse(seq, result))
	s.monitor.Record(key, result.Type)
	s.metrics.RecordCheck(result.Type.String(), time.Since(start))
}

// handleSimpleCheck answers immediately; a result that would need an agent
// round-trip is reported as denied instead of blocking
func (s *Server) handleSimpleCheck(conn *Connection, req *protocol.SimpleCheckRequest) {
	start := time.Now()

	if req.Key.Validate() != nil {
		s.respond(conn, protocol.NewSimpleCheckResponse(req.Seq(), int32(errors.CodeInvalidParam), types.DenyResult()))
		return
	}

	result, err := s.store.Check(req.Key)
	if err != nil {
		result = types.DenyResult()
	}

	retCode := int32(errors.CodeSuccess)
	if result.Type.IsPluginType() {
		if _, ok := s.plugins.forType(result.Type); ok {
			retCode = int32(errors.CodeAccessDenied)
			result = types.DenyResult()
		}
	}

	s.respond(conn, protocol.NewSimpleCheckResponse(req.Seq(), retCode, result))
	s.monitor.Record(req.Key, result.Type)
	s.metrics.RecordCheck(result.Type.String(), time.Since(start))
}

// handleCancel marks the pending check with the same sequence cancelled and
// tells its agent; the eventual agent reply is discarded
func (s *Server) handleCancel(conn *Connection, req *protocol.CancelRequest) {
	if ctx, ok := s.contexts.findByRequest(conn, req.Seq()); ok {
		s.cancelContext(ctx)
	}
	s.respond(conn, protocol.NewCancelResponse(req.Seq()))
}

// cancelContext abandons a parked check and notifies the agent
func (s *Server) cancelContext(ctx *checkContext) {
	if ctx.cancelled {
		return
	}
	ctx.cancelled = true
	s.contexts.drop(ctx.checkID)
	s.metrics.ParkCheck(-1)

	if agentConn, ok := s.agents[ctx.plugin.AgentType()]; ok {
		agentConn.send(protocol.NewAgentActionRequest(ctx.checkID, protocol.AgentActionCancel, ""))
	}
	log.WithField("check_id", ctx.checkID).Debug("Parked check cancelled")
}

// failAgentContexts answers every check parked on a vanished agent with DENY
func (s *Server) failAgentContexts(agentType string) {
	for _, ctx := range s.contexts.forAgent(agentType) {
		s.contexts.drop(ctx.checkID)
		s.metrics.ParkCheck(-1)
		if !ctx.conn.closed {
			s.respond(ctx.conn, protocol.NewCheckResponse(ctx.clientSeq, types.DenyResult()))
			s.monitor.Record(ctx.key, types.TypeDeny)
		}
	}
}
