// Package agent implements the library used by external decision services.
// An agent registers on the daemon's client socket under an agent type and is
// then consulted whenever the decision engine yields a policy type the
// daemon-side plugin binds to that agent.
package agent

import (
	"net"
	"time"

	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/codec"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/errors"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/logger"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/protocol"
)

// Request is one question forwarded by the daemon. CheckID identifies the
// parked check; a Cancel request tells the agent the check was abandoned.
type Request struct {
	CheckID uint16
	Action  protocol.AgentActionType
	Data    string
}

// Agent is a registered connection to the daemon
type Agent struct {
	agentType string
	conn      net.Conn
	inbound   *codec.BinaryQueue
	log       *logger.Logger
}

// Register connects to the daemon at socketPath and registers under
// agentType. The daemon refuses a second registration for the same type.
func Register(socketPath, agentType string) (*Agent, error) {
	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		return nil, errors.Wrap(errors.ErrPeerDisconnected, "cannot connect to daemon", err).
			WithField("socket", socketPath)
	}

	a := &Agent{
		agentType: agentType,
		conn:      conn,
		inbound:   codec.NewBinaryQueue(),
		log:       logger.New("agent"),
	}

	if err := a.send(protocol.NewAgentRegisterRequest(1, agentType)); err != nil {
		conn.Close()
		return nil, err
	}
	reply, err := a.receive()
	if err != nil {
		conn.Close()
		return nil, err
	}
	resp, ok := reply.(*protocol.AgentRegisterResponse)
	if !ok {
		conn.Close()
		return nil, errors.New(errors.ErrInternal, "unexpected registration reply")
	}
	if resp.Code != protocol.CodeOK {
		conn.Close()
		return nil, errors.New(errors.ErrAgentNotFound, "registration refused").
			WithField("code", resp.Code.String())
	}

	a.log.WithField("agent_type", agentType).Info("Agent registered")
	return a, nil
}

// Receive blocks until the daemon forwards the next request
func (a *Agent) Receive() (*Request, error) {
	for {
		msg, err := a.receive()
		if err != nil {
			return nil, err
		}
		req, ok := msg.(*protocol.AgentActionRequest)
		if !ok {
			a.log.Warnf("Dropping unexpected message with opcode %d", msg.Op())
			continue
		}
		return &Request{CheckID: req.Seq(), Action: req.ActionType, Data: req.Data}, nil
	}
}

// Respond sends the agent's verdict for a previously received check
func (a *Agent) Respond(checkID uint16, data string) error {
	return a.send(protocol.NewAgentActionResponse(checkID, protocol.AgentActionRespond, data))
}

// Close drops the connection; the daemon unregisters the agent type
func (a *Agent) Close() error {
	return a.conn.Close()
}

func (a *Agent) send(msg protocol.Message) error {
	q := codec.NewBinaryQueue()
	codec.SerializeFrame(protocol.Encode(msg), q)
	wire, err := q.Consume(q.Size())
	if err != nil {
		return err
	}
	if _, err := a.conn.Write(wire); err != nil {
		return errors.Wrap(errors.ErrPeerDisconnected, "write failed", err)
	}
	return nil
}

func (a *Agent) receive() (protocol.Message, error) {
	buf := make([]byte, 4096)
	for {
		frame, err := codec.DeserializeFrame(a.inbound)
		if err != nil {
			return nil, err
		}
		if frame != nil {
			return protocol.Decode(frame)
		}

		n, err := a.conn.Read(buf)
		if err != nil {
			return nil, errors.Wrap(errors.ErrPeerDisconnected, "read failed", err)
		}
		a.inbound.Append(buf[:n])
	}
}
