package server

import (
	"net"

	"github.com/google/uuid"

	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/codec"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/protocol"
)

// Role is the fixed role a connection assumes at its first frame
type Role string

const (
	// RoleUnknown is the state before the first frame
	RoleUnknown Role = "unknown"
	// RoleClient marks untrusted check clients
	RoleClient Role = "client"
	// RoleAdmin marks privileged admin connections
	RoleAdmin Role = "admin"
	// RoleAgent marks registered decision agents
	RoleAgent Role = "agent"
)

// Origin tells which listening socket accepted the connection
type Origin int

const (
	// OriginClient is the client/agent socket
	OriginClient Origin = iota
	// OriginAdmin is the admin socket
	OriginAdmin
)

// outboundDepth bounds the per-connection response queue; a peer that does
// not drain its socket is disconnected rather than blocking the dispatcher
const outboundDepth = 128

// Connection is one accepted socket with its role and outbound queue. The
// role, agentType and closed fields belong to the dispatcher goroutine.
type Connection struct {
	id        string
	sock      net.Conn
	origin    Origin
	role      Role
	agentType string
	out       chan []byte
	closed    bool
}

func newConnection(sock net.Conn, origin Origin) *Connection {
	return &Connection{
		id:     uuid.NewString(),
		sock:   sock,
		origin: origin,
		role:   RoleUnknown,
		out:    make(chan []byte, outboundDepth),
	}
}

// send encodes a message and queues it for the writer goroutine. It reports
// false when the outbound queue is full, which the dispatcher treats as a
// dead peer.
func (c *Connection) send(msg protocol.Message) bool {
	q := codec.NewBinaryQueue()
	codec.SerializeFrame(protocol.Encode(msg), q)
	wire, err := q.Consume(q.Size())
	if err != nil {
		return false
	}
	select {
	case c.out <- wire:
		return true
	default:
		return false
	}
}

// shutdown closes the socket and stops the writer. Safe to call repeatedly
// from the dispatcher goroutine.
func (c *Connection) shutdown() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.out)
	c.sock.Close()
}

// writeLoop drains the outbound queue onto the socket
func (c *Connection) writeLoop() {
	for wire := range c.out {
		if _, err := c.sock.Write(wire); err != nil {
			// The reader will observe the broken socket and report it
			return
		}
	}
}
