package client

import (
	"net"
	"time"

	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/codec"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/errors"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/logger"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/protocol"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/types"
)

const (
	// connectAttempts bounds the connect retry loop
	connectAttempts = 5
	// connectBackoffBase is the first retry delay; it doubles per attempt
	connectBackoffBase = 50 * time.Millisecond
	// dialTimeout bounds one connect attempt
	dialTimeout = 2 * time.Second
)

// Client is the synchronous client library. It answers repeated queries from
// the decision cache and only frames a request to the daemon on a miss. It is
// confined to one goroutine.
type Client struct {
	socketPath string
	cache      *CapacityCache
	conn       net.Conn
	inbound    *codec.BinaryQueue
	seq        uint16
	log        *logger.Logger
}

// Option configures a Client
type Option func(*options)

type options struct {
	socketPath    string
	cacheCapacity int
}

// WithSocketPath overrides the well-known client socket path
func WithSocketPath(path string) Option {
	return func(o *options) { o.socketPath = path }
}

// WithCacheCapacity overrides the decision cache capacity
func WithCacheCapacity(capacity int) Option {
	return func(o *options) { o.cacheCapacity = capacity }
}

// DefaultSocketPath is the well-known client endpoint
const DefaultSocketPath = "/run/gatekeepr/gatekeepr.socket"

// New creates a client. No connection is made until the first query misses
// the cache.
func New(opts ...Option) *Client {
	o := options{
		socketPath:    DefaultSocketPath,
		cacheCapacity: DefaultCacheCapacity,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Client{
		socketPath: o.socketPath,
		cache:      NewCapacityCache(o.cacheCapacity),
		inbound:    codec.NewBinaryQueue(),
		log:        logger.New("client"),
	}
}

// RegisterPlugin adds a result interpreter to the decision cache
func (c *Client) RegisterPlugin(p Plugin) {
	c.cache.RegisterPlugin(p)
}

// Check asks whether (client, user, privilege) is permitted. The answer is
// CodeSuccess for allowed, CodeAccessDenied for denied, or a negative error
// code when the query could not be answered.
func (c *Client) Check(session, client, user, privilege string) errors.ReturnCode {
	key, ok := validateKey(client, user, privilege)
	if !ok {
		return errors.CodeInvalidParam
	}

	c.probeDisconnect()
	if code, hit := c.cache.Get(session, key); hit {
		return code
	}

	reply, err := c.request(protocol.NewCheckRequest(c.nextSeq(), key))
	if err != nil {
		c.log.WithError(err).Debug("Check request failed")
		return errors.ToReturnCode(err)
	}
	resp, ok := reply.(*protocol.CheckResponse)
	if !ok {
		c.drop()
		return errors.CodeUnexpectedClientError
	}
	return c.cache.Update(session, key, resp.Result)
}

// SimpleCheck asks for an immediate answer; plugin-typed policies that would
// need an agent round-trip answer denied instead of blocking
func (c *Client) SimpleCheck(session, client, user, privilege string) errors.ReturnCode {
	key, ok := validateKey(client, user, privilege)
	if !ok {
		return errors.CodeInvalidParam
	}

	c.probeDisconnect()
	if code, hit := c.cache.Get(session, key); hit {
		return code
	}

	reply, err := c.request(protocol.NewSimpleCheckRequest(c.nextSeq(), key))
	if err != nil {
		c.log.WithError(err).Debug("Simple check request failed")
		return errors.ToReturnCode(err)
	}
	resp, ok := reply.(*protocol.SimpleCheckResponse)
	if !ok {
		c.drop()
		return errors.CodeUnexpectedClientError
	}
	if resp.RetCode != int32(errors.CodeSuccess) {
		return errors.ReturnCode(resp.RetCode)
	}
	return c.cache.Update(session, key, resp.Result)
}

// ReportMonitorEntry forwards one interpreted decision to the daemon's
// monitoring buffer. Delivery is best effort; there is no response.
func (c *Client) ReportMonitorEntry(key types.PolicyKey, result types.PolicyType) {
	if err := c.ensureConnected(); err != nil {
		return
	}
	entry := types.MonitorEntry{Key: key, Result: result, Timestamp: time.Now().UTC()}
	if err := c.send(protocol.NewMonitorEntryPut(c.nextSeq(), entry)); err != nil {
		c.drop()
	}
}

// ClearCache drops every cached decision
func (c *Client) ClearCache() {
	c.cache.Clear()
}

// Close drops the connection and the cache
func (c *Client) Close() {
	c.drop()
}

func validateKey(client, user, privilege string) (types.PolicyKey, bool) {
	for _, s := range []string{client, user, privilege} {
		if !types.IsStringValid(s) {
			return types.PolicyKey{}, false
		}
	}
	return types.NewPolicyKey(client, user, privilege), true
}

func (c *Client) nextSeq() uint16 {
	c.seq++
	return c.seq
}

// request sends one message and waits for the matching response. On a broken
// connection it reconnects and retries once; the cache is dropped because a
// disconnect may mean the policy database changed.
func (c *Client) request(msg protocol.Message) (protocol.Message, error) {
	reply, err := c.roundTrip(msg)
	if err == nil {
		return reply, nil
	}
	c.drop()
	c.cache.Clear()

	reply, err = c.roundTrip(msg)
	if err != nil {
		c.drop()
		return nil, err
	}
	return reply, nil
}

func (c *Client) roundTrip(msg protocol.Message) (protocol.Message, error) {
	if err := c.ensureConnected(); err != nil {
		return nil, err
	}
	if err := c.send(msg); err != nil {
		return nil, err
	}
	return c.receive(msg.Seq())
}

func (c *Client) send(msg protocol.Message) error {
	q := codec.NewBinaryQueue()
	codec.SerializeFrame(protocol.Encode(msg), q)
	wire, err := q.Consume(q.Size())
	if err != nil {
		return err
	}
	if _, err := c.conn.Write(wire); err != nil {
		return errors.Wrap(errors.ErrPeerDisconnected, "write failed", err)
	}
	return nil
}

// receive reads frames until the response with the wanted sequence arrives
func (c *Client) receive(wantSeq uint16) (protocol.Message, error) {
	buf := make([]byte, 4096)
	for {
		frame, err := codec.DeserializeFrame(c.inbound)
		if err != nil {
			return nil, err
		}
		if frame != nil {
			msg, err := protocol.Decode(frame)
			if err != nil {
				return nil, err
			}
			if msg.Seq() == wantSeq {
				return msg, nil
			}
			// A stale response from an abandoned request; skip it
			continue
		}

		n, err := c.conn.Read(buf)
		if err != nil {
			return nil, errors.Wrap(errors.ErrPeerDisconnected, "read failed", err)
		}
		c.inbound.Append(buf[:n])
	}
}

// ensureConnected dials the daemon with bounded exponential backoff
func (c *Client) ensureConnected() error {
	if c.conn != nil {
		return nil
	}

	delay := connectBackoffBase
	var lastErr error
	for attempt := 0; attempt < connectAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(delay)
			delay *= 2
		}
		conn, err := net.DialTimeout("unix", c.socketPath, dialTimeout)
		if err == nil {
			c.conn = conn
			c.inbound.Clear()
			return nil
		}
		lastErr = err
	}
	return errors.Wrap(errors.ErrPeerDisconnected, "cannot connect to daemon", lastErr).
		WithField("socket", c.socketPath)
}

// probeDisconnect peeks at the socket, waiting at most one millisecond for
// pending data or a close. A daemon-initiated disconnect is the cache
// invalidation signal, so it must be noticed before any cached decision is
// served. The deadline lies slightly in the future because a deadline that
// has already passed makes Read time out without looking at the socket.
func (c *Client) probeDisconnect() {
	if c.conn == nil {
		return
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(time.Millisecond)); err != nil {
		c.drop()
		c.cache.Clear()
		return
	}
	buf := make([]byte, 512)
	n, err := c.conn.Read(buf)
	if n > 0 {
		c.inbound.Append(buf[:n])
	}
	if err != nil {
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			// No pending data; the connection is healthy
			c.conn.SetReadDeadline(time.Time{})
			return
		}
		c.drop()
		c.cache.Clear()
		return
	}
	c.conn.SetReadDeadline(time.Time{})
}

func (c *Client) drop() {
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.inbound.Clear()
}
