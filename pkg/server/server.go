package server

import (
	"context"
	"net"
	"os"
	"path/filepath"

	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/codec"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/config"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/errors"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/logger"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/monitor"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/observability"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/protocol"
	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/storage"
)

var log = logger.New("server")

// Server is the gatekeepr daemon: two listening sockets, one dispatcher
// goroutine owning the policy storage, and per-connection reader and writer
// goroutines. All handler execution happens on the dispatcher goroutine,
// which is what makes admin mutations totally ordered with respect to checks.
type Server struct {
	cfg     *config.Config
	store   *storage.Storage
	monitor *monitor.Buffer
	metrics *observability.MetricsManager
	plugins *pluginRegistry

	clientListener net.Listener
	adminListener  net.Listener

	events      chan event
	connections map[string]*Connection
	agents      map[string]*Connection
	contexts    *contextRegistry
}

// eventDepth bounds the dispatcher queue shared by every reader
const eventDepth = 256

// event is one unit of dispatcher work
type event interface{}

type evNewConn struct {
	conn *Connection
}

type evRequest struct {
	conn *Connection
	msg  protocol.Message
}

type evConnClosed struct {
	conn *Connection
	err  error
}

// New creates a server over an already loaded storage
func New(cfg *config.Config, store *storage.Storage, sink monitor.Sink, metrics *observability.MetricsManager) *Server {
	return &Server{
		cfg:         cfg,
		store:       store,
		monitor:     monitor.NewBuffer(cfg.MonitorBufferSize, sink),
		metrics:     metrics,
		plugins:     newPluginRegistry(),
		events:      make(chan event, eventDepth),
		connections: make(map[string]*Connection),
		agents:      make(map[string]*Connection),
		contexts:    newContextRegistry(),
	}
}

// RegisterPlugin adds a service-side interpreter for plugin-typed results
func (s *Server) RegisterPlugin(p ServicePlugin) {
	s.plugins.register(p)
}

// Run listens on both sockets and dispatches until ctx is cancelled. On
// shutdown every connection is closed, the monitor buffer is flushed, and the
// storage is persisted one final time.
func (s *Server) Run(ctx context.Context) error {
	var err error
	s.clientListener, err = listenUnix(s.cfg.ClientSocketPath, 0666)
	if err != nil {
		return err
	}
	defer s.clientListener.Close()

	s.adminListener, err = listenUnix(s.cfg.AdminSocketPath, 0600)
	if err != nil {
		return err
	}
	defer s.adminListener.Close()

	log.WithFields(map[string]interface{}{
		"client_socket": s.cfg.ClientSocketPath,
		"admin_socket":  s.cfg.AdminSocketPath,
	}).Info("Daemon listening")

	go s.acceptLoop(s.clientListener, OriginClient)
	go s.acceptLoop(s.adminListener, OriginAdmin)

	s.dispatch(ctx)

	for _, c := range s.connections {
		c.shutdown()
	}
	s.monitor.FlushNow()
	if !s.store.Corrupted() {
		if err := s.store.Save(); err != nil {
			log.WithError(err).Error("Final persist failed")
		}
	}
	log.Info("Daemon stopped")
	return nil
}

// listenUnix binds a unix socket, replacing any stale socket file
func listenUnix(path string, mode os.FileMode) (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "cannot create socket directory", err).
			WithField("path", path)
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(errors.ErrInternal, "cannot remove stale socket", err).
			WithField("path", path)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInternal, "cannot listen on socket", err).
			WithField("path", path)
	}
	if err := os.Chmod(path, mode); err != nil {
		ln.Close()
		return nil, errors.Wrap(errors.ErrInternal, "cannot set socket mode", err).
			WithField("path", path)
	}
	return ln, nil
}

// acceptLoop hands accepted sockets to the dispatcher
func (s *Server) acceptLoop(ln net.Listener, origin Origin) {
	for {
		sock, err := ln.Accept()
		if err != nil {
			return
		}
		if origin == OriginAdmin && !adminPeerAllowed(sock) {
			log.Warn("Rejecting admin connection with unprivileged peer credentials")
			sock.Close()
			continue
		}
		conn := newConnection(sock, origin)
		s.events <- evNewConn{conn: conn}
	}
}

// readLoop decodes frames off one socket and forwards typed requests to the
// dispatcher. Frame or message errors terminate the connection.
func (s *Server) readLoop(conn *Connection) {
	inbound := codec.NewBinaryQueue()
	buf := make([]byte, 4096)

	for {
		for {
			frame, err := codec.DeserializeFrame(inbound)
			if err != nil {
				s.events <- evConnClosed{conn: conn, err: err}
				return
			}
			if frame == nil {
				break
			}
			msg, err := protocol.Decode(frame)
			if err != nil {
				s.events <- evConnClosed{conn: conn, err: err}
				return
			}
			s.events <- evRequest{conn: conn, msg: msg}
		}

		n, err := conn.sock.Read(buf)
		if err != nil {
			s.events <- evConnClosed{conn: conn, err: nil}
			return
		}
		inbound.Append(buf[:n])
	}
}
