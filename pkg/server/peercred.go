package server

import (
	"net"
	"os"

	"golang.org/x/sys/unix"

	"github.com/therealutkarshpriyadarshi/gatekeepr/pkg/errors"
)

// peerUID reads the SO_PEERCRED uid of a unix socket peer
func peerUID(conn net.Conn) (uint32, error) {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return 0, errors.New(errors.ErrAccessDenied, "peer credentials unavailable on this connection")
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return 0, errors.Wrap(errors.ErrAccessDenied, "cannot access raw connection", err)
	}

	var (
		cred    *unix.Ucred
		credErr error
	)
	if err := raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	}); err != nil {
		return 0, errors.Wrap(errors.ErrAccessDenied, "cannot read peer credentials", err)
	}
	if credErr != nil {
		return 0, errors.Wrap(errors.ErrAccessDenied, "cannot read peer credentials", credErr)
	}
	return cred.Uid, nil
}

// adminPeerAllowed accepts root and the daemon's own uid on the admin socket
func adminPeerAllowed(conn net.Conn) bool {
	uid, err := peerUID(conn)
	if err != nil {
		return false
	}
	return uid == 0 || uid == uint32(os.Getuid())
}
