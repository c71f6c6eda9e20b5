package ipc

import (
	"net"

	"golang.org/x/sys/unix"
)

// peerCredentials inspects the SO_PEERCRED ancillary data on a Unix domain
// socket connection to recover the connecting process's uid, the closest
// POSIX analogue of the three-principal named-pipe ACL the protocol was
// originally specified against.
func peerCredentials(conn net.Conn) (uid uint32, ok bool) {
	unixConn, isUnix := conn.(*net.UnixConn)
	if !isUnix {
		return 0, false
	}

	raw, err := unixConn.SyscallConn()
	if err != nil {
		return 0, false
	}

	var ucred *unix.Ucred
	var getErr error
	controlErr := raw.Control(func(fd uintptr) {
		ucred, getErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if controlErr != nil || getErr != nil || ucred == nil {
		return 0, false
	}

	return ucred.Uid, true
}
