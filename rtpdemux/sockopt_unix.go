//go:build linux || freebsd || openbsd || darwin || netbsd || dragonfly

package rtpdemux

import (
	"net"

	"golang.org/x/sys/unix"
)

// actualRecvBufferBytes queries the kernel's actual SO_RCVBUF for conn,
// which the kernel is free to cap below what SetReadBuffer requested
// (commonly net.core.rmem_max on Linux) — logged at dial time so an
// operator sees the effective value, not the requested one, grounded on
// the raw getsockopt pattern in pkg/kernel's unix syscall usage.
func actualRecvBufferBytes(conn *net.UDPConn) (int, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, err
	}
	var size int
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		size, sockErr = unix.GetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF)
	})
	if err != nil {
		return 0, err
	}
	return size, sockErr
}
