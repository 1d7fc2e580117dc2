//go:build linux || darwin || freebsd

package netio

import (
	"net"

	"golang.org/x/sys/unix"
)

// ReadyToRead performs a zero-timeout poll() on conn's file descriptor
// and reports whether a datagram is already available, without
// consuming it. Mirrors the teacher's OS-conditional file split
// (server/listen.go vs server/listen_linux.go) for a concern the
// standard net package does not expose portably.
func ReadyToRead(conn *net.UDPConn) (bool, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return false, err
	}

	var ready bool
	var pollErr error
	err = raw.Control(func(fd uintptr) {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, e := unix.Poll(fds, 0)
		if e != nil {
			pollErr = e
			return
		}
		ready = n > 0 && fds[0].Revents&unix.POLLIN != 0
	})
	if err != nil {
		return false, err
	}
	return ready, pollErr
}
