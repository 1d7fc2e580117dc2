//go:build !linux && !darwin && !freebsd

package netio

import (
	"net"
	"time"
)

// ReadyToRead falls back to a zero-timeout SetReadDeadline probe on
// platforms without a portable poll() binding. Unlike the unix
// implementation this is not a true non-consuming peek: a successful
// probe consumes the pending datagram, and since it reads into a
// one-byte buffer, everything after that datagram's first byte is lost.
func ReadyToRead(conn *net.UDPConn) (bool, error) {
	if err := conn.SetReadDeadline(time.Now()); err != nil {
		return false, err
	}
	defer conn.SetReadDeadline(time.Time{})

	one := make([]byte, 1)
	_, _, err := conn.ReadFromUDP(one)
	if err == nil {
		return true, nil
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return false, nil
	}
	return false, err
}
