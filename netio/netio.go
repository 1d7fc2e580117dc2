// Package netio wraps the UDP socket primitives the adapter protocol
// needs: binding a server listener, resolving a client's remote peer,
// timeout/blocking-mode control, and a non-blocking readiness probe.
package netio

import (
	"net"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// BindError indicates the server's listening socket could not be
// opened or bound. It is fatal at driver startup.
type BindError struct {
	Addr  string
	Cause error
}

func (e *BindError) Error() string { return "bind error on " + e.Addr + ": " + e.Cause.Error() }
func (e *BindError) Unwrap() error { return e.Cause }

// ResolveError indicates the client could not resolve its remote
// peer's address.
type ResolveError struct {
	HostPort string
	Cause    error
}

func (e *ResolveError) Error() string {
	return "resolve error for " + e.HostPort + ": " + e.Cause.Error()
}
func (e *ResolveError) Unwrap() error { return e.Cause }

// BindServer opens a UDP socket bound to host:port. An empty host
// binds the any-address, matching net.ListenUDP's usual default.
func BindServer(host string, port int) (*net.UDPConn, error) {
	hostPort := net.JoinHostPort(host, strconv.Itoa(port))
	addr, err := net.ResolveUDPAddr("udp", hostPort)
	if err != nil {
		return nil, errors.WithStack(&BindError{Addr: hostPort, Cause: err})
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, errors.WithStack(&BindError{Addr: addr.String(), Cause: err})
	}
	return conn, nil
}

// ResolveClient performs name resolution for host:service and dials a
// UDP socket to it, returning the connection and the resolved remote
// address.
func ResolveClient(host, service string) (*net.UDPConn, *net.UDPAddr, error) {
	hostPort := net.JoinHostPort(host, service)
	raddr, err := net.ResolveUDPAddr("udp", hostPort)
	if err != nil {
		return nil, nil, errors.WithStack(&ResolveError{HostPort: hostPort, Cause: err})
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, nil, errors.WithStack(&ResolveError{HostPort: hostPort, Cause: err})
	}
	return conn, raddr, nil
}

// AllocSockaddr returns a zeroed address suitable as the destination
// of a receive; the driver never reads directly into a known remote's
// address block (see the design note on client receive-path safety).
func AllocSockaddr() *net.UDPAddr {
	return &net.UDPAddr{}
}

// SetBlocking restores a UDP connection's default (blocking) read
// behavior by clearing any read deadline.
func SetBlocking(conn *net.UDPConn) error {
	return conn.SetReadDeadline(time.Time{})
}

// SetNonblocking arranges for the next read on conn to return
// immediately (a zero-duration deadline), the same probe ReadyToRead's
// portable fallback sets up directly.
func SetNonblocking(conn *net.UDPConn) error {
	return conn.SetReadDeadline(time.Now())
}

// SetRcvTimeout sets a read deadline ms milliseconds in the future. A
// zero or negative ms clears the deadline (blocking mode).
func SetRcvTimeout(conn *net.UDPConn, ms int) error {
	if ms <= 0 {
		return SetBlocking(conn)
	}
	return conn.SetReadDeadline(time.Now().Add(time.Duration(ms) * time.Millisecond))
}
