// Package session holds the per-connection state of the adapter
// protocol: the local endpoint (socket, scratch buffer, negotiated
// interval) that lives for the whole driver run, and the remote
// endpoint (peer address, assigned id, stop flag) that exists only
// for the lifetime of one handshake-to-STOP session.
//
// Mutation discipline (see driver package for the goroutines that
// enforce it): LocalEndpoint fields are touched only by the driver
// goroutine. RemoteEndpoint's stop flag is an atomic behind Stop and
// Stopped, safe from either goroutine. RemoteEndpoint.LastSendTime is
// written and read only by the receiver goroutine.
package session

import (
	"net"
	"sync/atomic"

	"github.com/tracksync/trackudp/buf"
)

// LocalEndpoint is the driver's own side of a connection: the socket,
// its scratch DataBuf used to assemble outbound messages, and the
// negotiated parameters of the active (or about-to-be-active)
// session.
type LocalEndpoint struct {
	Conn        *net.UDPConn
	Scratch     *buf.DataBuf
	IntervalMS  int32
	AssignedID  int32
	MaxMsgLen   int
}

// NewLocalEndpoint allocates a LocalEndpoint with a scratch buffer
// sized to maxMsgLen, the configured maximum message length (≤ 2048
// to stay clear of IP fragmentation).
func NewLocalEndpoint(conn *net.UDPConn, maxMsgLen int) *LocalEndpoint {
	return &LocalEndpoint{
		Conn:      conn,
		Scratch:   buf.New(maxMsgLen),
		MaxMsgLen: maxMsgLen,
	}
}

// RemoteEndpoint is the peer side of an active session. It is created
// on successful handshake and discarded on STOP or a fatal I/O error;
// ownership is exclusive to the driver goroutine except for the two
// fields the receiver goroutine also touches (the stop flag, LastSendTime).
type RemoteEndpoint struct {
	Addr        *net.UDPAddr
	ID          int32
	RequestedAt int64

	// LastSendTime is the most recently observed sender timestamp from
	// this peer's DATA messages. Receiver-goroutine-only: never read or
	// written by the driver goroutine.
	LastSendTime int64

	stopFlag atomic.Bool
}

// NewRemoteEndpoint creates a RemoteEndpoint for a peer at addr,
// assigned id, recorded at requestedAt (epoch-ms).
func NewRemoteEndpoint(addr *net.UDPAddr, id int32, requestedAt int64) *RemoteEndpoint {
	return &RemoteEndpoint{Addr: addr, ID: id, RequestedAt: requestedAt}
}

// Stop sets the remote's stop flag (release semantics via
// atomic.Bool). Safe to call from either goroutine.
func (r *RemoteEndpoint) Stop() { r.stopFlag.Store(true) }

// Stopped reports whether Stop has been called (acquire semantics via
// atomic.Bool). Safe to call from either goroutine.
func (r *RemoteEndpoint) Stopped() bool { return r.stopFlag.Load() }
