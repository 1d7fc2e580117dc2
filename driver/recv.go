package driver

import (
	"context"
	"net"
	"sync/atomic"
	"time"

	"github.com/tracksync/trackudp/buf"
)

// recvPoll blocks until a datagram arrives on conn, ctx is done,
// stopLocal is set, or a non-timeout I/O error occurs. It re-arms a
// short read deadline in a loop rather than blocking indefinitely, so
// every recv is a genuine suspension *and* cancellation boundary
// without requiring the caller to close the shared socket mid-session
// (the server socket, in particular, must survive into the next
// WaitRequest iteration).
func recvPoll(ctx context.Context, stopLocal *atomic.Bool, conn *net.UDPConn, scratch *buf.DataBuf) (n int, from *net.UDPAddr, err error) {
	for {
		select {
		case <-ctx.Done():
			return 0, nil, ctx.Err()
		default:
		}
		if stopLocal.Load() {
			return 0, nil, errStopped
		}

		if dlErr := conn.SetReadDeadline(time.Now().Add(pollIntervalMS * time.Millisecond)); dlErr != nil {
			return 0, nil, dlErr
		}
		n, from, err = conn.ReadFromUDP(scratch.Bytes())
		if err == nil {
			return n, from, nil
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			continue
		}
		return 0, nil, err
	}
}

// recvPollConnected is recvPoll's variant for a connection established
// via DialUDP, whose Read has no source address to report.
func recvPollConnected(ctx context.Context, stopLocal *atomic.Bool, conn *net.UDPConn, scratch *buf.DataBuf) (n int, err error) {
	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}
		if stopLocal.Load() {
			return 0, errStopped
		}

		if dlErr := conn.SetReadDeadline(time.Now().Add(pollIntervalMS * time.Millisecond)); dlErr != nil {
			return 0, dlErr
		}
		n, err = conn.Read(scratch.Bytes())
		if err == nil {
			return n, nil
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			continue
		}
		return 0, err
	}
}
