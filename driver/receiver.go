package driver

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/tracksync/trackudp/buf"
	"github.com/tracksync/trackudp/session"
	"github.com/tracksync/trackudp/wire"
)

// receiveLoop is the receiver goroutine started at entry to Connected
// (§4.6.3). It owns its own inbound buffer — never the driver's
// scratch buffer — so the send path never needs a mutex. It sets the
// remote's stop flag (remote.Stop) and writes remote.LastSendTime and
// is the only goroutine that does either.
//
// isServer selects between an unconnected server socket (where the
// datagram's source address must be checked against the known
// session peer, since a single listening socket could in principle
// see traffic from an unrelated sender) and a connected client socket
// (where the OS already filters delivery to the dialed peer, so no
// address comparison is needed — this is the fix for the open
// question about a client overwriting the server's address in its
// receive buffer: a connected socket never has that hazard).
func receiveLoop(ctx context.Context, dctx Context, local *session.LocalEndpoint, remote *session.RemoteEndpoint, isServer bool) error {
	scratch := buf.New(local.MaxMsgLen)

	for {
		if remote.Stopped() {
			return nil
		}

		var n int
		var from *net.UDPAddr
		var err error

		if isServer {
			n, from, err = recvPoll(ctx, dctx.StopLocal(), local.Conn, scratch)
		} else {
			n, err = recvPollConnected(ctx, dctx.StopLocal(), local.Conn, scratch)
		}

		if err != nil {
			if errors.Is(err, errStopped) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return &ReceiveError{Cause: err}
		}

		if isServer && !addrEqual(from, remote.Addr) {
			dctx.Warning("dropping datagram from unexpected peer %s (session peer is %s)", from, remote.Addr)
			continue
		}

		dispatch(dctx, remote, scratch, n)
	}
}

func dispatch(dctx Context, remote *session.RemoteEndpoint, scratch *buf.DataBuf, n int) {
	counters := dctx.Config().Counters

	t, ok := wire.PeekType(scratch)
	if !ok {
		dctx.Warning("dropping undersized datagram (%d bytes)", n)
		if counters != nil {
			counters.FramingDrops.Add(1)
		}
		return
	}

	switch t {
	case wire.Stop:
		sender, _, err := wire.ReadStop(scratch, n)
		if err != nil {
			dctx.Warning("framing error on STOP: %v", err)
			if counters != nil {
				counters.FramingDrops.Add(1)
			}
			return
		}
		if sender == remote.ID {
			remote.Stop()
		}

	case wire.Data:
		payloadPos, sender, ts, err := wire.ReadDataHeader(scratch, n)
		if err != nil {
			dctx.Warning("framing error on DATA: %v", err)
			if counters != nil {
				counters.FramingDrops.Add(1)
			}
			return
		}
		if sender != remote.ID {
			oerr := &OrderingError{Reason: fmt.Sprintf("DATA sender %d does not match session peer %d", sender, remote.ID)}
			dctx.Warning("%v", oerr)
			if counters != nil {
				counters.OrderingDrops.Add(1)
			}
			return
		}
		if ts < remote.LastSendTime {
			oerr := &OrderingError{Reason: fmt.Sprintf("DATA timestamp %d older than last observed %d", ts, remote.LastSendTime)}
			dctx.Warning("%v", oerr)
			if counters != nil {
				counters.OrderingDrops.Add(1)
			}
			return
		}
		remote.LastSendTime = ts
		dctx.ReadData(scratch, payloadPos)
		if counters != nil {
			counters.DataRecv.Add(1)
		}

	case wire.Pause:
		sender, _, err := wire.ReadPause(scratch, n)
		if err != nil {
			dctx.Warning("framing error on PAUSE: %v", err)
			return
		}
		if sender == remote.ID {
			dctx.ConnectionPaused(remote.ID)
		}

	case wire.Resume:
		sender, _, err := wire.ReadResume(scratch, n)
		if err != nil {
			dctx.Warning("framing error on RESUME: %v", err)
			return
		}
		if sender == remote.ID {
			dctx.ConnectionResumed(remote.ID)
		}

	default:
		dctx.Warning("dropping unknown message type %v", t)
	}
}

func addrEqual(a, b *net.UDPAddr) bool {
	if a == nil || b == nil {
		return false
	}
	return a.IP.Equal(b.IP) && a.Port == b.Port
}
