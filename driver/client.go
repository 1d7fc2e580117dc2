package driver

import (
	"context"
	"net"

	"github.com/google/uuid"

	"github.com/tracksync/trackudp/buf"
	"github.com/tracksync/trackudp/clock"
	"github.com/tracksync/trackudp/netio"
	"github.com/tracksync/trackudp/session"
	"github.com/tracksync/trackudp/wire"
)

// RunClient resolves the configured peer, performs the REQUEST/ACCEPT
// handshake, and on success runs Connected/Draining to completion.
// If ConnectIntervalMS is 0, any failure up through AwaitResponse is
// fatal and returned immediately. If it's positive, the whole
// Resolve-through-AwaitResponse sequence retries at that period
// instead, matching a client that expects to be started before its
// server is reachable.
func RunClient(ctx context.Context, dctx Context) error {
	cfg := dctx.Config()

	for {
		if ctx.Err() != nil || dctx.StopLocal().Load() {
			return nil
		}

		conn, remote, assignedID, intervalMS, err := connect(ctx, dctx)
		if err != nil {
			if cfg.ConnectIntervalMS <= 0 {
				return err
			}
			dctx.Warning("connect attempt failed, retrying: %v", err)
			if sleepErr := clock.SleepMS(ctx, int(cfg.ConnectIntervalMS)); sleepErr != nil {
				return nil
			}
			continue
		}

		local := session.NewLocalEndpoint(conn, cfg.maxMsgLen())
		local.AssignedID = assignedID
		local.IntervalMS = intervalMS

		err = runConnected(ctx, dctx, local, remote, false)
		conn.Close()
		if err != nil {
			dctx.Error("session ended: %v", err)
		}

		if cfg.ConnectIntervalMS <= 0 {
			return err
		}
		if ctx.Err() != nil || dctx.StopLocal().Load() {
			return nil
		}
		if sleepErr := clock.SleepMS(ctx, int(cfg.ConnectIntervalMS)); sleepErr != nil {
			return nil
		}
	}
}

// connect performs Resolve, Request, and AwaitResponse once. On
// success it returns a dialed connection, a RemoteEndpoint
// representing the server (whose frames always carry
// wire.SenderServer as their sender id — never confuse this with the
// client's own assigned id), the id the server assigned this client,
// and the negotiated DATA interval.
func connect(ctx context.Context, dctx Context) (conn *net.UDPConn, remote *session.RemoteEndpoint, assignedID int32, intervalMS int32, err error) {
	cfg := dctx.Config()

	conn, raddr, err := netio.ResolveClient(cfg.Host, cfg.Port)
	if err != nil {
		return nil, nil, 0, 0, err
	}

	scratch := buf.New(cfg.maxMsgLen())

	pos := wire.WriteHeader(scratch, wire.Request, 0, wire.SenderUnassigned)
	if pos == 0 {
		conn.Close()
		return nil, nil, 0, 0, handshakeErrorf("failed to frame REQUEST header")
	}
	pos = dctx.WriteRequest(scratch, pos)
	if pos == 0 {
		conn.Close()
		return nil, nil, 0, 0, handshakeErrorf("failed to frame REQUEST body")
	}
	if !wire.SetLength(scratch, pos) {
		conn.Close()
		return nil, nil, 0, 0, handshakeErrorf("REQUEST too large for scratch buffer")
	}

	if _, err := conn.Write(scratch.Bytes()[:pos]); err != nil {
		conn.Close()
		return nil, nil, 0, 0, &SendError{Cause: err}
	}

	if err := netio.SetRcvTimeout(conn, RecvTimeoutMS); err != nil {
		conn.Close()
		return nil, nil, 0, 0, err
	}
	n, err := conn.Read(scratch.Bytes())
	if err != nil {
		conn.Close()
		return nil, nil, 0, 0, handshakeErrorf("no response from %s: %v", raddr, err)
	}
	if err := netio.SetBlocking(conn); err != nil {
		conn.Close()
		return nil, nil, 0, 0, err
	}

	if wire.Is(scratch, wire.Reject, wire.RejectLen, n) {
		reasons, rerr := wire.ReadReject(scratch, n)
		conn.Close()
		if rerr != nil {
			return nil, nil, 0, 0, rerr
		}
		return nil, nil, 0, 0, handshakeErrorf("rejected by %s, reasons=0x%x", raddr, reasons)
	}

	if !wire.Is(scratch, wire.Accept, wire.AcceptLen, n) {
		conn.Close()
		return nil, nil, 0, 0, handshakeErrorf("unexpected response type from %s", raddr)
	}

	accept, aerr := wire.ReadAccept(scratch, n)
	if aerr != nil {
		conn.Close()
		return nil, nil, 0, 0, aerr
	}

	if diff := clock.Diff(accept.SimMS); diff > MaxTimeDiff || diff < -MaxTimeDiff {
		dctx.SetTimeDiff(diff)
	}

	dctx.Info("connected to %s as client %d (correlation %s)", raddr, accept.ClientID, uuid.New())

	remote = session.NewRemoteEndpoint(raddr, wire.SenderServer, clock.EpochMS())
	return conn, remote, accept.ClientID, accept.IntervalMS, nil
}
