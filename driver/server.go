package driver

import (
	"context"
	"net"
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/tracksync/trackudp/clock"
	"github.com/tracksync/trackudp/netio"
	"github.com/tracksync/trackudp/session"
	"github.com/tracksync/trackudp/wire"
)

func parsePort(s string) (int, error) { return strconv.Atoi(s) }
func portString(p int) string         { return strconv.Itoa(p) }

// RunServer binds the configured port once and then loops
// WaitRequest -> Handshake -> Connected -> Draining for as many
// sessions as arrive, until ctx is cancelled or StopLocal is set
// while idle. Sessions are serial: only one RemoteEndpoint is active
// at a time, per §7's single-peer-per-session model.
//
// nextClientID is scoped to the whole server run, not reset per
// session, so assigned ids are strictly increasing across the
// server's lifetime (§10's testable property).
func RunServer(ctx context.Context, dctx Context) error {
	cfg := dctx.Config()

	port := 0
	if p, err := parsePort(cfg.Port); err == nil {
		port = p
	}
	conn, err := netio.BindServer(cfg.Host, port)
	if err != nil {
		return err
	}
	defer conn.Close()

	if laddr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		dctx.Listening(laddr.Port)
	}

	local := session.NewLocalEndpoint(conn, cfg.maxMsgLen())
	var nextClientID int32 = 1

	for {
		if ctx.Err() != nil || dctx.StopLocal().Load() {
			return nil
		}

		remote, intervalMS, err := waitRequest(ctx, dctx, local, &nextClientID)
		if err != nil {
			if err == errStopped || err == context.Canceled {
				return nil
			}
			dctx.Error("handshake failed: %v", err)
			continue
		}
		if remote == nil {
			// Rejected; keep waiting for the next peer.
			continue
		}

		local.AssignedID = remote.ID
		local.IntervalMS = intervalMS

		if err := runConnected(ctx, dctx, local, remote, true); err != nil {
			dctx.Error("session with peer %d ended: %v", remote.ID, err)
		}
	}
}

// waitRequest blocks for a REQUEST, authorizes it via
// Context.CheckRequest, and replies ACCEPT or REJECT. A nil
// RemoteEndpoint with a nil error means the peer was rejected and the
// server should resume waiting.
func waitRequest(ctx context.Context, dctx Context, local *session.LocalEndpoint, nextClientID *int32) (*session.RemoteEndpoint, int32, error) {
	n, from, err := recvPoll(ctx, dctx.StopLocal(), local.Conn, local.Scratch)
	if err != nil {
		return nil, 0, err
	}

	if !wire.Is(local.Scratch, wire.Request, 0, n) {
		dctx.Warning("dropping non-REQUEST datagram from %s while idle", from)
		return nil, 0, nil
	}

	req, err := wire.ReadRequest(local.Scratch, n)
	if err != nil {
		dctx.Warning("malformed REQUEST from %s: %v", from, err)
		return nil, 0, nil
	}

	simMS := req.SimMS
	intervalMS := req.IntervalMS
	host, service := from.IP.String(), portString(from.Port)
	reasons := dctx.CheckRequest(host, service, req.Flags, req.Schema, &simMS, &intervalMS)

	if reasons != 0 {
		pos := wire.WriteReject(local.Scratch, reasons)
		if pos == 0 {
			return nil, 0, handshakeErrorf("failed to frame REJECT for %s", from)
		}
		if _, err := local.Conn.WriteToUDP(local.Scratch.Bytes()[:pos], from); err != nil {
			return nil, 0, &SendError{Cause: err}
		}
		if counters := dctx.Config().Counters; counters != nil {
			counters.RejectSent.Add(1)
		}
		return nil, 0, nil
	}

	clientID := atomic.AddInt32(nextClientID, 1) - 1
	if diff := clock.Diff(simMS); diff > MaxTimeDiff || diff < -MaxTimeDiff {
		dctx.SetTimeDiff(diff)
	}

	pos := wire.WriteAccept(local.Scratch, dctx.Config().Flags, simMS, intervalMS, clientID)
	if pos == 0 {
		return nil, 0, handshakeErrorf("failed to frame ACCEPT for %s", from)
	}
	if _, err := local.Conn.WriteToUDP(local.Scratch.Bytes()[:pos], from); err != nil {
		return nil, 0, &SendError{Cause: err}
	}

	dctx.Info("accepted %s as client %d (correlation %s)", from, clientID, uuid.New())

	remote := session.NewRemoteEndpoint(from, clientID, clock.EpochMS())
	return remote, intervalMS, nil
}
