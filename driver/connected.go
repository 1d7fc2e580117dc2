package driver

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/tracksync/trackudp/clock"
	"github.com/tracksync/trackudp/session"
	"github.com/tracksync/trackudp/wire"
)

var errScratchOverflow = errors.New("scratch buffer too small for DATA header")

// runConnected drives the Connected/Draining portion of a session
// shared by server and client (§4.6.3-4.6.5): it starts the receiver
// goroutine, runs the send loop on the calling (driver) goroutine, and
// on exit performs best-effort draining before joining the receiver.
//
// While the receiver goroutine is alive the driver goroutine never
// calls recv on this socket — the send loop below only ever writes —
// which is what lets the receiver own the socket's read side without
// a mutex.
func runConnected(ctx context.Context, dctx Context, local *session.LocalEndpoint, remote *session.RemoteEndpoint, isServer bool) error {
	dctx.ConnectionStarted(remote.ID)

	var wg sync.WaitGroup
	var recvErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		recvErr = receiveLoop(ctx, dctx, local, remote, isServer)
	}()

	sendErr := sendLoop(ctx, dctx, local, remote, isServer)

	drain(dctx, local, remote, isServer)

	wg.Wait()

	err := sendErr
	if err == nil {
		err = recvErr
	}
	dctx.ConnectionTerminated(remote.ID, err)
	return err
}

// sendLoop is the driver goroutine's half of Connected: on every tick
// it asks the application for a DATA payload and, unless told to skip
// this tick, writes it to the peer, then sleeps the negotiated
// interval. It stops as soon as StopLocal is set, the peer has sent
// STOP, or ctx is cancelled.
func sendLoop(ctx context.Context, dctx Context, local *session.LocalEndpoint, remote *session.RemoteEndpoint, isServer bool) error {
	for {
		if dctx.StopLocal().Load() || remote.Stopped() {
			return nil
		}

		if err := sendData(dctx, local, remote, isServer); err != nil {
			return err
		}

		if err := clock.SleepMS(ctx, int(local.IntervalMS)); err != nil {
			return nil
		}
	}
}

func sendData(dctx Context, local *session.LocalEndpoint, remote *session.RemoteEndpoint, isServer bool) error {
	sender := local.AssignedID
	if isServer {
		sender = wire.SenderServer
	}

	pos := wire.BeginWriteData(local.Scratch, sender)
	if pos == 0 {
		return &SendError{Cause: errScratchOverflow}
	}

	payloadEnd := dctx.WriteData(local.Scratch, pos)
	if payloadEnd < 0 {
		return nil
	}
	if !wire.EndWriteData(local.Scratch, payloadEnd) {
		return nil
	}

	if err := writeDatagram(local, remote, isServer, payloadEnd); err != nil {
		return err
	}
	if counters := dctx.Config().Counters; counters != nil {
		counters.DataSent.Add(1)
	}
	return nil
}

func writeDatagram(local *session.LocalEndpoint, remote *session.RemoteEndpoint, isServer bool, n int) error {
	var err error
	if isServer {
		_, err = local.Conn.WriteToUDP(local.Scratch.Bytes()[:n], remote.Addr)
	} else {
		_, err = local.Conn.Write(local.Scratch.Bytes()[:n])
	}
	if err != nil {
		return &SendError{Cause: err}
	}
	return nil
}

// drain sends one last DATA message followed by a best-effort STOP to
// the peer when this side initiated the shutdown (StopLocal) and the
// peer has not already stopped itself, so the peer's final observed
// application state is current rather than up to one IntervalMS stale
// (§4.6.1 step 5, the Ordering Guarantee of §5). Failures here are
// logged, not propagated: the session is ending either way.
func drain(dctx Context, local *session.LocalEndpoint, remote *session.RemoteEndpoint, isServer bool) {
	if !dctx.StopLocal().Load() || remote.Stopped() {
		return
	}

	if err := sendData(dctx, local, remote, isServer); err != nil {
		dctx.Warning("failed to send final draining DATA to peer %d: %v", remote.ID, err)
	}

	sender := local.AssignedID
	if isServer {
		sender = wire.SenderServer
	}

	pos := wire.WriteStop(local.Scratch, sender)
	if pos == 0 {
		dctx.Warning("failed to frame draining STOP for peer %d", remote.ID)
		return
	}
	if err := writeDatagram(local, remote, isServer, pos); err != nil {
		dctx.Warning("failed to send draining STOP to peer %d: %v", remote.ID, err)
	}
}
