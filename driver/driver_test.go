package driver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/tracksync/trackudp/buf"
	"github.com/tracksync/trackudp/netio"
	"github.com/tracksync/trackudp/session"
	"github.com/tracksync/trackudp/wire"
)

// fakeContext is a minimal Context used across the state-machine
// tests below. The zero value writes an empty REQUEST/DATA body and
// accepts every peer; tests override individual callbacks as needed.
type fakeContext struct {
	BaseContext

	cfg Config

	onCheckRequest func(host, service string, flags int32, schema string, simMS *int64, intervalMS *int32) int32
	onWriteData    func(b *buf.DataBuf, pos int) int
	onReadData     func(b *buf.DataBuf, pos int) int

	mu            sync.Mutex
	listeningPort int
	readDataCount int
	started       []int32
	terminated    []int32
	warnings      []string
}

func (c *fakeContext) Config() Config { return c.cfg }

func (c *fakeContext) WriteRequest(b *buf.DataBuf, pos int) int {
	return wire.WriteRequestBody(b, pos, 0, c.cfg.Schema, 0, c.cfg.IntervalMS)
}

func (c *fakeContext) CheckRequest(host, service string, flags int32, schema string, simMS *int64, intervalMS *int32) int32 {
	if c.onCheckRequest != nil {
		return c.onCheckRequest(host, service, flags, schema, simMS, intervalMS)
	}
	return 0
}

func (c *fakeContext) WriteData(b *buf.DataBuf, pos int) int {
	if c.onWriteData != nil {
		return c.onWriteData(b, pos)
	}
	return pos
}

func (c *fakeContext) ReadData(b *buf.DataBuf, pos int) int {
	c.mu.Lock()
	c.readDataCount++
	c.mu.Unlock()
	if c.onReadData != nil {
		return c.onReadData(b, pos)
	}
	return pos
}

func (c *fakeContext) Listening(port int) {
	c.mu.Lock()
	c.listeningPort = port
	c.mu.Unlock()
}

func (c *fakeContext) ConnectionStarted(remoteID int32) {
	c.mu.Lock()
	c.started = append(c.started, remoteID)
	c.mu.Unlock()
}

func (c *fakeContext) ConnectionTerminated(remoteID int32, err error) {
	c.mu.Lock()
	c.terminated = append(c.terminated, remoteID)
	c.mu.Unlock()
}

func (c *fakeContext) Warning(format string, args ...any) {
	c.mu.Lock()
	c.warnings = append(c.warnings, fmt.Sprintf(format, args...))
	c.mu.Unlock()
}

func (c *fakeContext) port() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listeningPort
}

func (c *fakeContext) reads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readDataCount
}

func (c *fakeContext) startedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.started)
}

// waitForPort polls fakeContext.port() until it's non-zero or the
// deadline passes. RunServer binds with port "0" in these tests, so
// the caller learns the ephemeral port only via the Listening hook.
func waitForPort(t *testing.T, c *fakeContext) int {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if p := c.port(); p != 0 {
			return p
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("server never reported a listening port")
	return 0
}

func TestMinimalHandshakeAndData(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverCtx := &fakeContext{cfg: Config{Port: "0", Schema: "telemetry/v1", IntervalMS: 10}}
	serverDone := make(chan error, 1)
	go func() { serverDone <- RunServer(ctx, serverCtx) }()

	port := waitForPort(t, serverCtx)

	clientCtx := &fakeContext{cfg: Config{Host: "127.0.0.1", Port: strconv.Itoa(port), Schema: "telemetry/v1", IntervalMS: 10}}
	clientDone := make(chan error, 1)
	go func() { clientDone <- RunClient(ctx, clientCtx) }()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if serverCtx.reads() > 0 && clientCtx.startedCount() > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if serverCtx.reads() == 0 {
		t.Fatal("server never observed a DATA message from the client")
	}
	if serverCtx.startedCount() == 0 {
		t.Fatal("server never started a session")
	}

	clientCtx.StopLocal().Store(true)
	select {
	case <-clientDone:
	case <-time.After(2 * time.Second):
		t.Fatal("client did not terminate after StopLocal")
	}

	serverCtx.StopLocal().Store(true)
	cancel()
	select {
	case <-serverDone:
	case <-time.After(2 * time.Second):
		t.Fatal("server did not terminate after cancellation")
	}
}

func TestIntervalOverrideIsHonoredByClient(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverCtx := &fakeContext{cfg: Config{Port: "0", Schema: "telemetry/v1", IntervalMS: 10}}
	serverCtx.onCheckRequest = func(host, service string, flags int32, schema string, simMS *int64, intervalMS *int32) int32 {
		*intervalMS = 500 // force a much slower cadence than the client asked for
		return 0
	}
	go RunServer(ctx, serverCtx)
	port := waitForPort(t, serverCtx)

	clientCtx := &fakeContext{cfg: Config{Host: "127.0.0.1", Port: strconv.Itoa(port), Schema: "telemetry/v1", IntervalMS: 10}}
	go RunClient(ctx, clientCtx)

	// Give the handshake time to complete, then sample twice a short
	// interval apart: with a 500ms cadence we expect at most one or two
	// DATA messages to have landed, never the dozens a 10ms cadence
	// would have produced.
	time.Sleep(250 * time.Millisecond)
	first := serverCtx.reads()
	time.Sleep(250 * time.Millisecond)
	second := serverCtx.reads()

	if second-first > 3 {
		t.Fatalf("server observed %d DATA messages in 250ms, expected the 500ms server-assigned interval to dominate", second-first)
	}

	clientCtx.StopLocal().Store(true)
	serverCtx.StopLocal().Store(true)
}

func TestRejectOnUnknownSchema(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serverCtx := &fakeContext{cfg: Config{Port: "0", Schema: "telemetry/v1", IntervalMS: 10}}
	serverCtx.onCheckRequest = func(host, service string, flags int32, schema string, simMS *int64, intervalMS *int32) int32 {
		if schema != "telemetry/v1" {
			return wire.ReasonUnknownSchema
		}
		return 0
	}
	go RunServer(ctx, serverCtx)
	port := waitForPort(t, serverCtx)

	clientCtx := &fakeContext{cfg: Config{Host: "127.0.0.1", Port: strconv.Itoa(port), Schema: "telemetry/v2", IntervalMS: 10}}
	err := RunClient(ctx, clientCtx)
	if err == nil {
		t.Fatal("expected the client to fail after a REJECT, got nil error")
	}
	var handshakeErr *HandshakeError
	if !errors.As(err, &handshakeErr) {
		t.Fatalf("expected a *HandshakeError in the chain, got %T: %v", err, err)
	}
}

func TestDispatchDropsOutOfOrderData(t *testing.T) {
	remote := session.NewRemoteEndpoint(nil, 7, 0)
	dctx := &fakeContext{}

	send := func(ts int64) {
		b := buf.New(256)
		pos := wire.BeginWriteData(b, 7)
		// Payload is empty; back-patch the timestamp written by
		// BeginWriteData so the test controls ordering directly instead
		// of waiting on wall-clock drift.
		b.WriteI64(8, ts)
		wire.EndWriteData(b, pos)
		dispatch(dctx, remote, b, pos)
	}

	send(100)
	send(200)
	send(150) // older than the last observed timestamp; must be dropped

	if remote.LastSendTime != 200 {
		t.Fatalf("LastSendTime = %d, want 200", remote.LastSendTime)
	}
	if got := dctx.reads(); got != 2 {
		t.Fatalf("ReadData called %d times, want 2 (100 and 200, not the out-of-order 150)", got)
	}
}

func TestDispatchIgnoresStopFromUnknownSender(t *testing.T) {
	remote := session.NewRemoteEndpoint(nil, 7, 0)
	dctx := &fakeContext{}

	b := buf.New(64)
	pos := wire.WriteStop(b, 99) // not remote.ID
	dispatch(dctx, remote, b, pos)

	if remote.Stopped() {
		t.Fatal("STOP from a mismatched sender id must not stop the session")
	}
}

// TestDrainSendsFinalDataBeforeStop exercises drain() directly (white
// box, like TestDispatchDropsOutOfOrderData) against a real UDP socket
// pair, so the order datagrams land on the wire is observable. It
// guards §4.6.1 step 5 / the §5 Ordering Guarantee: a cooperative
// shutdown must not let the peer's last observed application state go
// stale by up to one IntervalMS.
func TestDrainSendsFinalDataBeforeStop(t *testing.T) {
	peer, err := netio.BindServer("", 0)
	if err != nil {
		t.Fatalf("BindServer: %v", err)
	}
	defer peer.Close()
	praddr := peer.LocalAddr().(*net.UDPAddr)

	conn, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: praddr.Port})
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	defer conn.Close()

	local := session.NewLocalEndpoint(conn, 256)
	local.AssignedID = 3
	remote := session.NewRemoteEndpoint(praddr, wire.SenderServer, 0)

	writeCount := 0
	dctx := &fakeContext{}
	dctx.onWriteData = func(b *buf.DataBuf, pos int) int {
		writeCount++
		return pos
	}
	dctx.StopLocal().Store(true)

	drain(dctx, local, remote, false)

	if writeCount != 1 {
		t.Fatalf("drain called WriteData %d times, want exactly 1 final DATA", writeCount)
	}

	peer.SetReadDeadline(time.Now().Add(2 * time.Second))
	recvBuf := make([]byte, 256)

	n, _, err := peer.ReadFromUDP(recvBuf)
	if err != nil {
		t.Fatalf("peer never received the draining DATA: %v", err)
	}
	if msgType, ok := wire.PeekType(buf.Init(recvBuf[:n])); !ok || msgType != wire.Data {
		t.Fatalf("first draining datagram was %v, want a final DATA message", msgType)
	}

	n, _, err = peer.ReadFromUDP(recvBuf)
	if err != nil {
		t.Fatalf("peer never received the draining STOP: %v", err)
	}
	if msgType, ok := wire.PeekType(buf.Init(recvBuf[:n])); !ok || msgType != wire.Stop {
		t.Fatalf("second draining datagram was %v, want STOP", msgType)
	}
}

func TestClientReconnectsAfterServerStartsLate(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Reserve a port by briefly binding to it, then close it so
	// RunClient's first few attempts race a server that isn't there
	// yet, exercising ConnectIntervalMS's retry path.
	probe := &fakeContext{cfg: Config{Port: "0"}}
	probeDone := make(chan error, 1)
	probeCtx, probeCancel := context.WithCancel(context.Background())
	go func() { probeDone <- RunServer(probeCtx, probe) }()
	port := waitForPort(t, probe)
	probe.StopLocal().Store(true)
	probeCancel()
	<-probeDone

	clientCtx := &fakeContext{cfg: Config{
		Host:              "127.0.0.1",
		Port:              strconv.Itoa(port),
		Schema:            "telemetry/v1",
		IntervalMS:        10,
		ConnectIntervalMS: 30,
	}}
	clientDone := make(chan error, 1)
	go func() { clientDone <- RunClient(ctx, clientCtx) }()

	// Let a couple of failed retries happen against the now-closed port
	// before the server comes back up.
	time.Sleep(100 * time.Millisecond)

	serverCtx := &fakeContext{cfg: Config{Port: strconv.Itoa(port), Schema: "telemetry/v1", IntervalMS: 10}}
	go RunServer(ctx, serverCtx)

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if clientCtx.startedCount() > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if clientCtx.startedCount() == 0 {
		t.Fatal("client never connected once the server became reachable")
	}

	clientCtx.StopLocal().Store(true)
	serverCtx.StopLocal().Store(true)
	cancel()
	select {
	case <-clientDone:
	case <-time.After(2 * time.Second):
		t.Fatal("client did not terminate after StopLocal")
	}
}
