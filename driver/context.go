// Package driver implements ConnectionDriver: the session state
// machine and concurrency core that runs a server or client side of
// the adapter protocol against a Context supplied by the application.
package driver

import (
	"sync/atomic"

	"github.com/tracksync/trackudp/buf"
	"github.com/tracksync/trackudp/std"
)

// Config holds the per-run configuration a Context exposes to the
// driver: endpoint addressing, the negotiated schema/flags the
// application wants to offer, and reconnection/framing limits.
type Config struct {
	// Host/Port address the server's listen port (server mode) or the
	// remote peer (client mode).
	Host string
	Port string

	// Schema identifies the application's payload format; peers that
	// disagree are rejected with ReasonUnknownSchema.
	Schema string

	// Flags is this peer's capability bitmask (CapProducesData /
	// CapConsumesData).
	Flags int32

	// IntervalMS is the preferred (client) or default (server) DATA
	// send interval in milliseconds.
	IntervalMS int32

	// ConnectIntervalMS, when > 0, makes client Resolve/Request retry
	// at this period instead of failing outright. 0 disables retry.
	ConnectIntervalMS int32

	// MaxMsgLen bounds the scratch buffer and rejects any frame beyond
	// it as a FramingError. 0, or any value above 2048, falls back to
	// 2048, the IP fragmentation-safe ceiling.
	MaxMsgLen int

	// Counters, when non-nil, receives protocol activity counts as the
	// driver runs. Nil disables counting entirely.
	Counters *std.Counters
}

func (c Config) maxMsgLen() int {
	if c.MaxMsgLen <= 0 || c.MaxMsgLen > 2048 {
		return 2048
	}
	return c.MaxMsgLen
}

// Context is the callback surface ConnectionDriver consumes. It plays
// the role spec.md's "callback table on a context struct" design note
// describes: an explicit configuration-plus-function-references
// record, expressed here as one interface so the core stays free of
// per-callsite polymorphism costs while remaining swappable in tests.
type Context interface {
	Config() Config

	// StopLocal is the shared shutdown flag. Any goroutine (a signal
	// handler, another session, a test) may call Store(true) on it;
	// the driver polls it at every suspension boundary.
	StopLocal() *atomic.Bool

	// TimeDiff/SetTimeDiff carry the simulation-time offset computed at
	// handshake (see §4.6.4): wall-clock epoch-ms minus the peer's
	// reported simulation epoch-ms, kept only when it exceeds
	// MaxTimeDiff.
	TimeDiff() int64
	SetTimeDiff(diff int64)

	// WriteRequest fills the REQUEST body after the driver has already
	// written the header, returning the advanced position (0 signals
	// failure).
	WriteRequest(b *buf.DataBuf, pos int) int

	// CheckRequest authorizes an incoming REQUEST. simMS/intervalMS are
	// the client's requested values; the server may overwrite them
	// in place with its own preferred values. A non-zero return value
	// is a reject-reason bitmask; zero means accept.
	CheckRequest(host, service string, flags int32, schema string, simMS *int64, intervalMS *int32) int32

	// WriteData fills the outgoing DATA payload at pos, returning the
	// advanced position. A negative return means "no data this tick":
	// the driver skips the send but still sleeps the full interval.
	WriteData(b *buf.DataBuf, pos int) int

	// ReadData consumes an incoming DATA payload starting at pos.
	ReadData(b *buf.DataBuf, pos int) int

	// Optional hooks.

	// Listening reports the server's actual bound port once the
	// listening socket is open, which matters when Config.Port is "0"
	// and the kernel assigns an ephemeral one. Never called client-side.
	Listening(port int)

	ConnectionStarted(remoteID int32)
	ConnectionPaused(remoteID int32)
	ConnectionResumed(remoteID int32)
	ConnectionTerminated(remoteID int32, err error)
	Info(format string, args ...any)
	Warning(format string, args ...any)
	Error(format string, args ...any)
}

// BaseContext supplies no-op defaults for Context's optional hooks and
// owns the StopLocal/TimeDiff state every Context needs, so concrete
// applications only have to implement Config, WriteRequest,
// CheckRequest, WriteData, and ReadData. Embed it by value.
type BaseContext struct {
	stopLocal atomic.Bool
	timeDiff  atomic.Int64
}

func (c *BaseContext) StopLocal() *atomic.Bool { return &c.stopLocal }
func (c *BaseContext) TimeDiff() int64         { return c.timeDiff.Load() }
func (c *BaseContext) SetTimeDiff(diff int64)  { c.timeDiff.Store(diff) }

func (c *BaseContext) Listening(port int)                            {}
func (c *BaseContext) ConnectionStarted(remoteID int32)              {}
func (c *BaseContext) ConnectionPaused(remoteID int32)                {}
func (c *BaseContext) ConnectionResumed(remoteID int32)               {}
func (c *BaseContext) ConnectionTerminated(remoteID int32, err error) {}
func (c *BaseContext) Info(format string, args ...any)                {}
func (c *BaseContext) Warning(format string, args ...any)             {}
func (c *BaseContext) Error(format string, args ...any)               {}

// MaxTimeDiff is the simulation-time tolerance of §4.6.4: offsets
// within this window are assumed to be clock jitter and left
// unchanged rather than overwriting a previously stored diff.
const MaxTimeDiff = 1000

// RecvTimeoutMS is the client's REQUEST response timeout of §4.6.2.
const RecvTimeoutMS = 300

// pollIntervalMS bounds how long any single blocking-style receive
// waits before re-checking StopLocal/ctx.Done(), so every suspension
// point in the state machine stays cancellable without needing to
// tear down the shared socket mid-session.
const pollIntervalMS = 200
