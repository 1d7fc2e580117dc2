// Package wire implements the adapter protocol's fixed-layout message
// framing: a 16-byte header followed by a typed, message-specific body.
// Variable-length messages (Request, Data) are framed with the
// two-pass back-patched-length pattern: write the header with
// length 0, fill the body, then overwrite the length field at offset
// 2 once the total is known.
package wire

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/tracksync/trackudp/buf"
	"github.com/tracksync/trackudp/clock"
)

// MsgType identifies the kind of message framed in a datagram.
type MsgType int16

const (
	Request MsgType = 1
	Accept  MsgType = 2
	Reject  MsgType = 3
	Data    MsgType = 4
	Stop    MsgType = 5
	Pause   MsgType = 6
	Resume  MsgType = 7
)

func (t MsgType) String() string {
	switch t {
	case Request:
		return "REQUEST"
	case Accept:
		return "ACCEPT"
	case Reject:
		return "REJECT"
	case Data:
		return "DATA"
	case Stop:
		return "STOP"
	case Pause:
		return "PAUSE"
	case Resume:
		return "RESUME"
	default:
		return "UNKNOWN"
	}
}

// Header field offsets and sizes, per spec.
const (
	HeaderLen = 16

	offType   = 0
	offLength = 2
	offSender = 4
	offTS     = 8
)

// Sender id sentinels.
const (
	SenderServer     int32 = 0
	SenderUnassigned int32 = -1
)

// Reject reason bitmask.
const (
	ReasonNoMoreConnections int32 = 1 << 0
	ReasonUnknownSchema     int32 = 1 << 1
	ReasonUnsupportedInterv int32 = 1 << 2
)

// Capability flag bits.
const (
	CapProducesData int32 = 1 << 0
	CapConsumesData int32 = 1 << 1
)

// FramingError indicates a header length/type mismatch or a truncated
// datagram. The caller should drop the datagram and continue the
// session.
type FramingError struct {
	Reason string
}

func (e *FramingError) Error() string { return "framing error: " + e.Reason }

func framingErrorf(format string, args ...any) error {
	return errors.WithStack(&FramingError{Reason: fmt.Sprintf(format, args...)})
}

// WriteHeader resets the buffer and writes the 16-byte header with the
// current epoch-ms timestamp. length may be 0 to be back-patched once
// the body size is known. Returns the position just past the header,
// or 0 on overflow.
func WriteHeader(b *buf.DataBuf, msgType MsgType, length uint16, sender int32) int {
	b.Reset()
	pos := b.WriteI16(offType, int16(msgType))
	pos = b.WriteI16(pos, int16(length))
	pos = b.WriteI32(pos, sender)
	pos = b.WriteI64(pos, clock.EpochMS())
	return pos
}

// SetLength back-patches the total message length field once the body
// has been written.
func SetLength(b *buf.DataBuf, total int) bool {
	if total < 0 || total > 0xFFFF {
		return false
	}
	return b.SetI16(offLength, int16(total))
}

// PeekType reads the message type field without requiring the rest of
// the header to be valid.
func PeekType(b *buf.DataBuf) (MsgType, bool) {
	v, ok := b.PeekI16(offType)
	if !ok {
		return 0, false
	}
	return MsgType(v), true
}

// PeekLength reads the declared total message length field.
func PeekLength(b *buf.DataBuf) (uint16, bool) {
	v, ok := b.PeekI16(offLength)
	if !ok {
		return 0, false
	}
	return uint16(v), true
}

// Is reports whether the buffer's header matches the given type and,
// for fixed-length message types, the expected total length.
// received is the number of bytes actually read off the wire for this
// datagram.
func Is(b *buf.DataBuf, msgType MsgType, expectedLen uint16, received int) bool {
	t, ok := PeekType(b)
	if !ok || t != msgType {
		return false
	}
	if expectedLen == 0 {
		return true
	}
	return int(expectedLen) == received
}

// ReadHeader validates and parses the 16-byte header, requiring the
// message type to equal expectedType and, if expectedLen is non-zero,
// the header's length field and the actually-received byte count to
// both equal expectedLen. Returns the position just past the header
// along with the sender id and timestamp, or (0, error) on mismatch.
func ReadHeader(b *buf.DataBuf, expectedType MsgType, expectedLen uint16, received int) (pos int, sender int32, ts int64, err error) {
	t, ok := PeekType(b)
	if !ok {
		return 0, 0, 0, framingErrorf("truncated header")
	}
	if t != expectedType {
		return 0, 0, 0, framingErrorf("expected message type %s, got %s", expectedType, t)
	}

	declared, ok := PeekLength(b)
	if !ok {
		return 0, 0, 0, framingErrorf("truncated header")
	}
	if expectedLen != 0 {
		if declared != expectedLen {
			return 0, 0, 0, framingErrorf("declared length %d does not match expected %d", declared, expectedLen)
		}
	}
	if int(declared) != received {
		return 0, 0, 0, framingErrorf("declared length %d does not match received %d bytes", declared, received)
	}

	sender, p := b.ReadI32(offSender)
	if p == 0 {
		return 0, 0, 0, framingErrorf("truncated sender field")
	}
	ts, p = b.ReadI64(p)
	if p == 0 {
		return 0, 0, 0, framingErrorf("truncated timestamp field")
	}
	return p, sender, ts, nil
}

// --- REQUEST ---

// WriteRequestBody writes a REQUEST message's body (flags, schema,
// requested simulation time, preferred interval) starting at pos,
// without touching the header. This is what a Context.WriteRequest
// implementation calls after the driver has already written the
// header.
func WriteRequestBody(b *buf.DataBuf, pos int, flags int32, schema string, simMS int64, intervalMS int32) int {
	pos = b.WriteI32(pos, flags)
	if pos == 0 {
		return 0
	}
	pos = b.WriteString(pos, schema)
	if pos == 0 {
		return 0
	}
	pos = b.WriteI64(pos, simMS)
	if pos == 0 {
		return 0
	}
	pos = b.WriteI32(pos, intervalMS)
	return pos
}

// WriteRequest frames a whole REQUEST message: header + body, with
// the length field back-patched once the body is written. A
// convenience for tests and simple Context implementations; the
// driver itself writes the header and defers to
// Context.WriteRequest for the body, since the REQUEST's field values
// (flags, schema, simulation time, interval) are application-specific.
func WriteRequest(b *buf.DataBuf, sender int32, flags int32, schema string, simMS int64, intervalMS int32) int {
	pos := WriteHeader(b, Request, 0, sender)
	if pos == 0 {
		return 0
	}
	pos = WriteRequestBody(b, pos, flags, schema, simMS, intervalMS)
	if pos == 0 {
		return 0
	}
	if !SetLength(b, pos) {
		return 0
	}
	return pos
}

// Request is the parsed body of a REQUEST message.
type Request struct {
	Sender     int32
	Timestamp  int64
	Flags      int32
	Schema     string
	SimMS      int64
	IntervalMS int32
}

// ReadRequest parses a REQUEST message of the given received byte
// count.
func ReadRequest(b *buf.DataBuf, received int) (Request, error) {
	var r Request
	pos, sender, ts, err := ReadHeader(b, Request, 0, received)
	if err != nil {
		return r, err
	}
	r.Sender, r.Timestamp = sender, ts

	flags, pos2 := b.ReadI32(pos)
	if pos2 == 0 {
		return r, framingErrorf("truncated flags field")
	}
	r.Flags = flags

	schema, pos3 := b.ReadString(pos2)
	if pos3 == 0 {
		return r, framingErrorf("truncated schema field")
	}
	r.Schema = schema

	simMS, pos4 := b.ReadI64(pos3)
	if pos4 == 0 {
		return r, framingErrorf("truncated sim-time field")
	}
	r.SimMS = simMS

	interval, pos5 := b.ReadI32(pos4)
	if pos5 == 0 {
		return r, framingErrorf("truncated interval field")
	}
	r.IntervalMS = interval

	if pos5 != received {
		return r, framingErrorf("trailing bytes in REQUEST: parsed %d, received %d", pos5, received)
	}
	return r, nil
}

// --- ACCEPT ---

// acceptBodyLen is the fixed body length of ACCEPT: flags(4) +
// simMS(8) + intervalMS(4) + clientID(4) = 20 bytes, per the newer
// codec layout (see design notes on the superseded 12-byte body).
const acceptBodyLen = 20

// AcceptLen is the total ACCEPT datagram length.
const AcceptLen = HeaderLen + acceptBodyLen

// WriteAccept frames an ACCEPT message.
func WriteAccept(b *buf.DataBuf, serverFlags int32, simMS int64, intervalMS int32, clientID int32) int {
	pos := WriteHeader(b, Accept, AcceptLen, SenderServer)
	if pos == 0 {
		return 0
	}
	pos = b.WriteI32(pos, serverFlags)
	pos = b.WriteI64(pos, simMS)
	pos = b.WriteI32(pos, intervalMS)
	pos = b.WriteI32(pos, clientID)
	if pos != AcceptLen {
		return 0
	}
	return pos
}

// Accept is the parsed body of an ACCEPT message.
type Accept struct {
	Timestamp  int64
	Flags      int32
	SimMS      int64
	IntervalMS int32
	ClientID   int32
}

// ReadAccept parses an ACCEPT message of the given received byte
// count.
func ReadAccept(b *buf.DataBuf, received int) (Accept, error) {
	var a Accept
	pos, _, ts, err := ReadHeader(b, Accept, AcceptLen, received)
	if err != nil {
		return a, err
	}
	a.Timestamp = ts

	flags, pos := b.ReadI32(pos)
	simMS, pos2 := b.ReadI64(pos)
	interval, pos3 := b.ReadI32(pos2)
	clientID, pos4 := b.ReadI32(pos3)
	if pos4 == 0 {
		return a, framingErrorf("truncated ACCEPT body")
	}
	a.Flags, a.SimMS, a.IntervalMS, a.ClientID = flags, simMS, interval, clientID
	return a, nil
}

// --- REJECT ---

// RejectLen is the total REJECT datagram length.
const RejectLen = HeaderLen + 4

// WriteReject frames a REJECT message carrying a bitmask of reasons.
func WriteReject(b *buf.DataBuf, reasons int32) int {
	pos := WriteHeader(b, Reject, RejectLen, SenderServer)
	if pos == 0 {
		return 0
	}
	pos = b.WriteI32(pos, reasons)
	if pos != RejectLen {
		return 0
	}
	return pos
}

// ReadReject parses a REJECT message's reason bitmask.
func ReadReject(b *buf.DataBuf, received int) (int32, error) {
	pos, _, _, err := ReadHeader(b, Reject, RejectLen, received)
	if err != nil {
		return 0, err
	}
	reasons, pos2 := b.ReadI32(pos)
	if pos2 == 0 {
		return 0, framingErrorf("truncated REJECT body")
	}
	return reasons, nil
}

// --- STOP / PAUSE / RESUME (header only) ---

func writeHeaderOnly(b *buf.DataBuf, msgType MsgType, sender int32) int {
	pos := WriteHeader(b, msgType, HeaderLen, sender)
	if pos != HeaderLen {
		return 0
	}
	return pos
}

// WriteStop frames a header-only STOP message.
func WriteStop(b *buf.DataBuf, sender int32) int { return writeHeaderOnly(b, Stop, sender) }

// WritePause frames a header-only PAUSE message.
func WritePause(b *buf.DataBuf, sender int32) int { return writeHeaderOnly(b, Pause, sender) }

// WriteResume frames a header-only RESUME message.
func WriteResume(b *buf.DataBuf, sender int32) int { return writeHeaderOnly(b, Resume, sender) }

func readHeaderOnly(b *buf.DataBuf, msgType MsgType, received int) (sender int32, ts int64, err error) {
	_, sender, ts, err = ReadHeader(b, msgType, HeaderLen, received)
	return
}

// ReadStop parses a STOP message's header fields.
func ReadStop(b *buf.DataBuf, received int) (sender int32, ts int64, err error) {
	return readHeaderOnly(b, Stop, received)
}

// ReadPause parses a PAUSE message's header fields.
func ReadPause(b *buf.DataBuf, received int) (sender int32, ts int64, err error) {
	return readHeaderOnly(b, Pause, received)
}

// ReadResume parses a RESUME message's header fields.
func ReadResume(b *buf.DataBuf, received int) (sender int32, ts int64, err error) {
	return readHeaderOnly(b, Resume, received)
}

// --- DATA ---

// BeginWriteData writes the DATA header with length 0 and returns the
// payload start position for the application's write callback to fill.
func BeginWriteData(b *buf.DataBuf, sender int32) int {
	return WriteHeader(b, Data, 0, sender)
}

// EndWriteData back-patches the total message length once the
// application callback has finished writing the payload at
// payloadEnd.
func EndWriteData(b *buf.DataBuf, payloadEnd int) bool {
	return SetLength(b, payloadEnd)
}

// ReadDataHeader validates a DATA message's header and returns the
// payload start position along with the sender id and timestamp, for
// the application's read callback to consume from.
func ReadDataHeader(b *buf.DataBuf, received int) (payloadPos int, sender int32, ts int64, err error) {
	return ReadHeader(b, Data, 0, received)
}
