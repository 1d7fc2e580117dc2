package driver

import (
	"fmt"

	"github.com/pkg/errors"
)

// HandshakeError indicates a malformed REQUEST, a REJECT response, or
// an ACCEPT timeout past the retry budget. Fatal to the session: the
// server keeps serving the next peer, the client exits or retries
// depending on ConnectIntervalMS.
type HandshakeError struct {
	Reason string
}

func (e *HandshakeError) Error() string { return "handshake error: " + e.Reason }

func handshakeErrorf(format string, args ...any) error {
	return errors.WithStack(&HandshakeError{Reason: fmt.Sprintf(format, args...)})
}

// OrderingError indicates a DATA message with an older timestamp than
// already observed, or a sender id mismatch. The offending datagram is
// dropped; the session continues.
type OrderingError struct {
	Reason string
}

func (e *OrderingError) Error() string { return "ordering error: " + e.Reason }

// SendError indicates sendto returned an error. Ends the current
// session; the server loops to accept the next peer.
type SendError struct {
	Cause error
}

func (e *SendError) Error() string { return "send error: " + e.Cause.Error() }
func (e *SendError) Unwrap() error { return e.Cause }

// ReceiveError indicates a recvfrom failure not caused by StopLocal.
// Ends the session.
type ReceiveError struct {
	Cause error
}

func (e *ReceiveError) Error() string { return "receive error: " + e.Cause.Error() }
func (e *ReceiveError) Unwrap() error { return e.Cause }

// errStopped is returned internally by the poll-based receive helpers
// to signal a clean shutdown request rather than a real I/O failure.
var errStopped = errors.New("stop requested")
