// Package clock provides the adapter protocol's wall-clock time source:
// an epoch-millisecond reader, a context-cancellable sleep, a
// fractional-seconds conversion, and the simulation-time offset (Diff)
// used by the handshake.
package clock

import (
	"context"
	"time"
)

// EpochMS returns the current wall-clock time in milliseconds since
// the Unix epoch.
func EpochMS() int64 {
	return time.Now().UnixMilli()
}

// SleepMS blocks for the given number of milliseconds, or until ctx is
// done, whichever comes first. It returns ctx.Err() if interrupted,
// nil otherwise. This is the idiomatic Go substitute for a
// signal-interruptible sleep: cancellation of ctx is how this module's
// shutdown flag reaches every suspension point, including this one.
func SleepMS(ctx context.Context, ms int) error {
	if ms <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}
	t := time.NewTimer(time.Duration(ms) * time.Millisecond)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FromFractionalSeconds converts a fractional-second duration (as used
// by some simulation clocks) to whole milliseconds.
func FromFractionalSeconds(sec float64) int64 {
	return int64(sec * 1000.0)
}

// Diff computes the offset between the local wall clock and a peer's
// reported simulation time, in milliseconds.
func Diff(peerSimMS int64) int64 {
	return EpochMS() - peerSimMS
}
