package xmodem

import (
	"context"
	"time"
)

// Transport abstracts the byte-oriented serial link an XMODEM session runs
// over. It is the one collaborator the protocol core needs from the
// outside world besides the buffer supplier; production code normally
// gets one from internal/serialport, tests normally build one in-memory
// (see loopback_test.go).
//
// A context.Context is threaded through every call so a host process can
// cancel a wedged session (e.g. the gateway shutting down) without relying
// solely on XMODEM's own retry/sync budgets — this is additive and never
// the only way a session ends.
type Transport interface {
	// InByte reads one byte, blocking at most timeout. It returns
	// ErrTimeout (check with errors.Is) if no byte arrived in time; any
	// other non-nil error is a fatal link failure.
	InByte(ctx context.Context, timeout time.Duration) (byte, error)

	// OutByte writes one byte. Implementations may buffer internally;
	// link failures are expected to surface through later InByte calls,
	// mirroring the original protocol's "write is infallible" treatment,
	// but OutByte may still return an error which callers should treat as
	// fatal.
	OutByte(ctx context.Context, b byte) error

	// DrainInput reads and discards bytes until a read times out against
	// window, the caller's configured drain timeout. Called before every
	// terminal return so the link is left quiescent for the peer's next
	// attempt.
	DrainInput(ctx context.Context, window time.Duration)
}
