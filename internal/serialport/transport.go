package serialport

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/kstaniek/go-xmodem/internal/xmodem"
)

// defaultPollQuantum is the internal read quantum Transport polls the port
// with. tarm/serial's ReadTimeout is fixed at Open time, so a per-call
// variable timeout is synthesized by accumulating short, repeated reads in
// a retry loop until either a byte arrives or the deadline elapses.
const defaultPollQuantum = 20 * time.Millisecond

// Transport implements xmodem.Transport over a Port.
type Transport struct {
	port        Port
	pollQuantum time.Duration
}

// NewTransport wraps port as an xmodem.Transport. quantum <= 0 uses
// defaultPollQuantum.
func NewTransport(port Port, quantum time.Duration) *Transport {
	if quantum <= 0 {
		quantum = defaultPollQuantum
	}
	return &Transport{port: port, pollQuantum: quantum}
}

var _ xmodem.Transport = (*Transport)(nil)

// InByte polls the port in pollQuantum-sized reads until a byte arrives or
// the overall timeout elapses.
func (t *Transport) InByte(ctx context.Context, timeout time.Duration) (byte, error) {
	deadline := time.Now().Add(timeout)
	buf := make([]byte, 1)
	for {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		n, err := t.port.Read(buf)
		if n > 0 {
			return buf[0], nil
		}
		if err != nil && !isTimeoutLike(err) {
			return 0, err
		}
		if time.Now().After(deadline) {
			return 0, xmodem.ErrTimeout
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-time.After(t.pollQuantum):
		}
	}
}

// OutByte writes b synchronously.
func (t *Transport) OutByte(ctx context.Context, b byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.port.Write([]byte{b})
	return err
}

// DrainInput reads and discards bytes until InByte(window) times out.
func (t *Transport) DrainInput(ctx context.Context, window time.Duration) {
	for {
		_, err := t.InByte(ctx, window)
		if err != nil {
			return
		}
	}
}

// isTimeoutLike reports whether err represents "no data this quantum" and
// should be retried rather than surfaced as a fatal link failure. It
// retries past EOF/timeout noise but bails out immediately on
// *os.PathError, which tarm/serial returns when the underlying device
// itself has gone away.
func isTimeoutLike(err error) bool {
	var perr *os.PathError
	if errors.As(err, &perr) {
		return false
	}
	type timeout interface{ Timeout() bool }
	if te, ok := err.(timeout); ok {
		return te.Timeout()
	}
	return true
}

// Close closes the underlying port.
func (t *Transport) Close() error { return t.port.Close() }
