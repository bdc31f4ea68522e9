package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"
)

// hello is the fixed magic string exchanged by both sides of a control
// connection before any transfer control byte is read, so each side can
// fail fast against a stray or misconfigured peer instead of misreading
// its first real byte as part of the protocol.
const hello = "XMODEMGATEWAYv1"

// handshake performs a deadline-bounded concurrent write+read-full hello
// exchange over c, failing if either side doesn't see the expected string
// within timeout.
func handshake(ctx context.Context, c net.Conn, timeout time.Duration) error {
	if err := c.SetDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	defer c.SetDeadline(time.Time{})

	errCh := make(chan error, 2)

	go func() {
		_, err := io.WriteString(c, hello)
		errCh <- err
	}()

	go func() {
		buf := make([]byte, len(hello))
		_, err := io.ReadFull(c, buf)
		if err == nil && string(buf) != hello {
			err = errors.New("bad hello")
		}
		errCh <- err
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("handshake: %w", err)
			}
		}
	}
	return nil
}
