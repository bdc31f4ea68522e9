package gateway

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/kstaniek/go-xmodem/internal/xmodem"
)

// blockingTransport blocks every InByte call until release is closed, then
// returns ErrTimeout immediately. It lets tests hold a transfer "in
// progress" indefinitely without racing on real timing.
type blockingTransport struct {
	release chan struct{}
}

func newBlockingTransport() *blockingTransport {
	return &blockingTransport{release: make(chan struct{})}
}

func (t *blockingTransport) InByte(ctx context.Context, timeout time.Duration) (byte, error) {
	select {
	case <-t.release:
		return 0, xmodem.ErrTimeout
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func (t *blockingTransport) OutByte(ctx context.Context, b byte) error { return nil }

func (t *blockingTransport) DrainInput(ctx context.Context, window time.Duration) {}

func dialAndHandshake(t *testing.T, addr string) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	if err := handshake(context.Background(), conn, time.Second); err != nil {
		t.Fatalf("client handshake: %v", err)
	}
	return conn
}

func TestServer_RejectsConcurrentTransfer(t *testing.T) {
	bt := newBlockingTransport()
	srv := NewServer(
		WithListenAddr("127.0.0.1:0"),
		WithSerial(bt),
		WithXModemOptions(xmodem.WithSyncRetries(1), xmodem.WithTimeouts(50*time.Millisecond, 0, 0, 0, 10*time.Millisecond)),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Serve(ctx) }()

	select {
	case <-srv.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("server never became ready")
	}

	conn1 := dialAndHandshake(t, srv.Addr())
	defer conn1.Close()
	if _, err := conn1.Write([]byte{ctrlSend}); err != nil {
		t.Fatalf("write control byte: %v", err)
	}
	ack1 := make([]byte, 1)
	if _, err := io.ReadFull(conn1, ack1); err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if ack1[0] != 0x01 {
		t.Fatalf("expected first transfer to be accepted (0x01), got %x", ack1[0])
	}

	conn2 := dialAndHandshake(t, srv.Addr())
	defer conn2.Close()
	if _, err := conn2.Write([]byte{ctrlSend}); err != nil {
		t.Fatalf("write control byte: %v", err)
	}
	ack2 := make([]byte, 1)
	if _, err := io.ReadFull(conn2, ack2); err != nil {
		t.Fatalf("read ack: %v", err)
	}
	if ack2[0] != 0x00 {
		t.Fatalf("expected concurrent transfer to be rejected (0x00), got %x", ack2[0])
	}

	close(bt.release)
	_ = srv.Shutdown(context.Background())
	cancel()
	<-serveErr
}

func TestServer_Watch_ReceivesBroadcastEvents(t *testing.T) {
	srv := NewServer(WithListenAddr("127.0.0.1:0"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Serve(ctx) }()

	select {
	case <-srv.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("server never became ready")
	}

	conn := dialAndHandshake(t, srv.Addr())
	defer conn.Close()
	if _, err := conn.Write([]byte{ctrlWatch}); err != nil {
		t.Fatalf("write control byte: %v", err)
	}

	// Give the watch goroutine time to register before broadcasting.
	time.Sleep(50 * time.Millisecond)
	srv.broadcast(Event{Stage: StageDone, BytesMoved: 128})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 256)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("read event: %v", err)
	}
	if n == 0 {
		t.Fatal("expected a non-empty event payload")
	}
}
