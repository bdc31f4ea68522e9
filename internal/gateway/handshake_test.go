package gateway

import (
	"context"
	"net"
	"testing"
	"time"
)

func TestHandshake_RoundTrip(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	errCh := make(chan error, 2)
	go func() { errCh <- handshake(context.Background(), a, time.Second) }()
	go func() { errCh <- handshake(context.Background(), b, time.Second) }()

	for i := 0; i < 2; i++ {
		if err := <-errCh; err != nil {
			t.Fatalf("handshake failed: %v", err)
		}
	}
}

func TestHandshake_BadHello(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	go func() { _, _ = a.Write([]byte("not-the-right-magic")) }()

	err := handshake(context.Background(), b, time.Second)
	if err == nil {
		t.Fatal("expected handshake to fail on mismatched hello")
	}
}
