package serialport

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/kstaniek/go-xmodem/internal/xmodem"
)

// fakePort simulates a serial port whose Read returns data from a scripted
// queue, or (0, nil) to simulate tarm/serial's fixed-ReadTimeout zero-read.
type fakePort struct {
	mu      sync.Mutex
	queue   [][]byte
	written []byte
	closed  bool
}

func (p *fakePort) push(b ...byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.queue = append(p.queue, b)
}

func (p *fakePort) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return 0, nil
	}
	next := p.queue[0]
	p.queue = p.queue[1:]
	return copy(buf, next), nil
}

func (p *fakePort) Write(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.written = append(p.written, buf...)
	return len(buf), nil
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func TestTransport_InByte_ReturnsQueuedByte(t *testing.T) {
	fp := &fakePort{}
	fp.push(0x06)
	tr := NewTransport(fp, time.Millisecond)

	b, err := tr.InByte(context.Background(), 200*time.Millisecond)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b != 0x06 {
		t.Fatalf("got byte %x, want 0x06", b)
	}
}

func TestTransport_InByte_TimesOutOnSilence(t *testing.T) {
	fp := &fakePort{}
	tr := NewTransport(fp, time.Millisecond)

	_, err := tr.InByte(context.Background(), 10*time.Millisecond)
	if !errors.Is(err, xmodem.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestTransport_OutByte_WritesSingleByte(t *testing.T) {
	fp := &fakePort{}
	tr := NewTransport(fp, time.Millisecond)

	if err := tr.OutByte(context.Background(), 0x15); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fp.written) != 1 || fp.written[0] != 0x15 {
		t.Fatalf("unexpected written bytes: %v", fp.written)
	}
}

func TestTransport_DrainInput_ConsumesUntilQuiet(t *testing.T) {
	fp := &fakePort{}
	fp.push(1, 2, 3)
	tr := NewTransport(fp, time.Millisecond)

	tr.DrainInput(context.Background(), 10*time.Millisecond)
	fp.mu.Lock()
	remaining := len(fp.queue)
	fp.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected drain to consume all queued reads, %d remain", remaining)
	}
}

func TestTransport_InByte_FatalOnPathError(t *testing.T) {
	fp := &fatalPort{err: &os.PathError{Op: "read", Path: "/dev/ttyUSB0", Err: errors.New("no such device")}}
	tr := NewTransport(fp, time.Millisecond)

	_, err := tr.InByte(context.Background(), 50*time.Millisecond)
	if err == nil || errors.Is(err, xmodem.ErrTimeout) {
		t.Fatalf("expected fatal error to propagate, got %v", err)
	}
}

type fatalPort struct{ err error }

func (p *fatalPort) Read(buf []byte) (int, error)  { return 0, p.err }
func (p *fatalPort) Write(buf []byte) (int, error) { return len(buf), nil }
func (p *fatalPort) Close() error                  { return nil }
