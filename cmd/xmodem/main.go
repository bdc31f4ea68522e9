// Command xmodem is a direct point-to-point XMODEM client: it sends a local
// file out a serial port to a remote receiver, or receives one from a
// remote transmitter into a local file. It is the single-shot counterpart
// to cmd/xmodemd's always-on TCP gateway.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kstaniek/go-xmodem/internal/serialport"
	"github.com/kstaniek/go-xmodem/internal/xmodem"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("xmodem %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(2)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	port, err := serialport.Open(cfg.serialDev, cfg.baud, cfg.serialReadTO)
	if err != nil {
		l.Error("serial_open_failed", "device", cfg.serialDev, "error", err)
		os.Exit(1)
	}
	transport := serialport.NewTransport(port, 0)
	defer func() { _ = transport.Close() }()

	opts := []xmodem.Option{
		xmodem.WithMaxRetrans(cfg.maxRetrans),
		xmodem.WithPacketSize(cfg.packetSize),
		xmodem.WithLogger(l),
		xmodem.WithHooks(progressHooks(l)),
	}

	var n int64
	switch cfg.mode {
	case "send":
		n, err = runSend(ctx, transport, cfg, opts)
	case "recv":
		n, err = runRecv(ctx, transport, cfg, opts)
	}
	if err != nil {
		l.Error("transfer_failed", "mode", cfg.mode, "bytes", n, "error", err)
		if xe, ok := err.(*xmodem.Error); ok {
			os.Exit(-xe.Code())
		}
		os.Exit(1)
	}
	l.Info("transfer_complete", "mode", cfg.mode, "bytes", n)
	fmt.Printf("%d bytes transferred\n", n)
}

func runSend(ctx context.Context, t *serialport.Transport, cfg *appConfig, opts []xmodem.Option) (int64, error) {
	f, err := os.Open(cfg.file)
	if err != nil {
		return 0, fmt.Errorf("open source file: %w", err)
	}
	defer f.Close()
	src := xmodem.NewReaderSource(f, cfg.packetSize)
	return xmodem.Transmit(ctx, t, src, opts...)
}

func runRecv(ctx context.Context, t *serialport.Transport, cfg *appConfig, opts []xmodem.Option) (int64, error) {
	f, err := os.Create(cfg.file)
	if err != nil {
		return 0, fmt.Errorf("create destination file: %w", err)
	}
	defer f.Close()
	sink := xmodem.NewWriterSink(f, xmodem.LongPacketSize)
	n, err := xmodem.Receive(ctx, t, sink, opts...)
	if werr := sink.Err(); werr != nil && err == nil {
		err = fmt.Errorf("write destination file: %w", werr)
	}
	return n, err
}

// progressHooks logs sync attempts, mode resolution, and accumulated bytes
// moved at debug level, mirroring the teacher's verbose per-branch tracing.
func progressHooks(l interface {
	Debug(msg string, args ...any)
}) xmodem.Hooks {
	var moved int
	return xmodem.Hooks{
		OnSyncAttempt: func() { l.Debug("sync_attempt") },
		OnModeResolved: func(m xmodem.Mode) {
			l.Debug("mode_resolved", "mode", m.String())
		},
		OnBytesMoved: func(n int) {
			moved += n
			l.Debug("bytes_moved", "total", moved)
		},
		OnRetransmit: func() { l.Debug("retransmit") },
	}
}
