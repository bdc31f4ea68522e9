// Package gateway implements the TCP control front-end that lets a remote
// client drive a local serial-attached XMODEM session: send a file to the
// serial peer, receive one from it, or watch transfer progress events.
// It follows the familiar option-constructor, accept-loop, per-connection
// goroutine shape, broadcasting progress through a generic event hub and
// routing every transfer through a single shared serial Transport, since
// XMODEM is inherently one point-to-point session at a time.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kstaniek/go-xmodem/internal/hub"
	"github.com/kstaniek/go-xmodem/internal/logging"
	"github.com/kstaniek/go-xmodem/internal/metrics"
	"github.com/kstaniek/go-xmodem/internal/xmodem"
)

// Control bytes read immediately after the handshake, selecting what the
// connection wants to do.
const (
	ctrlSend    = 'S'
	ctrlReceive = 'R'
	ctrlWatch   = 'W'
)

const (
	defaultHandshakeTimeout = 3 * time.Second
	defaultChunkSize        = xmodem.LongPacketSize
)

// Server owns the TCP listener, the shared serial Transport, and the
// watcher hub.
type Server struct {
	mu               sync.RWMutex
	addr             string
	logger           *slog.Logger
	handshakeTimeout time.Duration
	transport        xmodem.Transport
	xmodemOpts       []xmodem.Option
	hub              *hub.Hub[Event]

	transferMu   sync.Mutex
	transferBusy bool

	eventSeq atomic.Uint64

	readyOnce sync.Once
	readyCh   chan struct{}
	errCh     chan error
	lastErrMu sync.Mutex
	lastErr   error
	listener  net.Listener
	wg        sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithListenAddr sets the TCP listen address (default ":0").
func WithListenAddr(a string) Option { return func(s *Server) { s.addr = a } }

// WithLogger sets the server's logger (default logging.L()).
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHandshakeTimeout sets the control-connection hello deadline.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.handshakeTimeout = d
		}
	}
}

// WithSerial sets the shared Transport every send/receive session drives.
func WithSerial(t xmodem.Transport) Option { return func(s *Server) { s.transport = t } }

// WithHub sets the watcher event hub.
func WithHub(h *hub.Hub[Event]) Option { return func(s *Server) { s.hub = h } }

// WithXModemOptions passes through tunables (max retrans, packet size,
// timeouts) to every Receive/Transmit call the gateway drives.
func WithXModemOptions(opts ...xmodem.Option) Option {
	return func(s *Server) { s.xmodemOpts = append(s.xmodemOpts, opts...) }
}

// NewServer builds a Server with opts applied over sensible defaults.
func NewServer(opts ...Option) *Server {
	s := &Server{
		handshakeTimeout: defaultHandshakeTimeout,
		readyCh:          make(chan struct{}),
		errCh:            make(chan error, 1),
		logger:           logging.L(),
		hub:              hub.New[Event](),
	}
	for _, o := range opts {
		o(s)
	}
	if s.addr == "" {
		s.addr = ":0"
	}
	return s
}

func (s *Server) Addr() string           { s.mu.RLock(); defer s.mu.RUnlock(); return s.addr }
func (s *Server) setAddr(a string)       { s.mu.Lock(); s.addr = a; s.mu.Unlock() }
func (s *Server) SetListenAddr(a string) { s.setAddr(a) }
func (s *Server) Ready() <-chan struct{} { return s.readyCh }
func (s *Server) Errors() <-chan error   { return s.errCh }
func (s *Server) Hub() *hub.Hub[Event]   { return s.hub }

func (s *Server) setError(err error) {
	if err == nil {
		return
	}
	s.lastErrMu.Lock()
	s.lastErr = err
	s.lastErrMu.Unlock()
	select {
	case s.errCh <- err:
	default:
	}
}

func (s *Server) LastError() error { s.lastErrMu.Lock(); defer s.lastErrMu.Unlock(); return s.lastErr }

// Serve accepts control connections until ctx is cancelled or a fatal
// listener error occurs.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	addr := s.addr
	if addr == "" {
		addr = ":0"
	}
	s.mu.Unlock()
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		wrap := fmt.Errorf("%w: %v", ErrListen, err)
		metrics.IncError(mapErrToMetric(wrap))
		s.setError(wrap)
		return wrap
	}
	s.setAddr(ln.Addr().String())
	s.listener = ln
	s.readyOnce.Do(func() { close(s.readyCh) })
	s.logger.Info("tcp_listen", "addr", s.Addr())
	go func() { <-ctx.Done(); _ = ln.Close() }()
	for {
		if err := s.acceptOnce(ctx, ln); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (s *Server) acceptOnce(ctx context.Context, ln net.Listener) error {
	conn, err := ln.Accept()
	if err != nil {
		select {
		case <-ctx.Done():
			return context.Canceled
		default:
		}
		if _, ok := err.(net.Error); ok {
			time.Sleep(200 * time.Millisecond)
			return nil
		}
		wrap := fmt.Errorf("%w: %v", ErrAccept, err)
		metrics.IncError(mapErrToMetric(wrap))
		s.setError(wrap)
		return wrap
	}
	connLogger := s.logger.With("remote", conn.RemoteAddr().String())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.handleConn(ctx, conn, connLogger)
	}()
	return nil
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn, logger *slog.Logger) {
	defer func() { _ = conn.Close() }()
	if err := handshake(ctx, conn, s.handshakeTimeout); err != nil {
		wrap := fmt.Errorf("%w: %v", ErrHandshake, err)
		metrics.IncError(mapErrToMetric(wrap))
		logger.Warn("handshake_failed", "error", wrap)
		return
	}
	ctrl := make([]byte, 1)
	if _, err := io.ReadFull(conn, ctrl); err != nil {
		logger.Warn("control_byte_read_failed", "error", err)
		return
	}

	switch ctrl[0] {
	case ctrlSend:
		s.handleTransfer(ctx, conn, logger, directionSend)
	case ctrlReceive:
		s.handleTransfer(ctx, conn, logger, directionReceive)
	case ctrlWatch:
		s.handleWatch(ctx, conn, logger)
	default:
		logger.Warn("unknown_control_byte", "byte", ctrl[0])
	}
}

type direction int

const (
	directionSend direction = iota
	directionReceive
)

func (d direction) String() string {
	if d == directionReceive {
		return "receive"
	}
	return "send"
}

// handleTransfer drives one xmodem.Transmit (directionSend: the client's
// bytes go out over serial) or xmodem.Receive (directionReceive: serial
// bytes stream back to the client) session, enforcing that only one
// transfer can hold the shared serial line at a time.
func (s *Server) handleTransfer(ctx context.Context, conn net.Conn, logger *slog.Logger, dir direction) {
	if s.transport == nil {
		logger.Error("no_serial_transport_configured")
		return
	}
	s.transferMu.Lock()
	if s.transferBusy {
		s.transferMu.Unlock()
		metrics.IncError(mapErrToMetric(ErrBusy))
		logger.Warn("transfer_rejected_busy")
		_, _ = conn.Write([]byte{0x00})
		return
	}
	s.transferBusy = true
	s.transferMu.Unlock()
	defer func() {
		s.transferMu.Lock()
		s.transferBusy = false
		s.transferMu.Unlock()
	}()

	if _, err := conn.Write([]byte{0x01}); err != nil {
		logger.Warn("ack_write_failed", "error", err)
		return
	}

	hooks := s.sessionHooks(logger, dir)
	opts := append(append([]xmodem.Option{}, s.xmodemOpts...), xmodem.WithHooks(hooks))

	var (
		n   int64
		err error
	)
	switch dir {
	case directionSend:
		src := xmodem.NewReaderSource(conn, defaultChunkSize)
		n, err = xmodem.Transmit(ctx, s.transport, src, opts...)
	case directionReceive:
		sink := xmodem.NewWriterSink(conn, defaultChunkSize)
		n, err = xmodem.Receive(ctx, s.transport, sink, opts...)
	}

	metrics.IncSession(resultLabel(err))
	if err != nil {
		wrap := fmt.Errorf("%w: %v", ErrConnWrite, err)
		metrics.IncError(mapErrToMetric(wrap))
		logger.Warn("transfer_failed", "direction", dir, "bytes", n, "error", err)
		s.broadcast(Event{Stage: StageFailed, BytesMoved: n, Err: err.Error()})
		return
	}
	logger.Info("transfer_complete", "direction", dir, "bytes", n)
	s.broadcast(Event{Stage: StageDone, BytesMoved: n})
}

// sessionHooks builds xmodem.Hooks that broadcast progress events to
// watchers and increment metrics, keeping the protocol core itself free of
// any gateway or Prometheus dependency.
func (s *Server) sessionHooks(logger *slog.Logger, dir direction) xmodem.Hooks {
	var moved int64
	var mode string
	addBytes := metrics.AddBytesSent
	if dir == directionReceive {
		addBytes = metrics.AddBytesReceived
	}
	return xmodem.Hooks{
		OnPacketSent: func() {
			metrics.IncPacketSent()
		},
		OnPacketAccepted: func() {
			metrics.IncPacketAccepted()
		},
		OnPacketRejected: func() {
			metrics.IncPacketRejected()
		},
		OnRetransmit: func() {
			metrics.IncRetransmit()
		},
		OnSyncAttempt: func() {
			metrics.IncSyncAttempt()
			s.broadcast(Event{Stage: StageSyncing})
		},
		OnBytesMoved: func(n int) {
			moved += int64(n)
			addBytes(n)
			s.broadcast(Event{Stage: StageTransfer, BytesMoved: moved, Mode: mode})
		},
		OnModeResolved: func(m xmodem.Mode) {
			mode = m.String()
			switch m {
			case xmodem.ModeCRC:
				metrics.SetActiveMode(2)
			case xmodem.ModeChecksum:
				metrics.SetActiveMode(1)
			default:
				metrics.SetActiveMode(0)
			}
		},
		OnSessionEnd: func(err error) {
			logger.Debug("session_end", "error", err)
		},
	}
}

func (s *Server) broadcast(ev Event) {
	ev.Seq = s.eventSeq.Add(1)
	s.hub.Broadcast(ev)
}

// handleWatch registers conn as an unlimited progress-event observer,
// streaming newline-delimited JSON Event records until the connection or
// context closes.
func (s *Server) handleWatch(ctx context.Context, conn net.Conn, logger *slog.Logger) {
	cl := &hub.Client[Event]{Out: make(chan Event, 64), Closed: make(chan struct{})}
	s.hub.Add(cl)
	defer s.hub.Remove(cl)
	logger.Info("watch_connected")
	defer logger.Info("watch_disconnected")

	enc := json.NewEncoder(conn)
	for {
		select {
		case ev, ok := <-cl.Out:
			if !ok {
				return
			}
			if err := enc.Encode(ev); err != nil {
				return
			}
		case <-cl.Closed:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Shutdown closes the listener and waits for in-flight connections to
// finish, bounded by ctx.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: shutdown timeout: %v", ErrContext, ctx.Err())
	case <-done:
		s.logger.Info("shutdown_complete")
		return nil
	}
}
