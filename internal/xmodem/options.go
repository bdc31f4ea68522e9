package xmodem

import (
	"log/slog"
	"time"
)

// config holds the resolved tunables for one Receive/Transmit call. Built
// from defaults plus Option overrides.
type config struct {
	maxRetrans  int
	packetSize  int
	syncRetries int
	eotRetries  int

	syncTimeout      time.Duration
	replyTimeout     time.Duration
	frameByteTimeout time.Duration
	canFollowup      time.Duration
	drainTimeout     time.Duration

	logger *slog.Logger
	hooks  Hooks
}

// Hooks lets callers observe protocol events without threading metrics
// through every call site: small, optional, best-effort callbacks.
type Hooks struct {
	OnPacketSent     func()
	OnPacketAccepted func()
	OnPacketRejected func()
	OnRetransmit     func()
	OnSyncAttempt    func()
	OnBytesMoved     func(n int)
	OnModeResolved   func(Mode)
	OnSessionEnd     func(err error)
}

func defaultConfig() *config {
	return &config{
		maxRetrans:       DefaultMaxRetrans,
		packetSize:       ShortPacketSize,
		syncRetries:      DefaultSyncRetries,
		eotRetries:       DefaultEOTRetries,
		syncTimeout:      defaultSyncTimeout,
		replyTimeout:     defaultReplyTimeout,
		frameByteTimeout: defaultFrameByteTimeout,
		canFollowup:      defaultCANFollowup,
		drainTimeout:     defaultDrainTimeout,
		logger:           slog.Default(),
	}
}

// Option configures a Receive or Transmit call.
type Option func(*config)

// WithMaxRetrans sets the retransmit/retry budget (default 25).
func WithMaxRetrans(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxRetrans = n
		}
	}
}

// WithPacketSize sets the transmitter's packet size, 128 or 1024 (default
// 128). The receiver always accepts both regardless of this option.
func WithPacketSize(n int) Option {
	return func(c *config) {
		if n == ShortPacketSize || n == LongPacketSize {
			c.packetSize = n
		}
	}
}

// WithSyncRetries sets how many times the sync character is retried per
// round before switching mode (receiver) or giving up (transmitter has one
// round); default 16.
func WithSyncRetries(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.syncRetries = n
		}
	}
}

// WithEOTRetries sets how many times the transmitter resends EOT while
// waiting for ACK; default 10.
func WithEOTRetries(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.eotRetries = n
		}
	}
}

// WithTimeouts overrides the five protocol timeouts (defaults: 2s sync, 2s
// reply, 1s frame-byte, 1s CAN-followup, 1.5s drain). Pass 0 to leave a
// given value at its default.
func WithTimeouts(sync, reply, frameByte, canFollowup, drain time.Duration) Option {
	return func(c *config) {
		if sync > 0 {
			c.syncTimeout = sync
		}
		if reply > 0 {
			c.replyTimeout = reply
		}
		if frameByte > 0 {
			c.frameByteTimeout = frameByte
		}
		if canFollowup > 0 {
			c.canFollowup = canFollowup
		}
		if drain > 0 {
			c.drainTimeout = drain
		}
	}
}

// WithLogger sets the logger used for protocol tracing (default
// slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithHooks installs observer callbacks (metrics, progress events).
func WithHooks(h Hooks) Option {
	return func(c *config) { c.hooks = h }
}

func resolve(opts []Option) *config {
	c := defaultConfig()
	for _, o := range opts {
		o(c)
	}
	return c
}
