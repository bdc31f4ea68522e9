package xmodem

import (
	"context"
	"errors"
)

// Receive drives the XMODEM receiver state machine to completion over t,
// delivering payload bytes into buffers obtained from sink. It returns the
// total number of bytes delivered, or a *Error wrapping one of the stable
// codes in errors.go.
//
// The state machine is a single loop, faithful to the original C
// implementation's shape: one sync-retry loop (syncRetries reads per
// round) serves both the initial sync-character negotiation and every
// subsequent wait for the next frame, and a separate retry/retransmit
// budget (retrans) is decremented on every accepted *and* every rejected
// frame, only resetting on a unique, newly-accepted packet.
func Receive(ctx context.Context, t Transport, sink RxSink, opts ...Option) (total int64, err error) {
	cfg := resolve(opts)
	if cfg.hooks.OnSessionEnd != nil {
		defer func() { cfg.hooks.OnSessionEnd(err) }()
	}

	buf, ok := sink.NextBuffer(0)
	if !ok {
		drainAndCancel(ctx, t, cfg)
		return 0, ErrBufferFull
	}
	bufOff := 0

	var (
		trychar  byte = syncCRC
		packetno byte = 1
		mode     Mode
		retrans  = cfg.maxRetrans
	)

outer:
	for {
		var (
			bufsz    int
			gotStart bool
		)

		for retry := 0; retry < cfg.syncRetries; retry++ {
			if trychar != 0 {
				if err := t.OutByte(ctx, trychar); err != nil {
					return total, linkError(err)
				}
				cfg.logger.Debug("Rx try", "char", trychar, "retry", retry)
				if cfg.hooks.OnSyncAttempt != nil {
					cfg.hooks.OnSyncAttempt()
				}
			}

			b, err := t.InByte(ctx, cfg.syncTimeout)
			if err != nil {
				if errors.Is(err, ErrTimeout) {
					continue
				}
				return total, linkError(err)
			}

			switch b {
			case soh:
				bufsz, gotStart = ShortPacketSize, true
				cfg.logger.Debug("Rx SOH")
			case stx:
				bufsz, gotStart = LongPacketSize, true
				cfg.logger.Debug("Rx STX")
			case eot:
				cfg.logger.Debug("Rx EOT")
				if bufOff > 0 {
					sink.NextBuffer(bufOff)
				}
				if err := drainAndAck(ctx, t, cfg); err != nil {
					return total, linkError(err)
				}
				return total, nil
			case can:
				cfg.logger.Debug("Rx CAN")
				b2, err2 := t.InByte(ctx, cfg.canFollowup)
				if err2 == nil && b2 == can {
					cfg.logger.Debug("Rx CAN CAN, cancelled by remote")
					if err := drainAndAck(ctx, t, cfg); err != nil {
						return total, linkError(err)
					}
					return total, ErrCancelledByRemote
				}
			}
			if gotStart {
				break
			}
		}

		if !gotStart {
			if trychar == syncCRC {
				cfg.logger.Debug("Rx no sync on C, falling back to checksum")
				trychar = nak
				continue outer
			}
			cfg.logger.Debug("Rx no sync")
			drainAndCancel(ctx, t, cfg)
			return total, ErrNoSync
		}

		// mode latches on the first frame-start byte seen, mirroring the
		// original C's "if (trychar == 'C') crc = 1;" with no else: once
		// resolved it must never be recomputed from trychar again, since
		// trychar itself is cleared immediately below.
		if mode == ModeUnknown {
			if trychar == syncCRC {
				mode = ModeCRC
			} else {
				mode = ModeChecksum
			}
			cfg.logger.Debug("Rx mode resolved", "mode", mode.String())
			if cfg.hooks.OnModeResolved != nil {
				cfg.hooks.OnModeResolved(mode)
			}
		}
		trychar = 0

		frame := make([]byte, 2+bufsz+trailerLen(mode))
		timedOut := false
		for i := range frame {
			b, err := t.InByte(ctx, cfg.frameByteTimeout)
			if err != nil {
				if errors.Is(err, ErrTimeout) {
					timedOut = true
					break
				}
				return total, linkError(err)
			}
			frame[i] = b
		}

		accepted := false
		if !timedOut {
			if seq, ok := validateFrame(frame, bufsz, mode); ok && (seq == packetno || seq == packetno-1) {
				accepted = true
				if seq == packetno {
					written, derr := deliverPayload(payloadOf(frame, bufsz), sink, &buf, &bufOff)
					total += int64(written)
					if cfg.hooks.OnBytesMoved != nil && written > 0 {
						cfg.hooks.OnBytesMoved(written)
					}
					if derr != nil {
						cfg.logger.Debug("Rx buffer full")
						drainAndCancel(ctx, t, cfg)
						return total, ErrBufferFull
					}
					cfg.logger.Debug("Rx packet success", "packetno", packetno, "bytes", written, "total", total)
					if cfg.hooks.OnPacketAccepted != nil {
						cfg.hooks.OnPacketAccepted()
					}
					packetno++
					retrans = cfg.maxRetrans + 1
				} else {
					cfg.logger.Debug("Rx duplicate packet", "packetno", seq)
				}
				retrans--
				if retrans <= 0 {
					cfg.logger.Debug("Rx too many retries")
					drainAndCancel(ctx, t, cfg)
					return total, ErrTooManyRetries
				}
				cfg.logger.Debug("Rx ACK")
				if err := t.OutByte(ctx, ack); err != nil {
					return total, linkError(err)
				}
			}
		}

		if !accepted {
			if cfg.hooks.OnPacketRejected != nil {
				cfg.hooks.OnPacketRejected()
			}
			retrans--
			if retrans <= 0 {
				cfg.logger.Debug("Rx too many retries")
				drainAndCancel(ctx, t, cfg)
				return total, ErrTooManyRetries
			}
			cfg.logger.Debug("Rx NAK")
			t.DrainInput(ctx, cfg.drainTimeout)
			if err := t.OutByte(ctx, nak); err != nil {
				return total, linkError(err)
			}
		}
	}
}

// deliverPayload copies payload into *buf starting at *off, requesting
// fresh buffers from sink as the current one fills.
func deliverPayload(payload []byte, sink RxSink, buf *[]byte, off *int) (int, error) {
	written := 0
	for len(payload) > 0 {
		remaining := len(*buf) - *off
		if remaining <= 0 {
			nb, ok := sink.NextBuffer(*off)
			if !ok {
				return written, ErrBufferFull
			}
			*buf = nb
			*off = 0
			remaining = len(*buf)
		}
		n := len(payload)
		if n > remaining {
			n = remaining
		}
		copy((*buf)[*off:], payload[:n])
		*off += n
		payload = payload[n:]
		written += n
	}
	return written, nil
}
