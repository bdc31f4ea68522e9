package xmodem

import (
	"context"
	"errors"
)

// Transmit drives the XMODEM transmitter state machine to completion over
// t, framing payload obtained from src. It returns the total number of
// bytes sent — always a multiple of the packet size, since a short final
// frame is padded — or a *Error wrapping one of the stable codes in
// errors.go.
func Transmit(ctx context.Context, t Transport, src TxSource, opts ...Option) (totalSent int64, err error) {
	cfg := resolve(opts)
	if cfg.hooks.OnSessionEnd != nil {
		defer func() { cfg.hooks.OnSessionEnd(err) }()
	}

	mode, err := awaitSync(ctx, t, cfg)
	if err != nil {
		return 0, err
	}
	cfg.logger.Debug("Tx mode resolved", "mode", mode.String())
	if cfg.hooks.OnModeResolved != nil {
		cfg.hooks.OnModeResolved(mode)
	}

	var nextSeq byte = 1
	var pending []byte
	more := true

	for {
		payload := make([]byte, 0, cfg.packetSize)
		for more && len(payload) < cfg.packetSize {
			if len(pending) == 0 {
				pending, more = src.NextBuffer()
				continue
			}
			n := min(cfg.packetSize-len(payload), len(pending))
			payload, pending = append(payload, pending[:n]...), pending[n:]
		}
		if len(payload) == 0 {
			n, eerr := eotHandshake(ctx, t, cfg, totalSent)
			return n, eerr
		}

		frame := buildFrame(nextSeq, payload, cfg.packetSize, mode)
		acked := false

		for retry := 0; retry < cfg.maxRetrans; retry++ {
			if retry > 0 {
				cfg.logger.Debug("Tx retransmit", "packetno", nextSeq, "retry", retry)
				if cfg.hooks.OnRetransmit != nil {
					cfg.hooks.OnRetransmit()
				}
			}
			for _, b := range frame {
				if err := t.OutByte(ctx, b); err != nil {
					return totalSent, linkError(err)
				}
			}
			cfg.logger.Debug("Tx transmit", "packetno", nextSeq)
			if cfg.hooks.OnPacketSent != nil {
				cfg.hooks.OnPacketSent()
			}

			b, err := t.InByte(ctx, cfg.replyTimeout)
			if err != nil {
				if errors.Is(err, ErrTimeout) {
					continue
				}
				return totalSent, linkError(err)
			}

			switch b {
			case ack:
				cfg.logger.Debug("Tx received ACK", "packetno", nextSeq)
				acked = true
			case can:
				cfg.logger.Debug("Tx received CAN")
				b2, err2 := t.InByte(ctx, cfg.canFollowup)
				if err2 == nil && b2 == can {
					cfg.logger.Debug("Tx received CAN CAN, cancelled by remote")
					if err := t.OutByte(ctx, ack); err != nil {
						return totalSent, linkError(err)
					}
					t.DrainInput(ctx, cfg.drainTimeout)
					return totalSent, ErrCancelledByRemote
				}
			default:
				cfg.logger.Debug("Tx received NAK or unknown byte", "byte", b)
			}
			if acked {
				break
			}
		}

		if !acked {
			cfg.logger.Debug("Tx transmit error", "packetno", nextSeq)
			drainAndCancel(ctx, t, cfg)
			return totalSent, ErrTransmitError
		}

		nextSeq++
		totalSent += int64(cfg.packetSize)
		if cfg.hooks.OnBytesMoved != nil {
			cfg.hooks.OnBytesMoved(cfg.packetSize)
		}
	}
}

// awaitSync waits for the receiver's sync character, fixing the session
// mode for the rest of the transfer.
func awaitSync(ctx context.Context, t Transport, cfg *config) (Mode, error) {
	for retry := 0; retry < cfg.syncRetries; retry++ {
		b, err := t.InByte(ctx, cfg.syncTimeout)
		if err != nil {
			if errors.Is(err, ErrTimeout) {
				continue
			}
			return ModeUnknown, linkError(err)
		}
		switch b {
		case syncCRC:
			cfg.logger.Debug("Tx received C")
			return ModeCRC, nil
		case nak:
			cfg.logger.Debug("Tx received NAK")
			return ModeChecksum, nil
		case can:
			cfg.logger.Debug("Tx received CAN")
			b2, err2 := t.InByte(ctx, cfg.canFollowup)
			if err2 == nil && b2 == can {
				cfg.logger.Debug("Tx received CAN CAN, cancelled by remote")
				if err := t.OutByte(ctx, ack); err != nil {
					return ModeUnknown, linkError(err)
				}
				t.DrainInput(ctx, cfg.drainTimeout)
				return ModeUnknown, ErrCancelledByRemote
			}
		}
	}
	cfg.logger.Debug("Tx no sync")
	drainAndCancel(ctx, t, cfg)
	return ModeUnknown, ErrNoSync
}

// eotHandshake emits EOT up to cfg.eotRetries times waiting for an ACK.
func eotHandshake(ctx context.Context, t Transport, cfg *config, totalSent int64) (int64, error) {
	acked := false
	for i := 0; i < cfg.eotRetries; i++ {
		cfg.logger.Debug("Tx EOT", "attempt", i)
		if err := t.OutByte(ctx, eot); err != nil {
			return totalSent, linkError(err)
		}
		b, err := t.InByte(ctx, cfg.replyTimeout)
		if err == nil && b == ack {
			acked = true
			break
		}
	}
	t.DrainInput(ctx, cfg.drainTimeout)
	if acked {
		cfg.logger.Debug("Tx EOT acked", "total", totalSent)
		return totalSent, nil
	}
	cfg.logger.Debug("Tx EOT unexpected response")
	return totalSent, ErrUnexpectedResponse
}
