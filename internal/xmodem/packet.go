package xmodem

// A packet on the wire is: header | seq | ^seq | payload[size] | trailer.
// header and size are a pair (SOH<->128, STX<->1024); trailer is one byte
// (checksum8) or two bytes big-endian (CRC-16), chosen by mode.

// buildFrame writes a full XMODEM frame for seq over payload, padding with
// sub (0x1A) if payload is shorter than size. It does not look at the
// peer's mode preference per-packet — size and mode are the transmitter's
// own build-time/option choices.
func buildFrame(seq byte, payload []byte, size int, mode Mode) []byte {
	frame := make([]byte, 0, 3+size+trailerLen(mode))
	frame = append(frame, headerByte(size), seq, ^seq)

	body := make([]byte, size)
	n := copy(body, payload)
	for i := n; i < size; i++ {
		body[i] = sub
	}
	frame = append(frame, body...)

	switch mode {
	case ModeCRC:
		crc := CRC16CCITT(body)
		frame = append(frame, byte(crc>>8), byte(crc))
	default:
		frame = append(frame, Checksum8(body))
	}
	return frame
}

// validateFrame checks a frame's sequence pair and integrity trailer.
// frame must already have its header byte stripped: frame[0]=seq,
// frame[1]=^seq, frame[2:2+size]=payload, remainder=trailer.
func validateFrame(frame []byte, size int, mode Mode) (seq byte, ok bool) {
	if len(frame) != 2+size+trailerLen(mode) {
		return 0, false
	}
	seq = frame[0]
	if frame[1] != ^seq {
		return 0, false
	}
	body := frame[2 : 2+size]
	trailer := frame[2+size:]
	switch mode {
	case ModeCRC:
		crc := CRC16CCITT(body)
		if byte(crc>>8) != trailer[0] || byte(crc) != trailer[1] {
			return 0, false
		}
	default:
		if Checksum8(body) != trailer[0] {
			return 0, false
		}
	}
	return seq, true
}

// payloadOf extracts the payload region from a validated (header-stripped)
// frame.
func payloadOf(frame []byte, size int) []byte { return frame[2 : 2+size] }
