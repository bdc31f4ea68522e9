package xmodem

import "testing"

// FuzzValidateFrame ensures arbitrary header-stripped frames never panic,
// regardless of how the sequence/complement pair or trailer is corrupted.
func FuzzValidateFrame(f *testing.F) {
	seed := [][]byte{
		buildFrame(1, []byte("hello"), ShortPacketSize, ModeChecksum)[1:],
		buildFrame(2, []byte("world"), ShortPacketSize, ModeCRC)[1:],
		buildFrame(3, nil, LongPacketSize, ModeCRC)[1:],
	}
	for _, s := range seed {
		f.Add(s, ShortPacketSize, 0)
		f.Add(s, LongPacketSize, 1)
	}
	f.Fuzz(func(t *testing.T, data []byte, size int, modeSel int) {
		if size <= 0 || size > LongPacketSize {
			return // bound the search space to plausible packet sizes
		}
		mode := ModeChecksum
		if modeSel%2 == 1 {
			mode = ModeCRC
		}
		_, _ = validateFrame(data, size, mode)
	})
}

// FuzzBuildThenValidate checks that any payload/seq combination that
// buildFrame can produce is accepted by validateFrame and that the
// sequence number it reports is the one the frame was built with.
func FuzzBuildThenValidate(f *testing.F) {
	f.Add(byte(1), []byte("payload one"), 0)
	f.Add(byte(255), []byte(""), 1)
	f.Add(byte(0), []byte("a longer payload that exceeds one short packet"), 0)

	f.Fuzz(func(t *testing.T, seq byte, payload []byte, modeSel int) {
		mode := ModeChecksum
		if modeSel%2 == 1 {
			mode = ModeCRC
		}
		if len(payload) > ShortPacketSize {
			payload = payload[:ShortPacketSize]
		}
		frame := buildFrame(seq, payload, ShortPacketSize, mode)
		gotSeq, ok := validateFrame(frame[1:], ShortPacketSize, mode)
		if !ok {
			t.Fatalf("validateFrame rejected a frame built by buildFrame (seq=%d mode=%v)", seq, mode)
		}
		if gotSeq != seq {
			t.Fatalf("validateFrame returned seq=%d, want %d", gotSeq, seq)
		}
	})
}
