package xmodem

import (
	"context"
	"time"
)

// scriptEntry is one canned response for a scriptTransport's InByte call.
type scriptEntry struct {
	b   byte
	err error
}

func byteEntry(b byte) scriptEntry { return scriptEntry{b: b} }
func timeoutEntry() scriptEntry    { return scriptEntry{err: ErrTimeout} }

// frameEntries expands a full built frame into one scriptEntry per byte, in
// wire order, so a scripted InByte queue can be assembled by concatenating
// whole frames instead of hand-listing individual bytes.
func frameEntries(frame []byte) []scriptEntry {
	entries := make([]scriptEntry, len(frame))
	for i, b := range frame {
		entries[i] = byteEntry(b)
	}
	return entries
}

// scriptTransport is a deterministic, non-blocking fake Transport driven by
// a fixed queue of InByte responses. Unlike the full-duplex chanTransport
// in loopback_test.go, it lets a test pin the exact bytes one side of the
// protocol observes — the only way to force a specific budget-exhaustion
// or cancellation branch on demand rather than hoping lossy randomness
// produces it. OutByte and DrainInput record everything the state machine
// under test emitted/discarded so assertions can inspect the wire-level
// reaction (e.g. the terminal three-CAN cancel). DrainInput discards queued
// entries up to and including the next timeout entry, which stands for the
// quiet window that ends a real drain.
type scriptTransport struct {
	in      []scriptEntry
	idx     int
	out     []byte
	drained int
}

func newScriptTransport(entries ...scriptEntry) *scriptTransport {
	return &scriptTransport{in: entries}
}

func (s *scriptTransport) InByte(ctx context.Context, timeout time.Duration) (byte, error) {
	if s.idx >= len(s.in) {
		return 0, ErrTimeout
	}
	e := s.in[s.idx]
	s.idx++
	return e.b, e.err
}

func (s *scriptTransport) OutByte(ctx context.Context, b byte) error {
	s.out = append(s.out, b)
	return nil
}

func (s *scriptTransport) DrainInput(ctx context.Context, window time.Duration) {
	for s.idx < len(s.in) {
		e := s.in[s.idx]
		s.idx++
		if e.err != nil {
			return
		}
		s.drained++
	}
}

// lastOut returns the last n bytes written via OutByte (fewer if short).
func (s *scriptTransport) lastOut(n int) []byte {
	if n > len(s.out) {
		n = len(s.out)
	}
	return s.out[len(s.out)-n:]
}

var threeCANs = []byte{can, can, can}
