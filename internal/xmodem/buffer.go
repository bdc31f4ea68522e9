package xmodem

import "io"

// TxSource is the transmit-side buffer supplier. Transmit calls NextBuffer
// whenever it has used up the previous slice and needs more payload; slices
// are split or gathered into packet-sized frames, so slice boundaries need
// not match packet boundaries. ok=false signals "no more data", which
// triggers the EOT handshake once the last partial packet is sent.
// The returned slice must remain valid until the next call.
type TxSource interface {
	NextBuffer() (buf []byte, ok bool)
}

// RxSink is the receive-side buffer supplier. Receive calls NextBuffer once
// at session start (filled=0) and again each time the current buffer has
// been filled and more payload remains to be delivered; filled is the
// number of bytes written into the previously returned buffer. ok=false
// aborts the session with ErrBufferFull. On a clean EOT, Receive makes one
// last call with the final buffer's filled count (when it is non-zero) so
// the sink sees every delivered byte; the result of that call is unused.
type RxSink interface {
	NextBuffer(filled int) (buf []byte, ok bool)
}

// SliceSource is a TxSource over a single in-memory buffer, handed out in
// chunks of at most chunkSize bytes.
type SliceSource struct {
	data      []byte
	chunkSize int
	off       int
}

// NewSliceSource builds a TxSource that yields data in chunkSize-byte
// pieces (chunkSize <= 0 yields the whole remaining slice in one call).
func NewSliceSource(data []byte, chunkSize int) *SliceSource {
	return &SliceSource{data: data, chunkSize: chunkSize}
}

func (s *SliceSource) NextBuffer() ([]byte, bool) {
	if s.off >= len(s.data) {
		return nil, false
	}
	end := len(s.data)
	if s.chunkSize > 0 && s.off+s.chunkSize < end {
		end = s.off + s.chunkSize
	}
	buf := s.data[s.off:end]
	s.off = end
	return buf, true
}

// SliceSink is an RxSink that appends delivered bytes into a growable
// in-memory buffer, handing out fresh chunkSize-byte buffers as needed.
type SliceSink struct {
	chunkSize int
	buf       []byte
	pending   []byte
}

// NewSliceSink builds an RxSink that accumulates everything delivered into
// an internal buffer, retrievable with Bytes() once the session completes.
func NewSliceSink(chunkSize int) *SliceSink {
	if chunkSize <= 0 {
		chunkSize = LongPacketSize
	}
	return &SliceSink{chunkSize: chunkSize}
}

func (s *SliceSink) NextBuffer(filled int) ([]byte, bool) {
	if filled > 0 {
		s.buf = append(s.buf, s.pending[:filled]...)
	}
	s.pending = make([]byte, s.chunkSize)
	return s.pending, true
}

// Bytes returns everything delivered so far.
func (s *SliceSink) Bytes() []byte { return s.buf }

// FixedSink wraps a single caller-owned buffer and reports BufferFull (via
// ok=false) once its capacity is exhausted — the classic fixed
// (dest, destsz) receive contract, implemented trivially on top of the
// supplier-callback form.
type FixedSink struct {
	dest []byte
	used int
}

// NewFixedSink builds an RxSink over a single fixed-capacity buffer.
func NewFixedSink(dest []byte) *FixedSink { return &FixedSink{dest: dest} }

func (s *FixedSink) NextBuffer(filled int) ([]byte, bool) {
	s.used += filled
	if s.used >= len(s.dest) {
		return nil, false
	}
	return s.dest[s.used:], true
}

// Used returns the number of bytes written into the fixed buffer so far.
func (s *FixedSink) Used() int { return s.used }

// ReaderSource is a TxSource over any io.Reader, read in chunkSize-byte
// pieces. Used by the direct CLI (a local file) and the gateway (a TCP
// control connection).
type ReaderSource struct {
	r         io.Reader
	chunkSize int
	buf       []byte
}

// NewReaderSource builds a TxSource that reads up to chunkSize bytes from r
// per call.
func NewReaderSource(r io.Reader, chunkSize int) *ReaderSource {
	if chunkSize <= 0 {
		chunkSize = LongPacketSize
	}
	return &ReaderSource{r: r, chunkSize: chunkSize, buf: make([]byte, chunkSize)}
}

func (s *ReaderSource) NextBuffer() ([]byte, bool) {
	n, err := io.ReadFull(s.r, s.buf)
	if n > 0 {
		return s.buf[:n], true
	}
	if err != nil {
		return nil, false
	}
	return nil, false
}

// WriterSink is an RxSink that streams delivered bytes straight to an
// io.Writer (a local file for the CLI, a TCP control connection for the
// gateway), flushing the previous buffer's filled prefix before handing out
// a fresh one.
type WriterSink struct {
	w         io.Writer
	chunkSize int
	pending   []byte
	writeErr  error
}

// NewWriterSink builds an RxSink that writes through to w in chunkSize-byte
// buffers.
func NewWriterSink(w io.Writer, chunkSize int) *WriterSink {
	if chunkSize <= 0 {
		chunkSize = LongPacketSize
	}
	return &WriterSink{w: w, chunkSize: chunkSize}
}

func (s *WriterSink) NextBuffer(filled int) ([]byte, bool) {
	if filled > 0 {
		if _, err := s.w.Write(s.pending[:filled]); err != nil {
			s.writeErr = err
			return nil, false
		}
	}
	s.pending = make([]byte, s.chunkSize)
	return s.pending, true
}

// Err returns the first write error encountered, if any.
func (s *WriterSink) Err() error { return s.writeErr }
