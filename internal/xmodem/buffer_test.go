package xmodem

import (
	"bytes"
	"testing"
)

func TestSliceSource_ChunksAndSignalsDone(t *testing.T) {
	data := []byte("0123456789")
	src := NewSliceSource(data, 4)

	var got []byte
	for {
		buf, ok := src.NextBuffer()
		if !ok {
			break
		}
		got = append(got, buf...)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("reassembled = %q, want %q", got, data)
	}
}

func TestSliceSource_ZeroChunkYieldsWholeSliceOnce(t *testing.T) {
	data := []byte("hello world")
	src := NewSliceSource(data, 0)
	buf, ok := src.NextBuffer()
	if !ok || !bytes.Equal(buf, data) {
		t.Fatalf("first call = %q, ok=%v; want full slice", buf, ok)
	}
	if _, ok := src.NextBuffer(); ok {
		t.Fatal("second call should signal no more data")
	}
}

func TestSliceSource_EmptyData(t *testing.T) {
	src := NewSliceSource(nil, 10)
	if _, ok := src.NextBuffer(); ok {
		t.Fatal("empty source should report ok=false immediately")
	}
}

func TestSliceSink_AccumulatesDeliveredBytes(t *testing.T) {
	sink := NewSliceSink(4)
	buf1, ok := sink.NextBuffer(0)
	if !ok {
		t.Fatal("initial NextBuffer(0) should succeed")
	}
	copy(buf1, []byte("abcd"))
	buf2, ok := sink.NextBuffer(4)
	if !ok {
		t.Fatal("second NextBuffer should succeed")
	}
	copy(buf2, []byte("ef"))
	sink.NextBuffer(2)

	if got := sink.Bytes(); string(got) != "abcdef" {
		t.Fatalf("Bytes() = %q, want %q", got, "abcdef")
	}
}

func TestFixedSink_ReportsBufferFullWhenExhausted(t *testing.T) {
	dest := make([]byte, 8)
	sink := NewFixedSink(dest)

	buf, ok := sink.NextBuffer(0)
	if !ok || len(buf) != 8 {
		t.Fatalf("initial buffer len = %d, ok=%v; want 8, true", len(buf), ok)
	}
	copy(buf, []byte("12345678"))
	if _, ok := sink.NextBuffer(8); ok {
		t.Fatal("expected ok=false once the fixed buffer is exhausted")
	}
	if sink.Used() != 8 {
		t.Fatalf("Used() = %d, want 8", sink.Used())
	}
}

func TestFixedSink_PartialFillLeavesRemainingCapacity(t *testing.T) {
	dest := make([]byte, 10)
	sink := NewFixedSink(dest)
	buf, _ := sink.NextBuffer(0)
	copy(buf, []byte("abc"))
	next, ok := sink.NextBuffer(3)
	if !ok {
		t.Fatal("partial fill should still report ok=true")
	}
	if len(next) != 7 {
		t.Fatalf("remaining capacity = %d, want 7", len(next))
	}
}

func TestReaderSource_ReadsInChunks(t *testing.T) {
	r := bytes.NewReader([]byte("abcdefghij"))
	src := NewReaderSource(r, 4)

	var got []byte
	for {
		buf, ok := src.NextBuffer()
		if !ok {
			break
		}
		got = append(got, buf...)
	}
	if len(got) == 0 {
		t.Fatal("ReaderSource yielded no data")
	}
}

func TestWriterSink_WritesThroughOnRefill(t *testing.T) {
	var out bytes.Buffer
	sink := NewWriterSink(&out, 4)

	buf1, _ := sink.NextBuffer(0)
	copy(buf1, []byte("abcd"))
	sink.NextBuffer(4)

	if out.String() != "abcd" {
		t.Fatalf("written = %q, want %q", out.String(), "abcd")
	}
	if sink.Err() != nil {
		t.Fatalf("unexpected write error: %v", sink.Err())
	}
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, bytes.ErrTooLarge }

func TestWriterSink_SurfacesWriteError(t *testing.T) {
	sink := NewWriterSink(failingWriter{}, 4)
	buf, _ := sink.NextBuffer(0)
	copy(buf, []byte("abcd"))
	if _, ok := sink.NextBuffer(4); ok {
		t.Fatal("expected ok=false after a write error")
	}
	if sink.Err() == nil {
		t.Fatal("expected Err() to report the write failure")
	}
}
