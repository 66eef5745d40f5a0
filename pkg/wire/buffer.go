package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	ErrShortBuffer     = errors.New("wire: short buffer")
	ErrVersionMismatch = errors.New("wire: header version mismatch")
	ErrPacketSize      = errors.New("wire: packet size out of range")
	ErrCorrupt         = errors.New("wire: corrupt packet")
)

// Writer appends fixed-width values into a preallocated buffer. Values are
// native-endian since both ends of a FIFO always share a host.
type Writer struct {
	buf []byte
	off int
}

// NewWriter returns a Writer filling buf from the start
func NewWriter(buf []byte) *Writer {
	return &Writer{buf: buf}
}

// PutInt32 writes v at the current offset
func (w *Writer) PutInt32(v int32) error {
	if len(w.buf)-w.off < 4 {
		return fmt.Errorf("%w: need 4 bytes at offset %d of %d", ErrShortBuffer, w.off, len(w.buf))
	}
	binary.NativeEndian.PutUint32(w.buf[w.off:], uint32(v))
	w.off += 4
	return nil
}

// PutBytes copies b at the current offset
func (w *Writer) PutBytes(b []byte) error {
	if len(w.buf)-w.off < len(b) {
		return fmt.Errorf("%w: need %d bytes at offset %d of %d", ErrShortBuffer, len(b), w.off, len(w.buf))
	}
	w.off += copy(w.buf[w.off:], b)
	return nil
}

// Len returns the number of bytes written so far
func (w *Writer) Len() int { return w.off }

// Bytes returns the written portion of the buffer
func (w *Writer) Bytes() []byte { return w.buf[:w.off] }

// Reader consumes fixed-width values from a byte slice
type Reader struct {
	buf []byte
	off int
}

// NewReader returns a Reader over buf
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Int32 reads the next native-endian int32
func (r *Reader) Int32() (int32, error) {
	if r.Remaining() < 4 {
		return 0, fmt.Errorf("%w: need 4 bytes at offset %d of %d", ErrShortBuffer, r.off, len(r.buf))
	}
	v := int32(binary.NativeEndian.Uint32(r.buf[r.off:]))
	r.off += 4
	return v, nil
}

// Next returns the next n bytes without copying
func (r *Reader) Next(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d of %d", ErrShortBuffer, n, r.off, len(r.buf))
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

// Remaining returns the unread byte count
func (r *Reader) Remaining() int { return len(r.buf) - r.off }
