// Package wire defines the packet format written to FIFOs: a fixed-size
// header followed by at most PacketCapacity payload bytes.
package wire

import (
	"fmt"

	"github.com/baaaht/fifoipc/pkg/types"
)

const (
	// HeaderVersion must be bumped whenever the header layout changes. It is
	// also part of every FIFO path, so peers with different layouts never
	// share a pipe.
	HeaderVersion = 1

	// HeaderSize is the encoded size of Header: six 32-bit fields.
	HeaderSize = 6 * 4

	// PacketCapacity is the maximum payload carried by one packet.
	PacketCapacity = 2000

	// MaxPacketSize is the largest single write to a FIFO. It must stay at
	// or below PIPE_BUF so writes from concurrent senders never interleave.
	MaxPacketSize = HeaderSize + PacketCapacity
)

// Header prefixes every packet
type Header struct {
	Version    int32
	Source     types.ProcessID
	Type       types.MessageType
	Sequence   int32
	LastPacket bool
	Size       int32
}

// NewHeader returns a header stamped with the current HeaderVersion
func NewHeader(src types.ProcessID, msgType types.MessageType, seq int32, last bool, size int) Header {
	return Header{
		Version:    HeaderVersion,
		Source:     src,
		Type:       msgType,
		Sequence:   seq,
		LastPacket: last,
		Size:       int32(size),
	}
}

// Validate checks the header version and the payload size bound
func (h Header) Validate() error {
	if h.Version != HeaderVersion {
		return fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, h.Version, HeaderVersion)
	}
	if h.Size < 0 || h.Size > PacketCapacity {
		return fmt.Errorf("%w: %d bytes", ErrPacketSize, h.Size)
	}
	if h.Sequence < 0 {
		return fmt.Errorf("%w: negative sequence %d", ErrCorrupt, h.Sequence)
	}
	return nil
}

// String returns a compact representation for logs
func (h Header) String() string {
	return fmt.Sprintf("Header{v%d src=%s type=%s seq=%d last=%v size=%d}",
		h.Version, h.Source, h.Type, h.Sequence, h.LastPacket, h.Size)
}

// Encode writes the header into w
func (h Header) Encode(w *Writer) error {
	var last int32
	if h.LastPacket {
		last = 1
	}
	for _, v := range [...]int32{h.Version, int32(h.Source), int32(h.Type), h.Sequence, last, h.Size} {
		if err := w.PutInt32(v); err != nil {
			return err
		}
	}
	return nil
}

// DecodeHeader reads a header from r. It does not validate it.
func DecodeHeader(r *Reader) (Header, error) {
	var f [6]int32
	for i := range f {
		v, err := r.Int32()
		if err != nil {
			return Header{}, err
		}
		f[i] = v
	}
	return Header{
		Version:    f[0],
		Source:     types.ProcessID(f[1]),
		Type:       types.MessageType(f[2]),
		Sequence:   f[3],
		LastPacket: f[4] != 0,
		Size:       f[5],
	}, nil
}

// ParseHeader decodes a header from exactly HeaderSize bytes
func ParseHeader(b []byte) (Header, error) {
	if len(b) != HeaderSize {
		return Header{}, fmt.Errorf("%w: header is %d bytes, want %d", ErrShortBuffer, len(b), HeaderSize)
	}
	return DecodeHeader(NewReader(b))
}

// EncodePacket builds a single packet from a header and its payload. The
// header's Size must match len(payload).
func EncodePacket(h Header, payload []byte) ([]byte, error) {
	if int(h.Size) != len(payload) {
		return nil, fmt.Errorf("%w: header size %d, payload %d", ErrCorrupt, h.Size, len(payload))
	}
	if len(payload) > PacketCapacity {
		return nil, fmt.Errorf("%w: %d bytes", ErrPacketSize, len(payload))
	}
	w := NewWriter(make([]byte, HeaderSize+len(payload)))
	if err := h.Encode(w); err != nil {
		return nil, err
	}
	if err := w.PutBytes(payload); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// PacketCount returns the number of packets needed for a payload of n
// bytes. An empty payload still occupies one packet.
func PacketCount(n int) int {
	if n <= 0 {
		return 1
	}
	return (n + PacketCapacity - 1) / PacketCapacity
}
