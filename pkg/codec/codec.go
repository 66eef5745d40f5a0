// Package codec converts message payloads to and from the byte form carried
// across FIFOs. The transport never inspects payloads; it only calls Marshal
// on the sending side and Unmarshal once all packets of a message arrived.
package codec

import (
	"fmt"

	"github.com/baaaht/fifoipc/pkg/types"
)

// Codec serializes message payloads
type Codec interface {
	// Name identifies the codec in configuration and logs
	Name() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte) (any, error)
}

const (
	NameBytes = "bytes"
	NameProto = "proto"
)

// ByName returns the codec registered under name
func ByName(name string) (Codec, error) {
	switch name {
	case "", NameBytes:
		return Bytes{}, nil
	case NameProto:
		return Proto{}, nil
	default:
		return nil, types.NewError(types.ErrCodeInvalidArgument, fmt.Sprintf("unknown codec: %q", name))
	}
}

// Bytes passes []byte and string payloads through unchanged. Unmarshal
// always yields []byte.
type Bytes struct{}

func (Bytes) Name() string { return NameBytes }

func (Bytes) Marshal(v any) ([]byte, error) {
	switch p := v.(type) {
	case []byte:
		return p, nil
	case string:
		return []byte(p), nil
	case nil:
		return nil, nil
	default:
		return nil, types.NewError(types.ErrCodeInvalidArgument, fmt.Sprintf("bytes codec cannot marshal %T", v))
	}
}

func (Bytes) Unmarshal(data []byte) (any, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
