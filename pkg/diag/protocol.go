// Package diag implements a small request/response protocol between FIFO IPC
// peers, used to check that a peer is alive and that messages of every size
// arrive intact.
//
// Commands travel as protobuf wrappers through the proto codec: plain
// commands as StringValue, big pings as BytesValue.
package diag

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/baaaht/fifoipc/pkg/codec"
	"github.com/baaaht/fifoipc/pkg/types"
)

// MessageType is the message type diag traffic is sent and handled under
const MessageType types.MessageType = 0x6469

// Commands
const (
	Hello            = "hello"
	Ping             = "ping"
	BigPing          = "bigPing"
	Quit             = "quit"
	SendManyPings    = "sendManyPings"
	SendManyBigPings = "sendManyBigPings"
	Error            = "error"
)

const (
	// BigPingLength is larger than one packet, so a big ping always
	// exercises reassembly
	BigPingLength = 5000

	DefaultManyPings    = 1000
	DefaultManyBigPings = 100
)

// Sender is the part of a queue diag needs
type Sender interface {
	Send(dest types.ProcessID, msgType types.MessageType, payload any) error
}

// Command builds the payload for a plain command
func Command(cmd string) proto.Message {
	return wrapperspb.String(cmd)
}

// BigPingPayload returns n bytes of the pattern i%256
func BigPingPayload(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 256)
	}
	return b
}

// NewBigPing builds a big ping payload of BigPingLength bytes
func NewBigPing() proto.Message {
	return wrapperspb.Bytes(BigPingPayload(BigPingLength))
}

// VerifyBigPing reports whether b follows the big ping pattern
func VerifyBigPing(b []byte) bool {
	for i, v := range b {
		if v != byte(i%256) {
			return false
		}
	}
	return true
}

// Decode extracts the command and, for big pings, the data from a received
// payload
func Decode(payload any) (string, []byte, error) {
	switch v := payload.(type) {
	case *wrapperspb.StringValue:
		return v.GetValue(), nil, nil
	case *wrapperspb.BytesValue:
		return BigPing, v.GetValue(), nil
	default:
		return "", nil, types.NewError(types.ErrCodeProtocol, fmt.Sprintf("unexpected diag payload %T", payload))
	}
}

// RequireProto fails unless c is the proto codec
func RequireProto(c codec.Codec) error {
	if c == nil || c.Name() != codec.NameProto {
		return types.NewError(types.ErrCodeFailedPrecondition, "diag requires the proto codec")
	}
	return nil
}
