package codec

import (
	"fmt"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/baaaht/fifoipc/pkg/types"
)

// Proto wraps protobuf messages in an Any so the receiver can resolve the
// concrete type from the global registry without knowing it up front.
type Proto struct{}

func (Proto) Name() string { return NameProto }

func (Proto) Marshal(v any) ([]byte, error) {
	m, ok := v.(proto.Message)
	if !ok {
		return nil, types.NewError(types.ErrCodeInvalidArgument, fmt.Sprintf("proto codec cannot marshal %T", v))
	}
	a, ok := m.(*anypb.Any)
	if !ok {
		var err error
		a, err = anypb.New(m)
		if err != nil {
			return nil, types.WrapError(types.ErrCodeInvalidArgument, "failed to wrap message", err)
		}
	}
	b, err := proto.Marshal(a)
	if err != nil {
		return nil, types.WrapError(types.ErrCodeInternal, "failed to marshal message", err)
	}
	return b, nil
}

// Unmarshal returns the concrete proto.Message named by the Any type URL
func (Proto) Unmarshal(data []byte) (any, error) {
	var a anypb.Any
	if err := proto.Unmarshal(data, &a); err != nil {
		return nil, types.WrapError(types.ErrCodeProtocol, "failed to unmarshal envelope", err)
	}
	m, err := a.UnmarshalNew()
	if err != nil {
		return nil, types.WrapError(types.ErrCodeProtocol, "failed to unmarshal "+a.GetTypeUrl(), err)
	}
	return m, nil
}
