package ipc

import (
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func codecTestMessage() proto.Message {
	return wrapperspb.String("ping")
}
