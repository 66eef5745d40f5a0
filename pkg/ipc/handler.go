package ipc

import (
	"context"
	"fmt"

	"github.com/baaaht/fifoipc/pkg/types"
)

// Message is a fully reassembled and decoded inbound message
type Message struct {
	Source  types.ProcessID
	Type    types.MessageType
	Payload any
}

// String returns a string representation of the message
func (m *Message) String() string {
	return fmt.Sprintf("Message{Source: %s, Type: %s, Payload: %T}", m.Source, m.Type, m.Payload)
}

// MessageHandler handles inbound messages of one type. Handlers run on the
// queue's worker; a slow handler delays all other I/O of the queue.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg *Message) error
}

// MessageHandlerFunc is a function adapter for MessageHandler
type MessageHandlerFunc func(ctx context.Context, msg *Message) error

// HandleMessage implements MessageHandler
func (f MessageHandlerFunc) HandleMessage(ctx context.Context, msg *Message) error {
	return f(ctx, msg)
}
