package diag

import (
	"context"
	"sync"

	"github.com/baaaht/fifoipc/internal/logger"
	"github.com/baaaht/fifoipc/pkg/ipc"
	"github.com/baaaht/fifoipc/pkg/types"
)

// Responder answers diag commands. It is registered as a handler on the
// queue it replies through.
type Responder struct {
	sender       Sender
	logger       *logger.Logger
	manyPings    int
	manyBigPings int

	quit     chan struct{}
	quitOnce sync.Once

	mu     sync.Mutex
	served map[string]int
}

// ResponderOption customises a Responder
type ResponderOption func(*Responder)

// WithBurst sets how many replies sendManyPings and sendManyBigPings produce
func WithBurst(pings, bigPings int) ResponderOption {
	return func(r *Responder) {
		r.manyPings = pings
		r.manyBigPings = bigPings
	}
}

// NewResponder creates a responder replying through sender
func NewResponder(sender Sender, log *logger.Logger, opts ...ResponderOption) *Responder {
	if log == nil {
		log = logger.Global()
	}
	r := &Responder{
		sender:       sender,
		logger:       log.With("component", "diag_responder"),
		manyPings:    DefaultManyPings,
		manyBigPings: DefaultManyBigPings,
		quit:         make(chan struct{}),
		served:       make(map[string]int),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// HandleMessage implements ipc.MessageHandler
func (r *Responder) HandleMessage(_ context.Context, msg *ipc.Message) error {
	cmd, data, err := Decode(msg.Payload)
	if err != nil {
		return err
	}
	r.logger.Debug("Received diag command", "source", msg.Source, "command", cmd)

	r.mu.Lock()
	r.served[cmd]++
	r.mu.Unlock()

	switch cmd {
	case Ping:
		return r.reply(msg.Source, Command(Ping))
	case BigPing:
		if len(data) == BigPingLength && VerifyBigPing(data) {
			return r.reply(msg.Source, NewBigPing())
		}
		r.logger.Warn("Invalid big ping", "source", msg.Source, "length", len(data))
		return r.reply(msg.Source, Command(Error))
	case SendManyPings:
		for i := 0; i < r.manyPings; i++ {
			if err := r.reply(msg.Source, Command(Ping)); err != nil {
				return err
			}
		}
	case SendManyBigPings:
		for i := 0; i < r.manyBigPings; i++ {
			if err := r.reply(msg.Source, NewBigPing()); err != nil {
				return err
			}
		}
	case Quit:
		r.quitOnce.Do(func() { close(r.quit) })
	case Hello:
	default:
		return types.NewError(types.ErrCodeInvalidArgument, "unknown diag command: "+cmd)
	}
	return nil
}

func (r *Responder) reply(dest types.ProcessID, payload any) error {
	return r.sender.Send(dest, MessageType, payload)
}

// Hello announces this peer to dest
func (r *Responder) Hello(dest types.ProcessID) error {
	return r.reply(dest, Command(Hello))
}

// Quit is closed once a quit command arrives
func (r *Responder) Quit() <-chan struct{} {
	return r.quit
}

// Served returns how many times cmd was received
func (r *Responder) Served(cmd string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.served[cmd]
}
