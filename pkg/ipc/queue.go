package ipc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
	"golang.org/x/sys/unix"

	"github.com/baaaht/fifoipc/internal/config"
	"github.com/baaaht/fifoipc/internal/logger"
	"github.com/baaaht/fifoipc/pkg/codec"
	"github.com/baaaht/fifoipc/pkg/types"
	"github.com/baaaht/fifoipc/pkg/wire"
)

var (
	// ErrUnsupported is returned for operations the transport does not offer
	ErrUnsupported = types.NewError(types.ErrCodeUnsupported, "operation not supported")
	// ErrTerminated is returned once the queue has stopped
	ErrTerminated = types.NewError(types.ErrCodeTerminated, "message queue terminated")
)

// Queue is a FIFO-backed message queue for one process
type Queue struct {
	cfg    config.QueueConfig
	logger *logger.Logger
	codec  codec.Codec
	pid    types.ProcessID
	path   string

	now   func() time.Time
	alive func(types.ProcessID) bool
	pipe  func() (*wakePipe, error)

	// lifecycle. sendMu is held for reading by Send from the state check
	// until the wakeup is written, and for writing by Terminate while it
	// moves to Terminated, so the wake pipe is never used after close.
	sendMu   sync.RWMutex
	mu       sync.Mutex
	state    types.Status
	ownerPid int
	fifoID   fileID
	fifoFd   int
	keepFd   int
	wake     *wakePipe
	guardID  uint64
	started  chan struct{}
	done     chan struct{}
	die      atomic.Bool
	failure  atomic.Pointer[error]
	cancel   context.CancelFunc

	// outbound table, shared with Send
	outMu    sync.Mutex
	outbound outboundTable

	handlersMu sync.RWMutex
	handlers   map[types.MessageType]MessageHandler

	// worker-owned
	inbound       *reassembler
	inboundPasses int
	packet        [wire.MaxPacketSize]byte
	scratch       [wire.PacketCapacity]byte
	retryLog      *catrate.Limiter

	stats counters
}

// Option customises a Queue
type Option func(*Queue)

// WithProcessID sets the id the queue listens and sends as. It defaults to
// the id of the running process.
func WithProcessID(pid types.ProcessID) Option {
	return func(q *Queue) { q.pid = pid }
}

// WithClock replaces the time source used for inactivity timeouts
func WithClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// WithLivenessProbe replaces the check that a destination process exists
func WithLivenessProbe(alive func(types.ProcessID) bool) Option {
	return func(q *Queue) { q.alive = alive }
}

// WithCodec overrides the codec named in the configuration
func WithCodec(c codec.Codec) Option {
	return func(q *Queue) { q.codec = c }
}

// New creates an uninitialized queue. Call Init to create the FIFO and start
// the worker.
func New(cfg config.QueueConfig, log *logger.Logger, opts ...Option) (*Queue, error) {
	if log == nil {
		log = logger.Global()
	}

	q := &Queue{
		cfg:      cfg,
		state:    types.StatusUninitialized,
		fifoFd:   -1,
		keepFd:   -1,
		now:      time.Now,
		alive:    ProcessAlive,
		pipe:     newWakePipe,
		pid:      types.ProcessID(os.Getpid()),
		outbound: newOutboundTable(),
		handlers: make(map[types.MessageType]MessageHandler),
		started:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}

	if q.codec == nil {
		c, err := codec.ByName(cfg.Codec)
		if err != nil {
			return nil, err
		}
		q.codec = c
	}
	if !q.pid.IsValid() {
		return nil, types.NewError(types.ErrCodeInvalidArgument, "invalid process id: "+q.pid.String())
	}
	if q.cfg.SweepEvery < 1 {
		q.cfg.SweepEvery = config.DefaultSweepEvery
	}
	if q.cfg.RetryInterval <= 0 {
		q.cfg.RetryInterval = config.DefaultRetryInterval
	}
	if q.cfg.InboundTimeout <= 0 {
		q.cfg.InboundTimeout = config.DefaultInboundTimeout
	}
	if q.cfg.OutboundTimeout <= 0 {
		q.cfg.OutboundTimeout = config.DefaultOutboundTimeout
	}

	q.path = FifoPath(cfg.Dir, cfg.Prefix, q.pid)
	q.inbound = newReassembler(q.cfg.InboundTimeout)
	q.retryLog = catrate.NewLimiter(map[time.Duration]int{
		time.Second: 1,
		time.Minute: 10,
	})
	q.logger = log.With("component", "ipc_queue", "pid", q.pid)

	return q, nil
}

// Init creates the queue's FIFO, installs the signal guard and starts the
// worker. It returns once the worker is running.
func (q *Queue) Init() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch q.state {
	case types.StatusRunning:
		return types.NewError(types.ErrCodeAlreadyExists, "message queue already initialized")
	case types.StatusTerminated:
		return ErrTerminated
	}

	var passthrough []os.Signal
	if q.cfg.CatchSignals {
		sigs, err := q.cfg.Signals()
		if err != nil {
			return err
		}
		passthrough = sigs
	}

	if err := os.MkdirAll(q.cfg.Dir, 0755); err != nil {
		return types.WrapError(types.ErrCodeInternal, "failed to create fifo directory", err)
	}

	stale, err := makeFifo(q.path)
	if err != nil {
		return types.WrapError(types.ErrCodeInternal, "failed to create fifo", err)
	}
	if stale {
		q.logger.Warn("Replaced stale fifo", "path", q.path)
	}

	if err := q.openFifo(); err != nil {
		// the queue stays uninitialized, so a later Init starts clean
		q.closeDescriptors()
		_ = unix.Unlink(q.path)
		return err
	}

	q.ownerPid = os.Getpid()

	if q.cfg.CatchSignals {
		q.guardID = guard.add(q.unlinkIfOwned, passthrough)
	}

	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	go q.run(ctx)
	<-q.started

	q.state = types.StatusRunning
	q.logger.Info("IPC message queue initialized",
		"path", q.path,
		"codec", q.codec.Name(),
		"inbound_timeout", q.cfg.InboundTimeout.String(),
		"outbound_timeout", q.cfg.OutboundTimeout.String(),
		"catch_signals", q.cfg.CatchSignals)
	return nil
}

func (q *Queue) openFifo() error {
	fd, err := unix.Open(q.path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return types.WrapError(types.ErrCodeInternal, "failed to open fifo for reading", err)
	}
	q.fifoFd = fd

	// Holding a writer keeps the read end from reporting EOF and POLLHUP
	// whenever the last peer closes.
	keep, err := unix.Open(q.path, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return types.WrapError(types.ErrCodeInternal, "failed to open fifo keep-alive writer", err)
	}
	q.keepFd = keep

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return types.WrapError(types.ErrCodeInternal, "failed to stat fifo", err)
	}
	q.fifoID = fileID{dev: uint64(st.Dev), ino: uint64(st.Ino)}

	wake, err := q.pipe()
	if err != nil {
		return types.WrapError(types.ErrCodeInternal, "failed to create wake pipe", err)
	}
	q.wake = wake
	return nil
}

// Terminate stops the worker, closes descriptors and removes the FIFO if it
// is still the one this queue created. It is safe to call more than once.
func (q *Queue) Terminate() error {
	q.sendMu.Lock()
	q.mu.Lock()
	prev := q.state
	q.state = types.StatusTerminated
	q.mu.Unlock()
	q.sendMu.Unlock()

	if prev != types.StatusRunning {
		return nil
	}

	q.die.Store(true)
	if err := q.wake.signal(wakeQuit); err != nil {
		q.logger.Error("Failed to signal worker", "error", err)
	}
	<-q.done
	q.cancel()

	if q.cfg.CatchSignals {
		guard.remove(q.guardID)
	}
	q.unlinkIfOwned()
	q.closeDescriptors()

	q.logger.Info("IPC message queue terminated", "stats", q.Stats().String())
	return nil
}

// closeDescriptors closes whatever Init opened. Callers hold q.mu or have
// moved the queue to Terminated, so it never races with Send or Init.
func (q *Queue) closeDescriptors() {
	if q.fifoFd >= 0 {
		_ = unix.Close(q.fifoFd)
		q.fifoFd = -1
	}
	if q.keepFd >= 0 {
		_ = unix.Close(q.keepFd)
		q.keepFd = -1
	}
	if q.wake != nil {
		q.wake.close()
		q.wake = nil
	}
}

// unlinkIfOwned removes the FIFO unless this is a different process than
// the one that created it, or the path now names a different file
func (q *Queue) unlinkIfOwned() {
	if os.Getpid() != q.ownerPid {
		return
	}
	id, err := statID(q.path)
	if err != nil || id != q.fifoID {
		return
	}
	if err := unix.Unlink(q.path); err != nil && !errors.Is(err, unix.ENOENT) {
		q.logger.Warn("Failed to remove fifo", "path", q.path, "error", err)
	}
}

// Send queues payload for delivery to dest and returns immediately. Failure
// to deliver is never reported here; see Stats.
func (q *Queue) Send(dest types.ProcessID, msgType types.MessageType, payload any) error {
	if !dest.IsValid() {
		return types.NewError(types.ErrCodeInvalidArgument, "invalid destination process id: "+dest.String())
	}
	if dest == q.pid {
		return types.WrapError(types.ErrCodeUnsupported, "cannot send to own process", ErrUnsupported)
	}
	q.sendMu.RLock()
	defer q.sendMu.RUnlock()
	if err := q.checkRunning(); err != nil {
		return err
	}

	q.outMu.Lock()
	q.outbound.push(dest, &outboundMessage{
		msgType:    msgType,
		payload:    payload,
		lastActive: q.now(),
	})
	q.outMu.Unlock()
	q.stats.messagesQueued.Add(1)

	if err := q.wake.signal(wakeOutbound); err != nil {
		q.logger.Error("Failed to wake worker", "error", err)
	}
	return nil
}

// SendToAll is not supported: there is no registry of peers to broadcast to
func (q *Queue) SendToAll(msgType types.MessageType, payload any) error {
	return ErrUnsupported
}

func (q *Queue) checkRunning() error {
	q.mu.Lock()
	state := q.state
	q.mu.Unlock()

	switch state {
	case types.StatusUninitialized:
		return types.NewError(types.ErrCodeFailedPrecondition, "message queue not initialized")
	case types.StatusTerminated:
		return ErrTerminated
	}
	if p := q.failure.Load(); p != nil {
		return types.WrapError(types.ErrCodeTerminated, "message queue worker stopped", *p)
	}
	return nil
}

// CurrentProcessID returns the id this queue sends as
func (q *Queue) CurrentProcessID() types.ProcessID {
	return q.pid
}

// FifoPath returns the path of this queue's inbound FIFO
func (q *Queue) FifoPath() string {
	return q.path
}

// Codec returns the codec used for payloads
func (q *Queue) Codec() codec.Codec {
	return q.codec
}

func (q *Queue) peerPath(pid types.ProcessID) string {
	return FifoPath(q.cfg.Dir, q.cfg.Prefix, pid)
}

// RegisterHandler registers the handler for a message type, replacing any
// previous one
func (q *Queue) RegisterHandler(msgType types.MessageType, handler MessageHandler) error {
	if handler == nil {
		return types.NewError(types.ErrCodeInvalid, "handler cannot be nil")
	}
	q.mu.Lock()
	terminated := q.state == types.StatusTerminated
	q.mu.Unlock()
	if terminated {
		return ErrTerminated
	}

	q.handlersMu.Lock()
	q.handlers[msgType] = handler
	q.handlersMu.Unlock()

	q.logger.Debug("Handler registered", "message_type", msgType)
	return nil
}

// UnregisterHandler removes the handler for a message type
func (q *Queue) UnregisterHandler(msgType types.MessageType) error {
	q.handlersMu.Lock()
	defer q.handlersMu.Unlock()

	if _, exists := q.handlers[msgType]; !exists {
		return types.NewError(types.ErrCodeNotFound, fmt.Sprintf("handler not found for type: %s", msgType))
	}
	delete(q.handlers, msgType)

	q.logger.Debug("Handler unregistered", "message_type", msgType)
	return nil
}

// State returns the lifecycle state of the queue
func (q *Queue) State() types.Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state
}

// Done is closed when the worker exits, either through Terminate or because
// of a fatal I/O error
func (q *Queue) Done() <-chan struct{} {
	return q.done
}

// Err returns the error that stopped the worker, if any
func (q *Queue) Err() error {
	if p := q.failure.Load(); p != nil {
		return *p
	}
	return nil
}

// Pending returns the number of outbound messages not yet fully written
func (q *Queue) Pending() int {
	q.outMu.Lock()
	defer q.outMu.Unlock()
	return q.outbound.pending()
}

// Flush waits until every queued outbound message has been written or
// dropped
func (q *Queue) Flush(ctx context.Context) error {
	ticker := time.NewTicker(q.cfg.RetryInterval * 5)
	defer ticker.Stop()

	for {
		if q.Pending() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return types.WrapError(types.ErrCodeTimeout, fmt.Sprintf("flush: %d messages pending", q.Pending()), ctx.Err())
		case <-q.done:
			if q.Pending() == 0 {
				return nil
			}
			return ErrTerminated
		case <-ticker.C:
		}
	}
}

// Stats returns a snapshot of the queue counters
func (q *Queue) Stats() Stats {
	s := q.stats.snapshot()
	s.Pending = q.Pending()
	q.handlersMu.RLock()
	s.ActiveHandlers = len(q.handlers)
	q.handlersMu.RUnlock()
	return s
}

// String returns a string representation of the queue
func (q *Queue) String() string {
	return fmt.Sprintf("Queue{PID: %s, Path: %s, State: %s, Pending: %d}",
		q.pid, q.path, q.State(), q.Pending())
}
