package ipc

import (
	"context"
	"errors"
	"slices"
	"time"

	"golang.org/x/sys/unix"

	"github.com/baaaht/fifoipc/pkg/types"
	"github.com/baaaht/fifoipc/pkg/wire"
)

var errShortRead = errors.New("fifo drained mid-packet")

// inboundMessage accumulates the packets of one message from one source
type inboundMessage struct {
	msgType    types.MessageType
	buf        []byte
	nextSeq    int32
	lastActive time.Time
}

// grow extends the buffer by n bytes and returns the new tail for the
// payload to be read into
func (m *inboundMessage) grow(n int) []byte {
	off := len(m.buf)
	m.buf = slices.Grow(m.buf, n)[:off+n]
	return m.buf[off:]
}

type admitResult int

const (
	admitted admitResult = iota
	// admittedRestart: a new message replaced a stale partial one
	admittedRestart
	// rejectedSequence: gap, repeat or type change; the partial message was discarded
	rejectedSequence
	// rejectedOrphan: a continuation packet with nothing pending
	rejectedOrphan
)

// reassembler holds at most one partial message per source. It is owned by
// the worker and needs no locking.
type reassembler struct {
	pending map[types.ProcessID]*inboundMessage
	timeout time.Duration
}

func newReassembler(timeout time.Duration) *reassembler {
	return &reassembler{
		pending: make(map[types.ProcessID]*inboundMessage),
		timeout: timeout,
	}
}

// admit resolves the pending entry a validated packet belongs to. A nil
// message means the packet must be consumed and thrown away.
func (r *reassembler) admit(h wire.Header) (*inboundMessage, admitResult) {
	m, ok := r.pending[h.Source]
	res := admitted
	if ok && h.Sequence == 0 {
		// the source restarted, likely a new process reusing the id
		delete(r.pending, h.Source)
		ok = false
		res = admittedRestart
	}
	if ok {
		if m.msgType != h.Type || m.nextSeq != h.Sequence {
			delete(r.pending, h.Source)
			return nil, rejectedSequence
		}
		return m, admitted
	}
	if h.Sequence != 0 {
		return nil, rejectedOrphan
	}
	m = &inboundMessage{msgType: h.Type}
	r.pending[h.Source] = m
	return m, res
}

// commit records a packet whose payload has been read into m. It returns the
// complete message bytes once the last packet arrived.
func (r *reassembler) commit(h wire.Header, m *inboundMessage, now time.Time) ([]byte, bool) {
	m.nextSeq++
	m.lastActive = now
	if !h.LastPacket {
		return nil, false
	}
	delete(r.pending, h.Source)
	return m.buf, true
}

// sweep drops partial messages idle for longer than the timeout
func (r *reassembler) sweep(now time.Time) int {
	n := 0
	for src, m := range r.pending {
		if now.Sub(m.lastActive) > r.timeout {
			delete(r.pending, src)
			n++
		}
	}
	return n
}

func (r *reassembler) len() int {
	return len(r.pending)
}

// drainInbound reads every complete packet currently in the FIFO. An error
// means framing is lost or the descriptor is broken and the queue must stop.
func (q *Queue) drainInbound(ctx context.Context) error {
	defer q.maybeSweep()

	var hdr [wire.HeaderSize]byte
	for {
		n, err := unix.Read(q.fifoFd, hdr[:])
		if err != nil {
			if errors.Is(err, unix.EAGAIN) {
				return nil
			}
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return types.WrapError(types.ErrCodeInternal, "read fifo header", err)
		}
		if n == 0 {
			return nil
		}
		if n != wire.HeaderSize {
			return types.WrapError(types.ErrCodeProtocol, "read fifo header", errShortRead)
		}

		h, err := wire.ParseHeader(hdr[:])
		if err != nil {
			return types.WrapError(types.ErrCodeProtocol, "parse fifo header", err)
		}

		if err := h.Validate(); err != nil {
			q.stats.packetsRejected.Add(1)
			if h.Size >= 0 && h.Size <= wire.PacketCapacity {
				q.logger.Warn("Rejecting packet", "header", h.String(), "error", err)
				if err := readFull(q.fifoFd, q.scratch[:h.Size]); err != nil {
					return types.WrapError(types.ErrCodeProtocol, "skip rejected packet", err)
				}
				continue
			}
			// the size is garbage so the next header position is unknown
			dropped, derr := discardAll(q.fifoFd)
			q.logger.Error("Corrupt packet header, discarded pending fifo data",
				"header", h.String(), "error", err, "discarded_bytes", dropped)
			if derr != nil {
				return types.WrapError(types.ErrCodeInternal, "resync fifo", derr)
			}
			continue
		}

		m, res := q.inbound.admit(h)
		switch res {
		case admittedRestart:
			q.stats.inboundDiscarded.Add(1)
			q.logger.Debug("Discarded partial message, source restarted", "source", h.Source)
		case rejectedSequence:
			q.stats.inboundDiscarded.Add(1)
			q.logger.Warn("Discarded partial message, packet out of sequence", "header", h.String())
		case rejectedOrphan:
			q.logger.Debug("Rejecting packet with no message in progress", "header", h.String())
		}

		if m == nil {
			q.stats.packetsRejected.Add(1)
			if err := readFull(q.fifoFd, q.scratch[:h.Size]); err != nil {
				return types.WrapError(types.ErrCodeProtocol, "skip rejected packet", err)
			}
			continue
		}

		if err := readFull(q.fifoFd, m.grow(int(h.Size))); err != nil {
			return types.WrapError(types.ErrCodeProtocol, "read packet payload", err)
		}
		q.stats.packetsReceived.Add(1)

		if data, done := q.inbound.commit(h, m, q.now()); done {
			q.deliver(ctx, h.Source, h.Type, data)
		}
	}
}

func (q *Queue) maybeSweep() {
	q.inboundPasses++
	if q.inboundPasses%q.cfg.SweepEvery != 0 {
		return
	}
	if n := q.inbound.sweep(q.now()); n > 0 {
		q.stats.inboundExpired.Add(int64(n))
		q.logger.Info("Expired idle partial messages", "count", n, "remaining", q.inbound.len())
	}
}

// deliver decodes a complete message and runs its handler on the worker
func (q *Queue) deliver(ctx context.Context, src types.ProcessID, msgType types.MessageType, data []byte) {
	payload, err := q.codec.Unmarshal(data)
	if err != nil {
		q.stats.unmarshalFailures.Add(1)
		q.logger.Error("Failed to decode message", "source", src, "type", msgType, "size", len(data), "error", err)
		return
	}
	q.stats.messagesReceived.Add(1)

	q.handlersMu.RLock()
	handler, ok := q.handlers[msgType]
	q.handlersMu.RUnlock()
	if !ok {
		q.stats.unhandled.Add(1)
		q.logger.Warn("No handler for message type", "source", src, "type", msgType)
		return
	}

	msg := &Message{Source: src, Type: msgType, Payload: payload}
	if err := handler.HandleMessage(ctx, msg); err != nil {
		q.stats.handlerErrors.Add(1)
		q.logger.Error("Handler failed", "source", src, "type", msgType, "error", err)
		return
	}
	q.logger.Debug("Message handled", "source", src, "type", msgType, "size", len(data))
}
