package ipc

import (
	"errors"
	"time"

	"golang.org/x/sys/unix"

	"github.com/baaaht/fifoipc/pkg/types"
	"github.com/baaaht/fifoipc/pkg/wire"
)

// outboundMessage is one message owed to a destination. The payload is
// serialized on first use by the worker, not by Send.
type outboundMessage struct {
	msgType    types.MessageType
	payload    any
	data       []byte
	serialized bool
	sent       int
	finished   bool
	lastActive time.Time
}

// outboundList is the ordered backlog for one destination
type outboundList struct {
	dest types.ProcessID
	msgs []*outboundMessage
}

// outboundTable holds every destination currently owed data. Destinations
// are drained in the order they first received a message.
type outboundTable struct {
	order []types.ProcessID
	lists map[types.ProcessID]*outboundList
}

func newOutboundTable() outboundTable {
	return outboundTable{lists: make(map[types.ProcessID]*outboundList)}
}

func (t *outboundTable) push(dest types.ProcessID, m *outboundMessage) {
	l, ok := t.lists[dest]
	if !ok {
		l = &outboundList{dest: dest}
		t.lists[dest] = l
		t.order = append(t.order, dest)
	}
	l.msgs = append(l.msgs, m)
}

func (t *outboundTable) pending() int {
	n := 0
	for _, l := range t.lists {
		n += len(l.msgs)
	}
	return n
}

func (t *outboundTable) empty() bool {
	return len(t.lists) == 0
}

// sendResult is the outcome of one attempt on the front message of a list
type sendResult int

const (
	sendComplete sendResult = iota
	sendDropped
	sendBlocked
)

// errShortWrite means a packet was split by the kernel; the destination's
// framing can no longer be trusted
var errShortWrite = errors.New("short write to fifo")

// drainOutbound pushes as much queued data as the destination pipes accept.
// It returns an error only when the queue must stop.
func (q *Queue) drainOutbound() error {
	q.outMu.Lock()
	defer q.outMu.Unlock()

	t := &q.outbound
	for i := 0; i < len(t.order); {
		dest := t.order[i]
		l := t.lists[dest]
		if err := q.drainList(l); err != nil {
			return err
		}
		if len(l.msgs) == 0 {
			delete(t.lists, dest)
			t.order = append(t.order[:i], t.order[i+1:]...)
			continue
		}
		i++
	}
	return nil
}

func (q *Queue) drainList(l *outboundList) error {
	for len(l.msgs) > 0 {
		res, err := q.sendFront(l.dest, l.msgs[0])
		if err != nil {
			return err
		}
		if res == sendBlocked {
			return nil
		}
		l.msgs[0] = nil
		l.msgs = l.msgs[1:]
	}
	return nil
}

// sendFront writes as many packets of m as dest will take right now
func (q *Queue) sendFront(dest types.ProcessID, m *outboundMessage) (sendResult, error) {
	path := q.peerPath(dest)

	if !fifoExists(path) {
		q.stats.droppedNoFifo.Add(1)
		q.logger.Debug("Dropping message, destination has no fifo", "dest", dest, "type", m.msgType, "path", path)
		return sendDropped, nil
	}

	if !q.alive(dest) {
		if err := unix.Unlink(path); err != nil && !errors.Is(err, unix.ENOENT) {
			q.logger.Warn("Failed to remove stale fifo", "dest", dest, "path", path, "error", err)
		} else {
			q.logger.Info("Removed fifo of dead process", "dest", dest, "path", path)
		}
		q.stats.droppedDeadPeer.Add(1)
		return sendDropped, nil
	}

	if !m.serialized {
		data, err := q.codec.Marshal(m.payload)
		if err != nil {
			q.stats.droppedMarshal.Add(1)
			q.logger.Error("Dropping message, serialization failed", "dest", dest, "type", m.msgType, "error", err)
			return sendDropped, nil
		}
		m.data, m.payload, m.serialized = data, nil, true
	}

	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		switch {
		case errors.Is(err, unix.ENXIO):
			q.stats.droppedNoReader.Add(1)
			q.logger.Debug("Dropping message, destination fifo has no reader", "dest", dest, "type", m.msgType)
		case errors.Is(err, unix.ENOENT):
			q.stats.droppedNoFifo.Add(1)
			q.logger.Debug("Dropping message, destination fifo vanished", "dest", dest, "type", m.msgType)
		default:
			q.stats.droppedWrite.Add(1)
			q.logger.Warn("Dropping message, failed to open destination fifo", "dest", dest, "path", path, "error", err)
		}
		return sendDropped, nil
	}
	defer unix.Close(fd)

	for !m.finished {
		chunk := m.data[m.sent:min(m.sent+wire.PacketCapacity, len(m.data))]
		last := m.sent+len(chunk) == len(m.data)
		h := wire.NewHeader(q.pid, m.msgType, int32(m.sent/wire.PacketCapacity), last, len(chunk))

		w := wire.NewWriter(q.packet[:wire.HeaderSize+len(chunk)])
		if err := h.Encode(w); err != nil {
			return sendDropped, err
		}
		if err := w.PutBytes(chunk); err != nil {
			return sendDropped, err
		}

		n, err := unix.Write(fd, w.Bytes())
		if err != nil {
			switch {
			case errors.Is(err, unix.EINTR):
				continue
			case errors.Is(err, unix.EAGAIN):
				return q.blocked(dest, m), nil
			default:
				q.stats.droppedWrite.Add(1)
				q.logger.Warn("Dropping message, write failed", "dest", dest, "type", m.msgType,
					"sent", m.sent, "size", len(m.data), "error", err)
				return sendDropped, nil
			}
		}
		if n != w.Len() {
			q.logger.Error("Short write to destination fifo", "dest", dest, "wrote", n, "packet", w.Len())
			return sendDropped, types.WrapError(types.ErrCodeProtocol, "write to "+path, errShortWrite)
		}

		q.stats.packetsSent.Add(1)
		m.sent += len(chunk)
		m.lastActive = q.now()
		if last {
			m.finished = true
		}
	}

	q.stats.messagesSent.Add(1)
	q.logger.Debug("Message sent", "dest", dest, "type", m.msgType, "size", len(m.data))
	return sendComplete, nil
}

// blocked handles a full destination pipe: keep the message for a retry
// unless it has made no progress for longer than the outbound timeout
func (q *Queue) blocked(dest types.ProcessID, m *outboundMessage) sendResult {
	idle := q.now().Sub(m.lastActive)
	if idle > q.cfg.OutboundTimeout {
		q.stats.droppedTimeout.Add(1)
		q.logger.Warn("Dropping message, destination stalled", "dest", dest, "type", m.msgType,
			"sent", m.sent, "size", len(m.data), "idle", idle.String())
		return sendDropped
	}
	if _, ok := q.retryLog.Allow(dest); ok {
		q.logger.Debug("Destination pipe full, retrying", "dest", dest, "sent", m.sent, "size", len(m.data))
	}
	return sendBlocked
}
