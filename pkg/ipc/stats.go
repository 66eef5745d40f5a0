package ipc

import (
	"fmt"
	"sync/atomic"
)

// Stats is a snapshot of queue counters
type Stats struct {
	MessagesQueued   int64 `json:"messages_queued"`
	MessagesSent     int64 `json:"messages_sent"`
	PacketsSent      int64 `json:"packets_sent"`
	MessagesReceived int64 `json:"messages_received"`
	PacketsReceived  int64 `json:"packets_received"`

	// Outbound drops by reason
	DroppedNoFifo   int64 `json:"dropped_no_fifo"`
	DroppedDeadPeer int64 `json:"dropped_dead_peer"`
	DroppedNoReader int64 `json:"dropped_no_reader"`
	DroppedTimeout  int64 `json:"dropped_timeout"`
	DroppedWrite    int64 `json:"dropped_write"`
	DroppedMarshal  int64 `json:"dropped_marshal"`

	// Inbound failures
	PacketsRejected   int64 `json:"packets_rejected"`
	InboundDiscarded  int64 `json:"inbound_discarded"`
	InboundExpired    int64 `json:"inbound_expired"`
	UnmarshalFailures int64 `json:"unmarshal_failures"`
	HandlerErrors     int64 `json:"handler_errors"`
	Unhandled         int64 `json:"unhandled"`

	ActiveHandlers int `json:"active_handlers"`
	Pending        int `json:"pending"`
}

// Dropped returns the total number of outbound messages dropped
func (s Stats) Dropped() int64 {
	return s.DroppedNoFifo + s.DroppedDeadPeer + s.DroppedNoReader +
		s.DroppedTimeout + s.DroppedWrite + s.DroppedMarshal
}

// String returns a string representation of the stats
func (s Stats) String() string {
	return fmt.Sprintf("Stats{Queued: %d, Sent: %d/%d pkts, Received: %d/%d pkts, Dropped: %d, Rejected: %d, Discarded: %d, Expired: %d, Pending: %d, Handlers: %d}",
		s.MessagesQueued, s.MessagesSent, s.PacketsSent,
		s.MessagesReceived, s.PacketsReceived,
		s.Dropped(), s.PacketsRejected, s.InboundDiscarded, s.InboundExpired,
		s.Pending, s.ActiveHandlers)
}

type counters struct {
	messagesQueued   atomic.Int64
	messagesSent     atomic.Int64
	packetsSent      atomic.Int64
	messagesReceived atomic.Int64
	packetsReceived  atomic.Int64

	droppedNoFifo   atomic.Int64
	droppedDeadPeer atomic.Int64
	droppedNoReader atomic.Int64
	droppedTimeout  atomic.Int64
	droppedWrite    atomic.Int64
	droppedMarshal  atomic.Int64

	packetsRejected   atomic.Int64
	inboundDiscarded  atomic.Int64
	inboundExpired    atomic.Int64
	unmarshalFailures atomic.Int64
	handlerErrors     atomic.Int64
	unhandled         atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		MessagesQueued:    c.messagesQueued.Load(),
		MessagesSent:      c.messagesSent.Load(),
		PacketsSent:       c.packetsSent.Load(),
		MessagesReceived:  c.messagesReceived.Load(),
		PacketsReceived:   c.packetsReceived.Load(),
		DroppedNoFifo:     c.droppedNoFifo.Load(),
		DroppedDeadPeer:   c.droppedDeadPeer.Load(),
		DroppedNoReader:   c.droppedNoReader.Load(),
		DroppedTimeout:    c.droppedTimeout.Load(),
		DroppedWrite:      c.droppedWrite.Load(),
		DroppedMarshal:    c.droppedMarshal.Load(),
		PacketsRejected:   c.packetsRejected.Load(),
		InboundDiscarded:  c.inboundDiscarded.Load(),
		InboundExpired:    c.inboundExpired.Load(),
		UnmarshalFailures: c.unmarshalFailures.Load(),
		HandlerErrors:     c.handlerErrors.Load(),
		Unhandled:         c.unhandled.Load(),
	}
}
