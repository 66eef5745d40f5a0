// Package ipc implements a cross-process message queue over named pipes.
//
// Every participating process owns one FIFO, named after its process id, in
// a shared directory. A process sends to a peer by writing packets into the
// peer's FIFO and receives by reading its own. There is no broker; the
// filesystem namespace is the only registry.
//
// Each packet is a wire.Header followed by at most wire.PacketCapacity bytes
// of payload, so a single write never exceeds PIPE_BUF and concurrent senders
// never interleave. Larger messages are split into sequenced packets and
// reassembled per source on the receiving side.
//
// A Queue runs one background worker that owns all descriptor I/O. Send only
// appends to an in-memory outbound table and wakes the worker through a
// self-pipe; it never blocks on a peer. Completed inbound messages are
// decoded with the configured codec and dispatched synchronously on the
// worker to the handler registered for their type.
//
// Delivery is best effort. Messages to a process without a FIFO, to a dead
// process, or to a peer whose pipe stays full for longer than the outbound
// timeout are dropped, logged and counted in Stats; Send never reports them.
//
// Example usage:
//
//	q, err := ipc.New(cfg.Queue, log)
//	if err != nil {
//	    return err
//	}
//	q.RegisterHandler(42, ipc.MessageHandlerFunc(func(ctx context.Context, msg *ipc.Message) error {
//	    fmt.Printf("from %s: %v\n", msg.Source, msg.Payload)
//	    return nil
//	}))
//	if err := q.Init(); err != nil {
//	    return err
//	}
//	defer q.Terminate()
//
//	if err := q.Send(peer, 42, []byte("hello")); err != nil {
//	    return err
//	}
package ipc
