package ipc

import (
	"context"
	"errors"

	"golang.org/x/sys/unix"
)

const (
	pollWake = iota
	pollFifo
)

// run is the worker loop. It owns every descriptor read and write after
// Init. Poll only uses a timeout while outbound data is waiting on a full
// pipe; otherwise it sleeps until a wakeup byte or inbound data arrives.
func (q *Queue) run(ctx context.Context) {
	defer close(q.done)
	close(q.started)

	fds := []unix.PollFd{
		pollWake: {Fd: int32(q.wake.r), Events: unix.POLLIN},
		pollFifo: {Fd: int32(q.fifoFd), Events: unix.POLLIN},
	}
	retry := max(1, int(q.cfg.RetryInterval.Milliseconds()))

	for {
		timeout := -1
		if q.hasOutbound() {
			timeout = retry
		}

		for i := range fds {
			fds[i].Revents = 0
		}
		if _, err := unix.Poll(fds, timeout); err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			q.fail("poll", err)
			return
		}

		if fds[pollWake].Revents&unix.POLLIN != 0 {
			quit, err := q.wake.drain()
			if err != nil {
				q.fail("read wake pipe", err)
				return
			}
			if quit {
				q.logger.Debug("Worker received quit")
				return
			}
		}
		if q.die.Load() {
			return
		}

		if err := q.drainOutbound(); err != nil {
			q.fail("outbound", err)
			return
		}

		if fds[pollFifo].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			if err := q.drainInbound(ctx); err != nil {
				q.fail("inbound", err)
				return
			}
		}
	}
}

func (q *Queue) hasOutbound() bool {
	q.outMu.Lock()
	defer q.outMu.Unlock()
	return !q.outbound.empty()
}

// fail records a fatal worker error. The FIFO is removed right away so peers
// stop sending to a process that no longer reads.
func (q *Queue) fail(op string, err error) {
	q.failure.Store(&err)
	q.logger.Error("Message queue worker stopped", "op", op, "error", err)
	q.unlinkIfOwned()
}
