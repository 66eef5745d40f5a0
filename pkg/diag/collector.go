package diag

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/baaaht/fifoipc/pkg/ipc"
	"github.com/baaaht/fifoipc/pkg/types"
)

type received struct {
	source types.ProcessID
	cmd    string
}

// Collector records diag replies on the requesting side
type Collector struct {
	mu      sync.Mutex
	msgs    []received
	invalid int
	changed chan struct{}
}

// NewCollector creates an empty collector
func NewCollector() *Collector {
	return &Collector{changed: make(chan struct{})}
}

// HandleMessage implements ipc.MessageHandler
func (c *Collector) HandleMessage(_ context.Context, msg *ipc.Message) error {
	cmd, data, err := Decode(msg.Payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, received{source: msg.Source, cmd: cmd})
	if cmd == BigPing && !VerifyBigPing(data) {
		c.invalid++
	}
	close(c.changed)
	c.changed = make(chan struct{})
	return nil
}

// Len returns the number of recorded messages
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

// Count returns the messages matching source and cmd. A zero source or an
// empty cmd matches anything.
func (c *Collector) Count(source types.ProcessID, cmd string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, m := range c.msgs {
		if (source == 0 || m.source == source) && (cmd == "" || m.cmd == cmd) {
			n++
		}
	}
	return n
}

// Invalid returns the number of big pings whose data was corrupt
func (c *Collector) Invalid() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invalid
}

// Reset forgets everything recorded so far
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = nil
	c.invalid = 0
}

// WaitFor blocks until at least n messages are recorded
func (c *Collector) WaitFor(ctx context.Context, n int) error {
	for {
		c.mu.Lock()
		got, changed := len(c.msgs), c.changed
		c.mu.Unlock()

		if got >= n {
			return nil
		}
		select {
		case <-ctx.Done():
			return types.WrapError(types.ErrCodeTimeout, fmt.Sprintf("received %d of %d diag messages", got, n), ctx.Err())
		case <-changed:
		}
	}
}

// RoundTrip sends count pings (or big pings) to dest and waits for every
// reply. It returns the elapsed time.
func RoundTrip(ctx context.Context, s Sender, c *Collector, dest types.ProcessID, big bool, count int) (time.Duration, error) {
	c.Reset()
	start := time.Now()
	for i := 0; i < count; i++ {
		var payload any = Command(Ping)
		if big {
			payload = NewBigPing()
		}
		if err := s.Send(dest, MessageType, payload); err != nil {
			return 0, err
		}
	}
	if err := c.WaitFor(ctx, count); err != nil {
		return 0, err
	}
	if n := c.Count(dest, Error); n > 0 {
		return 0, types.NewError(types.ErrCodeProtocol, fmt.Sprintf("%s rejected %d big pings", dest, n))
	}
	if n := c.Invalid(); n > 0 {
		return 0, types.NewError(types.ErrCodeProtocol, fmt.Sprintf("%d corrupt big ping replies", n))
	}
	return time.Since(start), nil
}
