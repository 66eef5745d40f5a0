package ipc

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/baaaht/fifoipc/internal/config"
	"github.com/baaaht/fifoipc/internal/logger"
	"github.com/baaaht/fifoipc/pkg/types"
	"github.com/baaaht/fifoipc/pkg/wire"
)

const (
	testPrefix = "test"
	waitFor    = 5 * time.Second
	tick       = 2 * time.Millisecond
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewWithWriter(io.Discard, config.LoggingConfig{Level: "debug", Format: "text"})
	require.NoError(t, err)
	return log
}

func testQueueConfig(dir string) config.QueueConfig {
	cfg := config.DefaultQueueConfig()
	cfg.Dir = dir
	cfg.Prefix = testPrefix
	cfg.CatchSignals = false
	return cfg
}

func alwaysAlive(types.ProcessID) bool { return true }

// newTestQueue creates and initializes a queue posing as pid. Every queue in
// a test runs inside the test process, so liveness is faked by default.
func newTestQueue(t *testing.T, dir string, pid types.ProcessID, opts ...Option) *Queue {
	t.Helper()
	return newTestQueueWithConfig(t, testQueueConfig(dir), pid, opts...)
}

func newTestQueueWithConfig(t *testing.T, cfg config.QueueConfig, pid types.ProcessID, opts ...Option) *Queue {
	t.Helper()
	opts = append([]Option{WithProcessID(pid), WithLivenessProbe(alwaysAlive)}, opts...)
	q, err := New(cfg, testLogger(t), opts...)
	require.NoError(t, err)
	require.NoError(t, q.Init())
	t.Cleanup(func() { _ = q.Terminate() })
	return q
}

// collector records every message it handles
type collector struct {
	mu   sync.Mutex
	msgs []*Message
}

func (c *collector) HandleMessage(_ context.Context, msg *Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *collector) all() []*Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Message(nil), c.msgs...)
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

// fakeClock is a manually advanced time source
type fakeClock struct {
	now atomic.Int64
}

func newFakeClock() *fakeClock {
	c := &fakeClock{}
	c.now.Store(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano())
	return c
}

func (c *fakeClock) Now() time.Time { return time.Unix(0, c.now.Load()) }

func (c *fakeClock) Advance(d time.Duration) { c.now.Add(int64(d)) }

// writePacket writes one raw packet into the FIFO at path
func writePacket(t *testing.T, path string, h wire.Header, payload []byte) {
	t.Helper()
	pkt, err := wire.EncodePacket(h, payload)
	require.NoError(t, err)
	writeRaw(t, path, pkt)
}

func writeRaw(t *testing.T, path string, b []byte) {
	t.Helper()
	fd, err := unix.Open(path, unix.O_WRONLY|unix.O_NONBLOCK, 0)
	require.NoError(t, err)
	defer unix.Close(fd)
	n, err := unix.Write(fd, b)
	require.NoError(t, err)
	require.Equal(t, len(b), n)
}

func pattern(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i % 256)
	}
	return b
}
