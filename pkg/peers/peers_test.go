package peers

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/baaaht/fifoipc/pkg/ipc"
	"github.com/baaaht/fifoipc/pkg/types"
)

func TestParseName(t *testing.T) {
	tests := []struct {
		name  string
		want  types.ProcessID
		match bool
	}{
		{"baaaht1234.ipc1", 1234, true},
		{"baaaht1234.ipc2", 0, false},
		{"other1234.ipc1", 0, false},
		{"baaaht.ipc1", 0, false},
		{"baaahtabc.ipc1", 0, false},
		{"baaaht0.ipc1", 0, false},
	}
	for _, tt := range tests {
		pid, ok := ParseName("baaaht", tt.name)
		assert.Equal(t, tt.match, ok, tt.name)
		assert.Equal(t, tt.want, pid, tt.name)
	}
}

func TestList(t *testing.T) {
	dir := t.TempDir()
	self := types.ProcessID(os.Getpid())

	require.NoError(t, unix.Mkfifo(ipc.FifoPath(dir, "p", self), 0600))
	require.NoError(t, unix.Mkfifo(ipc.FifoPath(dir, "p", 2147483000), 0600))
	require.NoError(t, unix.Mkfifo(filepath.Join(dir, "unrelated"), 0600))
	require.NoError(t, os.WriteFile(ipc.FifoPath(dir, "p", 77), []byte("regular file"), 0600))

	got, err := List(dir, "p")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, self, got[0].PID)
	assert.True(t, got[0].Alive)
	assert.Equal(t, types.ProcessID(2147483000), got[1].PID)
	assert.False(t, got[1].Alive)
	assert.Contains(t, got[1].String(), "stale")
}

func TestListMissingDir(t *testing.T) {
	_, err := List(filepath.Join(t.TempDir(), "missing"), "p")
	require.Error(t, err)
	assert.True(t, types.IsErrCode(err, types.ErrCodeNotFound))
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu     sync.Mutex
		events []Event
	)
	errCh := make(chan error, 1)
	go func() {
		errCh <- Watch(ctx, dir, "p", 10*time.Millisecond, nil, func(e Event) {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
		})
	}()
	seen := func() []Event {
		mu.Lock()
		defer mu.Unlock()
		return append([]Event(nil), events...)
	}

	// give the watcher time to register
	time.Sleep(50 * time.Millisecond)
	path := ipc.FifoPath(dir, "p", 4242)
	require.NoError(t, unix.Mkfifo(path, 0600))

	require.Eventually(t, func() bool { return len(seen()) == 1 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, Joined, seen()[0].Kind)
	assert.Equal(t, types.ProcessID(4242), seen()[0].Peer.PID)

	require.NoError(t, os.Remove(path))
	require.Eventually(t, func() bool { return len(seen()) == 2 }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, Left, seen()[1].Kind)

	cancel()
	require.NoError(t, <-errCh)
}
