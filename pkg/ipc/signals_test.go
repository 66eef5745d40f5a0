package ipc

import (
	"os"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// fakeSignals records what the guard asks of the runtime
type fakeSignals struct {
	mu       sync.Mutex
	ch       chan<- os.Signal
	notified []os.Signal
	current  []os.Signal
	reset    []os.Signal
	raised   []syscall.Signal
	stopped  bool
}

func newFakeGuard(f *fakeSignals, ignored ...os.Signal) *signalGuard {
	g := newSignalGuard()
	g.notify = func(c chan<- os.Signal, sig ...os.Signal) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.ch = c
		f.notified = append(f.notified, sig...)
		f.current = append([]os.Signal(nil), sig...)
	}
	g.stopNotify = func(chan<- os.Signal) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.stopped = true
	}
	g.reset = func(sig ...os.Signal) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.reset = append(f.reset, sig...)
	}
	g.ignored = func(sig os.Signal) bool {
		for _, s := range ignored {
			if s == sig {
				return true
			}
		}
		return false
	}
	g.raise = func(sig syscall.Signal) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.raised = append(f.raised, sig)
		return nil
	}
	return g
}

func (f *fakeSignals) raisedCopy() []syscall.Signal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]syscall.Signal(nil), f.raised...)
}

func TestSignalGuardInstallPolicy(t *testing.T) {
	f := &fakeSignals{}
	g := newFakeGuard(f, unix.SIGALRM)

	id := g.add(func() {}, []os.Signal{unix.SIGUSR1, unix.SIGINT})
	defer g.remove(id)

	assert.Contains(t, f.notified, os.Signal(unix.SIGHUP))
	assert.Contains(t, f.notified, os.Signal(unix.SIGTERM))
	assert.Contains(t, f.notified, os.Signal(unix.SIGINT), "always-guarded signals are caught even when the app handles them")
	assert.Contains(t, f.notified, os.Signal(unix.SIGUSR2))
	assert.NotContains(t, f.notified, os.Signal(unix.SIGUSR1), "app-handled signals are left to the app")
	assert.NotContains(t, f.notified, os.Signal(unix.SIGALRM), "ignored signals stay ignored")
}

func (f *fakeSignals) currentCopy() []os.Signal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]os.Signal(nil), f.current...)
}

func (g *signalGuard) ownsSignal(sig syscall.Signal) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.owned[sig]
}

func TestSignalGuardMergesPassthrough(t *testing.T) {
	f := &fakeSignals{}
	g := newFakeGuard(f)

	id1 := g.add(func() {}, nil)
	defer g.remove(id1)
	assert.Contains(t, f.currentCopy(), os.Signal(unix.SIGUSR1))
	assert.True(t, g.ownsSignal(unix.SIGINT))

	id2 := g.add(func() {}, []os.Signal{unix.SIGUSR1, unix.SIGINT})
	assert.NotContains(t, f.currentCopy(), os.Signal(unix.SIGUSR1), "a later queue's app-handled signals are released")
	assert.Contains(t, f.currentCopy(), os.Signal(unix.SIGINT))
	assert.False(t, g.ownsSignal(unix.SIGINT), "app-handled signals are no longer re-raised")

	g.remove(id2)
	assert.True(t, g.installed())
	assert.Contains(t, f.currentCopy(), os.Signal(unix.SIGUSR1))
	assert.True(t, g.ownsSignal(unix.SIGINT))
}

func TestSignalGuardHandle(t *testing.T) {
	f := &fakeSignals{}
	g := newFakeGuard(f)

	var mu sync.Mutex
	cleaned := 0
	cleanup := func() {
		mu.Lock()
		cleaned++
		mu.Unlock()
	}
	id1 := g.add(cleanup, []os.Signal{unix.SIGINT})
	id2 := g.add(cleanup, nil)

	g.handle(unix.SIGTERM)
	assert.Equal(t, 2, cleaned)
	assert.Equal(t, []syscall.Signal{unix.SIGTERM}, f.raisedCopy())
	assert.Equal(t, []os.Signal{unix.SIGTERM}, f.reset)

	g.handle(unix.SIGINT)
	assert.Equal(t, 4, cleaned)
	assert.Len(t, f.raisedCopy(), 1, "signals the app handles are not re-raised")

	g.remove(id1)
	assert.True(t, g.installed())
	g.remove(id2)
	assert.False(t, g.installed())
	assert.True(t, f.stopped)
}

func TestSignalGuardDelivery(t *testing.T) {
	f := &fakeSignals{}
	g := newFakeGuard(f)

	done := make(chan struct{})
	id := g.add(func() { close(done) }, nil)
	defer g.remove(id)

	f.mu.Lock()
	ch := f.ch
	f.mu.Unlock()
	require.NotNil(t, ch)
	ch <- unix.SIGHUP

	select {
	case <-done:
	case <-time.After(waitFor):
		t.Fatal("cleanup did not run")
	}
	require.Eventually(t, func() bool { return len(f.raisedCopy()) == 1 }, waitFor, tick)
	assert.Equal(t, unix.SIGHUP, f.raisedCopy()[0])
}

func TestSignalGuardCleanupRemovesFifo(t *testing.T) {
	f := &fakeSignals{}
	orig := guard
	guard = newFakeGuard(f)
	t.Cleanup(func() { guard = orig })

	cfg := testQueueConfig(t.TempDir())
	cfg.CatchSignals = true
	q := newTestQueueWithConfig(t, cfg, pidA)
	assert.True(t, guard.installed())

	guard.handle(unix.SIGTERM)
	_, err := os.Stat(q.FifoPath())
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, []syscall.Signal{unix.SIGTERM}, f.raisedCopy())

	require.NoError(t, q.Terminate())
	assert.False(t, guard.installed())
}
