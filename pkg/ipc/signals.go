package ipc

import (
	"os"
	"os/signal"
	"slices"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/baaaht/fifoipc/internal/logger"
)

// signalPolicy describes how the guard treats one signal. Signals with
// defaultOnly set are left alone when the process ignores them or the
// application declared it handles them itself.
//
// SIGPIPE is not guarded: the runtime turns it into EPIPE for every
// descriptor but stdout and stderr, and the outbound path drops on EPIPE.
type signalPolicy struct {
	sig         syscall.Signal
	defaultOnly bool
}

var guardedSignals = append([]signalPolicy{
	{sig: unix.SIGHUP},
	{sig: unix.SIGINT},
	{sig: unix.SIGTERM},
	{sig: unix.SIGUSR1, defaultOnly: true},
	{sig: unix.SIGUSR2, defaultOnly: true},
	{sig: unix.SIGALRM, defaultOnly: true},
	{sig: unix.SIGVTALRM, defaultOnly: true},
	{sig: unix.SIGPROF, defaultOnly: true},
	{sig: unix.SIGIO, defaultOnly: true},
}, platformSignals...)

// signalGuard removes every live queue's FIFO when the process receives a
// terminating signal. If the guard took over the signal's disposition it
// then restores the default and re-raises, so the process dies the way it
// would have without the guard. Signals the application handles are not
// re-raised; Go delivers them to the application's own channel as well.
//
// The passthrough lists of all registered queues are merged: a signal one
// queue declares as handled by the application is treated that way for all.
type signalGuard struct {
	mu          sync.Mutex
	cleanups    map[uint64]func()
	passthrough map[uint64][]os.Signal
	nextID      uint64
	owned       map[syscall.Signal]bool
	sigs        []os.Signal
	ch          chan os.Signal
	stop        chan struct{}
	stopped     chan struct{}

	notify     func(c chan<- os.Signal, sig ...os.Signal)
	stopNotify func(c chan<- os.Signal)
	reset      func(sig ...os.Signal)
	ignored    func(sig os.Signal) bool
	raise      func(sig syscall.Signal) error
}

var guard = newSignalGuard()

func newSignalGuard() *signalGuard {
	return &signalGuard{
		cleanups:    make(map[uint64]func()),
		passthrough: make(map[uint64][]os.Signal),
		notify:      signal.Notify,
		stopNotify:  signal.Stop,
		reset:       signal.Reset,
		ignored:     signal.Ignored,
		raise: func(sig syscall.Signal) error {
			return unix.Kill(os.Getpid(), sig)
		},
	}
}

// add registers a cleanup and installs the guard if it was idle.
// passthrough lists signals the application handles itself.
func (g *signalGuard) add(cleanup func(), passthrough []os.Signal) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.nextID++
	id := g.nextID
	g.cleanups[id] = cleanup
	g.passthrough[id] = passthrough
	g.apply()
	return id
}

// remove unregisters a cleanup and uninstalls the guard once none remain
func (g *signalGuard) remove(id uint64) {
	g.mu.Lock()
	delete(g.cleanups, id)
	delete(g.passthrough, id)
	var stopped chan struct{}
	switch {
	case g.ch == nil:
	case len(g.cleanups) == 0:
		stopped = g.uninstall()
	default:
		g.apply()
	}
	g.mu.Unlock()

	// the loop may be waiting on g.mu inside handle
	if stopped != nil {
		<-stopped
	}
}

// apply computes the guarded set from the merged passthrough lists and
// installs the guard, or re-registers it when the set changed
func (g *signalGuard) apply() {
	app := make(map[os.Signal]bool)
	for _, list := range g.passthrough {
		for _, s := range list {
			app[s] = true
		}
	}

	owned := make(map[syscall.Signal]bool, len(guardedSignals))
	sigs := make([]os.Signal, 0, len(guardedSignals))
	for _, p := range guardedSignals {
		if p.defaultOnly && (app[p.sig] || g.ignored(p.sig)) {
			continue
		}
		owned[p.sig] = !app[p.sig]
		sigs = append(sigs, p.sig)
	}
	g.owned = owned

	if g.ch == nil {
		g.sigs = sigs
		g.ch = make(chan os.Signal, len(guardedSignals))
		g.stop = make(chan struct{})
		g.stopped = make(chan struct{})
		g.notify(g.ch, sigs...)
		go g.loop(g.ch, g.stop, g.stopped)

		logger.Debug("Signal guard installed", "component", "signal_guard", "signals", len(sigs))
		return
	}

	if slices.Equal(g.sigs, sigs) {
		return
	}
	g.sigs = sigs
	g.stopNotify(g.ch)
	g.notify(g.ch, sigs...)
	logger.Debug("Signal guard updated", "component", "signal_guard", "signals", len(sigs))
}

func (g *signalGuard) uninstall() chan struct{} {
	stopped := g.stopped
	g.stopNotify(g.ch)
	close(g.stop)
	g.ch, g.stop, g.stopped, g.owned, g.sigs = nil, nil, nil, nil, nil

	logger.Debug("Signal guard removed", "component", "signal_guard")
	return stopped
}

func (g *signalGuard) loop(ch <-chan os.Signal, stop <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)
	for {
		select {
		case <-stop:
			return
		case sig := <-ch:
			if s, ok := sig.(syscall.Signal); ok {
				g.handle(s)
			}
		}
	}
}

// handle runs every cleanup and then re-raises sig if the guard owns it
func (g *signalGuard) handle(sig syscall.Signal) {
	g.mu.Lock()
	cleanups := make([]func(), 0, len(g.cleanups))
	for _, fn := range g.cleanups {
		cleanups = append(cleanups, fn)
	}
	owned := g.owned[sig]
	g.mu.Unlock()

	logger.Warn("Signal received, removing fifos", "component", "signal_guard",
		"signal", sig.String(), "queues", len(cleanups), "reraise", owned)

	for _, fn := range cleanups {
		fn()
	}

	if !owned {
		return
	}
	g.reset(sig)
	if err := g.raise(sig); err != nil {
		logger.Error("Failed to re-raise signal", "component", "signal_guard", "signal", sig.String(), "error", err)
	}
}

func (g *signalGuard) installed() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ch != nil
}
