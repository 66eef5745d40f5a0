package peers

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/baaaht/fifoipc/internal/logger"
	"github.com/baaaht/fifoipc/pkg/types"
)

// EventKind says whether a peer appeared or went away
type EventKind string

const (
	Joined EventKind = "joined"
	Left   EventKind = "left"
)

// Event reports a change in the peer set
type Event struct {
	Kind EventKind
	Peer Peer
}

// String returns a string representation of the event
func (e Event) String() string {
	return fmt.Sprintf("%s %s", e.Kind, e.Peer.PID)
}

// Watch reports peers joining and leaving dir until ctx is done. Bursts of
// filesystem events are coalesced for debounce and then resolved by
// rescanning the directory, so a FIFO replaced in place yields no event.
func Watch(ctx context.Context, dir, prefix string, debounce time.Duration, log *logger.Logger, fn func(Event)) error {
	if log == nil {
		log = logger.Global()
	}
	log = log.With("component", "peer_watcher", "dir", dir)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return types.WrapError(types.ErrCodeInternal, "failed to create watcher", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return types.WrapError(types.ErrCodeInternal, "failed to watch "+dir, err)
	}

	known, err := snapshot(dir, prefix)
	if err != nil {
		return err
	}
	log.Debug("Watching for peers", "peers", len(known))

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if _, match := ParseName(prefix, filepath.Base(ev.Name)); !match {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("Watcher error", "error", err)

		case <-fire:
			fire = nil
			current, err := snapshot(dir, prefix)
			if err != nil {
				return err
			}
			for _, e := range diff(known, current) {
				fn(e)
			}
			known = current
		}
	}
}

func snapshot(dir, prefix string) (map[types.ProcessID]Peer, error) {
	list, err := List(dir, prefix)
	if err != nil {
		return nil, err
	}
	out := make(map[types.ProcessID]Peer, len(list))
	for _, p := range list {
		out[p.PID] = p
	}
	return out, nil
}

func diff(before, after map[types.ProcessID]Peer) []Event {
	var events []Event
	for pid, p := range after {
		if _, ok := before[pid]; !ok {
			events = append(events, Event{Kind: Joined, Peer: p})
		}
	}
	for pid, p := range before {
		if _, ok := after[pid]; !ok {
			events = append(events, Event{Kind: Left, Peer: p})
		}
	}
	return events
}
