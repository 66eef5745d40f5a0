// Package peers discovers processes taking part in FIFO IPC by looking at
// the FIFO directory.
package peers

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/baaaht/fifoipc/pkg/ipc"
	"github.com/baaaht/fifoipc/pkg/types"
	"github.com/baaaht/fifoipc/pkg/wire"
)

// Peer is one FIFO found in the directory
type Peer struct {
	PID   types.ProcessID `json:"pid"`
	Path  string          `json:"path"`
	Alive bool            `json:"alive"`
}

// String returns a string representation of the peer
func (p Peer) String() string {
	state := "stale"
	if p.Alive {
		state = "alive"
	}
	return fmt.Sprintf("%s\t%s\t%s", p.PID, state, p.Path)
}

// ParseName extracts the process id from a FIFO file name of the current
// header version
func ParseName(prefix, name string) (types.ProcessID, bool) {
	rest, ok := strings.CutPrefix(name, prefix)
	if !ok {
		return 0, false
	}
	digits, ok := strings.CutSuffix(rest, fmt.Sprintf(".ipc%d", wire.HeaderVersion))
	if !ok || digits == "" {
		return 0, false
	}
	pid, err := types.ParseProcessID(digits)
	if err != nil {
		return 0, false
	}
	return pid, true
}

// List returns the peers in dir sorted by process id. Files that are not
// FIFOs or do not match the naming scheme are skipped.
func List(dir, prefix string) ([]Peer, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, types.WrapError(types.ErrCodeNotFound, "failed to read fifo directory "+dir, err)
	}

	var out []Peer
	for _, e := range entries {
		if e.Type()&os.ModeNamedPipe == 0 {
			continue
		}
		pid, ok := ParseName(prefix, e.Name())
		if !ok {
			continue
		}
		out = append(out, Peer{
			PID:   pid,
			Path:  ipc.FifoPath(dir, prefix, pid),
			Alive: ipc.ProcessAlive(pid),
		})
	}
	slices.SortFunc(out, func(a, b Peer) int { return int(a.PID) - int(b.PID) })
	return out, nil
}
