package ipc

import (
	"errors"
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"

	"github.com/baaaht/fifoipc/pkg/types"
	"github.com/baaaht/fifoipc/pkg/wire"
)

// FifoPath returns the inbound FIFO path of pid: <dir>/<prefix><pid>.ipc<version>
func FifoPath(dir, prefix string, pid types.ProcessID) string {
	return filepath.Join(dir, fmt.Sprintf("%s%d.ipc%d", prefix, pid, wire.HeaderVersion))
}

// fileID identifies the FIFO this queue created, so a file later put in its
// place by someone else is never unlinked
type fileID struct {
	dev uint64
	ino uint64
}

func statID(path string) (fileID, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return fileID{}, err
	}
	return fileID{dev: uint64(st.Dev), ino: uint64(st.Ino)}, nil
}

// makeFifo creates a FIFO at path, replacing a stale file left by an earlier
// process that had the same id
func makeFifo(path string) (stale bool, err error) {
	err = unix.Mkfifo(path, 0600)
	if errors.Is(err, unix.EEXIST) {
		stale = true
		if err := unix.Unlink(path); err != nil && !errors.Is(err, unix.ENOENT) {
			return stale, fmt.Errorf("unlink stale fifo: %w", err)
		}
		err = unix.Mkfifo(path, 0600)
	}
	if err != nil {
		return stale, fmt.Errorf("mkfifo %s: %w", path, err)
	}
	return stale, nil
}

// fifoExists reports whether anything exists at path
func fifoExists(path string) bool {
	return unix.Access(path, unix.F_OK) == nil
}

// ProcessAlive probes pid with signal 0. EPERM means the process exists but
// belongs to someone else.
func ProcessAlive(pid types.ProcessID) bool {
	err := unix.Kill(int(pid), 0)
	return err == nil || errors.Is(err, unix.EPERM)
}

// wakePipe is a non-blocking self-pipe used to interrupt the worker's poll
type wakePipe struct {
	r, w int
}

func newWakePipe() (*wakePipe, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, fmt.Errorf("pipe: %w", err)
	}
	for _, fd := range fds {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = unix.Close(fds[0])
			_ = unix.Close(fds[1])
			return nil, fmt.Errorf("set nonblock: %w", err)
		}
	}
	return &wakePipe{r: fds[0], w: fds[1]}, nil
}

// signal writes one byte. A full pipe already holds a pending wakeup, so
// EAGAIN is not an error.
func (p *wakePipe) signal(b byte) error {
	for {
		_, err := unix.Write(p.w, []byte{b})
		switch {
		case err == nil, errors.Is(err, unix.EAGAIN):
			return nil
		case errors.Is(err, unix.EINTR):
			continue
		default:
			return err
		}
	}
}

// drain consumes all pending bytes and reports whether a quit byte was seen
func (p *wakePipe) drain() (quit bool, err error) {
	var buf [64]byte
	for {
		n, err := unix.Read(p.r, buf[:])
		if err != nil {
			if errors.Is(err, unix.EAGAIN) {
				return quit, nil
			}
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return quit, err
		}
		if n == 0 {
			return quit, nil
		}
		for _, b := range buf[:n] {
			if b == wakeQuit {
				quit = true
			}
		}
	}
}

func (p *wakePipe) close() {
	_ = unix.Close(p.r)
	_ = unix.Close(p.w)
}

const (
	wakeOutbound byte = 'o'
	wakeQuit     byte = 'q'
)

// readFull reads exactly len(b) bytes from a non-blocking fd. Packets are
// written atomically, so once a header is readable its body is too; running
// out of data mid-packet means framing has been lost.
func readFull(fd int, b []byte) error {
	for off := 0; off < len(b); {
		n, err := unix.Read(fd, b[off:])
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("read after %d of %d bytes: %w", off, len(b), err)
		}
		if n == 0 {
			return fmt.Errorf("read after %d of %d bytes: %w", off, len(b), errShortRead)
		}
		off += n
	}
	return nil
}

// discardAll drains fd until it would block
func discardAll(fd int) (int, error) {
	var (
		buf   [64 << 10]byte
		total int
	)
	for {
		n, err := unix.Read(fd, buf[:])
		if err != nil {
			if errors.Is(err, unix.EAGAIN) {
				return total, nil
			}
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return total, err
		}
		if n == 0 {
			return total, nil
		}
		total += n
	}
}
