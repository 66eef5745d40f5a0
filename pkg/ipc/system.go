package ipc

import (
	"os"
	"sync"

	"github.com/baaaht/fifoipc/internal/config"
	"github.com/baaaht/fifoipc/internal/logger"
	"github.com/baaaht/fifoipc/pkg/types"
)

// process-wide queue
var (
	systemMu     sync.Mutex
	systemQueue  *Queue
	systemPid    int
	systemCfg    = config.DefaultQueueConfig()
	systemLogger *logger.Logger
	systemOpts   []Option

	// getpid is replaced in tests to simulate running as a different process
	getpid = os.Getpid
)

// CurrentProcessID returns the id of the running process
func CurrentProcessID() types.ProcessID {
	return types.ProcessID(getpid())
}

// InitSystem sets the configuration used to build the process-wide queue.
// It does not create the queue; System does that on first use. An existing
// system queue is terminated so the next System call picks up cfg.
func InitSystem(cfg config.QueueConfig, log *logger.Logger, opts ...Option) {
	systemMu.Lock()
	defer systemMu.Unlock()

	terminateSystemLocked()
	systemCfg = cfg
	systemLogger = log
	systemOpts = opts
}

// System returns the process-wide queue, creating and initializing it on
// first use. If the process id changed since it was created, the old queue
// is discarded and a new one is built for the current id.
func System() (*Queue, error) {
	systemMu.Lock()
	defer systemMu.Unlock()

	pid := getpid()
	if systemQueue != nil && systemPid == pid && systemQueue.Err() == nil {
		return systemQueue, nil
	}

	if systemQueue != nil {
		if systemPid != pid {
			logger.Info("Process id changed, recreating message queue", "component", "ipc_system",
				"old_pid", systemPid, "pid", pid)
		}
		terminateSystemLocked()
	}

	opts := append([]Option{WithProcessID(types.ProcessID(pid))}, systemOpts...)
	q, err := New(systemCfg, systemLogger, opts...)
	if err != nil {
		return nil, err
	}
	if err := q.Init(); err != nil {
		return nil, err
	}

	systemQueue = q
	systemPid = pid
	return q, nil
}

// ResetSystem terminates the process-wide queue. The next System call
// creates a fresh one.
func ResetSystem() {
	systemMu.Lock()
	defer systemMu.Unlock()
	terminateSystemLocked()
}

func terminateSystemLocked() {
	if systemQueue == nil {
		return
	}
	if err := systemQueue.Terminate(); err != nil {
		logger.Warn("Failed to terminate message queue", "component", "ipc_system", "error", err)
	}
	systemQueue = nil
	systemPid = 0
}
