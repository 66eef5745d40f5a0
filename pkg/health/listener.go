package health

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/baaaht/fifoipc/internal/logger"
	"github.com/baaaht/fifoipc/pkg/types"
)

// DefaultShutdownTimeout bounds the graceful stop of the listener
const DefaultShutdownTimeout = 5 * time.Second

// Listener serves a health Server over a unix domain socket
type Listener struct {
	path     string
	health   *Server
	server   *grpc.Server
	listener net.Listener
	logger   *logger.Logger
	mu       sync.Mutex
	started  bool
	closed   bool
	wg       sync.WaitGroup
}

// NewListener prepares a gRPC server for health on path. A stale socket or
// regular file at path is removed; anything else is refused.
func NewListener(path string, health *Server, log *logger.Logger) (*Listener, error) {
	if log == nil {
		log = logger.Global()
	}
	if fi, err := os.Lstat(path); err == nil {
		mode := fi.Mode()
		if mode&os.ModeSocket == 0 && !mode.IsRegular() {
			return nil, types.NewError(types.ErrCodeInvalidArgument,
				fmt.Sprintf("existing path at %s is of unsafe type %v; refusing to remove", path, mode))
		}
		if err := os.Remove(path); err != nil {
			return nil, types.WrapError(types.ErrCodeInternal, "failed to remove existing socket", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, types.WrapError(types.ErrCodeInternal, "failed to stat socket path", err)
	}

	server := grpc.NewServer(grpc.Creds(insecure.NewCredentials()))
	grpc_health_v1.RegisterHealthServer(server, health)

	return &Listener{
		path:   path,
		health: health,
		server: server,
		logger: log.With("component", "health_listener", "socket_path", path),
	}, nil
}

// Start begins serving in the background
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return types.NewError(types.ErrCodeUnavailable, "listener is closed")
	}
	if l.started {
		return types.NewError(types.ErrCodeAlreadyExists, "listener already started")
	}

	ln, err := net.Listen("unix", l.path)
	if err != nil {
		return types.WrapError(types.ErrCodeInternal, "failed to listen on socket", err)
	}
	if err := os.Chmod(l.path, 0o600); err != nil {
		_ = ln.Close()
		return types.WrapError(types.ErrCodeInternal, "failed to set socket permissions", err)
	}
	l.listener = ln
	l.started = true

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if err := l.server.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			l.logger.Error("Health server error", "error", err)
		}
	}()

	l.logger.Info("Health listener started")
	return nil
}

// Stop marks every service NOT_SERVING, stops the gRPC server and removes
// the socket. Calling Stop more than once is harmless.
func (l *Listener) Stop() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	started := l.started
	l.mu.Unlock()

	l.health.Shutdown()

	done := make(chan struct{})
	go func() {
		l.server.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(DefaultShutdownTimeout):
		l.logger.Warn("Health server shutdown timeout, stopping immediately")
		l.server.Stop()
	}
	l.wg.Wait()

	if started {
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			l.logger.Warn("Failed to remove socket file", "error", err)
		}
	}
	l.logger.Info("Health listener stopped")
}

// SocketPath returns the unix socket path
func (l *Listener) SocketPath() string {
	return l.path
}

// Probe connects to a health socket and checks service
func Probe(ctx context.Context, socketPath, service string) (grpc_health_v1.HealthCheckResponse_ServingStatus, error) {
	conn, err := grpc.NewClient("unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return grpc_health_v1.HealthCheckResponse_UNKNOWN, types.WrapError(types.ErrCodeUnavailable, "failed to connect to "+socketPath, err)
	}
	defer conn.Close()

	resp, err := grpc_health_v1.NewHealthClient(conn).Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: service})
	if err != nil {
		return grpc_health_v1.HealthCheckResponse_UNKNOWN, types.WrapError(types.ErrCodeUnavailable, "health check failed", err)
	}
	return resp.GetStatus(), nil
}
