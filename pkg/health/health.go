// Package health exposes the state of a FIFO queue through the gRPC health
// checking protocol on a unix socket.
package health

import (
	"context"
	"sync"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/baaaht/fifoipc/internal/logger"
	"github.com/baaaht/fifoipc/pkg/ipc"
	"github.com/baaaht/fifoipc/pkg/types"
)

// QueueService is the service name under which a tracked queue reports
const QueueService = "fifoipc.Queue"

// Server implements the gRPC health checking protocol
// See https://github.com/grpc/grpc/blob/master/doc/health-checking.md
type Server struct {
	grpc_health_v1.UnimplementedHealthServer
	logger   *logger.Logger
	mu       sync.RWMutex
	statuses map[string]grpc_health_v1.HealthCheckResponse_ServingStatus
	watchers map[string]map[chan grpc_health_v1.HealthCheckResponse_ServingStatus]struct{}
	shutdown bool
}

// NewServer creates a health server. The overall ("") service starts SERVING.
func NewServer(log *logger.Logger) *Server {
	if log == nil {
		log = logger.Global()
	}
	s := &Server{
		logger: log.With("component", "health_server"),
		statuses: map[string]grpc_health_v1.HealthCheckResponse_ServingStatus{
			"": grpc_health_v1.HealthCheckResponse_SERVING,
		},
		watchers: make(map[string]map[chan grpc_health_v1.HealthCheckResponse_ServingStatus]struct{}),
	}
	return s
}

// Check implements the health check RPC
func (s *Server) Check(ctx context.Context, req *grpc_health_v1.HealthCheckRequest) (*grpc_health_v1.HealthCheckResponse, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.shutdown {
		return &grpc_health_v1.HealthCheckResponse{Status: grpc_health_v1.HealthCheckResponse_NOT_SERVING}, nil
	}
	st, ok := s.statuses[req.GetService()]
	if !ok {
		s.logger.Debug("Health check for unknown service", "service", req.GetService())
		return nil, status.Error(codes.NotFound, "unknown service")
	}
	return &grpc_health_v1.HealthCheckResponse{Status: st}, nil
}

// Watch streams the status of a service, sending the current value first and
// then every change until the client goes away
func (s *Server) Watch(req *grpc_health_v1.HealthCheckRequest, stream grpc_health_v1.Health_WatchServer) error {
	service := req.GetService()
	updates := make(chan grpc_health_v1.HealthCheckResponse_ServingStatus, 1)

	s.mu.Lock()
	updates <- s.statusLocked(service)
	if s.watchers[service] == nil {
		s.watchers[service] = make(map[chan grpc_health_v1.HealthCheckResponse_ServingStatus]struct{})
	}
	s.watchers[service][updates] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.watchers[service], updates)
		if len(s.watchers[service]) == 0 {
			delete(s.watchers, service)
		}
		s.mu.Unlock()
	}()

	var last grpc_health_v1.HealthCheckResponse_ServingStatus = -1
	for {
		select {
		case <-stream.Context().Done():
			return status.FromContextError(stream.Context().Err()).Err()
		case st := <-updates:
			if st == last {
				continue
			}
			last = st
			if err := stream.Send(&grpc_health_v1.HealthCheckResponse{Status: st}); err != nil {
				return err
			}
		}
	}
}

// statusLocked must be called with the lock held. Unknown services report
// SERVICE_UNKNOWN, as Watch requires.
func (s *Server) statusLocked(service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
	if s.shutdown {
		return grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	st, ok := s.statuses[service]
	if !ok {
		return grpc_health_v1.HealthCheckResponse_SERVICE_UNKNOWN
	}
	return st
}

// SetServingStatus sets the serving status of the given service and notifies
// watchers. It is a no-op after Shutdown.
func (s *Server) SetServingStatus(service string, st grpc_health_v1.HealthCheckResponse_ServingStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return
	}
	old := s.statuses[service]
	s.statuses[service] = st
	s.notifyLocked(service, st)

	s.logger.Info("Health status updated",
		"service", service,
		"old_status", old.String(),
		"new_status", st.String())
}

func (s *Server) notifyLocked(service string, st grpc_health_v1.HealthCheckResponse_ServingStatus) {
	for ch := range s.watchers[service] {
		// keep only the newest status in the one-slot buffer
		select {
		case <-ch:
		default:
		}
		ch <- st
	}
}

// GetStatus returns the current status of a service
func (s *Server) GetStatus(service string) grpc_health_v1.HealthCheckResponse_ServingStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.statusLocked(service)
}

// Shutdown puts every service into NOT_SERVING permanently
func (s *Server) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.shutdown {
		return
	}
	s.shutdown = true
	for service := range s.watchers {
		s.notifyLocked(service, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}
	s.logger.Info("Health server shutdown")
}

// Track reports q under QueueService until ctx is done: SERVING while the
// queue runs, NOT_SERVING once its worker exits. The returned channel is
// closed when tracking stops.
func (s *Server) Track(ctx context.Context, q *ipc.Queue) <-chan struct{} {
	stopped := make(chan struct{})

	if q.State() == types.StatusRunning {
		s.SetServingStatus(QueueService, grpc_health_v1.HealthCheckResponse_SERVING)
	} else {
		s.SetServingStatus(QueueService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}

	go func() {
		defer close(stopped)
		select {
		case <-ctx.Done():
			return
		case <-q.Done():
		}
		if err := q.Err(); err != nil {
			s.logger.Warn("Queue worker failed", "pid", q.CurrentProcessID(), "error", err)
		}
		s.SetServingStatus(QueueService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	}()
	return stopped
}
