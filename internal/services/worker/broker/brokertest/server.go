// Package brokertest provides an in-memory broker for tests. It keeps
// pending activations per namespace, hands them out one at a time, and
// redelivers RETRY results with the attempt bumped.
package brokertest

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	apperrors "github.com/louisbranch/taskworker/internal/platform/errors"
	"github.com/louisbranch/taskworker/internal/services/worker/broker"
	"github.com/louisbranch/taskworker/internal/services/worker/domain"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

const bufSize = 1 << 20

// Update is one status report received by the server.
type Update struct {
	ID         string
	Status     domain.Status
	Host       string
	Attempt    uint
	RetryDelay time.Duration
	Error      string
}

// Produced is one activation received through ProduceTask.
type Produced struct {
	Topic      string
	Activation domain.Activation
}

// Server is an in-memory ConsumerServer.
type Server struct {
	mu           sync.Mutex
	pending      []broker.ActivationMessage
	inflight     map[string]broker.ActivationMessage
	updates      []Update
	produced     []Produced
	fetchFaults  []error
	reportFaults []error
	notify       chan struct{}
}

var _ broker.ConsumerServer = (*Server)(nil)

// NewServer returns an empty broker.
func NewServer() *Server {
	return &Server{
		inflight: make(map[string]broker.ActivationMessage),
		notify:   make(chan struct{}, 1),
	}
}

// Enqueue adds activation to the pending queue.
func (s *Server) Enqueue(activation domain.Activation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, broker.ActivationToMessage(activation))
}

// FailFetches makes the next fetches fail with err, one per entry.
func (s *Server) FailFetches(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetchFaults = append(s.fetchFaults, errs...)
}

// FailReports makes the next status reports fail with err, one per entry.
func (s *Server) FailReports(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reportFaults = append(s.reportFaults, errs...)
}

// Updates returns the status reports received so far.
func (s *Server) Updates() []Update {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Update(nil), s.updates...)
}

// Produced returns the activations received through ProduceTask.
func (s *Server) Produced() []Produced {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Produced(nil), s.produced...)
}

// Pending reports how many activations wait for delivery.
func (s *Server) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// WaitForUpdates blocks until n status reports arrived or timeout elapses.
func (s *Server) WaitForUpdates(t testing.TB, n int, timeout time.Duration) []Update {
	t.Helper()
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if updates := s.Updates(); len(updates) >= n {
			return updates
		}
		select {
		case <-s.notify:
		case <-deadline.C:
			t.Fatalf("received %d status updates, want %d", len(s.Updates()), n)
			return nil
		}
	}
}

// FetchTask hands out the oldest pending activation matching the namespace.
func (s *Server) FetchTask(_ context.Context, req *broker.FetchTaskRequest) (*broker.FetchTaskResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.fetchFaults) > 0 {
		err := s.fetchFaults[0]
		s.fetchFaults = s.fetchFaults[1:]
		return nil, err
	}
	for i, msg := range s.pending {
		if req.Namespace != "" && msg.Namespace != req.Namespace {
			continue
		}
		s.pending = append(s.pending[:i], s.pending[i+1:]...)
		s.inflight[msg.ID] = msg
		return &broker.FetchTaskResponse{Activation: &msg}, nil
	}
	return nil, apperrors.New(apperrors.CodeNoPendingTask, "no pending task").ToGRPCStatus()
}

// SetTaskStatus records the update. RETRY requeues the activation with the
// next attempt number.
func (s *Server) SetTaskStatus(_ context.Context, req *broker.SetTaskStatusRequest) (*broker.SetTaskStatusResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.reportFaults) > 0 {
		err := s.reportFaults[0]
		s.reportFaults = s.reportFaults[1:]
		return nil, err
	}
	msg, ok := s.inflight[req.ID]
	if !ok {
		return nil, apperrors.WithMetadata(apperrors.CodeNotInflight, "activation is not in flight",
			map[string]string{"id": req.ID}).ToGRPCStatus()
	}
	st, err := domain.ParseStatus(req.Status)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	delete(s.inflight, req.ID)
	s.updates = append(s.updates, Update{
		ID:         req.ID,
		Status:     st,
		Host:       req.Host,
		Attempt:    uint(msg.Attempt),
		RetryDelay: time.Duration(req.RetryDelayMs) * time.Millisecond,
		Error:      req.Error,
	})
	if st == domain.StatusRetry {
		msg.Attempt++
		s.pending = append(s.pending, msg)
	}
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return &broker.SetTaskStatusResponse{}, nil
}

// ProduceTask queues a produced activation for delivery.
func (s *Server) ProduceTask(_ context.Context, req *broker.ProduceTaskRequest) (*broker.ProduceTaskResponse, error) {
	if req.Topic == "" {
		return nil, apperrors.New(apperrors.CodeInvalidActivation, "topic is required").ToGRPCStatus()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.produced = append(s.produced, Produced{Topic: req.Topic, Activation: broker.ActivationFromMessage(req.Activation)})
	s.pending = append(s.pending, req.Activation)
	return &broker.ProduceTaskResponse{}, nil
}

// Harness is a running in-memory broker reachable over bufconn.
type Harness struct {
	Server *Server
	Health *health.Server

	listener *bufconn.Listener
	grpc     *gogrpc.Server
}

// Start runs a broker with a SERVING health service and stops it when the
// test ends.
func Start(t testing.TB) *Harness {
	t.Helper()
	h := &Harness{
		Server:   NewServer(),
		Health:   health.NewServer(),
		listener: bufconn.Listen(bufSize),
		grpc:     gogrpc.NewServer(),
	}
	broker.RegisterConsumerServer(h.grpc, h.Server)
	grpc_health_v1.RegisterHealthServer(h.grpc, h.Health)
	h.Health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	h.Health.SetServingStatus(broker.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	go func() {
		_ = h.grpc.Serve(h.listener)
	}()
	t.Cleanup(func() {
		h.grpc.Stop()
		_ = h.listener.Close()
	})
	return h
}

// Addr is the target to pass to broker.Dial with DialOptions.
func (h *Harness) Addr() string {
	return "passthrough:///bufnet"
}

// DialOptions route connections through the in-memory listener.
func (h *Harness) DialOptions() []gogrpc.DialOption {
	return []gogrpc.DialOption{
		gogrpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return h.listener.DialContext(ctx)
		}),
		gogrpc.WithTransportCredentials(insecure.NewCredentials()),
	}
}

// Client dials the harness and closes the client when the test ends.
func (h *Harness) Client(t testing.TB, opts broker.Options) *broker.Client {
	t.Helper()
	client, err := broker.Dial(context.Background(), h.Addr(), 2*time.Second, nil, opts, h.DialOptions()...)
	if err != nil {
		t.Fatalf("dial broker: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}
