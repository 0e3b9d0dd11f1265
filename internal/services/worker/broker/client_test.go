package broker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "github.com/louisbranch/taskworker/internal/platform/errors"
	"github.com/louisbranch/taskworker/internal/services/worker/broker"
	"github.com/louisbranch/taskworker/internal/services/worker/broker/brokertest"
	"github.com/louisbranch/taskworker/internal/services/worker/domain"
	"google.golang.org/grpc/codes"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
)

func testActivation(id string) domain.Activation {
	payload, err := domain.EncodeParams(domain.Args("Ada"))
	if err != nil {
		panic(err)
	}
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return domain.Activation{
		ID:                 id,
		Namespace:          "demo",
		TaskName:           "say_hello",
		Payload:            payload,
		Attempt:            1,
		ProcessingDeadline: 3 * time.Second,
		DeadlineAt:         created.Add(3 * time.Second),
		Headers:            map[string]string{"traceparent": "00-0af7651916cd43dd8448eb211c80319c-b7ad6b7169203331-01"},
		CreatedAt:          created,
	}
}

func TestFetchTaskReturnsActivation(t *testing.T) {
	h := brokertest.Start(t)
	h.Server.Enqueue(testActivation("act-1"))
	client := h.Client(t, broker.Options{Namespace: "demo", Host: "worker-1"})

	got, err := client.FetchTask(context.Background(), 1)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got == nil {
		t.Fatal("expected activation")
	}
	want := testActivation("act-1")
	if got.ID != want.ID || got.FullName() != want.FullName() || got.Attempt != 1 {
		t.Fatalf("activation = %+v, want %+v", got, want)
	}
	if got.ProcessingDeadline != want.ProcessingDeadline {
		t.Fatalf("deadline = %v, want %v", got.ProcessingDeadline, want.ProcessingDeadline)
	}
	if !got.CreatedAt.Equal(want.CreatedAt) {
		t.Fatalf("created = %v, want %v", got.CreatedAt, want.CreatedAt)
	}
	if got.Headers["traceparent"] != want.Headers["traceparent"] {
		t.Fatalf("headers = %v", got.Headers)
	}
	params, err := got.Params()
	if err != nil {
		t.Fatalf("params: %v", err)
	}
	var name string
	if err := params.Arg(0, &name); err != nil || name != "Ada" {
		t.Fatalf("arg = %q (%v), want Ada", name, err)
	}
}

func TestFetchTaskEmptyQueueReturnsNil(t *testing.T) {
	h := brokertest.Start(t)
	client := h.Client(t, broker.Options{})

	got, err := client.FetchTask(context.Background(), 1)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got != nil {
		t.Fatalf("activation = %+v, want nil", got)
	}
}

func TestFetchTaskFiltersByNamespace(t *testing.T) {
	h := brokertest.Start(t)
	other := testActivation("act-other")
	other.Namespace = "billing"
	h.Server.Enqueue(other)
	client := h.Client(t, broker.Options{Namespace: "demo"})

	got, err := client.FetchTask(context.Background(), 1)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if got != nil {
		t.Fatalf("activation = %+v, want nil for other namespace", got)
	}
	if h.Server.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", h.Server.Pending())
	}
}

func TestFetchTaskTransportFailureIsBrokerUnavailable(t *testing.T) {
	h := brokertest.Start(t)
	h.Server.FailFetches(status.Error(codes.Unavailable, "broker restarting"))
	client := h.Client(t, broker.Options{})

	_, err := client.FetchTask(context.Background(), 1)
	var unavailable *domain.BrokerUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("err = %v, want BrokerUnavailableError", err)
	}
	if status.Code(unavailable.Err) != codes.Unavailable {
		t.Fatalf("cause code = %v, want Unavailable", status.Code(unavailable.Err))
	}
}

func TestFetchTaskCanceledContext(t *testing.T) {
	h := brokertest.Start(t)
	client := h.Client(t, broker.Options{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.FetchTask(ctx, 1)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestReportResultDelivers(t *testing.T) {
	h := brokertest.Start(t)
	h.Server.Enqueue(testActivation("act-1"))
	client := h.Client(t, broker.Options{Host: "worker-1"})

	if _, err := client.FetchTask(context.Background(), 1); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	outcome := client.ReportResult(context.Background(), domain.ProcessingResult{
		TaskID:     "act-1",
		Status:     domain.StatusRetry,
		RetryDelay: 2 * time.Second,
		Err:        errors.New("flaky"),
	})
	if !outcome.Delivered || outcome.Err != nil {
		t.Fatalf("outcome = %+v, want delivered", outcome)
	}

	updates := h.Server.Updates()
	if len(updates) != 1 {
		t.Fatalf("updates = %d, want 1", len(updates))
	}
	got := updates[0]
	if got.Status != domain.StatusRetry || got.Host != "worker-1" || got.RetryDelay != 2*time.Second || got.Error != "flaky" {
		t.Fatalf("update = %+v", got)
	}
	if h.Server.Pending() != 1 {
		t.Fatalf("pending = %d, want redelivery queued", h.Server.Pending())
	}

	redelivered, err := client.FetchTask(context.Background(), 1)
	if err != nil || redelivered == nil {
		t.Fatalf("refetch = %v, %v", redelivered, err)
	}
	if redelivered.Attempt != 2 {
		t.Fatalf("attempt = %d, want 2", redelivered.Attempt)
	}
}

func TestReportResultFailureIsNotEscalated(t *testing.T) {
	h := brokertest.Start(t)
	h.Server.FailReports(status.Error(codes.Unavailable, "down"))
	client := h.Client(t, broker.Options{})

	outcome := client.ReportResult(context.Background(), domain.ProcessingResult{TaskID: "act-9", Status: domain.StatusComplete})
	if outcome.Delivered {
		t.Fatal("expected undelivered outcome")
	}
	var delivery *domain.ReportDeliveryError
	if !errors.As(outcome.Err, &delivery) {
		t.Fatalf("err = %v, want ReportDeliveryError", outcome.Err)
	}
	if delivery.TaskID != "act-9" {
		t.Fatalf("task id = %q, want act-9", delivery.TaskID)
	}
}

func TestReportResultUnknownActivation(t *testing.T) {
	h := brokertest.Start(t)
	client := h.Client(t, broker.Options{})

	outcome := client.ReportResult(context.Background(), domain.ProcessingResult{TaskID: "missing", Status: domain.StatusComplete})
	if outcome.Delivered {
		t.Fatal("expected undelivered outcome")
	}
	if code := apperrors.CodeFromGRPCStatus(errors.Unwrap(outcome.Err)); code != apperrors.CodeNotInflight {
		t.Fatalf("code = %v, want %v", code, apperrors.CodeNotInflight)
	}
}

func TestProduceQueuesActivation(t *testing.T) {
	h := brokertest.Start(t)
	client := h.Client(t, broker.Options{})

	activation := testActivation("act-7")
	if err := client.Produce(context.Background(), "taskworker-demo", activation); err != nil {
		t.Fatalf("produce: %v", err)
	}
	produced := h.Server.Produced()
	if len(produced) != 1 {
		t.Fatalf("produced = %d, want 1", len(produced))
	}
	if produced[0].Topic != "taskworker-demo" || produced[0].Activation.ID != "act-7" {
		t.Fatalf("produced = %+v", produced[0])
	}
	if h.Server.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", h.Server.Pending())
	}
}

func TestProduceRequiresTopic(t *testing.T) {
	h := brokertest.Start(t)
	client := h.Client(t, broker.Options{})

	err := client.Produce(context.Background(), "", testActivation("act-8"))
	if !errors.Is(err, apperrors.New(apperrors.CodeInvalidActivation, "")) {
		t.Fatalf("err = %v, want invalid activation", err)
	}
}

func TestDialFailsWhenBrokerNotServing(t *testing.T) {
	h := brokertest.Start(t)
	h.Health.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := broker.Dial(ctx, h.Addr(), 200*time.Millisecond, nil, broker.Options{}, h.DialOptions()...)
	var unavailable *domain.BrokerUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("err = %v, want BrokerUnavailableError", err)
	}
}
