package domain

import (
	"context"
	"errors"
	"testing"
	"time"
)

type recordingProducer struct {
	topics      []string
	activations []Activation
	err         error
}

func (p *recordingProducer) Produce(_ context.Context, topic string, activation Activation) error {
	if p.err != nil {
		return p.err
	}
	p.topics = append(p.topics, topic)
	p.activations = append(p.activations, activation)
	return nil
}

func fixedClock() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestCreateActivation(t *testing.T) {
	registry := NewRegistry(WithClock(fixedClock))
	ns, _ := registry.CreateNamespace("demo", WithDefaultProcessingDeadline(5*time.Second))
	task, _ := ns.Register("say_hello", noop)

	activation, err := ns.CreateActivation(task, Args("world"))
	if err != nil {
		t.Fatalf("create activation: %v", err)
	}
	if activation.ID == "" {
		t.Fatal("expected activation id")
	}
	if activation.Namespace != "demo" || activation.TaskName != "say_hello" {
		t.Fatalf("identity = %s, want demo.say_hello", activation.FullName())
	}
	if activation.Attempt != 1 {
		t.Fatalf("attempt = %d, want 1", activation.Attempt)
	}
	if activation.ProcessingDeadline != 5*time.Second {
		t.Fatalf("processing deadline = %v, want 5s", activation.ProcessingDeadline)
	}
	if want := fixedClock().Add(5 * time.Second); !activation.DeadlineAt.Equal(want) {
		t.Fatalf("deadline at = %v, want %v", activation.DeadlineAt, want)
	}
	if activation.IdempotencyKey != "" {
		t.Fatal("non-idempotent task must not carry an idempotency key")
	}
	if !activation.ExpiresAt.IsZero() {
		t.Fatal("expected no expiry by default")
	}

	params, err := activation.Params()
	if err != nil {
		t.Fatalf("decode params: %v", err)
	}
	var name string
	if err := params.Arg(0, &name); err != nil {
		t.Fatalf("arg 0: %v", err)
	}
	if name != "world" {
		t.Fatalf("arg 0 = %q, want %q", name, "world")
	}
}

func TestCreateActivationIdempotencyKeyIsStablePerLogicalCall(t *testing.T) {
	registry := NewRegistry()
	ns, _ := registry.CreateNamespace("demo")
	task, _ := ns.Register("charge", noop, Idempotent())
	other, _ := ns.Register("refund", noop, Idempotent())

	first, err := task.CreateActivation(Args("order-1", 42).With("currency", "EUR"))
	if err != nil {
		t.Fatalf("create activation: %v", err)
	}
	second, err := task.CreateActivation(Args("order-1", 42).With("currency", "EUR"))
	if err != nil {
		t.Fatalf("create activation: %v", err)
	}
	if first.ID == second.ID {
		t.Fatal("expected distinct activation ids per send")
	}
	if first.IdempotencyKey == "" || first.IdempotencyKey != second.IdempotencyKey {
		t.Fatalf("keys = %q / %q, want equal non-empty", first.IdempotencyKey, second.IdempotencyKey)
	}

	different, _ := task.CreateActivation(Args("order-2", 42).With("currency", "EUR"))
	if different.IdempotencyKey == first.IdempotencyKey {
		t.Fatal("expected different arguments to produce a different key")
	}
	otherTask, _ := other.CreateActivation(Args("order-1", 42).With("currency", "EUR"))
	if otherTask.IdempotencyKey == first.IdempotencyKey {
		t.Fatal("expected different tasks to produce a different key")
	}
}

func TestCreateActivationRejectsForeignTask(t *testing.T) {
	registry := NewRegistry()
	a, _ := registry.CreateNamespace("a")
	b, _ := registry.CreateNamespace("b")
	task, _ := b.Register("task", noop)

	if _, err := a.CreateActivation(task, Args()); err == nil {
		t.Fatal("expected foreign task to be rejected")
	}
	if _, err := a.CreateActivation(nil, Args()); err == nil {
		t.Fatal("expected nil task to be rejected")
	}
}

func TestCreateActivationExpiry(t *testing.T) {
	registry := NewRegistry(WithClock(fixedClock))
	ns, _ := registry.CreateNamespace("demo", WithExpiresAfter(time.Minute))
	task, _ := ns.Register("task", noop)

	activation, err := task.CreateActivation(Args())
	if err != nil {
		t.Fatalf("create activation: %v", err)
	}
	if want := fixedClock().Add(time.Minute); !activation.ExpiresAt.Equal(want) {
		t.Fatalf("expires at = %v, want %v", activation.ExpiresAt, want)
	}
	if activation.Expired(fixedClock()) {
		t.Fatal("activation should not be expired at creation")
	}
	if !activation.Expired(fixedClock().Add(2 * time.Minute)) {
		t.Fatal("activation should be expired after its expiry")
	}
}

func TestSendTask(t *testing.T) {
	producer := &recordingProducer{}
	registry := NewRegistry(WithProducer(producer))
	ns, _ := registry.CreateNamespace("demo", WithTopic("demo-topic"))
	task, _ := ns.Register("say_hello", noop)

	sent, err := task.Send(context.Background(), Args("world"))
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(producer.activations) != 1 {
		t.Fatalf("produced = %d, want 1", len(producer.activations))
	}
	if producer.topics[0] != "demo-topic" {
		t.Fatalf("topic = %q, want %q", producer.topics[0], "demo-topic")
	}
	if producer.activations[0].ID != sent.ID {
		t.Fatalf("produced id = %q, want %q", producer.activations[0].ID, sent.ID)
	}
	if producer.activations[0].Headers == nil {
		t.Fatal("expected headers map on produced activation")
	}
}

func TestSendTaskErrors(t *testing.T) {
	registry := NewRegistry()
	ns, _ := registry.CreateNamespace("demo")
	task, _ := ns.Register("say_hello", noop)
	activation, _ := task.CreateActivation(Args())

	if err := ns.SendTask(context.Background(), activation); !errors.Is(err, ErrProducerNotConfigured) {
		t.Fatalf("err = %v, want ErrProducerNotConfigured", err)
	}

	boom := errors.New("boom")
	registry.SetProducer(&recordingProducer{err: boom})
	if err := ns.SendTask(context.Background(), activation); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped producer error", err)
	}

	other, _ := registry.CreateNamespace("other")
	if err := other.SendTask(context.Background(), activation); err == nil {
		t.Fatal("expected namespace mismatch to be rejected")
	}
}
