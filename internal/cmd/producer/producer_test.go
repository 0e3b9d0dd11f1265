package producer

import (
	"context"
	"flag"
	"testing"
	"time"

	"github.com/louisbranch/taskworker/internal/services/worker/broker/brokertest"
	"github.com/louisbranch/taskworker/internal/services/worker/demo"
)

func TestParseConfig_Defaults(t *testing.T) {
	fs := flag.NewFlagSet("producer", flag.ContinueOnError)
	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.BrokerAddr != "broker:50051" {
		t.Fatalf("broker addr = %q, want broker:50051", cfg.BrokerAddr)
	}
	if cfg.Namespace != demo.Namespace || cfg.Task != demo.TaskSayHello {
		t.Fatalf("task = %s.%s, want %s.%s", cfg.Namespace, cfg.Task, demo.Namespace, demo.TaskSayHello)
	}
}

func TestParseConfig_RejectsEmptyTask(t *testing.T) {
	fs := flag.NewFlagSet("producer", flag.ContinueOnError)
	if _, err := ParseConfig(fs, []string{"-task", ""}); err == nil {
		t.Fatal("expected empty task error")
	}
}

func TestParseParams(t *testing.T) {
	params, err := ParseParams(`["world"]`, `{a: 1, b: 2}`)
	if err != nil {
		t.Fatalf("parse params: %v", err)
	}
	var name string
	if err := params.Arg(0, &name); err != nil {
		t.Fatalf("arg 0: %v", err)
	}
	if name != "world" {
		t.Fatalf("arg 0 = %q, want world", name)
	}
	var b int
	ok, err := params.Kwarg("b", &b)
	if err != nil || !ok {
		t.Fatalf("kwarg b = %v, %v", ok, err)
	}
	if b != 2 {
		t.Fatalf("kwarg b = %d, want 2", b)
	}
}

func TestParseParams_RejectsMalformedArgs(t *testing.T) {
	if _, err := ParseParams(`{a: 1}`, ""); err == nil {
		t.Fatal("expected args error for a map")
	}
}

func TestSend_ProducesToBroker(t *testing.T) {
	harness := brokertest.Start(t)
	cfg := Config{
		BrokerAddr:  harness.Addr(),
		DialTimeout: 2 * time.Second,
		Namespace:   demo.Namespace,
		Task:        demo.TaskSayHello,
		Args:        `["world"]`,
	}

	activation, err := Send(context.Background(), cfg, nil, harness.DialOptions()...)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	produced := harness.Server.Produced()
	if len(produced) != 1 {
		t.Fatalf("produced = %d, want 1", len(produced))
	}
	if produced[0].Topic != "taskworker-demo" {
		t.Fatalf("topic = %q, want taskworker-demo", produced[0].Topic)
	}
	if produced[0].Activation.ID != activation.ID {
		t.Fatalf("produced id = %q, want %q", produced[0].Activation.ID, activation.ID)
	}
	if harness.Server.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", harness.Server.Pending())
	}
}

func TestSend_UnknownTask(t *testing.T) {
	harness := brokertest.Start(t)
	cfg := Config{
		BrokerAddr:  harness.Addr(),
		DialTimeout: 2 * time.Second,
		Namespace:   demo.Namespace,
		Task:        "missing",
	}
	if _, err := Send(context.Background(), cfg, nil, harness.DialOptions()...); err == nil {
		t.Fatal("expected unknown task error")
	}
}
