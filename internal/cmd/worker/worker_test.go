package worker

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/taskworker/internal/services/worker/demo"
	"go.uber.org/zap"
)

func TestParseConfig_ParsesDefaultsAndFlags(t *testing.T) {
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	t.Setenv("TASKWORKER_PORT", "9099")
	t.Setenv("TASKWORKER_BROKER_ADDR", "broker.internal:7000")
	t.Setenv("TASKWORKER_COMPLETION_TTL", "1h")

	cfg, err := ParseConfig(fs, []string{"-namespace", "demo", "-max-task-count", "3"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Port != 9099 {
		t.Fatalf("port = %d, want 9099", cfg.Port)
	}
	if cfg.BrokerAddr != "broker.internal:7000" {
		t.Fatalf("broker addr = %q, want %q", cfg.BrokerAddr, "broker.internal:7000")
	}
	if cfg.Namespace != "demo" {
		t.Fatalf("namespace = %q, want %q", cfg.Namespace, "demo")
	}
	if cfg.MaxTaskCount != 3 {
		t.Fatalf("max task count = %d, want 3", cfg.MaxTaskCount)
	}
	if cfg.CompletionTTL != time.Hour {
		t.Fatalf("completion ttl = %v, want 1h", cfg.CompletionTTL)
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)

	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.BrokerAddr != "broker:50051" {
		t.Fatalf("broker addr = %q, want %q", cfg.BrokerAddr, "broker:50051")
	}
	if cfg.MaxTaskCount != 1 || cfg.FetchMaxTries != 5 || cfg.IdleBackoff != 200*time.Millisecond {
		t.Fatalf("loop defaults = %+v", cfg)
	}
	if cfg.ReportTimeout != 5*time.Second || cfg.MetricsAddr != ":9464" || cfg.LogLevel != "info" {
		t.Fatalf("ambient defaults = %+v", cfg)
	}
}

func TestParseConfig_RejectsZeroMaxTaskCount(t *testing.T) {
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	if _, err := ParseConfig(fs, []string{"-max-task-count", "0"}); err == nil {
		t.Fatal("expected max task count error")
	}
}

func TestBuildRegistry_AppliesNamespacesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "namespaces.yaml")
	doc := "namespaces:\n  - name: demo\n    topic: demo-tasks\n  - name: billing\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write namespaces file: %v", err)
	}

	registry, err := BuildRegistry(Config{NamespacesFile: path}, zap.NewNop())
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	ns, err := registry.Get(demo.Namespace)
	if err != nil {
		t.Fatalf("get demo: %v", err)
	}
	if ns.Topic() != "demo-tasks" {
		t.Fatalf("demo topic = %q, want demo-tasks", ns.Topic())
	}
	if _, err := registry.Lookup(demo.Namespace, demo.TaskSayHello); err != nil {
		t.Fatalf("lookup say_hello: %v", err)
	}
	if names := registry.Names(); len(names) != 2 || names[0] != "billing" || names[1] != "demo" {
		t.Fatalf("namespaces = %v", names)
	}
}

func TestBuildRegistry_MissingNamespacesFile(t *testing.T) {
	_, err := BuildRegistry(Config{NamespacesFile: filepath.Join(t.TempDir(), "missing.yaml")}, zap.NewNop())
	if err == nil {
		t.Fatal("expected missing file error")
	}
}
