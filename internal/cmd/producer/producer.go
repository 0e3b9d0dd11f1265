// Package producer parses producer command flags and submits one task
// activation to the broker.
package producer

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/louisbranch/taskworker/internal/platform/cmd"
	"github.com/louisbranch/taskworker/internal/platform/discovery"
	"github.com/louisbranch/taskworker/internal/platform/logging"
	"github.com/louisbranch/taskworker/internal/services/worker/broker"
	"github.com/louisbranch/taskworker/internal/services/worker/demo"
	"github.com/louisbranch/taskworker/internal/services/worker/domain"
	"go.uber.org/zap"
	gogrpc "google.golang.org/grpc"
	"gopkg.in/yaml.v3"
)

// Config holds producer command configuration.
type Config struct {
	BrokerAddr  string        `env:"TASKWORKER_BROKER_ADDR"`
	DialTimeout time.Duration `env:"TASKWORKER_DIAL_TIMEOUT" envDefault:"2s"`
	LogLevel    string        `env:"TASKWORKER_LOG_LEVEL" envDefault:"info"`
	Namespace   string
	Task        string
	Args        string
	Kwargs      string
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	cfg.BrokerAddr = discovery.OrDefaultGRPCAddr(cfg.BrokerAddr, discovery.ServiceBroker)
	fs.StringVar(&cfg.BrokerAddr, "broker-addr", cfg.BrokerAddr, "The broker gRPC server address")
	fs.DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "Broker dial and health check timeout")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	fs.StringVar(&cfg.Namespace, "namespace", demo.Namespace, "Namespace of the task to send")
	fs.StringVar(&cfg.Task, "task", demo.TaskSayHello, "Task name to send")
	fs.StringVar(&cfg.Args, "args", "", `Positional arguments as a YAML or JSON list, e.g. '["world"]'`)
	fs.StringVar(&cfg.Kwargs, "kwargs", "", `Keyword arguments as a YAML or JSON map, e.g. '{a: 1, b: 2}'`)
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if cfg.Task == "" {
		return Config{}, fmt.Errorf("task is required")
	}
	return cfg, nil
}

// ParseParams decodes the command line argument flags into task params.
func ParseParams(args, kwargs string) (domain.Params, error) {
	var params domain.Params
	if args != "" {
		if err := yaml.Unmarshal([]byte(args), &params.Args); err != nil {
			return domain.Params{}, fmt.Errorf("parse args: %w", err)
		}
	}
	if kwargs != "" {
		if err := yaml.Unmarshal([]byte(kwargs), &params.Kwargs); err != nil {
			return domain.Params{}, fmt.Errorf("parse kwargs: %w", err)
		}
	}
	return params, nil
}

// Run dials the broker and sends one activation.
func Run(ctx context.Context, cfg Config) error {
	logger, err := logging.New(entrypoint.ServiceProducer, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	return entrypoint.RunWithTelemetryAndOptions(ctx, entrypoint.ServiceProducer, entrypoint.RunOptions{Logger: logger}, func(ctx context.Context) error {
		_, err := Send(ctx, cfg, logger)
		return err
	})
}

// Send dials the broker, registers the demo tasks and submits the
// configured task. dialOpts override the default transport options.
func Send(ctx context.Context, cfg Config, logger *zap.Logger, dialOpts ...gogrpc.DialOption) (domain.Activation, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	params, err := ParseParams(cfg.Args, cfg.Kwargs)
	if err != nil {
		return domain.Activation{}, err
	}
	client, err := broker.Dial(ctx, cfg.BrokerAddr, cfg.DialTimeout, logging.Printf(logger), broker.Options{}, dialOpts...)
	if err != nil {
		return domain.Activation{}, err
	}
	defer func() { _ = client.Close() }()

	registry := domain.NewRegistry(domain.WithProducer(client))
	if _, err := demo.Register(registry, logger); err != nil {
		return domain.Activation{}, err
	}
	task, err := registry.Lookup(cfg.Namespace, cfg.Task)
	if err != nil {
		return domain.Activation{}, err
	}
	activation, err := task.Send(ctx, params)
	if err != nil {
		return domain.Activation{}, fmt.Errorf("send %s: %w", task.FullName(), err)
	}
	logger.Info("activation sent",
		zap.String("id", activation.ID),
		zap.String("task", activation.FullName()),
		zap.String("broker", client.Addr()),
	)
	return activation, nil
}
