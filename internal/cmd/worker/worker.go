// Package worker parses worker command flags and launches the worker runtime.
package worker

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/louisbranch/taskworker/internal/platform/cmd"
	"github.com/louisbranch/taskworker/internal/platform/discovery"
	"github.com/louisbranch/taskworker/internal/platform/logging"
	workerserver "github.com/louisbranch/taskworker/internal/services/worker/app"
	"github.com/louisbranch/taskworker/internal/services/worker/demo"
	"github.com/louisbranch/taskworker/internal/services/worker/domain"
	"go.uber.org/zap"
)

// Config holds worker command configuration.
type Config struct {
	Port           int           `env:"TASKWORKER_PORT" envDefault:"8089"`
	BrokerAddr     string        `env:"TASKWORKER_BROKER_ADDR"`
	Namespace      string        `env:"TASKWORKER_NAMESPACE"`
	MaxTaskCount   int           `env:"TASKWORKER_MAX_TASK_COUNT" envDefault:"1"`
	Host           string        `env:"TASKWORKER_HOST"`
	DBPath         string        `env:"TASKWORKER_DB_PATH" envDefault:"data/worker.db"`
	RedisAddr      string        `env:"TASKWORKER_REDIS_ADDR"`
	RedisPassword  string        `env:"TASKWORKER_REDIS_PASSWORD"`
	RedisDB        int           `env:"TASKWORKER_REDIS_DB" envDefault:"0"`
	CompletionTTL  time.Duration `env:"TASKWORKER_COMPLETION_TTL" envDefault:"24h"`
	IdleBackoff    time.Duration `env:"TASKWORKER_IDLE_BACKOFF" envDefault:"200ms"`
	ReportTimeout  time.Duration `env:"TASKWORKER_REPORT_TIMEOUT" envDefault:"5s"`
	FetchMaxTries  int           `env:"TASKWORKER_FETCH_MAX_TRIES" envDefault:"5"`
	DialTimeout    time.Duration `env:"TASKWORKER_DIAL_TIMEOUT" envDefault:"2s"`
	MetricsAddr    string        `env:"TASKWORKER_METRICS_ADDR" envDefault:":9464"`
	HealthFile     string        `env:"TASKWORKER_HEALTH_FILE"`
	NamespacesFile string        `env:"TASKWORKER_NAMESPACES_FILE"`
	LogLevel       string        `env:"TASKWORKER_LOG_LEVEL" envDefault:"info"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	cfg.BrokerAddr = discovery.OrDefaultGRPCAddr(cfg.BrokerAddr, discovery.ServiceBroker)
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The worker health gRPC server port")
	fs.StringVar(&cfg.BrokerAddr, "broker-addr", cfg.BrokerAddr, "The broker gRPC server address")
	fs.StringVar(&cfg.Namespace, "namespace", cfg.Namespace, "Only fetch activations of this namespace")
	fs.IntVar(&cfg.MaxTaskCount, "max-task-count", cfg.MaxTaskCount, "Maximum activations requested per fetch")
	fs.StringVar(&cfg.Host, "host", cfg.Host, "Worker identity reported to the broker")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The worker SQLite database path")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", cfg.RedisAddr, "Redis address for the shared completion store")
	fs.DurationVar(&cfg.CompletionTTL, "completion-ttl", cfg.CompletionTTL, "How long completion markers suppress duplicates")
	fs.DurationVar(&cfg.IdleBackoff, "idle-backoff", cfg.IdleBackoff, "Pause after a fetch that returned no work")
	fs.DurationVar(&cfg.ReportTimeout, "report-timeout", cfg.ReportTimeout, "Timeout for reporting one result")
	fs.IntVar(&cfg.FetchMaxTries, "fetch-max-tries", cfg.FetchMaxTries, "Consecutive failed fetches before exiting")
	fs.DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "Broker dial and health check timeout")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address, empty to disable")
	fs.StringVar(&cfg.HealthFile, "health-file", cfg.HealthFile, "File rewritten on every loop iteration")
	fs.StringVar(&cfg.NamespacesFile, "namespaces-file", cfg.NamespacesFile, "YAML file with namespace settings")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level (debug, info, warn, error)")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	if cfg.MaxTaskCount < 1 {
		return Config{}, fmt.Errorf("max task count must be at least 1, got %d", cfg.MaxTaskCount)
	}
	return cfg, nil
}

// BuildRegistry creates the task registry: namespaces from the optional
// namespaces file, then the demo tasks.
func BuildRegistry(cfg Config, logger *zap.Logger) (*domain.Registry, error) {
	registry := domain.NewRegistry()
	if cfg.NamespacesFile != "" {
		file, err := workerserver.LoadNamespaceFile(cfg.NamespacesFile)
		if err != nil {
			return nil, err
		}
		if err := file.Apply(registry); err != nil {
			return nil, fmt.Errorf("apply namespaces file: %w", err)
		}
	}
	if _, err := demo.Register(registry, logger.Named(demo.Namespace)); err != nil {
		return nil, fmt.Errorf("register demo tasks: %w", err)
	}
	return registry, nil
}

// Run starts the worker runtime.
func Run(ctx context.Context, cfg Config) error {
	logger, err := logging.New(entrypoint.ServiceWorker, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	registry, err := BuildRegistry(cfg, logger)
	if err != nil {
		return err
	}
	options := entrypoint.RunOptions{Logger: logger}
	return entrypoint.RunWithTelemetryAndOptions(ctx, entrypoint.ServiceWorker, options, func(ctx context.Context) error {
		return workerserver.Run(ctx, workerserver.RuntimeConfig{
			Port:          cfg.Port,
			BrokerAddr:    cfg.BrokerAddr,
			Namespace:     cfg.Namespace,
			MaxTaskCount:  cfg.MaxTaskCount,
			Host:          cfg.Host,
			DBPath:        cfg.DBPath,
			RedisAddr:     cfg.RedisAddr,
			RedisPassword: cfg.RedisPassword,
			RedisDB:       cfg.RedisDB,
			CompletionTTL: cfg.CompletionTTL,
			IdleBackoff:   cfg.IdleBackoff,
			ReportTimeout: cfg.ReportTimeout,
			FetchMaxTries: cfg.FetchMaxTries,
			DialTimeout:   cfg.DialTimeout,
			MetricsAddr:   cfg.MetricsAddr,
			HealthFile:    cfg.HealthFile,
		}, registry, logger)
	})
}
