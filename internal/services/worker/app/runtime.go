package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/louisbranch/taskworker/internal/platform/logging"
	"github.com/louisbranch/taskworker/internal/platform/telemetry/metrics"
	"github.com/louisbranch/taskworker/internal/platform/timeouts"
	"github.com/louisbranch/taskworker/internal/services/worker/broker"
	"github.com/louisbranch/taskworker/internal/services/worker/domain"
	"github.com/louisbranch/taskworker/internal/services/worker/storage"
	workerredis "github.com/louisbranch/taskworker/internal/services/worker/storage/redis"
	workersqlite "github.com/louisbranch/taskworker/internal/services/worker/storage/sqlite"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
)

// HealthService is the worker's named health entry.
const HealthService = "taskworker.worker"

// RuntimeConfig controls worker startup, dependencies, and loop behavior.
type RuntimeConfig struct {
	// Port is the health server port. Zero means 8089, negative picks a
	// free port.
	Port          int
	BrokerAddr    string
	Namespace     string
	MaxTaskCount  int
	Host          string
	DBPath        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CompletionTTL time.Duration
	PurgeInterval time.Duration
	IdleBackoff   time.Duration
	ReportTimeout time.Duration
	FetchMaxTries int
	DialTimeout   time.Duration
	MetricsAddr   string
	HealthFile    string
	// DialOptions are appended to the broker dial options.
	DialOptions []grpc.DialOption
}

const (
	defaultWorkerPort    = 8089
	defaultWorkerDB      = "data/worker.db"
	defaultPurgeInterval = time.Hour
)

// Run starts worker runtime dependencies and the processing loop over
// registry. It returns nil after ctx ends and an error when startup fails
// or the broker stays unreachable.
func Run(ctx context.Context, cfg RuntimeConfig, registry *domain.Registry, logger *zap.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if registry == nil {
		return fmt.Errorf("task registry is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.BrokerAddr) == "" {
		return fmt.Errorf("broker address is required")
	}
	if cfg.Namespace != "" {
		if _, err := registry.Get(cfg.Namespace); err != nil {
			return fmt.Errorf("namespace filter: %w", err)
		}
	}
	if cfg.Port == 0 {
		cfg.Port = defaultWorkerPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultWorkerDB
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = timeouts.GRPCDial
	}
	if cfg.PurgeInterval <= 0 {
		cfg.PurgeInterval = defaultPurgeInterval
	}
	loopConfig := Config{
		Host:          cfg.Host,
		MaxTaskCount:  cfg.MaxTaskCount,
		IdleBackoff:   cfg.IdleBackoff,
		FetchMaxTries: cfg.FetchMaxTries,
		CompletionTTL: cfg.CompletionTTL,
		HealthFile:    cfg.HealthFile,
	}.normalized()

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create worker storage dir: %w", err)
		}
	}
	workerStore, err := workersqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open worker sqlite store: %w", err)
	}
	defer func() {
		if closeErr := workerStore.Close(); closeErr != nil {
			logger.Warn("close worker sqlite store", zap.Error(closeErr))
		}
	}()

	var completions storage.CompletionStore = workerStore
	sharedCompletions := strings.TrimSpace(cfg.RedisAddr) != ""
	if sharedCompletions {
		redisStore, err := workerredis.Open(ctx, workerredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return fmt.Errorf("open redis completion store: %w", err)
		}
		defer func() {
			if closeErr := redisStore.Close(); closeErr != nil {
				logger.Warn("close redis completion store", zap.Error(closeErr))
			}
		}()
		completions = redisStore
	}

	client, err := broker.Dial(ctx, cfg.BrokerAddr, cfg.DialTimeout, logging.Printf(logger), broker.Options{
		Namespace:     cfg.Namespace,
		Host:          loopConfig.Host,
		ReportTimeout: cfg.ReportTimeout,
	}, cfg.DialOptions...)
	if err != nil {
		return fmt.Errorf("dial broker: %w", err)
	}
	defer func() {
		if closeErr := client.Close(); closeErr != nil {
			logger.Warn("close broker connection", zap.Error(closeErr))
		}
	}()
	registry.SetProducer(client)

	workerMetrics := metrics.NewWorker()
	worker := New(registry, client, loopConfig,
		WithCompletionStore(completions),
		WithAttemptRecorder(workerStore),
		WithMetrics(workerMetrics),
		WithLogger(logger),
	)

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", max(cfg.Port, 0)))
	if err != nil {
		return fmt.Errorf("listen on worker port %d: %w", cfg.Port, err)
	}
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(HealthService, grpc_health_v1.HealthCheckResponse_SERVING)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("worker health server listening", zap.Stringer("addr", listener.Addr()))
		if err := grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("serve worker health: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		return nil
	})

	if addr := strings.TrimSpace(cfg.MetricsAddr); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", workerMetrics.Handler())
		metricsServer := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: timeouts.ReadHeader}
		g.Go(func() error {
			logger.Info("worker metrics listening", zap.String("addr", addr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve metrics: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), timeouts.Shutdown)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	if !sharedCompletions {
		g.Go(func() error {
			purgeCompletions(gctx, workerStore, cfg.PurgeInterval, logger)
			return nil
		})
	}

	g.Go(func() error {
		return worker.Run(gctx)
	})
	return g.Wait()
}

type completionPurger interface {
	PurgeExpiredCompletions(ctx context.Context) (int64, error)
}

// purgeCompletions drops expired local completion markers until ctx ends.
func purgeCompletions(ctx context.Context, store completionPurger, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := store.PurgeExpiredCompletions(ctx)
			if err != nil {
				if ctx.Err() == nil {
					logger.Warn("purge expired completions", zap.Error(err))
				}
				continue
			}
			if purged > 0 {
				logger.Debug("purged expired completions", zap.Int64("count", purged))
			}
		}
	}
}
