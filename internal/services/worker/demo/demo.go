// Package demo registers the sample "demo" namespace used by local runs and
// smoke tests.
package demo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/taskworker/internal/services/worker/domain"
	"go.uber.org/zap"
)

// Namespace is the demo namespace name.
const Namespace = "demo"

const (
	TaskSayHello = "say_hello"
	TaskAdd      = "add"
	TaskSleep    = "sleep"
	TaskRecord   = "record"
)

// Register adds the demo tasks, creating the namespace when the registry
// does not have it yet.
func Register(registry *domain.Registry, logger *zap.Logger) (*domain.Namespace, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ns, err := registry.Get(Namespace)
	if err != nil {
		if !errors.Is(err, domain.ErrUnknownNamespace) {
			return nil, err
		}
		ns, err = registry.CreateNamespace(Namespace,
			domain.WithDefaultProcessingDeadline(5*time.Second),
			domain.WithDefaultRetry(domain.NewRetryPolicy(3, domain.KindTimeout, domain.KindUnknown)),
		)
		if err != nil {
			return nil, err
		}
	}

	tasks := []struct {
		name string
		fn   domain.Func
		opts []domain.TaskOption
	}{
		{TaskSayHello, domain.Typed(func(_ context.Context, name string) error {
			logger.Info("hello", zap.String("name", name))
			return nil
		}), []domain.TaskOption{domain.WithRetry(nil)}},
		{TaskAdd, add(logger), nil},
		{TaskSleep, domain.Typed(sleep), []domain.TaskOption{domain.WithProcessingDeadline(2 * time.Second)}},
		{TaskRecord, record(logger), []domain.TaskOption{domain.Idempotent()}},
	}
	for _, task := range tasks {
		if _, err := ns.Register(task.name, task.fn, task.opts...); err != nil {
			return nil, err
		}
	}
	return ns, nil
}

// add sums the "a" and "b" keyword arguments.
func add(logger *zap.Logger) domain.Func {
	return func(_ context.Context, params domain.Params) error {
		var a, b int64
		for name, dst := range map[string]*int64{"a": &a, "b": &b} {
			ok, err := params.Kwarg(name, dst)
			if err != nil {
				return domain.Permanent(err)
			}
			if !ok {
				return domain.Permanent(fmt.Errorf("missing keyword argument %q", name))
			}
		}
		logger.Info("add", zap.Int64("sum", a+b))
		return nil
	}
}

// sleep waits for the given duration string or until ctx ends.
func sleep(ctx context.Context, d string) error {
	duration, err := time.ParseDuration(d)
	if err != nil {
		return domain.Permanent(err)
	}
	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// record logs its first argument. It is idempotent, so redeliveries after a
// completed run are suppressed.
func record(logger *zap.Logger) domain.Func {
	return func(_ context.Context, params domain.Params) error {
		var entry string
		if err := params.Arg(0, &entry); err != nil {
			return domain.Permanent(err)
		}
		logger.Info("record", zap.String("entry", entry))
		return nil
	}
}
