package domain

import (
	"maps"
	"slices"
	"strings"
	"time"

	apperrors "github.com/louisbranch/taskworker/internal/platform/errors"
)

// Registry is the process-wide directory of namespaces. It is populated once
// during startup and read-only afterwards, so it does no locking.
type Registry struct {
	namespaces map[string]*Namespace
	producer   Producer
	clock      func() time.Time
}

// RegistryOption customizes a registry.
type RegistryOption func(*Registry)

// WithProducer sets the transport used by Namespace.SendTask.
func WithProducer(producer Producer) RegistryOption {
	return func(r *Registry) {
		r.producer = producer
	}
}

// WithClock overrides the time source used for activation timestamps.
func WithClock(clock func() time.Time) RegistryOption {
	return func(r *Registry) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		namespaces: make(map[string]*Namespace),
		clock:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

// SetProducer installs the producer after construction. Entry points use it
// once the broker connection is dialed.
func (r *Registry) SetProducer(producer Producer) {
	r.producer = producer
}

// CreateNamespace registers a namespace named name.
func (r *Registry) CreateNamespace(name string, opts ...NamespaceOption) (*Namespace, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.New(apperrors.CodeInvalidTask, "namespace name is required")
	}
	if _, exists := r.namespaces[name]; exists {
		return nil, duplicateNamespace(name)
	}

	topic := "taskworker-" + name
	ns := &Namespace{
		name:                      name,
		topic:                     topic,
		deadletterTopic:           topic + "-dlq",
		defaultProcessingDeadline: DefaultProcessingDeadline,
		tasks:                     make(map[string]*Task),
		registry:                  r,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(ns)
		}
	}
	if err := ns.defaultRetry.Validate(); err != nil {
		return nil, err
	}

	r.namespaces[name] = ns
	return ns, nil
}

// Get returns the namespace named name.
func (r *Registry) Get(name string) (*Namespace, error) {
	ns, ok := r.namespaces[name]
	if !ok {
		return nil, unknownNamespace(name)
	}
	return ns, nil
}

// Lookup resolves a task by namespace and task name.
func (r *Registry) Lookup(namespace, task string) (*Task, error) {
	ns, err := r.Get(namespace)
	if err != nil {
		return nil, err
	}
	return ns.Task(task)
}

// Names returns the namespace names in sorted order.
func (r *Registry) Names() []string {
	return slices.Sorted(maps.Keys(r.namespaces))
}

func (r *Registry) now() time.Time {
	return r.clock().UTC()
}
