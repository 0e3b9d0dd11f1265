package app

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/louisbranch/taskworker/internal/services/worker/domain"
	"gopkg.in/yaml.v3"
)

// NamespaceFile is the YAML document listing namespace settings. Tasks are
// still registered in code; the file only shapes their namespaces.
type NamespaceFile struct {
	Namespaces []NamespaceSpec `yaml:"namespaces"`
}

// NamespaceSpec configures one namespace.
type NamespaceSpec struct {
	Name               string        `yaml:"name"`
	Topic              string        `yaml:"topic"`
	DeadletterTopic    string        `yaml:"deadletter_topic"`
	ProcessingDeadline time.Duration `yaml:"processing_deadline"`
	ExpiresAfter       time.Duration `yaml:"expires_after"`
	Retry              *RetrySpec    `yaml:"retry"`
}

// RetrySpec is the YAML form of domain.RetryPolicy.
type RetrySpec struct {
	MaxAttempts    uint          `yaml:"max_attempts"`
	RetryableKinds []string      `yaml:"retryable_kinds"`
	OnExhausted    string        `yaml:"on_exhausted"`
	InitialDelay   time.Duration `yaml:"initial_delay"`
	MaxDelay       time.Duration `yaml:"max_delay"`
	Multiplier     float64       `yaml:"multiplier"`
}

// LoadNamespaceFile reads and parses path.
func LoadNamespaceFile(path string) (NamespaceFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return NamespaceFile{}, fmt.Errorf("read namespace file: %w", err)
	}
	return ParseNamespaceFile(data)
}

// ParseNamespaceFile parses a namespace YAML document. Unknown fields are
// rejected.
func ParseNamespaceFile(data []byte) (NamespaceFile, error) {
	var file NamespaceFile
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return NamespaceFile{}, fmt.Errorf("parse namespace file: %w", err)
	}
	return file, nil
}

// Apply creates every namespace of the file in registry.
func (f NamespaceFile) Apply(registry *domain.Registry) error {
	for _, spec := range f.Namespaces {
		opts, err := spec.options()
		if err != nil {
			return fmt.Errorf("namespace %q: %w", spec.Name, err)
		}
		if _, err := registry.CreateNamespace(spec.Name, opts...); err != nil {
			return err
		}
	}
	return nil
}

func (s NamespaceSpec) options() ([]domain.NamespaceOption, error) {
	opts := []domain.NamespaceOption{
		domain.WithTopic(s.Topic),
		domain.WithDeadletterTopic(s.DeadletterTopic),
		domain.WithDefaultProcessingDeadline(s.ProcessingDeadline),
		domain.WithExpiresAfter(s.ExpiresAfter),
	}
	if s.Retry != nil {
		policy, err := s.Retry.policy()
		if err != nil {
			return nil, err
		}
		opts = append(opts, domain.WithDefaultRetry(policy))
	}
	return opts, nil
}

func (r RetrySpec) policy() (*domain.RetryPolicy, error) {
	kinds := make([]domain.ErrorKind, 0, len(r.RetryableKinds))
	for _, kind := range r.RetryableKinds {
		kinds = append(kinds, domain.ErrorKind(strings.ToLower(strings.TrimSpace(kind))))
	}
	policy := domain.NewRetryPolicy(r.MaxAttempts, kinds...)
	policy.InitialDelay = r.InitialDelay
	policy.MaxDelay = r.MaxDelay
	policy.Multiplier = r.Multiplier

	switch strings.ToLower(strings.TrimSpace(r.OnExhausted)) {
	case "", "discard":
		policy.OnExhausted = domain.LastActionDiscard
	case "deadletter":
		policy.OnExhausted = domain.LastActionDeadletter
	default:
		return nil, fmt.Errorf("unknown on_exhausted action %q", r.OnExhausted)
	}
	return policy, policy.Validate()
}
