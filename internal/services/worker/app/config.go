package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/louisbranch/taskworker/internal/services/worker/storage"
)

const (
	defaultIdleBackoff         = 200 * time.Millisecond
	defaultFetchMaxTries       = 5
	defaultFetchInitialBackoff = 100 * time.Millisecond
	defaultFetchMaxBackoff     = 2 * time.Second
)

// Config controls the fetch-execute-report loop.
type Config struct {
	// Host identifies this worker to the broker. Defaults to hostname:pid.
	Host string
	// MaxTaskCount is forwarded to the broker on every fetch.
	MaxTaskCount int
	// IdleBackoff is the pause after a fetch that returned no work.
	IdleBackoff time.Duration
	// FetchMaxTries bounds consecutive failed fetches before Run gives up.
	FetchMaxTries int
	// FetchInitialBackoff and FetchMaxBackoff shape the wait between
	// failed fetches.
	FetchInitialBackoff time.Duration
	FetchMaxBackoff     time.Duration
	// CompletionTTL is how long completion markers suppress duplicates.
	CompletionTTL time.Duration
	// HealthFile, when set, is rewritten on every loop iteration.
	HealthFile string
}

func (c Config) normalized() Config {
	c.Host = strings.TrimSpace(c.Host)
	if c.Host == "" {
		c.Host = defaultHost()
	}
	if c.MaxTaskCount <= 0 {
		c.MaxTaskCount = 1
	}
	if c.IdleBackoff <= 0 {
		c.IdleBackoff = defaultIdleBackoff
	}
	if c.FetchMaxTries <= 0 {
		c.FetchMaxTries = defaultFetchMaxTries
	}
	if c.FetchInitialBackoff <= 0 {
		c.FetchInitialBackoff = defaultFetchInitialBackoff
	}
	if c.FetchMaxBackoff < c.FetchInitialBackoff {
		c.FetchMaxBackoff = max(defaultFetchMaxBackoff, c.FetchInitialBackoff)
	}
	if c.CompletionTTL <= 0 {
		c.CompletionTTL = storage.DefaultCompletionTTL
	}
	c.HealthFile = strings.TrimSpace(c.HealthFile)
	return c
}

func defaultHost() string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		name = "worker"
	}
	return fmt.Sprintf("%s:%d", name, os.Getpid())
}
