// Package main starts the worker service process lifecycle.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	workercmd "github.com/louisbranch/taskworker/internal/cmd/worker"
	"github.com/louisbranch/taskworker/internal/platform/config"
	"github.com/louisbranch/taskworker/internal/services/worker/domain"
)

func main() {
	cfg, err := workercmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := workercmd.Run(ctx, cfg); err != nil {
		stop()
		var unavailable *domain.BrokerUnavailableError
		if errors.As(err, &unavailable) {
			config.ExitCodef(config.ExitUnavailable, "worker: %v", err)
		}
		config.Exitf("worker: %v", err)
	}
}
