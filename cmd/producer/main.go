// Package main submits a single task activation to the broker.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	producercmd "github.com/louisbranch/taskworker/internal/cmd/producer"
	"github.com/louisbranch/taskworker/internal/platform/config"
)

func main() {
	cfg, err := producercmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := producercmd.Run(ctx, cfg); err != nil {
		stop()
		config.Exitf("producer: %v", err)
	}
}
