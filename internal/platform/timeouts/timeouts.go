// Package timeouts defines shared timeout constants used across taskworker
// processes.
package timeouts

import "time"

// GRPCDial caps the wait time when dialing a gRPC peer, health check included.
const GRPCDial = 2 * time.Second

// GRPCRequest caps a single broker fetch call.
const GRPCRequest = 2 * time.Second

// Report caps the delivery of one processing result to the broker.
const Report = 5 * time.Second

// ReadHeader limits how long an HTTP server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long servers wait for in-flight requests during
// graceful shutdown.
const Shutdown = 5 * time.Second
