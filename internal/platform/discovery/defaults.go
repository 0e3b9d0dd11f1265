// Package discovery centralizes internal service-discovery conventions.
package discovery

import (
	"strconv"
	"strings"
)

const (
	// ServiceBroker is the task broker gRPC service identity.
	ServiceBroker = "broker"
	// ServiceWorker is the worker health gRPC service identity.
	ServiceWorker = "worker"
	// ServiceJaeger is the jaeger HTTP service identity.
	ServiceJaeger = "jaeger"
	// ServiceMetrics is the worker metrics HTTP identity.
	ServiceMetrics = "metrics"
)

var grpcPorts = map[string]int{
	ServiceBroker: 50051,
	ServiceWorker: 8089,
}

var httpPorts = map[string]int{
	ServiceMetrics: 9464,
	ServiceJaeger:  16686,
}

// DefaultGRPCAddr returns the canonical in-network gRPC address for a service.
func DefaultGRPCAddr(service string) string {
	return defaultAddr(strings.TrimSpace(service), grpcPorts)
}

// DefaultHTTPAddr returns the canonical in-network HTTP address for a service.
func DefaultHTTPAddr(service string) string {
	return defaultAddr(strings.TrimSpace(service), httpPorts)
}

// GRPCPort returns the conventional gRPC port for a service, zero when unknown.
func GRPCPort(service string) int {
	return grpcPorts[strings.TrimSpace(service)]
}

// OrDefaultGRPCAddr returns value when set, otherwise the service convention.
func OrDefaultGRPCAddr(value, service string) string {
	value = strings.TrimSpace(value)
	if value != "" {
		return value
	}
	return DefaultGRPCAddr(service)
}

// OrDefaultHTTPAddr returns value when set, otherwise the service convention.
func OrDefaultHTTPAddr(value, service string) string {
	value = strings.TrimSpace(value)
	if value != "" {
		return value
	}
	return DefaultHTTPAddr(service)
}

func defaultAddr(service string, ports map[string]int) string {
	port, ok := ports[service]
	if !ok || port <= 0 {
		return ""
	}
	return service + ":" + strconv.Itoa(port)
}
