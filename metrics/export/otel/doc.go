// Package otel bridges engine metrics into an OpenTelemetry meter via
// observable instruments, reusing the shared definitions so metric
// names match the Prometheus exporter.
package otel
