// Package telemetry provides OpenTelemetry instrumentation for agentstackd.
//
// It manages the TracerProvider and MeterProvider with OTLP gRPC export,
// W3C trace context propagation, and graceful shutdown. Telemetry failures
// never crash the service; providers degrade to no-ops.
package telemetry
