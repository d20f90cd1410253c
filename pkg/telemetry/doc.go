// Package telemetry wires OpenTelemetry into the nexus.
//
// NewProvider installs global tracer and meter providers with one of three
// span exporters:
//
//   - "none": spans are created but not exported
//   - "stdout": spans are written as JSON to a writer
//   - "otlp": spans are batched to an OTLP gRPC collector
//
// DispatchMetrics turns every Execute call into an iln_executions_total
// count and an iln_execution_duration_seconds sample, labelled by level,
// backend, status and error kind.
//
// Correlation IDs travel in the context and on outgoing requests as
// X-Correlation-ID and X-Request-ID. EnrichLogFields copies them, together
// with the active trace and span IDs, into log fields.
package telemetry
