/*
Package observability provides Prometheus metrics and OpenTelemetry tracing
for the workbench and the development service.

A Collector is registered against a caller-supplied registry and plugs into
the other packages through their narrow metric interfaces: binding.Metrics for
marker counts, orchestrator.Hooks for job transitions and progress,
devserver.Metrics for server-side job outcomes and the HTTP handler's request
observer. InitTracing installs a tracer provider that exports to stdout or
does nothing.
*/
package observability
