// Package metrics provides Prometheus instrumentation for the execution
// engine: executions by outcome, wall-clock durations, in-flight count,
// teardown failures, and output truncations.
package metrics
