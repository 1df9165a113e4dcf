// Package sinks implements progress consumers: structured logging, run
// level Prometheus collectors and run bookkeeping in a repository. Each
// satisfies progress.Sink.
package sinks
