// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/runs to queue a run, POST /v1/runs/{run_id}/cancel to stop it.
//   - GET /v1/runs, /v1/runs/{run_id} and /v1/stages for progress, backed by
//     the in-memory tracker and, when configured, the Postgres runs table.
package api
