// Package api hosts the HTTP server, middleware, and read-only REST handlers
// over the report store. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/players, /v1/players/{id} and /v1/players/{id}/summary for
//     reports and the summary consumed by report generation.
//   - GET /v1/runs and /v1/runs/{run_id} for run history, from the run
//     repository when Postgres backs the store and from artifact summaries
//     otherwise.
package api
