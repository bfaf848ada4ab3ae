// Package api hosts the HTTP server, middleware, and REST handlers over the
// normalized store. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/rows and /v1/counts for projection reads and grouped counts.
//   - GET /v1/runs and /v1/runs/{run_id} for the run ledger via the
//     RunRepository interface.
package api
