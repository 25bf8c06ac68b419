// Package http exposes the observability surface of the event-study tool:
// Prometheus metrics, health, and read access to stored runs.
//
// Handlers stay thin. They parse the request, call a service and render JSON
// with chi/render; errors are answered with RFC 7807 problem documents from
// internal/middleware.
//
// # Routes
//
//	GET /metrics               Prometheus exposition of the run metrics
//	GET /healthz               HealthService.HealthCheck
//	GET /version               HealthService.Version
//	GET /runs                  stored runs, newest first (when a store is configured)
//	GET /runs/{runID}/summary  cross-sectional summary of one stored run
//	GET /runs/{runID}/params   market-model parameters of one stored run
//
// The /runs routes read SQLite and share one token-bucket rate limit
// (observability.runs_rate_limit).
package http
