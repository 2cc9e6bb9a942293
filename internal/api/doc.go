// Package api hosts the HTTP server and middleware for read access to stored
// postings. Routes:
//   - GET / returns a plain-text usage hint.
//   - GET /jobs filters postings by year, limit, title_any and title_all.
//   - GET /healthz and /readyz for probes; /readyz reports "degraded" with a
//     200 when the store cannot be prepared.
//   - GET /metrics for Prometheus scraping.
package api
