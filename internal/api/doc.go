// Package api provides the HTTP client for the clubhub backend.
//
// Endpoints:
//   - GET  /health      liveness, used by the keep-alive pinger
//   - POST /api/events  submit a rolled event for admin review
//
// Default base URL: http://localhost:8080 (CLUBHUB_BACKEND_URL overrides)
package api
