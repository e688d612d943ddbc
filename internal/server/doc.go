// Package server implements the HTTP server using Echo framework.
//
// Routes: scheduling API (create/list/get dispatches), animation WebSocket
// feed, health probes, Prometheus metrics. Handlers split by concern:
// handlers_api.go, handlers_ws.go, handlers_health.go.
package server
