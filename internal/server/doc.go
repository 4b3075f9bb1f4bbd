// Package server provides the optional tripwire status server: a status
// page, a JSON view of every site monitor, a live SSE stream, Prometheus
// metrics and a health check. It is off unless a status port is configured.
package server
