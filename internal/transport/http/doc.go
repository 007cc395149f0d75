// Package http exposes the entitlement engine over a chi-routed JSON
// API: validation, usage checks and increments, cache invalidation and
// statistics, health probes and the WebSocket event stream.
package http
