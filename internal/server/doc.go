// Package server exposes an agent session over HTTP.
//
// # Key Components
//
// ServerContext ties the execution surface, the tool registry, the DOM
// bridge and the saved prompts to the lifetime of the server. Shutdown
// cancels the turn in flight and closes every event stream.
//
// APIServer serves the JSON API built by NewRouter:
//
//	POST   /api/turns              run a turn, {"prompt": "...", "continue": false}
//	POST   /api/cancel             cancel the turn in flight
//	GET    /api/events             progress steps as server-sent events
//	GET    /api/conversation       stored conversation
//	DELETE /api/conversation       forget the conversation
//	GET    /api/tools              tool catalog with its backend
//	GET    /api/prompts            saved prompts (also POST, PATCH, DELETE)
//	POST   /api/prompts/{id}/run   run a saved prompt by id or name
//	GET    /dom/ws                 websocket for the webmail page
//
// A turn request blocks until the turn ends. Starting a turn cancels the one
// in flight, whose request then returns with state "cancelled".
//
// HealthChecker serves /healthz, /readyz and /healthz/detailed. The detailed
// endpoint reports the DOM bridge and Gmail authorization state.
//
// MetricsServer serves Prometheus metrics on a dedicated port.
package server
