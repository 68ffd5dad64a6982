// Package http implements the HTTP surface of the license server.
// Handlers are a thin layer between the transport and the services: they
// parse and validate requests, call a service and render the result.
//
// # Request Flow
//
//	HTTP Request → Chi Router → Middleware → Handler → Service → Store
//
// # Wire formats
//
// The launcher protocol endpoints (/check and /heartbeat) always answer with
// a {"result": ...} object, including for malformed requests, because the
// launcher only understands that shape. Admin and operational endpoints
// report failures as RFC 7807 problem details rendered by
// errors.ErrorHandler.
//
// # Routes
//
//	GET|POST /check             license check
//	POST     /heartbeat         session heartbeat
//	         /admin/*           key, ban and activity management (X-Admin-Token)
//	GET      /health            health, readiness (/health/ready), liveness (/health/live)
//	GET      /version           build information
//	GET      /metrics           Prometheus exposition
package http
