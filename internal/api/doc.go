// Package api serves the relay's HTTP surface.
//
// Routes:
//
//	GET /api/v1/health    aggregate health snapshot (503 when unhealthy)
//	GET /api/v1/metrics   JSON runtime, bridge and per-link statistics
//	GET /api/v1/events    journaled link events, newest first
//	GET /metrics          Prometheus exposition
//	GET <socket path>     WebSocket upgrade for each server-role socket link
//
// The server follows the same lifecycle as the other components:
//
//	srv, err := api.New(deps)
//	if err := srv.Start(ctx); err != nil { ... }
//	defer srv.Close()
//
// Socket paths sit behind the request ID and recovery middleware but are
// never wrapped in a way that hides http.Hijacker.
package api
